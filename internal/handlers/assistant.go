package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"echofi-assistant/internal/bank"
	"echofi-assistant/internal/cache"
	"echofi-assistant/internal/dialogue"
	"echofi-assistant/internal/metrics"
	"echofi-assistant/internal/nlu"
	"echofi-assistant/internal/repo"
	"echofi-assistant/internal/session"

	"log/slog"

	"github.com/google/uuid"
)

// Assistant exposes the dialogue core over HTTP for the voice gateway and
// the web frontend.
type Assistant struct {
	engine    *dialogue.Engine
	sessions  *session.Manager
	executor  *bank.Executor
	repo      *repo.Repository
	cache     *cache.Redis
	metrics   *metrics.Metrics
	logger    *slog.Logger
	rateLimit int64
}

// NewAssistant constructs the handler. repo and cache may be nil; transcript
// logging and rate limiting are then disabled.
func NewAssistant(engine *dialogue.Engine, sessions *session.Manager, executor *bank.Executor, repository *repo.Repository, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger, rateLimit int64) *Assistant {
	return &Assistant{
		engine:    engine,
		sessions:  sessions,
		executor:  executor,
		repo:      repository,
		cache:     redis,
		metrics:   m,
		logger:    logger.With("component", "assistant_handler"),
		rateLimit: rateLimit,
	}
}

type wireIntent struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence"`
}

type wireEntity struct {
	Kind       string `json:"kind"`
	RawValue   string `json:"raw_value"`
	Normalized string `json:"normalized_value"`
	Position   int    `json:"position"`
}

type processRequest struct {
	SessionID string        `json:"session_id"`
	Utterance string        `json:"utterance"`
	Intents   []wireIntent  `json:"intents"`
	Entities  *[]wireEntity `json:"entities"`
}

type processResponse struct {
	SessionID       string            `json:"session_id"`
	Text            string            `json:"text"`
	Outcome         string            `json:"outcome"`
	Completed       bool              `json:"completed"`
	CompletedIntent string            `json:"completed_intent,omitempty"`
	CompletedSlots  map[string]string `json:"completed_slots,omitempty"`
	ExecutionText   string            `json:"execution_text,omitempty"`
}

// HandleProcess serves POST /assistant/process: one dialogue turn.
func (h *Assistant) HandleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.Errors.WithLabelValues("assistant_decode").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	input, err := buildTurnInput(req)
	if err != nil {
		h.metrics.Errors.WithLabelValues("assistant_payload").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := r.Context()
	if !h.allowRequest(ctx, sessionID) {
		writeError(w, http.StatusTooManyRequests, "too many requests for this session, slow down")
		return
	}

	if err := h.repo.InsertTurn(ctx, repo.TurnRecord{
		SessionID: sessionID,
		Direction: "incoming",
		Content:   req.Utterance,
	}); err != nil {
		h.logger.Warn("failed logging incoming turn", "error", err)
	}

	var resp dialogue.Response
	turnErr := h.sessions.WithState(sessionID, func(st *dialogue.State) error {
		var err error
		resp, err = h.engine.HandleTurn(input, st)
		return err
	})
	if turnErr != nil {
		h.metrics.Errors.WithLabelValues("dialogue").Inc()
		h.metrics.TurnLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		writeError(w, http.StatusBadRequest, turnErr.Error())
		return
	}

	h.metrics.Turns.WithLabelValues(string(resp.Outcome)).Inc()
	h.metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	if resp.Outcome == dialogue.OutcomeFallback {
		h.metrics.Fallbacks.Inc()
	}

	out := processResponse{
		SessionID:       sessionID,
		Text:            resp.Text,
		Outcome:         string(resp.Outcome),
		Completed:       resp.Completed,
		CompletedIntent: resp.CompletedIntent,
		CompletedSlots:  resp.CompletedSlots,
	}

	if resp.Completed {
		h.metrics.Completions.WithLabelValues(resp.CompletedIntent).Inc()
		result, execErr := h.executor.Execute(ctx, resp.CompletedIntent, resp.CompletedSlots)
		if execErr != nil {
			h.metrics.Errors.WithLabelValues("bank_execute").Inc()
			h.logger.Error("execution failed", "error", execErr, "intent", resp.CompletedIntent)
			out.ExecutionText = "The request could not be completed right now. Please try again later."
		} else {
			out.ExecutionText = result
		}
		if err := h.repo.InsertCompletion(ctx, sessionID, resp.CompletedIntent, resp.CompletedSlots); err != nil {
			h.logger.Warn("failed logging completion", "error", err)
		}
	}

	if err := h.repo.InsertTurn(ctx, repo.TurnRecord{
		SessionID: sessionID,
		Direction: "outgoing",
		Content:   out.Text,
		Intent:    resp.CompletedIntent,
		Outcome:   string(resp.Outcome),
	}); err != nil {
		h.logger.Warn("failed logging outgoing turn", "error", err)
	}

	h.metrics.TurnLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, out)
}

// HandleHealth serves GET /healthz.
func (h *Assistant) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// buildTurnInput converts the wire payload into the engine's typed input.
// A candidate without a confidence field is a structural error: silently
// defaulting it to zero would corrupt the confidence-gated policy.
func buildTurnInput(req processRequest) (nlu.TurnInput, error) {
	in := nlu.TurnInput{Utterance: req.Utterance}
	for i, c := range req.Intents {
		if c.Confidence == nil {
			return nlu.TurnInput{}, fmt.Errorf("intent candidate %d (%q): missing confidence", i, c.Name)
		}
		in.Intents = append(in.Intents, nlu.IntentCandidate{Name: c.Name, Confidence: *c.Confidence})
	}
	if req.Entities == nil {
		// The caller left extraction to us.
		in.Entities = nlu.Extract(req.Utterance)
	} else {
		for _, e := range *req.Entities {
			in.Entities = append(in.Entities, nlu.Entity{
				Kind:       nlu.EntityKind(e.Kind),
				Raw:        e.RawValue,
				Normalized: e.Normalized,
				Position:   e.Position,
			})
		}
	}
	if err := in.Validate(); err != nil {
		return nlu.TurnInput{}, err
	}
	return in, nil
}

func (h *Assistant) allowRequest(ctx context.Context, sessionID string) bool {
	if h.cache == nil || h.rateLimit <= 0 {
		return true
	}
	key := fmt.Sprintf("rl:turn:%s", sessionID)
	client := h.cache.Client()
	res := client.Incr(ctx, key)
	if res.Err() != nil {
		h.logger.Warn("rate limit incr failed", "error", res.Err())
		return true
	}
	if res.Val() == 1 {
		client.Expire(ctx, key, time.Minute)
	}
	return res.Val() <= h.rateLimit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
