package dialogue

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"echofi-assistant/internal/nlu"
)

// Config carries the confidence thresholds of the turn policy. The switch
// threshold must sit strictly above the acceptance threshold so an in-flight
// intent is harder to displace than to start.
type Config struct {
	AcceptThreshold float64
	SwitchThreshold float64
}

// DefaultConfig returns the tuned threshold defaults.
func DefaultConfig() Config {
	return Config{AcceptThreshold: 0.5, SwitchThreshold: 0.75}
}

// Outcome classifies how a turn was handled.
type Outcome string

const (
	OutcomeElicit    Outcome = "elicit"
	OutcomeCompleted Outcome = "completed"
	OutcomeFallback  Outcome = "fallback"
)

// Response is the outcome of one processed turn. Completed fires exactly
// once per finished frame: the state has already been reset when it is true.
type Response struct {
	Text            string
	Outcome         Outcome
	Completed       bool
	CompletedIntent string
	CompletedSlots  map[string]string
}

// Engine runs the turn state machine. It is a session-independent handle:
// construct one per process and share it read-only, passing each session's
// State in per call. It performs no I/O and never mutates two states
// concurrently as long as callers serialize access per session.
type Engine struct {
	registry *Registry
	fallback *FallbackPolicy
	cfg      Config
	logger   *slog.Logger
}

// NewEngine builds a dialogue engine.
func NewEngine(registry *Registry, fallback *FallbackPolicy, cfg Config, logger *slog.Logger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if fallback == nil {
		fallback = NewFallbackPolicy(nil)
	}
	return &Engine{
		registry: registry,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.With("component", "dialogue"),
	}
}

// HandleTurn processes one turn against the given state. Unknown intents,
// low confidence and missing slots are normal outcomes; the only error is a
// structurally invalid NLU payload.
func (e *Engine) HandleTurn(in nlu.TurnInput, st *State) (Response, error) {
	if err := in.Validate(); err != nil {
		return Response{}, fmt.Errorf("invalid nlu payload: %w", err)
	}

	intent, ok := e.resolveIntent(in, st)
	if !ok {
		return e.fallbackTurn(st), nil
	}

	schema, found := e.registry.Lookup(intent)
	if !found {
		// A recognized intent with no schema cannot be progressed.
		e.logger.Debug("intent has no schema", "intent", intent)
		return e.fallbackTurn(st), nil
	}

	st.FallbackCount = 0
	st.SetIntent(intent)
	e.applyEntities(schema, in.Entities, st)

	if missing := schema.MissingSlots(st.Slots); len(missing) > 0 {
		e.logger.Debug("eliciting slot", "intent", intent, "slot", missing[0].Name)
		return Response{Text: missing[0].Prompt, Outcome: OutcomeElicit}, nil
	}

	filled := st.SlotValues()
	text := schema.Render(filled)
	st.Reset()
	e.logger.Debug("intent completed", "intent", intent)
	return Response{
		Text:            text,
		Outcome:         OutcomeCompleted,
		Completed:       true,
		CompletedIntent: intent,
		CompletedSlots:  filled,
	}, nil
}

// resolveIntent decides which intent this turn belongs to. The second
// return is false when the turn must be routed to fallback.
func (e *Engine) resolveIntent(in nlu.TurnInput, st *State) (string, bool) {
	top, hasTop := in.Top()

	if !st.Active {
		if hasTop && top.Confidence >= e.cfg.AcceptThreshold {
			return top.Name, true
		}
		return "", false
	}

	schema, found := e.registry.Lookup(st.CurrentIntent)
	if !found {
		return "", false
	}

	// Continuity beats switching: a competing intent is only adopted when
	// it clears the higher switch bar and this turn's entities are of no
	// use to the intent already in progress.
	if hasTop && top.Name != st.CurrentIntent && top.Confidence >= e.cfg.SwitchThreshold &&
		!fillsMissingSlot(schema, st.Slots, in.Entities) {
		e.logger.Debug("switching intent", "from", st.CurrentIntent, "to", top.Name, "confidence", top.Confidence)
		return top.Name, true
	}

	if hasTop && top.Confidence >= e.cfg.AcceptThreshold {
		return st.CurrentIntent, true
	}
	if mapsToSlot(schema, in.Entities) {
		return st.CurrentIntent, true
	}
	return "", false
}

func (e *Engine) fallbackTurn(st *State) Response {
	msg := e.fallback.Message(st.FallbackCount)
	st.FallbackCount++
	e.logger.Debug("fallback", "count", st.FallbackCount)
	return Response{Text: msg, Outcome: OutcomeFallback}
}

// applyEntities merges this turn's entities into the state under the given
// schema. Entities are applied in source order so a later occurrence of the
// same kind wins within a turn, and any new value overwrites a stored one
// across turns. Kinds with no slot under this intent are ignored.
func (e *Engine) applyEntities(schema IntentSchema, entities []nlu.Entity, st *State) {
	ordered := make([]nlu.Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	for _, ent := range ordered {
		slot, ok := schema.SlotForKind(ent.Kind)
		if !ok {
			continue
		}
		value := strings.TrimSpace(ent.Value())
		if value == "" {
			continue
		}
		st.Slots[slot.Name] = value
	}
}

// fillsMissingSlot reports whether any entity fills a slot the intent still
// requires.
func fillsMissingSlot(schema IntentSchema, filled map[string]string, entities []nlu.Entity) bool {
	for _, slot := range schema.MissingSlots(filled) {
		for _, ent := range entities {
			if ent.Kind == slot.Kind && strings.TrimSpace(ent.Value()) != "" {
				return true
			}
		}
	}
	return false
}

// mapsToSlot reports whether any entity maps to a slot of the intent at
// all, filled or not. Updates to already-filled slots keep a conversation
// usable even when the classifier is lost.
func mapsToSlot(schema IntentSchema, entities []nlu.Entity) bool {
	for _, ent := range entities {
		if _, ok := schema.SlotForKind(ent.Kind); ok && strings.TrimSpace(ent.Value()) != "" {
			return true
		}
	}
	return false
}
