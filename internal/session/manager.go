package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"echofi-assistant/internal/dialogue"
)

// Manager owns the session-to-state mapping. Each session gets exactly one
// dialogue.State and a lock serializing its turns; states of different
// sessions are fully independent. Idle sessions are evicted after the TTL —
// conversation state never outlives the process.
type Manager struct {
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	state    *dialogue.State
	lastSeen time.Time
}

// NewManager creates a session manager with the given idle TTL.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		ttl:      ttl,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*entry),
	}
}

// WithState runs fn with the session's state while holding that session's
// lock, creating the session on first use. Concurrent turns for the same
// session serialize here; turns for different sessions run in parallel.
func (m *Manager) WithState(id string, fn func(*dialogue.State) error) error {
	e := m.acquire(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	return fn(e.state)
}

// End drops a session and its state.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run evicts idle sessions until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.evictIdle(time.Now()); n > 0 {
				m.logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

func (m *Manager) acquire(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{state: dialogue.NewState(), lastSeen: time.Now()}
		m.sessions[id] = e
	}
	return e
}

func (m *Manager) evictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}
