package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/tools"
	"github.com/scholartech/scholargraph/pkg/logging"
)

// SessionHeader carries the stateful session identifier on requests and
// responses.
const SessionHeader = "Mcp-Session-Id"

// Session binds a caller to a long-lived protocol core.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastSeenAt time.Time
	Core       *Core
}

// SessionManager owns the stateful session table. All table operations are
// mutually exclusive.
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	ttl        time.Duration
	max        int
	dispatcher *tools.Dispatcher
	now        func() time.Time
	log        zerolog.Logger
}

// NewSessionManager creates the manager. max <= 0 means unbounded; ttl <= 0
// disables pruning.
func NewSessionManager(dispatcher *tools.Dispatcher, ttl time.Duration, max int) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		ttl:        ttl,
		max:        max,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        logging.GetLogger("server.sessions"),
	}
}

// Prune drops every session idle longer than the TTL. Runs on each inbound
// request before dispatch.
func (m *SessionManager) Prune() {
	if m.ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeenAt) > m.ttl {
			delete(m.sessions, id)
			m.log.Debug().Str("session_id", id).Msg("Session expired")
		}
	}
}

// Create registers a new session, evicting the least recently seen one when
// at capacity. Ties break on the smaller id.
func (m *SessionManager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.max > 0 && len(m.sessions) >= m.max {
		var victim *Session
		for _, s := range m.sessions {
			if victim == nil ||
				s.LastSeenAt.Before(victim.LastSeenAt) ||
				(s.LastSeenAt.Equal(victim.LastSeenAt) && s.ID < victim.ID) {
				victim = s
			}
		}
		if victim != nil {
			delete(m.sessions, victim.ID)
			m.log.Info().Str("session_id", victim.ID).Msg("Session evicted at capacity")
		}
	}

	now := m.now()
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		LastSeenAt: now,
		Core:       NewCore(m.dispatcher),
	}
	m.sessions[s.ID] = s
	m.log.Info().Str("session_id", s.ID).Int("open_sessions", len(m.sessions)).Msg("Session created")
	return s
}

// Touch refreshes a session's last-seen time. Returns nil for unknown ids.
func (m *SessionManager) Touch(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.LastSeenAt = m.now()
	return s
}

// Delete honors a client close by removing the session. Idempotent.
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.log.Info().Str("session_id", id).Msg("Session closed by client")
	return true
}

// Len reports the open-session count.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll tears down every session at shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		delete(m.sessions, id)
	}
}
