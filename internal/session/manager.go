package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager manages session contexts
type Manager struct {
	sessions map[string]*Context
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a new session manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Context),
		logger:   logger,
	}
}

// GetOrCreateSession gets an existing session or creates a new one
func (m *Manager) GetOrCreateSession(sessionID string) *Context {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if exists {
		return session
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[sessionID]; exists {
		return session
	}

	session = NewContext(sessionID)
	m.sessions[sessionID] = session
	m.logger.Debug("session created", zap.String("session", sessionID))

	return session
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(sessionID string) *Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// DeleteSession removes a session and drops its mappers
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %q not found", sessionID)
	}

	session.clear()
	delete(m.sessions, sessionID)
	return nil
}

// PruneIdle removes sessions not accessed within maxIdle and returns how many were removed
func (m *Manager) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.LastAccessed().Before(cutoff) {
			session.clear()
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("pruned idle sessions", zap.Int("count", removed))
	}
	return removed
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes all sessions
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		session.clear()
	}
	m.sessions = make(map[string]*Context)
}
