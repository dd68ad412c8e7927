package session

import (
	"sync"
	"time"

	"github.com/datumcloud/datum-sync/internal/events"
)

// Manager holds the application-level current session. Exactly one
// session is current at any time; replacing it implicitly invalidates
// all scheduled work for the previous one, because every scheduled job
// re-checks that its session is still the current one before running.
type Manager struct {
	bus *events.EventBus

	mu      sync.RWMutex
	current *Session
}

// NewManager creates a session manager.
func NewManager(bus *events.EventBus) *Manager {
	return &Manager{bus: bus}
}

// Current returns the current session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsCurrent reports whether s is the current session.
func (m *Manager) IsCurrent(s *Session) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s != nil && m.current == s
}

// Set replaces the current session.
func (m *Manager) Set(s *Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if m.bus != nil {
		userKey := ""
		if s != nil {
			userKey = s.UserKey()
		}
		m.bus.Publish(&events.SessionChangedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventSessionChanged, Time: time.Now()},
			UserKey:   userKey,
		})
	}
}

// Clear drops the current session if it is still s. Logout uses this so
// a stale logout can never tear down a newer session.
func (m *Manager) Clear(s *Session) {
	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(&events.SessionChangedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventSessionChanged, Time: time.Now()},
		})
	}
}
