package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is the single-process Store backing. Values are cloned on the
// way in and out so callers cannot mutate stored state without PutSession.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	flows    map[string]*Flow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		flows:    make(map[string]*Flow),
	}
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s.Clone(), nil
}

func (m *MemoryStore) PutSession(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return errors.New("session: session ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s.Clone()

	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)

	return nil
}

func (m *MemoryStore) PutFlow(_ context.Context, f *Flow) error {
	if f == nil || f.State == "" {
		return errors.New("session: flow state is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.flows[f.State]; exists {
		return ErrStateCollision
	}

	m.flows[f.State] = f.Clone()

	return nil
}

func (m *MemoryStore) TakeFlow(_ context.Context, state string, now time.Time) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[state]
	if !ok {
		return nil, ErrFlowNotFound
	}

	delete(m.flows, state)

	if f.Expired(now) {
		return nil, ErrFlowExpired
	}

	return f, nil
}

func (m *MemoryStore) DeleteFlow(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.flows, state)

	return nil
}

func (m *MemoryStore) Reap(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for state, f := range m.flows {
		if f.Expired(now) {
			delete(m.flows, state)
			removed++
		}
	}

	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of sessions and flows held. Used by status output
// and tests.
func (m *MemoryStore) Len() (sessions, flows int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions), len(m.flows)
}
