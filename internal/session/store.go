package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session survives before the sweep removes it.
const DefaultTTL = time.Hour

// Store keeps sessions keyed by id with a secondary index on call id.
// Every method is safe for concurrent use. Returned sessions are copies;
// mutate through Update.
type Store interface {
	Create(ctx context.Context, callID, callerID string) (*Session, error)
	// Get refreshes last activity.
	Get(ctx context.Context, id string) (*Session, error)
	GetByCallID(ctx context.Context, callID string) (*Session, error)
	// Update applies fn to the stored session and commits the result unless fn
	// returns an error. Last activity is refreshed on commit.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	// End and EndByCallID are idempotent.
	End(ctx context.Context, id string) error
	EndByCallID(ctx context.Context, callID string) error
	SweepExpired(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Options configure a store.
type Options struct {
	TTL time.Duration
	// MaxSessions caps live sessions; zero means unbounded.
	MaxSessions int
	Now         func() time.Time
	NewID       func() string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

func commit(prev *Session, fn func(*Session) error, now time.Time) (*Session, error) {
	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// identity is fixed for the life of the session
	next.ID, next.CallID, next.CreatedAt = prev.ID, prev.CallID, prev.CreatedAt
	if !next.ActiveAgent.Known() {
		return nil, ErrUnknownAgent
	}
	next.LastActivity = now
	return next, nil
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
	byCall   map[string]string
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
		byCall:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, callID, callerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if callID != "" {
		if _, ok := m.byCall[callID]; ok {
			return nil, ErrCallInUse
		}
	}
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrCapacityExceeded
	}
	s := newSession(m.opts.NewID(), callID, callerID, m.opts.Now())
	m.sessions[s.ID] = s
	if callID != "" {
		m.byCall[callID] = s.ID
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.LastActivity = m.opts.Now()
	return s.Clone(), nil
}

func (m *MemoryStore) GetByCallID(ctx context.Context, callID string) (*Session, error) {
	m.mu.RLock()
	id, ok := m.byCall[callID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := commit(s, fn, m.opts.Now())
	if err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *MemoryStore) EndByCallID(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byCall[callID]; ok {
		m.removeLocked(id)
	}
	delete(m.byCall, callID)
	return nil
}

func (m *MemoryStore) removeLocked(id string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if s.CallID != "" && m.byCall[s.CallID] == id {
		delete(m.byCall, s.CallID)
	}
}

func (m *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > m.opts.TTL {
			m.removeLocked(id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *MemoryStore) Close() error { return nil }
