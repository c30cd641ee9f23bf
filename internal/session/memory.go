package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node development.
// It keeps the serialized form and the TTL semantics of the Redis store so
// the two behave identically, including rotation and expiry edge cases.
type MemoryStore struct {
	seed Seeder
	ttl  time.Duration
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	current string
	data    map[string][]byte
	expiry  map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption is a functional option for configuring the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL overrides the session TTL. Values <= 0 keep the default.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMemoryLogger replaces the store's logger.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the time source, letting tests advance expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an in-memory Store. seed must be non-nil.
func NewMemoryStore(seed Seeder, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		seed:   seed,
		ttl:    DefaultTTL,
		log:    slog.Default(),
		now:    time.Now,
		data:   make(map[string][]byte),
		expiry: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// aliveLocked reports whether id holds an unexpired history. Caller holds mu.
func (s *MemoryStore) aliveLocked(id string) bool {
	deadline, ok := s.expiry[id]
	if !ok {
		return false
	}
	if s.now().After(deadline) {
		delete(s.data, id)
		delete(s.expiry, id)
		return false
	}
	return true
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" && s.aliveLocked(s.current) {
		return s.current, nil
	}
	return s.provisionLocked()
}

func (s *MemoryStore) provisionLocked() (string, error) {
	id := uuid.NewString()
	raw, err := marshalHistory(s.seed())
	if err != nil {
		return "", err
	}
	s.data[id] = raw
	s.expiry[id] = s.now().Add(s.ttl)
	s.current = id
	return id, nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, sessionID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != s.current || !s.aliveLocked(sessionID) {
		return ErrSessionRotated
	}

	h, err := unmarshalHistory(s.data[sessionID])
	if err != nil {
		s.log.Warn("corrupt session history, reseeding", "session_id", sessionID, "error", err)
		h = s.seed()
	}
	h = append(h, entry)

	raw, err := marshalHistory(h)
	if err != nil {
		return err
	}
	s.data[sessionID] = raw
	s.expiry[sessionID] = s.now().Add(s.ttl)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.aliveLocked(sessionID) {
		return s.seed(), nil
	}
	h, err := unmarshalHistory(s.data[sessionID])
	if err != nil {
		s.log.Warn("corrupt session history, returning fresh seed", "session_id", sessionID, "error", err)
		return s.seed(), nil
	}
	return h, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		delete(s.data, s.current)
		delete(s.expiry, s.current)
	}
	return s.provisionLocked()
}
