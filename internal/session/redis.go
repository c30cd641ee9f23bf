package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "facedancer:session:"

// RedisOption is a functional option for configuring the RedisStore.
type RedisOption func(*RedisStore)

// WithTTL overrides the session TTL. Values <= 0 keep the default.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger replaces the store's logger.
func WithLogger(l *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.log = l
		}
	}
}

// RedisStore is the production Store, persisting each history as a JSON array
// under a TTL'd key. Rotation safety comes from the keyspace itself: Reset
// deletes the key, and appends write with SET XX so a write against a deleted
// or expired key fails instead of resurrecting it.
type RedisStore struct {
	client *redis.Client
	seed   Seeder
	ttl    time.Duration
	log    *slog.Logger

	mu      sync.Mutex
	current string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Store on the given Redis client. seed must be
// non-nil; it is invoked for every freshly provisioned session.
func NewRedisStore(client *redis.Client, seed Seeder, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: redis client must not be nil")
	}
	if seed == nil {
		return nil, errors.New("session: seeder must not be nil")
	}
	s := &RedisStore{
		client: client,
		seed:   seed,
		ttl:    DefaultTTL,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *RedisStore) key(id string) string { return keyPrefix + id }

// GetOrCreate implements Store.
func (s *RedisStore) GetOrCreate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		n, err := s.client.Exists(ctx, s.key(s.current)).Result()
		if err != nil {
			return "", fmt.Errorf("session: check existing: %w", err)
		}
		if n == 1 {
			return s.current, nil
		}
		s.log.Info("session expired, provisioning new", "old_session_id", s.current)
	}
	return s.provisionLocked(ctx)
}

// provisionLocked creates and persists a fresh seeded session. Caller holds mu.
func (s *RedisStore) provisionLocked(ctx context.Context) (string, error) {
	id := uuid.NewString()
	raw, err := marshalHistory(s.seed())
	if err != nil {
		return "", fmt.Errorf("session: marshal seed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("session: persist seed: %w", err)
	}
	s.current = id
	return id, nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if sessionID != current {
		return ErrSessionRotated
	}

	key := s.key(sessionID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrSessionRotated
	}
	if err != nil {
		return fmt.Errorf("session: load for append: %w", err)
	}

	h, err := unmarshalHistory(raw)
	if err != nil {
		s.log.Warn("corrupt session history, reseeding", "session_id", sessionID, "error", err)
		h = s.seed()
	}
	h = append(h, entry)

	out, err := marshalHistory(h)
	if err != nil {
		return fmt.Errorf("session: marshal history: %w", err)
	}
	ok, err := s.client.SetXX(ctx, key, out, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("session: persist append: %w", err)
	}
	if !ok {
		// Key vanished between read and write; the session rotated under us.
		return ErrSessionRotated
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (History, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.seed(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	h, err := unmarshalHistory(raw)
	if err != nil {
		s.log.Warn("corrupt session history, returning fresh seed", "session_id", sessionID, "error", err)
		return s.seed(), nil
	}
	return h, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" {
		if err := s.client.Del(ctx, s.key(s.current)).Err(); err != nil {
			s.log.Warn("delete superseded session", "session_id", s.current, "error", err)
		}
	}
	return s.provisionLocked(ctx)
}
