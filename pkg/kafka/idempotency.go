package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records processed event IDs. Implementations must be safe
// for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore keeps event IDs in process memory for a single
// consumer replica. An entry expires ttl after it was added. Expired entries
// are dropped when looked up and swept on every Add.
type MemoryIdempotencyStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.expires[eventID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(deadline) {
		delete(s.expires, eventID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, deadline := range s.expires {
		if !now.Before(deadline) {
			delete(s.expires, id)
		}
	}
	s.expires[eventID] = now.Add(s.ttl)
	return nil
}

// Len returns the number of entries, including expired ones not yet removed.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

const idempotencyKeyPrefix = "catalogue:event:"

// RedisIdempotencyStore shares processed event IDs across consumer replicas.
// Keys expire through Redis TTLs.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, idempotencyKeyPrefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("record event %s: %w", eventID, err)
	}
	return nil
}

// IdempotentHandler skips events whose EventID the store has already seen.
// An event is recorded only after inner succeeds, so failed events are
// redelivered. A store lookup failure processes the event anyway.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}
		log := logger.With(
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency store lookup failed, processing anyway",
				slog.String("error", err.Error()))
		case seen:
			ConsumerMessagesDuplicate.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "skipping duplicate event",
				slog.String("aggregate_id", event.AggregateID))
			return nil
		}

		if err := inner(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record event ID in idempotency store",
				slog.String("error", err.Error()))
		}
		return nil
	}
}
