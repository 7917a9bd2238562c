package redis

import (
	"context"
	"time"
)

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard fences duplicate webhook deliveries by event id. CheckAndMark
// returns true when the event was already seen inside the TTL window.
type IdempotencyGuard struct {
	store idempotencyStore
	scope string
	ttl   time.Duration
}

// NewIdempotencyGuard builds a guard for one webhook scope.
func NewIdempotencyGuard(store *Client, scope string, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{store: store, scope: scope, ttl: ttl}
}

// CheckAndMark marks the event id as seen, reporting whether it already was.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), 1, g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete clears the mark so a failed handler can be retried by the sender.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
