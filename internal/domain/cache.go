package domain

import (
	"context"
	"time"
)

// SharedCache is the cross-instance cache tier (Redis in production). A miss
// is reported as ErrNotFound, never as a nil payload.
type SharedCache interface {
	// Get returns the payload and its remaining TTL so callers can bound
	// their own copies by the shared entry's lifetime. A non-positive TTL
	// means the tier could not report one.
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key with the given prefix.
	DeletePattern(ctx context.Context, prefix string) error
}

// OpportunityStore persists detected opportunities across scan cycles.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	InsertBatch(ctx context.Context, batchID string, opps []Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
