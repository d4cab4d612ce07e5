// Package cache is the two-tier response cache: a process-local TTL map in
// front of a shared (Redis) tier, with a singleflight discipline so one
// process never issues duplicate fetches for the same fingerprint.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"skinarb/internal/domain"
)

// Fetcher produces the payload on a cache miss. It is expected to run the
// full outbound stack (retry, rate limiting, signed request).
type Fetcher func(ctx context.Context) ([]byte, error)

// Layer coordinates the two tiers. Shared may be nil, in which case the
// layer runs local-only (single-instance deployments without Redis).
type Layer struct {
	local  *Local
	shared domain.SharedCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewLayer creates a Layer over the given tiers.
func NewLayer(local *Local, shared domain.SharedCache, logger *slog.Logger) *Layer {
	return &Layer{
		local:  local,
		shared: shared,
		logger: logger.With(slog.String("component", "cache")),
	}
}

// GetOrFetch returns the payload for the fingerprint, consulting the local
// tier, then the shared tier, then fetch. A successful fetch populates both
// tiers before returning. Concurrent callers for the same missing
// fingerprint share a single in-flight fetch; a failed fetch propagates to
// every waiter and populates nothing, so the next call fetches again.
func (l *Layer) GetOrFetch(ctx context.Context, fp domain.RequestFingerprint, ttl time.Duration, fetch Fetcher) ([]byte, error) {
	key := fp.String()

	if payload, ok := l.local.Get(key); ok {
		return payload, nil
	}

	payload, err, _ := l.group.Do(key, func() (any, error) {
		// Re-check the local tier: a previous flight may have landed between
		// our miss and joining the group.
		if payload, ok := l.local.Get(key); ok {
			return payload, nil
		}

		if l.shared != nil {
			payload, remaining, err := l.shared.Get(ctx, key)
			switch {
			case err == nil:
				// Bound the promoted copy by the shared entry's remaining
				// lifetime so the local tier never outlives it.
				localTTL := ttl
				if remaining > 0 && remaining < localTTL {
					localTTL = remaining
				}
				l.local.Set(key, payload, localTTL)
				return payload, nil
			case !errors.Is(err, domain.ErrNotFound):
				// A broken shared tier degrades to a miss; the fetch below
				// still serves the caller.
				l.logger.Warn("shared cache read failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}

		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		l.local.Set(key, payload, ttl)
		if l.shared != nil {
			if err := l.shared.Set(ctx, key, payload, ttl); err != nil {
				l.logger.Warn("shared cache write failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.([]byte), nil
}

// Invalidate removes a single fingerprint from both tiers.
func (l *Layer) Invalidate(ctx context.Context, fp domain.RequestFingerprint) error {
	key := fp.String()
	l.local.Delete(key)
	if l.shared != nil {
		if err := l.shared.Delete(ctx, key); err != nil {
			return fmt.Errorf("cache: invalidate %s: %w", key, err)
		}
	}
	return nil
}

// InvalidatePrefix removes every entry whose fingerprint starts with prefix,
// in both tiers. Used when the underlying data class is known to have
// changed (for example after a fee schedule update).
func (l *Layer) InvalidatePrefix(ctx context.Context, prefix string) error {
	l.local.DeletePrefix(prefix)
	if l.shared != nil {
		if err := l.shared.DeletePattern(ctx, prefix); err != nil {
			return fmt.Errorf("cache: invalidate prefix %s: %w", prefix, err)
		}
	}
	return nil
}
