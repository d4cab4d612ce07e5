// Package ratelimit enforces the marketplace's per-endpoint-category request
// quotas with token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"skinarb/internal/domain"
)

// Category groups marketplace endpoints that share a quota.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryFees    Category = "fees"
	CategoryMarket  Category = "market"
	CategoryHistory Category = "history"
	CategoryOther   Category = "other"
)

// Scope separates the authenticated and anonymous quota tables; the
// marketplace grants signed callers higher limits.
type Scope string

const (
	ScopeAuthenticated Scope = "authenticated"
	ScopeAnonymous     Scope = "anonymous"
)

// Quota is the static allowance for one (category, scope) pair: MaxRequests
// per Window, refilled continuously.
type Quota struct {
	MaxRequests int
	Window      time.Duration
}

func (q Quota) valid() bool {
	return q.MaxRequests > 0 && q.Window > 0
}

// Config configures a Limiter. Categories missing from a scope's table fall
// back to that scope's CategoryOther quota, which must be present.
type Config struct {
	Quotas map[Scope]map[Category]Quota
	// Blocking selects the acquire mode: wait for a token (bounded by the
	// caller's context deadline) or fail fast with ErrRateLimitExceeded.
	Blocking bool
}

type bucketKey struct {
	category Category
	scope    Scope
}

// Limiter owns one token bucket per (category, scope) pair. Buckets are
// created lazily; token consumption within a bucket is serialized by
// rate.Limiter itself, so concurrent acquires never over-grant. Only the
// bucket map lookup takes the Limiter mutex — waits happen outside it.
type Limiter struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
}

// New validates cfg and creates a Limiter. Every configured quota must have
// a positive request count and window, and each scope table needs an "other"
// fallback entry.
func New(cfg Config, logger *slog.Logger) (*Limiter, error) {
	for _, scope := range []Scope{ScopeAuthenticated, ScopeAnonymous} {
		if _, ok := cfg.Quotas[scope]; !ok {
			return nil, fmt.Errorf("ratelimit: no quota table for scope %q: %w", scope, domain.ErrInvalidConfig)
		}
	}
	for scope, table := range cfg.Quotas {
		if _, ok := table[CategoryOther]; !ok {
			return nil, fmt.Errorf("ratelimit: scope %q has no %q fallback quota: %w", scope, CategoryOther, domain.ErrInvalidConfig)
		}
		for cat, q := range table {
			if !q.valid() {
				return nil, fmt.Errorf("ratelimit: quota %s/%s has non-positive limit or window: %w", scope, cat, domain.ErrInvalidConfig)
			}
		}
	}

	return &Limiter{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ratelimit")),
		buckets: make(map[bucketKey]*rate.Limiter),
	}, nil
}

// Acquire consumes one token from the (category, scope) bucket. In blocking
// mode it waits until a token is available or ctx is done; in non-blocking
// mode it returns ErrRateLimitExceeded immediately when the bucket is empty.
func (l *Limiter) Acquire(ctx context.Context, category Category, scope Scope) error {
	bucket := l.bucket(category, scope)

	if l.cfg.Blocking {
		if err := bucket.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("ratelimit: %s/%s: %w", category, scope, ctx.Err())
			}
			// Wait refuses up front when the refill cannot complete before
			// the ctx deadline. That is the caller's deadline binding, not a
			// retryable quota rejection.
			if _, ok := ctx.Deadline(); ok {
				return fmt.Errorf("ratelimit: %s/%s: %w", category, scope, context.DeadlineExceeded)
			}
			return fmt.Errorf("ratelimit: %s/%s: %w", category, scope, domain.ErrRateLimitExceeded)
		}
		return nil
	}

	if !bucket.Allow() {
		l.logger.Debug("quota exhausted",
			slog.String("category", string(category)),
			slog.String("scope", string(scope)),
		)
		return fmt.Errorf("ratelimit: %s/%s: %w", category, scope, domain.ErrRateLimitExceeded)
	}
	return nil
}

// bucket returns the token bucket for the pair, creating it on first use.
func (l *Limiter) bucket(category Category, scope Scope) *rate.Limiter {
	key := bucketKey{category: category, scope: scope}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	q := l.quota(category, scope)
	// Refill continuously at MaxRequests/Window with a burst of the full
	// window allowance.
	b := rate.NewLimiter(rate.Limit(float64(q.MaxRequests)/q.Window.Seconds()), q.MaxRequests)
	l.buckets[key] = b
	return b
}

// quota resolves the configured quota for the pair, falling back to the
// scope's "other" entry for unknown categories, and to the anonymous table
// for unknown scopes.
func (l *Limiter) quota(category Category, scope Scope) Quota {
	table, ok := l.cfg.Quotas[scope]
	if !ok {
		table = l.cfg.Quotas[ScopeAnonymous]
	}
	if q, ok := table[category]; ok {
		return q
	}
	return table[CategoryOther]
}
