package app

import (
	"context"
	"fmt"
	"log/slog"

	"skinarb/internal/cache"
	cacheredis "skinarb/internal/cache/redis"
	"skinarb/internal/config"
	"skinarb/internal/crypto"
	"skinarb/internal/domain"
	"skinarb/internal/marketplace"
	"skinarb/internal/ratelimit"
	"skinarb/internal/retry"
	"skinarb/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Client  *marketplace.Client
	Limiter *ratelimit.Limiter
	Retrier *retry.Controller
	Cache   *cache.Layer
	Local   *cache.Local

	// Store is nil unless the opportunity history store is enabled.
	Store domain.OpportunityStore
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Marketplace credential (optional: anonymous scans work, with
	// lower quotas) ---
	var signer *crypto.Signer
	if cfg.HasCredential() {
		secretKey, err := crypto.LoadSecretKey(crypto.KeyConfig{
			RawSecretKey:     cfg.Marketplace.SecretKey,
			EncryptedKeyPath: cfg.Marketplace.EncryptedKeyPath,
			KeyPassword:      cfg.Marketplace.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: secret key: %w", err)
		}
		signer = crypto.NewSigner(crypto.Credential{
			PublicKey: cfg.Marketplace.PublicKey,
			SecretKey: secretKey,
		})
	}

	// --- Rate limiter ---
	limiter, err := ratelimit.New(ratelimit.Config{
		Blocking: cfg.RateLimit.Blocking,
		Quotas: map[ratelimit.Scope]map[ratelimit.Category]ratelimit.Quota{
			ratelimit.ScopeAuthenticated: quotaTable(cfg.RateLimit.Authenticated),
			ratelimit.ScopeAnonymous:     quotaTable(cfg.RateLimit.Anonymous),
		},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: rate limiter: %w", err)
	}
	deps.Limiter = limiter

	// --- Retry controller ---
	retrier, err := retry.New(retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay.Duration,
		Multiplier:     cfg.Retry.Multiplier,
		JitterFraction: cfg.Retry.JitterFraction,
		TotalTimeout:   cfg.Retry.TotalTimeout.Duration,
		Retryable:      retry.DefaultRetryable(),
		Disabled:       cfg.Retry.Disabled,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: retry controller: %w", err)
	}
	deps.Retrier = retrier

	// --- Cache: local tier always, Redis shared tier when enabled ---
	local := cache.NewLocal()
	deps.Local = local

	var shared domain.SharedCache
	if cfg.Redis.Enabled {
		redisCache, err := cacheredis.New(ctx, cacheredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisCache.Close() })
		shared = redisCache
	}
	deps.Cache = cache.NewLayer(local, shared, logger)

	// --- Marketplace client ---
	deps.Client = marketplace.NewClient(marketplace.Config{
		BaseURL: cfg.Marketplace.BaseURL,
		Timeout: cfg.Marketplace.Timeout.Duration,
		TTLs: marketplace.TTLConfig{
			MarketItems: cfg.Cache.MarketItemsTTL.Duration,
			LastSales:   cfg.Cache.LastSalesTTL.Duration,
			Fees:        cfg.Cache.FeesTTL.Duration,
		},
	}, signer, limiter, retrier, deps.Cache, logger)

	// --- PostgreSQL opportunity history (optional) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Store = postgres.NewOpportunityStore(pgClient.Pool())
	}

	// Proactive expiry sweep for the local tier; stops with ctx.
	if cfg.Cache.SweepInterval.Duration > 0 {
		local.StartSweeper(ctx, cfg.Cache.SweepInterval.Duration)
	}

	return deps, cleanup, nil
}

// quotaTable converts a config scope table into the limiter's shape.
func quotaTable(q config.ScopeQuotas) map[ratelimit.Category]ratelimit.Quota {
	return map[ratelimit.Category]ratelimit.Quota{
		ratelimit.CategoryAuth:    {MaxRequests: q.Auth.MaxRequests, Window: q.Auth.Window.Duration},
		ratelimit.CategoryFees:    {MaxRequests: q.Fees.MaxRequests, Window: q.Fees.Window.Duration},
		ratelimit.CategoryMarket:  {MaxRequests: q.Market.MaxRequests, Window: q.Market.Window.Duration},
		ratelimit.CategoryHistory: {MaxRequests: q.History.MaxRequests, Window: q.History.Window.Duration},
		ratelimit.CategoryOther:   {MaxRequests: q.Other.MaxRequests, Window: q.Other.Window.Duration},
	}
}
