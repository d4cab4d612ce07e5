// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SKINARB_* environment
// variables.
type Config struct {
	Marketplace MarketplaceConfig `toml:"marketplace"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	Retry       RetryConfig       `toml:"retry"`
	Cache       CacheConfig       `toml:"cache"`
	Redis       RedisConfig       `toml:"redis"`
	Filters     FiltersConfig     `toml:"filters"`
	Scan        ScanConfig        `toml:"scan"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// MarketplaceConfig holds the marketplace API endpoint and credentials.
type MarketplaceConfig struct {
	BaseURL          string   `toml:"base_url"`
	PublicKey        string   `toml:"public_key"`
	SecretKey        string   `toml:"secret_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Timeout          duration `toml:"timeout"`
}

// QuotaConfig is one per-category allowance: MaxRequests per Window.
type QuotaConfig struct {
	MaxRequests int      `toml:"max_requests"`
	Window      duration `toml:"window"`
}

// ScopeQuotas is the quota table for one rate-limit scope.
type ScopeQuotas struct {
	Auth    QuotaConfig `toml:"auth"`
	Fees    QuotaConfig `toml:"fees"`
	Market  QuotaConfig `toml:"market"`
	History QuotaConfig `toml:"history"`
	Other   QuotaConfig `toml:"other"`
}

// RateLimitConfig holds both scope tables and the acquire mode.
type RateLimitConfig struct {
	Blocking      bool        `toml:"blocking"`
	Authenticated ScopeQuotas `toml:"authenticated"`
	Anonymous     ScopeQuotas `toml:"anonymous"`
}

// RetryConfig tunes the retry controller.
type RetryConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	BaseDelay      duration `toml:"base_delay"`
	Multiplier     float64  `toml:"multiplier"`
	JitterFraction float64  `toml:"jitter_fraction"`
	TotalTimeout   duration `toml:"total_timeout"`
	Disabled       bool     `toml:"disabled"`
}

// CacheConfig holds the per-data-class TTLs and the local sweep interval.
type CacheConfig struct {
	MarketItemsTTL duration `toml:"market_items_ttl"`
	LastSalesTTL   duration `toml:"last_sales_ttl"`
	FeesTTL        duration `toml:"fees_ttl"`
	SweepInterval  duration `toml:"sweep_interval"`
}

// RedisConfig holds shared cache tier connection parameters. Disabled means
// the scanner runs with the local tier only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// FiltersConfig holds the policy-chain thresholds. These are operator
// policy, not algorithm constants.
type FiltersConfig struct {
	BlacklistTerms    []string `toml:"blacklist_terms"`
	FloatMin          float64  `toml:"float_min"`
	FloatMax          float64  `toml:"float_max"`
	MinSales24h       int      `toml:"min_sales_24h"`
	MinAvgDailySales  float64  `toml:"min_avg_daily_sales"`
	MaxOverpriceRatio float64  `toml:"max_overprice_ratio"`
}

// ScanConfig shapes the catalog and the scan cycle bounds.
type ScanConfig struct {
	Games              []string `toml:"games"`
	Tiers              []string `toml:"tiers"`
	PriceFrom          int64    `toml:"price_from"`
	PriceTo            int64    `toml:"price_to"`
	MaxItemsPerSegment int      `toml:"max_items_per_segment"`
	MinProfitMarginPct float64  `toml:"min_profit_margin_pct"`
	Concurrency        int      `toml:"concurrency"`
	SegmentTimeout     duration `toml:"segment_timeout"`
	GlobalTimeout      duration `toml:"global_timeout"`
	Interval           duration `toml:"interval"` // daemon mode cycle period
	SaleFeeBps         int64    `toml:"sale_fee_bps"`
	MinFee             int64    `toml:"min_fee"`
	FetchFees          bool     `toml:"fetch_fees"` // look fees up per game instead of using sale_fee_bps
}

// PostgresConfig holds the optional opportunity-history store parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("500ms", "1m30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration. Every value here can be
// overridden by the TOML file or environment.
func Defaults() Config {
	return Config{
		Mode:     "scan",
		LogLevel: "info",
		Marketplace: MarketplaceConfig{
			BaseURL: "https://api.marketplace.example",
			Timeout: duration{30 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Blocking: true,
			Authenticated: ScopeQuotas{
				Auth:    QuotaConfig{MaxRequests: 10, Window: duration{time.Minute}},
				Fees:    QuotaConfig{MaxRequests: 30, Window: duration{time.Minute}},
				Market:  QuotaConfig{MaxRequests: 120, Window: duration{time.Minute}},
				History: QuotaConfig{MaxRequests: 60, Window: duration{time.Minute}},
				Other:   QuotaConfig{MaxRequests: 30, Window: duration{time.Minute}},
			},
			Anonymous: ScopeQuotas{
				Auth:    QuotaConfig{MaxRequests: 5, Window: duration{time.Minute}},
				Fees:    QuotaConfig{MaxRequests: 10, Window: duration{time.Minute}},
				Market:  QuotaConfig{MaxRequests: 30, Window: duration{time.Minute}},
				History: QuotaConfig{MaxRequests: 20, Window: duration{time.Minute}},
				Other:   QuotaConfig{MaxRequests: 10, Window: duration{time.Minute}},
			},
		},
		Retry: RetryConfig{
			MaxAttempts:    4,
			BaseDelay:      duration{500 * time.Millisecond},
			Multiplier:     2,
			JitterFraction: 0.2,
			TotalTimeout:   duration{45 * time.Second},
		},
		Cache: CacheConfig{
			MarketItemsTTL: duration{time.Minute},
			LastSalesTTL:   duration{10 * time.Minute},
			FeesTTL:        duration{time.Hour},
			SweepInterval:  duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Filters: FiltersConfig{
			MaxOverpriceRatio: 3,
		},
		Scan: ScanConfig{
			Games:              []string{"csgo"},
			Tiers:              []string{"covert", "classified", "restricted"},
			MaxItemsPerSegment: 100,
			MinProfitMarginPct: 10,
			Concurrency:        4,
			SegmentTimeout:     duration{30 * time.Second},
			GlobalTimeout:      duration{2 * time.Minute},
			Interval:           duration{5 * time.Minute},
			SaleFeeBps:         700,
			FetchFees:          true,
		},
		Postgres: PostgresConfig{
			SSLMode:       "disable",
			PoolMaxConns:  4,
			RunMigrations: true,
		},
	}
}

// Validate checks the configuration for values that would make a component
// constructor fail or a scan misbehave.
func (c *Config) Validate() error {
	switch c.Mode {
	case "scan", "daemon":
	default:
		return fmt.Errorf("config: unknown mode %q (want scan or daemon)", c.Mode)
	}

	if !strings.HasPrefix(c.Marketplace.BaseURL, "http://") && !strings.HasPrefix(c.Marketplace.BaseURL, "https://") {
		return fmt.Errorf("config: marketplace.base_url %q is not an http(s) URL", c.Marketplace.BaseURL)
	}
	if c.Marketplace.Timeout.Duration <= 0 {
		return fmt.Errorf("config: marketplace.timeout must be positive")
	}

	for scope, quotas := range map[string]ScopeQuotas{
		"authenticated": c.RateLimit.Authenticated,
		"anonymous":     c.RateLimit.Anonymous,
	} {
		for name, q := range map[string]QuotaConfig{
			"auth": quotas.Auth, "fees": quotas.Fees, "market": quotas.Market,
			"history": quotas.History, "other": quotas.Other,
		} {
			if q.MaxRequests <= 0 || q.Window.Duration <= 0 {
				return fmt.Errorf("config: ratelimit.%s.%s must have positive max_requests and window", scope, name)
			}
		}
	}

	if !c.Retry.Disabled {
		if c.Retry.MaxAttempts < 1 {
			return fmt.Errorf("config: retry.max_attempts must be >= 1")
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("config: retry.multiplier must be >= 1")
		}
		if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
			return fmt.Errorf("config: retry.jitter_fraction must be in [0, 1)")
		}
	}

	for name, ttl := range map[string]time.Duration{
		"market_items_ttl": c.Cache.MarketItemsTTL.Duration,
		"last_sales_ttl":   c.Cache.LastSalesTTL.Duration,
		"fees_ttl":         c.Cache.FeesTTL.Duration,
	} {
		if ttl <= 0 {
			return fmt.Errorf("config: cache.%s must be positive", name)
		}
	}

	if len(c.Scan.Games) == 0 {
		return fmt.Errorf("config: scan.games must not be empty")
	}
	if len(c.Scan.Tiers) == 0 {
		return fmt.Errorf("config: scan.tiers must not be empty")
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("config: scan.concurrency must be >= 1")
	}
	if c.Scan.MaxItemsPerSegment < 1 {
		return fmt.Errorf("config: scan.max_items_per_segment must be >= 1")
	}
	if c.Scan.MinProfitMarginPct < 0 {
		return fmt.Errorf("config: scan.min_profit_margin_pct must be >= 0")
	}
	if !c.Scan.FetchFees && c.Scan.SaleFeeBps < 0 {
		return fmt.Errorf("config: scan.sale_fee_bps must be >= 0")
	}
	if c.Mode == "daemon" && c.Scan.Interval.Duration <= 0 {
		return fmt.Errorf("config: scan.interval must be positive in daemon mode")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
			return fmt.Errorf("config: postgres requires dsn or host/database/user")
		}
	}

	return nil
}

// HasCredential reports whether a marketplace keypair is configured in any
// form (plain or encrypted file).
func (c *Config) HasCredential() bool {
	return c.Marketplace.PublicKey != "" &&
		(c.Marketplace.SecretKey != "" || c.Marketplace.EncryptedKeyPath != "")
}
