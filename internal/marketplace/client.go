// Package marketplace is the REST client for the marketplace API. Every call
// runs the full outbound stack: cache lookup, retry with backoff, per-category
// rate limiting, then a signed HTTP request.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"skinarb/internal/cache"
	"skinarb/internal/crypto"
	"skinarb/internal/domain"
	"skinarb/internal/ratelimit"
	"skinarb/internal/retry"
)

// Endpoint paths. The exact contract (paths, status codes) is owned by the
// marketplace; the client only depends on 200/429/4xx/5xx semantics.
const (
	pathMarketItems = "/exchange/v1/market/items"
	pathLastSales   = "/trade-aggregator/v1/last-sales"
	pathFees        = "/exchange/v1/customized-fees"
	pathUser        = "/account/v1/user"
)

// TTLConfig carries the cache TTL per data class.
type TTLConfig struct {
	MarketItems time.Duration
	LastSales   time.Duration
	Fees        time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	TTLs    TTLConfig
}

// Client talks to the marketplace API. A nil signer downgrades every call to
// the anonymous rate-limit scope; authenticated endpoints then fail upstream
// with 401, surfaced as ErrUpstreamRejected.
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     *crypto.Signer
	limiter    *ratelimit.Limiter
	retrier    *retry.Controller
	cache      *cache.Layer
	logger     *slog.Logger
}

// NewClient assembles the client over its injected collaborators.
func NewClient(cfg Config, signer *crypto.Signer, limiter *ratelimit.Limiter, retrier *retry.Controller, cacheLayer *cache.Layer, logger *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
		limiter:    limiter,
		retrier:    retrier,
		cache:      cacheLayer,
		logger:     logger.With(slog.String("component", "marketplace")),
	}
}

// scope returns the rate-limit scope this client operates under.
func (c *Client) scope() ratelimit.Scope {
	if c.signer != nil {
		return ratelimit.ScopeAuthenticated
	}
	return ratelimit.ScopeAnonymous
}

// MarketItems returns the buy-side listings for a segment, cheapest first.
func (c *Client) MarketItems(ctx context.Context, seg domain.Segment, limit int) ([]domain.MarketSnapshot, error) {
	query := url.Values{}
	query.Set("gameId", seg.Game)
	query.Set("category", seg.Tier)
	query.Set("orderBy", "price")
	query.Set("limit", strconv.Itoa(limit))
	if seg.PriceFrom > 0 {
		query.Set("priceFrom", strconv.FormatInt(seg.PriceFrom, 10))
	}
	if seg.PriceTo > 0 {
		query.Set("priceTo", strconv.FormatInt(seg.PriceTo, 10))
	}

	var resp marketItemsResponse
	if err := c.getJSON(ctx, ratelimit.CategoryMarket, pathMarketItems, query, c.cfg.TTLs.MarketItems, &resp); err != nil {
		return nil, fmt.Errorf("marketplace: market items %s: %w", seg.ID(), err)
	}

	observedAt := time.Now().UTC()
	snaps := make([]domain.MarketSnapshot, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		snaps = append(snaps, obj.toSnapshot(observedAt))
	}
	return snaps, nil
}

// LastSales returns the sell-side snapshot for one item, derived from its
// recent trade history. Items with no recorded sales return ErrNotFound.
func (c *Client) LastSales(ctx context.Context, game, itemKey, title string) (domain.MarketSnapshot, error) {
	query := url.Values{}
	query.Set("gameId", game)
	query.Set("title", title)

	var resp lastSalesResponse
	if err := c.getJSON(ctx, ratelimit.CategoryHistory, pathLastSales, query, c.cfg.TTLs.LastSales, &resp); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("marketplace: last sales %q: %w", title, err)
	}

	snap, ok := resp.toSellSnapshot(itemKey, title, time.Now().UTC())
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("marketplace: last sales %q: %w", title, domain.ErrNotFound)
	}
	return snap, nil
}

// FeeRates returns the sale commission schedule for a game.
func (c *Client) FeeRates(ctx context.Context, game string) (FeeRate, error) {
	query := url.Values{}
	query.Set("gameId", game)

	var resp feeRatesResponse
	if err := c.getJSON(ctx, ratelimit.CategoryFees, pathFees, query, c.cfg.TTLs.Fees, &resp); err != nil {
		return FeeRate{}, fmt.Errorf("marketplace: fee rates %s: %w", game, err)
	}
	return FeeRate{SaleFeeBps: resp.DefaultFeeBps, MinFee: resp.MinFee}, nil
}

// User fetches the authenticated account, verifying the credential works.
// Never cached: it is the canary for signature problems.
func (c *Client) User(ctx context.Context) (User, error) {
	body, err := c.do(ctx, ratelimit.CategoryAuth, http.MethodGet, pathUser, nil)
	if err != nil {
		return User{}, fmt.Errorf("marketplace: user: %w", err)
	}

	var resp userResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return User{}, fmt.Errorf("marketplace: user: %w: %v", domain.ErrDeserialization, err)
	}
	return User{ID: resp.ID, Username: resp.Username, Balance: resp.Balance}, nil
}

// InvalidateFees drops cached fee schedules, forcing the next lookup to hit
// the API. Called when a fee change notification arrives out of band.
func (c *Client) InvalidateFees(ctx context.Context) error {
	prefix := string(domain.NewFingerprint(http.MethodGet, pathFees, nil))
	return c.cache.InvalidatePrefix(ctx, prefix)
}

// getJSON performs a cached GET: cache layer first, then the retried,
// rate-limited, signed request on a miss. Decoding failures are
// non-retryable deserialization errors.
func (c *Client) getJSON(ctx context.Context, category ratelimit.Category, path string, query url.Values, ttl time.Duration, out any) error {
	fp := domain.NewFingerprint(http.MethodGet, path, query)

	payload, err := c.cache.GetOrFetch(ctx, fp, ttl, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, category, http.MethodGet, path, query)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
	}
	return nil
}

// do executes one request through retry → rate limiter → signed HTTP call.
func (c *Client) do(ctx context.Context, category ratelimit.Category, method, path string, query url.Values) ([]byte, error) {
	var body []byte
	err := c.retrier.Execute(ctx, string(category)+" "+path, func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx, category, c.scope()); err != nil {
			return err
		}
		var err error
		body, err = c.roundTrip(ctx, method, path, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// roundTrip is a single signed HTTP exchange with status classification.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	pathWithQuery := path
	if len(query) > 0 {
		pathWithQuery += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+pathWithQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		for k, v := range c.signer.Headers(method, pathWithQuery, "") {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Caller cancellation is not a network fault; let the retry
		// controller see the context error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrTransientNetwork, err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		c.logger.Debug("upstream error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, err
	}
	return payload, nil
}

// classifyStatus maps an HTTP status onto the error taxonomy: 429 and 5xx
// are retryable, any other 4xx is not.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %w", status, domain.ErrRateLimitExceeded)
	case status >= 500:
		return fmt.Errorf("status %d: %w", status, domain.ErrTransientNetwork)
	default:
		return fmt.Errorf("status %d: %w", status, domain.ErrUpstreamRejected)
	}
}
