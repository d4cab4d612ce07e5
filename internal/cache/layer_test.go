package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skinarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sharedEntry is one payload in the fake shared tier, with the remaining
// TTL it reports on reads.
type sharedEntry struct {
	payload []byte
	ttl     time.Duration
}

// fakeShared is an in-memory stand-in for the Redis tier.
type fakeShared struct {
	mu      sync.Mutex
	entries map[string]sharedEntry

	getErr error
	setErr error

	gets int
	sets int
}

func newFakeShared() *fakeShared {
	return &fakeShared{entries: make(map[string]sharedEntry)}
}

func (f *fakeShared) put(key string, payload []byte, ttl time.Duration) {
	f.mu.Lock()
	f.entries[key] = sharedEntry{payload: payload, ttl: ttl}
	f.mu.Unlock()
}

func (f *fakeShared) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, 0, f.getErr
	}
	e, ok := f.entries[key]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return e.payload, e.ttl, nil
}

func (f *fakeShared) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = sharedEntry{payload: payload, ttl: ttl}
	return nil
}

func (f *fakeShared) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeShared) DeletePattern(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(f.entries, k)
		}
	}
	return nil
}

var _ domain.SharedCache = (*fakeShared)(nil)

const testFP = domain.RequestFingerprint("GET /exchange/v1/market/items?gameId=csgo")

func TestGetOrFetchPopulatesBothTiers(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	layer := NewLayer(local, shared, testLogger())

	fetches := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches++
		return []byte("payload"), nil
	}

	got, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("payload = %q", got)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetches)
	}
	if _, ok := local.Get(testFP.String()); !ok {
		t.Error("local tier not populated")
	}
	if _, ok := shared.entries[testFP.String()]; !ok {
		t.Error("shared tier not populated")
	}

	// Second call is a local hit: no shared read, no fetch.
	sharedGets := shared.gets
	if _, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch); err != nil {
		t.Fatalf("GetOrFetch (hit): %v", err)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d after local hit, want 1", fetches)
	}
	if shared.gets != sharedGets {
		t.Error("local hit should not consult the shared tier")
	}
}

func TestGetOrFetchPromotesSharedHit(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	shared.put(testFP.String(), []byte("warm"), time.Hour)
	layer := NewLayer(local, shared, testLogger())

	fetch := func(ctx context.Context) ([]byte, error) {
		t.Fatal("fetch should not run when the shared tier has the payload")
		return nil, nil
	}

	got, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if string(got) != "warm" {
		t.Errorf("payload = %q, want warm", got)
	}
	if _, ok := local.Get(testFP.String()); !ok {
		t.Error("shared hit was not promoted to the local tier")
	}
}

func TestGetOrFetchPromotionBoundedBySharedTTL(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	// The shared entry expires in 10s; a promotion must not hold it locally
	// for the caller's full minute.
	shared.put(testFP.String(), []byte("warm"), 10*time.Second)
	layer := NewLayer(local, shared, testLogger())

	fetches := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches++
		return []byte("fresh"), nil
	}

	got, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if string(got) != "warm" || fetches != 0 {
		t.Fatalf("payload = %q, fetches = %d; want the promoted shared entry", got, fetches)
	}

	// Past the shared entry's lifetime the local copy is gone too.
	clock.Advance(11 * time.Second)
	delete(shared.entries, testFP.String())

	got, err = layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch after expiry: %v", err)
	}
	if string(got) != "fresh" || fetches != 1 {
		t.Errorf("payload = %q, fetches = %d; want one refetch", got, fetches)
	}
}

func TestGetOrFetchSingleflight(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	layer := NewLayer(local, nil, testLogger())

	var fetches atomic.Int64
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches.Add(1)
		<-release
		return []byte("payload"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
		}(i)
	}

	// Let every caller reach the group before the flight completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1 shared flight", n)
	}
}

func TestGetOrFetchFailurePropagatesAndCachesNothing(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	layer := NewLayer(local, shared, testLogger())

	cause := fmt.Errorf("api: %w", domain.ErrTransientNetwork)
	fetches := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches++
		return nil, cause
	}

	if _, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch); !errors.Is(err, domain.ErrTransientNetwork) {
		t.Fatalf("got %v, want the fetch error", err)
	}
	if _, ok := local.Get(testFP.String()); ok {
		t.Error("failed fetch must not populate the local tier")
	}
	if len(shared.entries) != 0 {
		t.Error("failed fetch must not populate the shared tier")
	}

	// The next call fetches again rather than serving a poisoned entry.
	if _, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch); err == nil {
		t.Fatal("expected second fetch to fail too")
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
}

func TestGetOrFetchDegradesOnSharedFailure(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	shared.getErr = errors.New("connection refused")
	shared.setErr = errors.New("connection refused")
	layer := NewLayer(local, shared, testLogger())

	fetch := func(ctx context.Context) ([]byte, error) {
		return []byte("payload"), nil
	}

	got, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch with broken shared tier: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("payload = %q", got)
	}
}

func TestGetOrFetchExpiredIsMiss(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	layer := NewLayer(local, nil, testLogger())

	fetches := 0
	fetch := func(ctx context.Context) ([]byte, error) {
		fetches++
		return []byte(fmt.Sprintf("v%d", fetches)), nil
	}

	if _, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	clock.Advance(2 * time.Minute)

	got, err := layer.GetOrFetch(context.Background(), testFP, time.Minute, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch after expiry: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("payload = %q, want the refetched v2", got)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
}

func TestInvalidate(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	layer := NewLayer(local, shared, testLogger())

	local.Set(testFP.String(), []byte("v"), time.Minute)
	shared.put(testFP.String(), []byte("v"), time.Minute)

	if err := layer.Invalidate(context.Background(), testFP); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := local.Get(testFP.String()); ok {
		t.Error("local entry survived Invalidate")
	}
	if _, ok := shared.entries[testFP.String()]; ok {
		t.Error("shared entry survived Invalidate")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	clock := newFakeClock()
	local := NewLocalWithClock(clock.Now)
	shared := newFakeShared()
	layer := NewLayer(local, shared, testLogger())

	keep := "GET /exchange/v1/market/items"
	drop1 := "GET /exchange/v1/customized-fees?gameid=csgo"
	drop2 := "GET /exchange/v1/customized-fees?gameid=rust"
	for _, k := range []string{keep, drop1, drop2} {
		local.Set(k, []byte("v"), time.Minute)
		shared.put(k, []byte("v"), time.Minute)
	}

	if err := layer.InvalidatePrefix(context.Background(), "GET /exchange/v1/customized-fees"); err != nil {
		t.Fatalf("InvalidatePrefix: %v", err)
	}

	if _, ok := local.Get(keep); !ok {
		t.Error("unrelated local entry removed")
	}
	if _, ok := local.Get(drop1); ok {
		t.Error("prefixed local entry survived")
	}
	if _, ok := shared.entries[drop2]; ok {
		t.Error("prefixed shared entry survived")
	}
}
