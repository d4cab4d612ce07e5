package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"skinarb/internal/arbitrage"
	"skinarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSource serves canned pairs or failures per segment ID.
type stubSource struct {
	pairs map[string][]domain.SnapshotPair
	errs  map[string]error
	// delay stalls every Pairs call; used for timeout tests.
	delay time.Duration

	inFlight atomic.Int64
	maxSeen  atomic.Int64
	calls    atomic.Int64
}

func (s *stubSource) Pairs(ctx context.Context, seg domain.Segment) ([]domain.SnapshotPair, error) {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.errs[seg.ID()]; ok {
		return nil, err
	}
	return s.pairs[seg.ID()], nil
}

func profitablePair(itemKey string, buyPrice, sellPrice int64) domain.SnapshotPair {
	return domain.SnapshotPair{
		Buy: domain.MarketSnapshot{
			ItemKey: itemKey,
			Title:   itemKey,
			Price:   buyPrice,
			Side:    domain.SideBuy,
		},
		Sell: domain.MarketSnapshot{
			ItemKey:       itemKey,
			Title:         itemKey,
			Price:         sellPrice,
			Sales24h:      50,
			AvgDailySales: 25,
			Side:          domain.SideSell,
		},
	}
}

func passAllDetector(minMargin float64) *arbitrage.Detector {
	return arbitrage.NewDetector(arbitrage.DetectorConfig{
		Policy:       arbitrage.StandardPolicy(arbitrage.FilterConfig{}),
		MinMarginPct: minMargin,
	})
}

func newTestScanner(t *testing.T, source Source, cfg Config) *Scanner {
	t.Helper()
	s, err := New(source, passAllDetector(5), StaticFees(arbitrage.FeeModel{SaleFeeBps: 700}), cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewValidation(t *testing.T) {
	src := &stubSource{}
	if _, err := New(src, passAllDetector(5), StaticFees(arbitrage.FeeModel{}), Config{Concurrency: 0}, testLogger()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("zero concurrency: got %v, want ErrInvalidConfig", err)
	}
	if _, err := New(src, passAllDetector(5), nil, Config{Concurrency: 1}, testLogger()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("nil fee resolver: got %v, want ErrInvalidConfig", err)
	}
}

func TestScanEmptyCatalog(t *testing.T) {
	s := newTestScanner(t, &stubSource{}, Config{Concurrency: 2})
	report, err := s.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.BatchID == "" {
		t.Error("report has no batch ID")
	}
	if len(report.Batches) != 0 {
		t.Errorf("got %d batches, want 0", len(report.Batches))
	}
}

func TestScanCollectsAndRanks(t *testing.T) {
	segA := domain.Segment{Game: "csgo", Tier: "covert"}
	segB := domain.Segment{Game: "csgo", Tier: "classified"}

	src := &stubSource{pairs: map[string][]domain.SnapshotPair{
		// Margin ~20.9% on item-low, ~44.9% on item-high.
		segA.ID(): {profitablePair("item-low", 1000, 1300)},
		segB.ID(): {profitablePair("item-high", 1000, 1600)},
	}}

	s := newTestScanner(t, src, Config{Concurrency: 2})
	report, err := s.Scan(context.Background(), []domain.Segment{segA, segB})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(report.Failed()) != 0 {
		t.Fatalf("failed batches: %v", report.Failed())
	}
	opps := report.Opportunities()
	if len(opps) != 2 {
		t.Fatalf("got %d opportunities, want 2", len(opps))
	}
	if opps[0].ItemKey != "item-high" {
		t.Errorf("top opportunity = %q, want the higher margin item-high", opps[0].ItemKey)
	}
}

func TestScanBulkheadIsolation(t *testing.T) {
	segOK := domain.Segment{Game: "csgo", Tier: "covert"}
	segBad := domain.Segment{Game: "csgo", Tier: "classified"}

	cause := fmt.Errorf("api: %w", domain.ErrUpstreamRejected)
	src := &stubSource{
		pairs: map[string][]domain.SnapshotPair{
			segOK.ID(): {profitablePair("item", 1000, 1300)},
		},
		errs: map[string]error{segBad.ID(): cause},
	}

	s := newTestScanner(t, src, Config{Concurrency: 2})
	report, err := s.Scan(context.Background(), []domain.Segment{segBad, segOK})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(report.Batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(report.Batches))
	}
	failed := report.Failed()
	if len(failed) != 1 {
		t.Fatalf("got %d failed batches, want 1", len(failed))
	}
	if failed[0].SegmentID != segBad.ID() {
		t.Errorf("failed segment = %q, want %q", failed[0].SegmentID, segBad.ID())
	}
	if !errors.Is(failed[0].Err, domain.ErrUpstreamRejected) {
		t.Errorf("failed batch error = %v", failed[0].Err)
	}
	// The healthy segment still produced its opportunity.
	if len(report.Opportunities()) != 1 {
		t.Errorf("got %d opportunities, want 1", len(report.Opportunities()))
	}
}

func TestScanConcurrencyBound(t *testing.T) {
	segments := make([]domain.Segment, 8)
	for i := range segments {
		segments[i] = domain.Segment{Game: "csgo", Tier: fmt.Sprintf("tier%d", i)}
	}

	src := &stubSource{delay: 30 * time.Millisecond}
	s := newTestScanner(t, src, Config{Concurrency: 2})

	if _, err := s.Scan(context.Background(), segments); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if max := src.maxSeen.Load(); max > 2 {
		t.Errorf("observed %d concurrent segment scans, limit is 2", max)
	}
	if calls := src.calls.Load(); calls != 8 {
		t.Errorf("source called %d times, want 8", calls)
	}
}

func TestScanSegmentTimeout(t *testing.T) {
	seg := domain.Segment{Game: "csgo", Tier: "covert"}
	src := &stubSource{delay: 200 * time.Millisecond}

	s := newTestScanner(t, src, Config{Concurrency: 1, SegmentTimeout: 20 * time.Millisecond})
	report, err := s.Scan(context.Background(), []domain.Segment{seg})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 {
		t.Fatalf("got %d failed batches, want 1", len(failed))
	}
	if !errors.Is(failed[0].Err, domain.ErrSegmentTimeout) {
		t.Errorf("got %v, want ErrSegmentTimeout", failed[0].Err)
	}
}

func TestScanGlobalTimeoutMarksStragglers(t *testing.T) {
	segments := []domain.Segment{
		{Game: "csgo", Tier: "covert"},
		{Game: "csgo", Tier: "classified"},
		{Game: "rust", Tier: "covert"},
	}
	src := &stubSource{delay: 500 * time.Millisecond}

	// Concurrency 1 guarantees at least two segments never start.
	s := newTestScanner(t, src, Config{Concurrency: 1, GlobalTimeout: 50 * time.Millisecond})
	start := time.Now()
	report, err := s.Scan(context.Background(), segments)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Scan returned after %v, global timeout not enforced", elapsed)
	}

	// Every segment is accounted for and every unfinished one is timed out.
	if len(report.Batches) != len(segments) {
		t.Fatalf("got %d batches, want %d", len(report.Batches), len(segments))
	}
	for _, b := range report.Batches {
		if !errors.Is(b.Err, domain.ErrSegmentTimeout) {
			t.Errorf("segment %s: got %v, want ErrSegmentTimeout", b.SegmentID, b.Err)
		}
	}
}

func TestScanCallerCancellation(t *testing.T) {
	segments := []domain.Segment{
		{Game: "csgo", Tier: "covert"},
		{Game: "csgo", Tier: "classified"},
	}
	src := &stubSource{delay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	s := newTestScanner(t, src, Config{Concurrency: 1})
	report, err := s.Scan(ctx, segments)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(report.Batches) != len(segments) {
		t.Fatalf("got %d batches, want %d", len(report.Batches), len(segments))
	}
	for _, b := range report.Batches {
		if !errors.Is(b.Err, domain.ErrSegmentCanceled) {
			t.Errorf("segment %s: got %v, want ErrSegmentCanceled", b.SegmentID, b.Err)
		}
	}
}

func TestScanFeeResolverFailure(t *testing.T) {
	seg := domain.Segment{Game: "csgo", Tier: "covert"}
	src := &stubSource{pairs: map[string][]domain.SnapshotPair{
		seg.ID(): {profitablePair("item", 1000, 1300)},
	}}

	cause := fmt.Errorf("fees: %w", domain.ErrTransientNetwork)
	fees := func(ctx context.Context, game string) (arbitrage.FeeModel, error) {
		return arbitrage.FeeModel{}, cause
	}

	s, err := New(src, passAllDetector(5), fees, Config{Concurrency: 1}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := s.Scan(context.Background(), []domain.Segment{seg})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || !errors.Is(failed[0].Err, domain.ErrTransientNetwork) {
		t.Errorf("failed = %v, want one batch wrapping the fee error", failed)
	}
}
