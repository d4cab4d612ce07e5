// Package scanner fans detection out across the (game, tier) catalog with
// bounded concurrency and bulkhead isolation: one segment's failure is
// recorded in its batch and never cancels its siblings.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"skinarb/internal/arbitrage"
	"skinarb/internal/domain"
)

// Config bounds a scan cycle.
type Config struct {
	// Concurrency caps the number of in-flight segment scans.
	Concurrency int
	// SegmentTimeout bounds each segment; SegmentTimeout <= 0 leaves the
	// segment bounded only by the global deadline.
	SegmentTimeout time.Duration
	// GlobalTimeout bounds the whole scan. Segments still running when it
	// elapses are reported as timed out, never dropped.
	GlobalTimeout time.Duration
}

// FeeResolver returns the fee model for a game. Resolution typically goes
// through the cached fee-lookup endpoint, so calling it per segment is cheap.
type FeeResolver func(ctx context.Context, game string) (arbitrage.FeeModel, error)

// StaticFees is a FeeResolver that always returns the same model.
func StaticFees(fees arbitrage.FeeModel) FeeResolver {
	return func(context.Context, string) (arbitrage.FeeModel, error) {
		return fees, nil
	}
}

// Scanner orchestrates one scan cycle over a segment catalog.
type Scanner struct {
	source   Source
	detector *arbitrage.Detector
	fees     FeeResolver
	cfg      Config
	logger   *slog.Logger
}

// New validates cfg and creates a Scanner.
func New(source Source, detector *arbitrage.Detector, fees FeeResolver, cfg Config, logger *slog.Logger) (*Scanner, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("scanner: concurrency must be >= 1: %w", domain.ErrInvalidConfig)
	}
	if fees == nil {
		return nil, fmt.Errorf("scanner: fee resolver is required: %w", domain.ErrInvalidConfig)
	}
	return &Scanner{
		source:   source,
		detector: detector,
		fees:     fees,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scanner")),
	}, nil
}

// Scan runs one cycle over segments and returns a report with one terminal
// batch per segment. The call returns once every segment is terminal or the
// global timeout elapses, whichever comes first.
func (s *Scanner) Scan(ctx context.Context, segments []domain.Segment) (domain.ScanReport, error) {
	report := domain.ScanReport{
		BatchID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	if len(segments) == 0 {
		report.CompletedAt = time.Now().UTC()
		return report, nil
	}

	scanCtx := ctx
	if s.cfg.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.cfg.GlobalTimeout)
		defer cancel()
	}

	var (
		mu       sync.Mutex
		batches  = make([]domain.ScanBatch, len(segments))
		terminal = make([]bool, len(segments))
	)
	freeze := func(i int, b domain.ScanBatch) {
		mu.Lock()
		if !terminal[i] {
			batches[i] = b
			terminal[i] = true
		}
		mu.Unlock()
	}

	// Channel semaphore bounds in-flight segment scans.
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, seg := range segments {
		wg.Add(1)
		go func(i int, seg domain.Segment) {
			defer wg.Done()

			started := time.Now().UTC()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-scanCtx.Done():
				freeze(i, domain.ScanBatch{
					SegmentID:   seg.ID(),
					Err:         s.terminalErr(ctx, seg),
					StartedAt:   started,
					CompletedAt: time.Now().UTC(),
				})
				return
			}

			segCtx := scanCtx
			if s.cfg.SegmentTimeout > 0 {
				var cancel context.CancelFunc
				segCtx, cancel = context.WithTimeout(scanCtx, s.cfg.SegmentTimeout)
				defer cancel()
			}

			opps, err := s.scanSegment(segCtx, seg)
			if err != nil {
				err = s.classify(ctx, scanCtx, segCtx, seg, err)
			}
			freeze(i, domain.ScanBatch{
				SegmentID:     seg.ID(),
				Opportunities: opps,
				Err:           err,
				StartedAt:     started,
				CompletedAt:   time.Now().UTC(),
			})
		}(i, seg)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-scanCtx.Done():
		// Global deadline (or caller cancellation). Freeze whatever has not
		// reached a terminal state; stragglers see the frozen slot and drop
		// their late result.
		now := time.Now().UTC()
		for i, seg := range segments {
			freeze(i, domain.ScanBatch{
				SegmentID:   seg.ID(),
				Err:         s.terminalErr(ctx, seg),
				StartedAt:   report.StartedAt,
				CompletedAt: now,
			})
		}
	}

	mu.Lock()
	report.Batches = append(report.Batches, batches...)
	mu.Unlock()
	report.CompletedAt = time.Now().UTC()

	failed := len(report.Failed())
	s.logger.Info("scan cycle complete",
		slog.String("batch_id", report.BatchID),
		slog.Int("segments", len(segments)),
		slog.Int("failed", failed),
		slog.Int("opportunities", len(report.Opportunities())),
		slog.Duration("duration", report.CompletedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// scanSegment fetches the segment's snapshot pairs and runs detection on
// each. Opportunities are ranked within the batch.
func (s *Scanner) scanSegment(ctx context.Context, seg domain.Segment) ([]domain.Opportunity, error) {
	fees, err := s.fees(ctx, seg.Game)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve fees %s: %w", seg.Game, err)
	}

	pairs, err := s.source.Pairs(ctx, seg)
	if err != nil {
		return nil, err
	}

	var opps []domain.Opportunity
	for _, pair := range pairs {
		res := s.detector.Detect(pair.Buy, pair.Sell, fees)
		if !res.OK {
			s.logger.Debug("candidate rejected",
				slog.String("segment", seg.ID()),
				slog.String("title", pair.Buy.Title),
				slog.String("reason", res.Reason),
			)
			continue
		}
		opps = append(opps, res.Opportunity)
	}
	domain.SortOpportunities(opps)
	return opps, nil
}

// classify distinguishes caller cancellation from segment/global timeouts;
// anything else is the segment's own failure and passes through.
func (s *Scanner) classify(caller, scan, segment context.Context, seg domain.Segment, err error) error {
	if errors.Is(caller.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", seg.ID(), domain.ErrSegmentCanceled)
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(segment.Err(), context.DeadlineExceeded) ||
		errors.Is(scan.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", seg.ID(), domain.ErrSegmentTimeout)
	}
	return err
}

// terminalErr is the error recorded for a segment that never got to run (or
// finish) before the scan context closed.
func (s *Scanner) terminalErr(caller context.Context, seg domain.Segment) error {
	if errors.Is(caller.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", seg.ID(), domain.ErrSegmentCanceled)
	}
	return fmt.Errorf("%s: %w", seg.ID(), domain.ErrSegmentTimeout)
}
