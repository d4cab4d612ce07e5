package domain

import (
	"fmt"
	"time"
)

// Segment is one (game, tier) slice of the scan catalog, bounded by an
// optional price band in minor units.
type Segment struct {
	Game      string
	Tier      string
	PriceFrom int64
	PriceTo   int64
}

// ID returns the stable identifier used for logging and batch bookkeeping.
func (s Segment) ID() string {
	return fmt.Sprintf("%s/%s", s.Game, s.Tier)
}

// ScanBatch is the terminal result of one segment's scan: either a list of
// opportunities or the error that stopped it. The orchestrator freezes a
// batch exactly once, on completion, timeout or cancellation.
type ScanBatch struct {
	SegmentID     string
	Opportunities []Opportunity
	Err           error
	StartedAt     time.Time
	CompletedAt   time.Time
}

// ScanReport aggregates the batches of one scan cycle. A report with zero
// opportunities and zero failed batches is a clean "nothing qualified" run,
// which callers must present differently from a failed scan.
type ScanReport struct {
	BatchID     string
	Batches     []ScanBatch
	StartedAt   time.Time
	CompletedAt time.Time
}

// Opportunities merges every successful batch and returns the ranked result.
func (r ScanReport) Opportunities() []Opportunity {
	var out []Opportunity
	for _, b := range r.Batches {
		out = append(out, b.Opportunities...)
	}
	SortOpportunities(out)
	return out
}

// Failed returns the batches that ended in an error.
func (r ScanReport) Failed() []ScanBatch {
	var out []ScanBatch
	for _, b := range r.Batches {
		if b.Err != nil {
			out = append(out, b)
		}
	}
	return out
}
