package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skinarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a store backed by the given connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, item_key, title, buy_price, sell_price, fee,
	net_profit, margin_pct, computed_at`

const oppInsert = `
	INSERT INTO opportunities (
		id, batch_id, item_key, title, buy_price, sell_price, fee,
		net_profit, margin_pct, computed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Insert stores a single opportunity with no batch association.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	_, err := s.pool.Exec(ctx, oppInsert,
		opp.ID, nil, opp.ItemKey, opp.Title, opp.BuyPrice, opp.SellPrice,
		opp.Fee, opp.NetProfit, opp.MarginPct, opp.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// InsertBatch stores every opportunity of one scan cycle under its batch ID.
func (s *OpportunityStore) InsertBatch(ctx context.Context, batchID string, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, opp := range opps {
		batch.Queue(oppInsert,
			opp.ID, batchID, opp.ItemKey, opp.Title, opp.BuyPrice, opp.SellPrice,
			opp.Fee, opp.NetProfit, opp.MarginPct, opp.ComputedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range opps {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch %s: %w", batchID, err)
		}
	}
	return nil
}

// ListRecent returns the most recently computed opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := fmt.Sprintf(`SELECT %s FROM opportunities ORDER BY computed_at DESC LIMIT $1`, oppSelectCols)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		if err := rows.Scan(
			&opp.ID, &opp.ItemKey, &opp.Title, &opp.BuyPrice, &opp.SellPrice,
			&opp.Fee, &opp.NetProfit, &opp.MarginPct, &opp.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity row: %w", err)
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes opportunities computed before cutoff and returns the
// number of rows removed.
func (s *OpportunityStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE computed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
