// Package app wires dependencies and runs the scanner in the configured
// mode: a one-shot scan or a periodic daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"skinarb/internal/arbitrage"
	"skinarb/internal/config"
	"skinarb/internal/domain"
	"skinarb/internal/scanner"
)

// App is the application root.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates the application from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires dependencies and executes the configured mode until completion
// or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Verify the credential before scanning so signature problems surface
	// as a startup failure, not as per-segment noise.
	if a.cfg.HasCredential() {
		user, err := deps.Client.User(ctx)
		if err != nil {
			return fmt.Errorf("app: credential check: %w", err)
		}
		a.logger.Info("authenticated",
			slog.String("account", user.Username),
			slog.Int64("balance", user.Balance),
		)
	}

	scn, err := a.buildScanner(deps)
	if err != nil {
		return err
	}
	segments := scanner.Catalog(a.cfg.Scan.Games, a.cfg.Scan.Tiers, a.cfg.Scan.PriceFrom, a.cfg.Scan.PriceTo)

	switch a.cfg.Mode {
	case "daemon":
		return a.runDaemon(ctx, deps, scn, segments)
	default:
		return a.runOnce(ctx, deps, scn, segments)
	}
}

// buildScanner assembles the detector, fee resolver and scanner from config.
func (a *App) buildScanner(deps *Dependencies) (*scanner.Scanner, error) {
	detector := arbitrage.NewDetector(arbitrage.DetectorConfig{
		Policy: arbitrage.StandardPolicy(arbitrage.FilterConfig{
			BlacklistTerms:    a.cfg.Filters.BlacklistTerms,
			FloatMin:          a.cfg.Filters.FloatMin,
			FloatMax:          a.cfg.Filters.FloatMax,
			MinSales24h:       a.cfg.Filters.MinSales24h,
			MinAvgDailySales:  a.cfg.Filters.MinAvgDailySales,
			MaxOverpriceRatio: a.cfg.Filters.MaxOverpriceRatio,
		}),
		MinMarginPct: a.cfg.Scan.MinProfitMarginPct,
	})

	fees := scanner.StaticFees(arbitrage.FeeModel{
		SaleFeeBps: a.cfg.Scan.SaleFeeBps,
		MinFee:     a.cfg.Scan.MinFee,
	})
	if a.cfg.Scan.FetchFees {
		client := deps.Client
		fees = func(ctx context.Context, game string) (arbitrage.FeeModel, error) {
			rate, err := client.FeeRates(ctx, game)
			if err != nil {
				return arbitrage.FeeModel{}, err
			}
			return arbitrage.FeeModel{SaleFeeBps: rate.SaleFeeBps, MinFee: rate.MinFee}, nil
		}
	}

	source := scanner.NewMarketSource(deps.Client, a.cfg.Scan.MaxItemsPerSegment)

	return scanner.New(source, detector, fees, scanner.Config{
		Concurrency:    a.cfg.Scan.Concurrency,
		SegmentTimeout: a.cfg.Scan.SegmentTimeout.Duration,
		GlobalTimeout:  a.cfg.Scan.GlobalTimeout.Duration,
	}, a.logger)
}

// runOnce performs a single scan cycle and reports the outcome.
func (a *App) runOnce(ctx context.Context, deps *Dependencies, scn *scanner.Scanner, segments []domain.Segment) error {
	report, err := scn.Scan(ctx, segments)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}

	opps := report.Opportunities()
	for _, opp := range opps {
		a.logger.Info("opportunity",
			slog.String("item", opp.Title),
			slog.Int64("buy", opp.BuyPrice),
			slog.Int64("sell", opp.SellPrice),
			slog.Int64("net_profit", opp.NetProfit),
			slog.Float64("margin_pct", opp.MarginPct),
		)
	}
	if len(opps) == 0 && len(report.Failed()) == 0 {
		a.logger.Info("no opportunities found", slog.String("batch_id", report.BatchID))
	}
	for _, failed := range report.Failed() {
		a.logger.Warn("segment failed",
			slog.String("segment", failed.SegmentID),
			slog.String("error", failed.Err.Error()),
		)
	}

	if deps.Store != nil && len(opps) > 0 {
		if err := deps.Store.InsertBatch(ctx, report.BatchID, opps); err != nil {
			a.logger.Error("persisting opportunities failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// runDaemon scans on a ticker until ctx is cancelled.
func (a *App) runDaemon(ctx context.Context, deps *Dependencies, scn *scanner.Scanner, segments []domain.Segment) error {
	a.logger.Info("daemon starting",
		slog.Duration("interval", a.cfg.Scan.Interval.Duration),
		slog.Int("segments", len(segments)),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Scan.Interval.Duration)
		defer ticker.Stop()

		// Scan immediately on start.
		if err := a.runOnce(ctx, deps, scn, segments); err != nil {
			a.logger.Error("scan cycle failed", slog.String("error", err.Error()))
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.runOnce(ctx, deps, scn, segments); err != nil {
					a.logger.Error("scan cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil // clean shutdown
	}
	return err
}
