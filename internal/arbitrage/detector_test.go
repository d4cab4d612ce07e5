package arbitrage

import (
	"strings"
	"testing"
	"time"

	"skinarb/internal/domain"
)

func liquidPair(buyPrice, sellPrice int64) (domain.MarketSnapshot, domain.MarketSnapshot) {
	buy := domain.MarketSnapshot{
		ItemKey: "ak47-redline-ft",
		Title:   "AK-47 | Redline (Field-Tested)",
		Price:   buyPrice,
		Side:    domain.SideBuy,
	}
	sell := domain.MarketSnapshot{
		ItemKey:       "ak47-redline-ft",
		Title:         "AK-47 | Redline (Field-Tested)",
		Price:         sellPrice,
		Sales24h:      20,
		AvgDailySales: 15,
		Side:          domain.SideSell,
	}
	return buy, sell
}

func testDetector(minMargin float64) *Detector {
	cfg := DetectorConfig{
		Policy: StandardPolicy(FilterConfig{
			BlacklistTerms:   []string{"souvenir", "sticker"},
			MinSales24h:      5,
			MinAvgDailySales: 2,
		}),
		MinMarginPct: minMargin,
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewDetectorWithClock(cfg, func() time.Time { return fixed })
}

func TestDetectProfitable(t *testing.T) {
	// Buy 1000, sell 1300 at 7%: fee 91, net 209, margin 20.9%.
	d := testDetector(10)
	buy, sell := liquidPair(1000, 1300)

	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
	if !res.OK {
		t.Fatalf("rejected: %s", res.Reason)
	}

	opp := res.Opportunity
	if opp.Fee != 91 {
		t.Errorf("Fee = %d, want 91", opp.Fee)
	}
	if opp.NetProfit != 209 {
		t.Errorf("NetProfit = %d, want 209", opp.NetProfit)
	}
	if opp.MarginPct < 20.89 || opp.MarginPct > 20.91 {
		t.Errorf("MarginPct = %.4f, want ~20.9", opp.MarginPct)
	}
	if opp.ID == "" {
		t.Error("opportunity has no ID")
	}
	if opp.ItemKey != buy.ItemKey || opp.BuyPrice != 1000 || opp.SellPrice != 1300 {
		t.Errorf("opportunity fields wrong: %+v", opp)
	}
}

func TestDetectInvalidBuyPrice(t *testing.T) {
	d := testDetector(10)
	buy, sell := liquidPair(0, 1300)

	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
	if res.OK || res.Reason != ReasonInvalidBuyPrice {
		t.Errorf("got (%v, %q), want rejection with %q", res.OK, res.Reason, ReasonInvalidBuyPrice)
	}
}

func TestDetectUnprofitable(t *testing.T) {
	d := testDetector(10)

	t.Run("sell below buy", func(t *testing.T) {
		buy, sell := liquidPair(1300, 1000)
		res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
		if res.OK || res.Reason != ReasonUnprofitable {
			t.Errorf("got (%v, %q), want %q", res.OK, res.Reason, ReasonUnprofitable)
		}
	})

	t.Run("fee eats the spread", func(t *testing.T) {
		// Spread 50, fee on 1050 at 7% = 74.
		buy, sell := liquidPair(1000, 1050)
		res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
		if res.OK || res.Reason != ReasonUnprofitable {
			t.Errorf("got (%v, %q), want %q", res.OK, res.Reason, ReasonUnprofitable)
		}
	})
}

func TestDetectBelowMargin(t *testing.T) {
	// Net 209 on 1000 is 20.9%; a 25% floor rejects it.
	d := testDetector(25)
	buy, sell := liquidPair(1000, 1300)

	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
	if res.OK {
		t.Fatal("expected rejection below margin floor")
	}
	if !strings.HasPrefix(res.Reason, ReasonBelowMargin) {
		t.Errorf("Reason = %q, want %q prefix", res.Reason, ReasonBelowMargin)
	}
}

func TestDetectBlacklisted(t *testing.T) {
	d := testDetector(10)
	buy, sell := liquidPair(1000, 1300)
	buy.Title = "Souvenir AWP | Safari Mesh"

	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
	if res.OK || res.Reason != ReasonBlacklist {
		t.Errorf("got (%v, %q), want %q", res.OK, res.Reason, ReasonBlacklist)
	}
}

func TestDetectIlliquid(t *testing.T) {
	d := testDetector(10)
	buy, sell := liquidPair(1000, 1300)
	sell.Sales24h = 1

	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700})
	if res.OK || !strings.HasPrefix(res.Reason, ReasonLiquidity) {
		t.Errorf("got (%v, %q), want %q prefix", res.OK, res.Reason, ReasonLiquidity)
	}
}

func TestDetectMinFeeFloor(t *testing.T) {
	d := testDetector(0)
	buy, sell := liquidPair(100, 130)

	// 7% of 130 is 9, but the floor charges 35: net -5.
	res := d.Detect(buy, sell, FeeModel{SaleFeeBps: 700, MinFee: 35})
	if res.OK || res.Reason != ReasonUnprofitable {
		t.Errorf("got (%v, %q), want %q", res.OK, res.Reason, ReasonUnprofitable)
	}
}
