package portfolio

import (
	"math"
	"reflect"
	"testing"
)

const tolerance = 1e-6

func newTestPortfolio() *Portfolio {
	return New([]string{"AAPL", "MSFT"}, 100000.0, 0.5)
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	diff := math.Abs(got - want)
	limit := tolerance
	if want != 0 {
		limit = tolerance * math.Abs(want)
	}
	if diff > limit {
		t.Errorf("%s: got %v want %v", name, got, want)
	}
}

func TestApplyLongBuyBasic(t *testing.T) {
	p := newTestPortfolio()

	executed := p.ApplyLongBuy("AAPL", 100, 50.0)
	if executed != 100 {
		t.Fatalf("executed quantity: got %d want 100", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Long != 100 {
		t.Errorf("long shares: got %d want 100", pos.Long)
	}
	approx(t, "long cost basis", pos.LongCostBasis, 50.0)
	approx(t, "cash", snap.Cash, 95000.0)
}

func TestApplyLongBuyPartialFillWhenInsufficientCash(t *testing.T) {
	p := New([]string{"AAPL"}, 120.0, 0.5)

	// 请求 10 股 * $20 = $200，现金只有 $120，最多成交 6 股
	executed := p.ApplyLongBuy("AAPL", 10, 20.0)
	if executed != 6 {
		t.Fatalf("executed quantity: got %d want 6", executed)
	}

	snap := p.Snapshot()
	if snap.Positions["AAPL"].Long != 6 {
		t.Errorf("long shares: got %d want 6", snap.Positions["AAPL"].Long)
	}
	approx(t, "cash", snap.Cash, 0.0)
}

func TestApplyLongBuyZeroPriceNoFill(t *testing.T) {
	p := New([]string{"AAPL"}, 0.0, 0.5)

	if executed := p.ApplyLongBuy("AAPL", 10, -5.0); executed != 0 {
		t.Fatalf("executed quantity: got %d want 0", executed)
	}
}

func TestApplyLongBuyWeightedCostBasis(t *testing.T) {
	p := newTestPortfolio()

	p.ApplyLongBuy("AAPL", 100, 50.0)
	p.ApplyLongBuy("AAPL", 100, 60.0)

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Long != 200 {
		t.Fatalf("long shares: got %d want 200", pos.Long)
	}
	approx(t, "weighted cost basis", pos.LongCostBasis, 55.0)
}

func TestApplyLongSellRealizedGainAndCostBasisReset(t *testing.T) {
	p := newTestPortfolio()

	p.ApplyLongBuy("AAPL", 100, 50.0)
	executed := p.ApplyLongSell("AAPL", 100, 60.0)
	if executed != 100 {
		t.Fatalf("executed quantity: got %d want 100", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Long != 0 {
		t.Errorf("long shares: got %d want 0", pos.Long)
	}
	approx(t, "cost basis reset", pos.LongCostBasis, 0.0)
	approx(t, "realized gain", snap.RealizedGains["AAPL"].Long, 1000.0)
	// 100000 - 5000 + 6000
	approx(t, "cash", snap.Cash, 101000.0)
}

func TestApplyLongSellClampsToOwned(t *testing.T) {
	p := New([]string{"AAPL"}, 10000.0, 0.5)

	p.ApplyLongBuy("AAPL", 10, 100.0)
	executed := p.ApplyLongSell("AAPL", 20, 100.0)
	if executed != 10 {
		t.Fatalf("executed quantity: got %d want 10", executed)
	}
	if p.Snapshot().Positions["AAPL"].Long != 0 {
		t.Errorf("long shares should be fully closed")
	}
}

func TestApplyShortOpenBasic(t *testing.T) {
	p := newTestPortfolio()

	// 做空 100 股 @ $30，保证金 50%：卖出所得 3000，冻结 1500
	executed := p.ApplyShortOpen("MSFT", 100, 30.0)
	if executed != 100 {
		t.Fatalf("executed quantity: got %d want 100", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["MSFT"]
	if pos.Short != 100 {
		t.Errorf("short shares: got %d want 100", pos.Short)
	}
	approx(t, "short cost basis", pos.ShortCostBasis, 30.0)
	approx(t, "short margin used", pos.ShortMarginUsed, 1500.0)
	approx(t, "portfolio margin used", snap.MarginUsed, 1500.0)
	approx(t, "cash", snap.Cash, 101500.0)
}

func TestApplyShortOpenPartialWhenInsufficientMarginCash(t *testing.T) {
	p := New([]string{"AAPL"}, 200.0, 0.5)

	// price=100，每股保证金 50，现金 200 → 最多 4 股
	executed := p.ApplyShortOpen("AAPL", 10, 100.0)
	if executed != 4 {
		t.Fatalf("executed quantity: got %d want 4", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Short != 4 {
		t.Errorf("short shares: got %d want 4", pos.Short)
	}
	approx(t, "short margin used", pos.ShortMarginUsed, 200.0)
	// 现金: +卖出所得 400 - 保证金 200 = 400
	approx(t, "cash", snap.Cash, 400.0)
}

func TestApplyShortOpenUnlimitedWhenMarginZero(t *testing.T) {
	// 保证金比例为 0 时可行性检查退化，按请求数量全额成交
	p := New([]string{"AAPL"}, 100.0, 0.0)

	executed := p.ApplyShortOpen("AAPL", 1000, 50.0)
	if executed != 1000 {
		t.Fatalf("executed quantity: got %d want 1000", executed)
	}

	snap := p.Snapshot()
	approx(t, "margin used", snap.MarginUsed, 0.0)
	approx(t, "cash", snap.Cash, 100.0+50000.0)
}

func TestApplyShortCoverRealizedGainAndProportionalMarginRelease(t *testing.T) {
	p := newTestPortfolio()

	p.ApplyShortOpen("AAPL", 100, 50.0)
	pre := p.Snapshot()
	preMargin := pre.Positions["AAPL"].ShortMarginUsed

	executed := p.ApplyShortCover("AAPL", 40, 40.0)
	if executed != 40 {
		t.Fatalf("executed quantity: got %d want 40", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	approx(t, "realized short gain", snap.RealizedGains["AAPL"].Short, 400.0)

	released := 0.4 * preMargin
	approx(t, "position margin used", pos.ShortMarginUsed, preMargin-released)
	approx(t, "portfolio margin used", snap.MarginUsed, preMargin-released)
	approx(t, "cash", snap.Cash, pre.Cash+released-1600.0)
}

func TestApplyShortCoverClampsToExisting(t *testing.T) {
	p := New([]string{"AAPL"}, 10000.0, 0.5)

	p.ApplyShortOpen("AAPL", 5, 100.0)
	executed := p.ApplyShortCover("AAPL", 10, 100.0)
	if executed != 5 {
		t.Fatalf("executed quantity: got %d want 5", executed)
	}

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Short != 0 {
		t.Errorf("short shares: got %d want 0", pos.Short)
	}
	approx(t, "short cost basis reset", pos.ShortCostBasis, 0.0)
	approx(t, "short margin reset", pos.ShortMarginUsed, 0.0)
}

func TestNonPositiveQuantityIsNoOp(t *testing.T) {
	p := newTestPortfolio()
	p.ApplyLongBuy("AAPL", 10, 50.0)
	p.ApplyShortOpen("MSFT", 10, 30.0)
	before := p.Snapshot()

	for _, quantity := range []int{0, -5} {
		if executed := p.ApplyLongBuy("AAPL", quantity, 50.0); executed != 0 {
			t.Errorf("ApplyLongBuy(%d) executed %d", quantity, executed)
		}
		if executed := p.ApplyLongSell("AAPL", quantity, 50.0); executed != 0 {
			t.Errorf("ApplyLongSell(%d) executed %d", quantity, executed)
		}
		if executed := p.ApplyShortOpen("MSFT", quantity, 30.0); executed != 0 {
			t.Errorf("ApplyShortOpen(%d) executed %d", quantity, executed)
		}
		if executed := p.ApplyShortCover("MSFT", quantity, 30.0); executed != 0 {
			t.Errorf("ApplyShortCover(%d) executed %d", quantity, executed)
		}
	}

	after := p.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("snapshot changed by no-op operations:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRoundTripYieldsZeroGainAndRestoresCash(t *testing.T) {
	p := newTestPortfolio()
	initialCash := p.Cash()

	p.ApplyLongBuy("AAPL", 50, 80.0)
	p.ApplyLongSell("AAPL", 50, 80.0)

	snap := p.Snapshot()
	approx(t, "realized gain", snap.RealizedGains["AAPL"].Long, 0.0)
	approx(t, "cash restored", snap.Cash, initialCash)
}

func TestCashConservationAcrossLongCycle(t *testing.T) {
	p := newTestPortfolio()
	cashBefore := p.Cash()

	buys := [][2]float64{{30, 50.0}, {20, 55.0}}
	sells := [][2]float64{{25, 60.0}, {25, 52.0}}

	var totalCost, totalProceeds float64
	for _, b := range buys {
		executed := p.ApplyLongBuy("AAPL", int(b[0]), b[1])
		totalCost += float64(executed) * b[1]
	}
	for _, s := range sells {
		executed := p.ApplyLongSell("AAPL", int(s[0]), s[1])
		totalProceeds += float64(executed) * s[1]
	}

	approx(t, "cash conservation", p.Cash(), cashBefore-totalCost+totalProceeds)
}

func TestMarginUsedEqualsSumOfPositions(t *testing.T) {
	p := newTestPortfolio()

	steps := []func(){
		func() { p.ApplyShortOpen("AAPL", 100, 50.0) },
		func() { p.ApplyShortOpen("MSFT", 40, 30.0) },
		func() { p.ApplyShortCover("AAPL", 30, 45.0) },
		func() { p.ApplyShortOpen("AAPL", 10, 55.0) },
		func() { p.ApplyShortCover("MSFT", 40, 35.0) },
	}

	for i, step := range steps {
		step()
		snap := p.Snapshot()
		var sum float64
		for _, pos := range snap.Positions {
			sum += pos.ShortMarginUsed
		}
		if math.Abs(snap.MarginUsed-sum) > tolerance {
			t.Fatalf("step %d: margin used %v != sum of positions %v", i, snap.MarginUsed, sum)
		}
	}
}

func TestLongAndShortLegsAreIndependent(t *testing.T) {
	p := newTestPortfolio()

	p.ApplyLongBuy("AAPL", 100, 50.0)
	p.ApplyShortOpen("AAPL", 60, 55.0)

	snap := p.Snapshot()
	pos := snap.Positions["AAPL"]
	if pos.Long != 100 || pos.Short != 60 {
		t.Errorf("expected simultaneous legs, got long=%d short=%d", pos.Long, pos.Short)
	}
	approx(t, "long cost basis", pos.LongCostBasis, 50.0)
	approx(t, "short cost basis", pos.ShortCostBasis, 55.0)
}

func TestSnapshotIsDetachedFromPortfolio(t *testing.T) {
	p := newTestPortfolio()
	snap := p.Snapshot()

	snap.Positions["AAPL"] = PositionState{Long: 9999}
	snap.RealizedGains["AAPL"] = RealizedGains{Long: 9999}

	fresh := p.Snapshot()
	if fresh.Positions["AAPL"].Long != 0 {
		t.Errorf("mutating a snapshot must not affect portfolio state")
	}
	if fresh.RealizedGains["AAPL"].Long != 0 {
		t.Errorf("mutating snapshot gains must not affect portfolio state")
	}
}
