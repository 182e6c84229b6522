package portfolio

import (
	"math"
	"testing"
)

func TestCalculateValueMarksLongsAndShorts(t *testing.T) {
	p := newTestPortfolio()
	p.ApplyLongBuy("AAPL", 100, 50.0)  // cash 95000
	p.ApplyShortOpen("MSFT", 50, 30.0) // cash 95000 + 1500 - 750 = 95750

	prices := map[string]float64{"AAPL": 60.0, "MSFT": 25.0}
	// 95750 + 100*60 - 50*25 = 100500
	approx(t, "total value", CalculateValue(p, prices), 100500.0)
}

func TestComputeExposures(t *testing.T) {
	p := newTestPortfolio()
	p.ApplyLongBuy("AAPL", 100, 50.0)
	p.ApplyShortOpen("MSFT", 50, 30.0)

	prices := map[string]float64{"AAPL": 60.0, "MSFT": 25.0}
	exposures := ComputeExposures(p, prices)

	approx(t, "long exposure", exposures.Long, 6000.0)
	approx(t, "short exposure", exposures.Short, 1250.0)
	approx(t, "gross exposure", exposures.Gross, 7250.0)
	approx(t, "net exposure", exposures.Net, 4750.0)
	approx(t, "long short ratio", exposures.LongShortRatio, 4.8)
}

func TestComputeExposuresRatioInfiniteWithoutShorts(t *testing.T) {
	p := newTestPortfolio()
	p.ApplyLongBuy("AAPL", 10, 50.0)

	exposures := ComputeExposures(p, map[string]float64{"AAPL": 50.0, "MSFT": 30.0})
	if !math.IsInf(exposures.LongShortRatio, 1) {
		t.Errorf("long short ratio: got %v want +Inf", exposures.LongShortRatio)
	}
}

func TestComputeSummary(t *testing.T) {
	p := newTestPortfolio()
	p.ApplyLongBuy("AAPL", 100, 50.0)

	summary := ComputeSummary(p, 105000.0, 100000.0)
	approx(t, "total value", summary.TotalValue, 105000.0)
	approx(t, "return pct", summary.ReturnPct, 5.0)
	approx(t, "cash balance", summary.CashBalance, 95000.0)
	approx(t, "position value", summary.TotalPositionValue, 10000.0)
}

func TestComputeSummaryZeroInitialValue(t *testing.T) {
	p := newTestPortfolio()
	summary := ComputeSummary(p, 105000.0, 0.0)
	approx(t, "return pct with zero initial", summary.ReturnPct, 0.0)
}
