package backtest

import (
	"math"
	"time"
)

// 标准差低于该阈值时视为无波动，避免比率除零爆炸。
const stdEpsilon = 1e-12

// ValuePoint 是估值时间序列中的单日记录。
type ValuePoint struct {
	Date           time.Time
	PortfolioValue float64
	LongExposure   float64
	ShortExposure  float64
	GrossExposure  float64
	NetExposure    float64
	LongShortRatio float64
}

// PerformanceMetrics 为基于全量估值序列计算的绩效指标。
// 序列不足以计算时字段为 nil。
type PerformanceMetrics struct {
	SharpeRatio     *float64
	SortinoRatio    *float64
	MaxDrawdown     *float64
	MaxDrawdownDate *string
}

// MetricsCalculator 计算夏普比率、索提诺比率与最大回撤。
// 每次刷新都基于完整序列从头重算，不做增量更新。
type MetricsCalculator struct {
	annualTradingDays  int
	annualRiskFreeRate float64
}

// NewMetricsCalculator 创建指标计算器。
func NewMetricsCalculator(annualTradingDays int, annualRiskFreeRate float64) *MetricsCalculator {
	if annualTradingDays <= 0 {
		annualTradingDays = 252
	}
	return &MetricsCalculator{
		annualTradingDays:  annualTradingDays,
		annualRiskFreeRate: annualRiskFreeRate,
	}
}

// Compute 基于估值序列计算指标。有效日收益少于2个时返回空指标。
func (c *MetricsCalculator) Compute(values []ValuePoint) PerformanceMetrics {
	if len(values) < 3 {
		return PerformanceMetrics{}
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1].PortfolioValue
		if prev == 0 {
			continue
		}
		returns = append(returns, values[i].PortfolioValue/prev-1.0)
	}
	if len(returns) < 2 {
		return PerformanceMetrics{}
	}

	dailyRiskFree := c.annualRiskFreeRate / float64(c.annualTradingDays)
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRiskFree
	}

	meanExcess := mean(excess)
	stdExcess := sampleStd(excess)
	annualFactor := math.Sqrt(float64(c.annualTradingDays))

	sharpe := 0.0
	if stdExcess > stdEpsilon {
		sharpe = annualFactor * meanExcess / stdExcess
	}

	sortino := c.computeSortino(excess, meanExcess, annualFactor)
	maxDrawdown, maxDrawdownDate := computeMaxDrawdown(values)

	metrics := PerformanceMetrics{
		SharpeRatio:  floatPtr(sharpe),
		SortinoRatio: floatPtr(sortino),
		MaxDrawdown:  floatPtr(maxDrawdown),
	}
	if maxDrawdownDate != "" {
		metrics.MaxDrawdownDate = &maxDrawdownDate
	}
	return metrics
}

// computeSortino 以仅含负超额收益的下行波动率为分母。
// 没有负收益、或下行波动率退化时：均值为正返回 +Inf，否则返回 0。
func (c *MetricsCalculator) computeSortino(excess []float64, meanExcess float64, annualFactor float64) float64 {
	var negatives []float64
	for _, e := range excess {
		if e < 0 {
			negatives = append(negatives, e)
		}
	}

	if len(negatives) > 1 {
		downsideStd := sampleStd(negatives)
		if downsideStd > stdEpsilon {
			return annualFactor * meanExcess / downsideStd
		}
	}

	if meanExcess > 0 {
		return math.Inf(1)
	}
	return 0.0
}

func computeMaxDrawdown(values []ValuePoint) (float64, string) {
	var runningMax float64
	minDrawdown := 0.0
	var minDate time.Time

	for _, point := range values {
		if point.PortfolioValue > runningMax {
			runningMax = point.PortfolioValue
		}
		if runningMax <= 0 {
			continue
		}
		drawdown := (point.PortfolioValue - runningMax) / runningMax
		if drawdown < minDrawdown {
			minDrawdown = drawdown
			minDate = point.Date
		}
	}

	if minDrawdown < 0 {
		return minDrawdown * 100.0, minDate.Format("2006-01-02")
	}
	return 0.0, ""
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd 为样本标准差（除以 n-1）。
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func floatPtr(v float64) *float64 {
	return &v
}
