package portfolio

import "math"

// 空头敞口低于该阈值时，多空比视为无穷大而不是除零。
const shortExposureEpsilon = 1e-9

// Exposures 为组合的多空敞口分解。
type Exposures struct {
	Long           float64
	Short          float64
	Gross          float64
	Net            float64
	LongShortRatio float64
}

// Summary 为报表使用的组合概览。
type Summary struct {
	TotalValue         float64
	ReturnPct          float64
	CashBalance        float64
	TotalPositionValue float64
}

// CalculateValue 按当日价格对组合做盯市估值。
// 空头开仓所得已计入现金，因此空头市值作为负债扣减。
func CalculateValue(p *Portfolio, currentPrices map[string]float64) float64 {
	totalValue := p.cash
	for ticker, pos := range p.positions {
		price := currentPrices[ticker]
		totalValue += float64(pos.Long) * price
		if pos.Short > 0 {
			totalValue -= float64(pos.Short) * price
		}
	}
	return totalValue
}

// ComputeExposures 计算多头、空头、总、净敞口以及多空比。
func ComputeExposures(p *Portfolio, currentPrices map[string]float64) Exposures {
	var longExposure, shortExposure float64
	for ticker, pos := range p.positions {
		price := currentPrices[ticker]
		longExposure += float64(pos.Long) * price
		shortExposure += float64(pos.Short) * price
	}

	ratio := math.Inf(1)
	if shortExposure > shortExposureEpsilon {
		ratio = longExposure / shortExposure
	}

	return Exposures{
		Long:           longExposure,
		Short:          shortExposure,
		Gross:          longExposure + shortExposure,
		Net:            longExposure - shortExposure,
		LongShortRatio: ratio,
	}
}

// ComputeSummary 由总市值与初始资金推导组合概览。初始资金为 0 时收益率按 0 处理。
func ComputeSummary(p *Portfolio, totalValue float64, initialValue float64) Summary {
	cashBalance := p.cash
	returnPct := 0.0
	if initialValue != 0 {
		returnPct = (totalValue/initialValue - 1.0) * 100.0
	}
	return Summary{
		TotalValue:         totalValue,
		ReturnPct:          returnPct,
		CashBalance:        cashBalance,
		TotalPositionValue: totalValue - cashBalance,
	}
}
