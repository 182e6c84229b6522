package backtest

import (
	"hedge-ai/internal/portfolio"
)

// DayRow 是单个标的在某个交易日的报表行。
type DayRow struct {
	Date          string
	Ticker        string
	Action        Action
	Quantity      int
	Price         float64
	LongShares    int
	ShortShares   int
	PositionValue float64
}

// SummaryRow 是某个交易日的组合汇总行。
type SummaryRow struct {
	Date               string
	TotalValue         float64
	ReturnPct          float64
	CashBalance        float64
	TotalPositionValue float64
	SharpeRatio        *float64
	SortinoRatio       *float64
	MaxDrawdown        *float64
	BenchmarkReturnPct *float64
}

// DayReport 聚合一个交易日的全部报表行。
type DayReport struct {
	Rows    []DayRow
	Summary SummaryRow
}

// OutputBuilder 构建每日报表行，本身无状态，不参与核心不变量。
type OutputBuilder struct {
	initialCapital float64
}

// NewOutputBuilder 创建报表构建器。
func NewOutputBuilder(initialCapital float64) *OutputBuilder {
	return &OutputBuilder{initialCapital: initialCapital}
}

// BuildDayReport 由当日决策、成交与组合状态生成报表。
func (b *OutputBuilder) BuildDayReport(
	dateStr string,
	tickers []string,
	output AgentOutput,
	executedTrades map[string]int,
	currentPrices map[string]float64,
	snapshot portfolio.Snapshot,
	totalValue float64,
	metrics PerformanceMetrics,
	benchmarkReturnPct *float64,
) DayReport {
	rows := make([]DayRow, 0, len(tickers))
	for _, ticker := range tickers {
		pos := snapshot.Positions[ticker]
		price := currentPrices[ticker]
		longValue := float64(pos.Long) * price
		shortValue := float64(pos.Short) * price

		action := ActionHold
		if d, ok := output.Decisions[ticker]; ok {
			action = d.Action
		}

		rows = append(rows, DayRow{
			Date:          dateStr,
			Ticker:        ticker,
			Action:        action,
			Quantity:      executedTrades[ticker],
			Price:         price,
			LongShares:    pos.Long,
			ShortShares:   pos.Short,
			PositionValue: longValue - shortValue,
		})
	}

	initialValue := b.initialCapital
	if initialValue == 0 {
		initialValue = totalValue
	}
	returnPct := 0.0
	if initialValue != 0 {
		returnPct = (totalValue/initialValue - 1.0) * 100.0
	}

	summary := SummaryRow{
		Date:               dateStr,
		TotalValue:         totalValue,
		ReturnPct:          returnPct,
		CashBalance:        snapshot.Cash,
		TotalPositionValue: totalValue - snapshot.Cash,
		SharpeRatio:        metrics.SharpeRatio,
		SortinoRatio:       metrics.SortinoRatio,
		MaxDrawdown:        metrics.MaxDrawdown,
		BenchmarkReturnPct: benchmarkReturnPct,
	}

	return DayReport{Rows: rows, Summary: summary}
}
