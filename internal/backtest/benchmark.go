package backtest

import (
	"context"

	"go.uber.org/zap"
)

// BenchmarkCalculator 计算基准标的的买入持有收益率，用于与策略对比。
type BenchmarkCalculator struct {
	provider PriceProvider
	logger   *zap.Logger
}

// NewBenchmarkCalculator 创建基准计算器。
func NewBenchmarkCalculator(provider PriceProvider, logger *zap.Logger) *BenchmarkCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BenchmarkCalculator{
		provider: provider,
		logger:   logger,
	}
}

// ReturnPct 计算 [startDate, endDate] 区间的简单买入持有收益率（百分比）。
// 行情缺失或获取失败时返回 nil，不视为错误。
func (b *BenchmarkCalculator) ReturnPct(ctx context.Context, ticker, startDate, endDate string) *float64 {
	bars, err := b.provider.PriceData(ctx, ticker, startDate, endDate)
	if err != nil {
		b.logger.Debug("获取基准行情失败",
			zap.String("ticker", ticker),
			zap.Error(err),
		)
		return nil
	}
	if len(bars) == 0 {
		return nil
	}

	firstClose := bars[0].Close
	lastClose := bars[len(bars)-1].Close
	if firstClose == 0 {
		return nil
	}

	pct := (lastClose/firstClose - 1.0) * 100.0
	return &pct
}
