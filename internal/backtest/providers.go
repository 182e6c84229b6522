package backtest

import (
	"context"

	"hedge-ai/internal/marketdata"
)

// SlicePriceProvider 以内存中的固定日线序列提供行情，
// 用于测试以及离线数据回放。
type SlicePriceProvider struct {
	bars map[string][]marketdata.PriceBar
}

// NewSlicePriceProvider 创建内存行情源，bars 按日期升序给出。
func NewSlicePriceProvider(bars map[string][]marketdata.PriceBar) *SlicePriceProvider {
	if bars == nil {
		bars = make(map[string][]marketdata.PriceBar)
	}
	return &SlicePriceProvider{bars: bars}
}

// PriceData 返回 [startDate, endDate] 闭区间内的日线。
func (p *SlicePriceProvider) PriceData(ctx context.Context, ticker, startDate, endDate string) ([]marketdata.PriceBar, error) {
	var result []marketdata.PriceBar
	for _, bar := range p.bars[ticker] {
		if bar.Date < startDate || bar.Date > endDate {
			continue
		}
		result = append(result, bar)
	}
	return result, nil
}
