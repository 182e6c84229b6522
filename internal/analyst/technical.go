package analyst

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"hedge-ai/internal/marketdata"
)

// Name 是技术分析师在 analyst_signals 中的键。
const Name = "technical_analyst"

// 指标计算所需的最少K线数量，受限于最长的均线窗口。
const minBars = 30

// Signal 是技术分析师对单个标的的观点。
type Signal struct {
	Signal     string            `json:"signal"` // bullish / bearish / neutral
	Confidence float64           `json:"confidence"`
	Reasoning  map[string]string `json:"reasoning"`
}

// Technical 基于日线行情计算趋势、动量与波动率信号。
type Technical struct{}

// NewTechnical 创建技术分析师。
func NewTechnical() *Technical {
	return &Technical{}
}

// Analyze 对一段按日期升序的日线计算综合信号。
func (t *Technical) Analyze(bars []marketdata.PriceBar) (Signal, error) {
	if len(bars) < minBars {
		return Signal{}, fmt.Errorf("analyst: K线数量不足，至少需要 %d 根，当前 %d 根", minBars, len(bars))
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	last := len(closes) - 1
	reasoning := make(map[string]string)
	bullish, bearish := 0, 0

	sma10 := talib.Sma(closes, 10)
	sma20 := talib.Sma(closes, 20)
	if sma10[last] > sma20[last] {
		bullish++
		reasoning["trend"] = fmt.Sprintf("SMA10 %.2f 高于 SMA20 %.2f，短期趋势向上", sma10[last], sma20[last])
	} else {
		bearish++
		reasoning["trend"] = fmt.Sprintf("SMA10 %.2f 低于 SMA20 %.2f，短期趋势向下", sma10[last], sma20[last])
	}

	rsi := talib.Rsi(closes, 14)
	switch {
	case rsi[last] < 30:
		bullish++
		reasoning["rsi"] = fmt.Sprintf("RSI %.1f 进入超卖区间", rsi[last])
	case rsi[last] > 70:
		bearish++
		reasoning["rsi"] = fmt.Sprintf("RSI %.1f 进入超买区间", rsi[last])
	default:
		reasoning["rsi"] = fmt.Sprintf("RSI %.1f 处于中性区间", rsi[last])
	}

	_, _, macdHist := talib.Macd(closes, 12, 26, 9)
	if macdHist[last] > 0 {
		bullish++
		reasoning["macd"] = fmt.Sprintf("MACD 柱状值 %.4f 为正，动量偏多", macdHist[last])
	} else {
		bearish++
		reasoning["macd"] = fmt.Sprintf("MACD 柱状值 %.4f 为负，动量偏空", macdHist[last])
	}

	upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	switch {
	case closes[last] < lower[last]:
		bullish++
		reasoning["bollinger"] = fmt.Sprintf("收盘价 %.2f 跌破布林下轨 %.2f", closes[last], lower[last])
	case closes[last] > upper[last]:
		bearish++
		reasoning["bollinger"] = fmt.Sprintf("收盘价 %.2f 突破布林上轨 %.2f", closes[last], upper[last])
	default:
		reasoning["bollinger"] = "收盘价位于布林带内"
	}

	total := bullish + bearish
	signal := "neutral"
	confidence := 0.0
	if total > 0 {
		switch {
		case bullish > bearish:
			signal = "bullish"
			confidence = float64(bullish) / 4.0
		case bearish > bullish:
			signal = "bearish"
			confidence = float64(bearish) / 4.0
		default:
			signal = "neutral"
			confidence = 0.5
		}
	}

	return Signal{
		Signal:     signal,
		Confidence: confidence,
		Reasoning:  reasoning,
	}, nil
}
