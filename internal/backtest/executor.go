package backtest

import (
	"hedge-ai/internal/portfolio"
)

// TradeExecutor 将抽象动作分发到 Portfolio 的交易原语。
// 可行性截断（资金、持仓、保证金）全部由 Portfolio 完成，这里只做路由。
type TradeExecutor struct{}

// NewTradeExecutor 创建执行器。
func NewTradeExecutor() *TradeExecutor {
	return &TradeExecutor{}
}

// ExecuteTrade 执行单笔决策，返回实际成交数量。
// hold、未知动作以及非正数量一律视为无操作。
func (e *TradeExecutor) ExecuteTrade(ticker string, action Action, quantity float64, currentPrice float64, p *portfolio.Portfolio) int {
	if quantity <= 0 {
		return 0
	}

	shares := int(quantity)

	switch action {
	case ActionBuy:
		return p.ApplyLongBuy(ticker, shares, currentPrice)
	case ActionSell:
		return p.ApplyLongSell(ticker, shares, currentPrice)
	case ActionShort:
		return p.ApplyShortOpen(ticker, shares, currentPrice)
	case ActionCover:
		return p.ApplyShortCover(ticker, shares, currentPrice)
	default:
		return 0
	}
}
