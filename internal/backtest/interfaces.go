package backtest

import (
	"context"
	"errors"
	"strings"

	"hedge-ai/internal/marketdata"
	"hedge-ai/internal/portfolio"
)

// Action 是交易代理可以下达的动作。
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionShort Action = "short"
	ActionCover Action = "cover"
	ActionHold  Action = "hold"
)

// ParseAction 校验动作字符串，未知动作返回 false。
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionShort:
		return ActionShort, true
	case ActionCover:
		return ActionCover, true
	case ActionHold:
		return ActionHold, true
	default:
		return ActionHold, false
	}
}

// Decision 是经过归一化后的单标的交易指令。
type Decision struct {
	Action   Action  `mapstructure:"action"`
	Quantity float64 `mapstructure:"quantity"`
}

// AgentRequest 是调用外部决策代理的归一化入参。
// Portfolio 为只读快照，代理无法借此篡改引擎内部状态。
type AgentRequest struct {
	Tickers          []string
	StartDate        string
	EndDate          string
	Portfolio        portfolio.Snapshot
	ModelName        string
	ModelProvider    string
	SelectedAnalysts []string
}

// RawAgentOutput 是代理返回的原始结构，decisions 为松散类型，
// 由 AgentController 负责校验与兜底。
type RawAgentOutput struct {
	Decisions      map[string]any
	AnalystSignals map[string]map[string]any
}

// AgentOutput 是归一化后的代理输出。
type AgentOutput struct {
	Decisions      map[string]Decision
	AnalystSignals map[string]map[string]any
}

// Agent 抽象外部决策代理，对引擎而言是不透明的黑盒。
type Agent interface {
	Call(ctx context.Context, req AgentRequest) (RawAgentOutput, error)
}

// AgentFunc 允许使用函数作为决策代理。
type AgentFunc func(ctx context.Context, req AgentRequest) (RawAgentOutput, error)

func (f AgentFunc) Call(ctx context.Context, req AgentRequest) (RawAgentOutput, error) {
	if f == nil {
		return RawAgentOutput{}, errors.New("backtest: 决策函数未实现")
	}
	return f(ctx, req)
}

// PriceProvider 提供指定日期区间内的日线行情。
type PriceProvider interface {
	PriceData(ctx context.Context, ticker, startDate, endDate string) ([]marketdata.PriceBar, error)
}

// Prefetcher 在回测开始前预热行情缓存，失败不应中断回测。
type Prefetcher interface {
	Prefetch(ctx context.Context, tickers []string, startDate, endDate string)
}

// Reporter 消费每个交易日的报表行，属于纯展示副作用。
type Reporter interface {
	ReportDay(report DayReport)
}
