package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hedge-ai/internal/portfolio"
)

// Engine 驱动逐日回测循环：取价、问询代理、执行交易、盯市估值、
// 累积序列并刷新绩效指标。循环严格串行，因为每一天的代理决策都
// 依赖前一天交易留下的组合状态。
type Engine struct {
	cfg        Config
	agent      Agent
	provider   PriceProvider
	controller *AgentController
	executor   *TradeExecutor
	perf       *MetricsCalculator
	output     *OutputBuilder
	benchmark  *BenchmarkCalculator
	reporter   Reporter
	logger     *zap.Logger

	portfolio       *portfolio.Portfolio
	portfolioValues []ValuePoint
	performance     PerformanceMetrics
}

// NewEngine 构建回测引擎。
func NewEngine(cfg Config, agent Agent, provider PriceProvider, reporter Reporter, logger *zap.Logger) (*Engine, error) {
	if agent == nil {
		return nil, fmt.Errorf("backtest: agent 不能为空")
	}
	if provider == nil {
		return nil, fmt.Errorf("backtest: price provider 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.normalize()

	return &Engine{
		cfg:        cfg,
		agent:      agent,
		provider:   provider,
		controller: NewAgentController(),
		executor:   NewTradeExecutor(),
		perf:       NewMetricsCalculator(cfg.AnnualTradingDays, cfg.RiskFreeRate),
		output:     NewOutputBuilder(cfg.InitialCapital),
		benchmark:  NewBenchmarkCalculator(provider, logger),
		reporter:   reporter,
		logger:     logger,
		portfolio:  portfolio.New(cfg.Tickers, cfg.InitialCapital, cfg.MarginRequirement),
	}, nil
}

// Run 执行完整回测并返回最终绩效指标。
// ctx 取消时在两个交易日之间停止，已累积的序列与指标仍可读取。
func (e *Engine) Run(ctx context.Context) (PerformanceMetrics, error) {
	e.prefetch(ctx)

	dates, err := BusinessDays(e.cfg.StartDate, e.cfg.EndDate)
	if err != nil {
		return PerformanceMetrics{}, err
	}

	e.portfolioValues = e.portfolioValues[:0]
	if len(dates) > 0 {
		e.portfolioValues = append(e.portfolioValues, ValuePoint{
			Date:           dates[0],
			PortfolioValue: e.cfg.InitialCapital,
		})
	}

	for _, currentDate := range dates {
		select {
		case <-ctx.Done():
			e.logger.Warn("回测被中断，返回已累积的部分结果",
				zap.String("date", currentDate.Format(dateLayout)),
			)
			return e.performance, ctx.Err()
		default:
		}

		lookbackStart := monthsBack(currentDate, 1).Format(dateLayout)
		currentDateStr := currentDate.Format(dateLayout)
		previousDateStr := currentDate.AddDate(0, 0, -1).Format(dateLayout)
		if lookbackStart == currentDateStr {
			continue
		}

		currentPrices, ok := e.fetchDayPrices(ctx, previousDateStr, currentDateStr)
		if !ok {
			e.logger.Debug("当日行情缺失，跳过交易日", zap.String("date", currentDateStr))
			continue
		}

		agentOutput := e.invokeAgent(ctx, lookbackStart, currentDateStr)

		executedTrades := make(map[string]int, len(e.cfg.Tickers))
		for _, ticker := range e.cfg.Tickers {
			decision := agentOutput.Decisions[ticker]
			executedTrades[ticker] = e.executor.ExecuteTrade(
				ticker, decision.Action, decision.Quantity, currentPrices[ticker], e.portfolio,
			)
		}

		totalValue := portfolio.CalculateValue(e.portfolio, currentPrices)
		exposures := portfolio.ComputeExposures(e.portfolio, currentPrices)

		e.portfolioValues = append(e.portfolioValues, ValuePoint{
			Date:           currentDate,
			PortfolioValue: totalValue,
			LongExposure:   exposures.Long,
			ShortExposure:  exposures.Short,
			GrossExposure:  exposures.Gross,
			NetExposure:    exposures.Net,
			LongShortRatio: exposures.LongShortRatio,
		})

		if e.reporter != nil {
			report := e.output.BuildDayReport(
				currentDateStr,
				e.cfg.Tickers,
				agentOutput,
				executedTrades,
				currentPrices,
				e.portfolio.Snapshot(),
				totalValue,
				e.performance,
				e.benchmark.ReturnPct(ctx, e.cfg.BenchmarkTicker, e.cfg.StartDate, currentDateStr),
			)
			e.reporter.ReportDay(report)
		}

		if len(e.portfolioValues) > 3 {
			e.performance = e.perf.Compute(e.portfolioValues)
		}
	}

	return e.performance, nil
}

// AsyncResult 是异步回测的最终结果。
type AsyncResult struct {
	Metrics PerformanceMetrics
	Err     error
}

// RunAsync 在后台 goroutine 中运行同步回测，仅用于避免阻塞调用方，
// 不会改变循环内部的执行顺序。
func (e *Engine) RunAsync(ctx context.Context) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		metrics, err := e.Run(ctx)
		ch <- AsyncResult{Metrics: metrics, Err: err}
	}()
	return ch
}

// PortfolioValues 返回已累积的估值序列副本。
func (e *Engine) PortfolioValues() []ValuePoint {
	return append([]ValuePoint(nil), e.portfolioValues...)
}

// PortfolioSnapshot 返回组合当前状态的只读副本。
func (e *Engine) PortfolioSnapshot() portfolio.Snapshot {
	return e.portfolio.Snapshot()
}

// prefetch 预热行情缓存，失败只记录日志，问题留到逐日取价时再暴露。
func (e *Engine) prefetch(ctx context.Context) {
	pf, ok := e.provider.(Prefetcher)
	if !ok {
		return
	}
	tickers := append(append([]string(nil), e.cfg.Tickers...), e.cfg.BenchmarkTicker)
	pf.Prefetch(ctx, tickers, e.cfg.StartDate, e.cfg.EndDate)
}

// fetchDayPrices 取每个标的在 [前一自然日, 当日] 窗口内最近的收盘价。
// 任何一个标的缺数据，整个交易日作废。
func (e *Engine) fetchDayPrices(ctx context.Context, previousDateStr, currentDateStr string) (map[string]float64, bool) {
	currentPrices := make(map[string]float64, len(e.cfg.Tickers))
	for _, ticker := range e.cfg.Tickers {
		bars, err := e.provider.PriceData(ctx, ticker, previousDateStr, currentDateStr)
		if err != nil || len(bars) == 0 {
			return nil, false
		}
		currentPrices[ticker] = bars[len(bars)-1].Close
	}
	return currentPrices, true
}

// invokeAgent 通过控制器调用决策代理。代理调用失败不会中断回测：
// 当日以全体 hold 代替，使估值序列保持连续。
func (e *Engine) invokeAgent(ctx context.Context, lookbackStart, currentDateStr string) AgentOutput {
	output, err := e.controller.RunAgent(ctx, e.agent, AgentRequest{
		Tickers:          e.cfg.Tickers,
		StartDate:        lookbackStart,
		EndDate:          currentDateStr,
		Portfolio:        e.portfolio.Snapshot(),
		ModelName:        e.cfg.ModelName,
		ModelProvider:    e.cfg.ModelProvider,
		SelectedAnalysts: e.cfg.SelectedAnalysts,
	})
	if err != nil {
		e.logger.Warn("决策代理调用失败，当日按持有处理",
			zap.String("date", currentDateStr),
			zap.Error(err),
		)
		return e.controller.Normalize(RawAgentOutput{}, e.cfg.Tickers)
	}
	return output
}
