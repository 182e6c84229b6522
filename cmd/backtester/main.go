package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"hedge-ai/internal/agent"
	"hedge-ai/internal/backtest"
	"hedge-ai/internal/config"
	"hedge-ai/internal/log"
	"hedge-ai/internal/marketdata"
	"hedge-ai/internal/store"
)

func main() {
	var configPath string
	var verbose bool
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&verbose, "verbose", false, "输出每个交易日的明细行")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	dataClient := marketdata.NewClient(cfg.Data, logger)
	dataService := marketdata.NewService(dataClient, sqliteStore, logger)

	decisionAgent, err := agent.New(cfg.OpenAI, dataService, logger)
	if err != nil {
		logger.Error("初始化决策代理失败", zap.Error(err))
		os.Exit(1)
	}

	backtestCfg := backtest.Config{
		Tickers:           cfg.Backtest.Tickers,
		StartDate:         cfg.Backtest.StartDate,
		EndDate:           cfg.Backtest.EndDate,
		InitialCapital:    cfg.Backtest.InitialCapital,
		MarginRequirement: cfg.Backtest.MarginRequirement,
		BenchmarkTicker:   cfg.Backtest.BenchmarkTicker,
		AnnualTradingDays: cfg.Backtest.AnnualTradingDays,
		RiskFreeRate:      cfg.Backtest.RiskFreeRate,
		ModelName:         cfg.Backtest.ModelName,
		ModelProvider:     cfg.Backtest.ModelProvider,
		SelectedAnalysts:  cfg.Backtest.SelectedAnalysts,
	}

	days, err := backtest.BusinessDays(backtestCfg.StartDate, backtestCfg.EndDate)
	if err != nil {
		logger.Error("生成交易日历失败", zap.Error(err))
		os.Exit(1)
	}

	reporter := newConsoleReporter(len(days), verbose)

	engine, err := backtest.NewEngine(backtestCfg, decisionAgent, dataService, reporter, logger)
	if err != nil {
		logger.Error("初始化回测引擎失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("回测开始",
		zap.Strings("tickers", backtestCfg.Tickers),
		zap.String("start_date", backtestCfg.StartDate),
		zap.String("end_date", backtestCfg.EndDate),
		zap.Float64("initial_capital", backtestCfg.InitialCapital),
	)

	metrics, err := engine.Run(ctx)
	reporter.Finish()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("回测被用户中断")
			printPartialResults(engine)
			return
		}
		logger.Error("回测运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("回测完成")
	printFinalResults(engine, metrics)
}

func printPartialResults(engine *backtest.Engine) {
	values := engine.PortfolioValues()
	if len(values) < 2 {
		fmt.Println("尚无可展示的部分结果")
		return
	}

	first := values[0].PortfolioValue
	last := values[len(values)-1].PortfolioValue
	totalReturn := 0.0
	if first != 0 {
		totalReturn = (last/first - 1.0) * 100.0
	}

	fmt.Println("已累积的部分结果:")
	fmt.Printf("  初始市值: %.2f\n", first)
	fmt.Printf("  最新市值: %.2f\n", last)
	fmt.Printf("  累计收益: %+.2f%%\n", totalReturn)
}

func printFinalResults(engine *backtest.Engine, metrics backtest.PerformanceMetrics) {
	values := engine.PortfolioValues()
	if len(values) > 0 {
		last := values[len(values)-1]
		fmt.Printf("最终市值: %.2f\n", last.PortfolioValue)
	}
	fmt.Printf("夏普比率: %s\n", formatMetric(metrics.SharpeRatio))
	fmt.Printf("索提诺比率: %s\n", formatMetric(metrics.SortinoRatio))
	fmt.Printf("最大回撤: %s", formatMetric(metrics.MaxDrawdown))
	if metrics.MaxDrawdownDate != nil {
		fmt.Printf(" (%s)", *metrics.MaxDrawdownDate)
	}
	fmt.Println()
}

func formatMetric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// consoleReporter 以进度条展示回测进度，verbose 模式下追加每日明细。
type consoleReporter struct {
	bar     *progressbar.ProgressBar
	verbose bool
}

func newConsoleReporter(totalDays int, verbose bool) *consoleReporter {
	var bar *progressbar.ProgressBar
	if !verbose {
		bar = progressbar.NewOptions(totalDays,
			progressbar.OptionSetDescription("回测进行中"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return &consoleReporter{bar: bar, verbose: verbose}
}

// ReportDay 实现 backtest.Reporter。
func (r *consoleReporter) ReportDay(report backtest.DayReport) {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
	if !r.verbose {
		return
	}

	for _, row := range report.Rows {
		fmt.Printf("%s  %-6s %-6s 成交 %5d @ %9.2f  多 %5d 空 %5d  净持仓市值 %12.2f\n",
			row.Date, row.Ticker, row.Action, row.Quantity, row.Price,
			row.LongShares, row.ShortShares, row.PositionValue,
		)
	}

	summary := report.Summary
	fmt.Printf("%s  总市值 %12.2f  收益 %+7.2f%%  现金 %12.2f  持仓 %12.2f  夏普 %s  基准 %s\n",
		summary.Date, summary.TotalValue, summary.ReturnPct,
		summary.CashBalance, summary.TotalPositionValue,
		formatMetric(summary.SharpeRatio), formatMetric(summary.BenchmarkReturnPct),
	)
}

// Finish 结束进度条渲染。
func (r *consoleReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}
