package backtest

// Config 定义一次回测的参数。
type Config struct {
	Tickers           []string
	StartDate         string // 形如 2024-01-02
	EndDate           string
	InitialCapital    float64
	MarginRequirement float64
	BenchmarkTicker   string
	AnnualTradingDays int
	RiskFreeRate      float64
	ModelName         string
	ModelProvider     string
	SelectedAnalysts  []string
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100000
	}
	if cfg.BenchmarkTicker == "" {
		cfg.BenchmarkTicker = "SPY"
	}
	if cfg.AnnualTradingDays <= 0 {
		cfg.AnnualTradingDays = 252
	}
	return cfg
}
