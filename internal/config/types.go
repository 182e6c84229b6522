package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 描述一次回测运行的参数。
type BacktestConfig struct {
	Tickers           []string `mapstructure:"tickers"`
	StartDate         string   `mapstructure:"start_date"`
	EndDate           string   `mapstructure:"end_date"`
	InitialCapital    float64  `mapstructure:"initial_capital"`
	MarginRequirement float64  `mapstructure:"margin_requirement"`
	BenchmarkTicker   string   `mapstructure:"benchmark_ticker"`
	AnnualTradingDays int      `mapstructure:"annual_trading_days"`
	RiskFreeRate      float64  `mapstructure:"risk_free_rate"`
	ModelName         string   `mapstructure:"model_name"`
	ModelProvider     string   `mapstructure:"model_provider"`
	SelectedAnalysts  []string `mapstructure:"selected_analysts"`
}

// DataConfig 描述行情数据服务的连接信息。
type DataConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig 管理行情缓存数据库。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

const dateLayout = "2006-01-02"

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.Backtest.Tickers) == 0 {
		err = multierr.Append(err, errors.New("backtest.tickers 至少包含一个标的"))
	}
	start, startErr := time.Parse(dateLayout, c.Backtest.StartDate)
	if startErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.start_date 格式非法: %w", startErr))
	}
	end, endErr := time.Parse(dateLayout, c.Backtest.EndDate)
	if endErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.end_date 格式非法: %w", endErr))
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		err = multierr.Append(err, errors.New("backtest.end_date 不能早于 start_date"))
	}
	if c.Backtest.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_capital 必须大于0"))
	}
	if c.Backtest.MarginRequirement < 0 {
		err = multierr.Append(err, errors.New("backtest.margin_requirement 不能为负"))
	}
	if c.Backtest.BenchmarkTicker == "" {
		err = multierr.Append(err, errors.New("backtest.benchmark_ticker 不能为空"))
	}
	if c.Backtest.AnnualTradingDays <= 0 {
		err = multierr.Append(err, errors.New("backtest.annual_trading_days 必须大于0"))
	}
	if c.Backtest.RiskFreeRate < 0 || c.Backtest.RiskFreeRate > 1 {
		err = multierr.Append(err, errors.New("backtest.risk_free_rate 必须位于[0,1]"))
	}
	if c.Backtest.ModelName == "" {
		err = multierr.Append(err, errors.New("backtest.model_name 不能为空"))
	}
	if c.Data.BaseURL == "" {
		err = multierr.Append(err, errors.New("data.base_url 不能为空"))
	}
	if c.Data.Timeout <= 0 {
		err = multierr.Append(err, errors.New("data.timeout 必须大于0"))
	}
	if c.Data.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("data.retry.max_attempts 必须大于0"))
	}
	if c.Data.Retry.MinDelay <= 0 || c.Data.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("data.retry.delay 必须为正"))
	}
	if c.Data.Retry.MinDelay > c.Data.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("data.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
