package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hedge-ai/internal/config"
)

// Client 负责访问行情数据服务并实现重试机制。
// 服务提供日线行情、财务指标、内部人交易与公司新闻四类接口。
type Client struct {
	cfg    config.DataConfig
	logger *zap.Logger
	http   *http.Client
}

// NewClient 创建行情客户端。
func NewClient(cfg config.DataConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: timeout},
	}
}

// FetchPrices 获取 [startDate, endDate] 闭区间内的日线行情，按日期升序返回。
func (c *Client) FetchPrices(ctx context.Context, ticker, startDate, endDate string) ([]PriceBar, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("interval", "day")
	query.Set("interval_multiplier", "1")
	query.Set("start_date", startDate)
	query.Set("end_date", endDate)

	body, err := c.doGet(ctx, "/prices/", query)
	if err != nil {
		return nil, err
	}

	var resp pricesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析行情响应失败: %w", err)
	}

	bars := resp.Prices
	for i := range bars {
		if len(bars[i].Date) > 10 {
			bars[i].Date = bars[i].Date[:10]
		}
	}
	return bars, nil
}

// FetchFinancialMetrics 获取截止 endDate 的财务指标，原样返回 JSON。
func (c *Client) FetchFinancialMetrics(ctx context.Context, ticker, endDate string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("report_period_lte", endDate)
	query.Set("period", "ttm")
	query.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "/financial-metrics/", query)
}

// FetchInsiderTrades 获取内部人交易记录，原样返回 JSON。
func (c *Client) FetchInsiderTrades(ctx context.Context, ticker, endDate, startDate string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("filing_date_lte", endDate)
	if startDate != "" {
		query.Set("filing_date_gte", startDate)
	}
	query.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "/insider-trades/", query)
}

// FetchCompanyNews 获取公司新闻，原样返回 JSON。
func (c *Client) FetchCompanyNews(ctx context.Context, ticker, endDate, startDate string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("end_date", endDate)
	if startDate != "" {
		query.Set("start_date", startDate)
	}
	query.Set("limit", strconv.Itoa(limit))
	return c.doGet(ctx, "/news/", query)
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + query.Encode()

	var body []byte
	err := c.callWithRetry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("构造请求失败: %w", err)
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-KEY", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Status: resp.StatusCode, Path: path}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("读取响应失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) callWithRetry(ctx context.Context, label string, fn func() error) error {
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		c.logger.Warn("请求数据服务失败，准备重试",
			zap.String("endpoint", label),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if c.cfg.Retry.MaxDelay > 0 && delay > c.cfg.Retry.MaxDelay {
			delay = c.cfg.Retry.MaxDelay
		}
	}

	return fmt.Errorf("marketdata: 重试后仍请求失败: %w", err)
}
