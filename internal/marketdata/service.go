package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hedge-ai/internal/store"
)

const (
	payloadKindFinancialMetrics = "financial_metrics"
	payloadKindInsiderTrades    = "insider_trades"
	payloadKindCompanyNews      = "company_news"

	prefetchConcurrency = 4
	dateLayout          = "2006-01-02"
)

// Service 在 HTTP 客户端之上叠加 SQLite 读穿缓存，
// 并提供回测开始前的批量预取。
type Service struct {
	client *Client
	store  *store.Store
	logger *zap.Logger
}

// NewService 创建行情服务。store 为空时退化为直连客户端。
func NewService(client *Client, st *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		store:  st,
		logger: logger,
	}
}

// PriceData 返回 [startDate, endDate] 闭区间内的日线行情。
// 仅当缓存覆盖到窗口右端（最新一根K线日期 >= endDate）才算命中；
// 否则重新请求数据服务并回填，防止把昨日缓存当作当日行情返回。
func (s *Service) PriceData(ctx context.Context, ticker, startDate, endDate string) ([]PriceBar, error) {
	if s.store != nil {
		cached, err := s.loadPriceBars(ctx, ticker, startDate, endDate)
		if err != nil {
			s.logger.Warn("读取行情缓存失败", zap.String("ticker", ticker), zap.Error(err))
		} else if len(cached) > 0 && cached[len(cached)-1].Date >= endDate {
			return cached, nil
		}
	}

	bars, err := s.client.FetchPrices(ctx, ticker, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s [%s, %s]", ErrNoPriceData, ticker, startDate, endDate)
	}

	if s.store != nil && len(bars) > 0 {
		if err := s.savePriceBars(ctx, ticker, bars); err != nil {
			s.logger.Warn("写入行情缓存失败", zap.String("ticker", ticker), zap.Error(err))
		}
	}

	return bars, nil
}

// Prefetch 预热缓存：回看一年的行情，外加财务指标、内部人交易与新闻。
// 单个标的失败只记录日志，不影响其他标的，也不中断回测。
func (s *Service) Prefetch(ctx context.Context, tickers []string, startDate, endDate string) {
	priceStart := startDate
	if end, err := time.Parse(dateLayout, endDate); err == nil {
		priceStart = end.AddDate(-1, 0, 0).Format(dateLayout)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(prefetchConcurrency)

	for _, ticker := range tickers {
		ticker := ticker
		group.Go(func() error {
			s.prefetchTicker(groupCtx, ticker, priceStart, startDate, endDate)
			return nil
		})
	}

	_ = group.Wait()
}

func (s *Service) prefetchTicker(ctx context.Context, ticker, priceStart, startDate, endDate string) {
	bars, err := s.client.FetchPrices(ctx, ticker, priceStart, endDate)
	if err != nil {
		s.logger.Warn("预取行情失败", zap.String("ticker", ticker), zap.Error(err))
	} else if s.store != nil && len(bars) > 0 {
		if err := s.savePriceBars(ctx, ticker, bars); err != nil {
			s.logger.Warn("写入行情缓存失败", zap.String("ticker", ticker), zap.Error(err))
		}
	}

	for _, fetch := range []struct {
		kind string
		call func() (json.RawMessage, error)
	}{
		{payloadKindFinancialMetrics, func() (json.RawMessage, error) {
			return s.client.FetchFinancialMetrics(ctx, ticker, endDate, 10)
		}},
		{payloadKindInsiderTrades, func() (json.RawMessage, error) {
			return s.client.FetchInsiderTrades(ctx, ticker, endDate, startDate, 1000)
		}},
		{payloadKindCompanyNews, func() (json.RawMessage, error) {
			return s.client.FetchCompanyNews(ctx, ticker, endDate, startDate, 1000)
		}},
	} {
		payload, err := fetch.call()
		if err != nil {
			s.logger.Warn("预取数据失败",
				zap.String("ticker", ticker),
				zap.String("kind", fetch.kind),
				zap.Error(err),
			)
			continue
		}
		if err := s.savePayload(ctx, fetch.kind, ticker, endDate, payload); err != nil {
			s.logger.Warn("写入数据缓存失败",
				zap.String("ticker", ticker),
				zap.String("kind", fetch.kind),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) loadPriceBars(ctx context.Context, ticker, startDate, endDate string) ([]PriceBar, error) {
	rows, err := s.store.DB().QueryContext(ctx,
		`SELECT date, open, high, low, close, volume
		   FROM price_bars
		  WHERE ticker = ? AND date >= ? AND date <= ?
		  ORDER BY date`,
		ticker, startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("查询行情缓存失败: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var bars []PriceBar
	for rows.Next() {
		var bar PriceBar
		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("扫描行情缓存失败: %w", err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历行情缓存失败: %w", err)
	}
	return bars, nil
}

func (s *Service) savePriceBars(ctx context.Context, ticker string, bars []PriceBar) error {
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启缓存事务失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO price_bars (ticker, date, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("准备缓存语句失败: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx, ticker, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("写入行情缓存失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交缓存事务失败: %w", err)
	}
	return nil
}

func (s *Service) savePayload(ctx context.Context, kind, ticker, cacheKey string, payload json.RawMessage) error {
	if s.store == nil {
		return nil
	}
	_, err := s.store.DB().ExecContext(ctx,
		`INSERT OR REPLACE INTO api_payloads (kind, ticker, cache_key, payload, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		kind, ticker, cacheKey, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("写入数据缓存失败: %w", err)
	}
	return nil
}
