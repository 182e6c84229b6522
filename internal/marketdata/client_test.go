package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hedge-ai/internal/config"
)

func testDataConfig(baseURL string) config.DataConfig {
	return config.DataConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
		},
	}
}

func TestFetchPricesParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices/" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("api key header: got %q", got)
		}
		query := r.URL.Query()
		if query.Get("ticker") != "AAPL" || query.Get("interval") != "day" {
			t.Errorf("query: got %v", query)
		}
		if query.Get("start_date") != "2024-01-02" || query.Get("end_date") != "2024-01-03" {
			t.Errorf("date window: got %v", query)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ticker": "AAPL",
			"prices": [
				{"time": "2024-01-02T00:00:00Z", "open": 100, "high": 102, "low": 99, "close": 101, "volume": 1000},
				{"time": "2024-01-03T00:00:00Z", "open": 101, "high": 104, "low": 100, "close": 103, "volume": 1200}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(testDataConfig(server.URL), nil)
	bars, err := client.FetchPrices(context.Background(), "AAPL", "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("FetchPrices returned error: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("bars: got %d want 2", len(bars))
	}
	// 时间戳被截断为日期
	if bars[0].Date != "2024-01-02" || bars[1].Date != "2024-01-03" {
		t.Errorf("dates: got %s, %s", bars[0].Date, bars[1].Date)
	}
	if bars[0].Close != 101.0 || bars[1].Close != 103.0 {
		t.Errorf("closes: got %v, %v", bars[0].Close, bars[1].Close)
	}
}

func TestFetchPricesRetriesOnServerError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ticker": "AAPL", "prices": [{"time": "2024-01-02", "close": 101}]}`))
	}))
	defer server.Close()

	client := NewClient(testDataConfig(server.URL), nil)
	bars, err := client.FetchPrices(context.Background(), "AAPL", "2024-01-02", "2024-01-02")
	if err != nil {
		t.Fatalf("FetchPrices returned error after retry: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars: got %d want 1", len(bars))
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits: got %d want 2", got)
	}
}

func TestFetchPricesDoesNotRetryClientError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testDataConfig(server.URL), nil)
	_, err := client.FetchPrices(context.Background(), "AAPL", "2024-01-02", "2024-01-02")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Errorf("expected StatusError with 404, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits: got %d want 1 (no retry)", got)
	}
}

func TestFetchPricesGivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testDataConfig(server.URL), nil)
	_, err := client.FetchPrices(context.Background(), "AAPL", "2024-01-02", "2024-01-02")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hits: got %d want 3", got)
	}
}

func TestFetchFinancialMetricsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/financial-metrics/" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("period") != "ttm" || query.Get("limit") != "10" {
			t.Errorf("query: got %v", query)
		}
		if query.Get("report_period_lte") != "2024-06-28" {
			t.Errorf("report period: got %v", query.Get("report_period_lte"))
		}
		_, _ = w.Write([]byte(`{"financial_metrics": []}`))
	}))
	defer server.Close()

	client := NewClient(testDataConfig(server.URL), nil)
	payload, err := client.FetchFinancialMetrics(context.Background(), "AAPL", "2024-06-28", 10)
	if err != nil {
		t.Fatalf("FetchFinancialMetrics returned error: %v", err)
	}
	if len(payload) == 0 {
		t.Error("expected non-empty payload")
	}
}
