package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"hedge-ai/internal/analyst"
	"hedge-ai/internal/backtest"
	"hedge-ai/internal/config"
)

// Agent 是基于大模型的决策代理实现。它先用本地分析师生成信号，
// 再请求模型给出逐标的交易决策；输出保持松散结构，
// 由引擎侧的控制器负责校验与兜底。
type Agent struct {
	cfg       config.OpenAIConfig
	logger    *zap.Logger
	sdk       *openai.Client
	prices    backtest.PriceProvider
	technical *analyst.Technical
}

// New 使用给定配置创建决策代理。
func New(cfg config.OpenAIConfig, prices backtest.PriceProvider, logger *zap.Logger) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if prices == nil {
		return nil, errors.New("agent: price provider 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		sdk:       openai.NewClientWithConfig(sdkConfig),
		prices:    prices,
		technical: analyst.NewTechnical(),
	}, nil
}

// Call 实现 backtest.Agent。
func (a *Agent) Call(ctx context.Context, req backtest.AgentRequest) (backtest.RawAgentOutput, error) {
	model := req.ModelName
	if model == "" {
		model = a.cfg.Model
	}
	if model == "" {
		return backtest.RawAgentOutput{}, errors.New("openai model 不能为空")
	}

	signals := a.collectSignals(ctx, req)

	prompt, err := BuildPrompt(req, signals)
	if err != nil {
		return backtest.RawAgentOutput{}, err
	}

	response, err := a.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		a.logger.Error("调用OpenAI失败", zap.Error(err))
		return backtest.RawAgentOutput{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return backtest.RawAgentOutput{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return backtest.RawAgentOutput{}, errors.New("OpenAI 返回内容为空")
	}

	decisions, err := parseDecisions(rawContent)
	if err != nil {
		a.logger.Error("解析模型决策失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return backtest.RawAgentOutput{}, err
	}

	return backtest.RawAgentOutput{
		Decisions:      decisions,
		AnalystSignals: signals,
	}, nil
}

// collectSignals 为每个标的计算分析师信号。单个标的失败仅降级为无信号。
func (a *Agent) collectSignals(ctx context.Context, req backtest.AgentRequest) map[string]map[string]any {
	signals := make(map[string]map[string]any)
	if !analystSelected(req.SelectedAnalysts, analyst.Name) {
		return signals
	}

	tickerSignals := make(map[string]any)
	for _, ticker := range req.Tickers {
		bars, err := a.prices.PriceData(ctx, ticker, req.StartDate, req.EndDate)
		if err != nil {
			a.logger.Debug("获取分析窗口行情失败", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		signal, err := a.technical.Analyze(bars)
		if err != nil {
			a.logger.Debug("计算技术信号失败", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		tickerSignals[ticker] = signal
	}

	if len(tickerSignals) > 0 {
		signals[analyst.Name] = tickerSignals
	}
	return signals
}

func analystSelected(selected []string, name string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if s == name {
			return true
		}
	}
	return false
}

func parseDecisions(content string) (map[string]any, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Decisions map[string]any `json:"decisions"`
	}
	if err := json.Unmarshal(jsonPayload, &envelope); err != nil {
		return nil, fmt.Errorf("解析决策JSON失败: %w", err)
	}
	if envelope.Decisions == nil {
		return nil, fmt.Errorf("模型输出缺少 decisions 字段: %s", content)
	}

	return envelope.Decisions, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
