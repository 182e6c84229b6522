package backtest

import (
	"context"
	"fmt"

	mapstructure "github.com/go-viper/mapstructure/v2"
)

// AgentController 负责调用外部决策代理并清洗其输出：
// 缺失的标的补为 hold/0，非法动作回退为 hold，数量尽力转为数值。
// 分析师信号原样透传，引擎不解释其内容。
type AgentController struct{}

// NewAgentController 创建控制器。
func NewAgentController() *AgentController {
	return &AgentController{}
}

// RunAgent 调用代理并返回归一化输出。
func (c *AgentController) RunAgent(ctx context.Context, agent Agent, req AgentRequest) (AgentOutput, error) {
	if agent == nil {
		return AgentOutput{}, fmt.Errorf("backtest: agent 不能为空")
	}

	raw, err := agent.Call(ctx, req)
	if err != nil {
		return AgentOutput{}, fmt.Errorf("调用决策代理失败: %w", err)
	}

	return c.Normalize(raw, req.Tickers), nil
}

// Normalize 将原始输出收敛为 AgentOutput，任何非法内容都不会向上抛出。
func (c *AgentController) Normalize(raw RawAgentOutput, tickers []string) AgentOutput {
	decisions := make(map[string]Decision, len(tickers))
	for _, ticker := range tickers {
		decisions[ticker] = normalizeDecision(raw.Decisions[ticker])
	}

	signals := raw.AnalystSignals
	if signals == nil {
		signals = make(map[string]map[string]any)
	}

	return AgentOutput{
		Decisions:      decisions,
		AnalystSignals: signals,
	}
}

func normalizeDecision(raw any) Decision {
	fallback := Decision{Action: ActionHold, Quantity: 0}
	if raw == nil {
		return fallback
	}

	var loose struct {
		Action   string `mapstructure:"action"`
		Quantity any    `mapstructure:"quantity"`
	}
	if err := decodeLoose(raw, &loose); err != nil {
		return fallback
	}

	action, ok := ParseAction(loose.Action)
	if !ok {
		action = ActionHold
	}

	quantity := coerceQuantity(loose.Quantity)

	return Decision{Action: action, Quantity: quantity}
}

func coerceQuantity(raw any) float64 {
	if raw == nil {
		return 0
	}
	var quantity float64
	if err := decodeLoose(raw, &quantity); err != nil {
		return 0
	}
	return quantity
}

func decodeLoose(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
