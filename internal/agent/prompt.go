package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"hedge-ai/internal/backtest"
)

const decisionTemplate = `
你是一家对冲基金的投资组合经理。请根据分析师信号与当前组合状态，为每个标的给出当日交易决策。

候选标的：{{ .Tickers }}
分析窗口：{{ .StartDate }} 至 {{ .EndDate }}

当前组合状态：
{{ .PortfolioJSON }}

分析师信号：
{{ .SignalsJSON }}

交易规则：
1. action 只能是 buy / sell / short / cover / hold 之一；
2. buy 受可用现金约束，short 受保证金约束（比例为 margin_requirement），超出部分会被自动截断；
3. sell 不能超过现有多头持仓，cover 不能超过现有空头持仓；
4. 同一标的可以同时持有多头与空头，两条腿相互独立；
5. quantity 为整数股数，hold 时填 0；
6. 不确定时保持 hold，不要给出无法执行的激进指令。

请严格输出唯一的 JSON 对象，不要附加任何解释文字，格式如下：
{
  "decisions": {
    "TICKER": {"action": "buy|sell|short|cover|hold", "quantity": 0}
  }
}
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

type promptContext struct {
	Tickers       []string
	StartDate     string
	EndDate       string
	PortfolioJSON string
	SignalsJSON   string
}

// BuildPrompt 将请求与分析师信号渲染成提示词字符串。
func BuildPrompt(req backtest.AgentRequest, signals map[string]map[string]any) (string, error) {
	portfolioJSON, err := json.MarshalIndent(req.Portfolio, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化组合快照失败: %w", err)
	}
	signalsJSON, err := json.MarshalIndent(signals, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化分析师信号失败: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptContext{
		Tickers:       req.Tickers,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		PortfolioJSON: string(portfolioJSON),
		SignalsJSON:   string(signalsJSON),
	}); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
