package portfolio

// PositionState 表示单个标的的持仓状态，多头与空头相互独立。
type PositionState struct {
	Long            int
	Short           int
	LongCostBasis   float64
	ShortCostBasis  float64
	ShortMarginUsed float64
}

// RealizedGains 记录单个标的两个方向的累计已实现盈亏。
type RealizedGains struct {
	Long  float64
	Short float64
}

// Snapshot 为组合状态的只读副本，供外部决策代理与报表使用。
type Snapshot struct {
	Cash              float64                  `json:"cash"`
	MarginUsed        float64                  `json:"margin_used"`
	MarginRequirement float64                  `json:"margin_requirement"`
	Positions         map[string]PositionState `json:"positions"`
	RealizedGains     map[string]RealizedGains `json:"realized_gains"`
}

// Portfolio 是回测的记账核心：现金、双向持仓、保证金与已实现盈亏。
// 所有状态仅通过四个交易原语变更，内部不做任何 I/O。
type Portfolio struct {
	cash              float64
	marginRequirement float64
	marginUsed        float64
	positions         map[string]*PositionState
	realizedGains     map[string]*RealizedGains
}

// New 创建组合，初始仅有现金，保证金比例在整个回测期间固定。
func New(tickers []string, initialCash float64, marginRequirement float64) *Portfolio {
	p := &Portfolio{
		cash:              initialCash,
		marginRequirement: marginRequirement,
		positions:         make(map[string]*PositionState, len(tickers)),
		realizedGains:     make(map[string]*RealizedGains, len(tickers)),
	}
	for _, ticker := range tickers {
		p.positions[ticker] = &PositionState{}
		p.realizedGains[ticker] = &RealizedGains{}
	}
	return p
}

// Cash 返回当前现金余额。
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// MarginUsed 返回当前占用的保证金总额。
func (p *Portfolio) MarginUsed() float64 {
	return p.marginUsed
}

// MarginRequirement 返回做空保证金比例。
func (p *Portfolio) MarginRequirement() float64 {
	return p.marginRequirement
}

// Snapshot 返回组合状态的深拷贝，调用方无法通过它污染内部状态。
func (p *Portfolio) Snapshot() Snapshot {
	positions := make(map[string]PositionState, len(p.positions))
	for ticker, pos := range p.positions {
		positions[ticker] = *pos
	}
	gains := make(map[string]RealizedGains, len(p.realizedGains))
	for ticker, g := range p.realizedGains {
		gains[ticker] = *g
	}
	return Snapshot{
		Cash:              p.cash,
		MarginUsed:        p.marginUsed,
		MarginRequirement: p.marginRequirement,
		Positions:         positions,
		RealizedGains:     gains,
	}
}

func (p *Portfolio) position(ticker string) *PositionState {
	pos, ok := p.positions[ticker]
	if !ok {
		pos = &PositionState{}
		p.positions[ticker] = pos
	}
	return pos
}

func (p *Portfolio) gains(ticker string) *RealizedGains {
	g, ok := p.realizedGains[ticker]
	if !ok {
		g = &RealizedGains{}
		p.realizedGains[ticker] = g
	}
	return g
}

// ApplyLongBuy 买入多头。现金不足时按 floor(cash/price) 部分成交，返回实际成交数量。
func (p *Portfolio) ApplyLongBuy(ticker string, quantity int, price float64) int {
	if quantity <= 0 {
		return 0
	}
	pos := p.position(ticker)

	cost := float64(quantity) * price
	if cost <= p.cash {
		p.fillLong(pos, quantity, price)
		return quantity
	}

	if price <= 0 {
		return 0
	}
	maxQuantity := int(p.cash / price)
	if maxQuantity <= 0 {
		return 0
	}
	p.fillLong(pos, maxQuantity, price)
	return maxQuantity
}

func (p *Portfolio) fillLong(pos *PositionState, quantity int, price float64) {
	oldShares := pos.Long
	totalShares := oldShares + quantity
	if totalShares > 0 {
		oldCost := pos.LongCostBasis * float64(oldShares)
		newCost := price * float64(quantity)
		pos.LongCostBasis = (oldCost + newCost) / float64(totalShares)
	}
	pos.Long = totalShares
	p.cash -= float64(quantity) * price
}

// ApplyLongSell 卖出多头，数量截断到现有持仓。已实现盈亏按加权成本计提。
func (p *Portfolio) ApplyLongSell(ticker string, quantity int, price float64) int {
	if quantity <= 0 {
		return 0
	}
	pos := p.position(ticker)
	if quantity > pos.Long {
		quantity = pos.Long
	}
	if quantity <= 0 {
		return 0
	}

	avgCost := 0.0
	if pos.Long > 0 {
		avgCost = pos.LongCostBasis
	}
	p.gains(ticker).Long += (price - avgCost) * float64(quantity)

	pos.Long -= quantity
	p.cash += float64(quantity) * price
	if pos.Long == 0 {
		pos.LongCostBasis = 0.0
	}
	return quantity
}

// ApplyShortOpen 开空仓：卖出所得计入现金，同时按比例冻结保证金。
// 现金不足以覆盖保证金时按 floor(cash/(price*ratio)) 部分成交；
// 保证金比例为 0 时不存在可行性约束，按请求数量全额成交。
func (p *Portfolio) ApplyShortOpen(ticker string, quantity int, price float64) int {
	if quantity <= 0 {
		return 0
	}
	pos := p.position(ticker)

	marginRatio := p.marginRequirement
	marginRequired := price * float64(quantity) * marginRatio
	if marginRequired <= p.cash {
		p.fillShort(pos, quantity, price, marginRequired)
		return quantity
	}

	if marginRatio <= 0 || price <= 0 {
		return 0
	}
	maxQuantity := int(p.cash / (price * marginRatio))
	if maxQuantity <= 0 {
		return 0
	}
	marginRequired = price * float64(maxQuantity) * marginRatio
	p.fillShort(pos, maxQuantity, price, marginRequired)
	return maxQuantity
}

func (p *Portfolio) fillShort(pos *PositionState, quantity int, price float64, marginRequired float64) {
	oldShares := pos.Short
	totalShares := oldShares + quantity
	if totalShares > 0 {
		oldCost := pos.ShortCostBasis * float64(oldShares)
		newCost := price * float64(quantity)
		pos.ShortCostBasis = (oldCost + newCost) / float64(totalShares)
	}
	pos.Short = totalShares
	pos.ShortMarginUsed += marginRequired
	p.marginUsed += marginRequired

	proceeds := price * float64(quantity)
	p.cash += proceeds
	p.cash -= marginRequired
}

// ApplyShortCover 平空仓，数量截断到现有空头。保证金按平仓比例释放回现金。
func (p *Portfolio) ApplyShortCover(ticker string, quantity int, price float64) int {
	if quantity <= 0 {
		return 0
	}
	pos := p.position(ticker)
	if quantity > pos.Short {
		quantity = pos.Short
	}
	if quantity <= 0 {
		return 0
	}

	avgShortPrice := 0.0
	if pos.Short > 0 {
		avgShortPrice = pos.ShortCostBasis
	}
	realizedGain := (avgShortPrice - price) * float64(quantity)

	portion := 1.0
	if pos.Short > 0 {
		portion = float64(quantity) / float64(pos.Short)
	}
	marginToRelease := portion * pos.ShortMarginUsed

	pos.Short -= quantity
	pos.ShortMarginUsed -= marginToRelease
	p.marginUsed -= marginToRelease
	p.cash += marginToRelease
	p.cash -= float64(quantity) * price
	p.gains(ticker).Short += realizedGain

	if pos.Short == 0 {
		pos.ShortCostBasis = 0.0
		pos.ShortMarginUsed = 0.0
	}
	return quantity
}
