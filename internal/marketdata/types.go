package marketdata

// PriceBar 代表单日行情，Date 形如 2006-01-02，升序排列时即为时间顺序。
type PriceBar struct {
	Date   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type pricesResponse struct {
	Ticker string     `json:"ticker"`
	Prices []PriceBar `json:"prices"`
}
