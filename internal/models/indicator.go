package models

import "encoding/json"

// Trend labels follow the wire contract the dashboard consumes.
const (
	TrendRising  = "上涨"
	TrendFalling = "下跌"
	TrendFlat    = "盘整"
)

// SignalState is the tri-state confidence of a signal condition.
type SignalState int

const (
	// SignalUnavailable means the condition cannot be computed from the
	// available data.
	SignalUnavailable SignalState = iota
	// SignalWaiting means the condition was computed but does not hold now.
	SignalWaiting
	// SignalConfirmed means the condition currently holds.
	SignalConfirmed
)

// Bool serializes the tri-state to the nullable boolean used on the wire:
// Confirmed → true, Waiting → false, Unavailable → nil.
func (s SignalState) Bool() *bool {
	switch s {
	case SignalConfirmed:
		v := true
		return &v
	case SignalWaiting:
		v := false
		return &v
	default:
		return nil
	}
}

// SignalStateFromBool maps a stored nullable boolean back to the tri-state.
func SignalStateFromBool(b *bool) SignalState {
	switch {
	case b == nil:
		return SignalUnavailable
	case *b:
		return SignalConfirmed
	default:
		return SignalWaiting
	}
}

// MarshalJSON keeps the boundary representation a nullable boolean.
func (s SignalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Bool())
}

// UnmarshalJSON accepts the nullable-boolean wire form.
func (s *SignalState) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*s = SignalStateFromBool(b)
	return nil
}

// IndicatorSnapshot holds the per-symbol technical indicators computed from a
// daily price history. Any field is nil when the underlying window has
// insufficient history.
type IndicatorSnapshot struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Market   Market `json:"market"`
	Currency string `json:"currency,omitempty"`
	AsOf     string `json:"as_of,omitempty"`

	MarketCap *float64 `json:"market_cap"`
	Amount    *float64 `json:"amount"`
	High52W   *float64 `json:"high_52w"`
	Low52W    *float64 `json:"low_52w"`

	MA5      *float64 `json:"ma5"`
	MA20     *float64 `json:"ma20"`
	MA60     *float64 `json:"ma60"`
	SlopeRaw *float64 `json:"slope_raw"`
	SlopePct *float64 `json:"slope_pct"`
	Trend    *string  `json:"trend"`
	PERatio  *float64 `json:"pe_ratio"`
	ATR14    *float64 `json:"atr14"`
	RSI14    *float64 `json:"rsi14"`
	MACDDif  *float64 `json:"macd_dif"`
	MACDDea  *float64 `json:"macd_dea"`
	MACDHist *float64 `json:"macd_hist"`

	// RSIRebound is true when RSI hooked upward from a low level within the
	// trailing window. Carried on the snapshot so signal evaluation stays
	// stateless.
	RSIRebound *bool `json:"rsi_rebound"`
}

// Analysis is the full analytical view of one symbol: the indicator
// snapshot plus the buy/sell recommendation derived from it.
type Analysis struct {
	IndicatorSnapshot
	SignalRecommendation
}

// SignalRecommendation carries the buy/sell price levels with their tri-state
// confirmation and human-readable rationale. A non-nil price is always paired
// with a non-Unavailable state.
type SignalRecommendation struct {
	BuyPriceAggressive *float64    `json:"buy_price_aggressive"`
	BuyReason          *string     `json:"buy_reason"`
	BuyOK              SignalState `json:"buy_price_aggressive_ok"`
	SellPrice          *float64    `json:"sell_price"`
	SellReason         *string     `json:"sell_reason"`
	SellOK             SignalState `json:"sell_price_ok"`
}
