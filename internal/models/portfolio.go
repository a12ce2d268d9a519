package models

import (
	"fmt"
	"time"
)

// TradeSide is the direction of a trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// ValidTradeSide reports whether s is BUY or SELL.
func ValidTradeSide(s TradeSide) bool {
	return s == TradeBuy || s == TradeSell
}

// Position is a user-owned stock holding with optional target price levels.
// AvgCost is nil while the position holds no units.
type Position struct {
	ID              string    `json:"id" badgerhold:"key"`
	Market          Market    `json:"market"`
	Symbol          string    `json:"symbol" badgerhold:"index"`
	Name            string    `json:"name,omitempty"`
	Quantity        float64   `json:"quantity"`
	AvgCost         *float64  `json:"avg_cost"`
	TargetBuyPrice  *float64  `json:"target_buy_price"`
	TargetSellPrice *float64  `json:"target_sell_price"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Trade is an immutable, append-only record of a position mutation.
// Amount = Price * Quantity.
type Trade struct {
	ID         string    `json:"id" badgerhold:"key"`
	PositionID string    `json:"position_id" badgerhold:"index"`
	Side       TradeSide `json:"side"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Amount     float64   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// Valuation holds the computed market-value fields for a position. All fields
// are nil when the current price or cost basis is unavailable.
type Valuation struct {
	CurrentPrice     *float64 `json:"current_price"`
	MarketValue      *float64 `json:"market_value"`
	UnrealizedPnL    *float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct *float64 `json:"unrealized_pnl_pct"`
}

// PositionView is a Position augmented with its valuation and strategy signal
// state for the read API. Computed on response, never persisted.
type PositionView struct {
	Position
	Valuation

	StrategyBuyPrice  *float64    `json:"strategy_buy_price"`
	StrategyBuyOK     SignalState `json:"strategy_buy_ok"`
	StrategyBuyReason *string     `json:"strategy_buy_reason"`

	StrategySellPrice  *float64    `json:"strategy_sell_price"`
	StrategySellOK     SignalState `json:"strategy_sell_ok"`
	StrategySellReason *string     `json:"strategy_sell_reason"`
}

// AlertType classifies a portfolio alert.
type AlertType string

const (
	AlertTargetBuy  AlertType = "target_buy"
	AlertTargetSell AlertType = "target_sell"
	AlertSignalBuy  AlertType = "signal_buy"
	AlertSignalSell AlertType = "signal_sell"
)

// Severity ranks alert types for output ordering: signal alerts surface
// before user target alerts.
func (t AlertType) Severity() int {
	switch t {
	case AlertSignalBuy, AlertSignalSell:
		return 0
	case AlertTargetBuy, AlertTargetSell:
		return 1
	}
	return 2
}

// Alert is a deduplicated notification that a watched condition became true.
type Alert struct {
	Key          string    `json:"key"`
	PositionID   string    `json:"position_id"`
	Market       Market    `json:"market"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name,omitempty"`
	AlertType    AlertType `json:"alert_type"`
	Message      string    `json:"message"`
	CurrentPrice *float64  `json:"current_price"`
	TriggerPrice *float64  `json:"trigger_price"`
}

// AlertKey derives the deterministic dedup key for an alert. Target alerts
// bucket the trigger price so an edited target re-arms the alert; signal
// alerts key on position and type alone.
func AlertKey(positionID string, alertType AlertType, triggerPrice *float64) string {
	switch alertType {
	case AlertTargetBuy, AlertTargetSell:
		bucket := int64(0)
		if triggerPrice != nil {
			bucket = int64(*triggerPrice * 10000)
		}
		return fmt.Sprintf("%s:%s:%d", positionID, alertType, bucket)
	default:
		return fmt.Sprintf("%s:%s", positionID, alertType)
	}
}

// AlertState tracks the last observed boolean for one (position, alert type)
// condition. An alert fires only on a false→true transition.
type AlertState struct {
	Key        string    `json:"key" badgerhold:"key"` // AlertKey of the tracked condition
	PositionID string    `json:"position_id" badgerhold:"index"`
	AlertType  AlertType `json:"alert_type"`
	Active     bool      `json:"active"`
	UpdatedAt  time.Time `json:"updated_at"`
}
