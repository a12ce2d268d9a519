// Package interfaces defines service contracts for Tickwatch
package interfaces

import (
	"context"

	"github.com/tickwatch/tickwatch/internal/models"
)

// MarketDataService provides cached access to quotes and daily history
type MarketDataService interface {
	// GetQuote retrieves a real-time quote, served from cache when fresh
	GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error)

	// GetDailyBars retrieves forward-adjusted daily bars, oldest first
	GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error)
}

// IndicatorService computes indicator snapshots and trading recommendations
type IndicatorService interface {
	// Analyze computes the full indicator snapshot plus the buy/sell
	// recommendation for a symbol. Results are cached per (market, symbol)
	// for a short TTL.
	Analyze(ctx context.Context, market models.Market, symbol string) (*models.Analysis, error)
}

// CreatePositionInput holds the fields for opening a watch position
type CreatePositionInput struct {
	Market          models.Market
	Symbol          string
	Name            string
	Quantity        float64
	AvgCost         *float64
	TargetBuyPrice  *float64
	TargetSellPrice *float64
}

// TargetUpdate distinguishes "leave unchanged" (Set false) from
// "set to Value" where a nil Value clears the target.
type TargetUpdate struct {
	Set   bool
	Value *float64
}

// UpdateTargetsInput holds a partial update of a position's alert targets
type UpdateTargetsInput struct {
	Name       *string
	TargetBuy  TargetUpdate
	TargetSell TargetUpdate
}

// TradeInput holds the fields for recording a trade against a position
type TradeInput struct {
	PositionID string
	Side       models.TradeSide
	Quantity   float64
	// Price is optional; when nil the current quote price is used
	Price *float64
}

// LedgerService manages watch positions and their trade history
type LedgerService interface {
	// CreatePosition opens a position, or merges into the existing
	// position for the same (market, symbol)
	CreatePosition(ctx context.Context, input CreatePositionInput) (*models.Position, error)

	// UpdateTargets applies a partial update to a position's targets
	UpdateTargets(ctx context.Context, positionID string, input UpdateTargetsInput) (*models.Position, error)

	// DeletePosition removes a position and its trade history
	DeletePosition(ctx context.Context, positionID string) error

	// ApplyTrade records a trade and adjusts quantity and average cost
	ApplyTrade(ctx context.Context, input TradeInput) (*models.Trade, *models.Position, error)

	// ListPositions returns all positions enriched with live valuation
	// and strategy signals
	ListPositions(ctx context.Context) ([]*models.PositionView, error)

	// ListTrades returns trades, optionally filtered by position,
	// newest first
	ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error)
}

// AlertService evaluates alert conditions across all positions
type AlertService interface {
	// Scan evaluates every position against its target prices and
	// strategy signals, returning newly triggered alerts ordered by
	// severity then symbol
	Scan(ctx context.Context) ([]*models.Alert, error)
}
