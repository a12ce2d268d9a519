// Package interfaces defines service contracts for Tickwatch
package interfaces

import (
	"context"

	"github.com/tickwatch/tickwatch/internal/models"
)

// MarketDataClient provides access to an upstream quote provider
type MarketDataClient interface {
	// GetQuote retrieves a real-time quote for a normalized symbol
	GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error)

	// GetDailyBars retrieves up to count forward-adjusted daily bars,
	// oldest first
	GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error)
}
