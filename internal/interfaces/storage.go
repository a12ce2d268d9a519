// Package interfaces defines service contracts for Tickwatch
package interfaces

import (
	"context"

	"github.com/tickwatch/tickwatch/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	PortfolioStore() PortfolioStore

	// Lifecycle
	Close() error
}

// PortfolioStore persists positions, trades, and alert states
type PortfolioStore interface {
	// Positions
	SavePosition(ctx context.Context, position *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	FindPositionBySymbol(ctx context.Context, market models.Market, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context) ([]*models.Position, error)
	// DeletePosition removes a position together with its trades and
	// alert states
	DeletePosition(ctx context.Context, id string) error

	// Trades
	SaveTrade(ctx context.Context, trade *models.Trade) error
	ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error)

	// Alert dedup states, keyed by (position, alert type)
	GetAlertState(ctx context.Context, key string) (*models.AlertState, error)
	SaveAlertState(ctx context.Context, state *models.AlertState) error

	Close() error
}
