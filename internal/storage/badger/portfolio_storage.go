package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

type portfolioStorage struct {
	store  *Store
	logger *common.Logger
}

// NewPortfolioStorage creates a new PortfolioStore backed by BadgerHold.
func NewPortfolioStorage(store *Store, logger *common.Logger) interfaces.PortfolioStore {
	return &portfolioStorage{store: store, logger: logger}
}

func (s *portfolioStorage) SavePosition(_ context.Context, position *models.Position) error {
	position.UpdatedAt = time.Now().UTC()
	if position.CreatedAt.IsZero() {
		position.CreatedAt = position.UpdatedAt
	}

	if err := s.store.db.Upsert(position.ID, position); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	s.logger.Debug().Str("id", position.ID).Str("symbol", position.Symbol).Msg("Position saved")
	return nil
}

func (s *portfolioStorage) GetPosition(_ context.Context, id string) (*models.Position, error) {
	var position models.Position
	err := s.store.db.Get(id, &position)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, &models.NotFoundError{Entity: "position", ID: id}
		}
		return nil, fmt.Errorf("failed to get position '%s': %w", id, err)
	}
	return &position, nil
}

// FindPositionBySymbol returns nil without error when no position exists
// for the pair; absence is a normal outcome here.
func (s *portfolioStorage) FindPositionBySymbol(_ context.Context, market models.Market, symbol string) (*models.Position, error) {
	var positions []models.Position
	query := badgerhold.Where("Symbol").Eq(symbol).And("Market").Eq(market).Index("Symbol")
	if err := s.store.db.Find(&positions, query); err != nil {
		return nil, fmt.Errorf("failed to find position %s.%s: %w", symbol, market, err)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

func (s *portfolioStorage) ListPositions(_ context.Context) ([]*models.Position, error) {
	var positions []models.Position
	if err := s.store.db.Find(&positions, nil); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].CreatedAt.Before(positions[j].CreatedAt)
	})

	result := make([]*models.Position, len(positions))
	for i := range positions {
		result[i] = &positions[i]
	}
	return result, nil
}

func (s *portfolioStorage) DeletePosition(_ context.Context, id string) error {
	err := s.store.db.Delete(id, models.Position{})
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return &models.NotFoundError{Entity: "position", ID: id}
		}
		return fmt.Errorf("failed to delete position '%s': %w", id, err)
	}

	if err := s.store.db.DeleteMatching(models.Trade{}, badgerhold.Where("PositionID").Eq(id).Index("PositionID")); err != nil {
		return fmt.Errorf("failed to delete trades for position '%s': %w", id, err)
	}
	if err := s.store.db.DeleteMatching(models.AlertState{}, badgerhold.Where("PositionID").Eq(id).Index("PositionID")); err != nil {
		return fmt.Errorf("failed to delete alert states for position '%s': %w", id, err)
	}

	s.logger.Debug().Str("id", id).Msg("Position deleted with trades and alert states")
	return nil
}

func (s *portfolioStorage) SaveTrade(_ context.Context, trade *models.Trade) error {
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}

	if err := s.store.db.Upsert(trade.ID, trade); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	s.logger.Debug().Str("id", trade.ID).Str("position_id", trade.PositionID).Msg("Trade saved")
	return nil
}

func (s *portfolioStorage) ListTrades(_ context.Context, positionID string) ([]*models.Trade, error) {
	var trades []models.Trade
	var query *badgerhold.Query
	if positionID != "" {
		query = badgerhold.Where("PositionID").Eq(positionID).Index("PositionID")
	}
	if err := s.store.db.Find(&trades, query); err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	// newest first
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})

	result := make([]*models.Trade, len(trades))
	for i := range trades {
		result[i] = &trades[i]
	}
	return result, nil
}

// GetAlertState returns nil without error when no state has been recorded
// yet for the key.
func (s *portfolioStorage) GetAlertState(_ context.Context, key string) (*models.AlertState, error) {
	var state models.AlertState
	err := s.store.db.Get(key, &state)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert state '%s': %w", key, err)
	}
	return &state, nil
}

func (s *portfolioStorage) SaveAlertState(_ context.Context, state *models.AlertState) error {
	state.UpdatedAt = time.Now().UTC()
	if err := s.store.db.Upsert(state.Key, state); err != nil {
		return fmt.Errorf("failed to save alert state: %w", err)
	}
	return nil
}

func (s *portfolioStorage) Close() error {
	return s.store.Close()
}

// Ensure portfolioStorage implements PortfolioStore
var _ interfaces.PortfolioStore = (*portfolioStorage)(nil)
