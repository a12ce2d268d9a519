// Package ledger manages watch positions and their trade history.
package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

// quantityEpsilon absorbs float dust from fractional sell sequences so a
// fully-sold position lands on exactly zero with its cost basis cleared.
const quantityEpsilon = 1e-9

// Service implements the portfolio ledger over the badger-backed store.
// Mutations serialize per position through a mutex arena so concurrent
// trades against the same position cannot interleave.
type Service struct {
	store      interfaces.PortfolioStore
	marketData interfaces.MarketDataService
	indicators interfaces.IndicatorService
	logger     *common.Logger

	arenaMu sync.Mutex
	arena   map[string]*sync.Mutex
}

// NewService creates a ledger service.
func NewService(store interfaces.PortfolioStore, marketData interfaces.MarketDataService, indicators interfaces.IndicatorService, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:      store,
		marketData: marketData,
		indicators: indicators,
		logger:     logger,
		arena:      make(map[string]*sync.Mutex),
	}
}

// positionLock returns the mutex guarding one position, creating it on
// first use. Locks are never removed; the arena stays small in practice.
func (s *Service) positionLock(positionID string) *sync.Mutex {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()

	mu, ok := s.arena[positionID]
	if !ok {
		mu = &sync.Mutex{}
		s.arena[positionID] = mu
	}
	return mu
}

// CreatePosition opens a position. When a position for the same
// (market, symbol) already exists the quantities merge with a
// quantity-weighted average cost.
func (s *Service) CreatePosition(ctx context.Context, input interfaces.CreatePositionInput) (*models.Position, error) {
	if !models.ValidMarket(input.Market) {
		return nil, &models.ValidationError{Field: "market", Reason: "must be CN, HK or US"}
	}
	symbol := models.NormalizeSymbol(input.Market, input.Symbol)
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if input.Quantity < 0 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if input.Quantity > 0 && input.AvgCost == nil {
		return nil, &models.ValidationError{Field: "avg_cost", Reason: "required when quantity is positive"}
	}

	existing, err := s.store.FindPositionBySymbol(ctx, input.Market, symbol)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		mu := s.positionLock(existing.ID)
		mu.Lock()
		defer mu.Unlock()

		// re-read under the lock
		pos, err := s.store.GetPosition(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		mergeHolding(pos, input.Quantity, input.AvgCost)
		if input.Name != "" {
			pos.Name = input.Name
		}
		if input.TargetBuyPrice != nil {
			pos.TargetBuyPrice = input.TargetBuyPrice
		}
		if input.TargetSellPrice != nil {
			pos.TargetSellPrice = input.TargetSellPrice
		}
		if err := s.store.SavePosition(ctx, pos); err != nil {
			return nil, err
		}
		s.logger.Info().Str("position_id", pos.ID).Str("symbol", symbol).Msg("Merged into existing position")
		return pos, nil
	}

	pos := &models.Position{
		ID:              uuid.New().String(),
		Market:          input.Market,
		Symbol:          symbol,
		Name:            input.Name,
		Quantity:        input.Quantity,
		TargetBuyPrice:  input.TargetBuyPrice,
		TargetSellPrice: input.TargetSellPrice,
	}
	if input.Quantity > 0 {
		pos.AvgCost = input.AvgCost
	}
	if err := s.store.SavePosition(ctx, pos); err != nil {
		return nil, err
	}
	s.logger.Info().Str("position_id", pos.ID).Str("symbol", symbol).Msg("Position created")
	return pos, nil
}

// mergeHolding folds extra units into a position at a quantity-weighted
// average cost.
func mergeHolding(pos *models.Position, quantity float64, cost *float64) {
	if quantity <= 0 || cost == nil {
		return
	}
	if pos.Quantity <= 0 || pos.AvgCost == nil {
		pos.Quantity += quantity
		pos.AvgCost = models.Float(*cost)
		return
	}
	total := pos.Quantity + quantity
	avg := (*pos.AvgCost*pos.Quantity + *cost*quantity) / total
	pos.Quantity = total
	pos.AvgCost = &avg
}

// UpdateTargets applies a partial update to a position's name and target
// prices. A target update with a nil value clears the target.
func (s *Service) UpdateTargets(ctx context.Context, positionID string, input interfaces.UpdateTargetsInput) (*models.Position, error) {
	mu := s.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()

	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		pos.Name = *input.Name
	}
	if input.TargetBuy.Set {
		if err := validateTarget("target_buy_price", input.TargetBuy.Value); err != nil {
			return nil, err
		}
		pos.TargetBuyPrice = input.TargetBuy.Value
	}
	if input.TargetSell.Set {
		if err := validateTarget("target_sell_price", input.TargetSell.Value); err != nil {
			return nil, err
		}
		pos.TargetSellPrice = input.TargetSell.Value
	}

	if err := s.store.SavePosition(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

func validateTarget(field string, value *float64) error {
	if value != nil && *value <= 0 {
		return &models.ValidationError{Field: field, Reason: "must be positive"}
	}
	return nil
}

// DeletePosition removes a position together with its trades and alert
// states.
func (s *Service) DeletePosition(ctx context.Context, positionID string) error {
	mu := s.positionLock(positionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.DeletePosition(ctx, positionID); err != nil {
		return err
	}
	s.logger.Info().Str("position_id", positionID).Msg("Position deleted")
	return nil
}

// ApplyTrade records a trade and adjusts the position's quantity and
// average cost. BUY raises the quantity-weighted average; SELL leaves the
// average untouched and clears it when the position empties.
func (s *Service) ApplyTrade(ctx context.Context, input interfaces.TradeInput) (*models.Trade, *models.Position, error) {
	if !models.ValidTradeSide(input.Side) {
		return nil, nil, &models.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if input.Quantity <= 0 {
		return nil, nil, &models.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if input.Price != nil && *input.Price <= 0 {
		return nil, nil, &models.ValidationError{Field: "price", Reason: "must be positive"}
	}

	mu := s.positionLock(input.PositionID)
	mu.Lock()
	defer mu.Unlock()

	pos, err := s.store.GetPosition(ctx, input.PositionID)
	if err != nil {
		return nil, nil, err
	}

	price, err := s.tradePrice(ctx, pos, input.Price)
	if err != nil {
		return nil, nil, err
	}

	switch input.Side {
	case models.TradeBuy:
		mergeHolding(pos, input.Quantity, &price)
	case models.TradeSell:
		if input.Quantity > pos.Quantity+quantityEpsilon {
			return nil, nil, &models.InsufficientQuantityError{Held: pos.Quantity, Requested: input.Quantity}
		}
		pos.Quantity -= input.Quantity
		// fractional sells accumulate float dust; treat near-zero as flat
		if pos.Quantity <= quantityEpsilon {
			pos.Quantity = 0
			pos.AvgCost = nil
		}
	}

	trade := &models.Trade{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		Side:       input.Side,
		Price:      price,
		Quantity:   input.Quantity,
		Amount:     price * input.Quantity,
	}

	if err := s.store.SaveTrade(ctx, trade); err != nil {
		return nil, nil, err
	}
	if err := s.store.SavePosition(ctx, pos); err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("position_id", pos.ID).
		Str("side", string(input.Side)).
		Float64("price", price).
		Float64("quantity", input.Quantity).
		Msg("Trade applied")

	return trade, pos, nil
}

// tradePrice resolves the execution price, falling back to the live quote
// when the caller did not supply one.
func (s *Service) tradePrice(ctx context.Context, pos *models.Position, explicit *float64) (float64, error) {
	if explicit != nil {
		return *explicit, nil
	}

	quote, err := s.marketData.GetQuote(ctx, pos.Market, pos.Symbol)
	if err != nil || quote == nil || quote.Price == nil {
		return 0, &models.QuoteUnavailableError{Symbol: pos.Symbol, Market: pos.Market}
	}
	return *quote.Price, nil
}

// ListPositions returns every position enriched with live valuation and
// strategy signals. Quote or analysis failures degrade to nil fields for
// the affected position.
func (s *Service) ListPositions(ctx context.Context) ([]*models.PositionView, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*models.PositionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, s.buildView(ctx, pos))
	}
	return views, nil
}

func (s *Service) buildView(ctx context.Context, pos *models.Position) *models.PositionView {
	view := &models.PositionView{Position: *pos}
	view.StrategyBuyOK = models.SignalUnavailable
	view.StrategySellOK = models.SignalUnavailable

	var price *float64
	quote, err := s.marketData.GetQuote(ctx, pos.Market, pos.Symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Quote unavailable for valuation")
	} else if quote != nil {
		price = quote.Price
		if pos.Name == "" {
			view.Name = quote.Name
		}
	}
	view.Valuation = Value(pos, price)

	analysis, err := s.indicators.Analyze(ctx, pos.Market, pos.Symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Analysis unavailable for position")
		return view
	}
	view.StrategyBuyPrice = analysis.BuyPriceAggressive
	view.StrategyBuyOK = analysis.BuyOK
	view.StrategyBuyReason = analysis.BuyReason
	view.StrategySellPrice = analysis.SellPrice
	view.StrategySellOK = analysis.SellOK
	view.StrategySellReason = analysis.SellReason
	return view
}

// Value computes the valuation for a position at the given price. Every
// field is nil when the price is unknown; pnl fields additionally require
// a cost basis and a non-empty holding.
func Value(pos *models.Position, price *float64) models.Valuation {
	var val models.Valuation
	if price == nil {
		return val
	}
	val.CurrentPrice = models.Float(*price)
	val.MarketValue = models.Float(*price * pos.Quantity)

	if pos.AvgCost == nil || pos.Quantity <= 0 {
		return val
	}
	pnl := (*price - *pos.AvgCost) * pos.Quantity
	val.UnrealizedPnL = &pnl
	if *pos.AvgCost != 0 {
		pct := (*price - *pos.AvgCost) / *pos.AvgCost * 100
		val.UnrealizedPnLPct = &pct
	}
	return val
}

// ListTrades returns trades newest first, optionally filtered to one
// position.
func (s *Service) ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error) {
	trades, err := s.store.ListTrades(ctx, positionID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})
	return trades, nil
}

var _ interfaces.LedgerService = (*Service)(nil)
