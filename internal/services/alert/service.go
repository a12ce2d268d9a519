// Package alert evaluates target-price and strategy-signal alerts.
package alert

import (
	"context"
	"fmt"
	"sort"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

const (
	msgTargetBuy  = "已到达目标买入价 %.2f"
	msgTargetSell = "已到达目标卖出价 %.2f"
	msgSignalBuy  = "出现买入信号（参考价 %.2f）"
	msgSignalSell = "出现卖出信号（参考价 %.2f）"
)

// Service scans positions for newly triggered alerts. Firing is
// edge-triggered: each condition alerts once when it flips from false to
// true and re-arms only after being observed false again. The last observed
// state per condition is persisted so restarts do not re-fire.
type Service struct {
	store      interfaces.PortfolioStore
	marketData interfaces.MarketDataService
	indicators interfaces.IndicatorService
	logger     *common.Logger
}

// NewService creates an alert service.
func NewService(store interfaces.PortfolioStore, marketData interfaces.MarketDataService, indicators interfaces.IndicatorService, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:      store,
		marketData: marketData,
		indicators: indicators,
		logger:     logger,
	}
}

// Scan evaluates every relevant position and returns the alerts that newly
// fired, ordered by severity then symbol. Positions with no holding and no
// targets are skipped.
func (s *Service) Scan(ctx context.Context) ([]*models.Alert, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []*models.Alert
	for _, pos := range positions {
		if pos.Quantity <= 0 && pos.TargetBuyPrice == nil && pos.TargetSellPrice == nil {
			continue
		}
		alerts = append(alerts, s.scanPosition(ctx, pos)...)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		si, sj := alerts[i].AlertType.Severity(), alerts[j].AlertType.Severity()
		if si != sj {
			return si < sj
		}
		return alerts[i].Symbol < alerts[j].Symbol
	})
	return alerts, nil
}

func (s *Service) scanPosition(ctx context.Context, pos *models.Position) []*models.Alert {
	var price *float64
	quote, err := s.marketData.GetQuote(ctx, pos.Market, pos.Symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Quote unavailable, skipping target alerts")
	} else if quote != nil {
		price = quote.Price
	}

	var alerts []*models.Alert

	if pos.TargetBuyPrice != nil && price != nil {
		active := *price <= *pos.TargetBuyPrice
		message := fmt.Sprintf(msgTargetBuy, *pos.TargetBuyPrice)
		if a := s.edge(ctx, pos, models.AlertTargetBuy, pos.TargetBuyPrice, active, message, price); a != nil {
			alerts = append(alerts, a)
		}
	}
	if pos.TargetSellPrice != nil && price != nil {
		active := *price >= *pos.TargetSellPrice
		message := fmt.Sprintf(msgTargetSell, *pos.TargetSellPrice)
		if a := s.edge(ctx, pos, models.AlertTargetSell, pos.TargetSellPrice, active, message, price); a != nil {
			alerts = append(alerts, a)
		}
	}

	analysis, err := s.indicators.Analyze(ctx, pos.Market, pos.Symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Analysis unavailable, skipping signal alerts")
		return alerts
	}

	// signal state Unavailable means the inputs were missing, not that the
	// condition went false; leave the dedup state untouched
	if analysis.BuyOK != models.SignalUnavailable {
		active := analysis.BuyOK == models.SignalConfirmed
		message := fmt.Sprintf(msgSignalBuy, deref(analysis.BuyPriceAggressive))
		if a := s.edge(ctx, pos, models.AlertSignalBuy, analysis.BuyPriceAggressive, active, message, price); a != nil {
			alerts = append(alerts, a)
		}
	}
	if pos.Quantity > 0 && analysis.SellOK != models.SignalUnavailable {
		active := analysis.SellOK == models.SignalConfirmed
		message := fmt.Sprintf(msgSignalSell, deref(analysis.SellPrice))
		if a := s.edge(ctx, pos, models.AlertSignalSell, analysis.SellPrice, active, message, price); a != nil {
			alerts = append(alerts, a)
		}
	}

	return alerts
}

// edge applies edge-triggered dedup for one condition, persisting the
// observed state and returning an alert only on a false→true transition.
func (s *Service) edge(ctx context.Context, pos *models.Position, alertType models.AlertType, trigger *float64, active bool, message string, price *float64) *models.Alert {
	key := models.AlertKey(pos.ID, alertType, trigger)

	state, err := s.store.GetAlertState(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Alert state read failed")
		return nil
	}
	wasActive := state != nil && state.Active

	if state == nil || state.Active != active {
		if err := s.store.SaveAlertState(ctx, &models.AlertState{
			Key:        key,
			PositionID: pos.ID,
			AlertType:  alertType,
			Active:     active,
		}); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Alert state write failed")
		}
	}

	if !active || wasActive {
		return nil
	}

	return &models.Alert{
		Key:          key,
		PositionID:   pos.ID,
		Market:       pos.Market,
		Symbol:       pos.Symbol,
		Name:         pos.Name,
		AlertType:    alertType,
		Message:      message,
		CurrentPrice: price,
		TriggerPrice: trigger,
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ interfaces.AlertService = (*Service)(nil)
