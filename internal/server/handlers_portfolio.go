package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

type createPositionRequest struct {
	Market          string   `json:"market"`
	Symbol          string   `json:"symbol"`
	Name            string   `json:"name"`
	Quantity        float64  `json:"quantity"`
	AvgCost         *float64 `json:"avg_cost"`
	TargetBuyPrice  *float64 `json:"target_buy_price"`
	TargetSellPrice *float64 `json:"target_sell_price"`
}

// updatePositionRequest keeps target fields as raw JSON so an absent key
// (leave unchanged) is distinguishable from an explicit null (clear).
type updatePositionRequest struct {
	Name            *string         `json:"name"`
	TargetBuyPrice  json.RawMessage `json:"target_buy_price"`
	TargetSellPrice json.RawMessage `json:"target_sell_price"`
}

type tradeRequest struct {
	PositionID string   `json:"position_id"`
	Side       string   `json:"side"`
	Quantity   float64  `json:"quantity"`
	Price      *float64 `json:"price"`
}

// handlePositions handles GET and POST /api/portfolio/positions.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		views, err := s.app.Ledger.ListPositions(r.Context())
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if views == nil {
			views = []*models.PositionView{}
		}
		WriteJSON(w, http.StatusOK, views)
	case http.MethodPost:
		var req createPositionRequest
		if !DecodeJSON(w, r, &req) {
			return
		}

		pos, err := s.app.Ledger.CreatePosition(r.Context(), interfaces.CreatePositionInput{
			Market:          models.ParseMarket(req.Market),
			Symbol:          req.Symbol,
			Name:            req.Name,
			Quantity:        req.Quantity,
			AvgCost:         req.AvgCost,
			TargetBuyPrice:  req.TargetBuyPrice,
			TargetSellPrice: req.TargetSellPrice,
		})
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, pos)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// routePositions dispatches /api/portfolio/positions/{id}.
func (s *Server) routePositions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/portfolio/positions/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		s.handlePositionUpdate(w, r, id)
	case http.MethodDelete:
		s.handlePositionDelete(w, r, id)
	default:
		RequireMethod(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) handlePositionUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req updatePositionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	input := interfaces.UpdateTargetsInput{Name: req.Name}

	var ok bool
	if input.TargetBuy, ok = targetUpdate(w, req.TargetBuyPrice); !ok {
		return
	}
	if input.TargetSell, ok = targetUpdate(w, req.TargetSellPrice); !ok {
		return
	}

	pos, err := s.app.Ledger.UpdateTargets(r.Context(), id, input)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// targetUpdate interprets a raw target field: absent leaves the target
// unchanged, null clears it, a number sets it.
func targetUpdate(w http.ResponseWriter, raw json.RawMessage) (interfaces.TargetUpdate, bool) {
	if raw == nil {
		return interfaces.TargetUpdate{}, true
	}

	var value *float64
	if err := json.Unmarshal(raw, &value); err != nil {
		WriteError(w, http.StatusBadRequest, "target price must be a number or null")
		return interfaces.TargetUpdate{}, false
	}
	return interfaces.TargetUpdate{Set: true, Value: value}, true
}

func (s *Server) handlePositionDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.app.Ledger.DeletePosition(r.Context(), id); err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTrades handles POST /api/portfolio/trades and
// GET /api/portfolio/trades?position_id=.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		trades, err := s.app.Ledger.ListTrades(r.Context(), r.URL.Query().Get("position_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if trades == nil {
			trades = []*models.Trade{}
		}
		WriteJSON(w, http.StatusOK, trades)
	case http.MethodPost:
		var req tradeRequest
		if !DecodeJSON(w, r, &req) {
			return
		}

		trade, _, err := s.app.Ledger.ApplyTrade(r.Context(), interfaces.TradeInput{
			PositionID: req.PositionID,
			Side:       models.TradeSide(strings.ToUpper(strings.TrimSpace(req.Side))),
			Quantity:   req.Quantity,
			Price:      req.Price,
		})
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, trade)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleAlerts handles GET /api/portfolio/alerts: one scan pass returning
// the alerts that newly fired.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	alerts, err := s.app.Alerts.Scan(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	WriteJSON(w, http.StatusOK, alerts)
}
