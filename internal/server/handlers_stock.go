package server

import (
	"net/http"
)

// handleStockPrice handles GET /api/stock/price?symbol=&market=.
func (s *Server) handleStockPrice(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	market, symbol, ok := symbolQuery(w, r)
	if !ok {
		return
	}

	quote, err := s.app.MarketData.GetQuote(r.Context(), market, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, quote)
}

// handleStockIndicators handles GET /api/stock/indicators?symbol=&market=.
// The response merges the indicator snapshot with the strategy
// recommendation; fields the history cannot support are null.
func (s *Server) handleStockIndicators(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	market, symbol, ok := symbolQuery(w, r)
	if !ok {
		return
	}

	analysis, err := s.app.Indicators.Analyze(r.Context(), market, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Analysis failed")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, analysis)
}
