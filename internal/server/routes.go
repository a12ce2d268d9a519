package server

import (
	"net/http"
	"time"

	"github.com/tickwatch/tickwatch/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.Handle("/metrics", s.metrics.Handler())

	// Market data
	mux.HandleFunc("/api/stock/price", s.handleStockPrice)
	mux.HandleFunc("/api/stock/indicators", s.handleStockIndicators)

	// Portfolio
	mux.HandleFunc("/api/portfolio/positions/", s.routePositions)
	mux.HandleFunc("/api/portfolio/positions", s.handlePositions)
	mux.HandleFunc("/api/portfolio/trades", s.handleTrades)
	mux.HandleFunc("/api/portfolio/alerts", s.handleAlerts)
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
