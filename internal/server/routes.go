package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/varlik-app/varlik/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Auth
	mux.HandleFunc("/api/auth/register", s.handleAuthRegister)
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)

	// State
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/import", s.handleImport)

	// Portfolios
	mux.HandleFunc("/api/portfolios/active", s.handleActivePortfolio)
	mux.HandleFunc("/api/portfolios/", s.routePortfolios)
	mux.HandleFunc("/api/portfolios", s.handlePortfolios)

	// Market data
	mux.HandleFunc("/api/market", s.handleMarketData)
	mux.HandleFunc("/api/market/refresh", s.handleMarketRefresh)
	mux.HandleFunc("/api/funds/", s.handleFundPrice)
	mux.HandleFunc("/api/funds", s.handleAllFunds)

	// Sync
	mux.HandleFunc("/api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("/api/sync/flush", s.handleSyncFlush)
}

// routePortfolios dispatches /api/portfolios/{id}... sub-resources.
func (s *Server) routePortfolios(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/portfolios/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1:
		s.handlePortfolioByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "items":
		s.handleItems(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "items":
		s.handleItemByID(w, r, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "sell":
		s.handleItemSell(w, r, parts[0], parts[2])
	case len(parts) == 3 && parts[1] == "cash" && parts[2] == "adjust":
		s.handleCashAdjust(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cash":
		s.handleCash(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "cash":
		s.handleCashByID(w, r, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "cash" && parts[3] == "redeem":
		s.handleCashRedeem(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "dividends":
		s.handleDividends(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "valuation":
		s.handleValuation(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "history":
		s.handleHistory(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "target":
		s.handleTarget(w, r, parts[0])
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(s.app.StartupTime).String(),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
		"go_version": runtime.Version(),
	})
}
