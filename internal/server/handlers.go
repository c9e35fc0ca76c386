package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/varlik-app/varlik/internal/ledger"
	"github.com/varlik-app/varlik/internal/models"
	syncpkg "github.com/varlik-app/varlik/internal/sync"
)

// coordinator resolves the request's sync coordinator, writing the error
// response on failure.
func (s *Server) coordinator(w http.ResponseWriter, r *http.Request) (*syncpkg.Coordinator, bool) {
	userID := UserID(r.Context())
	if userID == "" {
		WriteError(w, http.StatusUnauthorized, "Authorization required")
		return nil, false
	}
	c, err := s.app.Sync.Coordinator(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to load coordinator")
		WriteError(w, http.StatusInternalServerError, "Failed to load portfolio state")
		return nil, false
	}
	return c, true
}

// writeLedgerError maps ledger and sync errors onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientQuantity),
		errors.Is(err, ledger.ErrInsufficientCash),
		errors.Is(err, ledger.ErrLastPortfolio),
		errors.Is(err, ledger.ErrReadOnlyPortfolio),
		errors.Is(err, syncpkg.ErrEmptyOverwrite):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, syncpkg.ErrLoadInProgress):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// mutate runs a ledger transform inside a coordinator commit, stamping the
// named portfolio dirty. The transform sees the collection as of commit
// time, so concurrent requests serialize rather than overwrite each other.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, portfolioID string, fn func([]models.Portfolio) ([]models.Portfolio, error)) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	var updated []models.Portfolio
	err := c.Commit(r.Context(), func(portfolios []models.Portfolio, _ string) (syncpkg.Change, error) {
		out, err := fn(portfolios)
		if err != nil {
			return syncpkg.Change{}, err
		}
		updated = out
		return syncpkg.Change{Portfolios: out, DirtyIDs: []string{portfolioID}}, nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if p := models.FindPortfolio(updated, portfolioID); p != nil {
		WriteJSON(w, http.StatusOK, p)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saleFXRate resolves the USDTRY rate for converting realized profit: the
// historical close for the sale date when the oracle can serve it, otherwise
// the current rate from the latest snapshot.
func (s *Server) saleFXRate(ctx context.Context, c *syncpkg.Coordinator, date time.Time) float64 {
	if s.app.Oracle != nil {
		if rate, err := s.app.Oracle.GetHistoricalPrice(ctx, models.USDTRYPair, date); err == nil && rate > 0 {
			return rate
		}
	}
	return c.MarketData().USDTRYRate
}

// handleState handles GET /api/state: the full bootstrap payload a client
// needs to render, in one round trip.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	portfolios, activeID := c.Portfolios()
	var syncErr string
	if err := c.SyncError(); err != nil {
		syncErr = err.Error()
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios":          portfolios,
		"active_portfolio_id": activeID,
		"market":              c.MarketData(),
		"syncing":             c.Syncing(),
		"sync_error":          syncErr,
	})
}

// handleImport handles POST /api/import: replaces the whole collection from
// a backup export. Every imported portfolio is stamped dirty so the restore
// propagates to other devices.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Portfolios        []models.Portfolio `json:"portfolios"`
		ActivePortfolioID string             `json:"active_portfolio_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Portfolios) == 0 {
		WriteError(w, http.StatusBadRequest, "Import payload contains no portfolios")
		return
	}

	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	dirty := make([]string, 0, len(req.Portfolios))
	for _, p := range req.Portfolios {
		dirty = append(dirty, p.ID)
	}
	activeID := req.ActivePortfolioID
	if models.FindPortfolio(req.Portfolios, activeID) == nil {
		activeID = req.Portfolios[0].ID
	}

	err := c.Commit(r.Context(), func(_ []models.Portfolio, _ string) (syncpkg.Change, error) {
		return syncpkg.Change{Portfolios: req.Portfolios, ActiveID: activeID, DirtyIDs: dirty}, nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(req.Portfolios),
	})
}

// handlePortfolios handles /api/portfolios: GET lists, POST creates.
func (s *Server) handlePortfolios(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		portfolios, activeID := c.Portfolios()
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"portfolios":          portfolios,
			"active_portfolio_id": activeID,
		})

	case http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			Color string `json:"color"`
			Icon  string `json:"icon"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}

		var created *models.Portfolio
		err := c.Commit(r.Context(), func(portfolios []models.Portfolio, _ string) (syncpkg.Change, error) {
			updated, id, err := ledger.CreatePortfolio(portfolios, req.Name, req.Color, req.Icon, time.Now().UTC())
			if err != nil {
				return syncpkg.Change{}, err
			}
			created = models.FindPortfolio(updated, id)
			return syncpkg.Change{Portfolios: updated, DirtyIDs: []string{id}}, nil
		})
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

// handlePortfolioByID handles /api/portfolios/{id}: GET, PUT, DELETE.
func (s *Server) handlePortfolioByID(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, ok := s.coordinator(w, r)
		if !ok {
			return
		}
		portfolios, _ := c.Portfolios()
		p := models.FindPortfolio(portfolios, portfolioID)
		if p == nil {
			WriteError(w, http.StatusNotFound, "Portfolio not found")
			return
		}
		WriteJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var req struct {
			Name  string `json:"name"`
			Color string `json:"color"`
			Icon  string `json:"icon"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
			var err error
			if req.Name != "" {
				portfolios, err = ledger.RenamePortfolio(portfolios, portfolioID, req.Name)
				if err != nil {
					return nil, err
				}
			}
			if req.Color != "" || req.Icon != "" {
				portfolios, err = ledger.SetPortfolioAppearance(portfolios, portfolioID, req.Color, req.Icon)
				if err != nil {
					return nil, err
				}
			}
			return portfolios, nil
		})

	case http.MethodDelete:
		c, ok := s.coordinator(w, r)
		if !ok {
			return
		}
		err := c.Commit(r.Context(), func(portfolios []models.Portfolio, activeID string) (syncpkg.Change, error) {
			updated, err := ledger.DeletePortfolio(portfolios, portfolioID)
			if err != nil {
				return syncpkg.Change{}, err
			}
			if activeID == portfolioID {
				activeID = updated[0].ID
			}
			return syncpkg.Change{Portfolios: updated, ActiveID: activeID}, nil
		})
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleActivePortfolio handles /api/portfolios/active: GET and PUT.
func (s *Server) handleActivePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		_, activeID := c.Portfolios()
		WriteJSON(w, http.StatusOK, map[string]string{"active_portfolio_id": activeID})

	case http.MethodPut:
		var req struct {
			PortfolioID string `json:"portfolio_id"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		if err := c.SetActivePortfolio(r.Context(), req.PortfolioID); err != nil {
			writeLedgerError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"active_portfolio_id": req.PortfolioID})
	}
}

// handleTarget handles PUT /api/portfolios/{id}/target.
func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}
	var req struct {
		Value    *float64 `json:"value"`
		Currency string   `json:"currency"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.SetPortfolioTarget(portfolios, portfolioID, req.Value, req.Currency)
	})
}

// handleItems handles POST /api/portfolios/{id}/items.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		InstrumentID   string                   `json:"instrument_id"`
		Type           models.AssetType         `json:"type"`
		Amount         float64                  `json:"amount"`
		UnitCost       float64                  `json:"unit_cost"`
		Currency       string                   `json:"currency"`
		Date           time.Time                `json:"date"`
		DeductFromCash bool                     `json:"deduct_from_cash"`
		Retirement     *models.RetirementDetail `json:"retirement"`
		Custom         *models.CustomDetail     `json:"custom"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = models.CurrencyTRY
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	fxRate := s.saleFXRate(r.Context(), c, req.Date)

	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.AddPosition(portfolios, portfolioID, ledger.AddPositionInput{
			InstrumentID:   req.InstrumentID,
			Type:           req.Type,
			Amount:         req.Amount,
			UnitCost:       req.UnitCost,
			Currency:       req.Currency,
			Date:           req.Date,
			FXRate:         fxRate,
			Retirement:     req.Retirement,
			Custom:         req.Custom,
			DeductFromCash: req.DeductFromCash,
		})
	})
}

// handleItemByID handles PUT and DELETE /api/portfolios/{id}/items/{itemID}.
func (s *Server) handleItemByID(w http.ResponseWriter, r *http.Request, portfolioID, itemID string) {
	if !RequireMethod(w, r, http.MethodPut, http.MethodDelete) {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			Amount      float64                  `json:"amount"`
			AverageCost float64                  `json:"average_cost"`
			FXRate      float64                  `json:"fx_rate"`
			Retirement  *models.RetirementDetail `json:"retirement"`
			Custom      *models.CustomDetail     `json:"custom"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
			return ledger.AdjustPosition(portfolios, portfolioID, itemID, ledger.AdjustPositionInput{
				NewAmount:      req.Amount,
				NewAverageCost: req.AverageCost,
				FXRate:         req.FXRate,
				Retirement:     req.Retirement,
				Custom:         req.Custom,
			})
		})

	case http.MethodDelete:
		s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
			return ledger.RemovePosition(portfolios, portfolioID, itemID)
		})
	}
}

// handleItemSell handles POST /api/portfolios/{id}/items/{itemID}/sell.
func (s *Server) handleItemSell(w http.ResponseWriter, r *http.Request, portfolioID, itemID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Amount    float64   `json:"amount"`
		SellPrice float64   `json:"sell_price"`
		Date      time.Time `json:"date"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	fxRate := s.saleFXRate(r.Context(), c, req.Date)

	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.ReducePosition(portfolios, portfolioID, itemID, req.Amount, req.SellPrice, req.Date, fxRate)
	})
}

// handleCash handles POST /api/portfolios/{id}/cash.
func (s *Server) handleCash(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Type              models.CashItemType `json:"type"`
		Name              string              `json:"name"`
		Amount            float64             `json:"amount"`
		Currency          string              `json:"currency"`
		InterestRate      float64             `json:"interest_rate"`
		FundCode          string              `json:"fund_code"`
		Units             float64             `json:"units"`
		AverageCost       float64             `json:"average_cost"`
		HistoricalUSDRate float64             `json:"historical_usd_rate"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = models.CashTypeCash
	}
	if req.Currency == "" {
		req.Currency = models.CurrencyTRY
	}
	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.AddCashItem(portfolios, portfolioID, ledger.AddCashItemInput{
			Type:              req.Type,
			Name:              req.Name,
			Amount:            req.Amount,
			Currency:          req.Currency,
			InterestRate:      req.InterestRate,
			FundCode:          req.FundCode,
			Units:             req.Units,
			AverageCost:       req.AverageCost,
			HistoricalUSDRate: req.HistoricalUSDRate,
		})
	})
}

// handleCashByID handles PUT and DELETE /api/portfolios/{id}/cash/{itemID}.
func (s *Server) handleCashByID(w http.ResponseWriter, r *http.Request, portfolioID, itemID string) {
	if !RequireMethod(w, r, http.MethodPut, http.MethodDelete) {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req struct {
			Amount       float64 `json:"amount"`
			Name         string  `json:"name"`
			InterestRate float64 `json:"interest_rate"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
			return ledger.UpdateCashItem(portfolios, portfolioID, itemID, req.Amount, req.Name, req.InterestRate)
		})

	case http.MethodDelete:
		s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
			return ledger.DeleteCashItem(portfolios, portfolioID, itemID)
		})
	}
}

// handleCashAdjust handles POST /api/portfolios/{id}/cash/adjust.
func (s *Server) handleCashAdjust(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Currency string  `json:"currency"`
		Delta    float64 `json:"delta"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = models.CurrencyTRY
	}
	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.AdjustDefaultCash(portfolios, portfolioID, req.Currency, req.Delta)
	})
}

// handleCashRedeem handles POST /api/portfolios/{id}/cash/{itemID}/redeem.
func (s *Server) handleCashRedeem(w http.ResponseWriter, r *http.Request, portfolioID, itemID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Units     float64   `json:"units"`
		UnitPrice float64   `json:"unit_price"`
		Date      time.Time `json:"date"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}

	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	fxRate := s.saleFXRate(r.Context(), c, req.Date)

	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.RedeemFund(portfolios, portfolioID, itemID, req.Units, req.UnitPrice, req.Date, fxRate)
	})
}

// handleDividends handles POST /api/portfolios/{id}/dividends.
func (s *Server) handleDividends(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		InstrumentID string    `json:"instrument_id"`
		Amount       float64   `json:"amount"`
		Currency     string    `json:"currency"`
		Date         time.Time `json:"date"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = models.CurrencyTRY
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC()
	}
	s.mutate(w, r, portfolioID, func(portfolios []models.Portfolio) ([]models.Portfolio, error) {
		return ledger.AddDividend(portfolios, portfolioID, req.InstrumentID, req.Amount, req.Currency, req.Date)
	})
}

// handleValuation handles GET /api/portfolios/{id}/valuation. The aggregate
// pseudo-portfolio id returns totals across the whole collection.
func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	portfolios, _ := c.Portfolios()
	md := c.MarketData()
	engine := s.app.Valuation

	if portfolioID == models.AggregatePortfolioID {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"totals": engine.TotalsAll(portfolios, md),
		})
		return
	}

	p := models.FindPortfolio(portfolios, portfolioID)
	if p == nil {
		WriteError(w, http.StatusNotFound, "Portfolio not found")
		return
	}

	items := make([]models.ItemValue, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, engine.ValueItem(item, md))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"totals":       engine.Totals(*p, md),
		"items":        items,
		"distribution": engine.Distribution(*p, md),
	})
}

// handleHistory handles GET /api/portfolios/{id}/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, portfolioID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	portfolios, _ := c.Portfolios()
	p := models.FindPortfolio(portfolios, portfolioID)
	if p == nil {
		WriteError(w, http.StatusNotFound, "Portfolio not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"history": p.History})
}

// handleMarketData handles GET /api/market.
func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, c.MarketData())
}

// handleMarketRefresh handles POST /api/market/refresh: a one-shot fetch
// outside the scheduler's cadence, used for pull-to-refresh.
func (s *Server) handleMarketRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	scheduler := syncpkg.NewScheduler(c, s.app.Oracle, s.app.Funds, s.logger, 0)
	scheduler.Refresh(r.Context())
	WriteJSON(w, http.StatusOK, c.MarketData())
}

// handleFundPrice handles GET /api/funds/{code}.
func (s *Server) handleFundPrice(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/funds/", "")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Fund code is required")
		return
	}

	price, err := s.app.Funds.GetFundPrice(r.Context(), code)
	if err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, price)
}

// handleAllFunds handles GET /api/funds.
func (s *Server) handleAllFunds(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	funds, err := s.app.Funds.GetAllFunds(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"funds": funds, "count": len(funds)})
}

// handleSyncStatus handles GET /api/sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	var syncErr string
	if err := c.SyncError(); err != nil {
		syncErr = err.Error()
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"syncing":    c.Syncing(),
		"remote":     s.app.Remote != nil,
		"sync_error": syncErr,
	})
}

// handleSyncFlush handles POST /api/sync/flush: an immediate push, used by
// clients when the app moves to the background.
func (s *Server) handleSyncFlush(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	if err := c.Flush(r.Context()); err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
