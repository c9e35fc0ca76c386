package models

// Totals is the aggregate valuation of a portfolio in both reporting
// currencies. Computed on demand, never persisted.
type Totals struct {
	ValueTRY       float64 `json:"value_try"`
	ValueUSD       float64 `json:"value_usd"`
	CostBasisTRY   float64 `json:"cost_basis_try"`
	CostBasisUSD   float64 `json:"cost_basis_usd"`
	DailyProfitTRY float64 `json:"daily_profit_try"`
}

// ItemValue is the valuation of a single position.
type ItemValue struct {
	ItemID         string  `json:"item_id"`
	InstrumentID   string  `json:"instrument_id"`
	Price          float64 `json:"price"` // effective unit price in the item's currency
	ValueTRY       float64 `json:"value_try"`
	ValueUSD       float64 `json:"value_usd"`
	DailyChangePct float64 `json:"daily_change_pct"`
}

// DistributionSlice is one asset-class bucket of the portfolio value,
// used by the allocation chart. Purely a read-model.
type DistributionSlice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"` // in TRY
	Color string  `json:"color"`
}

// SyncPayload is the unit of remote synchronization: the full portfolio
// collection plus the active-portfolio selector, keyed by user identity.
type SyncPayload struct {
	UserID            string      `json:"user_id"`
	Portfolios        []Portfolio `json:"portfolios"`
	ActivePortfolioID string      `json:"active_portfolio_id"`
}
