// Package models defines data structures for Varlık
package models

import (
	"time"
)

// AssetType classifies a held position. The set is closed: valuation
// dispatches on it per variant rather than on free-form strings.
type AssetType string

const (
	AssetTypeStock      AssetType = "stock"
	AssetTypeCrypto     AssetType = "crypto"
	AssetTypeMetal      AssetType = "metal"
	AssetTypeFund       AssetType = "fund"
	AssetTypeRetirement AssetType = "retirement"
	AssetTypeCustom     AssetType = "custom"
)

// CashItemType classifies a liquid holding.
type CashItemType string

const (
	CashTypeCash        CashItemType = "cash"
	CashTypeMoneyMarket CashItemType = "moneymarket"
	CashTypeDeposit     CashItemType = "deposit"
)

// AggregatePortfolioID is the reserved pseudo-portfolio that aggregates all
// portfolios read-only. It is never mutated and never persisted.
const AggregatePortfolioID = "all"

// Reporting currencies. Every valuation is expressed in both.
const (
	CurrencyTRY = "TRY"
	CurrencyUSD = "USD"
)

// Portfolio is a named collection of holdings owned by one user.
//
// UpdatedAt strictly increases on every mutating write to the portfolio or
// its children and is the sole conflict-resolution signal between devices.
type Portfolio struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Color          string          `json:"color,omitempty"`
	Icon           string          `json:"icon,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []PortfolioItem `json:"items"`
	CashItems      []CashItem      `json:"cash_items"`
	RealizedTrades []RealizedTrade `json:"realized_trades"`
	Dividends      []Dividend      `json:"dividends"`
	History        []HistoryPoint  `json:"history"`
	TargetValue    *float64        `json:"target_value,omitempty"`
	TargetCurrency string          `json:"target_currency,omitempty"`
}

// PortfolioItem is one held position in one instrument.
//
// Amount is strictly positive while the item exists; a reduction to exactly
// zero removes the item. A position is identified by (InstrumentID, Type)
// within a portfolio for merge-on-add.
type PortfolioItem struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	Amount       float64   `json:"amount"`
	AverageCost  float64   `json:"average_cost"`
	Currency     string    `json:"currency"` // cost-basis currency, fixed at creation
	// Cached cost basis in both reporting currencies. Accumulated through
	// the FX rate in effect at each individual purchase, not the current one.
	OriginalCostUSD float64   `json:"original_cost_usd"`
	OriginalCostTRY float64   `json:"original_cost_try"`
	DateAdded       time.Time `json:"date_added"` // first acquisition, preserved across accumulation
	Type            AssetType `json:"type"`

	Retirement *RetirementDetail `json:"retirement,omitempty"`
	Custom     *CustomDetail     `json:"custom,omitempty"`
}

// RetirementDetail carries the sub-balances of a retirement account item.
// Such items are valued as the sum of the four balances, never by market price.
type RetirementDetail struct {
	Principal         float64 `json:"principal"`
	PrincipalYield    float64 `json:"principal_yield"`
	StateContribution float64 `json:"state_contribution"`
	StateYield        float64 `json:"state_yield"`
}

// CustomDetail carries the fields of a manually tracked asset.
// CurrentPrice, when set, always wins over any live price and implies zero
// daily change.
type CustomDetail struct {
	Name         string   `json:"name"`
	Category     string   `json:"category,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
}

// RealizedTrade is the immutable record of a sale or fund redemption.
type RealizedTrade struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	Amount       float64   `json:"amount"`
	SellPrice    float64   `json:"sell_price"`
	BuyPrice     float64   `json:"buy_price"` // the position's average cost at the moment of sale
	Currency     string    `json:"currency"`
	Date         time.Time `json:"date"`
	Profit       float64   `json:"profit"` // (SellPrice - BuyPrice) * Amount, in Currency
	ProfitUSD    float64   `json:"profit_usd"`
	ProfitTRY    float64   `json:"profit_try"`
	Type         AssetType `json:"type"`
}

// CashItem is a liquid holding: plain cash, a money-market/fund position
// redeemable at a live unit price, or a fixed-term deposit.
//
// The default cash item per currency (Type==cash ∧ Currency) is unique per
// portfolio. Deductions that would drive it negative are rejected, not clamped.
type CashItem struct {
	ID           string       `json:"id"`
	Type         CashItemType `json:"type"`
	Name         string       `json:"name,omitempty"`
	Amount       float64      `json:"amount"`
	Currency     string       `json:"currency"`
	InterestRate float64      `json:"interest_rate,omitempty"`

	// Fund fields, set for moneymarket items only.
	FundCode          string  `json:"fund_code,omitempty"`
	Units             float64 `json:"units,omitempty"`
	AverageCost       float64 `json:"average_cost,omitempty"`
	HistoricalUSDRate float64 `json:"historical_usd_rate,omitempty"`
}

// Dividend is a cash-producing event attached to a portfolio. Purely
// additive to dividend totals; no cost-basis interaction.
type Dividend struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Date         time.Time `json:"date"`
}

// HistoryPoint is one daily valuation snapshot used for trend charting.
// At most one point exists per calendar day per portfolio; the collection is
// sorted ascending by date and capped at the most recent 365 points.
type HistoryPoint struct {
	Date     time.Time `json:"date"` // day granularity
	ValueTRY float64   `json:"value_try"`
	ValueUSD float64   `json:"value_usd"`
}

// SameDay reports whether the point falls on the same calendar day as t.
func (p HistoryPoint) SameDay(t time.Time) bool {
	py, pm, pd := p.Date.Date()
	ty, tm, td := t.Date()
	return py == ty && pm == tm && pd == td
}

// MaxUpdatedAt returns the greatest UpdatedAt across the collection.
// Used for last-writer-wins conflict resolution at startup.
func MaxUpdatedAt(portfolios []Portfolio) time.Time {
	var max time.Time
	for _, p := range portfolios {
		if p.UpdatedAt.After(max) {
			max = p.UpdatedAt
		}
	}
	return max
}

// FindPortfolio returns a pointer into the slice for the given id, or nil.
func FindPortfolio(portfolios []Portfolio, id string) *Portfolio {
	for i := range portfolios {
		if portfolios[i].ID == id {
			return &portfolios[i]
		}
	}
	return nil
}

// DefaultCash returns the portfolio's default cash item for the given
// currency (Type==cash ∧ Currency), or nil.
func (p *Portfolio) DefaultCash(currency string) *CashItem {
	for i := range p.CashItems {
		if p.CashItems[i].Type == CashTypeCash && p.CashItems[i].Currency == currency {
			return &p.CashItems[i]
		}
	}
	return nil
}

// FindItem returns a pointer into the portfolio's items for the given id, or nil.
func (p *Portfolio) FindItem(itemID string) *PortfolioItem {
	for i := range p.Items {
		if p.Items[i].ID == itemID {
			return &p.Items[i]
		}
	}
	return nil
}

// FindCashItem returns a pointer into the portfolio's cash items for the
// given id, or nil.
func (p *Portfolio) FindCashItem(itemID string) *CashItem {
	for i := range p.CashItems {
		if p.CashItems[i].ID == itemID {
			return &p.CashItems[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the portfolio.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Items = make([]PortfolioItem, len(p.Items))
	copy(out.Items, p.Items)
	for i := range out.Items {
		if r := out.Items[i].Retirement; r != nil {
			cp := *r
			out.Items[i].Retirement = &cp
		}
		if c := out.Items[i].Custom; c != nil {
			cp := *c
			if c.CurrentPrice != nil {
				price := *c.CurrentPrice
				cp.CurrentPrice = &price
			}
			out.Items[i].Custom = &cp
		}
	}
	out.CashItems = append([]CashItem(nil), p.CashItems...)
	out.RealizedTrades = append([]RealizedTrade(nil), p.RealizedTrades...)
	out.Dividends = append([]Dividend(nil), p.Dividends...)
	out.History = append([]HistoryPoint(nil), p.History...)
	if p.TargetValue != nil {
		v := *p.TargetValue
		out.TargetValue = &v
	}
	return out
}

// ClonePortfolios returns a deep copy of the collection.
func ClonePortfolios(portfolios []Portfolio) []Portfolio {
	out := make([]Portfolio, len(portfolios))
	for i, p := range portfolios {
		out[i] = p.Clone()
	}
	return out
}
