package models

import "time"

// Quote is a live market price for one instrument as reported by the
// price oracle.
type Quote struct {
	InstrumentID   string  `json:"instrument_id"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	DailyChangePct float64 `json:"daily_change_pct"`
}

// FundPrice is the daily unit price of a TEFAS fund.
type FundPrice struct {
	Code           string  `json:"code"`
	Name           string  `json:"name,omitempty"`
	Price          float64 `json:"price"`
	Date           string  `json:"date,omitempty"`
	DailyChangePct float64 `json:"daily_change_pct,omitempty"`
}

// USDTRYPair is the FX pair symbol used for currency normalization.
const USDTRYPair = "USDTRY"

// MarketData is the full oracle state fed into the valuation engine:
// live quotes keyed by instrument id, fund unit prices keyed by fund code,
// and the current USDTRY rate. A zero Rate means no rate is known yet.
type MarketData struct {
	Quotes     map[string]Quote     `json:"quotes"`
	FundPrices map[string]FundPrice `json:"fund_prices"`
	USDTRYRate float64              `json:"usdtry_rate"`
	FetchedAt  time.Time            `json:"fetched_at"`
}

// QuoteFor returns the live quote for an instrument, if present.
func (m MarketData) QuoteFor(instrumentID string) (Quote, bool) {
	q, ok := m.Quotes[instrumentID]
	return q, ok
}

// FundPriceFor returns the fund unit price for a fund code, if present.
func (m MarketData) FundPriceFor(code string) (FundPrice, bool) {
	p, ok := m.FundPrices[code]
	return p, ok
}
