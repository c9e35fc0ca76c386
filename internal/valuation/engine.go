// Package valuation computes portfolio values on demand from held amounts
// and the latest market data. Nothing here is persisted.
package valuation

import (
	"sort"

	"github.com/varlik-app/varlik/internal/models"
)

// Engine values portfolios against a market-data snapshot.
type Engine struct{}

// NewEngine creates a valuation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ValueItem computes the current value of a single position in both
// reporting currencies.
//
// Price resolution, in order: a custom item's manual price override, the
// live quote or fund price, and finally the item's average cost when no
// market price is known. Retirement items are valued as the sum of their
// sub-balances regardless of amount or market data.
func (e *Engine) ValueItem(item models.PortfolioItem, md models.MarketData) models.ItemValue {
	iv := models.ItemValue{ItemID: item.ID, InstrumentID: item.InstrumentID}

	if item.Type == models.AssetTypeRetirement {
		total := 0.0
		if r := item.Retirement; r != nil {
			total = r.Principal + r.PrincipalYield + r.StateContribution + r.StateYield
		}
		iv.Price = total
		iv.ValueTRY, iv.ValueUSD = convert(total, item.Currency, md.USDTRYRate)
		return iv
	}

	price := item.AverageCost
	change := 0.0
	currency := item.Currency

	switch {
	case item.Type == models.AssetTypeCustom && item.Custom != nil && item.Custom.CurrentPrice != nil:
		// Manual override always wins and implies zero daily change.
		price = *item.Custom.CurrentPrice
	case item.Type == models.AssetTypeFund:
		if fp, ok := md.FundPriceFor(item.InstrumentID); ok && fp.Price > 0 {
			price = fp.Price
			change = fp.DailyChangePct
		}
	default:
		if q, ok := md.QuoteFor(item.InstrumentID); ok && q.Price > 0 {
			price = q.Price
			change = q.DailyChangePct
			// The quote's native currency wins over the cost basis currency.
			if q.Currency != "" {
				currency = q.Currency
			}
		}
	}

	iv.Price = price
	iv.DailyChangePct = change
	iv.ValueTRY, iv.ValueUSD = convert(item.Amount*price, currency, md.USDTRYRate)
	return iv
}

// ValueCashItem computes the current value of a liquid holding. Money-market
// fund items are valued at units times the live fund unit price, falling back
// to the stored balance when the price is unknown.
func (e *Engine) ValueCashItem(item models.CashItem, md models.MarketData) (valueTRY, valueUSD float64) {
	amount := item.Amount
	if item.Type == models.CashTypeMoneyMarket && item.Units > 0 {
		if fp, ok := md.FundPriceFor(item.FundCode); ok && fp.Price > 0 {
			amount = item.Units * fp.Price
		}
	}
	return convert(amount, item.Currency, md.USDTRYRate)
}

// Totals computes the aggregate valuation of one portfolio.
func (e *Engine) Totals(p models.Portfolio, md models.MarketData) models.Totals {
	var t models.Totals
	for _, item := range p.Items {
		iv := e.ValueItem(item, md)
		t.ValueTRY += iv.ValueTRY
		t.ValueUSD += iv.ValueUSD
		t.CostBasisTRY += item.OriginalCostTRY
		t.CostBasisUSD += item.OriginalCostUSD

		// Back out the previous close from today's percentage move.
		if iv.DailyChangePct != 0 {
			prev := iv.ValueTRY / (1 + iv.DailyChangePct/100)
			t.DailyProfitTRY += iv.ValueTRY - prev
		}
	}
	for _, cash := range p.CashItems {
		try, usd := e.ValueCashItem(cash, md)
		t.ValueTRY += try
		t.ValueUSD += usd
		t.CostBasisTRY += try
		t.CostBasisUSD += usd
	}
	return t
}

// TotalsAll computes the aggregate valuation across the whole collection,
// serving the read-only aggregate pseudo-portfolio.
func (e *Engine) TotalsAll(portfolios []models.Portfolio, md models.MarketData) models.Totals {
	var t models.Totals
	for _, p := range portfolios {
		pt := e.Totals(p, md)
		t.ValueTRY += pt.ValueTRY
		t.ValueUSD += pt.ValueUSD
		t.CostBasisTRY += pt.CostBasisTRY
		t.CostBasisUSD += pt.CostBasisUSD
		t.DailyProfitTRY += pt.DailyProfitTRY
	}
	return t
}

// sliceColors maps asset-class labels to stable chart colors.
var sliceColors = map[string]string{
	"stock":      "#2196f3",
	"crypto":     "#ff9800",
	"metal":      "#ffc107",
	"fund":       "#9c27b0",
	"retirement": "#4caf50",
	"custom":     "#607d8b",
	"cash":       "#00bcd4",
}

// Distribution buckets the portfolio's TRY value by asset class, sorted by
// value descending. All liquid holdings fold into a single cash bucket.
func (e *Engine) Distribution(p models.Portfolio, md models.MarketData) []models.DistributionSlice {
	buckets := map[string]float64{}
	for _, item := range p.Items {
		iv := e.ValueItem(item, md)
		buckets[string(item.Type)] += iv.ValueTRY
	}
	for _, cash := range p.CashItems {
		try, _ := e.ValueCashItem(cash, md)
		buckets["cash"] += try
	}

	slices := make([]models.DistributionSlice, 0, len(buckets))
	for label, value := range buckets {
		if value <= 0 {
			continue
		}
		slices = append(slices, models.DistributionSlice{
			Label: label,
			Value: value,
			Color: sliceColors[label],
		})
	}
	sort.Slice(slices, func(i, j int) bool {
		if slices[i].Value != slices[j].Value {
			return slices[i].Value > slices[j].Value
		}
		return slices[i].Label < slices[j].Label
	})
	return slices
}

// convert expresses an amount held in the given currency in both reporting
// currencies. With no known USDTRY rate the cross-currency side stays zero
// rather than guessing.
func convert(amount float64, currency string, rate float64) (valueTRY, valueUSD float64) {
	switch currency {
	case models.CurrencyUSD:
		valueUSD = amount
		if rate > 0 {
			valueTRY = amount * rate
		}
	default:
		valueTRY = amount
		if rate > 0 {
			valueUSD = amount / rate
		}
	}
	return valueTRY, valueUSD
}
