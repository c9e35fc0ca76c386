package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/models"
)

func marketData() models.MarketData {
	return models.MarketData{
		Quotes: map[string]models.Quote{
			"THYAO": {InstrumentID: "THYAO", Price: 300, Currency: models.CurrencyTRY, DailyChangePct: 2.0},
			"AAPL":  {InstrumentID: "AAPL", Price: 200, Currency: models.CurrencyUSD},
		},
		FundPrices: map[string]models.FundPrice{
			"NNF": {Code: "NNF", Price: 5.5},
		},
		USDTRYRate: 40,
	}
}

func TestValueItemLivePrice(t *testing.T) {
	e := NewEngine()
	iv := e.ValueItem(models.PortfolioItem{
		ID: "i1", InstrumentID: "THYAO", Amount: 10, AverageCost: 250,
		Currency: models.CurrencyTRY, Type: models.AssetTypeStock,
	}, marketData())

	assert.InDelta(t, 300, iv.Price, 1e-9)
	assert.InDelta(t, 3000, iv.ValueTRY, 1e-9)
	assert.InDelta(t, 75, iv.ValueUSD, 1e-9)
	assert.InDelta(t, 2.0, iv.DailyChangePct, 1e-9)
}

func TestValueItemFallsBackToAverageCost(t *testing.T) {
	e := NewEngine()
	iv := e.ValueItem(models.PortfolioItem{
		ID: "i1", InstrumentID: "UNKNOWN", Amount: 4, AverageCost: 50,
		Currency: models.CurrencyUSD, Type: models.AssetTypeStock,
	}, marketData())

	assert.InDelta(t, 50, iv.Price, 1e-9)
	assert.InDelta(t, 200, iv.ValueUSD, 1e-9)
	assert.InDelta(t, 8000, iv.ValueTRY, 1e-9)
	assert.Zero(t, iv.DailyChangePct)
}

func TestValueItemCustomOverrideWins(t *testing.T) {
	e := NewEngine()
	price := 1234.0
	iv := e.ValueItem(models.PortfolioItem{
		ID: "i1", InstrumentID: "THYAO", Amount: 2, AverageCost: 100,
		Currency: models.CurrencyTRY, Type: models.AssetTypeCustom,
		Custom: &models.CustomDetail{Name: "El işi", CurrentPrice: &price},
	}, marketData())

	assert.InDelta(t, 1234, iv.Price, 1e-9)
	assert.Zero(t, iv.DailyChangePct, "manual price implies no daily change")
}

func TestValueItemRetirementSumsBalances(t *testing.T) {
	e := NewEngine()
	iv := e.ValueItem(models.PortfolioItem{
		ID: "i1", InstrumentID: "BES-1", Amount: 1, AverageCost: 0,
		Currency: models.CurrencyTRY, Type: models.AssetTypeRetirement,
		Retirement: &models.RetirementDetail{
			Principal: 40000, PrincipalYield: 5000, StateContribution: 4000, StateYield: 1000,
		},
	}, marketData())

	assert.InDelta(t, 50000, iv.ValueTRY, 1e-9)
	assert.InDelta(t, 1250, iv.ValueUSD, 1e-9)
}

func TestValueCashItemFundUnits(t *testing.T) {
	e := NewEngine()
	try, usd := e.ValueCashItem(models.CashItem{
		Type: models.CashTypeMoneyMarket, FundCode: "NNF", Units: 1000, Amount: 5000,
		Currency: models.CurrencyTRY,
	}, marketData())

	assert.InDelta(t, 5500, try, 1e-9, "units times live unit price")
	assert.InDelta(t, 137.5, usd, 1e-9)
}

func TestValueCashItemFundFallsBackToAmount(t *testing.T) {
	e := NewEngine()
	try, _ := e.ValueCashItem(models.CashItem{
		Type: models.CashTypeMoneyMarket, FundCode: "MISSING", Units: 1000, Amount: 5000,
		Currency: models.CurrencyTRY,
	}, marketData())

	assert.InDelta(t, 5000, try, 1e-9)
}

func TestTotalsAndDailyProfit(t *testing.T) {
	e := NewEngine()
	p := models.Portfolio{
		ID: "p1",
		Items: []models.PortfolioItem{
			{ID: "i1", InstrumentID: "THYAO", Amount: 10, AverageCost: 250,
				Currency: models.CurrencyTRY, Type: models.AssetTypeStock,
				OriginalCostTRY: 2500, OriginalCostUSD: 62.5},
		},
		CashItems: []models.CashItem{
			{ID: "c1", Type: models.CashTypeCash, Amount: 1000, Currency: models.CurrencyTRY},
		},
	}

	totals := e.Totals(p, marketData())
	assert.InDelta(t, 4000, totals.ValueTRY, 1e-9)
	assert.InDelta(t, 100, totals.ValueUSD, 1e-9)
	assert.InDelta(t, 3500, totals.CostBasisTRY, 1e-9, "cash counts as its own cost basis")

	// THYAO up 2%: previous value 3000/1.02.
	assert.InDelta(t, 3000-3000/1.02, totals.DailyProfitTRY, 1e-6)
}

func TestDistributionSortedByValue(t *testing.T) {
	e := NewEngine()
	p := models.Portfolio{
		ID: "p1",
		Items: []models.PortfolioItem{
			{ID: "i1", InstrumentID: "THYAO", Amount: 10, AverageCost: 250,
				Currency: models.CurrencyTRY, Type: models.AssetTypeStock},
			{ID: "i2", InstrumentID: "AAPL", Amount: 1, AverageCost: 150,
				Currency: models.CurrencyUSD, Type: models.AssetTypeStock},
		},
		CashItems: []models.CashItem{
			{ID: "c1", Type: models.CashTypeCash, Amount: 100000, Currency: models.CurrencyTRY},
		},
	}

	slices := e.Distribution(p, marketData())
	require.Len(t, slices, 2)
	assert.Equal(t, "cash", slices[0].Label)
	assert.Equal(t, "stock", slices[1].Label)
	assert.InDelta(t, 100000, slices[0].Value, 1e-9)
	assert.InDelta(t, 3000+8000, slices[1].Value, 1e-9)
	assert.NotEmpty(t, slices[0].Color)
}
