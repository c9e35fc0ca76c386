package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/varlik-app/varlik/internal/models"
)

// AddCashItemInput carries the arguments of an AddCashItem call.
type AddCashItemInput struct {
	Type         models.CashItemType
	Name         string
	Amount       float64
	Currency     string
	InterestRate float64

	// Fund fields, for moneymarket items.
	FundCode          string
	Units             float64
	AverageCost       float64
	HistoricalUSDRate float64
}

// AddCashItem adds a liquid holding. Plain cash in a currency that already
// has a default cash item merges into it instead of creating a duplicate;
// every other type always creates a new item.
func AddCashItem(portfolios []models.Portfolio, portfolioID string, in AddCashItemInput) ([]models.Portfolio, error) {
	if in.Amount < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)

	if in.Type == models.CashTypeCash {
		if existing := p.DefaultCash(in.Currency); existing != nil {
			existing.Amount += in.Amount
			return out, nil
		}
	}

	p.CashItems = append(p.CashItems, models.CashItem{
		ID:                uuid.New().String(),
		Type:              in.Type,
		Name:              in.Name,
		Amount:            in.Amount,
		Currency:          in.Currency,
		InterestRate:      in.InterestRate,
		FundCode:          in.FundCode,
		Units:             in.Units,
		AverageCost:       in.AverageCost,
		HistoricalUSDRate: in.HistoricalUSDRate,
	})
	return out, nil
}

// UpdateCashItem overrides a cash item's balance and metadata.
func UpdateCashItem(portfolios []models.Portfolio, portfolioID, itemID string, amount float64, name string, interestRate float64) ([]models.Portfolio, error) {
	if amount < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil || src.FindCashItem(itemID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	item := models.FindPortfolio(out, portfolioID).FindCashItem(itemID)
	item.Amount = amount
	if name != "" {
		item.Name = name
	}
	if interestRate > 0 {
		item.InterestRate = interestRate
	}
	return out, nil
}

// DeleteCashItem removes a cash item unconditionally.
func DeleteCashItem(portfolios []models.Portfolio, portfolioID, itemID string) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil || src.FindCashItem(itemID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	for i := range p.CashItems {
		if p.CashItems[i].ID == itemID {
			p.CashItems = append(p.CashItems[:i], p.CashItems[i+1:]...)
			break
		}
	}
	return out, nil
}

// AdjustDefaultCash credits (positive delta) or debits (negative delta) the
// default cash item of the given currency. Credits create the item when
// missing; debits that would drive the balance negative are rejected with
// ErrInsufficientCash rather than clamped.
func AdjustDefaultCash(portfolios []models.Portfolio, portfolioID, currency string, delta float64) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil {
		return portfolios, ErrNotFound
	}
	if delta < 0 {
		cash := src.DefaultCash(currency)
		if cash == nil || cash.Amount+delta < -quantityEpsilon {
			return portfolios, ErrInsufficientCash
		}
	}

	out := models.ClonePortfolios(portfolios)
	creditDefaultCash(models.FindPortfolio(out, portfolioID), currency, delta)
	return out, nil
}

// RedeemFund sells units of a money-market fund cash item at the given unit
// price. Emits a RealizedTrade with Type fund and credits the proceeds to
// default TRY cash, mirroring position sales.
func RedeemFund(portfolios []models.Portfolio, portfolioID, itemID string, unitsToSell, unitPrice float64, date time.Time, fxRate float64) ([]models.Portfolio, error) {
	if unitsToSell <= 0 || unitPrice < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil {
		return portfolios, ErrNotFound
	}
	srcItem := src.FindCashItem(itemID)
	if srcItem == nil || srcItem.Type != models.CashTypeMoneyMarket {
		return portfolios, ErrNotFound
	}
	if unitsToSell > srcItem.Units+quantityEpsilon {
		return portfolios, ErrInsufficientQuantity
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	item := p.FindCashItem(itemID)

	profit := (unitPrice - item.AverageCost) * unitsToSell
	profitTRY, profitUSD := reportingCosts(profit, item.Currency, fxRate)

	p.RealizedTrades = append(p.RealizedTrades, models.RealizedTrade{
		ID:           uuid.New().String(),
		InstrumentID: item.FundCode,
		Amount:       unitsToSell,
		SellPrice:    unitPrice,
		BuyPrice:     item.AverageCost,
		Currency:     item.Currency,
		Date:         date,
		Profit:       profit,
		ProfitUSD:    profitUSD,
		ProfitTRY:    profitTRY,
		Type:         models.AssetTypeFund,
	})

	creditProceeds(p, item.Currency, unitPrice*unitsToSell, fxRate)

	if unitsToSell >= item.Units-quantityEpsilon {
		for i := range p.CashItems {
			if p.CashItems[i].ID == itemID {
				p.CashItems = append(p.CashItems[:i], p.CashItems[i+1:]...)
				break
			}
		}
	} else {
		item.Units -= unitsToSell
		item.Amount = item.Units * unitPrice
	}

	return out, nil
}

// AddDividend records a dividend payment and credits it to the default cash
// item of the dividend's currency.
func AddDividend(portfolios []models.Portfolio, portfolioID string, instrumentID string, amount float64, currency string, date time.Time) ([]models.Portfolio, error) {
	if amount <= 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	p.Dividends = append(p.Dividends, models.Dividend{
		ID:           uuid.New().String(),
		InstrumentID: instrumentID,
		Amount:       amount,
		Currency:     currency,
		Date:         date,
	})
	creditDefaultCash(p, currency, amount)
	return out, nil
}

// creditDefaultCash adds delta to the default cash item of the given
// currency, creating it when missing. Callers must validate debits first.
func creditDefaultCash(p *models.Portfolio, currency string, delta float64) {
	if cash := p.DefaultCash(currency); cash != nil {
		cash.Amount += delta
		return
	}
	p.CashItems = append(p.CashItems, models.CashItem{
		ID:       uuid.New().String(),
		Type:     models.CashTypeCash,
		Amount:   delta,
		Currency: currency,
	})
}
