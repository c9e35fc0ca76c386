package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/varlik-app/varlik/internal/models"
)

// quantityEpsilon absorbs float jitter when comparing held amounts.
const quantityEpsilon = 1e-9

// AddPositionInput carries the arguments of an AddPosition call.
type AddPositionInput struct {
	InstrumentID string
	Type         models.AssetType
	Amount       float64
	UnitCost     float64
	Currency     string
	Date         time.Time
	// FXRate is the USDTRY rate in effect at purchase time. The cached
	// cost basis in the other reporting currency accumulates through this
	// historical rate; a zero rate leaves that side of the cache untouched.
	FXRate         float64
	Retirement     *models.RetirementDetail
	Custom         *models.CustomDetail
	DeductFromCash bool
}

// AddPosition opens or accumulates a position. An existing item with the
// same (InstrumentID, Type) is merged via weighted-average cost; otherwise a
// new item is created. With DeductFromCash set, the default cash item of the
// purchase currency is debited atomically, and the whole operation fails
// with ErrInsufficientCash if the debit would go negative.
func AddPosition(portfolios []models.Portfolio, portfolioID string, in AddPositionInput) ([]models.Portfolio, error) {
	if in.Amount <= 0 || in.UnitCost < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}

	cost := in.Amount * in.UnitCost

	// Check the cash guard before mutating anything.
	if in.DeductFromCash {
		p := models.FindPortfolio(portfolios, portfolioID)
		cash := p.DefaultCash(in.Currency)
		if cash == nil || cash.Amount < cost-quantityEpsilon {
			return portfolios, ErrInsufficientCash
		}
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)

	costTRY, costUSD := reportingCosts(cost, in.Currency, in.FXRate)

	var item *models.PortfolioItem
	for i := range p.Items {
		if p.Items[i].InstrumentID == in.InstrumentID && p.Items[i].Type == in.Type {
			item = &p.Items[i]
			break
		}
	}

	if item != nil {
		// Weighted-average accumulation. DateAdded is preserved.
		newAmount := item.Amount + in.Amount
		item.AverageCost = (item.Amount*item.AverageCost + cost) / newAmount
		item.Amount = newAmount
		item.OriginalCostTRY += costTRY
		item.OriginalCostUSD += costUSD
		if in.Retirement != nil {
			item.Retirement = in.Retirement
		}
		if in.Custom != nil {
			item.Custom = in.Custom
		}
	} else {
		p.Items = append(p.Items, models.PortfolioItem{
			ID:              uuid.New().String(),
			InstrumentID:    in.InstrumentID,
			Amount:          in.Amount,
			AverageCost:     in.UnitCost,
			Currency:        in.Currency,
			OriginalCostTRY: costTRY,
			OriginalCostUSD: costUSD,
			DateAdded:       in.Date,
			Type:            in.Type,
			Retirement:      in.Retirement,
			Custom:          in.Custom,
		})
	}

	if in.DeductFromCash {
		p.DefaultCash(in.Currency).Amount -= cost
	}

	return out, nil
}

// ReducePosition sells part or all of a position. The item shrinks (average
// cost unchanged) or is removed when the full amount is sold. A
// RealizedTrade is appended and the proceeds, converted to TRY, are credited
// to the portfolio's default cash item as part of the same mutation.
//
// fxRate is the USDTRY rate to convert the realized profit into both
// reporting currencies: the historical rate when the caller has one for the
// sale date, otherwise the current rate. With no rate at all, proceeds of a
// foreign-currency sale are credited in the sale currency.
func ReducePosition(portfolios []models.Portfolio, portfolioID, itemID string, amountToSell, sellPrice float64, date time.Time, fxRate float64) ([]models.Portfolio, error) {
	if amountToSell <= 0 || sellPrice < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil {
		return portfolios, ErrNotFound
	}
	srcItem := src.FindItem(itemID)
	if srcItem == nil {
		return portfolios, ErrNotFound
	}
	if amountToSell > srcItem.Amount+quantityEpsilon {
		return portfolios, ErrInsufficientQuantity
	}

	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	item := p.FindItem(itemID)

	profit := (sellPrice - item.AverageCost) * amountToSell
	profitTRY, profitUSD := reportingCosts(profit, item.Currency, fxRate)

	p.RealizedTrades = append(p.RealizedTrades, models.RealizedTrade{
		ID:           uuid.New().String(),
		InstrumentID: item.InstrumentID,
		Amount:       amountToSell,
		SellPrice:    sellPrice,
		BuyPrice:     item.AverageCost,
		Currency:     item.Currency,
		Date:         date,
		Profit:       profit,
		ProfitUSD:    profitUSD,
		ProfitTRY:    profitTRY,
		Type:         item.Type,
	})

	creditProceeds(p, item.Currency, sellPrice*amountToSell, fxRate)

	if amountToSell >= item.Amount-quantityEpsilon {
		// Full sale removes the item; it is never left at zero.
		removeItem(p, itemID)
	} else {
		remaining := (item.Amount - amountToSell) / item.Amount
		item.Amount -= amountToSell
		item.OriginalCostTRY *= remaining
		item.OriginalCostUSD *= remaining
	}

	return out, nil
}

// AdjustPositionInput carries the arguments of an AdjustPosition call.
type AdjustPositionInput struct {
	NewAmount      float64
	NewAverageCost float64
	// FXRate, when positive, recomputes the cached cost basis in both
	// reporting currencies from the new amount and average cost.
	FXRate     float64
	Retirement *models.RetirementDetail
	Custom     *models.CustomDetail
}

// AdjustPosition directly overrides a position's size and cost, used for
// manual corrections such as retirement-account restatements. No trade
// record is emitted.
func AdjustPosition(portfolios []models.Portfolio, portfolioID, itemID string, in AdjustPositionInput) ([]models.Portfolio, error) {
	if in.NewAmount <= 0 || in.NewAverageCost < 0 {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil || src.FindItem(itemID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	item := models.FindPortfolio(out, portfolioID).FindItem(itemID)

	item.Amount = in.NewAmount
	item.AverageCost = in.NewAverageCost
	if in.FXRate > 0 {
		cost := in.NewAmount * in.NewAverageCost
		item.OriginalCostTRY, item.OriginalCostUSD = reportingCosts(cost, item.Currency, in.FXRate)
	}
	if in.Retirement != nil {
		item.Retirement = in.Retirement
	}
	if in.Custom != nil {
		item.Custom = in.Custom
	}

	return out, nil
}

// RemovePosition deletes an item unconditionally without recording a trade.
// Used for corrections, not sales.
func RemovePosition(portfolios []models.Portfolio, portfolioID, itemID string) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	src := models.FindPortfolio(portfolios, portfolioID)
	if src == nil || src.FindItem(itemID) == nil {
		return portfolios, ErrNotFound
	}

	out := models.ClonePortfolios(portfolios)
	removeItem(models.FindPortfolio(out, portfolioID), itemID)
	return out, nil
}

func removeItem(p *models.Portfolio, itemID string) {
	for i := range p.Items {
		if p.Items[i].ID == itemID {
			p.Items = append(p.Items[:i], p.Items[i+1:]...)
			return
		}
	}
}

// creditProceeds credits sale proceeds to the default TRY cash item through
// the USDTRY rate. When no rate is known a foreign-currency amount cannot be
// converted, so the proceeds go to the default cash item of their own
// currency instead of being dropped.
func creditProceeds(p *models.Portfolio, currency string, proceeds, fxRate float64) {
	proceedsTRY, _ := reportingCosts(proceeds, currency, fxRate)
	if proceedsTRY == 0 && proceeds > 0 {
		creditDefaultCash(p, currency, proceeds)
		return
	}
	creditDefaultCash(p, models.CurrencyTRY, proceedsTRY)
}

// reportingCosts converts an amount in the given currency into both
// reporting currencies using the supplied USDTRY rate. With a zero rate the
// cross-currency figure cannot be derived and stays zero.
func reportingCosts(amount float64, currency string, usdTry float64) (valueTRY, valueUSD float64) {
	switch currency {
	case models.CurrencyUSD:
		valueUSD = amount
		if usdTry > 0 {
			valueTRY = amount * usdTry
		}
	default:
		// TRY and any unrecognized currency are treated as TRY-denominated.
		valueTRY = amount
		if usdTry > 0 {
			valueUSD = amount / usdTry
		}
	}
	return valueTRY, valueUSD
}
