package interfaces

import (
	"context"
	"time"

	"github.com/varlik-app/varlik/internal/models"
)

// PriceOracle serves live market prices and FX rates. All methods may fail;
// callers must treat failures as "keep the stale price", never as fatal.
type PriceOracle interface {
	// GetRate returns the current price of a pair symbol (e.g. "USDTRY").
	GetRate(ctx context.Context, pair string) (float64, error)

	// GetPrices returns live quotes for the given instruments. Instruments
	// the oracle does not know are absent from the result, not an error.
	GetPrices(ctx context.Context, instruments []string) (map[string]models.Quote, error)

	// GetHistoricalPrice returns the closing price of a symbol on the day
	// of the given timestamp.
	GetHistoricalPrice(ctx context.Context, symbol string, ts time.Time) (float64, error)
}

// FundPriceClient serves TEFAS fund unit prices.
type FundPriceClient interface {
	// GetFundPrice returns the latest unit price for a single fund code.
	GetFundPrice(ctx context.Context, code string) (*models.FundPrice, error)

	// GetAllFunds returns the full daily snapshot of fund prices.
	GetAllFunds(ctx context.Context) (map[string]models.FundPrice, error)
}
