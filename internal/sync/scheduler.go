package sync

import (
	"context"
	"time"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/models"
)

// Scheduler periodically refreshes market data for one coordinator. Each
// tick gathers the instruments actually held, fetches prices, and feeds the
// snapshot into the coordinator. Fetch failures keep the previous snapshot.
type Scheduler struct {
	coordinator *Coordinator
	oracle      interfaces.PriceOracle
	funds       interfaces.FundPriceClient
	logger      *common.Logger
	interval    time.Duration
}

// NewScheduler creates a price refresh scheduler. Either client may be nil;
// the corresponding data is simply never refreshed.
func NewScheduler(coordinator *Coordinator, oracle interfaces.PriceOracle, funds interfaces.FundPriceClient, logger *common.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		coordinator: coordinator,
		oracle:      oracle,
		funds:       funds,
		logger:      logger,
		interval:    interval,
	}
}

// Start runs the refresh loop until the context is canceled. The first
// refresh fires immediately so the UI is not stale for a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh performs one market data fetch cycle.
func (s *Scheduler) Refresh(ctx context.Context) {
	portfolios, _ := s.coordinator.Portfolios()
	instruments, fundCodes := heldInstruments(portfolios)
	if len(instruments) == 0 && len(fundCodes) == 0 {
		return
	}

	md := models.MarketData{
		Quotes:     map[string]models.Quote{},
		FundPrices: map[string]models.FundPrice{},
		FetchedAt:  time.Now().UTC(),
	}

	// Carry forward the previous snapshot so one failed source does not
	// blank out the others.
	prev := s.coordinator.MarketData()
	for k, v := range prev.Quotes {
		md.Quotes[k] = v
	}
	for k, v := range prev.FundPrices {
		md.FundPrices[k] = v
	}
	md.USDTRYRate = prev.USDTRYRate

	if s.oracle != nil {
		if rate, err := s.oracle.GetRate(ctx, models.USDTRYPair); err != nil {
			s.logger.Warn().Err(err).Msg("USDTRY rate fetch failed")
		} else {
			md.USDTRYRate = rate
		}

		if len(instruments) > 0 {
			if quotes, err := s.oracle.GetPrices(ctx, instruments); err != nil {
				s.logger.Warn().Err(err).Msg("Quote fetch failed")
			} else {
				for k, v := range quotes {
					md.Quotes[k] = v
				}
			}
		}
	}

	if s.funds != nil && len(fundCodes) > 0 {
		if funds, err := s.funds.GetAllFunds(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Fund price fetch failed")
		} else {
			for _, code := range fundCodes {
				if fp, ok := funds[code]; ok {
					md.FundPrices[code] = fp
				}
			}
		}
	}

	s.coordinator.SetMarketData(ctx, md)
}

// heldInstruments collects the distinct instruments the user actually holds:
// market-priced position instruments and money-market fund codes. Retirement
// and custom positions are valued without market data.
func heldInstruments(portfolios []models.Portfolio) (instruments, fundCodes []string) {
	seenInstrument := map[string]bool{}
	seenFund := map[string]bool{}

	for _, p := range portfolios {
		for _, item := range p.Items {
			switch item.Type {
			case models.AssetTypeRetirement, models.AssetTypeCustom:
				continue
			case models.AssetTypeFund:
				if !seenFund[item.InstrumentID] {
					seenFund[item.InstrumentID] = true
					fundCodes = append(fundCodes, item.InstrumentID)
				}
			default:
				if !seenInstrument[item.InstrumentID] {
					seenInstrument[item.InstrumentID] = true
					instruments = append(instruments, item.InstrumentID)
				}
			}
		}
		for _, cash := range p.CashItems {
			if cash.Type == models.CashTypeMoneyMarket && cash.FundCode != "" && !seenFund[cash.FundCode] {
				seenFund[cash.FundCode] = true
				fundCodes = append(fundCodes, cash.FundCode)
			}
		}
	}
	return instruments, fundCodes
}
