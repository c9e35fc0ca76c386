package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/varlik-app/varlik/internal/models"
)

// CreatePortfolio appends a new empty portfolio and returns the collection
// plus the new portfolio's id.
func CreatePortfolio(portfolios []models.Portfolio, name, color, icon string, now time.Time) ([]models.Portfolio, string, error) {
	if name == "" {
		return portfolios, "", ErrInvalidInput
	}
	out := models.ClonePortfolios(portfolios)
	id := uuid.New().String()
	out = append(out, models.Portfolio{
		ID:        id,
		Name:      name,
		Color:     color,
		Icon:      icon,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []models.PortfolioItem{},
		CashItems: []models.CashItem{},
	})
	return out, id, nil
}

// RenamePortfolio sets a portfolio's display name.
func RenamePortfolio(portfolios []models.Portfolio, portfolioID, name string) ([]models.Portfolio, error) {
	if name == "" {
		return portfolios, ErrInvalidInput
	}
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}
	out := models.ClonePortfolios(portfolios)
	models.FindPortfolio(out, portfolioID).Name = name
	return out, nil
}

// SetPortfolioAppearance sets the portfolio's color and icon. Empty values
// leave the existing ones in place.
func SetPortfolioAppearance(portfolios []models.Portfolio, portfolioID, color, icon string) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}
	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	if color != "" {
		p.Color = color
	}
	if icon != "" {
		p.Icon = icon
	}
	return out, nil
}

// SetPortfolioTarget sets or clears (nil value) the portfolio's savings goal.
func SetPortfolioTarget(portfolios []models.Portfolio, portfolioID string, value *float64, currency string) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}
	if value != nil && *value <= 0 {
		return portfolios, ErrInvalidInput
	}
	out := models.ClonePortfolios(portfolios)
	p := models.FindPortfolio(out, portfolioID)
	if value == nil {
		p.TargetValue = nil
		p.TargetCurrency = ""
	} else {
		v := *value
		p.TargetValue = &v
		p.TargetCurrency = currency
	}
	return out, nil
}

// DeletePortfolio removes a portfolio. The last remaining portfolio cannot
// be deleted; the collection is never empty after initialization.
func DeletePortfolio(portfolios []models.Portfolio, portfolioID string) ([]models.Portfolio, error) {
	if portfolioID == models.AggregatePortfolioID {
		return portfolios, ErrReadOnlyPortfolio
	}
	if models.FindPortfolio(portfolios, portfolioID) == nil {
		return portfolios, ErrNotFound
	}
	if len(portfolios) <= 1 {
		return portfolios, ErrLastPortfolio
	}
	out := models.ClonePortfolios(portfolios)
	for i := range out {
		if out[i].ID == portfolioID {
			out = append(out[:i], out[i+1:]...)
			break
		}
	}
	return out, nil
}

// DefaultPortfolio builds the seed portfolio used when a user has no data
// anywhere, locally or remotely.
func DefaultPortfolio(now time.Time) models.Portfolio {
	return models.Portfolio{
		ID:        uuid.New().String(),
		Name:      "Portföyüm",
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []models.PortfolioItem{},
		CashItems: []models.CashItem{},
	}
}
