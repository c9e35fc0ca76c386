package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/models"
)

func TestCreateAndDeletePortfolio(t *testing.T) {
	ps := testPortfolios()
	now := time.Now()

	ps, id, err := CreatePortfolio(ps, "Emeklilik", "#4caf50", "savings", now)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	created := models.FindPortfolio(ps, id)
	require.NotNil(t, created)
	assert.Equal(t, "Emeklilik", created.Name)
	assert.Equal(t, now, created.CreatedAt)

	ps, err = DeletePortfolio(ps, id)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
}

func TestDeleteLastPortfolioRejected(t *testing.T) {
	ps := testPortfolios()

	out, err := DeletePortfolio(ps, "p1")
	require.ErrorIs(t, err, ErrLastPortfolio)
	assert.Len(t, out, 1)
}

func TestRenameAndAppearance(t *testing.T) {
	ps := testPortfolios()

	ps, err := RenamePortfolio(ps, "p1", "Ana Portföy")
	require.NoError(t, err)
	assert.Equal(t, "Ana Portföy", models.FindPortfolio(ps, "p1").Name)

	_, err = RenamePortfolio(ps, "p1", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	ps, err = SetPortfolioAppearance(ps, "p1", "#ff5722", "wallet")
	require.NoError(t, err)
	p := models.FindPortfolio(ps, "p1")
	assert.Equal(t, "#ff5722", p.Color)
	assert.Equal(t, "wallet", p.Icon)
}

func TestSetPortfolioTarget(t *testing.T) {
	ps := testPortfolios()
	target := 1000000.0

	ps, err := SetPortfolioTarget(ps, "p1", &target, models.CurrencyTRY)
	require.NoError(t, err)
	p := models.FindPortfolio(ps, "p1")
	require.NotNil(t, p.TargetValue)
	assert.InDelta(t, 1000000, *p.TargetValue, 1e-9)
	assert.Equal(t, models.CurrencyTRY, p.TargetCurrency)

	ps, err = SetPortfolioTarget(ps, "p1", nil, "")
	require.NoError(t, err)
	assert.Nil(t, models.FindPortfolio(ps, "p1").TargetValue)
}

func TestAggregatePortfolioIsReadOnly(t *testing.T) {
	ps := testPortfolios()

	_, err := RenamePortfolio(ps, models.AggregatePortfolioID, "x")
	assert.ErrorIs(t, err, ErrReadOnlyPortfolio)
	_, err = DeletePortfolio(ps, models.AggregatePortfolioID)
	assert.ErrorIs(t, err, ErrReadOnlyPortfolio)
}
