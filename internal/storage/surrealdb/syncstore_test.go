package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/models"
)

func TestSyncStoreLoadNeverSynced(t *testing.T) {
	store := NewSyncStore(testDB(t), testLogger())

	payload, err := store.LoadAll(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Nil(t, payload, "a user who never pushed has no remote state")
}

func TestSyncStoreRoundTrip(t *testing.T) {
	store := NewSyncStore(testDB(t), testLogger())
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	portfolios := []models.Portfolio{
		{
			ID: "p1", Name: "Main", CreatedAt: now, UpdatedAt: now,
			Items: []models.PortfolioItem{
				{ID: "i1", InstrumentID: "THYAO", Amount: 10, AverageCost: 100,
					Currency: models.CurrencyTRY, Type: models.AssetTypeStock},
			},
			CashItems: []models.CashItem{
				{ID: "c1", Type: models.CashTypeCash, Amount: 5000, Currency: models.CurrencyTRY},
			},
		},
	}

	require.NoError(t, store.SaveAll(ctx, "u1", portfolios, "p1"))

	payload, err := store.LoadAll(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "p1", payload.ActivePortfolioID)
	require.Len(t, payload.Portfolios, 1)
	require.Len(t, payload.Portfolios[0].Items, 1)
	assert.Equal(t, "THYAO", payload.Portfolios[0].Items[0].InstrumentID)
}

func TestSyncStoreSaveIsIdempotent(t *testing.T) {
	store := NewSyncStore(testDB(t), testLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	portfolios := []models.Portfolio{{ID: "p1", Name: "Main", CreatedAt: now, UpdatedAt: now}}

	require.NoError(t, store.SaveAll(ctx, "u1", portfolios, "p1"))
	require.NoError(t, store.SaveAll(ctx, "u1", portfolios, "p1"))

	payload, err := store.LoadAll(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Len(t, payload.Portfolios, 1, "repeated pushes overwrite in place")
}

func TestSyncStoreUsersAreIsolated(t *testing.T) {
	store := NewSyncStore(testDB(t), testLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.SaveAll(ctx, "u1", []models.Portfolio{{ID: "p1", Name: "A", UpdatedAt: now}}, "p1"))
	require.NoError(t, store.SaveAll(ctx, "u2", []models.Portfolio{{ID: "p2", Name: "B", UpdatedAt: now}}, "p2"))

	p1, err := store.LoadAll(ctx, "u1")
	require.NoError(t, err)
	p2, err := store.LoadAll(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "p1", p1.ActivePortfolioID)
	assert.Equal(t, "p2", p2.ActivePortfolioID)
}
