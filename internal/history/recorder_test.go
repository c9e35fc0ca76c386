package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/models"
)

func TestRecordAppendsNewDay(t *testing.T) {
	p := &models.Portfolio{ID: "p1"}
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

	changed := Record(p, models.Totals{ValueTRY: 1000, ValueUSD: 25}, now)
	require.True(t, changed)
	require.Len(t, p.History, 1)
	assert.InDelta(t, 1000, p.History[0].ValueTRY, 1e-9)

	changed = Record(p, models.Totals{ValueTRY: 2000, ValueUSD: 50}, now.AddDate(0, 0, 1))
	require.True(t, changed)
	assert.Len(t, p.History, 2)
}

func TestRecordReplacesSameDay(t *testing.T) {
	p := &models.Portfolio{ID: "p1"}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	Record(p, models.Totals{ValueTRY: 1000, ValueUSD: 25}, now)
	changed := Record(p, models.Totals{ValueTRY: 1500, ValueUSD: 37.5}, now.Add(6*time.Hour))

	require.True(t, changed)
	require.Len(t, p.History, 1, "same day replaces, never duplicates")
	assert.InDelta(t, 1500, p.History[0].ValueTRY, 1e-9)
}

func TestRecordIgnoresJitter(t *testing.T) {
	p := &models.Portfolio{ID: "p1"}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	Record(p, models.Totals{ValueTRY: 1000, ValueUSD: 25}, now)
	changed := Record(p, models.Totals{ValueTRY: 1000.005, ValueUSD: 25.0001}, now.Add(time.Minute))

	assert.False(t, changed, "sub-epsilon moves must not dirty the portfolio")
	assert.InDelta(t, 1000, p.History[0].ValueTRY, 1e-9)
}

func TestRecordCapsTrail(t *testing.T) {
	p := &models.Portfolio{ID: "p1"}
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 400; i++ {
		Record(p, models.Totals{ValueTRY: float64(i)}, start.AddDate(0, 0, i))
	}

	require.Len(t, p.History, 365)
	// Oldest points are dropped; the newest survives.
	assert.InDelta(t, 399, p.History[len(p.History)-1].ValueTRY, 1e-9)
	assert.InDelta(t, 35, p.History[0].ValueTRY, 1e-9)
	for i := 1; i < len(p.History); i++ {
		assert.True(t, p.History[i-1].Date.Before(p.History[i].Date), "trail stays sorted")
	}
}
