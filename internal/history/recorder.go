// Package history maintains the daily valuation trail of each portfolio.
package history

import (
	"math"
	"sort"
	"time"

	"github.com/varlik-app/varlik/internal/models"
)

const (
	// maxPoints caps the trail at roughly one year of daily snapshots.
	maxPoints = 365

	// valueEpsilon suppresses rewrites of today's point for sub-kuruş
	// valuation jitter.
	valueEpsilon = 0.01
)

// Record folds the current valuation into the portfolio's history and
// reports whether the trail changed. At most one point exists per calendar
// day: a new day appends, the same day replaces in place, and replacements
// within valueEpsilon of the stored values are dropped as noise. The trail
// stays sorted ascending by date and capped at the most recent maxPoints.
func Record(p *models.Portfolio, totals models.Totals, now time.Time) bool {
	point := models.HistoryPoint{
		Date:     now.Truncate(24 * time.Hour),
		ValueTRY: totals.ValueTRY,
		ValueUSD: totals.ValueUSD,
	}

	for i := range p.History {
		if p.History[i].SameDay(now) {
			if math.Abs(p.History[i].ValueTRY-point.ValueTRY) < valueEpsilon &&
				math.Abs(p.History[i].ValueUSD-point.ValueUSD) < valueEpsilon {
				return false
			}
			p.History[i].ValueTRY = point.ValueTRY
			p.History[i].ValueUSD = point.ValueUSD
			return true
		}
	}

	p.History = append(p.History, point)
	sort.Slice(p.History, func(i, j int) bool {
		return p.History[i].Date.Before(p.History[j].Date)
	})
	if len(p.History) > maxPoints {
		p.History = p.History[len(p.History)-maxPoints:]
	}
	return true
}
