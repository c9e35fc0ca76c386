package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/models"
)

// SyncStore persists one portfolio_sync document per user. The record id is
// the user id, so repeated pushes overwrite in place and stay idempotent.
type SyncStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSyncStore(db *surrealdb.DB, logger *common.Logger) *SyncStore {
	return &SyncStore{
		db:     db,
		logger: logger,
	}
}

// syncRecord is the stored shape of a user's synchronized state.
type syncRecord struct {
	UserID            string             `json:"user_id"`
	Portfolios        []models.Portfolio `json:"portfolios"`
	ActivePortfolioID string             `json:"active_portfolio_id"`
	PushedAt          time.Time          `json:"pushed_at"`
}

// LoadAll pulls the user's synchronized state. Returns (nil, nil) when the
// user has never pushed.
func (s *SyncStore) LoadAll(ctx context.Context, userID string) (*models.SyncPayload, error) {
	record, err := surrealdb.Select[syncRecord](ctx, s.db, surrealmodels.NewRecordID("portfolio_sync", userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select sync record: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return &models.SyncPayload{
		UserID:            record.UserID,
		Portfolios:        record.Portfolios,
		ActivePortfolioID: record.ActivePortfolioID,
	}, nil
}

// SaveAll pushes the full collection, overwriting the user's document.
func (s *SyncStore) SaveAll(ctx context.Context, userID string, portfolios []models.Portfolio, activePortfolioID string) error {
	record := syncRecord{
		UserID:            userID,
		Portfolios:        portfolios,
		ActivePortfolioID: activePortfolioID,
		PushedAt:          time.Now().UTC(),
	}

	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("portfolio_sync", userID), "record": record}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]syncRecord](ctx, s.db, sql, vars)
		if err == nil {
			s.logger.Debug().
				Str("user_id", userID).
				Int("portfolios", len(portfolios)).
				Msg("Sync record pushed")
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to push sync record after retries: %w", lastErr)
}

func (s *SyncStore) Close() error {
	return nil // connection lifetime owned by the Manager
}

var _ interfaces.RemoteStore = (*SyncStore)(nil)
