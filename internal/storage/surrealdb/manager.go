// Package surrealdb provides the remote persistence side of synchronization.
// The remote holds one document per user carrying the full portfolio
// collection; it is a backup and cross-device relay, never the write path.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
)

// Manager owns the SurrealDB connection and the stores built on it.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	syncStore *SyncStore
}

// NewManager connects to SurrealDB and prepares the sync table.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Remote.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Remote.Username,
		"pass": config.Storage.Remote.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Remote.Namespace, config.Storage.Remote.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// SurrealDB v3 errors on querying tables that were never defined.
	if _, err := surrealdb.Query[any](ctx, db, "DEFINE TABLE IF NOT EXISTS portfolio_sync SCHEMALESS", nil); err != nil {
		return nil, fmt.Errorf("failed to define table portfolio_sync: %w", err)
	}

	m := &Manager{
		db:        db,
		logger:    logger,
		syncStore: NewSyncStore(db, logger),
	}

	logger.Info().
		Str("address", config.Storage.Remote.Address).
		Str("namespace", config.Storage.Remote.Namespace).
		Str("database", config.Storage.Remote.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// SyncStore returns the per-user portfolio sync store.
func (m *Manager) SyncStore() interfaces.RemoteStore {
	return m.syncStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no record")
}
