// Package interfaces defines service contracts for Varlık
package interfaces

import (
	"context"

	"github.com/varlik-app/varlik/internal/models"
)

// Local store keys. The coordinator persists exactly two logical values per
// user: the serialized portfolio collection and the active-portfolio selector.
const (
	KeyPortfolios      = "portfolios"
	KeyActivePortfolio = "active_portfolio"
)

// LocalStore is durable on-device key/value persistence. Get returns an
// empty string with a nil error when the key has never been written.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RemoteStore pushes/pulls the full portfolio collection to/from the remote
// backend, keyed by user identity.
//
// SaveAll must be idempotent: repeated calls with identical input leave the
// remote-readable state identical to a single call. LoadAll returns
// (nil, nil) when the user has never synced.
type RemoteStore interface {
	LoadAll(ctx context.Context, userID string) (*models.SyncPayload, error)
	SaveAll(ctx context.Context, userID string, portfolios []models.Portfolio, activePortfolioID string) error
	Close() error
}

// UserStore manages user accounts for the auth boundary.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, userID string) error
	Close() error
}
