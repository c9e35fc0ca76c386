package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKVStorageRoundTrip(t *testing.T) {
	kv := NewKVStorage(newTestStore(t), common.NewSilentLogger())
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "user1:portfolios", `[{"id":"p1"}]`))

	value, err := kv.Get(ctx, "user1:portfolios")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p1"}]`, value)

	require.NoError(t, kv.Set(ctx, "user1:portfolios", `[]`))
	value, err = kv.Get(ctx, "user1:portfolios")
	require.NoError(t, err)
	assert.Equal(t, `[]`, value, "set overwrites")

	require.NoError(t, kv.Delete(ctx, "user1:portfolios"))
	value, err = kv.Get(ctx, "user1:portfolios")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestKVStorageMissingKeyIsNotAnError(t *testing.T) {
	kv := NewKVStorage(newTestStore(t), common.NewSilentLogger())

	value, err := kv.Get(context.Background(), "never-written")
	require.NoError(t, err, "first launch reads must not fail")
	assert.Empty(t, value)
}

func TestKVStorageDeleteMissingKey(t *testing.T) {
	kv := NewKVStorage(newTestStore(t), common.NewSilentLogger())
	assert.NoError(t, kv.Delete(context.Background(), "never-written"))
}

func TestUserStorageRoundTrip(t *testing.T) {
	users := NewUserStorage(newTestStore(t), common.NewSilentLogger())
	ctx := context.Background()

	user := &models.User{
		UserID:       "u1",
		Email:        "ayse@example.com",
		Name:         "Ayşe",
		PasswordHash: "$2a$10$fake",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, users.SaveUser(ctx, user))

	got, err := users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ayse@example.com", got.Email)

	byEmail, err := users.GetUserByEmail(ctx, "ayse@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.UserID)

	_, err = users.GetUser(ctx, "missing")
	assert.Error(t, err)

	require.NoError(t, users.DeleteUser(ctx, "u1"))
	_, err = users.GetUser(ctx, "u1")
	assert.Error(t, err)
}
