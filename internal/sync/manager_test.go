package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/common"
)

func TestManagerCachesCoordinators(t *testing.T) {
	m := NewManager(newFakeLocal(), newFakeRemote(), nil, nil, common.NewSilentLogger(), testOptions(), time.Minute)
	ctx := context.Background()

	c1, err := m.Coordinator(ctx, "u1")
	require.NoError(t, err)
	c2, err := m.Coordinator(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	other, err := m.Coordinator(ctx, "u2")
	require.NoError(t, err)
	assert.NotSame(t, c1, other)
}

func TestManagerIsolatesUsers(t *testing.T) {
	local := newFakeLocal()
	m := NewManager(local, newFakeRemote(), nil, nil, common.NewSilentLogger(), testOptions(), time.Minute)
	ctx := context.Background()

	c1, err := m.Coordinator(ctx, "u1")
	require.NoError(t, err)
	c2, err := m.Coordinator(ctx, "u2")
	require.NoError(t, err)

	rename(t, c1, "UserOne")

	others, _ := c2.Portfolios()
	assert.NotEqual(t, "UserOne", others[0].Name)
}

func TestManagerShutdownFlushes(t *testing.T) {
	remote := newFakeRemote()
	opts := testOptions()
	opts.Debounce = time.Hour
	m := NewManager(newFakeLocal(), remote, nil, nil, common.NewSilentLogger(), opts, time.Minute)
	ctx := context.Background()

	c, err := m.Coordinator(ctx, "u1")
	require.NoError(t, err)

	rename(t, c, "Unpushed")

	m.Shutdown(ctx)

	payload := remote.payload("u1")
	require.NotNil(t, payload)
	assert.Equal(t, "Unpushed", payload.Portfolios[0].Name)
}
