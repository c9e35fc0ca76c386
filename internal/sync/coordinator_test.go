package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/models"
)

// fakeLocal is an in-memory LocalStore.
type fakeLocal struct {
	mu   gosync.Mutex
	data map[string]string
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{data: make(map[string]string)}
}

func (f *fakeLocal) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeLocal) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeLocal) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeLocal) Close() error { return nil }

// fakeRemote is an in-memory RemoteStore with scriptable failures.
type fakeRemote struct {
	mu        gosync.Mutex
	payloads  map[string]*models.SyncPayload
	saveCalls int
	failNext  int
	loadErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{payloads: make(map[string]*models.SyncPayload)}
}

func (f *fakeRemote) LoadAll(_ context.Context, userID string) (*models.SyncPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.payloads[userID], nil
}

func (f *fakeRemote) SaveAll(_ context.Context, userID string, portfolios []models.Portfolio, activeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("remote unavailable")
	}
	f.payloads[userID] = &models.SyncPayload{
		UserID:            userID,
		Portfolios:        models.ClonePortfolios(portfolios),
		ActivePortfolioID: activeID,
	}
	return nil
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func (f *fakeRemote) payload(userID string) *models.SyncPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[userID]
}

var _ interfaces.LocalStore = (*fakeLocal)(nil)
var _ interfaces.RemoteStore = (*fakeRemote)(nil)

func testOptions() Options {
	return Options{
		Debounce:    20 * time.Millisecond,
		RetryDelays: []time.Duration{30 * time.Millisecond},
	}
}

func seedLocal(t *testing.T, local *fakeLocal, userID string, portfolios []models.Portfolio, activeID string) {
	t.Helper()
	data, err := json.Marshal(portfolios)
	require.NoError(t, err)
	require.NoError(t, local.Set(context.Background(), userID+":"+interfaces.KeyPortfolios, string(data)))
	require.NoError(t, local.Set(context.Background(), userID+":"+interfaces.KeyActivePortfolio, activeID))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// rename commits a name change on the first portfolio.
func rename(t *testing.T, c *Coordinator, name string) {
	t.Helper()
	require.NoError(t, c.Commit(context.Background(), func(portfolios []models.Portfolio, _ string) (Change, error) {
		portfolios[0].Name = name
		return Change{Portfolios: portfolios, DirtyIDs: []string{portfolios[0].ID}}, nil
	}))
}

func TestLoadBothEmptySynthesizesDefault(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), newFakeRemote(), common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	portfolios, activeID := c.Portfolios()
	require.Len(t, portfolios, 1)
	assert.NotEmpty(t, portfolios[0].ID)
	assert.Equal(t, portfolios[0].ID, activeID)
}

func TestLoadRemoteWinsWhenNewer(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	older := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 10)

	seedLocal(t, local, "u1", []models.Portfolio{{ID: "p1", Name: "Stale", UpdatedAt: older}}, "p1")
	remote.payloads["u1"] = &models.SyncPayload{
		UserID:            "u1",
		Portfolios:        []models.Portfolio{{ID: "p1", Name: "Fresh", UpdatedAt: newer}},
		ActivePortfolioID: "p1",
	}

	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	portfolios, _ := c.Portfolios()
	assert.Equal(t, "Fresh", portfolios[0].Name)

	// The winner is persisted locally.
	raw, err := local.Get(context.Background(), "u1:"+interfaces.KeyPortfolios)
	require.NoError(t, err)
	assert.Contains(t, raw, "Fresh")
}

func TestLoadLocalWinsAndPushesBack(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	older := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 10)

	seedLocal(t, local, "u1", []models.Portfolio{{ID: "p1", Name: "OfflineEdits", UpdatedAt: newer}}, "p1")
	remote.payloads["u1"] = &models.SyncPayload{
		UserID:            "u1",
		Portfolios:        []models.Portfolio{{ID: "p1", Name: "Stale", UpdatedAt: older}},
		ActivePortfolioID: "p1",
	}

	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	portfolios, _ := c.Portfolios()
	assert.Equal(t, "OfflineEdits", portfolios[0].Name)

	// Local being newer re-seeds the remote.
	waitFor(t, time.Second, func() bool {
		p := remote.payload("u1")
		return p != nil && p.Portfolios[0].Name == "OfflineEdits"
	})
}

func TestLoadRemoteWinsTies(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	seedLocal(t, local, "u1", []models.Portfolio{{ID: "p1", Name: "Local", UpdatedAt: ts}}, "p1")
	remote.payloads["u1"] = &models.SyncPayload{
		UserID:            "u1",
		Portfolios:        []models.Portfolio{{ID: "p1", Name: "Remote", UpdatedAt: ts}},
		ActivePortfolioID: "p1",
	}

	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	portfolios, _ := c.Portfolios()
	assert.Equal(t, "Remote", portfolios[0].Name, "equal timestamps defer to the remote copy")
}

func TestLoadSurvivesRemoteOutage(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	remote.loadErr = errors.New("connection refused")

	seedLocal(t, local, "u1", []models.Portfolio{{ID: "p1", Name: "Local", UpdatedAt: time.Now()}}, "p1")

	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()), "remote outage must not block startup")

	portfolios, _ := c.Portfolios()
	assert.Equal(t, "Local", portfolios[0].Name)
}

func TestCommitDebouncesPushes(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))
	baseline := remote.calls()

	for i := 0; i < 5; i++ {
		rename(t, c, "Edit")
	}

	waitFor(t, time.Second, func() bool {
		p := remote.payload("u1")
		return p != nil && p.Portfolios[0].Name == "Edit"
	})
	assert.Equal(t, baseline+1, remote.calls(), "a burst of commits collapses into one push")
	assert.False(t, c.Syncing())
}

func TestCommitStampsDirtyPortfolios(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), nil, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	portfolios, _ := c.Portfolios()
	before := portfolios[0].UpdatedAt
	time.Sleep(2 * time.Millisecond)

	rename(t, c, "Renamed")

	updated, _ := c.Portfolios()
	assert.True(t, updated[0].UpdatedAt.After(before), "commit stamps UpdatedAt on dirty portfolios")
}

func TestCommitRejectsEmptyOverwrite(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), nil, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	err := c.Commit(context.Background(), func([]models.Portfolio, string) (Change, error) {
		return Change{}, nil
	})
	assert.ErrorIs(t, err, ErrEmptyOverwrite)

	portfolios, _ := c.Portfolios()
	assert.Len(t, portfolios, 1, "state survives the rejected commit")
}

func TestConcurrentCommitsAllApply(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), nil, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	// Each goroutine reads the collection inside its own commit and appends
	// one holding; no append may clobber another.
	instruments := []string{"AAPL", "MSFT", "THYAO", "GARAN", "BTC"}
	var wg gosync.WaitGroup
	for _, symbol := range instruments {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			err := c.Commit(context.Background(), func(portfolios []models.Portfolio, _ string) (Change, error) {
				portfolios[0].Items = append(portfolios[0].Items, models.PortfolioItem{
					ID: symbol, InstrumentID: symbol, Amount: 1, AverageCost: 100,
					Currency: models.CurrencyTRY, Type: models.AssetTypeStock,
				})
				return Change{Portfolios: portfolios, DirtyIDs: []string{portfolios[0].ID}}, nil
			})
			assert.NoError(t, err)
		}(symbol)
	}
	wg.Wait()

	portfolios, _ := c.Portfolios()
	held := make(map[string]bool, len(portfolios[0].Items))
	for _, item := range portfolios[0].Items {
		held[item.InstrumentID] = true
	}
	for _, symbol := range instruments {
		assert.True(t, held[symbol], "holding %s survived concurrent commits", symbol)
	}
}

// blockingLocal parks reads until released, pinning Load mid-flight.
type blockingLocal struct {
	*fakeLocal
	release chan struct{}
}

func (b *blockingLocal) Get(ctx context.Context, key string) (string, error) {
	<-b.release
	return b.fakeLocal.Get(ctx, key)
}

func TestCommitRejectedDuringLoad(t *testing.T) {
	local := &blockingLocal{fakeLocal: newFakeLocal(), release: make(chan struct{})}
	c := NewCoordinator("u1", local, nil, common.NewSilentLogger(), testOptions())

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()

	// Load is parked on the local read; commits must bounce until it finishes.
	waitFor(t, time.Second, func() bool {
		err := c.Commit(context.Background(), func(portfolios []models.Portfolio, _ string) (Change, error) {
			return Change{Portfolios: portfolios}, nil
		})
		return errors.Is(err, ErrLoadInProgress)
	})

	close(local.release)
	require.NoError(t, <-done)

	rename(t, c, "AfterLoad")
	portfolios, _ := c.Portfolios()
	assert.Equal(t, "AfterLoad", portfolios[0].Name)
}

func TestPushRetriesAfterFailure(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return remote.payload("u1") != nil })

	remote.mu.Lock()
	remote.failNext = 1
	remote.mu.Unlock()

	rename(t, c, "Retry")

	waitFor(t, 2*time.Second, func() bool {
		p := remote.payload("u1")
		return p != nil && p.Portfolios[0].Name == "Retry"
	})
}

func TestSyncErrorStickyUntilSuccess(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return remote.payload("u1") != nil })

	// Fail the push and its single retry.
	remote.mu.Lock()
	remote.failNext = 2
	remote.mu.Unlock()

	rename(t, c, "Unsynced")

	waitFor(t, 2*time.Second, func() bool { return c.SyncError() != nil })

	// The next commit pushes the queued edits and clears the status.
	rename(t, c, "Unsynced")

	waitFor(t, 2*time.Second, func() bool {
		p := remote.payload("u1")
		return p != nil && p.Portfolios[0].Name == "Unsynced" && c.SyncError() == nil
	})
}

func TestFlushPushesImmediately(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	opts := testOptions()
	opts.Debounce = time.Hour // never fires on its own
	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), opts)
	require.NoError(t, c.Load(context.Background()))

	rename(t, c, "LastEdit")

	require.NoError(t, c.Flush(context.Background()))
	p := remote.payload("u1")
	require.NotNil(t, p)
	assert.Equal(t, "LastEdit", p.Portfolios[0].Name)

	// The flush resolves the pending push cycle; nothing stays in flight.
	assert.False(t, c.Syncing())
	assert.NoError(t, c.SyncError())
}

func TestFlushFailureRecordsSyncError(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	opts := testOptions()
	opts.Debounce = time.Hour
	c := NewCoordinator("u1", local, remote, common.NewSilentLogger(), opts)
	require.NoError(t, c.Load(context.Background()))

	rename(t, c, "Stranded")

	remote.mu.Lock()
	remote.failNext = 1
	remote.mu.Unlock()

	require.Error(t, c.Flush(context.Background()))
	assert.False(t, c.Syncing(), "a failed flush is not still in flight")
	assert.Error(t, c.SyncError())

	// Local state keeps the edit for the next cycle.
	portfolios, _ := c.Portfolios()
	assert.Equal(t, "Stranded", portfolios[0].Name)
}

func TestSetMarketDataRecordsHistory(t *testing.T) {
	local := newFakeLocal()
	c := NewCoordinator("u1", local, nil, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Commit(context.Background(), func(portfolios []models.Portfolio, _ string) (Change, error) {
		portfolios[0].Items = append(portfolios[0].Items, models.PortfolioItem{
			ID: "i1", InstrumentID: "THYAO", Amount: 10, AverageCost: 100,
			Currency: models.CurrencyTRY, Type: models.AssetTypeStock,
		})
		return Change{Portfolios: portfolios, DirtyIDs: []string{portfolios[0].ID}}, nil
	}))

	c.SetMarketData(context.Background(), models.MarketData{
		Quotes: map[string]models.Quote{
			"THYAO": {InstrumentID: "THYAO", Price: 120, Currency: models.CurrencyTRY},
		},
		USDTRYRate: 40,
		FetchedAt:  time.Now(),
	})

	updated, _ := c.Portfolios()
	require.Len(t, updated[0].History, 1)
	assert.InDelta(t, 1200, updated[0].History[0].ValueTRY, 1e-6)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), nil, common.NewSilentLogger(), testOptions())
	ch := c.Subscribe()
	require.NoError(t, c.Load(context.Background()))

	select {
	case event := <-ch:
		assert.Equal(t, EventPortfolios, event)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	c.Close()
	_, open := <-ch
	assert.False(t, open, "close releases subscribers")
}

func TestActivePortfolioValidation(t *testing.T) {
	c := NewCoordinator("u1", newFakeLocal(), nil, common.NewSilentLogger(), testOptions())
	require.NoError(t, c.Load(context.Background()))

	err := c.SetActivePortfolio(context.Background(), "missing")
	assert.Error(t, err)

	require.NoError(t, c.SetActivePortfolio(context.Background(), models.AggregatePortfolioID))
	_, activeID := c.Portfolios()
	assert.Equal(t, models.AggregatePortfolioID, activeID)
}
