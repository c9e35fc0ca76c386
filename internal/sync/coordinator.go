// Package sync owns the authoritative in-memory portfolio state and keeps
// it reconciled between the local store and the remote backend.
//
// Writes are local-first: every commit persists to the local store before
// any network activity, then schedules a debounced remote push. Startup
// reconciliation is last-writer-wins on the greatest portfolio UpdatedAt.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/history"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/ledger"
	"github.com/varlik-app/varlik/internal/models"
	"github.com/varlik-app/varlik/internal/valuation"
)

var (
	// ErrLoadInProgress rejects commits that race the startup reconciliation.
	ErrLoadInProgress = errors.New("sync: load in progress")

	// ErrEmptyOverwrite rejects a commit that would wipe a non-empty
	// collection. Deleting everything is expressed through explicit
	// portfolio deletion, never a bulk overwrite.
	ErrEmptyOverwrite = errors.New("sync: refusing to overwrite portfolios with empty collection")

	// errUnchanged aborts a commit whose function found nothing to change.
	errUnchanged = errors.New("sync: no change")
)

// EventType labels a change notification.
type EventType string

const (
	EventPortfolios EventType = "portfolios"
	EventMarket     EventType = "market"
)

// Options tunes the coordinator's push behavior.
type Options struct {
	Debounce    time.Duration
	RetryDelays []time.Duration
}

// DefaultOptions mirror the interactive feel of the mobile app: pushes lag
// bursts of edits by 1.5s and retry twice with backoff.
func DefaultOptions() Options {
	return Options{
		Debounce:    1500 * time.Millisecond,
		RetryDelays: []time.Duration{3 * time.Second, 6 * time.Second},
	}
}

// Coordinator reconciles one user's portfolio state across memory, the
// local store and the remote backend. All exported methods are safe for
// concurrent use.
type Coordinator struct {
	userID string
	local  interfaces.LocalStore
	remote interfaces.RemoteStore // nil when running offline
	engine *valuation.Engine
	logger *common.Logger
	opts   Options

	// commitMu serializes read-modify-write cycles so concurrent commits
	// never overwrite each other. mu only guards field access and is never
	// held across the commit function or store writes.
	commitMu gosync.Mutex

	mu          gosync.Mutex
	portfolios  []models.Portfolio
	activeID    string
	market      models.MarketData
	loading     bool
	syncing     bool
	syncErr     error
	generation  uint64
	pushTimer   *time.Timer
	subscribers []chan EventType
	closed      bool
}

// NewCoordinator creates a coordinator for one user. The remote store may be
// nil, which keeps every feature working except cross-device sync.
func NewCoordinator(userID string, local interfaces.LocalStore, remote interfaces.RemoteStore, logger *common.Logger, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	return &Coordinator{
		userID: userID,
		local:  local,
		remote: remote,
		engine: valuation.NewEngine(),
		logger: logger,
		opts:   opts,
	}
}

// localKey namespaces local-store keys per user so multiple accounts share
// one BadgerHold store.
func (c *Coordinator) localKey(key string) string {
	return c.userID + ":" + key
}

// Load performs startup reconciliation: read local and remote concurrently,
// pick the side with the newest portfolio UpdatedAt (remote wins ties), and
// persist the winner locally. When the local side is strictly newer, the
// winner is also pushed back out. When both sides are empty, a default
// portfolio is synthesized.
func (c *Coordinator) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	type localResult struct {
		portfolios []models.Portfolio
		activeID   string
		err        error
	}
	type remoteResult struct {
		payload *models.SyncPayload
		err     error
	}

	localCh := make(chan localResult, 1)
	remoteCh := make(chan remoteResult, 1)

	go func() {
		portfolios, activeID, err := c.readLocal(ctx)
		localCh <- localResult{portfolios, activeID, err}
	}()
	go func() {
		if c.remote == nil {
			remoteCh <- remoteResult{nil, nil}
			return
		}
		payload, err := c.remote.LoadAll(ctx, c.userID)
		remoteCh <- remoteResult{payload, err}
	}()

	lr := <-localCh
	rr := <-remoteCh

	if lr.err != nil {
		return fmt.Errorf("failed to read local state: %w", lr.err)
	}
	if rr.err != nil {
		// Remote being down must not block startup; local state serves.
		c.logger.Warn().Err(rr.err).Str("user_id", c.userID).Msg("Remote load failed, continuing with local state")
	}

	portfolios, activeID := lr.portfolios, lr.activeID
	pushBack := false

	if rr.payload != nil {
		localMax := models.MaxUpdatedAt(lr.portfolios)
		remoteMax := models.MaxUpdatedAt(rr.payload.Portfolios)
		if !localMax.After(remoteMax) {
			portfolios = rr.payload.Portfolios
			if rr.payload.ActivePortfolioID != "" {
				activeID = rr.payload.ActivePortfolioID
			}
		} else {
			// Local edits made while offline beat the stale remote copy.
			pushBack = true
		}
	} else if rr.err == nil && c.remote != nil && len(lr.portfolios) > 0 {
		// Never-synced user with local data: seed the remote.
		pushBack = true
	}

	if len(portfolios) == 0 {
		seed := ledger.DefaultPortfolio(time.Now().UTC())
		portfolios = []models.Portfolio{seed}
		activeID = seed.ID
		pushBack = c.remote != nil && rr.err == nil
	}
	if activeID == "" || (models.FindPortfolio(portfolios, activeID) == nil && activeID != models.AggregatePortfolioID) {
		activeID = portfolios[0].ID
	}

	if err := c.writeLocal(ctx, portfolios, activeID); err != nil {
		return fmt.Errorf("failed to persist reconciled state: %w", err)
	}

	c.mu.Lock()
	c.portfolios = portfolios
	c.activeID = activeID
	c.generation++
	c.mu.Unlock()

	c.logger.Info().
		Str("user_id", c.userID).
		Int("portfolios", len(portfolios)).
		Bool("push_back", pushBack).
		Msg("Portfolio state reconciled")

	if pushBack {
		c.schedulePush()
	}
	c.notify(EventPortfolios)
	return nil
}

// Portfolios returns a deep copy of the current collection and the active
// portfolio id.
func (c *Coordinator) Portfolios() ([]models.Portfolio, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ClonePortfolios(c.portfolios), c.activeID
}

// MarketData returns the latest market snapshot.
func (c *Coordinator) MarketData() models.MarketData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.market
}

// Syncing reports whether a remote push is in flight or pending.
func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// SyncError returns the sticky outcome of the last push cycle: nil after a
// success, the final error after a cycle that exhausted its retries. Unsynced
// data is never dropped; the error clears on the next successful push.
func (c *Coordinator) SyncError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncErr
}

// Change is the outcome of a commit function: the replacement collection,
// the active portfolio id (empty keeps the current selection) and the ids
// whose UpdatedAt gets stamped at commit time.
type Change struct {
	Portfolios []models.Portfolio
	ActiveID   string
	DirtyIDs   []string
}

// Commit runs fn against a copy of the current collection while holding the
// commit lock, so concurrent read-modify-write cycles serialize instead of
// overwriting each other's edits. On success the result is stamped and
// persisted locally, and a debounced remote push is scheduled. Commits
// during startup reconciliation are rejected; an error from fn aborts the
// commit and leaves the state untouched.
func (c *Coordinator) Commit(ctx context.Context, fn func(portfolios []models.Portfolio, activeID string) (Change, error)) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		c.logger.Warn().Str("user_id", c.userID).Msg("Commit rejected during load")
		return ErrLoadInProgress
	}
	portfolios := models.ClonePortfolios(c.portfolios)
	activeID := c.activeID
	hadAny := len(c.portfolios) > 0
	c.mu.Unlock()

	change, err := fn(portfolios, activeID)
	if err != nil {
		return err
	}
	if len(change.Portfolios) == 0 && hadAny {
		return ErrEmptyOverwrite
	}
	if change.ActiveID == "" {
		change.ActiveID = activeID
	}

	now := time.Now().UTC()
	for _, id := range change.DirtyIDs {
		if p := models.FindPortfolio(change.Portfolios, id); p != nil {
			p.UpdatedAt = now
		}
	}

	if err := c.writeLocal(ctx, change.Portfolios, change.ActiveID); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}

	c.mu.Lock()
	c.portfolios = models.ClonePortfolios(change.Portfolios)
	c.activeID = change.ActiveID
	c.mu.Unlock()

	c.schedulePush()
	c.notify(EventPortfolios)
	return nil
}

// SetActivePortfolio persists the active-portfolio selector. The selector is
// device state conceptually, but it syncs along with the collection so a new
// device opens on the same portfolio.
func (c *Coordinator) SetActivePortfolio(ctx context.Context, portfolioID string) error {
	return c.Commit(ctx, func(portfolios []models.Portfolio, _ string) (Change, error) {
		if portfolioID != models.AggregatePortfolioID && models.FindPortfolio(portfolios, portfolioID) == nil {
			return Change{}, ledger.ErrNotFound
		}
		return Change{Portfolios: portfolios, ActiveID: portfolioID}, nil
	})
}

// SetMarketData feeds a fresh market snapshot in. Valuations are recomputed
// and folded into each portfolio's history trail through a regular commit,
// so the fold cannot clobber an interleaved edit; a changed trail is
// persisted and pushed like any other mutation.
func (c *Coordinator) SetMarketData(ctx context.Context, md models.MarketData) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return
	}
	c.market = md
	c.mu.Unlock()

	err := c.Commit(ctx, func(portfolios []models.Portfolio, _ string) (Change, error) {
		now := time.Now().UTC()
		var dirty []string
		for i := range portfolios {
			totals := c.engine.Totals(portfolios[i], md)
			if history.Record(&portfolios[i], totals, now) {
				dirty = append(dirty, portfolios[i].ID)
			}
		}
		if len(dirty) == 0 {
			return Change{}, errUnchanged
		}
		return Change{Portfolios: portfolios, DirtyIDs: dirty}, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		c.logger.Error().Err(err).Str("user_id", c.userID).Msg("Failed to persist history update")
	}
	c.notify(EventMarket)
}

// Flush pushes the current state immediately, without debounce or retries.
// Called on shutdown so the last burst of edits is not lost with the process.
// Either way the pending push cycle is resolved: a success clears the sync
// status, a failure records it, and nothing is left reporting in-flight.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.pushTimer != nil {
		c.pushTimer.Stop()
		c.pushTimer = nil
	}
	portfolios := models.ClonePortfolios(c.portfolios)
	activeID := c.activeID
	c.mu.Unlock()

	if c.remote == nil || len(portfolios) == 0 {
		return nil
	}

	err := c.remote.SaveAll(ctx, c.userID, portfolios, activeID)

	c.mu.Lock()
	c.generation++
	c.syncing = false
	c.syncErr = err
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to flush to remote: %w", err)
	}
	c.logger.Info().Str("user_id", c.userID).Msg("State flushed to remote")
	return nil
}

// Subscribe returns a channel receiving change notifications. Slow consumers
// miss events rather than block the coordinator.
func (c *Coordinator) Subscribe() <-chan EventType {
	ch := make(chan EventType, 8)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Close stops the pending push timer and releases subscribers. It does not
// flush; callers flush explicitly first.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pushTimer != nil {
		c.pushTimer.Stop()
		c.pushTimer = nil
	}
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
	return nil
}

func (c *Coordinator) notify(event EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// schedulePush (re)arms the debounce timer. Each commit during the window
// pushes the deadline out so bursts of edits collapse into one remote write.
func (c *Coordinator) schedulePush() {
	if c.remote == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.generation++
	generation := c.generation
	c.syncing = true
	if c.pushTimer != nil {
		c.pushTimer.Stop()
	}
	c.pushTimer = time.AfterFunc(c.opts.Debounce, func() {
		c.push(generation)
	})
}

// push sends the current state to the remote, retrying per the backoff
// schedule. A push whose generation has been superseded by a newer commit
// abandons silently; the newer push carries its changes.
func (c *Coordinator) push(generation uint64) {
	delays := append([]time.Duration{0}, c.opts.RetryDelays...)

	var lastErr error
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}

		c.mu.Lock()
		if c.closed || generation != c.generation {
			c.mu.Unlock()
			return
		}
		portfolios := models.ClonePortfolios(c.portfolios)
		activeID := c.activeID
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.remote.SaveAll(ctx, c.userID, portfolios, activeID)
		cancel()

		if err == nil {
			c.mu.Lock()
			if generation == c.generation {
				c.syncing = false
				c.syncErr = nil
			}
			c.mu.Unlock()
			c.logger.Debug().Str("user_id", c.userID).Msg("State pushed to remote")
			return
		}

		lastErr = err
		c.logger.Warn().Err(err).
			Str("user_id", c.userID).
			Int("attempt", attempt+1).
			Msg("Remote push failed")
	}

	// All attempts failed. Local state is safe; the next commit or the
	// shutdown flush will carry these changes. The sticky error stays until
	// a push succeeds.
	c.mu.Lock()
	if generation == c.generation {
		c.syncing = false
		c.syncErr = lastErr
	}
	c.mu.Unlock()
}

func (c *Coordinator) readLocal(ctx context.Context) ([]models.Portfolio, string, error) {
	raw, err := c.local.Get(ctx, c.localKey(interfaces.KeyPortfolios))
	if err != nil {
		return nil, "", err
	}

	var portfolios []models.Portfolio
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &portfolios); err != nil {
			return nil, "", fmt.Errorf("corrupt local portfolio state: %w", err)
		}
	}

	activeID, err := c.local.Get(ctx, c.localKey(interfaces.KeyActivePortfolio))
	if err != nil {
		return nil, "", err
	}
	return portfolios, activeID, nil
}

func (c *Coordinator) writeLocal(ctx context.Context, portfolios []models.Portfolio, activeID string) error {
	data, err := json.Marshal(portfolios)
	if err != nil {
		return fmt.Errorf("failed to marshal portfolios: %w", err)
	}
	if err := c.local.Set(ctx, c.localKey(interfaces.KeyPortfolios), string(data)); err != nil {
		return err
	}
	return c.local.Set(ctx, c.localKey(interfaces.KeyActivePortfolio), activeID)
}
