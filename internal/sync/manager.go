package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
)

// Manager creates and caches one Coordinator per user. Each coordinator gets
// its own price refresh scheduler goroutine; everything shares the local
// store and the remote connection.
type Manager struct {
	local           interfaces.LocalStore
	remote          interfaces.RemoteStore
	oracle          interfaces.PriceOracle
	funds           interfaces.FundPriceClient
	logger          *common.Logger
	opts            Options
	refreshInterval time.Duration

	mu           gosync.Mutex
	coordinators map[string]*managed
}

type managed struct {
	coordinator *Coordinator
	cancel      context.CancelFunc
}

// NewManager creates a coordinator manager.
func NewManager(local interfaces.LocalStore, remote interfaces.RemoteStore, oracle interfaces.PriceOracle, funds interfaces.FundPriceClient, logger *common.Logger, opts Options, refreshInterval time.Duration) *Manager {
	return &Manager{
		local:           local,
		remote:          remote,
		oracle:          oracle,
		funds:           funds,
		logger:          logger,
		opts:            opts,
		refreshInterval: refreshInterval,
		coordinators:    make(map[string]*managed),
	}
}

// Coordinator returns the user's coordinator, creating and loading it on
// first use. Creation runs the full startup reconciliation, so the first
// request of a session pays the sync cost.
func (m *Manager) Coordinator(ctx context.Context, userID string) (*Coordinator, error) {
	m.mu.Lock()
	if entry, ok := m.coordinators[userID]; ok {
		m.mu.Unlock()
		return entry.coordinator, nil
	}
	m.mu.Unlock()

	coordinator := NewCoordinator(userID, m.local, m.remote, m.logger, m.opts)
	if err := coordinator.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load coordinator for user '%s': %w", userID, err)
	}

	m.mu.Lock()
	// Another request may have won the race while we loaded.
	if entry, ok := m.coordinators[userID]; ok {
		m.mu.Unlock()
		coordinator.Close()
		return entry.coordinator, nil
	}

	schedulerCtx, cancel := context.WithCancel(context.Background())
	m.coordinators[userID] = &managed{coordinator: coordinator, cancel: cancel}
	m.mu.Unlock()

	if m.oracle != nil || m.funds != nil {
		scheduler := NewScheduler(coordinator, m.oracle, m.funds, m.logger, m.refreshInterval)
		go scheduler.Start(schedulerCtx)
	}

	m.logger.Info().Str("user_id", userID).Msg("Coordinator started")
	return coordinator, nil
}

// Shutdown flushes and closes every coordinator. Called once at process
// shutdown so no debounced push is lost.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := make(map[string]*managed, len(m.coordinators))
	for id, entry := range m.coordinators {
		entries[id] = entry
	}
	m.coordinators = make(map[string]*managed)
	m.mu.Unlock()

	for userID, entry := range entries {
		entry.cancel()
		if err := entry.coordinator.Flush(ctx); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("Final flush failed")
		}
		entry.coordinator.Close()
	}
}
