// Package app wires configuration, storage, clients and the sync layer into
// one initialized application core shared by cmd/varlik-server and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/varlik-app/varlik/internal/clients/markets"
	"github.com/varlik-app/varlik/internal/clients/tefas"
	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/storage/badger"
	"github.com/varlik-app/varlik/internal/storage/surrealdb"
	syncpkg "github.com/varlik-app/varlik/internal/sync"
	"github.com/varlik-app/varlik/internal/valuation"
)

// App holds all initialized services and clients.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	LocalStore  interfaces.LocalStore
	UserStore   interfaces.UserStore
	Remote      interfaces.RemoteStore
	Oracle      interfaces.PriceOracle
	Funds       interfaces.FundPriceClient
	Sync        *syncpkg.Manager
	Valuation   *valuation.Engine
	StartupTime time.Time

	localDB       *badger.Store
	remoteManager *surrealdb.Manager
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients and the sync manager.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration: provided path, VARLIK_CONFIG, binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("VARLIK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "varlik.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/varlik.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage path to binary directory
	if config.Storage.Local.Path != "" && !filepath.IsAbs(config.Storage.Local.Path) {
		config.Storage.Local.Path = filepath.Join(binDir, config.Storage.Local.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	// Local store opens first; the app must work with nothing else.
	localDB, err := badger.NewStore(logger, config.Storage.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	localStore := badger.NewKVStorage(localDB, logger)
	userStore := badger.NewUserStorage(localDB, logger)

	// The remote backend is optional: a failed connection degrades to
	// offline mode instead of refusing to start.
	var remote interfaces.RemoteStore
	var remoteManager *surrealdb.Manager
	if config.Storage.Remote.Address != "" {
		remoteManager, err = surrealdb.NewManager(logger, config)
		if err != nil {
			logger.Warn().Err(err).Msg("Remote storage unavailable, running offline")
			remoteManager = nil
		} else {
			remote = remoteManager.SyncStore()
		}
	}

	var oracle interfaces.PriceOracle
	if config.Clients.Markets.APIKey != "" {
		oracle = markets.NewClient(config.Clients.Markets.APIKey,
			markets.WithBaseURL(config.Clients.Markets.BaseURL),
			markets.WithLogger(logger),
			markets.WithRateLimit(config.Clients.Markets.RateLimit),
			markets.WithTimeout(config.Clients.Markets.GetTimeout()),
		)
	} else {
		logger.Warn().Msg("Markets API key not configured - live quotes and FX rates will be unavailable")
	}

	funds := tefas.NewClient(
		tefas.WithBaseURL(config.Clients.Tefas.BaseURL),
		tefas.WithLogger(logger),
		tefas.WithRateLimit(config.Clients.Tefas.RateLimit),
		tefas.WithTimeout(config.Clients.Tefas.GetTimeout()),
	)

	syncManager := syncpkg.NewManager(localStore, remote, oracle, funds, logger,
		syncpkg.Options{
			Debounce:    config.Sync.GetDebounce(),
			RetryDelays: config.Sync.GetRetryDelays(),
		},
		config.Sync.GetRefreshInterval(),
	)

	a := &App{
		Config:        config,
		Logger:        logger,
		LocalStore:    localStore,
		UserStore:     userStore,
		Remote:        remote,
		Oracle:        oracle,
		Funds:         funds,
		Sync:          syncManager,
		Valuation:     valuation.NewEngine(),
		StartupTime:   startupStart,
		localDB:       localDB,
		remoteManager: remoteManager,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: flush coordinators, close remote, close local storage.
func (a *App) Close() {
	if a.Sync != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.Sync.Shutdown(ctx)
		cancel()
		a.Sync = nil
	}
	if a.remoteManager != nil {
		a.remoteManager.Close()
		a.remoteManager = nil
	}
	if a.localDB != nil {
		a.localDB.Close()
		a.localDB = nil
	}
}
