// Package app wires the application: configuration, databases, clients,
// reference data and the domain services, in dependency order.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/refinery/internal/clientdata"
	"github.com/aristath/refinery/internal/clients/tycoon"
	"github.com/aristath/refinery/internal/config"
	"github.com/aristath/refinery/internal/database"
	"github.com/aristath/refinery/internal/modules/market"
	"github.com/aristath/refinery/internal/modules/reference"
	"github.com/aristath/refinery/internal/modules/scanner"
	"github.com/aristath/refinery/internal/modules/sourcing"
	"github.com/aristath/refinery/internal/scheduler"
)

// App holds every wired component. Built once at startup by Wire.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	CacheDB   *database.DB
	QuoteRepo *clientdata.Repository
	Tycoon    *tycoon.Client
	Index     *reference.Index
	Graph     *reference.Graph
	Market    *market.Service
	Scanner   *scanner.Service
	Sourcing  *sourcing.Service
	Scheduler *scheduler.Scheduler
}

// Wire initializes all components in dependency order. Reference data
// failures are fatal: without the catalog and yield graph nothing works.
func Wire(cfg *config.Config, log zerolog.Logger) (*App, error) {
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "quotes.db"),
		Profile: database.ProfileCache,
		Name:    "quotes",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open quote cache database: %w", err)
	}
	if err := cacheDB.Migrate(clientdata.Schema); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate quote cache database: %w", err)
	}

	quoteRepo := clientdata.NewRepository(cacheDB.Conn())
	tycoonClient := tycoon.NewClient(cfg.QuoteAPIURL, quoteRepo, log)

	loader := reference.NewDumpLoader(cfg.SDEBaseURL, cfg.DataDir, log)
	catalog, err := loader.Catalog()
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to load item catalog: %w", err)
	}
	yieldTable, err := loader.YieldTable()
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to load yield table: %w", err)
	}

	index := reference.NewIndex(catalog, log)
	graph := reference.NewGraph(yieldTable, index)
	log.Info().
		Int("items", index.Len()).
		Int("reprocessable", graph.Len()).
		Msg("Reference data loaded")

	marketSvc := market.NewService(tycoonClient, cfg.HomeRegion, log)

	a := &App{
		Config:    cfg,
		Log:       log,
		CacheDB:   cacheDB,
		QuoteRepo: quoteRepo,
		Tycoon:    tycoonClient,
		Index:     index,
		Graph:     graph,
		Market:    marketSvc,
		Scanner:   scanner.NewService(index, graph, marketSvc, log),
		Sourcing:  sourcing.NewService(index, graph, marketSvc, log),
		Scheduler: scheduler.New(log),
	}

	if err := a.registerJobs(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return a, nil
}

// registerJobs wires the background maintenance jobs: a periodic flush of the
// in-memory quote cache to disk, a daily sweep of expired entries and an
// hourly health check with WAL checkpoint on the cache database.
func (a *App) registerJobs() error {
	if err := a.Scheduler.AddJob("0 */15 * * * *", &cacheSaveJob{client: a.Tycoon}); err != nil {
		return err
	}

	cleanup := clientdata.NewCleanupJob(a.QuoteRepo, a.Log)
	if err := a.Scheduler.AddJob("0 0 3 * * *", cleanup); err != nil {
		return err
	}
	// Quotes that expired while the process was down would otherwise sit
	// in the store until 03:00
	if err := a.Scheduler.RunNow(cleanup); err != nil {
		a.Log.Warn().Err(err).Msg("Startup cache cleanup failed")
	}

	return a.Scheduler.AddJob("0 30 * * * *", database.NewMaintenanceJob(a.CacheDB, a.Log))
}

// Close persists the quote cache and releases resources. Safe to call after
// a partial Wire failure.
func (a *App) Close() {
	a.Scheduler.Stop()

	if a.Tycoon != nil {
		if err := a.Tycoon.Save(); err != nil {
			a.Log.Error().Err(err).Msg("Failed to persist quote cache on shutdown")
		}
	}
	if a.CacheDB != nil {
		if err := a.CacheDB.Close(); err != nil {
			a.Log.Error().Err(err).Msg("Failed to close cache database")
		}
	}
}

// cacheSaveJob flushes the quote cache to sqlite so a crash between
// shutdowns loses at most one interval of fetches.
type cacheSaveJob struct {
	client *tycoon.Client
}

func (j *cacheSaveJob) Run() error {
	return j.client.Save()
}

func (j *cacheSaveJob) Name() string {
	return "quote_cache_save"
}
