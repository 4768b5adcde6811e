package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playsink/playsink/internal/config"
	"github.com/playsink/playsink/internal/database"
	"github.com/playsink/playsink/internal/executor"
	"github.com/playsink/playsink/internal/httpclient"
	"github.com/playsink/playsink/internal/playback"
	"github.com/playsink/playsink/internal/remux"
	"github.com/playsink/playsink/internal/repository"
	"github.com/playsink/playsink/internal/state"
)

// runtime bundles the wired application components shared by the serve
// and play commands.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	store    *state.Store
	loader   *executor.Singleton
	client   *httpclient.Client
	pipeline *remux.Pipeline
	blobs    *playback.BlobRegistry
	sink     *playback.HeadlessSink
	manager  *playback.Manager
}

// buildRuntime wires configuration into the running component graph.
// withDB controls whether history persistence uses the database or stays
// in memory (one-shot commands skip the database).
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, withDB bool) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	var repo state.HistoryRepository
	if withDB {
		db, err := database.New(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		rt.db = db
		repo = repository.NewHistoryRepository(db.DB, cfg.History.StorageKey)
	} else {
		repo = repository.NewMemoryHistoryRepository()
	}

	rt.store = state.NewStore(ctx, repo, state.StoreConfig{
		ResumeWindow:        cfg.History.ResumeWindow.Duration(),
		MinResumePosition:   cfg.History.MinResumePosition,
		SaveIntervalSeconds: cfg.History.SaveIntervalSeconds,
		Logger:              logger,
	})

	rt.loader = executor.NewSingleton(func() executor.Executor {
		return executor.NewRunner(executor.RunnerConfig{
			BinaryPath:  cfg.Executor.BinaryPath,
			ScratchBase: cfg.Executor.ScratchDir,
			Logger:      logger,
		})
	})

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Playback.HTTPTimeout
	httpCfg.RetryAttempts = cfg.Playback.RetryAttempts
	httpCfg.RetryDelay = cfg.Playback.RetryDelay
	httpCfg.MaxResponseSize = cfg.Playback.MaxResponseBytes.Int64()
	httpCfg.Logger = logger
	rt.client = httpclient.New(httpCfg)

	rt.pipeline = remux.NewPipeline(rt.loader, rt.client, remux.Config{
		AssumedDurationSeconds: cfg.Remux.AssumedDurationSeconds,
		SegmentDurationSeconds: cfg.Remux.SegmentDurationSeconds,
		ProbePrefixBytes:       cfg.Remux.ProbePrefixBytes.Int64(),
		Logger:                 logger,
	})

	rt.blobs = playback.NewBlobRegistry()

	sinkCfg := playback.DefaultHeadlessConfig()
	sinkCfg.Blobs = rt.blobs
	sinkCfg.Validator = rt.client
	rt.sink = playback.NewHeadlessSink(sinkCfg)

	rt.manager = playback.NewManager(playback.SessionDeps{
		Sink:           rt.sink,
		EngineProvider: &playback.HLSEngineProvider{Fetcher: rt.client, Logger: logger},
		Remuxer:        rt.pipeline,
		Prober:         rt.pipeline,
		Blobs:          rt.blobs,
		Store:          rt.store,
		Logger:         logger,
	}, playback.ManagerConfig{
		Autoplay: cfg.Playback.Autoplay,
		Logger:   logger,
	})

	return rt, nil
}

// close releases the runtime's resources in reverse dependency order.
func (rt *runtime) close() {
	rt.manager.Stop()
	rt.loader.Terminate()
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}
}
