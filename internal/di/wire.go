package di

import (
	"github.com/rs/zerolog"

	"github.com/targeteer/targeteer/internal/cache"
	"github.com/targeteer/targeteer/internal/clients/moex"
	"github.com/targeteer/targeteer/internal/config"
	"github.com/targeteer/targeteer/internal/modules/instruments"
	"github.com/targeteer/targeteer/internal/modules/marketdata"
	"github.com/targeteer/targeteer/internal/modules/positions"
	"github.com/targeteer/targeteer/internal/modules/targets"
)

// Wire opens the databases and builds the full dependency graph.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	container.Memory = cache.NewMemory()
	container.MOEX = moex.NewClient(cfg.MOEXBaseURL, log)

	// Repositories
	container.InstrumentRepo = instruments.NewRepository(container.TrackerDB.Conn(), log)
	container.PositionRepo = positions.NewRepository(container.TrackerDB.Conn(), log)
	container.SnapshotRepo = marketdata.NewSnapshotRepository(container.CacheDB.Conn(), log)
	container.TargetRepo = targets.NewRepository(container.TrackerDB.Conn(), log)

	// Services
	container.InstrumentService = instruments.NewService(
		container.InstrumentRepo, container.MOEX, cfg.InstrumentMaxAge, log)

	container.MarketData = marketdata.NewService(
		container.SnapshotRepo, container.MOEX, marketdata.Config{
			PriceTTL:    cfg.PriceTTL,
			PreloadTTL:  cfg.PreloadTTL,
			FeedTimeout: cfg.FeedTimeout,
		}, log)

	container.ProgressTracker = targets.NewProgressTracker(
		container.PositionRepo, container.Memory, targets.ProgressConfig{
			BoughtQuantityTTL: cfg.BoughtQuantityTTL,
			BoughtValueTTL:    cfg.BoughtValueTTL,
		})

	container.TargetService = targets.NewService(
		container.TargetRepo,
		container.InstrumentRepo,
		container.InstrumentService,
		container.MarketData,
		container.ProgressTracker,
		container.MOEX,
		container.Memory,
		targets.ServiceConfig{
			TotalWeightTTL: cfg.TotalWeightTTL,
			TotalValueTTL:  cfg.TotalValueTTL,
		},
		log)

	container.Planner = targets.NewPlanner(
		container.TargetRepo,
		container.InstrumentRepo,
		container.MarketData,
		log)

	log.Info().Msg("Dependency container wired")
	return container, nil
}
