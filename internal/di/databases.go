package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/targeteer/targeteer/internal/config"
	"github.com/targeteer/targeteer/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// tracker.db - instruments, accounts, positions, target portfolios
	trackerDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/tracker.db",
		Profile: database.ProfileStandard,
		Name:    "tracker",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracker database: %w", err)
	}
	container.TrackerDB = trackerDB

	// cache.db - price snapshots and preload markers, fully rebuildable
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		trackerDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{trackerDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
		log.Info().Str("database", db.Name()).Msg("Database ready")
	}

	return container, nil
}
