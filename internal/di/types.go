// Package di provides dependency injection for the application.
//
// The Container is the single source of truth for database handles,
// repositories and services; it is built once at startup and passed to
// the server and scheduler.
package di

import (
	"github.com/targeteer/targeteer/internal/cache"
	"github.com/targeteer/targeteer/internal/clients/moex"
	"github.com/targeteer/targeteer/internal/database"
	"github.com/targeteer/targeteer/internal/modules/instruments"
	"github.com/targeteer/targeteer/internal/modules/marketdata"
	"github.com/targeteer/targeteer/internal/modules/positions"
	"github.com/targeteer/targeteer/internal/modules/targets"
)

// Container holds all application dependencies.
type Container struct {
	// Databases
	TrackerDB *database.DB // instruments, accounts, positions, portfolios
	CacheDB   *database.DB // price snapshots, preload markers

	// Shared infrastructure
	Memory *cache.Memory
	MOEX   *moex.Client

	// Repositories
	InstrumentRepo *instruments.Repository
	PositionRepo   *positions.Repository
	SnapshotRepo   *marketdata.SnapshotRepository
	TargetRepo     *targets.Repository

	// Services
	InstrumentService *instruments.Service
	MarketData        *marketdata.Service
	ProgressTracker   *targets.ProgressTracker
	TargetService     *targets.Service
	Planner           *targets.Planner
}

// Close releases all database handles. Safe to call on a partially
// initialized container.
func (c *Container) Close() {
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
	if c.TrackerDB != nil {
		c.TrackerDB.Close()
	}
}
