package scheduler

import (
	"github.com/rs/zerolog"
)

// expiredDeleter is the persistent cache side of cleanup.
type expiredDeleter interface {
	DeleteExpired() (int64, error)
}

// sweeper is the in-memory cache side of cleanup.
type sweeper interface {
	Sweep() int
}

// CleanupJob drops expired rows from the price cache database and expired
// entries from the in-memory computation cache. Reads never depend on it;
// it only keeps the cache database from growing without bound.
type CleanupJob struct {
	snapshots expiredDeleter
	memory    sweeper
	log       zerolog.Logger
}

func NewCleanupJob(snapshots expiredDeleter, memory sweeper, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		snapshots: snapshots,
		memory:    memory,
		log:       log.With().Str("job", "cache_cleanup").Logger(),
	}
}

func (j *CleanupJob) Name() string { return "cache_cleanup" }

func (j *CleanupJob) Run() error {
	rows, err := j.snapshots.DeleteExpired()
	if err != nil {
		return err
	}
	entries := j.memory.Sweep()

	if rows > 0 || entries > 0 {
		j.log.Info().
			Int64("cache_rows", rows).
			Int("memory_entries", entries).
			Msg("Removed expired cache entries")
	}
	return nil
}
