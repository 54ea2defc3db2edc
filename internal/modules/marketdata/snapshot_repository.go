// Package marketdata provides time-bounded caching of instrument prices on
// top of a price feed. Snapshots live in cache.db and expire by TTL; a
// separate preload marker makes batch refreshes idempotent.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/targeteer/targeteer/internal/domain"
)

// priceSnapshot is the msgpack blob stored per instrument in last_prices.
// The decimal travels as its string form to survive encoding exactly.
type priceSnapshot struct {
	Price     string `msgpack:"price"`
	Timestamp int64  `msgpack:"ts"`
}

// SnapshotRepository persists price snapshots and preload markers.
// Database: cache.db (last_prices, preload_marks tables).
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
		now: time.Now,
	}
}

// GetFresh returns the snapshot for uid if it has not expired.
// Returns (nil, nil) when the key is absent or stale.
func (r *SnapshotRepository) GetFresh(uid string) (*domain.PriceSnapshot, error) {
	var blob []byte
	err := r.db.QueryRow(
		"SELECT snapshot FROM last_prices WHERE uid = ? AND expires_at > ?",
		uid, r.now().Unix(),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price snapshot for %s: %w", uid, err)
	}

	var snap priceSnapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode price snapshot for %s: %w", uid, err)
	}

	price, err := decimal.NewFromString(snap.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid cached price for %s: %w", uid, err)
	}

	return &domain.PriceSnapshot{
		UID:       uid,
		Price:     price,
		Timestamp: time.Unix(snap.Timestamp, 0).UTC(),
	}, nil
}

// Put stores a snapshot with expiration = now + ttl.
func (r *SnapshotRepository) Put(uid string, price decimal.Decimal, ttl time.Duration) error {
	now := r.now()

	blob, err := msgpack.Marshal(priceSnapshot{
		Price:     price.String(),
		Timestamp: now.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode price snapshot for %s: %w", uid, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO last_prices (uid, snapshot, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			snapshot = excluded.snapshot,
			expires_at = excluded.expires_at`,
		uid, blob, now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price snapshot for %s: %w", uid, err)
	}

	return nil
}

// PreloadFresh reports whether a preload marker for the portfolio is still
// within its TTL window.
func (r *SnapshotRepository) PreloadFresh(portfolioID int64) (bool, error) {
	var one int
	err := r.db.QueryRow(
		"SELECT 1 FROM preload_marks WHERE portfolio_id = ? AND expires_at > ?",
		portfolioID, r.now().Unix(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check preload marker for portfolio %d: %w", portfolioID, err)
	}

	return true, nil
}

// MarkPreload records a completed batch preload for the portfolio.
func (r *SnapshotRepository) MarkPreload(portfolioID int64, ttl time.Duration) error {
	_, err := r.db.Exec(`
		INSERT INTO preload_marks (portfolio_id, expires_at) VALUES (?, ?)
		ON CONFLICT(portfolio_id) DO UPDATE SET expires_at = excluded.expires_at`,
		portfolioID, r.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store preload marker for portfolio %d: %w", portfolioID, err)
	}

	return nil
}

// DeleteExpired removes expired snapshots and markers.
// Returns the number of rows deleted.
func (r *SnapshotRepository) DeleteExpired() (int64, error) {
	now := r.now().Unix()
	var total int64

	for _, table := range []string{"last_prices", "preload_marks"} {
		result, err := r.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table), now)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired rows from %s: %w", table, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
		}
		total += deleted
	}

	return total, nil
}
