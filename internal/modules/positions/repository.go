// Package positions provides the position ledger: signed holding records per
// account and instrument, and the account registry they hang off.
package positions

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/targeteer/targeteer/internal/database"
	"github.com/targeteer/targeteer/internal/domain"
)

// Repository handles account and position database operations.
// Database: tracker.db (accounts, positions tables).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new positions repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "positions").Logger(),
	}
}

// UpsertAccount stores or updates an account record.
func (r *Repository) UpsertAccount(acc *domain.Account) error {
	var opened interface{}
	if !acc.Opened.IsZero() {
		opened = acc.Opened.Unix()
	}
	var closed interface{}
	if acc.Closed != nil {
		closed = acc.Closed.Unix()
	}

	_, err := r.db.Exec(`
		INSERT INTO accounts (id, name, bank, type, status, opened, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			bank = excluded.bank,
			type = excluded.type,
			status = excluded.status,
			opened = excluded.opened,
			closed = excluded.closed`,
		acc.ID, acc.Name, acc.Bank, acc.Type, acc.Status, opened, closed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", acc.ID, err)
	}

	return nil
}

// GetAccounts returns all known accounts ordered by id.
func (r *Repository) GetAccounts() ([]domain.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, name, bank, type, status, opened, closed
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		var opened, closed sql.NullInt64

		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Bank, &acc.Type, &acc.Status, &opened, &closed); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if opened.Valid {
			acc.Opened = time.Unix(opened.Int64, 0).UTC()
		}
		if closed.Valid {
			t := time.Unix(closed.Int64, 0).UTC()
			acc.Closed = &t
		}

		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// SumQuantity returns the signed sum of held quantity of an instrument
// across the given accounts. No holdings sum to 0, not an error.
// Implements domain.PositionLedger.
func (r *Repository) SumQuantity(instrumentUID string, accountIDs []string) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(accountIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(quantity), 0) FROM positions
		WHERE uid = ? AND account_id IN (%s)`, placeholders)

	args := make([]interface{}, 0, len(accountIDs)+1)
	args = append(args, instrumentUID)
	for _, id := range accountIDs {
		args = append(args, id)
	}

	var total int64
	if err := r.db.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum quantity for %s: %w", instrumentUID, err)
	}

	return total, nil
}

// ReplaceForAccount replaces the position set of one account: quantities of
// all current rows are zeroed first, then the reported positions are
// upserted. Instruments the broker stopped reporting keep a zero-quantity
// row instead of disappearing, so sold-out holdings read as 0.
func (r *Repository) ReplaceForAccount(accountID string, positions []domain.Position) error {
	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"UPDATE positions SET quantity = 0, updated = ? WHERE account_id = ?",
			now, accountID,
		); err != nil {
			return fmt.Errorf("failed to zero positions for account %s: %w", accountID, err)
		}

		for _, pos := range positions {
			blocked := 0
			if pos.Blocked {
				blocked = 1
			}
			if _, err := tx.Exec(`
				INSERT INTO positions (account_id, uid, quantity, blocked, updated)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(account_id, uid, blocked) DO UPDATE SET
					quantity = excluded.quantity,
					updated = excluded.updated`,
				accountID, pos.InstrumentUID, pos.Quantity, blocked, now,
			); err != nil {
				return fmt.Errorf("failed to upsert position %s/%s: %w", accountID, pos.InstrumentUID, err)
			}
		}

		return nil
	})
}

// GetForAccount returns all position rows of one account.
func (r *Repository) GetForAccount(accountID string) ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT account_id, uid, quantity, blocked, updated
		FROM positions WHERE account_id = ? ORDER BY uid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var result []domain.Position
	for rows.Next() {
		var pos domain.Position
		var blocked int
		var updated int64

		if err := rows.Scan(&pos.AccountID, &pos.InstrumentUID, &pos.Quantity, &blocked, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.Blocked = blocked != 0
		pos.Updated = time.Unix(updated, 0).UTC()

		result = append(result, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return result, nil
}
