package targets

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/database"
	"github.com/targeteer/targeteer/internal/domain"
)

// Repository persists target portfolios and their ordered lines.
//
// Line ordering is the load-bearing part: sort_order values within a
// portfolio must always form the dense sequence 1..N. The schema has no
// UNIQUE constraint on (portfolio_id, sort_order) because reorders pass
// through transient duplicates, so every mutation runs inside a
// transaction and re-verifies the sequence before committing.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger

	// orderMu serializes line mutations per portfolio so concurrent
	// moves cannot interleave their shift phases.
	orderMu sync.Map // portfolioID -> *sync.Mutex
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "targets").Logger(),
	}
}

func (r *Repository) lockPortfolio(portfolioID int64) *sync.Mutex {
	mu, _ := r.orderMu.LoadOrStore(portfolioID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m
}

// CreatePortfolio inserts a new portfolio and returns it with its ID set.
func (r *Repository) CreatePortfolio(name string, goal decimal.Decimal) (*Portfolio, error) {
	result, err := r.db.Exec(
		`INSERT INTO target_portfolios (name, goal, created_at) VALUES (?, ?, ?)`,
		name, goal.String(), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio id: %w", err)
	}

	return r.GetPortfolio(id)
}

func (r *Repository) GetPortfolio(id int64) (*Portfolio, error) {
	var p Portfolio
	var goal string
	var createdAt int64
	err := r.db.QueryRow(
		`SELECT id, name, goal, created_at FROM target_portfolios WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &goal, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()

	p.Goal, err = decimal.NewFromString(goal)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goal for portfolio %d: %w", id, err)
	}

	p.AccountIDs, err = r.getAccountIDs(id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) getAccountIDs(portfolioID int64) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT account_id FROM target_portfolio_accounts WHERE portfolio_id = ? ORDER BY account_id`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) ListPortfolios() ([]Portfolio, error) {
	rows, err := r.db.Query(
		`SELECT id, name, goal, created_at FROM target_portfolios ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		var p Portfolio
		var goal string
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &goal, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.Goal, err = decimal.NewFromString(goal)
		if err != nil {
			return nil, fmt.Errorf("failed to parse goal for portfolio %d: %w", p.ID, err)
		}
		p.AccountIDs, err = r.getAccountIDs(p.ID)
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

func (r *Repository) UpdateGoal(portfolioID int64, goal decimal.Decimal) error {
	result, err := r.db.Exec(
		`UPDATE target_portfolios SET goal = ? WHERE id = ?`,
		goal.String(), portfolioID,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("portfolio %d: %w", portfolioID, domain.ErrNotFound)
	}
	return nil
}

// SetAccounts replaces the portfolio's bound account set.
func (r *Repository) SetAccounts(portfolioID int64, accountIDs []string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`DELETE FROM target_portfolio_accounts WHERE portfolio_id = ?`, portfolioID,
		); err != nil {
			return fmt.Errorf("failed to clear portfolio accounts: %w", err)
		}
		for _, accountID := range accountIDs {
			if _, err := tx.Exec(
				`INSERT INTO target_portfolio_accounts (portfolio_id, account_id) VALUES (?, ?)`,
				portfolioID, accountID,
			); err != nil {
				return fmt.Errorf("failed to bind account %s: %w", accountID, err)
			}
		}
		return nil
	})
}

const lineColumns = `id, portfolio_id, sort_order, uid, index_weight, coefficient`

func scanLine(scanner interface{ Scan(...interface{}) error }) (Line, error) {
	var line Line
	var indexWeight, coefficient string
	err := scanner.Scan(
		&line.ID, &line.PortfolioID, &line.SortOrder,
		&line.InstrumentUID, &indexWeight, &coefficient,
	)
	if err != nil {
		return Line{}, err
	}
	if line.IndexWeight, err = decimal.NewFromString(indexWeight); err != nil {
		return Line{}, fmt.Errorf("failed to parse index weight for line %d: %w", line.ID, err)
	}
	if line.Coefficient, err = decimal.NewFromString(coefficient); err != nil {
		return Line{}, fmt.Errorf("failed to parse coefficient for line %d: %w", line.ID, err)
	}
	return line, nil
}

// GetLines returns the portfolio's lines in display order.
func (r *Repository) GetLines(portfolioID int64) ([]Line, error) {
	rows, err := r.db.Query(
		`SELECT `+lineColumns+` FROM target_portfolio_lines
		 WHERE portfolio_id = ? ORDER BY sort_order`,
		portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) GetLine(lineID int64) (*Line, error) {
	row := r.db.QueryRow(
		`SELECT `+lineColumns+` FROM target_portfolio_lines WHERE id = ?`, lineID,
	)
	line, err := scanLine(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("line %d: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get line: %w", err)
	}
	return &line, nil
}

// AddLine appends an instrument to the end of the portfolio. It is
// idempotent: adding a UID the portfolio already holds returns the
// existing line untouched. New lines start outside the index
// (index_weight 0) with the default coefficient 1.
func (r *Repository) AddLine(portfolioID int64, instrumentUID string) (*Line, error) {
	mu := r.lockPortfolio(portfolioID)
	defer mu.Unlock()

	var lineID int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		err := tx.QueryRow(
			`SELECT id FROM target_portfolio_lines WHERE portfolio_id = ? AND uid = ?`,
			portfolioID, instrumentUID,
		).Scan(&lineID)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check existing line: %w", err)
		}

		var count int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM target_portfolio_lines WHERE portfolio_id = ?`,
			portfolioID,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count lines: %w", err)
		}

		result, err := tx.Exec(
			`INSERT INTO target_portfolio_lines (portfolio_id, sort_order, uid, index_weight, coefficient)
			 VALUES (?, ?, ?, '0', '1')`,
			portfolioID, count+1, instrumentUID,
		)
		if err != nil {
			return fmt.Errorf("failed to add line: %w", err)
		}
		if lineID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get line id: %w", err)
		}
		return verifyOrder(tx, portfolioID)
	})
	if err != nil {
		return nil, err
	}
	return r.GetLine(lineID)
}

// MoveLine shifts a line one position up or down in display order by
// swapping sort_order with its neighbor. Moving the top line up or the
// bottom line down is a no-op.
func (r *Repository) MoveLine(lineID int64, direction Direction) error {
	line, err := r.GetLine(lineID)
	if err != nil {
		return err
	}

	mu := r.lockPortfolio(line.PortfolioID)
	defer mu.Unlock()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		// Re-read inside the transaction; a concurrent delete may have
		// renumbered since the lookup above.
		var current int
		err := tx.QueryRow(
			`SELECT sort_order FROM target_portfolio_lines WHERE id = ?`, lineID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("line %d: %w", lineID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read line order: %w", err)
		}

		target := current - 1
		if direction == Down {
			target = current + 1
		}

		var count int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM target_portfolio_lines WHERE portfolio_id = ?`,
			line.PortfolioID,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count lines: %w", err)
		}
		if target < 1 || target > count {
			return nil
		}

		var neighborID int64
		err = tx.QueryRow(
			`SELECT id FROM target_portfolio_lines WHERE portfolio_id = ? AND sort_order = ?`,
			line.PortfolioID, target,
		).Scan(&neighborID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("portfolio %d has no line at position %d: %w",
				line.PortfolioID, target, domain.ErrOrderInvariant)
		}
		if err != nil {
			return fmt.Errorf("failed to find neighbor line: %w", err)
		}

		if _, err := tx.Exec(
			`UPDATE target_portfolio_lines SET sort_order = ? WHERE id = ?`, target, lineID,
		); err != nil {
			return fmt.Errorf("failed to move line: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE target_portfolio_lines SET sort_order = ? WHERE id = ?`, current, neighborID,
		); err != nil {
			return fmt.Errorf("failed to move neighbor line: %w", err)
		}
		return verifyOrder(tx, line.PortfolioID)
	})
}

// DeleteLine removes a line and closes the gap so the remaining lines
// keep the dense 1..N ordering.
func (r *Repository) DeleteLine(lineID int64) error {
	line, err := r.GetLine(lineID)
	if err != nil {
		return err
	}

	mu := r.lockPortfolio(line.PortfolioID)
	defer mu.Unlock()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`DELETE FROM target_portfolio_lines WHERE id = ?`, lineID,
		)
		if err != nil {
			return fmt.Errorf("failed to delete line: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("line %d: %w", lineID, domain.ErrNotFound)
		}

		if _, err := tx.Exec(
			`UPDATE target_portfolio_lines SET sort_order = sort_order - 1
			 WHERE portfolio_id = ? AND sort_order > ?`,
			line.PortfolioID, line.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to close order gap: %w", err)
		}
		return verifyOrder(tx, line.PortfolioID)
	})
}

func (r *Repository) SetCoefficient(lineID int64, coefficient decimal.Decimal) error {
	result, err := r.db.Exec(
		`UPDATE target_portfolio_lines SET coefficient = ? WHERE id = ?`,
		coefficient.String(), lineID,
	)
	if err != nil {
		return fmt.Errorf("failed to set coefficient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("line %d: %w", lineID, domain.ErrNotFound)
	}
	return nil
}

// SetIndexWeights zeroes every line's index weight and reapplies the
// given uid -> weight map in a single transaction. Lines absent from
// the map stay at zero, which is how constituents that fell out of the
// index lose their weight without losing their coefficient.
func (r *Repository) SetIndexWeights(portfolioID int64, weights map[string]decimal.Decimal) error {
	mu := r.lockPortfolio(portfolioID)
	defer mu.Unlock()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`UPDATE target_portfolio_lines SET index_weight = '0' WHERE portfolio_id = ?`,
			portfolioID,
		); err != nil {
			return fmt.Errorf("failed to reset index weights: %w", err)
		}
		for uid, weight := range weights {
			if _, err := tx.Exec(
				`UPDATE target_portfolio_lines SET index_weight = ?
				 WHERE portfolio_id = ? AND uid = ?`,
				weight.String(), portfolioID, uid,
			); err != nil {
				return fmt.Errorf("failed to set index weight for %s: %w", uid, err)
			}
		}
		return nil
	})
}

// verifyOrder asserts that the portfolio's sort_order values form the
// dense sequence 1..N. A violation aborts the enclosing transaction
// with ErrOrderInvariant; the caller's mutation rolls back rather than
// committing a corrupted ordering.
func verifyOrder(tx *sql.Tx, portfolioID int64) error {
	rows, err := tx.Query(
		`SELECT sort_order FROM target_portfolio_lines WHERE portfolio_id = ?`,
		portfolioID,
	)
	if err != nil {
		return fmt.Errorf("failed to verify line order: %w", err)
	}
	defer rows.Close()

	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return fmt.Errorf("failed to scan sort order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sort.Ints(orders)
	var bad []string
	for i, o := range orders {
		if o != i+1 {
			bad = append(bad, fmt.Sprintf("%d", o))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("portfolio %d sort orders [%s] are not a dense 1..%d sequence: %w",
			portfolioID, strings.Join(bad, ","), len(orders), domain.ErrOrderInvariant)
	}
	return nil
}
