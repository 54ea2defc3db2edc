// Package instruments provides the instrument catalog: metadata storage and
// identifier alias resolution (figi/isin/ticker/uid all map to one record).
package instruments

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/database"
	"github.com/targeteer/targeteer/internal/domain"
)

// Repository handles instrument catalog database operations.
// Database: tracker.db (instruments, instrument_ids tables).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new instrument repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "instruments").Logger(),
	}
}

const instrumentColumns = `uid, figi, ticker, isin, name, lot, currency,
	class_code, instrument_type, min_price_increment, updated`

func scanInstrument(row interface{ Scan(...interface{}) error }) (*domain.Instrument, error) {
	var inst domain.Instrument
	var minIncrement string
	var updated int64

	err := row.Scan(
		&inst.UID,
		&inst.FIGI,
		&inst.Ticker,
		&inst.ISIN,
		&inst.Name,
		&inst.Lot,
		&inst.Currency,
		&inst.ClassCode,
		&inst.InstrumentType,
		&minIncrement,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	inst.MinPriceIncrement, err = decimal.NewFromString(minIncrement)
	if err != nil {
		return nil, fmt.Errorf("invalid min_price_increment for %s: %w", inst.UID, err)
	}
	inst.Updated = time.Unix(updated, 0).UTC()

	return &inst, nil
}

// GetByUID returns the instrument with the given uid.
// Returns domain.ErrNotFound when no such instrument exists.
func (r *Repository) GetByUID(uid string) (*domain.Instrument, error) {
	query := fmt.Sprintf("SELECT %s FROM instruments WHERE uid = ?", instrumentColumns)

	inst, err := scanInstrument(r.db.QueryRow(query, uid))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instrument %s: %w", uid, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s: %w", uid, err)
	}

	return inst, nil
}

// GetByAlias resolves an instrument through the alias table.
// Returns domain.ErrNotFound when the alias is unknown.
func (r *Repository) GetByAlias(idType domain.IDType, idValue string) (*domain.Instrument, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM instruments
		WHERE uid = (SELECT uid FROM instrument_ids WHERE id_type = ? AND id_value = ?)`,
		instrumentColumns)

	inst, err := scanInstrument(r.db.QueryRow(query, string(idType), idValue))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instrument %s:%s: %w", idType, idValue, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instrument %s:%s: %w", idType, idValue, err)
	}

	return inst, nil
}

// Upsert stores the instrument and refreshes all its alias rows in one
// transaction. The ticker alias is namespaced with the class code the way
// exchanges identify listings (ticker value "SBER:TQBR").
func (r *Repository) Upsert(inst *domain.Instrument) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO instruments (uid, figi, ticker, isin, name, lot, currency,
				class_code, instrument_type, min_price_increment, updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET
				figi = excluded.figi,
				ticker = excluded.ticker,
				isin = excluded.isin,
				name = excluded.name,
				lot = excluded.lot,
				currency = excluded.currency,
				class_code = excluded.class_code,
				instrument_type = excluded.instrument_type,
				min_price_increment = excluded.min_price_increment,
				updated = excluded.updated`,
			inst.UID, inst.FIGI, inst.Ticker, inst.ISIN, inst.Name, inst.Lot,
			inst.Currency, inst.ClassCode, inst.InstrumentType,
			inst.MinPriceIncrement.String(), inst.Updated.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert instrument %s: %w", inst.UID, err)
		}

		aliases := map[domain.IDType]string{
			domain.IDTypeUID:  inst.UID,
			domain.IDTypeFIGI: inst.FIGI,
			domain.IDTypeISIN: inst.ISIN,
		}
		if inst.Ticker != "" {
			tickerValue := inst.Ticker
			if inst.ClassCode != "" {
				tickerValue += ":" + inst.ClassCode
			}
			aliases[domain.IDTypeTicker] = tickerValue
		}

		for idType, idValue := range aliases {
			if idValue == "" {
				continue
			}
			_, err := tx.Exec(`
				INSERT INTO instrument_ids (id_type, id_value, uid)
				VALUES (?, ?, ?)
				ON CONFLICT(id_type, id_value) DO UPDATE SET uid = excluded.uid`,
				string(idType), idValue, inst.UID,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert alias %s:%s: %w", idType, idValue, err)
			}
		}

		return nil
	})
}

// GetByTicker returns the instrument listed under the given bare ticker.
// Returns domain.ErrNotFound when no instrument has that ticker.
func (r *Repository) GetByTicker(ticker string) (*domain.Instrument, error) {
	query := fmt.Sprintf("SELECT %s FROM instruments WHERE ticker = ? LIMIT 1", instrumentColumns)

	inst, err := scanInstrument(r.db.QueryRow(query, ticker))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instrument ticker %s: %w", ticker, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument by ticker %s: %w", ticker, err)
	}

	return inst, nil
}

// GetAll returns all catalog instruments ordered by ticker.
func (r *Repository) GetAll() ([]domain.Instrument, error) {
	query := fmt.Sprintf("SELECT %s FROM instruments ORDER BY ticker", instrumentColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, *inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}
