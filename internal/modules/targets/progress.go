package targets

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/cache"
	"github.com/targeteer/targeteer/internal/domain"
)

// ProgressConfig holds the staleness windows for the derived values the
// tracker caches. Quantities move slowly (trades are rare), prices move
// fast, hence the spread of TTLs.
type ProgressConfig struct {
	BoughtQuantityTTL time.Duration
	BoughtValueTTL    time.Duration
}

// ProgressTracker reports how far along a line is toward its target
// holding. Derived values are cached by TTL only; a read within the window
// may lag a trade that just settled, which is acceptable for a dashboard.
type ProgressTracker struct {
	ledger domain.PositionLedger
	cache  cache.Cache
	cfg    ProgressConfig
}

func NewProgressTracker(ledger domain.PositionLedger, c cache.Cache, cfg ProgressConfig) *ProgressTracker {
	return &ProgressTracker{
		ledger: ledger,
		cache:  c,
		cfg:    cfg,
	}
}

// BoughtQuantity is the signed total quantity of the line's instrument
// held across the portfolio's accounts.
func (t *ProgressTracker) BoughtQuantity(line Line, accountIDs []string) (int64, error) {
	key := fmt.Sprintf("bought_qtty:%d", line.ID)
	if v, ok := t.cache.Get(key); ok {
		return v.(int64), nil
	}

	qty, err := t.ledger.SumQuantity(line.InstrumentUID, accountIDs)
	if err != nil {
		return 0, fmt.Errorf("bought quantity for line %d: %w", line.ID, err)
	}

	t.cache.Set(key, qty, t.cfg.BoughtQuantityTTL)
	return qty, nil
}

// BoughtValue is the held quantity priced at the given price. Cached
// separately from the quantity and for a shorter window because the price
// input moves faster than the holdings.
func (t *ProgressTracker) BoughtValue(line Line, accountIDs []string, price decimal.Decimal) (decimal.Decimal, error) {
	key := fmt.Sprintf("bought_price:%d", line.ID)
	if v, ok := t.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	qty, err := t.BoughtQuantity(line, accountIDs)
	if err != nil {
		return decimal.Zero, err
	}

	value := price.Mul(decimal.NewFromInt(qty))
	t.cache.Set(key, value, t.cfg.BoughtValueTTL)
	return value, nil
}

// PercentComplete is bought over target, rounded to a whole percent. A
// zero target reads as fully complete: nothing was asked for, so nothing
// is missing.
func PercentComplete(bought, target int64) decimal.Decimal {
	if target == 0 {
		return hundred
	}
	return decimal.NewFromInt(bought).Div(decimal.NewFromInt(target)).Mul(hundred).Round(0)
}
