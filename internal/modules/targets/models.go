// Package targets implements the target-portfolio engine: weighted
// instrument lines with a user-controlled order, progress tracking against
// a monetary goal, and purchase planning for fresh cash.
package targets

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a named collection of weighted instrument lines with a
// monetary goal. The associated accounts define which holdings count
// toward its progress.
type Portfolio struct {
	ID         int64
	Name       string
	Goal       decimal.Decimal
	AccountIDs []string
	CreatedAt  time.Time
}

// Line is one instrument inside a portfolio. SortOrder is a positive
// integer; across a portfolio the sort orders always form a dense 1..N
// permutation. IndexWeight 0 means the instrument is not currently in the
// reference index; the coefficient then acts as a direct weight.
type Line struct {
	ID            int64
	PortfolioID   int64
	SortOrder     int
	InstrumentUID string
	IndexWeight   decimal.Decimal
	Coefficient   decimal.Decimal
}

// Direction of a line move within the display order.
type Direction int

const (
	// Up moves the line toward position 1.
	Up Direction = iota
	// Down moves the line toward position N.
	Down
)

// String returns the direction name for logging.
func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Recommendation is one entry of a purchase plan: how many lots of a
// line's instrument to buy with the available cash.
type Recommendation struct {
	Line     Line
	Ticker   string
	Lots     int64
	Quantity int64
	LotPrice decimal.Decimal
	Value    decimal.Decimal
}
