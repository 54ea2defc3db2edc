package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceFeed provides the latest known prices for a set of instruments.
// Implementations may return a partial result: instruments missing from the
// returned map could not be priced and must be treated as unavailable by the
// caller, not as a failure of the whole batch.
type PriceFeed interface {
	LastPrices(ctx context.Context, instruments []Instrument) (map[string]decimal.Decimal, error)
}

// CatalogFeed resolves instrument metadata from a remote reference source.
// Used by the instrument catalog on a cache miss or when the stored record
// is older than the configured freshness window.
type CatalogFeed interface {
	Security(ctx context.Context, idType IDType, idValue string) (*Instrument, error)
}

// PositionLedger returns total held quantity of an instrument across a set
// of accounts. Position records are signed; the sum of zero records is 0.
type PositionLedger interface {
	SumQuantity(instrumentUID string, accountIDs []string) (int64, error)
}

// IndexSource fetches the composition of a reference index as of the latest
// available date. Retry/fallback across dates is the source's concern.
type IndexSource interface {
	IndexComposition(ctx context.Context, indexCode string) ([]IndexConstituent, error)
}

// IndexConstituent is one entry of a reference index: a ticker and its
// weight in the index, in percent.
type IndexConstituent struct {
	Ticker string
	Weight decimal.Decimal
}
