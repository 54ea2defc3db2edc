package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrZeroTotalWeight is returned when a portfolio's corrected weights
	// sum to zero and normalization is undefined. The caller decides how
	// to present an all-zero portfolio; the calculator never divides.
	ErrZeroTotalWeight = errors.New("total portfolio weight is zero")

	// ErrPriceUnavailable is returned when no fresh or fetchable price
	// exists for an instrument. Planning treats the instrument as
	// unpriceable (buy quantity zero) rather than failing the whole run.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrOrderInvariant is returned when a portfolio's line sort orders
	// are not a dense 1..N sequence after a mutation. The mutation is
	// rolled back; the stored ordering is never silently renumbered.
	ErrOrderInvariant = errors.New("line order invariant violated")
)
