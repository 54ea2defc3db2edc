package targets

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CorrectedWeight is the unit used for normalization: the index weight
// scaled by the user coefficient, or the coefficient alone when the
// instrument carries no index weight. No validation - upstream forms
// constrain the sign, the arithmetic itself imposes no precondition.
func CorrectedWeight(line Line) decimal.Decimal {
	if line.IndexWeight.IsZero() {
		return line.Coefficient
	}
	return line.IndexWeight.Mul(line.Coefficient)
}

// TotalWeight sums the corrected weights of all lines. Zero for an empty
// set, and invariant under reordering.
func TotalWeight(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(CorrectedWeight(line))
	}
	return total
}

// NormalizedWeightPercent is the line's share of the portfolio in percent,
// rounded to two decimal places. Fails with domain.ErrZeroTotalWeight when
// total is zero; callers on user-facing paths guard with their documented
// skip conventions instead of propagating.
func NormalizedWeightPercent(line Line, total decimal.Decimal) (decimal.Decimal, error) {
	if total.IsZero() {
		return decimal.Zero, fmt.Errorf("normalize weight of line %d: %w", line.ID, domain.ErrZeroTotalWeight)
	}
	return CorrectedWeight(line).Div(total).Mul(hundred).Round(2), nil
}

// IndexCorrelation measures over/under-weight against the reference index:
// normalized percent divided by index weight. Defined as 0 (not an error)
// for lines outside the index or in a zero-total portfolio.
func IndexCorrelation(line Line, total decimal.Decimal) decimal.Decimal {
	if line.IndexWeight.IsZero() {
		return decimal.Zero
	}
	pct, err := NormalizedWeightPercent(line, total)
	if err != nil {
		return decimal.Zero
	}
	return pct.Div(line.IndexWeight)
}
