package targets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/domain"
)

// priceSource is the slice of the market data service the planner needs.
type priceSource interface {
	Price(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error)
}

// instrumentSource resolves line UIDs to instrument metadata (lot size,
// ticker) from the local catalog.
type instrumentSource interface {
	GetByUID(uid string) (*domain.Instrument, error)
}

// ToBuyQuantity is the target holding for a line: the goal's slice for the
// line (by normalized weight), divided by price, rounded to whole lots with
// banker's rounding. Zero when the price is zero or unavailable, so one
// unpriceable instrument never poisons the rest of the portfolio.
func ToBuyQuantity(goal, weightPercent, price decimal.Decimal, lot int64) int64 {
	if price.IsZero() || lot <= 0 {
		return 0
	}
	lotSize := decimal.NewFromInt(lot)
	lots := goal.Mul(weightPercent).Div(hundred).Div(price).Div(lotSize).RoundBank(0)
	return lots.Mul(lotSize).IntPart()
}

// ToBuyValue is the monetary value of the target holding at the given price.
func ToBuyValue(quantity int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// Planner builds purchase recommendations for fresh cash.
type Planner struct {
	repo        *Repository
	instruments instrumentSource
	prices      priceSource
	log         zerolog.Logger
}

func NewPlanner(repo *Repository, instruments instrumentSource, prices priceSource, log zerolog.Logger) *Planner {
	return &Planner{
		repo:        repo,
		instruments: instruments,
		prices:      prices,
		log:         log.With().Str("service", "planner").Logger(),
	}
}

// PlanSimplePurchase walks the portfolio's lines in display order and for
// every weighted line answers the same question: how many whole lots of
// this instrument would the cash amount buy on its own. It deliberately
// does not net out current holdings or spread the cash across lines; the
// user picks one recommendation and spends the cash on it.
//
// Lines are skipped, never failed on, when zero-weighted, unpriceable, or
// when a single lot costs the cash amount or more.
func (p *Planner) PlanSimplePurchase(ctx context.Context, portfolioID int64, cash decimal.Decimal) ([]Recommendation, error) {
	if _, err := p.repo.GetPortfolio(portfolioID); err != nil {
		return nil, err
	}
	lines, err := p.repo.GetLines(portfolioID)
	if err != nil {
		return nil, err
	}

	var plan []Recommendation
	for _, line := range lines {
		if CorrectedWeight(line).IsZero() {
			continue
		}

		inst, err := p.instruments.GetByUID(line.InstrumentUID)
		if err != nil {
			return nil, fmt.Errorf("plan line %d: %w", line.ID, err)
		}

		price, err := p.prices.Price(ctx, *inst)
		if err != nil {
			if errors.Is(err, domain.ErrPriceUnavailable) {
				p.log.Warn().Str("uid", inst.UID).Str("ticker", inst.Ticker).
					Msg("Skipping unpriceable line in purchase plan")
				continue
			}
			return nil, err
		}
		if price.IsZero() {
			continue
		}

		lotPrice := price.Mul(decimal.NewFromInt(inst.Lot))
		if !lotPrice.IsPositive() || !lotPrice.LessThan(cash) {
			continue
		}

		lots := cash.Div(lotPrice).Floor().IntPart()
		quantity := lots * inst.Lot
		plan = append(plan, Recommendation{
			Line:     line,
			Ticker:   inst.Ticker,
			Lots:     lots,
			Quantity: quantity,
			LotPrice: lotPrice,
			Value:    price.Mul(decimal.NewFromInt(quantity)),
		})
	}

	return plan, nil
}
