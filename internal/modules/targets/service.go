package targets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/cache"
	"github.com/targeteer/targeteer/internal/domain"
)

// tickerResolver is the slice of the instrument catalog the index sync
// needs: mapping index tickers to local instruments.
type tickerResolver interface {
	ResolveTicker(ctx context.Context, ticker string) (*domain.Instrument, error)
}

// ServiceConfig holds the staleness windows for portfolio-level aggregates.
type ServiceConfig struct {
	TotalWeightTTL time.Duration
	TotalValueTTL  time.Duration
}

// LineView is one line of a portfolio rendered for display: the stored
// line plus every derived number the dashboard shows.
type LineView struct {
	Line             Line
	Ticker           string
	Name             string
	WeightPercent    decimal.Decimal
	IndexCorrelation decimal.Decimal
	Price            decimal.Decimal
	TargetQuantity   int64
	TargetValue      decimal.Decimal
	BoughtQuantity   int64
	BoughtValue      decimal.Decimal
	PercentComplete  decimal.Decimal
}

// PortfolioView is a portfolio with its derived aggregates.
type PortfolioView struct {
	Portfolio       Portfolio
	TotalWeight     decimal.Decimal
	TotalValue      decimal.Decimal
	PercentComplete decimal.Decimal
	Lines           []LineView
}

// Service glues the repository, the instrument catalog, the price cache
// and the position ledger into the portfolio views and mutations the API
// exposes.
type Service struct {
	repo        *Repository
	instruments instrumentSource
	resolver    tickerResolver
	prices      priceSource
	tracker     *ProgressTracker
	index       domain.IndexSource
	cache       cache.Cache
	cfg         ServiceConfig
	log         zerolog.Logger
}

func NewService(
	repo *Repository,
	instruments instrumentSource,
	resolver tickerResolver,
	prices priceSource,
	tracker *ProgressTracker,
	index domain.IndexSource,
	c cache.Cache,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		instruments: instruments,
		resolver:    resolver,
		prices:      prices,
		tracker:     tracker,
		index:       index,
		cache:       c,
		cfg:         cfg,
		log:         log.With().Str("service", "targets").Logger(),
	}
}

// TotalWeight returns the portfolio's corrected weight sum. With useCache
// a value up to TotalWeightTTL old is served; without it the sum is
// recomputed and written through, so the next cached read sees it.
func (s *Service) TotalWeight(portfolioID int64, useCache bool) (decimal.Decimal, error) {
	key := fmt.Sprintf("total_weight:%d", portfolioID)
	if useCache {
		if v, ok := s.cache.Get(key); ok {
			return v.(decimal.Decimal), nil
		}
	}

	lines, err := s.repo.GetLines(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}

	total := TotalWeight(lines)
	s.cache.Set(key, total, s.cfg.TotalWeightTTL)
	return total, nil
}

// TotalValue returns the sum of every line's bought value at current
// prices, what the holdings are worth today. Unpriceable lines contribute
// zero. With useCache a value up to TotalValueTTL old is served; without
// it the sum is recomputed and written through.
func (s *Service) TotalValue(ctx context.Context, portfolioID int64, useCache bool) (decimal.Decimal, error) {
	key := fmt.Sprintf("total_value:%d", portfolioID)
	if useCache {
		if v, ok := s.cache.Get(key); ok {
			return v.(decimal.Decimal), nil
		}
	}

	view, err := s.GetView(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, err
	}

	s.cache.Set(key, view.TotalValue, s.cfg.TotalValueTTL)
	return view.TotalValue, nil
}

// GetView renders the portfolio with all derived numbers. Lines come back
// in display order. A zero-weight portfolio renders with zeroed derived
// columns rather than failing.
func (s *Service) GetView(ctx context.Context, portfolioID int64) (*PortfolioView, error) {
	portfolio, err := s.repo.GetPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(portfolioID)
	if err != nil {
		return nil, err
	}

	total := TotalWeight(lines)
	view := &PortfolioView{
		Portfolio:   *portfolio,
		TotalWeight: total,
		Lines:       make([]LineView, 0, len(lines)),
	}

	for _, line := range lines {
		lv, err := s.lineView(ctx, portfolio, line, total)
		if err != nil {
			return nil, err
		}
		view.TotalValue = view.TotalValue.Add(lv.BoughtValue)
		view.Lines = append(view.Lines, lv)
	}

	// Portfolio progress is the bought-value sum measured against the
	// goal. A zero goal reads as zero progress.
	if portfolio.Goal.IsPositive() {
		view.PercentComplete = view.TotalValue.Div(portfolio.Goal).Mul(hundred).Round(0)
	}

	return view, nil
}

func (s *Service) lineView(ctx context.Context, portfolio *Portfolio, line Line, total decimal.Decimal) (LineView, error) {
	lv := LineView{Line: line}

	inst, err := s.instruments.GetByUID(line.InstrumentUID)
	if err != nil {
		return LineView{}, fmt.Errorf("view line %d: %w", line.ID, err)
	}
	lv.Ticker = inst.Ticker
	lv.Name = inst.Name

	if !total.IsZero() {
		if lv.WeightPercent, err = NormalizedWeightPercent(line, total); err != nil {
			return LineView{}, err
		}
		lv.IndexCorrelation = IndexCorrelation(line, total)
	}

	price, err := s.prices.Price(ctx, *inst)
	if err != nil && !errors.Is(err, domain.ErrPriceUnavailable) {
		return LineView{}, err
	}
	lv.Price = price

	lv.TargetQuantity = ToBuyQuantity(portfolio.Goal, lv.WeightPercent, price, inst.Lot)
	lv.TargetValue = ToBuyValue(lv.TargetQuantity, price)

	if lv.BoughtQuantity, err = s.tracker.BoughtQuantity(line, portfolio.AccountIDs); err != nil {
		return LineView{}, err
	}
	if lv.BoughtValue, err = s.tracker.BoughtValue(line, portfolio.AccountIDs, price); err != nil {
		return LineView{}, err
	}
	lv.PercentComplete = PercentComplete(lv.BoughtQuantity, lv.TargetQuantity)

	return lv, nil
}

// SyncFromIndex pulls the reference index composition and applies its
// weights to the portfolio's lines by ticker. Constituents without a line
// are appended at the end of the current order with the default
// coefficient; constituents the local catalog cannot resolve are skipped
// with a warning; lines no longer in the composition drop to index weight
// zero, keeping their user coefficient.
func (s *Service) SyncFromIndex(ctx context.Context, portfolioID int64, indexCode string) error {
	constituents, err := s.index.IndexComposition(ctx, indexCode)
	if err != nil {
		return fmt.Errorf("sync portfolio %d from index %s: %w", portfolioID, indexCode, err)
	}

	weights := make(map[string]decimal.Decimal, len(constituents))
	for _, c := range constituents {
		inst, err := s.resolver.ResolveTicker(ctx, c.Ticker)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.log.Warn().Str("ticker", c.Ticker).Str("index", indexCode).
					Msg("Index constituent not resolvable, skipping")
				continue
			}
			return fmt.Errorf("sync portfolio %d: resolve %s: %w", portfolioID, c.Ticker, err)
		}
		// AddLine is idempotent, so new constituents get a line at the
		// end of the order and existing lines are left untouched.
		if _, err := s.repo.AddLine(portfolioID, inst.UID); err != nil {
			return fmt.Errorf("sync portfolio %d: add line for %s: %w", portfolioID, c.Ticker, err)
		}
		weights[inst.UID] = c.Weight
	}

	if err := s.repo.SetIndexWeights(portfolioID, weights); err != nil {
		return err
	}

	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("index", indexCode).
		Int("constituents", len(constituents)).
		Int("applied", len(weights)).
		Msg("Synced index weights")

	return nil
}
