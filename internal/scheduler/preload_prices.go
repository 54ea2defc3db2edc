package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/targeteer/targeteer/internal/domain"
	"github.com/targeteer/targeteer/internal/modules/targets"
)

// portfolioSource lists portfolios and their lines.
type portfolioSource interface {
	ListPortfolios() ([]targets.Portfolio, error)
	GetLines(portfolioID int64) ([]targets.Line, error)
}

// instrumentCatalog resolves line UIDs to instrument metadata.
type instrumentCatalog interface {
	GetByUID(uid string) (*domain.Instrument, error)
}

// preloader is the slice of the market data service this job drives.
type preloader interface {
	PreloadPrices(ctx context.Context, portfolioID int64, instruments []domain.Instrument) error
}

// PreloadPricesJob warms the price cache for every portfolio so the first
// dashboard read after a quiet period does not block on the feed.
type PreloadPricesJob struct {
	portfolios portfolioSource
	catalog    instrumentCatalog
	marketdata preloader
	log        zerolog.Logger
}

func NewPreloadPricesJob(portfolios portfolioSource, catalog instrumentCatalog, marketdata preloader, log zerolog.Logger) *PreloadPricesJob {
	return &PreloadPricesJob{
		portfolios: portfolios,
		catalog:    catalog,
		marketdata: marketdata,
		log:        log.With().Str("job", "preload_prices").Logger(),
	}
}

func (j *PreloadPricesJob) Name() string { return "preload_prices" }

// Run preloads each portfolio independently; one failing portfolio does
// not stop the rest. The last error is returned so the scheduler logs
// the run as failed.
func (j *PreloadPricesJob) Run() error {
	portfolios, err := j.portfolios.ListPortfolios()
	if err != nil {
		return err
	}

	var lastErr error
	for _, p := range portfolios {
		if err := j.preloadPortfolio(p.ID); err != nil {
			j.log.Warn().Err(err).Int64("portfolio_id", p.ID).Msg("Preload failed for portfolio")
			lastErr = err
		}
	}
	return lastErr
}

func (j *PreloadPricesJob) preloadPortfolio(portfolioID int64) error {
	lines, err := j.portfolios.GetLines(portfolioID)
	if err != nil {
		return err
	}

	instruments := make([]domain.Instrument, 0, len(lines))
	for _, line := range lines {
		inst, err := j.catalog.GetByUID(line.InstrumentUID)
		if err != nil {
			j.log.Warn().Err(err).Str("uid", line.InstrumentUID).Msg("Line instrument missing from catalog")
			continue
		}
		instruments = append(instruments, *inst)
	}

	return j.marketdata.PreloadPrices(context.Background(), portfolioID, instruments)
}
