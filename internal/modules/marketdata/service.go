package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/targeteer/targeteer/internal/domain"
)

// Config holds the cache windows and the feed timeout.
type Config struct {
	PriceTTL    time.Duration // freshness window per instrument price
	PreloadTTL  time.Duration // batch preload completion marker window
	FeedTimeout time.Duration // upper bound on one feed call
}

// Service is the price cache. Reads go cache-first; a miss or stale entry
// triggers a feed call, the single blocking point of the read path. A feed
// failure degrades the instrument to "price unavailable" instead of failing
// whatever computation asked for it.
type Service struct {
	snapshots *SnapshotRepository
	feed      domain.PriceFeed
	cfg       Config
	log       zerolog.Logger
}

// NewService creates a new price cache service
func NewService(snapshots *SnapshotRepository, feed domain.PriceFeed, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		snapshots: snapshots,
		feed:      feed,
		cfg:       cfg,
		log:       log.With().Str("service", "marketdata").Logger(),
	}
}

// Price returns the latest known price for the instrument.
// Returns domain.ErrPriceUnavailable when neither the cache nor the feed
// can provide one; callers skip the affected line.
func (s *Service) Price(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	snap, err := s.snapshots.GetFresh(inst.UID)
	if err != nil {
		return decimal.Zero, err
	}
	if snap != nil {
		return snap.Price, nil
	}

	prices, err := s.fetch(ctx, []domain.Instrument{inst})
	if err != nil {
		return decimal.Zero, fmt.Errorf("price for %s: %w", inst.UID, domain.ErrPriceUnavailable)
	}

	price, ok := prices[inst.UID]
	if !ok {
		return decimal.Zero, fmt.Errorf("price for %s: %w", inst.UID, domain.ErrPriceUnavailable)
	}

	if err := s.snapshots.Put(inst.UID, price, s.cfg.PriceTTL); err != nil {
		// Caching failures degrade to a feed-per-read, they do not lose
		// the price we already have.
		s.log.Warn().Err(err).Str("uid", inst.UID).Msg("Failed to cache price")
	}

	return price, nil
}

// PreloadPrices refreshes the cache for a whole portfolio's instruments
// with one feed call. Idempotent within the preload marker TTL: a repeated
// call inside the window is a no-op regardless of per-price freshness.
// Instruments missing from a partial feed result are simply not cached.
func (s *Service) PreloadPrices(ctx context.Context, portfolioID int64, instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	fresh, err := s.snapshots.PreloadFresh(portfolioID)
	if err != nil {
		return err
	}
	if fresh {
		s.log.Debug().Int64("portfolio_id", portfolioID).Msg("Preload marker fresh, skipping")
		return nil
	}

	prices, err := s.fetch(ctx, instruments)
	if err != nil {
		return fmt.Errorf("preload for portfolio %d: %w", portfolioID, err)
	}

	for _, inst := range instruments {
		price, ok := prices[inst.UID]
		if !ok {
			s.log.Warn().Str("uid", inst.UID).Msg("Feed returned no price during preload")
			continue
		}
		if err := s.snapshots.Put(inst.UID, price, s.cfg.PriceTTL); err != nil {
			return err
		}
	}

	if err := s.snapshots.MarkPreload(portfolioID, s.cfg.PreloadTTL); err != nil {
		return err
	}

	s.log.Debug().
		Int64("portfolio_id", portfolioID).
		Int("requested", len(instruments)).
		Int("received", len(prices)).
		Msg("Preloaded prices")

	return nil
}

// fetch calls the feed under the configured timeout.
// A timeout counts as a feed failure.
func (s *Service) fetch(ctx context.Context, instruments []domain.Instrument) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FeedTimeout)
	defer cancel()

	prices, err := s.feed.LastPrices(ctx, instruments)
	if err != nil {
		return nil, fmt.Errorf("price feed call failed: %w", err)
	}

	return prices, nil
}
