package instruments

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/targeteer/targeteer/internal/domain"
)

// Service is the instrument catalog lookup path: database hit within the
// freshness window, otherwise a remote catalog fetch followed by an upsert
// of the record and all its aliases.
type Service struct {
	repo   *Repository
	feed   domain.CatalogFeed
	maxAge time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new instrument catalog service.
// feed is optional - if nil, lookups never go remote.
func NewService(repo *Repository, feed domain.CatalogFeed, maxAge time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		feed:   feed,
		maxAge: maxAge,
		now:    time.Now,
		log:    log.With().Str("service", "instruments").Logger(),
	}
}

// Lookup resolves an instrument by any identifier type. A stored record
// younger than the freshness window is returned as-is. An outdated record
// triggers a remote refresh; if the remote fetch fails, the stale record is
// returned instead (stale data beats no data). Unknown identifiers with no
// remote result resolve to domain.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, idType domain.IDType, idValue string) (*domain.Instrument, error) {
	stored, err := s.repo.GetByAlias(idType, idValue)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if stored != nil && s.now().Sub(stored.Updated) < s.maxAge {
		return stored, nil
	}

	if s.feed == nil {
		if stored != nil {
			return stored, nil
		}
		return nil, err
	}

	if stored != nil {
		s.log.Info().
			Str("id_type", string(idType)).
			Str("id_value", idValue).
			Msg("Catalog record outdated, refreshing from feed")
	}

	fetched, feedErr := s.feed.Security(ctx, idType, idValue)
	if feedErr != nil {
		if stored != nil {
			s.log.Warn().
				Err(feedErr).
				Str("id_value", idValue).
				Msg("Catalog feed failed, using stale record")
			return stored, nil
		}
		return nil, feedErr
	}

	fetched.Updated = s.now().UTC()
	if err := s.repo.Upsert(fetched); err != nil {
		return nil, err
	}

	return fetched, nil
}

// ResolveTicker resolves or creates the instrument for a bare ticker.
// Used by index sync, where constituents arrive as exchange tickers; the
// alias table stores tickers namespaced by class code, so both forms are
// tried before going remote.
func (s *Service) ResolveTicker(ctx context.Context, ticker string) (*domain.Instrument, error) {
	stored, err := s.repo.GetByTicker(ticker)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return s.Lookup(ctx, domain.IDTypeTicker, ticker)
}
