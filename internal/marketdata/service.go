// Package marketdata sits between the dashboard and the market data client.
// It validates queries before any request is issued, caches results for a
// short TTL and collapses identical in-flight fetches.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"crypto-dashboard/internal/coingecko"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

// Default cache configuration.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Cache kinds used in keys and metrics.
const (
	kindCoins   = "coins"
	kindMarkets = "markets"
	kindHistory = "history"
)

// Options configures a Service.
type Options struct {
	Client          coingecko.Client
	Currencies      []string // accepted currencies; empty accepts any
	CacheTTL        time.Duration
	CleanupInterval time.Duration
	Logger          *zap.Logger
	Now             func() time.Time
}

// Service serves validated, cached market data.
type Service struct {
	client     coingecko.Client
	currencies []string
	cache      *gocache.Cache
	group      singleflight.Group
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new Service.
func NewService(opts Options) *Service {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		client:     opts.Client,
		currencies: opts.Currencies,
		cache:      gocache.New(opts.CacheTTL, opts.CleanupInterval),
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// Coins returns the full coin list of the upstream API.
func (s *Service) Coins(ctx context.Context) ([]domain.CoinInfo, error) {
	v, err := s.cached(ctx, kindCoins, kindCoins, func(ctx context.Context) (interface{}, error) {
		return s.client.GetCoinList(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CoinInfo), nil
}

// Markets returns the current market records for the query's coins.
// The date range, if any, is ignored.
func (s *Service) Markets(ctx context.Context, q domain.Query) ([]domain.CoinRecord, error) {
	q, err := s.prepare(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey(kindMarkets, q.CoinIDs, q.Currency)
	v, err := s.cached(ctx, kindMarkets, key, func(ctx context.Context) (interface{}, error) {
		return s.client.GetMarkets(ctx, q.CoinIDs, q.Currency)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CoinRecord), nil
}

// History returns one series per coin, in query order. Coins are fetched one
// after another; any failure fails the whole result.
func (s *Service) History(ctx context.Context, q domain.Query) ([]*domain.HistoricalSeries, error) {
	q, err := s.prepare(q)
	if err != nil {
		return nil, err
	}
	if err := q.Range.Validate(); err != nil {
		observability.RecordQueryRejected()
		return nil, err
	}

	// The API has nothing after now.
	if now := s.now(); q.Range.End.After(now) {
		q.Range.End = now
		if q.Range.Start.After(q.Range.End) {
			observability.RecordQueryRejected()
			return nil, fmt.Errorf("%w: start date %s is in the future",
				domain.ErrInvalidQuery, q.Range.Start.Format(domain.DateLayout))
		}
	}

	result := make([]*domain.HistoricalSeries, 0, len(q.CoinIDs))
	for _, id := range q.CoinIDs {
		// Minute precision keeps keys stable while End tracks now.
		key := cacheKey(kindHistory, []string{id}, q.Currency,
			q.Range.Start.Truncate(time.Minute).Format(time.RFC3339),
			q.Range.End.Truncate(time.Minute).Format(time.RFC3339))

		id := id
		v, err := s.cached(ctx, kindHistory, key, func(ctx context.Context) (interface{}, error) {
			return s.client.GetMarketChartRange(ctx, id, q.Currency, q.Range.Start, q.Range.End)
		})
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", id, err)
		}
		result = append(result, v.(*domain.HistoricalSeries))
	}

	s.logger.Debug("history fetched",
		zap.Strings("coins", q.CoinIDs),
		zap.String("currency", q.Currency),
		zap.Time("from", q.Range.Start),
		zap.Time("to", q.Range.End),
	)
	return result, nil
}

// CachedItems returns the number of cached responses.
func (s *Service) CachedItems() int {
	return s.cache.ItemCount()
}

// Flush drops all cached responses.
func (s *Service) Flush() {
	s.cache.Flush()
}

// prepare normalizes and validates q. Rejected queries never reach the client.
func (s *Service) prepare(q domain.Query) (domain.Query, error) {
	q = q.Normalize()
	if err := q.Validate(s.currencies); err != nil {
		observability.RecordQueryRejected()
		s.logger.Debug("query rejected", zap.Error(err))
		return q, err
	}
	return q, nil
}

// cached returns the cached value for key or runs fetch once for all
// concurrent callers and caches a successful result.
//
// The shared fetch does not inherit the cancellation of whichever caller
// started it; the client's own timeout bounds it. Each caller stops waiting
// when its own ctx ends.
func (s *Service) cached(ctx context.Context, kind, key string, fetch func(context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := s.cache.Get(key); ok {
		observability.RecordCacheLookup(kind, true)
		return v, nil
	}
	observability.RecordCacheLookup(kind, false)

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		// A flight started just after another one finished finds its result here.
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, &domain.FetchError{Op: kind, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("market data fetch failed", zap.String("kind", kind), zap.Error(res.Err))
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("collapsed duplicate fetch", zap.String("key", key))
		}
		return res.Val, nil
	}
}

func cacheKey(kind string, ids []string, parts ...string) string {
	return kind + "|" + strings.Join(ids, ",") + "|" + strings.Join(parts, "|")
}
