// Package marketdata serves quotes and daily bars through a Redis cache tier.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

// staleRetention is how long cache entries stay readable past their
// freshness window. Stale entries are only served when the provider fails.
const staleRetention = 24 * time.Hour

// Service wraps a market data client with a freshness-aware Redis cache.
// A nil redis client disables caching and every call hits the provider.
type Service struct {
	client     interfaces.MarketDataClient
	redis      *redis.Client
	logger     *common.Logger
	quoteTTL   time.Duration
	historyTTL time.Duration
}

// NewService creates a market data service. redisClient may be nil.
func NewService(client interfaces.MarketDataClient, redisClient *redis.Client, logger *common.Logger, cache *common.CacheConfig) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		client:     client,
		redis:      redisClient,
		logger:     logger,
		quoteTTL:   cache.GetQuoteTTL(),
		historyTTL: cache.GetHistoryTTL(),
	}
}

// envelope wraps a cached payload with its fetch time so freshness can be
// judged independently of the Redis key TTL.
type envelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

func quoteKey(market models.Market, symbol string) string {
	return fmt.Sprintf("tickwatch:quote:%s:%s", market, symbol)
}

func barsKey(market models.Market, symbol string, count int) string {
	return fmt.Sprintf("tickwatch:bars:%s:%s:%d", market, symbol, count)
}

// GetQuote returns the latest quote, served from cache while fresh. When the
// provider fails a stale cached quote is returned instead of an error.
func (s *Service) GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error) {
	key := quoteKey(market, symbol)

	cached, fresh := s.lookup(ctx, key, s.quoteTTL)
	if fresh {
		var quote models.Quote
		if err := json.Unmarshal(cached, &quote); err == nil {
			return &quote, nil
		}
	}

	quote, err := s.client.GetQuote(ctx, market, symbol)
	if err != nil {
		if cached != nil {
			var stale models.Quote
			if uerr := json.Unmarshal(cached, &stale); uerr == nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Provider failed, serving stale quote")
				return &stale, nil
			}
		}
		return nil, err
	}

	s.store(ctx, key, quote)
	return quote, nil
}

// GetDailyBars returns forward-adjusted daily bars oldest first, served from
// cache while fresh, with the same stale fallback as GetQuote.
func (s *Service) GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error) {
	key := barsKey(market, symbol, count)

	cached, fresh := s.lookup(ctx, key, s.historyTTL)
	if fresh {
		var bars []models.PriceBar
		if err := json.Unmarshal(cached, &bars); err == nil {
			return bars, nil
		}
	}

	bars, err := s.client.GetDailyBars(ctx, market, symbol, count)
	if err != nil {
		if cached != nil {
			var stale []models.PriceBar
			if uerr := json.Unmarshal(cached, &stale); uerr == nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Provider failed, serving stale bars")
				return stale, nil
			}
		}
		return nil, err
	}

	s.store(ctx, key, bars)
	return bars, nil
}

// lookup fetches a cached payload. The payload is returned whenever present;
// fresh reports whether it is still within ttl of its fetch time.
func (s *Service) lookup(ctx context.Context, key string, ttl time.Duration) (payload json.RawMessage, fresh bool) {
	if s.redis == nil {
		return nil, false
	}

	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	return env.Payload, time.Since(env.FetchedAt) <= ttl
}

// store writes a payload to the cache. Failures are logged and ignored.
func (s *Service) store(ctx context.Context, key string, value any) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return
	}

	raw, err := json.Marshal(envelope{
		FetchedAt: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, key, string(raw), staleRetention).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

var _ interfaces.MarketDataService = (*Service)(nil)
