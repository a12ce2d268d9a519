// Package indicator computes indicator snapshots and trade recommendations.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
	"github.com/tickwatch/tickwatch/internal/signals"
)

// historyCount is how many daily bars are fetched per analysis. Enough for
// the 252-bar yearly window plus indicator warm-up.
const historyCount = 420

// Service analyzes symbols by combining daily history with the live quote.
// Results are held in a small in-process cache keyed by (market, symbol).
type Service struct {
	marketData interfaces.MarketDataService
	logger     *common.Logger
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	analysis *models.Analysis
	storedAt time.Time
}

// NewService creates an indicator service caching results for ttl.
func NewService(marketData interfaces.MarketDataService, logger *common.Logger, ttl time.Duration) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		marketData: marketData,
		logger:     logger,
		ttl:        ttl,
		cache:      make(map[string]cacheEntry),
	}
}

func cacheKey(market models.Market, symbol string) string {
	return string(market) + ":" + symbol
}

// Analyze computes the indicator snapshot and recommendation for a symbol.
// The quote is best-effort; analysis proceeds on history alone when the
// quote fetch fails.
func (s *Service) Analyze(ctx context.Context, market models.Market, symbol string) (*models.Analysis, error) {
	symbol = models.NormalizeSymbol(market, symbol)
	key := cacheKey(market, symbol)

	if cached := s.fromCache(key); cached != nil {
		return cached, nil
	}

	bars, err := s.marketData.GetDailyBars(ctx, market, symbol, historyCount)
	if err != nil {
		return nil, err
	}

	quote, err := s.marketData.GetQuote(ctx, market, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable, analyzing from history only")
		quote = nil
	}

	snap := signals.Snapshot(market, symbol, bars, quote)
	rec := signals.Evaluate(snap, bars)

	analysis := &models.Analysis{
		IndicatorSnapshot:    *snap,
		SignalRecommendation: *rec,
	}

	s.toCache(key, analysis)
	return analysis, nil
}

func (s *Service) fromCache(key string) *models.Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || time.Since(entry.storedAt) > s.ttl {
		return nil
	}
	return entry.analysis
}

func (s *Service) toCache(key string, analysis *models.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// drop expired entries opportunistically to bound growth
	for k, entry := range s.cache {
		if time.Since(entry.storedAt) > s.ttl {
			delete(s.cache, k)
		}
	}
	s.cache[key] = cacheEntry{analysis: analysis, storedAt: time.Now()}
}

var _ interfaces.IndicatorService = (*Service)(nil)
