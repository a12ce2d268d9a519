package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/models"
)

type fakeClient struct {
	quote      *models.Quote
	bars       []models.PriceBar
	err        error
	quoteCalls int
	barCalls   int
}

func (f *fakeClient) GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error) {
	f.quoteCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

func (f *fakeClient) GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error) {
	f.barCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func testCacheConfig() *common.CacheConfig {
	return &common.CacheConfig{
		QuoteTTL:   "15s",
		HistoryTTL: "10m",
		SignalTTL:  "60s",
	}
}

func testQuote() *models.Quote {
	return &models.Quote{
		Symbol: "600519.SH",
		Name:   "KWEICHOW",
		Market: models.MarketCN,
		Price:  models.Float(1700.5),
	}
}

func cachedEnvelope(t *testing.T, value any, fetchedAt time.Time) string {
	t.Helper()
	payload, err := json.Marshal(value)
	require.NoError(t, err)
	raw, err := json.Marshal(envelope{FetchedAt: fetchedAt, Payload: payload})
	require.NoError(t, err)
	return string(raw)
}

func TestGetQuote_NoCache_PassThrough(t *testing.T) {
	client := &fakeClient{quote: testQuote()}
	svc := NewService(client, nil, common.NewSilentLogger(), testCacheConfig())

	quote, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "600519.SH", quote.Symbol)

	_, err = svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, 2, client.quoteCalls)
}

func TestGetQuote_FreshCacheHit(t *testing.T) {
	client := &fakeClient{err: errors.New("should not be called")}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	key := quoteKey(models.MarketCN, "600519.SH")
	mock.ExpectGet(key).SetVal(cachedEnvelope(t, testQuote(), time.Now().UTC()))

	quote, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "KWEICHOW", quote.Name)
	assert.InDelta(t, 1700.5, *quote.Price, 0.0001)
	assert.Equal(t, 0, client.quoteCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQuote_CacheMiss_FetchesAndStores(t *testing.T) {
	client := &fakeClient{quote: testQuote()}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	key := quoteKey(models.MarketCN, "600519.SH")
	mock.ExpectGet(key).RedisNil()
	mock.Regexp().ExpectSet(key, `.*"payload".*`, staleRetention).SetVal("OK")

	quote, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "600519.SH", quote.Symbol)
	assert.Equal(t, 1, client.quoteCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQuote_StaleEntry_RefetchesOnExpiry(t *testing.T) {
	fresh := testQuote()
	fresh.Price = models.Float(1710)
	client := &fakeClient{quote: fresh}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	key := quoteKey(models.MarketCN, "600519.SH")
	stale := testQuote()
	mock.ExpectGet(key).SetVal(cachedEnvelope(t, stale, time.Now().UTC().Add(-time.Minute)))
	mock.Regexp().ExpectSet(key, `.*`, staleRetention).SetVal("OK")

	quote, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.InDelta(t, 1710.0, *quote.Price, 0.0001)
	assert.Equal(t, 1, client.quoteCalls)
}

func TestGetQuote_ProviderDown_ServesStale(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	key := quoteKey(models.MarketCN, "600519.SH")
	mock.ExpectGet(key).SetVal(cachedEnvelope(t, testQuote(), time.Now().UTC().Add(-time.Hour)))

	quote, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "KWEICHOW", quote.Name)
	assert.Equal(t, 1, client.quoteCalls)
}

func TestGetQuote_ProviderDown_NoCache_ReturnsError(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	mock.ExpectGet(quoteKey(models.MarketCN, "600519.SH")).RedisNil()

	_, err := svc.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	assert.Error(t, err)
}

func TestGetDailyBars_FreshCacheHit(t *testing.T) {
	client := &fakeClient{err: errors.New("should not be called")}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	bars := []models.PriceBar{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 100, Volume: 1000},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: 101, Volume: 1100},
	}
	key := barsKey(models.MarketCN, "600519.SH", 420)
	mock.ExpectGet(key).SetVal(cachedEnvelope(t, bars, time.Now().UTC()))

	got, err := svc.GetDailyBars(context.Background(), models.MarketCN, "600519.SH", 420)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 101.0, got[1].Close, 0.0001)
	assert.Equal(t, 0, client.barCalls)
}

func TestGetDailyBars_ProviderDown_ServesStale(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	db, mock := redismock.NewClientMock()
	svc := NewService(client, db, common.NewSilentLogger(), testCacheConfig())

	bars := []models.PriceBar{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 100}}
	key := barsKey(models.MarketCN, "600519.SH", 420)
	mock.ExpectGet(key).SetVal(cachedEnvelope(t, bars, time.Now().UTC().Add(-2*time.Hour)))

	got, err := svc.GetDailyBars(context.Background(), models.MarketCN, "600519.SH", 420)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 100.0, got[0].Close, 0.0001)
}
