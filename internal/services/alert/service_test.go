package alert

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/models"
)

type memStore struct {
	positions []*models.Position
	states    map[string]*models.AlertState
}

func newMemStore(positions ...*models.Position) *memStore {
	return &memStore{positions: positions, states: make(map[string]*models.AlertState)}
}

func (m *memStore) SavePosition(ctx context.Context, position *models.Position) error { return nil }

func (m *memStore) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return nil, &models.NotFoundError{Entity: "position", ID: id}
}

func (m *memStore) FindPositionBySymbol(ctx context.Context, market models.Market, symbol string) (*models.Position, error) {
	return nil, nil
}

func (m *memStore) ListPositions(ctx context.Context) ([]*models.Position, error) {
	return m.positions, nil
}

func (m *memStore) DeletePosition(ctx context.Context, id string) error { return nil }

func (m *memStore) SaveTrade(ctx context.Context, trade *models.Trade) error { return nil }

func (m *memStore) ListTrades(ctx context.Context, positionID string) ([]*models.Trade, error) {
	return nil, nil
}

func (m *memStore) GetAlertState(ctx context.Context, key string) (*models.AlertState, error) {
	state, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (m *memStore) SaveAlertState(ctx context.Context, state *models.AlertState) error {
	cp := *state
	m.states[state.Key] = &cp
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeMarketData struct {
	price *float64
	err   error
	calls int
}

func (f *fakeMarketData) GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Quote{Symbol: symbol, Market: market, Price: f.price}, nil
}

func (f *fakeMarketData) GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error) {
	return nil, errors.New("not used")
}

type fakeIndicators struct {
	analysis *models.Analysis
	err      error
}

func (f *fakeIndicators) Analyze(ctx context.Context, market models.Market, symbol string) (*models.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func watchPosition(id, symbol string, qty float64, targetBuy, targetSell *float64) *models.Position {
	return &models.Position{
		ID:              id,
		Market:          models.MarketCN,
		Symbol:          symbol,
		Quantity:        qty,
		TargetBuyPrice:  targetBuy,
		TargetSellPrice: targetSell,
	}
}

func unavailableAnalysis() *models.Analysis {
	return &models.Analysis{}
}

func buyAnalysis(state models.SignalState, price float64) *models.Analysis {
	a := &models.Analysis{}
	a.BuyOK = state
	a.BuyPriceAggressive = models.Float(price)
	a.SellOK = models.SignalUnavailable
	return a
}

func TestScan_TargetBuyFiresOnEachDownwardCross(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 0, models.Float(90), nil))
	md := &fakeMarketData{}
	svc := NewService(store, md, &fakeIndicators{analysis: unavailableAnalysis()}, common.NewSilentLogger())

	fired := make([]int, 0)
	for i, price := range []float64{95, 89, 88, 92, 87} {
		md.price = models.Float(price)
		alerts, err := svc.Scan(ctx)
		require.NoError(t, err)
		if len(alerts) > 0 {
			require.Len(t, alerts, 1)
			assert.Equal(t, models.AlertTargetBuy, alerts[0].AlertType)
			fired = append(fired, i)
		}
	}

	assert.Equal(t, []int{1, 4}, fired)
}

func TestScan_TargetSellMessageAndPrices(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 10, nil, models.Float(130)))
	svc := NewService(store, &fakeMarketData{price: models.Float(131)}, &fakeIndicators{analysis: unavailableAnalysis()}, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, models.AlertTargetSell, a.AlertType)
	assert.Equal(t, fmt.Sprintf("已到达目标卖出价 %.2f", 130.0), a.Message)
	require.NotNil(t, a.TriggerPrice)
	assert.InDelta(t, 130.0, *a.TriggerPrice, 0.0001)
	require.NotNil(t, a.CurrentPrice)
	assert.InDelta(t, 131.0, *a.CurrentPrice, 0.0001)
}

func TestScan_UnchangedTrueFiresOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 10, nil, nil))
	ind := &fakeIndicators{analysis: buyAnalysis(models.SignalConfirmed, 100)}
	svc := NewService(store, &fakeMarketData{price: models.Float(101)}, ind, common.NewSilentLogger())

	total := 0
	for i := 0; i < 3; i++ {
		alerts, err := svc.Scan(ctx)
		require.NoError(t, err)
		total += len(alerts)
	}
	assert.Equal(t, 1, total)
}

func TestScan_RearmsAfterObservedFalse(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 10, nil, nil))
	ind := &fakeIndicators{}
	svc := NewService(store, &fakeMarketData{price: models.Float(101)}, ind, common.NewSilentLogger())

	total := 0
	for _, state := range []models.SignalState{
		models.SignalWaiting,
		models.SignalConfirmed,
		models.SignalWaiting,
		models.SignalConfirmed,
	} {
		ind.analysis = buyAnalysis(state, 100)
		alerts, err := svc.Scan(ctx)
		require.NoError(t, err)
		total += len(alerts)
	}
	assert.Equal(t, 2, total)
}

func TestScan_UnavailableLeavesStateArmed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 10, nil, nil))
	ind := &fakeIndicators{}
	svc := NewService(store, &fakeMarketData{price: models.Float(101)}, ind, common.NewSilentLogger())

	ind.analysis = buyAnalysis(models.SignalConfirmed, 100)
	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, fmt.Sprintf("出现买入信号（参考价 %.2f）", 100.0), alerts[0].Message)

	// missing inputs must not look like the condition went false
	ind.analysis = unavailableAnalysis()
	alerts, err = svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	ind.analysis = buyAnalysis(models.SignalConfirmed, 100)
	alerts, err = svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestScan_SellSignalRequiresHolding(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 0, models.Float(90), nil))
	analysis := &models.Analysis{}
	analysis.BuyOK = models.SignalWaiting
	analysis.SellOK = models.SignalConfirmed
	analysis.SellPrice = models.Float(100)
	svc := NewService(store, &fakeMarketData{price: models.Float(95)}, &fakeIndicators{analysis: analysis}, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestScan_SkipsIdlePositions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 0, nil, nil))
	md := &fakeMarketData{price: models.Float(95)}
	svc := NewService(store, md, &fakeIndicators{err: errors.New("should not be called")}, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Zero(t, md.calls)
}

func TestScan_OrdersBySeverityThenSymbol(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		watchPosition("p1", "600519.SH", 0, models.Float(200), nil),
		watchPosition("p2", "000001.SZ", 10, nil, nil),
	)
	ind := &fakeIndicators{analysis: buyAnalysis(models.SignalConfirmed, 100)}
	svc := NewService(store, &fakeMarketData{price: models.Float(101)}, ind, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	// signal alerts first, then targets; ties break on symbol
	assert.Equal(t, models.AlertSignalBuy, alerts[0].AlertType)
	assert.Equal(t, "000001.SZ", alerts[0].Symbol)
	assert.Equal(t, models.AlertSignalBuy, alerts[1].AlertType)
	assert.Equal(t, "600519.SH", alerts[1].Symbol)
	assert.Equal(t, models.AlertTargetBuy, alerts[2].AlertType)
}

func TestScan_EditedTargetRearms(t *testing.T) {
	ctx := context.Background()
	pos := watchPosition("p1", "600519.SH", 0, models.Float(90), nil)
	store := newMemStore(pos)
	svc := NewService(store, &fakeMarketData{price: models.Float(85)}, &fakeIndicators{analysis: unavailableAnalysis()}, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// a new target tracks under a fresh key, so it alerts again
	pos.TargetBuyPrice = models.Float(88)
	alerts, err = svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, fmt.Sprintf("已到达目标买入价 %.2f", 88.0), alerts[0].Message)
}

func TestScan_QuoteFailureStillEvaluatesSignals(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(watchPosition("p1", "600519.SH", 10, models.Float(90), nil))
	ind := &fakeIndicators{analysis: buyAnalysis(models.SignalConfirmed, 100)}
	svc := NewService(store, &fakeMarketData{err: errors.New("provider down")}, ind, common.NewSilentLogger())

	alerts, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSignalBuy, alerts[0].AlertType)
	assert.Nil(t, alerts[0].CurrentPrice)
}
