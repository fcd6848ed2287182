package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/logging"
)

func testConfig() Config {
	return Config{
		RiskPercent:               1.0,
		MaxPositionSize:           100,
		DailyLossLimit:            500,
		StopMode:                  "atr",
		StopLossPercent:           1.0,
		TakeProfitPercent:         2.0,
		ATRMultiplierSL:           1.5,
		ATRMultiplierTP:           2.0,
		PricePrecision:            2,
		UseTrailingStop:           true,
		TrailingStopPercent:       1.0,
		TrailingATRMultiplier:     2.0,
		TrailingActivationPercent: 1.0,
	}
}

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, logging.New(&logging.Config{Level: "error", JSONFormat: true}))
}

func TestCalculateStopTakeProfitATRMode(t *testing.T) {
	m := newTestManager(testConfig())

	stop, take := m.CalculateStopTakeProfit(100, broker.SideBuy, 2)
	assert.Equal(t, 97.00, stop)
	assert.Equal(t, 104.00, take)

	stop, take = m.CalculateStopTakeProfit(100, broker.SideSell, 2)
	assert.Equal(t, 103.00, stop)
	assert.Equal(t, 96.00, take)
}

func TestCalculateStopTakeProfitPercentMode(t *testing.T) {
	cfg := testConfig()
	cfg.StopMode = "percent"
	m := newTestManager(cfg)

	stop, take := m.CalculateStopTakeProfit(200, broker.SideBuy, 0)
	assert.Equal(t, 198.00, stop)
	assert.Equal(t, 204.00, take)
}

func TestCalculateStopTakeProfitATRFallback(t *testing.T) {
	m := newTestManager(testConfig())

	// ATR requested but unavailable: fixed 1%/2% distances.
	stop, take := m.CalculateStopTakeProfit(100, broker.SideBuy, 0)
	assert.Equal(t, 99.00, stop)
	assert.Equal(t, 102.00, take)
}

func TestCalculatePositionSize(t *testing.T) {
	m := newTestManager(testConfig())

	qty := m.CalculatePositionSize(10000, 100, 97, 1.0)
	assert.InDelta(t, 33.33, qty, 0.01)
}

func TestCalculatePositionSizeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionSize = 10
	m := newTestManager(cfg)

	qty := m.CalculatePositionSize(10000, 100, 97, 1.0)
	assert.Equal(t, 10.0, qty)
}

func TestCalculatePositionSizeZeroDistance(t *testing.T) {
	m := newTestManager(testConfig())
	assert.Zero(t, m.CalculatePositionSize(10000, 100, 100, 1.0))
}

func TestValidateTrade(t *testing.T) {
	m := newTestManager(testConfig())

	ok, reason, calc := m.ValidateTrade(10000, 100, broker.SideBuy, 2)
	require.True(t, ok)
	assert.Empty(t, reason)
	require.NotNil(t, calc)
	assert.Equal(t, 97.00, calc.StopLoss)
	assert.Equal(t, 104.00, calc.TakeProfit)
	assert.InDelta(t, 33.33, calc.Quantity, 0.01)
	assert.Equal(t, 100.0, calc.RiskAmount)
	assert.True(t, calc.Approved)
}

func TestValidateTradeDailyLossLimit(t *testing.T) {
	m := newTestManager(testConfig())
	m.RecordTradeResult(-500)

	ok, reason, calc := m.ValidateTrade(10000, 100, broker.SideBuy, 2)
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyLossLimit, reason)
	assert.Nil(t, calc)

	// Every further validation that day is rejected.
	ok, reason, _ = m.ValidateTrade(10000, 50, broker.SideSell, 1)
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyLossLimit, reason)
}

func TestValidateTradeRejectsBadInputs(t *testing.T) {
	m := newTestManager(testConfig())

	ok, reason, _ := m.ValidateTrade(0, 100, broker.SideBuy, 2)
	assert.False(t, ok)
	assert.Equal(t, ReasonInvalidBalance, reason)

	ok, reason, _ = m.ValidateTrade(10000, 0, broker.SideBuy, 2)
	assert.False(t, ok)
	assert.Equal(t, ReasonInvalidEntry, reason)
}

func TestDailyResetAtUTCBoundary(t *testing.T) {
	m := newTestManager(testConfig())
	m.RecordTradeResult(-500)

	ok, reason, _ := m.ValidateTrade(10000, 100, broker.SideBuy, 2)
	require.False(t, ok)
	require.Equal(t, ReasonDailyLossLimit, reason)

	// Advance the clock past midnight UTC; the limit clears.
	m.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	ok, _, _ = m.ValidateTrade(10000, 100, broker.SideBuy, 2)
	assert.True(t, ok)
	assert.Zero(t, m.Daily().RealizedPnL)
}

func TestTrailingStopActivation(t *testing.T) {
	m := newTestManager(testConfig())

	// Below activation threshold: no update.
	stop, updated := m.AdjustTrailingStop(100.5, 97, 100, broker.SideBuy, 0, 1.0)
	assert.False(t, updated)
	assert.Equal(t, 97.0, stop)

	// Above threshold with percent distance (no ATR multiplier).
	cfg := testConfig()
	cfg.TrailingATRMultiplier = 0
	m = newTestManager(cfg)
	stop, updated = m.AdjustTrailingStop(102, 97, 100, broker.SideBuy, 0, 1.0)
	assert.True(t, updated)
	assert.Equal(t, 100.98, stop)
}

func TestTrailingStopMonotonicLong(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingATRMultiplier = 0
	m := newTestManager(cfg)

	stop, updated := m.AdjustTrailingStop(102, 97, 100, broker.SideBuy, 0, 1.0)
	require.True(t, updated)

	// Price pulls back: the stop never decreases.
	next, updated := m.AdjustTrailingStop(101, stop, 100, broker.SideBuy, 0, 1.0)
	assert.False(t, updated)
	assert.Equal(t, stop, next)

	next, updated = m.AdjustTrailingStop(100.2, stop, 100, broker.SideBuy, 0, 1.0)
	assert.False(t, updated)
	assert.Equal(t, stop, next)
}

func TestTrailingStopMonotonicShort(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingATRMultiplier = 0
	m := newTestManager(cfg)

	stop, updated := m.AdjustTrailingStop(98, 103, 100, broker.SideSell, 0, 1.0)
	require.True(t, updated)
	assert.Equal(t, 98.98, stop)

	// Non-favorable move: the stop never increases.
	next, updated := m.AdjustTrailingStop(99.5, stop, 100, broker.SideSell, 0, 1.0)
	assert.False(t, updated)
	assert.Equal(t, stop, next)
}

func TestDailyStatsTracking(t *testing.T) {
	m := newTestManager(testConfig())

	m.RecordTradeResult(200)
	m.RecordTradeResult(-50)
	m.RecordTradeResult(100)

	daily := m.Daily()
	assert.Equal(t, 250.0, daily.RealizedPnL)
	assert.Equal(t, 250.0, daily.PeakPnL)
	assert.Equal(t, 50.0, daily.MaxDrawdown)
	assert.Equal(t, 3, daily.Trades)
}
