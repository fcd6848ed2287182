package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendingCandles(n int, start, step float64) []Candle {
	candles := make([]Candle, n)
	t := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		c := start + float64(i)*step
		candles[i] = Candle{
			OpenTime:  t,
			Open:      c - step/2,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000 + float64(i%5)*100,
			CloseTime: t.Add(15 * time.Minute),
		}
		t = t.Add(15 * time.Minute)
	}
	return candles
}

func TestComputeProducesAlignedSeries(t *testing.T) {
	engine := NewDefaultIndicators(DefaultIndicatorConfig())
	candles := trendingCandles(60, 100, 0.5)

	series, err := engine.Compute(candles)
	require.NoError(t, err)

	names := []string{
		SeriesEMAFast, SeriesEMASlow, SeriesRSI, SeriesMACD, SeriesMACDSignal,
		SeriesADX, SeriesBBUpper, SeriesBBMiddle, SeriesBBLower, SeriesVolumeSMA, SeriesATR,
	}
	for _, name := range names {
		require.Contains(t, series, name)
		assert.Len(t, series[name], len(candles), name)
	}
}

func TestComputeUptrendReadings(t *testing.T) {
	engine := NewDefaultIndicators(DefaultIndicatorConfig())
	candles := trendingCandles(80, 100, 0.5)

	series, err := engine.Compute(candles)
	require.NoError(t, err)

	last := len(candles) - 1
	assert.Greater(t, series[SeriesEMAFast][last], series[SeriesEMASlow][last],
		"fast EMA should lead in an uptrend")
	assert.Greater(t, series[SeriesMACD][last], 0.0)
	assert.Greater(t, series[SeriesRSI][last], 50.0)
	assert.Greater(t, series[SeriesADX][last], 20.0, "steady trend should show directional strength")

	mid := series[SeriesBBMiddle][last]
	assert.Greater(t, series[SeriesBBUpper][last], mid)
	assert.Less(t, series[SeriesBBLower][last], mid)
	assert.Greater(t, series[SeriesATR][last], 0.0)
}

func TestComputeRejectsShortWindow(t *testing.T) {
	engine := NewDefaultIndicators(DefaultIndicatorConfig())
	_, err := engine.Compute(trendingCandles(10, 100, 0.5))
	assert.Error(t, err)
}

func TestComputeIsPure(t *testing.T) {
	engine := NewDefaultIndicators(DefaultIndicatorConfig())
	candles := trendingCandles(50, 200, -0.3)

	first, err := engine.Compute(candles)
	require.NoError(t, err)
	second, err := engine.Compute(candles)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
