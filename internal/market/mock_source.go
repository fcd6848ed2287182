package market

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// MockSource generates simulated candles for offline runs and tests.
type MockSource struct {
	basePrice float64
	limit     int
	rng       *rand.Rand
}

// NewMockSource creates a simulated data source with a deterministic seed.
func NewMockSource(basePrice float64, limit int, seed int64) *MockSource {
	if limit <= 0 {
		limit = 200
	}
	return &MockSource{
		basePrice: basePrice,
		limit:     limit,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Fetch produces a random-walk candle series ending at the current time.
func (s *MockSource) Fetch(_ context.Context, _ string, _, end time.Time, timeframe string) ([]Candle, string, error) {
	step := TimeframeDuration(timeframe)
	if end.IsZero() {
		end = time.Now().UTC()
	}

	candles := make([]Candle, s.limit)
	price := s.basePrice
	start := end.Add(-time.Duration(s.limit) * step)
	for i := range candles {
		open := price
		drift := price * 0.002 * (s.rng.Float64() - 0.5)
		price = math.Max(price+drift, 0.01)
		high := math.Max(open, price) * (1 + 0.001*s.rng.Float64())
		low := math.Min(open, price) * (1 - 0.001*s.rng.Float64())
		openTime := start.Add(time.Duration(i) * step)
		candles[i] = Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    100 + 50*s.rng.Float64(),
			CloseTime: openTime.Add(step),
		}
	}

	return candles, "mock", nil
}

// TimeframeDuration maps an exchange interval string to a duration.
// Unrecognized values fall back to 15 minutes.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	}
	if d, err := time.ParseDuration(tf); err == nil && d > 0 {
		return d
	}
	return 15 * time.Minute
}
