// Package market defines the OHLCV data model and the collaborator
// interfaces for market data retrieval and indicator computation. Indicator
// math lives outside the decision engine; the engine only consumes named
// series aligned to the candle array.
package market

import (
	"context"
	"time"
)

// Candle is a single OHLCV bar
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Data bundles ordered candles with named indicator series. Series are
// aligned index-for-index with Candles; leading values an indicator cannot
// produce yet are NaN.
type Data struct {
	Symbol     string
	Timeframe  string
	Candles    []Candle
	Indicators map[string][]float64
	Source     string
}

// Empty reports whether the data set contains no candles.
func (d *Data) Empty() bool {
	return d == nil || len(d.Candles) == 0
}

// Last returns the most recent candle.
func (d *Data) Last() (Candle, bool) {
	if d.Empty() {
		return Candle{}, false
	}
	return d.Candles[len(d.Candles)-1], true
}

// LastIndicator returns the most recent value of a named series.
func (d *Data) LastIndicator(name string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	series, ok := d.Indicators[name]
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// PrevIndicator returns the value of a named series one bar back.
func (d *Data) PrevIndicator(name string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	series, ok := d.Indicators[name]
	if !ok || len(series) < 2 {
		return 0, false
	}
	return series[len(series)-2], true
}

// DataSource retrieves ordered OHLCV bars. An empty result means "no data"
// and is not an error.
type DataSource interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]Candle, string, error)
}

// IndicatorEngine maps candles to named indicator series. Implementations
// must be pure: same candles in, same series out.
type IndicatorEngine interface {
	Compute(candles []Candle) (map[string][]float64, error)
}

// Tick is a single streamed trade price update
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// TickHandler consumes streamed price updates
type TickHandler func(Tick)
