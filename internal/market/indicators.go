package market

import (
	"fmt"
	"math"
)

// Series names produced by the default indicator engine. The signal
// conditions consume these.
const (
	SeriesEMAFast    = "ema_fast"
	SeriesEMASlow    = "ema_slow"
	SeriesRSI        = "rsi"
	SeriesMACD       = "macd"
	SeriesMACDSignal = "macd_signal"
	SeriesADX        = "adx"
	SeriesBBUpper    = "bb_upper"
	SeriesBBMiddle   = "bb_middle"
	SeriesBBLower    = "bb_lower"
	SeriesVolumeSMA  = "volume_sma"
	SeriesATR        = "atr"
)

// IndicatorConfig holds the periods for the default engine.
type IndicatorConfig struct {
	EMAFastPeriod int
	EMASlowPeriod int
	RSIPeriod     int
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	ADXPeriod     int
	BBPeriod      int
	BBStdDev      float64
	VolumePeriod  int
	ATRPeriod     int
}

// DefaultIndicatorConfig returns conventional periods.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		EMAFastPeriod: 9,
		EMASlowPeriod: 21,
		RSIPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		ADXPeriod:     14,
		BBPeriod:      20,
		BBStdDev:      2.0,
		VolumePeriod:  20,
		ATRPeriod:     14,
	}
}

// DefaultIndicators computes the full named series over a candle
// window.
type DefaultIndicators struct {
	config IndicatorConfig
}

// NewDefaultIndicators creates the default indicator engine.
func NewDefaultIndicators(config IndicatorConfig) *DefaultIndicators {
	return &DefaultIndicators{config: config}
}

// Compute produces all named series, each aligned index-for-index with
// the candles. Values before an indicator's warmup are carried as the
// first computable value.
func (d *DefaultIndicators) Compute(candles []Candle) (map[string][]float64, error) {
	n := len(candles)
	if n < d.config.EMASlowPeriod+1 {
		return nil, fmt.Errorf("need at least %d candles, got %d", d.config.EMASlowPeriod+1, n)
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	macd, macdSignal := macdSeries(closes, d.config.MACDFast, d.config.MACDSlow, d.config.MACDSignal)

	series := map[string][]float64{
		SeriesEMAFast:    emaSeries(closes, d.config.EMAFastPeriod),
		SeriesEMASlow:    emaSeries(closes, d.config.EMASlowPeriod),
		SeriesRSI:        rsiSeries(closes, d.config.RSIPeriod),
		SeriesMACD:       macd,
		SeriesMACDSignal: macdSignal,
		SeriesADX:        adxSeries(highs, lows, closes, d.config.ADXPeriod),
		SeriesVolumeSMA:  smaSeries(volumes, d.config.VolumePeriod),
		SeriesATR:        atrSeries(highs, lows, closes, d.config.ATRPeriod),
	}
	upper, middle, lower := bollingerSeries(closes, d.config.BBPeriod, d.config.BBStdDev)
	series[SeriesBBUpper] = upper
	series[SeriesBBMiddle] = middle
	series[SeriesBBLower] = lower
	return series, nil
}

func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func smaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

func rsiSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i <= period {
			avgGain += gain / float64(period)
			avgLoss += loss / float64(period)
		} else {
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}
		if avgLoss == 0 {
			out[i] = 100
		} else {
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	if len(out) > 1 {
		out[0] = out[1]
	}
	return out
}

func macdSeries(closes []float64, fast, slow, signalPeriod int) (macd, signal []float64) {
	emaFast := emaSeries(closes, fast)
	emaSlow := emaSeries(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signal = emaSeries(macd, signalPeriod)
	return macd, signal
}

func bollingerSeries(closes []float64, period int, stdDevMult float64) (upper, middle, lower []float64) {
	n := len(closes)
	upper = make([]float64, n)
	middle = smaSeries(closes, period)
	lower = make([]float64, n)
	for i := range closes {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := closes[start : i+1]
		var variance float64
		for _, v := range window {
			diff := v - middle[i]
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(len(window)))
		upper[i] = middle[i] + stdDevMult*stdDev
		lower[i] = middle[i] - stdDevMult*stdDev
	}
	return upper, middle, lower
}

func trueRanges(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

func atrSeries(highs, lows, closes []float64, period int) []float64 {
	tr := trueRanges(highs, lows, closes)
	out := make([]float64, len(tr))
	out[0] = tr[0]
	for i := 1; i < len(tr); i++ {
		// Wilder smoothing.
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

func adxSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	tr := trueRanges(highs, lows, closes)

	var smTR, smPlusDM, smMinusDM, adx float64
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		smTR = smTR - smTR/float64(period) + tr[i]
		smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
		smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM

		if smTR == 0 {
			out[i] = out[i-1]
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		sum := plusDI + minusDI
		var dx float64
		if sum != 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}
		if i <= period {
			adx = (adx*float64(i-1) + dx) / float64(i)
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}
		out[i] = adx
	}
	out[0] = out[1]
	return out
}
