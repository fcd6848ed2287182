// Package signal scores confluence-based trade signals over injected
// indicator data. The condition set is configuration, not code: batteries
// are ordered lists of condition ids resolved against a registry.
package signal

import (
	"fmt"
	"strings"
	"time"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
)

// Direction is the trade direction of a signal
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Strength grades a signal by confluence score
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthModerate Strength = "MODERATE"
	StrengthWeak     Strength = "WEAK"
)

// Regime labels recognized by the suppression gate
const (
	RegimeStrongTrendBull = "STRONG_TREND_BULL"
	RegimeStrongTrendBear = "STRONG_TREND_BEAR"
	RegimeWeakTrendBull   = "WEAK_TREND_BULL"
	RegimeWeakTrendBear   = "WEAK_TREND_BEAR"
	RegimeRange           = "RANGE"
	RegimeUnknown         = "UNKNOWN"
)

// TradeSignal is one immutable analysis result
type TradeSignal struct {
	Direction        Direction `json:"direction"`
	Score            int       `json:"score"`
	Strength         Strength  `json:"strength"`
	ConditionsMet    []string  `json:"conditions_met"`
	ConditionsFailed []string  `json:"conditions_failed"`
	Regime           string    `json:"regime"`
	Price            float64   `json:"price"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Valid reports whether the signal proposes a trade.
func (s *TradeSignal) Valid() bool {
	return s != nil && s.Direction != DirectionNeutral
}

// Config holds signal generation configuration
type Config struct {
	MinConfluence   int
	LongConditions  []string
	ShortConditions []string
	UseRegimeFilter bool
}

// Generator evaluates condition batteries and scores signal confluence.
type Generator struct {
	config     Config
	longIDs    []string
	longConds  []Condition
	shortIDs   []string
	shortConds []Condition
	log        *logging.Logger
}

// NewGenerator resolves the configured batteries against the registry.
// Unknown condition ids are a construction error.
func NewGenerator(config Config, registry *Registry, log *logging.Logger) (*Generator, error) {
	longIDs, longConds, err := registry.Battery(config.LongConditions)
	if err != nil {
		return nil, fmt.Errorf("long battery: %w", err)
	}
	shortIDs, shortConds, err := registry.Battery(config.ShortConditions)
	if err != nil {
		return nil, fmt.Errorf("short battery: %w", err)
	}
	return &Generator{
		config:     config,
		longIDs:    longIDs,
		longConds:  longConds,
		shortIDs:   shortIDs,
		shortConds: shortConds,
		log:        log.WithComponent("signal"),
	}, nil
}

// Generate scores both sides against the data and picks a direction. The
// chosen side must reach minConfluence and strictly beat the other side;
// otherwise the signal is NEUTRAL with a diagnostic reason.
func (g *Generator) Generate(data *market.Data, regime string) *TradeSignal {
	return g.generate(data, regime, g.config.UseRegimeFilter)
}

func (g *Generator) generate(data *market.Data, regime string, regimeGate bool) *TradeSignal {
	sig := &TradeSignal{
		Direction: DirectionNeutral,
		Regime:    regime,
		CreatedAt: time.Now().UTC(),
	}
	if last, ok := data.Last(); ok {
		sig.Price = last.Close
	}

	longScore, longMet, longFailed := g.evaluate(data, g.longIDs, g.longConds)
	shortScore, shortMet, shortFailed := g.evaluate(data, g.shortIDs, g.shortConds)

	switch {
	case longScore >= g.config.MinConfluence && longScore > shortScore:
		sig.Direction = DirectionLong
		sig.Score = longScore
		sig.ConditionsMet = longMet
		sig.ConditionsFailed = longFailed
	case shortScore >= g.config.MinConfluence && shortScore > longScore:
		sig.Direction = DirectionShort
		sig.Score = shortScore
		sig.ConditionsMet = shortMet
		sig.ConditionsFailed = shortFailed
	default:
		sig.Score = max(longScore, shortScore)
		sig.Reason = fmt.Sprintf("confluence not met: long=%d short=%d min=%d",
			longScore, shortScore, g.config.MinConfluence)
		return sig
	}

	sig.Strength = strengthFor(sig.Score)

	if regimeGate {
		if sig.Direction == DirectionLong && strings.Contains(regime, RegimeStrongTrendBear) {
			return neutralized(sig, "long suppressed by bear regime")
		}
		if sig.Direction == DirectionShort && strings.Contains(regime, RegimeStrongTrendBull) {
			return neutralized(sig, "short suppressed by bull regime")
		}
	}

	g.log.Debug("signal generated",
		"direction", string(sig.Direction),
		"score", sig.Score,
		"strength", string(sig.Strength),
		"regime", regime,
	)
	return sig
}

func neutralized(sig *TradeSignal, reason string) *TradeSignal {
	sig.Direction = DirectionNeutral
	sig.Strength = ""
	sig.Reason = reason
	return sig
}

func (g *Generator) evaluate(data *market.Data, ids []string, conds []Condition) (int, []string, []string) {
	var met, failed []string
	for i, cond := range conds {
		if cond(data) {
			met = append(met, ids[i])
		} else {
			failed = append(failed, ids[i])
		}
	}
	return len(met), met, failed
}

func strengthFor(score int) Strength {
	switch {
	case score >= 5:
		return StrengthStrong
	case score >= 4:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// CheckExitSignal re-runs generation without the regime gate and reports a
// reversal when the opposite side reaches confluence. RSI extremes force an
// exit regardless of confluence.
func (g *Generator) CheckExitSignal(data *market.Data, currentSide broker.Side) (bool, string) {
	if rsi, ok := data.LastIndicator(SeriesRSI); ok {
		if currentSide == broker.SideBuy && rsi > 80 {
			return true, fmt.Sprintf("RSI extreme overbought (%.1f)", rsi)
		}
		if currentSide == broker.SideSell && rsi < 20 {
			return true, fmt.Sprintf("RSI extreme oversold (%.1f)", rsi)
		}
	}

	sig := g.generate(data, RegimeUnknown, false)
	if !sig.Valid() {
		return false, ""
	}
	if currentSide == broker.SideBuy && sig.Direction == DirectionShort {
		return true, fmt.Sprintf("signal reversal to SHORT (score %d)", sig.Score)
	}
	if currentSide == broker.SideSell && sig.Direction == DirectionLong {
		return true, fmt.Sprintf("signal reversal to LONG (score %d)", sig.Score)
	}
	return false, ""
}

// ExtractIndicatorSnapshot flattens the latest indicator readings for audit
// logging.
func (g *Generator) ExtractIndicatorSnapshot(data *market.Data) map[string]float64 {
	snapshot := make(map[string]float64, len(data.Indicators))
	for name := range data.Indicators {
		if v, ok := data.LastIndicator(name); ok {
			snapshot[name] = v
		}
	}
	return snapshot
}

// DetectRegime derives a coarse market-state label from EMA alignment and
// trend strength.
func DetectRegime(data *market.Data, adxThreshold float64) string {
	fast, okF := data.LastIndicator(SeriesEMAFast)
	slow, okS := data.LastIndicator(SeriesEMASlow)
	if !okF || !okS {
		return RegimeUnknown
	}
	adx, okA := data.LastIndicator(SeriesADX)

	bull := fast > slow
	strong := okA && adx >= adxThreshold
	switch {
	case bull && strong:
		return RegimeStrongTrendBull
	case !bull && strong:
		return RegimeStrongTrendBear
	case okA && adx < adxThreshold*0.6:
		return RegimeRange
	case bull:
		return RegimeWeakTrendBull
	default:
		return RegimeWeakTrendBear
	}
}
