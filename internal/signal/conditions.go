package signal

import (
	"fmt"
	"sort"

	"paper-trading-bot/internal/market"
)

// Condition is a pure predicate over injected market data. Conditions never
// mutate the data and never depend on generator state, so batteries can be
// recomposed from configuration without touching the scheduler.
type Condition func(d *market.Data) bool

// Registry maps condition identifiers to predicates.
type Registry struct {
	conditions map[string]Condition
}

// NewRegistry creates an empty condition registry.
func NewRegistry() *Registry {
	return &Registry{conditions: make(map[string]Condition)}
}

// Register adds or replaces a condition under an identifier.
func (r *Registry) Register(id string, cond Condition) {
	r.conditions[id] = cond
}

// Get returns the condition for an identifier.
func (r *Registry) Get(id string) (Condition, bool) {
	cond, ok := r.conditions[id]
	return cond, ok
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.conditions))
	for id := range r.conditions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Battery resolves an ordered list of condition ids, failing on unknown ids
// so misconfigured strategies surface at construction rather than mid-cycle.
func (r *Registry) Battery(ids []string) ([]string, []Condition, error) {
	conds := make([]Condition, 0, len(ids))
	for _, id := range ids {
		cond, ok := r.conditions[id]
		if !ok {
			return nil, nil, fmt.Errorf("unknown condition %q", id)
		}
		conds = append(conds, cond)
	}
	return ids, conds, nil
}

// Indicator series names the default conditions consume, aliased from the
// market package so batteries and indicator engines agree on naming.
const (
	SeriesEMAFast    = market.SeriesEMAFast
	SeriesEMASlow    = market.SeriesEMASlow
	SeriesRSI        = market.SeriesRSI
	SeriesMACD       = market.SeriesMACD
	SeriesMACDSignal = market.SeriesMACDSignal
	SeriesADX        = market.SeriesADX
	SeriesBBUpper    = market.SeriesBBUpper
	SeriesBBMiddle   = market.SeriesBBMiddle
	SeriesBBLower    = market.SeriesBBLower
	SeriesVolumeSMA  = market.SeriesVolumeSMA
	SeriesATR        = market.SeriesATR
)

// NewDefaultRegistry registers the built-in condition set. The battery lists
// in configuration select and order from these.
func NewDefaultRegistry(adxThreshold float64) *Registry {
	r := NewRegistry()

	r.Register("ema_alignment_long", func(d *market.Data) bool {
		fast, okF := d.LastIndicator(SeriesEMAFast)
		slow, okS := d.LastIndicator(SeriesEMASlow)
		return okF && okS && fast > slow
	})
	r.Register("ema_alignment_short", func(d *market.Data) bool {
		fast, okF := d.LastIndicator(SeriesEMAFast)
		slow, okS := d.LastIndicator(SeriesEMASlow)
		return okF && okS && fast < slow
	})

	r.Register("rsi_zone_long", func(d *market.Data) bool {
		rsi, ok := d.LastIndicator(SeriesRSI)
		return ok && rsi >= 50 && rsi < 70
	})
	r.Register("rsi_zone_short", func(d *market.Data) bool {
		rsi, ok := d.LastIndicator(SeriesRSI)
		return ok && rsi > 30 && rsi <= 50
	})

	r.Register("macd_cross_long", func(d *market.Data) bool {
		macd, okM := d.LastIndicator(SeriesMACD)
		sig, okS := d.LastIndicator(SeriesMACDSignal)
		return okM && okS && macd > sig
	})
	r.Register("macd_cross_short", func(d *market.Data) bool {
		macd, okM := d.LastIndicator(SeriesMACD)
		sig, okS := d.LastIndicator(SeriesMACDSignal)
		return okM && okS && macd < sig
	})

	r.Register("adx_strength", func(d *market.Data) bool {
		adx, ok := d.LastIndicator(SeriesADX)
		return ok && adx >= adxThreshold
	})

	r.Register("band_position_long", func(d *market.Data) bool {
		mid, ok := d.LastIndicator(SeriesBBMiddle)
		last, okC := d.Last()
		return ok && okC && last.Close > mid
	})
	r.Register("band_position_short", func(d *market.Data) bool {
		mid, ok := d.LastIndicator(SeriesBBMiddle)
		last, okC := d.Last()
		return ok && okC && last.Close < mid
	})

	r.Register("volume_confirmation", func(d *market.Data) bool {
		sma, ok := d.LastIndicator(SeriesVolumeSMA)
		last, okC := d.Last()
		return ok && okC && last.Volume > sma
	})

	return r
}
