package rules

import (
	"math"
	"sort"
	"strings"
	"time"
)

// RegimeUnknown is the sentinel the regime helpers resolve to when no
// source supplies a regime.
const RegimeUnknown = "UNKNOWN"

// Context variable names the regime helpers probe, in priority order
// after the injected chart state.
const (
	varLastClosedCandle = "last_closed_candle"
	varCandleHistory    = "candle_history"
	varPreviousRegime   = "previous_regime"
	varCurrentRegime    = "current_regime"
	regimeField         = "regime"
)

func registerBuiltins(e *Engine) {
	// Null handling.
	e.RegisterBuiltin("isnull", builtinIsNull)
	e.RegisterBuiltin("nz", builtinNz)
	e.RegisterBuiltin("coalesce", builtinCoalesce)

	// Statistics over series.
	e.RegisterBuiltin("percentile", builtinPercentile)
	e.RegisterBuiltin("highest", builtinHighest)
	e.RegisterBuiltin("lowest", builtinLowest)
	e.RegisterBuiltin("average", builtinAverage)

	// Crossover detection.
	e.RegisterBuiltin("crossover", builtinCrossover)
	e.RegisterBuiltin("crossunder", builtinCrossunder)

	// Math.
	e.RegisterBuiltin("clamp", builtinClamp)
	e.RegisterBuiltin("percent_change", builtinPercentChange)
	e.RegisterBuiltin("retracement", builtinRetracement)
	e.RegisterBuiltin("extension", builtinExtension)
	e.RegisterBuiltin("sqrt", builtinSqrt)
	e.RegisterBuiltin("pow", builtinPow)
	e.RegisterBuiltin("round", builtinRound)
	e.RegisterBuiltin("abs", builtinAbs)
	e.RegisterBuiltin("min", builtinMin)
	e.RegisterBuiltin("max", builtinMax)

	// Time.
	e.RegisterBuiltin("now", builtinNow)
	e.RegisterBuiltin("bar_age", builtinBarAge)
	e.RegisterBuiltin("is_new_hour", newBoundaryBuiltin(boundaryHour))
	e.RegisterBuiltin("is_new_day", newBoundaryBuiltin(boundaryDay))
	e.RegisterBuiltin("is_new_week", newBoundaryBuiltin(boundaryWeek))
	e.RegisterBuiltin("is_new_month", newBoundaryBuiltin(boundaryMonth))

	// String and array utilities.
	e.RegisterBuiltin("size", builtinSize)
	e.RegisterBuiltin("contains", builtinContains)
	e.RegisterBuiltin("slice", builtinSlice)
	e.RegisterBuiltin("sort", builtinSort)
	e.RegisterBuiltin("distinct", builtinDistinct)
	e.RegisterBuiltin("sum", builtinSum)
	e.RegisterBuiltin("avg", builtinAvg)

	// Trade predicates.
	e.RegisterBuiltin("is_trade_open", builtinIsTradeOpen)
	e.RegisterBuiltin("is_long", builtinIsLong)
	e.RegisterBuiltin("is_short", builtinIsShort)
	e.RegisterBuiltin("stop_hit", builtinStopHit)
	e.RegisterBuiltin("target_hit", builtinTargetHit)

	// Regime helpers.
	e.RegisterBuiltin("last_closed_regime", builtinLastClosedRegime)
	e.RegisterBuiltin("trigger_regime_analysis", builtinTriggerRegimeAnalysis)
	e.RegisterBuiltin("new_regime_detected", builtinNewRegimeDetected)
}

func wantArgs(name string, args []Value, minArgs, maxArgs int) error {
	if len(args) < minArgs || maxArgs >= 0 && len(args) > maxArgs {
		if minArgs == maxArgs {
			return evalErrf("%s expects %d argument(s), got %d", name, minArgs, len(args))
		}
		return evalErrf("%s expects %d to %d arguments, got %d", name, minArgs, maxArgs, len(args))
	}
	return nil
}

func floatArg(name string, args []Value, idx int) (float64, error) {
	f, err := args[idx].AsFloat()
	if err != nil {
		return 0, evalErrf("%s argument %d: %v", name, idx+1, err)
	}
	return f, nil
}

func floatSeries(name string, v Value) ([]float64, error) {
	elems, err := v.AsList()
	if err != nil {
		return nil, evalErrf("%s: %v", name, err)
	}
	out := make([]float64, len(elems))
	for i, e := range elems {
		f, err := e.AsFloat()
		if err != nil {
			return nil, evalErrf("%s element %d: %v", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// --- null handling ---

func builtinIsNull(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("isnull", args, 1, 1); err != nil {
		return Null, err
	}
	return Bool(args[0].IsNull()), nil
}

func builtinNz(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("nz", args, 1, 2); err != nil {
		return Null, err
	}
	if !args[0].IsNull() {
		return args[0], nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return Float(0), nil
}

func builtinCoalesce(_ *Context, args []Value) (Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return Null, nil
}

// --- statistics ---

func builtinPercentile(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("percentile", args, 2, 2); err != nil {
		return Null, err
	}
	series, err := floatSeries("percentile", args[0])
	if err != nil {
		return Null, err
	}
	if len(series) == 0 {
		return Null, evalErrf("percentile of empty series")
	}
	p, err := floatArg("percentile", args, 1)
	if err != nil {
		return Null, err
	}
	if p < 0 || p > 100 {
		return Null, evalErrf("percentile rank %g out of range [0,100]", p)
	}
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	// Linear interpolation between closest ranks.
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return Float(sorted[lo]), nil
	}
	frac := rank - float64(lo)
	return Float(sorted[lo] + (sorted[hi]-sorted[lo])*frac), nil
}

// tail returns the last n elements, or the whole series when n is
// absent or larger.
func tail(name string, args []Value) ([]float64, error) {
	series, err := floatSeries(name, args[0])
	if err != nil {
		return nil, err
	}
	if len(args) == 2 {
		n, err := args[1].AsInt()
		if err != nil {
			return nil, evalErrf("%s window: %v", name, err)
		}
		if n <= 0 {
			return nil, evalErrf("%s window must be positive", name)
		}
		if int(n) < len(series) {
			series = series[len(series)-int(n):]
		}
	}
	if len(series) == 0 {
		return nil, evalErrf("%s of empty series", name)
	}
	return series, nil
}

func builtinHighest(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("highest", args, 1, 2); err != nil {
		return Null, err
	}
	series, err := tail("highest", args)
	if err != nil {
		return Null, err
	}
	best := series[0]
	for _, v := range series[1:] {
		if v > best {
			best = v
		}
	}
	return Float(best), nil
}

func builtinLowest(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("lowest", args, 1, 2); err != nil {
		return Null, err
	}
	series, err := tail("lowest", args)
	if err != nil {
		return Null, err
	}
	best := series[0]
	for _, v := range series[1:] {
		if v < best {
			best = v
		}
	}
	return Float(best), nil
}

func builtinAverage(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("average", args, 1, 2); err != nil {
		return Null, err
	}
	series, err := tail("average", args)
	if err != nil {
		return Null, err
	}
	var total float64
	for _, v := range series {
		total += v
	}
	return Float(total / float64(len(series))), nil
}

// --- crossover detection ---

// crossSeries accepts a series or a scalar treated as a flat series.
func crossSeries(name string, v Value, length int) ([]float64, error) {
	if v.Kind() == KindList {
		return floatSeries(name, v)
	}
	f, err := v.AsFloat()
	if err != nil {
		return nil, evalErrf("%s: %v", name, err)
	}
	out := make([]float64, length)
	for i := range out {
		out[i] = f
	}
	return out, nil
}

func crossed(name string, args []Value, over bool) (Value, error) {
	if err := wantArgs(name, args, 2, 2); err != nil {
		return Null, err
	}
	length := 2
	if args[0].Kind() == KindList {
		length = len(args[0].list)
	} else if args[1].Kind() == KindList {
		length = len(args[1].list)
	}
	a, err := crossSeries(name, args[0], length)
	if err != nil {
		return Null, err
	}
	b, err := crossSeries(name, args[1], length)
	if err != nil {
		return Null, err
	}
	if len(a) < 2 || len(b) < 2 || len(a) != len(b) {
		return Bool(false), nil
	}
	n := len(a)
	prevA, prevB := a[n-2], b[n-2]
	lastA, lastB := a[n-1], b[n-1]
	if over {
		return Bool(prevA <= prevB && lastA > lastB), nil
	}
	return Bool(prevA >= prevB && lastA < lastB), nil
}

func builtinCrossover(_ *Context, args []Value) (Value, error) {
	return crossed("crossover", args, true)
}

func builtinCrossunder(_ *Context, args []Value) (Value, error) {
	return crossed("crossunder", args, false)
}

// --- math ---

func builtinClamp(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("clamp", args, 3, 3); err != nil {
		return Null, err
	}
	v, err := floatArg("clamp", args, 0)
	if err != nil {
		return Null, err
	}
	lo, err := floatArg("clamp", args, 1)
	if err != nil {
		return Null, err
	}
	hi, err := floatArg("clamp", args, 2)
	if err != nil {
		return Null, err
	}
	if lo > hi {
		return Null, evalErrf("clamp bounds inverted: %g > %g", lo, hi)
	}
	return Float(math.Min(math.Max(v, lo), hi)), nil
}

func builtinPercentChange(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("percent_change", args, 2, 2); err != nil {
		return Null, err
	}
	from, err := floatArg("percent_change", args, 0)
	if err != nil {
		return Null, err
	}
	to, err := floatArg("percent_change", args, 1)
	if err != nil {
		return Null, err
	}
	if from == 0 {
		return Null, evalErrf("percent_change from zero")
	}
	return Float((to - from) / from * 100), nil
}

func builtinRetracement(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("retracement", args, 3, 3); err != nil {
		return Null, err
	}
	high, err := floatArg("retracement", args, 0)
	if err != nil {
		return Null, err
	}
	low, err := floatArg("retracement", args, 1)
	if err != nil {
		return Null, err
	}
	ratio, err := floatArg("retracement", args, 2)
	if err != nil {
		return Null, err
	}
	return Float(high - (high-low)*ratio), nil
}

func builtinExtension(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("extension", args, 3, 3); err != nil {
		return Null, err
	}
	high, err := floatArg("extension", args, 0)
	if err != nil {
		return Null, err
	}
	low, err := floatArg("extension", args, 1)
	if err != nil {
		return Null, err
	}
	ratio, err := floatArg("extension", args, 2)
	if err != nil {
		return Null, err
	}
	return Float(high + (high-low)*ratio), nil
}

func builtinSqrt(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("sqrt", args, 1, 1); err != nil {
		return Null, err
	}
	v, err := floatArg("sqrt", args, 0)
	if err != nil {
		return Null, err
	}
	if v < 0 {
		return Null, evalErrf("sqrt of negative %g", v)
	}
	return Float(math.Sqrt(v)), nil
}

func builtinPow(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("pow", args, 2, 2); err != nil {
		return Null, err
	}
	base, err := floatArg("pow", args, 0)
	if err != nil {
		return Null, err
	}
	exp, err := floatArg("pow", args, 1)
	if err != nil {
		return Null, err
	}
	return Float(math.Pow(base, exp)), nil
}

func builtinRound(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("round", args, 1, 2); err != nil {
		return Null, err
	}
	v, err := floatArg("round", args, 0)
	if err != nil {
		return Null, err
	}
	digits := int64(0)
	if len(args) == 2 {
		digits, err = args[1].AsInt()
		if err != nil {
			return Null, evalErrf("round digits: %v", err)
		}
	}
	factor := math.Pow10(int(digits))
	return Float(math.Round(v*factor) / factor), nil
}

func builtinAbs(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("abs", args, 1, 1); err != nil {
		return Null, err
	}
	v, err := floatArg("abs", args, 0)
	if err != nil {
		return Null, err
	}
	return Float(math.Abs(v)), nil
}

func builtinMin(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("min", args, 1, -1); err != nil {
		return Null, err
	}
	best, err := floatArg("min", args, 0)
	if err != nil {
		return Null, err
	}
	for i := 1; i < len(args); i++ {
		v, err := floatArg("min", args, i)
		if err != nil {
			return Null, err
		}
		if v < best {
			best = v
		}
	}
	return Float(best), nil
}

func builtinMax(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("max", args, 1, -1); err != nil {
		return Null, err
	}
	best, err := floatArg("max", args, 0)
	if err != nil {
		return Null, err
	}
	for i := 1; i < len(args); i++ {
		v, err := floatArg("max", args, i)
		if err != nil {
			return Null, err
		}
		if v > best {
			best = v
		}
	}
	return Float(best), nil
}

// --- time ---

func builtinNow(ctx *Context, args []Value) (Value, error) {
	if err := wantArgs("now", args, 0, 0); err != nil {
		return Null, err
	}
	return Time(ctx.now().UTC()), nil
}

func builtinBarAge(ctx *Context, args []Value) (Value, error) {
	if err := wantArgs("bar_age", args, 1, 1); err != nil {
		return Null, err
	}
	t, err := args[0].AsTime()
	if err != nil {
		return Null, evalErrf("bar_age: %v", err)
	}
	return Float(ctx.now().UTC().Sub(t).Seconds()), nil
}

type boundary int

const (
	boundaryHour boundary = iota
	boundaryDay
	boundaryWeek
	boundaryMonth
)

func newBoundaryBuiltin(b boundary) Builtin {
	names := map[boundary]string{
		boundaryHour:  "is_new_hour",
		boundaryDay:   "is_new_day",
		boundaryWeek:  "is_new_week",
		boundaryMonth: "is_new_month",
	}
	name := names[b]
	return func(_ *Context, args []Value) (Value, error) {
		if err := wantArgs(name, args, 2, 2); err != nil {
			return Null, err
		}
		prev, err := args[0].AsTime()
		if err != nil {
			return Null, evalErrf("%s: %v", name, err)
		}
		cur, err := args[1].AsTime()
		if err != nil {
			return Null, evalErrf("%s: %v", name, err)
		}
		prev, cur = prev.UTC(), cur.UTC()
		switch b {
		case boundaryHour:
			return Bool(!prev.Truncate(time.Hour).Equal(cur.Truncate(time.Hour))), nil
		case boundaryDay:
			return Bool(prev.YearDay() != cur.YearDay() || prev.Year() != cur.Year()), nil
		case boundaryWeek:
			py, pw := prev.ISOWeek()
			cy, cw := cur.ISOWeek()
			return Bool(py != cy || pw != cw), nil
		case boundaryMonth:
			return Bool(prev.Month() != cur.Month() || prev.Year() != cur.Year()), nil
		}
		return Bool(false), nil
	}
}

// --- string and array utilities ---

func builtinSize(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("size", args, 1, 1); err != nil {
		return Null, err
	}
	switch args[0].Kind() {
	case KindString:
		return Int(int64(len(args[0].s))), nil
	case KindList:
		return Int(int64(len(args[0].list))), nil
	case KindMap:
		return Int(int64(len(args[0].m))), nil
	case KindNull:
		return Int(0), nil
	}
	return Null, evalErrf("size of %s", args[0].Kind())
}

func builtinContains(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("contains", args, 2, 2); err != nil {
		return Null, err
	}
	switch args[0].Kind() {
	case KindString:
		return Bool(strings.Contains(args[0].s, args[1].AsString())), nil
	case KindList:
		for _, e := range args[0].list {
			if e.Equal(args[1]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case KindNull:
		return Bool(false), nil
	}
	return Null, evalErrf("contains on %s", args[0].Kind())
}

func builtinSlice(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("slice", args, 2, 3); err != nil {
		return Null, err
	}
	elems, err := args[0].AsList()
	if err != nil {
		return Null, evalErrf("slice: %v", err)
	}
	start, err := args[1].AsInt()
	if err != nil {
		return Null, evalErrf("slice start: %v", err)
	}
	end := int64(len(elems))
	if len(args) == 3 {
		end, err = args[2].AsInt()
		if err != nil {
			return Null, evalErrf("slice end: %v", err)
		}
	}
	if start < 0 {
		start = int64(len(elems)) + start
	}
	if end < 0 {
		end = int64(len(elems)) + end
	}
	start = clampIndex(start, int64(len(elems)))
	end = clampIndex(end, int64(len(elems)))
	if start > end {
		start = end
	}
	return List(append([]Value(nil), elems[start:end]...)), nil
}

func clampIndex(i, n int64) int64 {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func builtinSort(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("sort", args, 1, 1); err != nil {
		return Null, err
	}
	elems, err := args[0].AsList()
	if err != nil {
		return Null, evalErrf("sort: %v", err)
	}
	out := append([]Value(nil), elems...)
	sort.SliceStable(out, func(i, j int) bool {
		a, errA := out[i].AsFloat()
		b, errB := out[j].AsFloat()
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i].AsString() < out[j].AsString()
	})
	return List(out), nil
}

func builtinDistinct(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("distinct", args, 1, 1); err != nil {
		return Null, err
	}
	elems, err := args[0].AsList()
	if err != nil {
		return Null, evalErrf("distinct: %v", err)
	}
	var out []Value
	for _, e := range elems {
		dup := false
		for _, seen := range out {
			if seen.Equal(e) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return List(out), nil
}

func builtinSum(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("sum", args, 1, 1); err != nil {
		return Null, err
	}
	series, err := floatSeries("sum", args[0])
	if err != nil {
		return Null, err
	}
	var total float64
	for _, v := range series {
		total += v
	}
	return Float(total), nil
}

func builtinAvg(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("avg", args, 1, 1); err != nil {
		return Null, err
	}
	series, err := floatSeries("avg", args[0])
	if err != nil {
		return Null, err
	}
	if len(series) == 0 {
		return Null, evalErrf("avg of empty series")
	}
	var total float64
	for _, v := range series {
		total += v
	}
	return Float(total / float64(len(series))), nil
}

// --- trade predicates ---

func tradeField(name string, trade Value, field string) (Value, error) {
	if trade.Kind() != KindMap {
		return Null, evalErrf("%s expects a trade object, got %s", name, trade.Kind())
	}
	v, _ := trade.Field(field)
	return v, nil
}

func builtinIsTradeOpen(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("is_trade_open", args, 1, 1); err != nil {
		return Null, err
	}
	if args[0].IsNull() {
		return Bool(false), nil
	}
	open, err := tradeField("is_trade_open", args[0], "open")
	if err != nil {
		return Null, err
	}
	return Bool(open.AsBool()), nil
}

func tradeSide(name string, trade Value) (string, error) {
	side, err := tradeField(name, trade, "side")
	if err != nil {
		return "", err
	}
	return strings.ToUpper(side.AsString()), nil
}

func builtinIsLong(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("is_long", args, 1, 1); err != nil {
		return Null, err
	}
	side, err := tradeSide("is_long", args[0])
	if err != nil {
		return Null, err
	}
	return Bool(side == "BUY" || side == "LONG"), nil
}

func builtinIsShort(_ *Context, args []Value) (Value, error) {
	if err := wantArgs("is_short", args, 1, 1); err != nil {
		return Null, err
	}
	side, err := tradeSide("is_short", args[0])
	if err != nil {
		return Null, err
	}
	return Bool(side == "SELL" || side == "SHORT"), nil
}

func levelHit(name, field string, args []Value) (Value, error) {
	if err := wantArgs(name, args, 2, 2); err != nil {
		return Null, err
	}
	level, err := tradeField(name, args[0], field)
	if err != nil {
		return Null, err
	}
	if level.IsNull() {
		return Bool(false), nil
	}
	levelF, err := level.AsFloat()
	if err != nil {
		return Null, evalErrf("%s level: %v", name, err)
	}
	price, err := floatArg(name, args, 1)
	if err != nil {
		return Null, err
	}
	side, err := tradeSide(name, args[0])
	if err != nil {
		return Null, err
	}
	long := side == "BUY" || side == "LONG"
	if field == "stop_loss" {
		if long {
			return Bool(price <= levelF), nil
		}
		return Bool(price >= levelF), nil
	}
	if long {
		return Bool(price >= levelF), nil
	}
	return Bool(price <= levelF), nil
}

func builtinStopHit(_ *Context, args []Value) (Value, error) {
	return levelHit("stop_hit", "stop_loss", args)
}

func builtinTargetHit(_ *Context, args []Value) (Value, error) {
	return levelHit("target_hit", "take_profit", args)
}

// --- regime helpers ---

// resolveLastClosedRegime walks the fixed priority order: injected
// chart state, explicit last-closed-candle field, second-to-last
// history element, legacy previous-regime field, UNKNOWN.
func resolveLastClosedRegime(ctx *Context) string {
	if ctx.chart != nil {
		if r := ctx.chart.LastClosedRegime(); r != "" {
			return r
		}
	}
	if v, ok := ctx.Get(varLastClosedCandle); ok && !v.IsNull() {
		if r := regimeOf(v); r != "" {
			return r
		}
	}
	if v, ok := ctx.Get(varCandleHistory); ok {
		if elems, err := v.AsList(); err == nil && len(elems) >= 2 {
			if r := regimeOf(elems[len(elems)-2]); r != "" {
				return r
			}
		}
	}
	if v, ok := ctx.Get(varPreviousRegime); ok && !v.IsNull() {
		if r := v.AsString(); r != "" {
			return r
		}
	}
	return RegimeUnknown
}

// regimeOf reads the regime out of a candle-like value: either a map
// with a regime field or a bare string.
func regimeOf(v Value) string {
	if v.Kind() == KindMap {
		if r, ok := v.Field(regimeField); ok {
			return r.AsString()
		}
		return ""
	}
	if v.Kind() == KindString {
		return v.s
	}
	return ""
}

func resolveCurrentRegime(ctx *Context) string {
	if ctx.chart != nil {
		if r := ctx.chart.CurrentRegime(); r != "" {
			return r
		}
	}
	if v, ok := ctx.Get(varCurrentRegime); ok && !v.IsNull() {
		if r := v.AsString(); r != "" {
			return r
		}
	}
	return RegimeUnknown
}

func builtinLastClosedRegime(ctx *Context, args []Value) (Value, error) {
	if err := wantArgs("last_closed_regime", args, 0, 0); err != nil {
		return Null, err
	}
	return Str(resolveLastClosedRegime(ctx)), nil
}

// builtinTriggerRegimeAnalysis asks the chart collaborator to recompute
// its regime. Absent collaborator or capability is false, never an
// error.
func builtinTriggerRegimeAnalysis(ctx *Context, args []Value) (Value, error) {
	if err := wantArgs("trigger_regime_analysis", args, 0, 0); err != nil {
		return Null, err
	}
	if ctx.chart == nil {
		return Bool(false), nil
	}
	recomputer, ok := ctx.chart.(RegimeRecomputer)
	if !ok {
		return Bool(false), nil
	}
	return Bool(recomputer.TriggerRegimeAnalysis()), nil
}

func builtinNewRegimeDetected(ctx *Context, args []Value) (Value, error) {
	if err := wantArgs("new_regime_detected", args, 0, 0); err != nil {
		return Null, err
	}
	prev := resolveLastClosedRegime(ctx)
	cur := resolveCurrentRegime(ctx)
	if prev == RegimeUnknown || cur == RegimeUnknown {
		return Bool(false), nil
	}
	return Bool(prev != cur), nil
}
