package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullHandlingBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("present", 5.0).Set("absent", nil)

	assert.True(t, evalBool(t, e, "isnull(absent)", ctx))
	assert.False(t, evalBool(t, e, "isnull(present)", ctx))
	assert.Equal(t, 5.0, evalFloat(t, e, "nz(present, 1)", ctx))
	assert.Equal(t, 1.0, evalFloat(t, e, "nz(absent, 1)", ctx))
	assert.Equal(t, 0.0, evalFloat(t, e, "nz(absent)", ctx))
	assert.Equal(t, 5.0, evalFloat(t, e, "coalesce(absent, present, 9)", ctx))
}

func TestStatisticsBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("closes", []float64{10, 20, 30, 40, 50})

	assert.Equal(t, 30.0, evalFloat(t, e, "percentile(closes, 50)", ctx))
	assert.Equal(t, 10.0, evalFloat(t, e, "percentile(closes, 0)", ctx))
	assert.Equal(t, 50.0, evalFloat(t, e, "percentile(closes, 100)", ctx))

	assert.Equal(t, 50.0, evalFloat(t, e, "highest(closes)", ctx))
	assert.Equal(t, 40.0, evalFloat(t, e, "lowest(closes, 2)", ctx))
	assert.Equal(t, 45.0, evalFloat(t, e, "average(closes, 2)", ctx))
	assert.Equal(t, 30.0, evalFloat(t, e, "average(closes)", ctx))
}

func TestCrossoverBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().
		Set("fast", []float64{9, 11}).
		Set("slow", []float64{10, 10}).
		Set("flat", []float64{12, 12})

	assert.True(t, evalBool(t, e, "crossover(fast, slow)", ctx))
	assert.False(t, evalBool(t, e, "crossunder(fast, slow)", ctx))
	assert.False(t, evalBool(t, e, "crossover(flat, slow)", ctx))

	// Scalar second operand acts as a constant level.
	assert.True(t, evalBool(t, e, "crossover(fast, 10)", ctx))
	assert.True(t, evalBool(t, e, "crossunder(slow, 10.5)", ctx))
}

func TestMathBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext()

	assert.Equal(t, 5.0, evalFloat(t, e, "clamp(7, 1, 5)", ctx))
	assert.Equal(t, 1.0, evalFloat(t, e, "clamp(-2, 1, 5)", ctx))
	assert.Equal(t, 3.0, evalFloat(t, e, "clamp(3, 1, 5)", ctx))
	assert.Equal(t, 10.0, evalFloat(t, e, "percent_change(100, 110)", ctx))
	assert.InDelta(t, 96.18, evalFloat(t, e, "retracement(110, 90, 0.691)", ctx), 0.01)
	assert.Equal(t, 130.0, evalFloat(t, e, "extension(110, 90, 1)", ctx))
	assert.Equal(t, 4.0, evalFloat(t, e, "sqrt(16)", ctx))
	assert.Equal(t, 8.0, evalFloat(t, e, "pow(2, 3)", ctx))
	assert.Equal(t, 3.14, evalFloat(t, e, "round(3.14159, 2)", ctx))
	assert.Equal(t, 3.0, evalFloat(t, e, "round(3.14159)", ctx))
	assert.Equal(t, 2.0, evalFloat(t, e, "abs(0 - 2)", ctx))
	assert.Equal(t, 1.0, evalFloat(t, e, "min(3, 1, 2)", ctx))
	assert.Equal(t, 3.0, evalFloat(t, e, "max(3, 1, 2)", ctx))
}

func TestTimeBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	fixed := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) // a Monday
	ctx := NewContext().
		Set("bar_time", fixed.Add(-90*time.Second)).
		Set("prev_same_hour", fixed.Add(-10*time.Minute)).
		Set("prev_hour", fixed.Add(-time.Hour)).
		Set("sunday", fixed.Add(-24*time.Hour)).
		Set("may", time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC)).
		Set("cur", fixed)
	ctx.now = func() time.Time { return fixed }

	assert.Equal(t, 90.0, evalFloat(t, e, "bar_age(bar_time)", ctx))
	assert.True(t, evalBool(t, e, "bar_age(now()) == 0", ctx))

	assert.False(t, evalBool(t, e, "is_new_hour(prev_same_hour, cur)", ctx))
	assert.True(t, evalBool(t, e, "is_new_hour(prev_hour, cur)", ctx))
	assert.True(t, evalBool(t, e, "is_new_day(sunday, cur)", ctx))
	assert.True(t, evalBool(t, e, "is_new_week(sunday, cur)", ctx))
	assert.True(t, evalBool(t, e, "is_new_month(may, cur)", ctx))
	assert.False(t, evalBool(t, e, "is_new_month(sunday, cur)", ctx))
}

func TestCollectionBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().
		Set("tags", []string{"a", "b", "a"}).
		Set("nums", []float64{3, 1, 2})

	assert.Equal(t, 3.0, evalFloat(t, e, "size(tags)", ctx))
	assert.Equal(t, 5.0, evalFloat(t, e, `size("hello")`, ctx))
	assert.True(t, evalBool(t, e, `contains(tags, "b")`, ctx))
	assert.False(t, evalBool(t, e, `contains(tags, "z")`, ctx))
	assert.True(t, evalBool(t, e, `contains("hello", "ell")`, ctx))

	v, err := e.Evaluate("slice(nums, 1)", ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0}, v.Export())

	v, err = e.Evaluate("slice(nums, 0 - 1)", ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.0}, v.Export())

	v, err = e.Evaluate("sort(nums)", ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, v.Export())

	v, err = e.Evaluate("distinct(tags)", ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, v.Export())

	assert.Equal(t, 6.0, evalFloat(t, e, "sum(nums)", ctx))
	assert.Equal(t, 2.0, evalFloat(t, e, "avg(nums)", ctx))
}

func TestTradePredicateBuiltins(t *testing.T) {
	e := newTestEngine(t, 0)
	trade := map[string]interface{}{
		"open":        true,
		"side":        "BUY",
		"entry_price": 100.0,
		"stop_loss":   97.0,
		"take_profit": 104.0,
	}
	ctx := NewContext().Set("trade", trade).Set("none", nil)

	assert.True(t, evalBool(t, e, "is_trade_open(trade)", ctx))
	assert.False(t, evalBool(t, e, "is_trade_open(none)", ctx))
	assert.True(t, evalBool(t, e, "is_long(trade)", ctx))
	assert.False(t, evalBool(t, e, "is_short(trade)", ctx))

	assert.True(t, evalBool(t, e, "stop_hit(trade, 96.5)", ctx))
	assert.False(t, evalBool(t, e, "stop_hit(trade, 98)", ctx))
	assert.True(t, evalBool(t, e, "target_hit(trade, 104.5)", ctx))
	assert.False(t, evalBool(t, e, "target_hit(trade, 103)", ctx))

	short := map[string]interface{}{
		"open": true, "side": "SELL", "stop_loss": 103.0, "take_profit": 96.0,
	}
	ctx.Set("short", short)
	assert.True(t, evalBool(t, e, "stop_hit(short, 103.5)", ctx))
	assert.True(t, evalBool(t, e, "target_hit(short, 95)", ctx))
}

type fakeChart struct {
	current    string
	lastClosed string
	triggered  bool
}

func (c *fakeChart) CurrentRegime() string    { return c.current }
func (c *fakeChart) LastClosedRegime() string { return c.lastClosed }

type fakeChartWithTrigger struct {
	fakeChart
}

func (c *fakeChartWithTrigger) TriggerRegimeAnalysis() bool {
	c.triggered = true
	return true
}

func TestLastClosedRegimePriority(t *testing.T) {
	e := newTestEngine(t, 0)

	// Chart state wins over every context field, including the legacy
	// previous-regime entry.
	ctx := NewContext().
		WithChart(&fakeChart{lastClosed: "STRONG_TREND_BULL"}).
		Set(varPreviousRegime, "RANGE").
		Set(varLastClosedCandle, map[string]interface{}{"regime": "WEAK_TREND_BULL"})
	v, err := e.Evaluate("last_closed_regime()", ctx)
	require.NoError(t, err)
	assert.Equal(t, "STRONG_TREND_BULL", v.AsString())

	// Without chart state the explicit last-closed-candle field wins.
	ctx = NewContext().
		Set(varPreviousRegime, "RANGE").
		Set(varLastClosedCandle, map[string]interface{}{"regime": "WEAK_TREND_BULL"})
	v, err = e.Evaluate("last_closed_regime()", ctx)
	require.NoError(t, err)
	assert.Equal(t, "WEAK_TREND_BULL", v.AsString())

	// Then the second-to-last history element.
	ctx = NewContext().
		Set(varPreviousRegime, "RANGE").
		Set(varCandleHistory, []interface{}{
			map[string]interface{}{"regime": "STRONG_TREND_BEAR"},
			map[string]interface{}{"regime": "RANGE"},
		})
	v, err = e.Evaluate("last_closed_regime()", ctx)
	require.NoError(t, err)
	assert.Equal(t, "STRONG_TREND_BEAR", v.AsString())

	// Then the legacy field.
	ctx = NewContext().Set(varPreviousRegime, "RANGE")
	v, err = e.Evaluate("last_closed_regime()", ctx)
	require.NoError(t, err)
	assert.Equal(t, "RANGE", v.AsString())

	// Nothing resolves.
	v, err = e.Evaluate("last_closed_regime()", NewContext())
	require.NoError(t, err)
	assert.Equal(t, RegimeUnknown, v.AsString())
}

func TestTriggerRegimeAnalysis(t *testing.T) {
	e := newTestEngine(t, 0)

	// No collaborator: false, no error.
	assert.False(t, evalBool(t, e, "trigger_regime_analysis()", NewContext()))

	// Collaborator without the capability: false.
	ctx := NewContext().WithChart(&fakeChart{})
	assert.False(t, evalBool(t, e, "trigger_regime_analysis()", ctx))

	// Capable collaborator is invoked.
	chart := &fakeChartWithTrigger{}
	ctx = NewContext().WithChart(chart)
	assert.True(t, evalBool(t, e, "trigger_regime_analysis()", ctx))
	assert.True(t, chart.triggered)
}

func TestNewRegimeDetected(t *testing.T) {
	e := newTestEngine(t, 0)

	ctx := NewContext().WithChart(&fakeChart{current: "RANGE", lastClosed: "STRONG_TREND_BULL"})
	assert.True(t, evalBool(t, e, "new_regime_detected()", ctx))

	ctx = NewContext().WithChart(&fakeChart{current: "RANGE", lastClosed: "RANGE"})
	assert.False(t, evalBool(t, e, "new_regime_detected()", ctx))

	// Either side unresolved: false.
	ctx = NewContext().WithChart(&fakeChart{current: "RANGE"})
	assert.False(t, evalBool(t, e, "new_regime_detected()", ctx))
	assert.False(t, evalBool(t, e, "new_regime_detected()", NewContext()))
}
