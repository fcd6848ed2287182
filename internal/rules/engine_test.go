package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", JSONFormat: true})
}

func newTestEngine(t *testing.T, cacheSize int) *Engine {
	t.Helper()
	return NewEngine(cacheSize, testLog())
}

func evalFloat(t *testing.T, e *Engine, expr string, ctx *Context) float64 {
	t.Helper()
	v, err := e.Evaluate(expr, ctx)
	require.NoError(t, err, expr)
	f, err := v.AsFloat()
	require.NoError(t, err, expr)
	return f
}

func evalBool(t *testing.T, e *Engine, expr string, ctx *Context) bool {
	t.Helper()
	v, err := e.Evaluate(expr, ctx)
	require.NoError(t, err, expr)
	return v.AsBool()
}

func TestArithmeticAndPrecedence(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext()

	assert.Equal(t, 14.0, evalFloat(t, e, "2 + 3 * 4", ctx))
	assert.Equal(t, 20.0, evalFloat(t, e, "(2 + 3) * 4", ctx))
	assert.Equal(t, 2.5, evalFloat(t, e, "5 / 2", ctx))
	assert.Equal(t, 1.0, evalFloat(t, e, "7 % 3", ctx))
	assert.Equal(t, -3.0, evalFloat(t, e, "-3", ctx))
}

func TestComparisonAndLogic(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("rsi", 65.0).Set("adx", 30.0)

	assert.True(t, evalBool(t, e, "rsi > 50 && adx >= 25", ctx))
	assert.False(t, evalBool(t, e, "rsi > 70 || adx < 20", ctx))
	assert.True(t, evalBool(t, e, "!(rsi > 70)", ctx))
	assert.True(t, evalBool(t, e, "rsi != 50", ctx))
	assert.True(t, evalBool(t, e, `"up" == "up"`, ctx))
}

func TestShortCircuitSkipsMissingVariable(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("enabled", false)

	// The right side references an undefined variable but is never
	// reached.
	assert.False(t, evalBool(t, e, "enabled && missing > 0", ctx))
}

func TestCompileErrors(t *testing.T) {
	e := newTestEngine(t, 0)

	for _, expr := range []string{
		"rsi >",
		"(rsi > 50",
		"rsi > 50)",
		`"unterminated`,
		"rsi @ 50",
		"nosuchfunc(1)",
	} {
		_, err := e.Compile(expr)
		require.Error(t, err, expr)
		var ce *CompileError
		assert.ErrorAs(t, err, &ce, expr)
	}
}

func TestEvalErrors(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("price", 100.0)

	_, err := e.Evaluate("missing > 0", ctx)
	require.Error(t, err)
	var ee *EvalError
	assert.ErrorAs(t, err, &ee)

	_, err = e.Evaluate("price / 0", ctx)
	assert.ErrorAs(t, err, &ee)
}

func TestEvaluateBoolFallback(t *testing.T) {
	e := newTestEngine(t, 0)

	got, err := e.EvaluateBool("missing > 0", NewContext(), false)
	require.NoError(t, err)
	assert.False(t, got)

	// Compile errors still propagate.
	_, err = e.EvaluateBool("missing >", NewContext(), false)
	assert.Error(t, err)
}

func TestProgramCacheReuseAcrossContexts(t *testing.T) {
	e := newTestEngine(t, 0)

	p1, err := e.Compile("rsi > 50")
	require.NoError(t, err)
	p2, err := e.Compile("rsi > 50")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, e.CacheLen())

	// Different contexts through the same program, no state leaks.
	v, err := e.Run(p1, NewContext().Set("rsi", 60.0))
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = e.Run(p1, NewContext().Set("rsi", 40.0))
	require.NoError(t, err)
	assert.False(t, v.AsBool())

	v, err = e.Run(p1, NewContext().Set("rsi", 60.0))
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestCacheLRUEviction(t *testing.T) {
	e := newTestEngine(t, 2)

	first, err := e.Compile("1 + 1")
	require.NoError(t, err)
	_, err = e.Compile("2 + 2")
	require.NoError(t, err)

	// Touch the first entry so the second is evicted instead.
	again, err := e.Compile("1 + 1")
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = e.Compile("3 + 3")
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheLen())

	// The first entry survived the eviction.
	still, err := e.Compile("1 + 1")
	require.NoError(t, err)
	assert.Same(t, first, still)
}

func TestClearCache(t *testing.T) {
	e := newTestEngine(t, 0)

	p1, err := e.Compile("1 + 1")
	require.NoError(t, err)
	e.ClearCache()
	assert.Zero(t, e.CacheLen())

	p2, err := e.Compile("1 + 1")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
}

func TestDottedVariableLookup(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := NewContext().Set("pattern", map[string]interface{}{
		"name":     "double_bottom",
		"strength": 0.8,
	})

	assert.True(t, evalBool(t, e, `pattern.name == "double_bottom"`, ctx))
	assert.True(t, evalBool(t, e, "pattern.strength > 0.5", ctx))

	// A flat entry with a dot in its name wins over field traversal.
	ctx.Set("pattern.name", "override")
	assert.True(t, evalBool(t, e, `pattern.name == "override"`, ctx))
}

func TestProgramVars(t *testing.T) {
	e := newTestEngine(t, 0)
	p, err := e.Compile("rsi > 50 && nz(adx, 0) >= 25 && pattern.valid")
	require.NoError(t, err)
	assert.Equal(t, []string{"adx", "pattern.valid", "rsi"}, p.Vars())
}
