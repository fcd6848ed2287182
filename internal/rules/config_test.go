package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRuleConfigMerge(t *testing.T) {
	dir := t.TempDir()
	strategy := writeJSON(t, dir, "strategy.json", `{
		"indicators": {
			"rsi": {"type": "rsi", "period": 14},
			"adx": {"type": "adx", "period": 14}
		},
		"regime": {"adx_trend": 25, "adx_range": 15},
		"entry_expression": "rsi > 50 && adx >= 25"
	}`)
	indicators := writeJSON(t, dir, "indicators.json", `{
		"indicators": {
			"rsi": {"type": "rsi", "period": 7},
			"atr": {"type": "atr", "period": 14}
		}
	}`)

	cfg, err := LoadRuleConfig(strategy, indicators)
	require.NoError(t, err)

	assert.True(t, cfg.EntryEnabled)
	assert.Equal(t, "rsi > 50 && adx >= 25", cfg.EntryExpression)
	assert.Equal(t, 25.0, cfg.Regime.ADXTrend)

	// The indicators file wins on key collision.
	assert.Equal(t, 7, cfg.Indicators["rsi"].Period)
	assert.Equal(t, 14, cfg.Indicators["adx"].Period)
	assert.Equal(t, "atr", cfg.Indicators["atr"].Type)
}

func TestLoadRuleConfigMissingFilesAreSkipped(t *testing.T) {
	cfg, err := LoadRuleConfig("/nonexistent/strategy.json", "")
	require.NoError(t, err)
	assert.False(t, cfg.EntryEnabled)
	assert.Empty(t, cfg.Indicators)
}

func TestLoadRuleConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	bad := writeJSON(t, dir, "bad.json", `{"indicators": [`)

	_, err := LoadRuleConfig(bad, "")
	assert.Error(t, err)
}

func TestScorerFailClosedWithoutExpression(t *testing.T) {
	e := newTestEngine(t, 0)
	cfg := &RuleConfig{}

	s, err := NewScorer(cfg, e, testLog())
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	enter, score, reasons := s.Score(map[string]interface{}{"rsi": 99.0}, nil)
	assert.False(t, enter)
	assert.Zero(t, score)
	assert.Equal(t, []string{ReasonEntryDisabled}, reasons)
}

func TestScorerRejectsInvalidSyntax(t *testing.T) {
	e := newTestEngine(t, 0)
	cfg := &RuleConfig{EntryExpression: "rsi >", EntryEnabled: true}

	_, err := NewScorer(cfg, e, testLog())
	require.Error(t, err)
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)
}

func TestScorerScore(t *testing.T) {
	e := newTestEngine(t, 0)
	cfg := &RuleConfig{EntryExpression: "rsi > 50 && adx >= 25", EntryEnabled: true}
	s, err := NewScorer(cfg, e, testLog())
	require.NoError(t, err)
	require.True(t, s.Enabled())

	enter, score, reasons := s.Score(map[string]interface{}{"rsi": 60.0, "adx": 30.0}, nil)
	assert.True(t, enter)
	assert.Equal(t, 1, score)
	assert.Contains(t, reasons, ReasonExprTrue)

	enter, score, reasons = s.Score(map[string]interface{}{"rsi": 40.0, "adx": 30.0}, nil)
	assert.False(t, enter)
	assert.Zero(t, score)
	assert.Contains(t, reasons, ReasonExprFalse)
}

func TestScorerMissingVariable(t *testing.T) {
	e := newTestEngine(t, 0)
	cfg := &RuleConfig{EntryExpression: "rsi > 50 && adx >= 25", EntryEnabled: true}
	s, err := NewScorer(cfg, e, testLog())
	require.NoError(t, err)

	// rsi passes but adx is absent: evaluation fails, entry denied.
	enter, score, reasons := s.Score(map[string]interface{}{"rsi": 60.0}, nil)
	assert.False(t, enter)
	assert.Zero(t, score)
	assert.Contains(t, reasons, "MISSING_VAR:adx")
	assert.Contains(t, reasons, ReasonEvalError)
}

func TestScorerWithRegimeHelpers(t *testing.T) {
	e := newTestEngine(t, 0)
	cfg := &RuleConfig{
		EntryExpression: `rsi > 50 && last_closed_regime() != "STRONG_TREND_BEAR"`,
		EntryEnabled:    true,
	}
	s, err := NewScorer(cfg, e, testLog())
	require.NoError(t, err)

	chart := &fakeChart{lastClosed: "STRONG_TREND_BULL"}
	enter, _, _ := s.Score(map[string]interface{}{"rsi": 60.0}, chart)
	assert.True(t, enter)

	chart.lastClosed = "STRONG_TREND_BEAR"
	enter, _, _ = s.Score(map[string]interface{}{"rsi": 60.0}, chart)
	assert.False(t, enter)
}
