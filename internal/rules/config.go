package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"paper-trading-bot/internal/logging"
)

// IndicatorDef describes one indicator the rule configuration expects
// the indicator engine to provide.
type IndicatorDef struct {
	Type   string             `json:"type"`
	Source string             `json:"source,omitempty"`
	Period int                `json:"period,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// RegimeThresholds carries the regime classification knobs a strategy
// file may override.
type RegimeThresholds struct {
	ADXTrend float64 `json:"adx_trend"`
	ADXRange float64 `json:"adx_range"`
}

// ruleFile is the on-disk shape shared by both sources.
type ruleFile struct {
	Indicators      map[string]IndicatorDef `json:"indicators"`
	Regime          *RegimeThresholds       `json:"regime"`
	EntryExpression string                  `json:"entry_expression"`
}

// RuleConfig is the merged rule configuration. EntryEnabled is false
// when no source supplied an entry expression; that disables entry
// evaluation permanently for this configuration rather than defaulting
// to permissive.
type RuleConfig struct {
	Indicators      map[string]IndicatorDef
	Regime          RegimeThresholds
	EntryExpression string
	EntryEnabled    bool
}

// LoadRuleConfig reads and merges up to two optional JSON sources. The
// strategy file carries regime thresholds and the entry expression;
// the indicators file carries indicator definitions and wins on key
// collision. A missing path is skipped, a present but unreadable or
// malformed file is an error.
func LoadRuleConfig(strategyPath, indicatorsPath string) (*RuleConfig, error) {
	cfg := &RuleConfig{
		Indicators: make(map[string]IndicatorDef),
	}

	for _, src := range []struct {
		path string
		name string
	}{
		{strategyPath, "strategy"},
		{indicatorsPath, "indicators"},
	} {
		if src.path == "" {
			continue
		}
		raw, err := os.ReadFile(src.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s file %s: %w", src.name, src.path, err)
		}
		var file ruleFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s file %s: %w", src.name, src.path, err)
		}
		for name, def := range file.Indicators {
			cfg.Indicators[name] = def
		}
		if file.Regime != nil {
			cfg.Regime = *file.Regime
		}
		if file.EntryExpression != "" {
			cfg.EntryExpression = file.EntryExpression
			cfg.EntryEnabled = true
		}
	}
	return cfg, nil
}

// Reason codes the scorer emits. Observability only, never fed back
// into the decision.
const (
	ReasonEntryDisabled = "ENTRY_DISABLED"
	ReasonExprTrue      = "EXPR_TRUE"
	ReasonExprFalse     = "EXPR_FALSE"
	ReasonEvalError     = "EVAL_ERROR"
	reasonMissingPrefix = "MISSING_VAR:"
)

// Scorer evaluates the configured entry expression against fresh
// contexts. Construction test-evaluates once against a synthetic
// context so invalid syntax surfaces immediately.
type Scorer struct {
	engine  *Engine
	program *Program
	enabled bool
	log     *logging.Logger
}

// NewScorer validates the configuration's entry expression. A compile
// error is returned as is; evaluation errors against the synthetic
// context are expected (real variables are absent) and ignored.
func NewScorer(cfg *RuleConfig, engine *Engine, log *logging.Logger) (*Scorer, error) {
	s := &Scorer{engine: engine, log: log.WithComponent("rule_scorer")}
	if cfg == nil || !cfg.EntryEnabled {
		s.log.Warn("no entry expression configured, entry scoring disabled")
		return s, nil
	}
	program, err := engine.Compile(cfg.EntryExpression)
	if err != nil {
		return nil, fmt.Errorf("entry expression: %w", err)
	}
	// A type mismatch against all-zero inputs is tolerable; only syntax
	// problems are fatal and Compile already surfaced those.
	if _, err := engine.Run(program, syntheticContext(program)); err != nil {
		s.log.Warn("entry expression rejected synthetic input",
			"expression", program.Text, "error", err.Error())
	}
	s.program = program
	s.enabled = true
	return s, nil
}

// syntheticContext binds every referenced variable to zero so the
// validation run exercises the whole expression.
func syntheticContext(program *Program) *Context {
	ctx := NewContext()
	for _, name := range program.Vars() {
		ctx.Set(name, 0.0)
	}
	return ctx
}

// Enabled reports whether an entry expression is active.
func (s *Scorer) Enabled() bool {
	return s.enabled
}

// Score builds a fresh context from the variables and evaluates the
// entry expression. The score is binary. Reason codes are heuristic
// diagnostics.
func (s *Scorer) Score(vars map[string]interface{}, chart ChartState) (bool, int, []string) {
	if !s.enabled {
		return false, 0, []string{ReasonEntryDisabled}
	}

	ctx := NewContext().SetAll(vars).WithChart(chart)

	var reasons []string
	for _, name := range s.program.Vars() {
		if _, ok := ctx.Get(name); !ok {
			reasons = append(reasons, reasonMissingPrefix+name)
		}
	}
	sort.Strings(reasons)

	v, err := s.engine.Run(s.program, ctx)
	if err != nil {
		s.log.Warn("entry expression evaluation failed",
			"expression", s.program.Text, "error", err.Error())
		return false, 0, append(reasons, ReasonEvalError)
	}

	if v.AsBool() {
		return true, 1, append(reasons, ReasonExprTrue)
	}
	return false, 0, append(reasons, ReasonExprFalse)
}

// Describe summarizes the scorer for status endpoints.
func (s *Scorer) Describe() string {
	if !s.enabled {
		return "disabled"
	}
	text := s.program.Text
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	return strings.TrimSpace(text)
}
