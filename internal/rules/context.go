package rules

import "time"

// ChartState exposes regime information from whichever collaborator
// owns the chart. Both methods may return "" when the state is not
// known yet.
type ChartState interface {
	CurrentRegime() string
	LastClosedRegime() string
}

// RegimeRecomputer is an optional capability of a ChartState that can
// force a fresh regime computation.
type RegimeRecomputer interface {
	TriggerRegimeAnalysis() bool
}

// StaticChart is a fixed ChartState for callers that already hold the
// regime labels as plain strings.
type StaticChart struct {
	Current    string
	LastClosed string
}

func (c StaticChart) CurrentRegime() string    { return c.Current }
func (c StaticChart) LastClosedRegime() string { return c.LastClosed }

// Context is the variable environment for one evaluation. It is built
// fresh per call and never shared, so builtins read it without locks.
type Context struct {
	vars  map[string]Value
	chart ChartState
	now   func() time.Time
}

// NewContext creates an empty evaluation context.
func NewContext() *Context {
	return &Context{vars: make(map[string]Value), now: time.Now}
}

// WithChart attaches the chart-state collaborator used by the regime
// builtins.
func (c *Context) WithChart(chart ChartState) *Context {
	c.chart = chart
	return c
}

// Set normalizes and stores a variable. Dotted names act as namespaces
// at lookup time but are stored flat.
func (c *Context) Set(name string, v interface{}) *Context {
	c.vars[name] = From(v)
	return c
}

// SetAll normalizes and stores a batch of variables.
func (c *Context) SetAll(vars map[string]interface{}) *Context {
	for name, v := range vars {
		c.vars[name] = From(v)
	}
	return c
}

// Get resolves a variable. A dotted name that has no flat entry falls
// back to field access on the map value stored under its head segment.
func (c *Context) Get(name string) (Value, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	head, rest, dotted := cutDot(name)
	if !dotted {
		return Null, false
	}
	v, ok := c.vars[head]
	for ok && rest != "" {
		var field string
		field, rest, _ = cutDot(rest)
		v, ok = v.Field(field)
	}
	if !ok {
		return Null, false
	}
	return v, true
}

func cutDot(s string) (head, rest string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
