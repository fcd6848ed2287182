package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/signal"
)

type scriptedCompleter struct {
	responses []string
	calls     int
	systems   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, system, _ string) (string, error) {
	if c.calls >= len(c.responses) {
		return "", fmt.Errorf("unexpected call %d", c.calls)
	}
	c.systems = append(c.systems, system)
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func newTestValidator(client completer) *LLMValidator {
	return &LLMValidator{
		client:            client,
		minConfidence:     0.6,
		deepPassThreshold: 0.75,
		log:               logging.New(&logging.Config{Level: "error", JSONFormat: true}).WithComponent("ai"),
	}
}

func testSignal() *signal.TradeSignal {
	return &signal.TradeSignal{
		Direction: signal.DirectionLong,
		Score:     4,
		Strength:  signal.StrengthModerate,
		Regime:    signal.RegimeStrongTrendBull,
		Price:     100,
	}
}

func TestValidateConfidentApproval(t *testing.T) {
	client := &scriptedCompleter{responses: []string{
		`{"approved": true, "confidence": 0.9, "reason": "clean trend"}`,
	}}
	v := newTestValidator(client)

	verdict, err := v.Validate(context.Background(), testSignal(), nil)
	require.NoError(t, err)
	assert.True(t, verdict.Approved)
	assert.False(t, verdict.DeepPass)
	assert.Equal(t, 1, client.calls)
}

func TestValidateAmbiguousEscalatesToDeepPass(t *testing.T) {
	client := &scriptedCompleter{responses: []string{
		`{"approved": true, "confidence": 0.65, "reason": "borderline"}`,
		`{"approved": false, "confidence": 0.8, "reason": "momentum fading"}`,
	}}
	v := newTestValidator(client)

	verdict, err := v.Validate(context.Background(), testSignal(), nil)
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.True(t, verdict.DeepPass)
	assert.Equal(t, "momentum fading", verdict.Reason)
	assert.Equal(t, 2, client.calls)
	assert.NotEqual(t, client.systems[0], client.systems[1])
}

func TestValidateLowConfidenceIsVeto(t *testing.T) {
	client := &scriptedCompleter{responses: []string{
		`{"approved": true, "confidence": 0.3, "reason": "weak setup"}`,
	}}
	v := newTestValidator(client)

	verdict, err := v.Validate(context.Background(), testSignal(), nil)
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, 1, client.calls) // below the ambiguous band, no deep pass
}

func TestParseVerdictToleratesProse(t *testing.T) {
	verdict, err := parseVerdict("Sure, here is my analysis:\n" +
		`{"approved": true, "confidence": 0.8, "reason": "ok"}` + "\nGood luck!")
	require.NoError(t, err)
	assert.True(t, verdict.Approved)
	assert.Equal(t, 0.8, verdict.Confidence)
}

func TestParseVerdictRejectsGarbage(t *testing.T) {
	_, err := parseVerdict("no json here")
	assert.Error(t, err)

	_, err = parseVerdict(`{"approved": true, "confidence": 7}`)
	assert.Error(t, err)
}
