package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/signal"
)

// Verdict is the validator's decision on one signal.
type Verdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	DeepPass   bool    `json:"deep_pass"` // Whether the deep pass was consulted
}

// Validator decides whether a generated signal should be traded.
type Validator interface {
	Validate(ctx context.Context, sig *signal.TradeSignal, indicators map[string]float64) (*Verdict, error)
}

// completer is the narrow client surface the validator needs.
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMValidator runs a quick pass and escalates to a deep pass when the
// quick confidence lands in the ambiguous band between minConfidence
// and deepPassThreshold.
type LLMValidator struct {
	client            completer
	minConfidence     float64
	deepPassThreshold float64
	log               *logging.Logger
}

// NewLLMValidator builds a validator from configuration.
func NewLLMValidator(cfg config.AIConfig, apiKey string, log *logging.Logger) *LLMValidator {
	client := NewClient(ClientConfig{
		Provider: Provider(cfg.Provider),
		APIKey:   apiKey,
		Model:    cfg.Model,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	return &LLMValidator{
		client:            client,
		minConfidence:     cfg.MinConfidence,
		deepPassThreshold: cfg.DeepPassThreshold,
		log:               log.WithComponent("ai"),
	}
}

const quickSystemPrompt = `You are a trading signal reviewer for a paper-trading bot.
Given a signal summary, answer ONLY with a JSON object:
{"approved": true|false, "confidence": 0.0-1.0, "reason": "one sentence"}`

const deepSystemPrompt = `You are a senior trading signal reviewer for a paper-trading bot.
Analyze the signal and indicator readings carefully: trend alignment, momentum,
volatility and any contradiction between conditions. Answer ONLY with a JSON object:
{"approved": true|false, "confidence": 0.0-1.0, "reason": "one sentence"}`

type modelVerdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Validate runs the quick pass and, on ambiguous confidence, the deep
// pass. The deep pass verdict wins. A confidence below minConfidence
// is a veto even when the model approved.
func (v *LLMValidator) Validate(ctx context.Context, sig *signal.TradeSignal, indicators map[string]float64) (*Verdict, error) {
	prompt, err := buildPrompt(sig, indicators)
	if err != nil {
		return nil, err
	}

	quick, err := v.ask(ctx, quickSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("quick pass: %w", err)
	}

	verdict := &Verdict{
		Approved:   quick.Approved,
		Confidence: quick.Confidence,
		Reason:     quick.Reason,
	}

	ambiguous := quick.Confidence >= v.minConfidence && quick.Confidence < v.deepPassThreshold
	if ambiguous {
		v.log.Info("quick pass ambiguous, escalating",
			"confidence", quick.Confidence, "threshold", v.deepPassThreshold)
		deep, err := v.ask(ctx, deepSystemPrompt, prompt)
		if err != nil {
			return nil, fmt.Errorf("deep pass: %w", err)
		}
		verdict = &Verdict{
			Approved:   deep.Approved,
			Confidence: deep.Confidence,
			Reason:     deep.Reason,
			DeepPass:   true,
		}
	}

	if verdict.Confidence < v.minConfidence {
		verdict.Approved = false
		if verdict.Reason == "" {
			verdict.Reason = "confidence below minimum"
		}
	}

	v.log.Info("signal validated",
		"approved", verdict.Approved,
		"confidence", verdict.Confidence,
		"deep_pass", verdict.DeepPass,
		"reason", verdict.Reason,
	)
	return verdict, nil
}

func (v *LLMValidator) ask(ctx context.Context, system, prompt string) (*modelVerdict, error) {
	raw, err := v.client.Complete(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	return parseVerdict(raw)
}

// parseVerdict tolerates prose around the JSON object.
func parseVerdict(raw string) (*modelVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %q", truncate(raw, 120))
	}
	var verdict modelVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("confidence %g out of range [0,1]", verdict.Confidence)
	}
	return &verdict, nil
}

func buildPrompt(sig *signal.TradeSignal, indicators map[string]float64) (string, error) {
	payload := map[string]interface{}{
		"direction":         sig.Direction,
		"score":             sig.Score,
		"strength":          sig.Strength,
		"conditions_met":    sig.ConditionsMet,
		"conditions_failed": sig.ConditionsFailed,
		"regime":            sig.Regime,
		"price":             sig.Price,
		"indicators":        indicators,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal signal: %w", err)
	}
	return "Review this trade signal:\n" + string(raw), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
