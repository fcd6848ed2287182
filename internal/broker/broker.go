// Package broker defines the execution adapter interface and its simulated
// implementation. Only paper-flagged adapters may be wired into the engine;
// the construction gate in EnsurePaper enforces that no code path can ever
// route a real order.
package broker

import (
	"context"
	"errors"
	"time"
)

// Side is an order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the reverse side, used to close a position.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is an order type
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderRequest describes an order to place
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
}

// OrderResponse describes a placed order
type OrderResponse struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	FillPrice float64   `json:"fill_price"`
	Fee       float64   `json:"fee"`
	FilledAt  time.Time `json:"filled_at"`
}

// Balance is the account cash balance
type Balance struct {
	Cash float64 `json:"cash"`
}

// Broker is the execution adapter consumed by the engine.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	GetBalance(ctx context.Context) (Balance, error)
	Connected() bool
	Connect(ctx context.Context) error
	// Paper reports whether the adapter is simulation-only. The engine
	// refuses construction with any adapter returning false.
	Paper() bool
}

// ErrNotPaperBroker is returned when a non-paper adapter is offered to the
// engine at construction time.
var ErrNotPaperBroker = errors.New("broker is not paper-flagged; live trading is not supported")

// EnsurePaper is the construction-time safety gate.
func EnsurePaper(b Broker) error {
	if b == nil {
		return errors.New("broker is nil")
	}
	if !b.Paper() {
		return ErrNotPaperBroker
	}
	return nil
}
