// Package tradelog records opened and closed trades for later
// analysis. The memory recorder is the default; Postgres is used when
// a database URL is configured.
package tradelog

import (
	"context"
	"time"

	"paper-trading-bot/internal/broker"
)

// Status of a logged trade.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Entry is one trade record. Created at open, finalized at close.
type Entry struct {
	ID         int64                  `json:"id"`
	Symbol     string                 `json:"symbol"`
	Side       broker.Side            `json:"side"`
	Quantity   float64                `json:"quantity"`
	EntryPrice float64                `json:"entry_price"`
	EntryTime  time.Time              `json:"entry_time"`
	StopLoss   float64                `json:"stop_loss"`
	TakeProfit float64                `json:"take_profit"`
	ExitPrice  float64                `json:"exit_price,omitempty"`
	ExitTime   time.Time              `json:"exit_time,omitempty"`
	ExitReason string                 `json:"exit_reason,omitempty"`
	Fees       float64                `json:"fees"`
	PnL        float64                `json:"pnl"`
	Status     string                 `json:"status"`
	Indicators map[string]float64     `json:"indicators,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Recorder persists trade entries.
type Recorder interface {
	Open(ctx context.Context, entry *Entry) error
	Close(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
