package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"paper-trading-bot/internal/logging"
)

// TickStream streams trade prices over a websocket connection and forwards
// them to a handler. Ticks arrive independently of the analysis loop cadence.
type TickStream struct {
	streamURL string
	symbol    string
	handler   TickHandler
	log       *logging.Logger
}

// NewTickStream creates a tick stream for one symbol.
func NewTickStream(streamURL, symbol string, handler TickHandler, log *logging.Logger) *TickStream {
	return &TickStream{
		streamURL: streamURL,
		symbol:    symbol,
		handler:   handler,
		log:       log.WithComponent("tick-stream"),
	}
}

// tradeMessage is the subset of the exchange trade stream payload we consume
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Run connects and pumps ticks until the context is cancelled, reconnecting
// with backoff on connection loss.
func (ts *TickStream) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := ts.pump(ctx); err != nil && ctx.Err() == nil {
			ts.log.Warn("stream disconnected, reconnecting", "error", err, "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (ts *TickStream) pump(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/%s@trade", ts.streamURL, strings.ToLower(ts.symbol))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	ts.log.Info("stream connected", "symbol", ts.symbol)

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var trade tradeMessage
		if err := json.Unmarshal(msg, &trade); err != nil {
			continue
		}
		if trade.EventType != "trade" {
			continue
		}
		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		ts.handler(Tick{
			Symbol: trade.Symbol,
			Price:  price,
			Time:   time.UnixMilli(trade.TradeTime),
		})
	}
}
