package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"paper-trading-bot/internal/logging"
)

// PaperBroker simulates order execution against a mark price. Market orders
// fill immediately at the mark; limit orders fill at the limit price. A flat
// taker fee is charged per fill and deducted from cash.
type PaperBroker struct {
	mu         sync.Mutex
	cash       float64
	feePercent float64
	markPrices map[string]float64
	connected  bool
	log        *logging.Logger
}

// NewPaperBroker creates a simulated broker with a starting cash balance.
func NewPaperBroker(startingCash, feePercent float64, log *logging.Logger) *PaperBroker {
	return &PaperBroker{
		cash:       startingCash,
		feePercent: feePercent,
		markPrices: make(map[string]float64),
		log:        log.WithComponent("paper-broker"),
	}
}

// Paper always reports true; this adapter never routes real orders.
func (b *PaperBroker) Paper() bool { return true }

// Connected reports whether Connect has been called.
func (b *PaperBroker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Connect marks the simulated session as open.
func (b *PaperBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.log.Info("paper session opened", "cash", b.cash)
	return nil
}

// SetMarkPrice updates the simulated fill price for a symbol.
func (b *PaperBroker) SetMarkPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markPrices[symbol] = price
}

// PlaceOrder fills the order against the current mark price.
func (b *PaperBroker) PlaceOrder(_ context.Context, req OrderRequest) (*OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, fmt.Errorf("paper broker not connected")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %.8f", req.Quantity)
	}

	fillPrice := b.markPrices[req.Symbol]
	if req.Type == OrderLimit && req.LimitPrice > 0 {
		fillPrice = req.LimitPrice
	}
	if fillPrice <= 0 {
		return nil, fmt.Errorf("no mark price for %s", req.Symbol)
	}

	notional := fillPrice * req.Quantity
	fee := notional * b.feePercent / 100
	if fee > b.cash {
		return nil, fmt.Errorf("insufficient cash for fees: need %.2f, have %.2f", fee, b.cash)
	}
	if req.Side == SideBuy && notional+fee > b.cash {
		return nil, fmt.Errorf("insufficient cash: order notional %.2f exceeds balance %.2f", notional+fee, b.cash)
	}
	b.cash -= fee

	resp := &OrderResponse{
		OrderID:   uuid.New().String(),
		Status:    "FILLED",
		FillPrice: fillPrice,
		Fee:       fee,
		FilledAt:  time.Now().UTC(),
	}

	b.log.Info("paper fill",
		"order_id", resp.OrderID,
		"symbol", req.Symbol,
		"side", string(req.Side),
		"quantity", req.Quantity,
		"price", fillPrice,
		"fee", fee,
	)
	return resp, nil
}

// GetBalance returns the simulated cash balance.
func (b *PaperBroker) GetBalance(_ context.Context) (Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Balance{Cash: b.cash}, nil
}

// RecordRealized applies a realized trade result to the cash ledger.
func (b *PaperBroker) RecordRealized(pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash += pnl
}
