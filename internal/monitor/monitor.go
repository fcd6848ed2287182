// Package monitor watches the single open position and raises exit
// requests when a price tick breaches a protective level. The monitor
// never places orders itself; the engine owns execution and feeds the
// monitor through Set, Clear and OnPriceUpdate.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/risk"
)

// Trigger tags the cause of a position exit. Stored with the closed
// trade and matched on by log consumers, so the values are stable.
type Trigger string

const (
	TriggerStopLoss   Trigger = "STOP_LOSS"
	TriggerTakeProfit Trigger = "TAKE_PROFIT"
	TriggerTrailing   Trigger = "TRAILING"
	TriggerSignal     Trigger = "SIGNAL"
	TriggerManual     Trigger = "MANUAL"
	TriggerBotStopped Trigger = "BOT_STOPPED"
)

var (
	ErrSlotOccupied = errors.New("a position is already monitored")
	ErrNoPosition   = errors.New("no position is monitored")
)

// Position is the monitored position snapshot. It serializes as the
// payload of the recovery file, so fields stay flat JSON.
type Position struct {
	Symbol          string      `json:"symbol"`
	Side            broker.Side `json:"side"`
	Quantity        float64     `json:"quantity"`
	EntryPrice      float64     `json:"entry_price"`
	StopLoss        float64     `json:"stop_loss"`
	TakeProfit      float64     `json:"take_profit"`
	TrailingApplied bool        `json:"trailing_applied"`
	OrderID         string      `json:"order_id"`
	OpenedAt        time.Time   `json:"opened_at"`
}

// UnrealizedPnL values the position at the given price, before fees.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == broker.SideBuy {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// ExitRequest asks the engine to close the monitored position.
type ExitRequest struct {
	Trigger Trigger
	Reason  string
	Price   float64
}

// ExitHandler receives exit requests. Called at most once per monitored
// position, off the monitor lock.
type ExitHandler func(pos Position, req ExitRequest)

// Monitor holds the single position slot.
type Monitor struct {
	mu         sync.Mutex
	position   *Position
	exiting    bool
	onExit     ExitHandler
	riskMgr    *risk.Manager
	bus        *events.EventBus
	log        *logging.Logger
	lastPrice  float64
	activation float64
}

// NewMonitor creates a monitor with an empty slot. activationPercent is
// the unrealized profit, in percent of entry, required before trailing
// starts.
func NewMonitor(riskMgr *risk.Manager, activationPercent float64, bus *events.EventBus, log *logging.Logger) *Monitor {
	return &Monitor{
		riskMgr:    riskMgr,
		activation: activationPercent,
		bus:        bus,
		log:        log.WithComponent("monitor"),
	}
}

// SetExitHandler installs the engine callback. Must be called before
// the first price update.
func (m *Monitor) SetExitHandler(h ExitHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = h
}

// Set occupies the slot with a freshly opened position.
func (m *Monitor) Set(pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position != nil {
		return ErrSlotOccupied
	}
	p := pos
	m.position = &p
	m.exiting = false
	m.log.Info("monitoring position",
		"symbol", pos.Symbol,
		"side", string(pos.Side),
		"entry", pos.EntryPrice,
		"stop_loss", pos.StopLoss,
		"take_profit", pos.TakeProfit,
	)
	return nil
}

// Restore occupies the slot from a recovered snapshot. Unlike Set it
// tolerates a stale trailing flag and logs the recovery distinctly.
func (m *Monitor) Restore(pos Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position != nil {
		return ErrSlotOccupied
	}
	p := pos
	m.position = &p
	m.exiting = false
	m.log.Info("restored position from snapshot",
		"symbol", pos.Symbol,
		"side", string(pos.Side),
		"opened_at", pos.OpenedAt,
	)
	return nil
}

// ResetExit re-arms the monitor after a failed close so the next
// trigger can retry. The position stays in the slot.
func (m *Monitor) ResetExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exiting = false
}

// Clear empties the slot after the engine finished closing the position.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = nil
	m.exiting = false
}

// Position returns a copy of the monitored position, if any.
func (m *Monitor) Position() (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return Position{}, false
	}
	return *m.position, true
}

// Active reports whether the slot is occupied.
func (m *Monitor) Active() bool {
	_, ok := m.Position()
	return ok
}

// OnPriceUpdate checks the tick against the protective levels and
// advances the trailing stop. Stop loss wins over take profit when a
// single tick breaches both.
func (m *Monitor) OnPriceUpdate(price, atr float64) {
	m.mu.Lock()
	if m.position == nil || m.exiting {
		m.mu.Unlock()
		return
	}
	m.lastPrice = price
	pos := *m.position

	if breached, trigger, reason := checkLevels(&pos, price); breached {
		m.exiting = true
		handler := m.onExit
		m.mu.Unlock()
		m.dispatch(handler, pos, ExitRequest{Trigger: trigger, Reason: reason, Price: price})
		return
	}

	newStop, updated := m.riskMgr.AdjustTrailingStop(
		price, pos.StopLoss, pos.EntryPrice, pos.Side, atr, m.activation)
	if updated {
		m.position.StopLoss = newStop
		m.position.TrailingApplied = true
		m.mu.Unlock()
		m.log.Info("trailing stop advanced", "symbol", pos.Symbol, "stop_loss", newStop, "price", price)
		if m.bus != nil {
			m.bus.PublishTrailingUpdate(pos.Symbol, newStop, price)
		}
		return
	}
	m.mu.Unlock()
}

// TriggerSignalExit raises an exit for a strategy reversal.
func (m *Monitor) TriggerSignalExit(reason string) error {
	return m.triggerExit(TriggerSignal, reason)
}

// TriggerManualExit raises an operator-requested exit.
func (m *Monitor) TriggerManualExit(reason string) error {
	return m.triggerExit(TriggerManual, reason)
}

// TriggerShutdownExit raises an exit because the bot is stopping with
// close-on-stop enabled.
func (m *Monitor) TriggerShutdownExit() error {
	return m.triggerExit(TriggerBotStopped, "bot stopping")
}

func (m *Monitor) triggerExit(trigger Trigger, reason string) error {
	m.mu.Lock()
	if m.position == nil {
		m.mu.Unlock()
		return ErrNoPosition
	}
	if m.exiting {
		m.mu.Unlock()
		return nil
	}
	m.exiting = true
	pos := *m.position
	price := m.lastPrice
	handler := m.onExit
	m.mu.Unlock()

	if price <= 0 {
		price = pos.EntryPrice
	}
	m.dispatch(handler, pos, ExitRequest{Trigger: trigger, Reason: reason, Price: price})
	return nil
}

func (m *Monitor) dispatch(handler ExitHandler, pos Position, req ExitRequest) {
	m.log.Info("exit requested",
		"symbol", pos.Symbol,
		"trigger", string(req.Trigger),
		"reason", req.Reason,
		"price", req.Price,
	)
	if handler == nil {
		m.log.Error("no exit handler installed, position stays open", "symbol", pos.Symbol)
		return
	}
	handler(pos, req)
}

func checkLevels(pos *Position, price float64) (bool, Trigger, string) {
	if pos.Side == broker.SideBuy {
		if price <= pos.StopLoss {
			return true, stopTrigger(pos), fmt.Sprintf("price %.8g breached stop %.8g", price, pos.StopLoss)
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return true, TriggerTakeProfit, fmt.Sprintf("price %.8g reached target %.8g", price, pos.TakeProfit)
		}
		return false, "", ""
	}
	if price >= pos.StopLoss {
		return true, stopTrigger(pos), fmt.Sprintf("price %.8g breached stop %.8g", price, pos.StopLoss)
	}
	if pos.TakeProfit > 0 && price <= pos.TakeProfit {
		return true, TriggerTakeProfit, fmt.Sprintf("price %.8g reached target %.8g", price, pos.TakeProfit)
	}
	return false, "", ""
}

// stopTrigger distinguishes a stop that the trailing logic has moved
// from the original protective stop.
func stopTrigger(pos *Position) Trigger {
	if pos.TrailingApplied {
		return TriggerTrailing
	}
	return TriggerStopLoss
}
