package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventStateChanged    EventType = "STATE_CHANGED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventTrailingUpdate  EventType = "TRAILING_UPDATE"
	EventRegimeStale     EventType = "REGIME_STALE"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
	EventLogLine         EventType = "LOG_LINE"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Delivery is
// fire-and-forget: each subscriber runs in its own goroutine so a slow
// consumer never stalls the engine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishStateChanged publishes a bot state transition
func (eb *EventBus) PublishStateChanged(from, to string) {
	eb.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, direction, strength string, score int, reasons []string) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"direction": direction,
			"strength":  strength,
			"score":     score,
			"reasons":   reasons,
		},
	})
}

// PublishSignalRejected publishes a signal rejection with its reason
func (eb *EventBus) PublishSignalRejected(symbol, reason string) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"reason": reason,
		},
	})
}

// PublishPositionOpened publishes a position opened event
func (eb *EventBus) PublishPositionOpened(symbol, side string, entryPrice, quantity, stopLoss, takeProfit float64) {
	eb.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"entry_price": entryPrice,
			"quantity":    quantity,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// PublishPositionClosed publishes a position closed event
func (eb *EventBus) PublishPositionClosed(symbol, reason string, exitPrice, pnl float64) {
	eb.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"reason":     reason,
			"exit_price": exitPrice,
			"pnl":        pnl,
		},
	})
}

// PublishTrailingUpdate publishes a trailing stop advancement
func (eb *EventBus) PublishTrailingUpdate(symbol string, newStop, price float64) {
	eb.Publish(Event{
		Type: EventTrailingUpdate,
		Data: map[string]interface{}{
			"symbol":    symbol,
			"stop_loss": newStop,
			"price":     price,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

// PublishLogLine publishes a log line for UI consumers
func (eb *EventBus) PublishLogLine(level, message string) {
	eb.Publish(Event{
		Type: EventLogLine,
		Data: map[string]interface{}{
			"level":   level,
			"message": message,
		},
	})
}

// PublishRegimeStale signals that regime data should be recomputed by
// whichever subscriber owns the chart state.
func (eb *EventBus) PublishRegimeStale(symbol string) {
	eb.Publish(Event{
		Type: EventRegimeStale,
		Data: map[string]interface{}{
			"symbol": symbol,
		},
	})
}
