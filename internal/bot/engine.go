// Package bot is the decision engine: a single-position state machine that
// schedules analysis cycles, turns signals into simulated orders and reacts
// to exit requests from the position monitor.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/ai"
	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/monitor"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/rules"
	"paper-trading-bot/internal/signal"
	"paper-trading-bot/internal/state"
	"paper-trading-bot/internal/tradelog"
)

// State labels the engine lifecycle. The values are stable: they appear in
// events, the status API and the recovery document.
type State string

const (
	StateIdle            State = "IDLE"
	StateStarting        State = "STARTING"
	StateAnalyzing       State = "ANALYZING"
	StateWaitingSignal   State = "WAITING_SIGNAL"
	StateValidating      State = "VALIDATING"
	StateOpeningPosition State = "OPENING_POSITION"
	StateInPosition      State = "IN_POSITION"
	StateClosingPosition State = "CLOSING_POSITION"
	StateStopping        State = "STOPPING"
	StateError           State = "ERROR"
)

var (
	ErrAlreadyRunning = errors.New("engine is already running")
	ErrNotRunning     = errors.New("engine is not running")
)

// realizedLedger is implemented by brokers that track simulated cash.
type realizedLedger interface {
	RecordRealized(pnl float64)
}

// Deps are the engine collaborators. Validator and Scorer are optional;
// everything else is required.
type Deps struct {
	Broker     broker.Broker
	Source     market.DataSource
	Indicators market.IndicatorEngine
	Signals    *signal.Generator
	Risk       *risk.Manager
	Monitor    *monitor.Monitor
	Validator  ai.Validator
	Scorer     *rules.Scorer
	Store      state.PositionStore
	Trades     tradelog.Recorder
	Bus        *events.EventBus
}

// Engine drives the trading loop.
type Engine struct {
	cfg  *config.Config
	deps Deps
	log  *logging.Logger

	mu          sync.Mutex
	state       State
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastATR     float64
	openTradeID int64
	history     []*signal.TradeSignal

	stats *statistics
}

// NewEngine validates the collaborators and builds an idle engine. A broker
// that is not paper-flagged fails construction.
func NewEngine(cfg *config.Config, deps Deps, log *logging.Logger) (*Engine, error) {
	if err := broker.EnsurePaper(deps.Broker); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Indicators == nil || deps.Signals == nil ||
		deps.Risk == nil || deps.Monitor == nil || deps.Store == nil ||
		deps.Trades == nil || deps.Bus == nil {
		return nil, errors.New("missing engine dependency")
	}

	e := &Engine{
		cfg:   cfg,
		deps:  deps,
		log:   log.WithComponent("engine"),
		state: StateIdle,
		stats: newStatistics(),
	}
	deps.Monitor.SetExitHandler(e.handleExit)
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Running reports whether the analysis loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev != s {
		e.log.Info("state changed", "from", string(prev), "to", string(s))
		e.deps.Bus.PublishStateChanged(string(prev), string(s))
	}
}

// Start connects the broker, restores a persisted position if one exists
// and launches the analysis loop. A startup failure leaves the engine in
// the ERROR state.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	e.setState(StateStarting)

	if err := e.startup(ctx); err != nil {
		e.setState(StateError)
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.deps.Bus.PublishError("engine", "startup failed", err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.runLoop(loopCtx, done)

	e.deps.Bus.Publish(events.Event{
		Type: events.EventBotStarted,
		Data: map[string]interface{}{"symbol": e.cfg.BotConfig.Symbol},
	})
	e.log.Info("engine started", "symbol", e.cfg.BotConfig.Symbol, "timeframe", e.cfg.BotConfig.Timeframe)
	return nil
}

func (e *Engine) startup(ctx context.Context) error {
	if !e.deps.Broker.Connected() {
		if err := e.deps.Broker.Connect(ctx); err != nil {
			return fmt.Errorf("broker connect: %w", err)
		}
	}

	snap, err := e.deps.Store.Load(ctx)
	switch {
	case err == nil:
		if err := e.deps.Monitor.Restore(snap.Position); err != nil {
			return fmt.Errorf("restore position: %w", err)
		}
		e.setState(StateInPosition)
		e.log.Info("recovered open position",
			"symbol", snap.Position.Symbol,
			"side", string(snap.Position.Side),
			"saved_at", snap.SavedAt,
		)
	case errors.Is(err, state.ErrNoSnapshot):
		e.setState(StateAnalyzing)
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// Stop halts the analysis loop. With closePosition the monitored position
// is closed with the BOT_STOPPED trigger; otherwise it is persisted for
// recovery on the next start.
func (e *Engine) Stop(ctx context.Context, closePosition bool) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.setState(StateStopping)
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if _, ok := e.deps.Monitor.Position(); ok {
		if closePosition {
			if err := e.deps.Monitor.TriggerShutdownExit(); err != nil {
				e.log.Error("shutdown exit failed", "error", err)
			}
		}
		// A failed close leaves the position monitored. Persist whatever
		// is still held so the next start recovers it instead of losing
		// track of an open position.
		if pos, ok := e.deps.Monitor.Position(); ok {
			snap := &state.Snapshot{
				Position: pos,
				State:    string(StateInPosition),
				SavedAt:  time.Now().UTC(),
			}
			if err := e.deps.Store.Save(ctx, snap); err != nil {
				e.log.Error("failed to persist position snapshot", "error", err)
			} else {
				e.log.Info("position persisted for recovery", "symbol", pos.Symbol)
			}
		}
	}

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	e.setState(StateIdle)
	e.deps.Bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{
		"symbol":          e.cfg.BotConfig.Symbol,
		"closed_position": closePosition,
	}})
	e.log.Info("engine stopped", "closed_position", closePosition)
	return nil
}

func (e *Engine) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := time.Duration(e.cfg.BotConfig.AnalysisIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.safeCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeCycle(ctx)
		}
	}
}

// safeCycle isolates a panicking cycle so one bad analysis never kills the
// loop.
func (e *Engine) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("analysis cycle panic", "panic", fmt.Sprintf("%v", r))
			e.deps.Bus.PublishError("engine", "analysis cycle panic", fmt.Errorf("%v", r))
			if e.deps.Monitor.Active() {
				e.setState(StateInPosition)
			} else {
				e.setState(StateWaitingSignal)
			}
		}
	}()
	e.runCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) {
	if e.deps.Monitor.Active() {
		e.setState(StateInPosition)
		e.checkOpenPosition(ctx)
		return
	}

	e.setState(StateAnalyzing)

	data, err := e.fetchData(ctx)
	if err != nil {
		e.log.Warn("market data fetch failed", "error", err)
		e.setState(StateWaitingSignal)
		return
	}
	if data.Empty() {
		e.log.Debug("no market data available")
		e.setState(StateWaitingSignal)
		return
	}

	regime := signal.DetectRegime(data, e.cfg.SignalConfig.ADXTrendThreshold)
	sig := e.deps.Signals.Generate(data, regime)
	e.recordSignal(sig)

	if !sig.Valid() {
		e.setState(StateWaitingSignal)
		return
	}
	e.deps.Bus.PublishSignal(e.cfg.BotConfig.Symbol, string(sig.Direction), string(sig.Strength), sig.Score, sig.ConditionsMet)

	if !e.passRules(data, sig, regime) {
		e.setState(StateWaitingSignal)
		return
	}
	if !e.passValidation(ctx, data, sig) {
		e.setState(StateWaitingSignal)
		return
	}

	e.setState(StateOpeningPosition)
	opened, err := e.openPosition(ctx, data, sig)
	if err != nil {
		e.log.Error("failed to open position", "error", err)
		e.deps.Bus.PublishError("engine", "open position failed", err)
		e.setState(StateWaitingSignal)
		return
	}
	if !opened {
		e.setState(StateWaitingSignal)
		return
	}
	e.setState(StateInPosition)
}

// checkOpenPosition refreshes indicators for the exit-signal check while a
// position is monitored. Level breaches are handled tick-by-tick in OnTick.
func (e *Engine) checkOpenPosition(ctx context.Context) {
	pos, ok := e.deps.Monitor.Position()
	if !ok {
		return
	}

	data, err := e.fetchData(ctx)
	if err != nil || data.Empty() {
		return
	}

	if exit, reason := e.deps.Signals.CheckExitSignal(data, pos.Side); exit {
		if err := e.deps.Monitor.TriggerSignalExit(reason); err != nil && !errors.Is(err, monitor.ErrNoPosition) {
			e.log.Error("signal exit failed", "error", err)
		}
	}
}

func (e *Engine) fetchData(ctx context.Context) (*market.Data, error) {
	tf := market.TimeframeDuration(e.cfg.BotConfig.Timeframe)
	limit := e.cfg.MarketConfig.KlineLimit
	if limit <= 0 {
		limit = 200
	}
	end := time.Now().UTC()
	start := end.Add(-tf * time.Duration(limit))

	candles, source, err := e.deps.Source.Fetch(ctx, e.cfg.BotConfig.Symbol, start, end, e.cfg.BotConfig.Timeframe)
	if err != nil {
		return nil, err
	}
	data := &market.Data{
		Symbol:    e.cfg.BotConfig.Symbol,
		Timeframe: e.cfg.BotConfig.Timeframe,
		Candles:   candles,
		Source:    source,
	}
	if len(candles) == 0 {
		return data, nil
	}

	indicators, err := e.deps.Indicators.Compute(candles)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}
	data.Indicators = indicators

	if atr, ok := data.LastIndicator(market.SeriesATR); ok {
		e.mu.Lock()
		e.lastATR = atr
		e.mu.Unlock()
	}
	return data, nil
}

// passRules applies the optional expression-rule gate.
func (e *Engine) passRules(data *market.Data, sig *signal.TradeSignal, regime string) bool {
	if e.deps.Scorer == nil || !e.deps.Scorer.Enabled() {
		return true
	}

	vars := make(map[string]interface{})
	for name, v := range e.deps.Signals.ExtractIndicatorSnapshot(data) {
		vars[name] = v
	}
	vars["close"] = sig.Price
	vars["direction"] = string(sig.Direction)
	vars["score"] = sig.Score

	ok, _, reasons := e.deps.Scorer.Score(vars, rules.StaticChart{Current: regime})
	if !ok {
		e.rejectSignal(fmt.Sprintf("rule gate: %v", reasons))
		return false
	}
	return true
}

// passValidation applies the optional AI gate. A validation error is
// treated as a rejection so a degraded validator never lets trades through.
func (e *Engine) passValidation(ctx context.Context, data *market.Data, sig *signal.TradeSignal) bool {
	if e.deps.Validator == nil {
		return true
	}
	e.setState(StateValidating)

	verdict, err := e.deps.Validator.Validate(ctx, sig, e.deps.Signals.ExtractIndicatorSnapshot(data))
	if err != nil {
		e.rejectSignal(fmt.Sprintf("validation error: %v", err))
		return false
	}
	if !verdict.Approved {
		e.rejectSignal(fmt.Sprintf("vetoed: %s (confidence %.2f)", verdict.Reason, verdict.Confidence))
		return false
	}
	return true
}

func (e *Engine) rejectSignal(reason string) {
	e.stats.recordRejection()
	e.deps.Bus.PublishSignalRejected(e.cfg.BotConfig.Symbol, reason)
	e.log.Info("signal rejected", "reason", reason)
}

// openPosition sizes, validates and places the entry order. It reports
// whether a position was actually opened: a risk rejection is a clean
// no-trade outcome, not an error.
func (e *Engine) openPosition(ctx context.Context, data *market.Data, sig *signal.TradeSignal) (bool, error) {
	side := broker.SideBuy
	if sig.Direction == signal.DirectionShort {
		side = broker.SideSell
	}

	balance, err := e.deps.Broker.GetBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("get balance: %w", err)
	}

	e.mu.Lock()
	atr := e.lastATR
	e.mu.Unlock()

	approved, reason, calc := e.deps.Risk.ValidateTrade(balance.Cash, sig.Price, side, atr)
	if !approved {
		e.rejectSignal("risk: " + reason)
		return false, nil
	}

	resp, err := e.deps.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     e.cfg.BotConfig.Symbol,
		Side:       side,
		Type:       broker.OrderMarket,
		Quantity:   calc.Quantity,
		StopLoss:   calc.StopLoss,
		TakeProfit: calc.TakeProfit,
	})
	if err != nil {
		return false, fmt.Errorf("place order: %w", err)
	}

	entry := &tradelog.Entry{
		Symbol:     e.cfg.BotConfig.Symbol,
		Side:       side,
		Quantity:   calc.Quantity,
		EntryPrice: resp.FillPrice,
		EntryTime:  resp.FilledAt,
		StopLoss:   calc.StopLoss,
		TakeProfit: calc.TakeProfit,
		Fees:       resp.Fee,
		Status:     tradelog.StatusOpen,
		Indicators: e.deps.Signals.ExtractIndicatorSnapshot(data),
		Context: map[string]interface{}{
			"regime":         sig.Regime,
			"score":          sig.Score,
			"strength":       string(sig.Strength),
			"conditions_met": sig.ConditionsMet,
		},
	}
	if err := e.deps.Trades.Open(ctx, entry); err != nil {
		e.log.Error("failed to record trade open", "error", err)
	}

	pos := monitor.Position{
		Symbol:     e.cfg.BotConfig.Symbol,
		Side:       side,
		Quantity:   calc.Quantity,
		EntryPrice: resp.FillPrice,
		StopLoss:   calc.StopLoss,
		TakeProfit: calc.TakeProfit,
		OrderID:    resp.OrderID,
		OpenedAt:   resp.FilledAt,
	}
	if err := e.deps.Monitor.Set(pos); err != nil {
		return false, fmt.Errorf("monitor position: %w", err)
	}

	snap := &state.Snapshot{Position: pos, State: string(StateInPosition), SavedAt: time.Now().UTC()}
	if err := e.deps.Store.Save(ctx, snap); err != nil {
		e.log.Error("failed to persist position snapshot", "error", err)
	}

	e.mu.Lock()
	e.openTradeID = entry.ID
	e.mu.Unlock()

	e.stats.recordOpen()
	e.deps.Bus.PublishPositionOpened(pos.Symbol, string(side), pos.EntryPrice, pos.Quantity, pos.StopLoss, pos.TakeProfit)
	e.log.Info("position opened",
		"symbol", pos.Symbol,
		"side", string(side),
		"quantity", pos.Quantity,
		"entry", pos.EntryPrice,
		"stop_loss", pos.StopLoss,
		"take_profit", pos.TakeProfit,
	)
	return true, nil
}

// handleExit closes the monitored position in response to an exit request.
// A failed close keeps the position monitored so the next trigger retries.
func (e *Engine) handleExit(pos monitor.Position, req monitor.ExitRequest) {
	e.setState(StateClosingPosition)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := e.deps.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     pos.Side.Opposite(),
		Type:     broker.OrderMarket,
		Quantity: pos.Quantity,
	})
	if err != nil {
		e.log.Error("close order failed, position retained",
			"symbol", pos.Symbol,
			"trigger", string(req.Trigger),
			"error", err,
		)
		e.deps.Bus.PublishError("engine", "close position failed", err)
		e.deps.Monitor.ResetExit()
		e.setState(StateInPosition)
		return
	}

	pnl := pos.UnrealizedPnL(resp.FillPrice) - resp.Fee
	if ledger, ok := e.deps.Broker.(realizedLedger); ok {
		ledger.RecordRealized(pnl)
	}
	e.deps.Risk.RecordTradeResult(pnl)
	e.stats.recordClose(pnl)

	e.mu.Lock()
	tradeID := e.openTradeID
	e.openTradeID = 0
	e.mu.Unlock()

	closeEntry := &tradelog.Entry{
		ID:         tradeID,
		ExitPrice:  resp.FillPrice,
		ExitTime:   resp.FilledAt,
		ExitReason: fmt.Sprintf("%s: %s", req.Trigger, req.Reason),
		Fees:       resp.Fee,
		PnL:        pnl,
		Status:     tradelog.StatusClosed,
	}
	if err := e.deps.Trades.Close(ctx, closeEntry); err != nil {
		e.log.Error("failed to record trade close", "error", err)
	}

	e.deps.Monitor.Clear()
	if err := e.deps.Store.Clear(ctx); err != nil {
		e.log.Error("failed to clear position snapshot", "error", err)
	}

	e.deps.Bus.PublishPositionClosed(pos.Symbol, string(req.Trigger), resp.FillPrice, pnl)
	e.log.Info("position closed",
		"symbol", pos.Symbol,
		"trigger", string(req.Trigger),
		"exit", resp.FillPrice,
		"pnl", pnl,
	)

	if req.Trigger != monitor.TriggerBotStopped {
		e.setState(StateWaitingSignal)
	}
}

// OnTick feeds a streamed price into the position monitor.
func (e *Engine) OnTick(t market.Tick) {
	if t.Symbol != e.cfg.BotConfig.Symbol {
		return
	}
	e.mu.Lock()
	atr := e.lastATR
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	e.deps.Monitor.OnPriceUpdate(t.Price, atr)
}

// ClosePosition requests a manual close of the monitored position.
func (e *Engine) ClosePosition(reason string) error {
	if reason == "" {
		reason = "operator request"
	}
	return e.deps.Monitor.TriggerManualExit(reason)
}

func (e *Engine) recordSignal(sig *signal.TradeSignal) {
	e.stats.recordSignal()

	size := e.cfg.BotConfig.SignalHistorySize
	if size <= 0 {
		size = 100
	}
	e.mu.Lock()
	e.history = append(e.history, sig)
	if len(e.history) > size {
		e.history = e.history[len(e.history)-size:]
	}
	e.mu.Unlock()
}

// SignalHistory returns recent signals, newest first.
func (e *Engine) SignalHistory(limit int) []*signal.TradeSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*signal.TradeSignal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// Status is the engine view exposed over the API.
type Status struct {
	State      State              `json:"state"`
	Running    bool               `json:"running"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Position   *monitor.Position  `json:"position,omitempty"`
	Balance    float64            `json:"balance"`
	Daily      risk.DailyStats    `json:"daily"`
	Statistics StatisticsSnapshot `json:"statistics"`
}

// Status snapshots the engine for the API.
func (e *Engine) Status(ctx context.Context) Status {
	st := Status{
		State:      e.State(),
		Running:    e.Running(),
		Symbol:     e.cfg.BotConfig.Symbol,
		Timeframe:  e.cfg.BotConfig.Timeframe,
		Daily:      e.deps.Risk.Daily(),
		Statistics: e.stats.snapshot(),
	}
	if pos, ok := e.deps.Monitor.Position(); ok {
		st.Position = &pos
	}
	if balance, err := e.deps.Broker.GetBalance(ctx); err == nil {
		st.Balance = balance.Cash
	}
	return st
}
