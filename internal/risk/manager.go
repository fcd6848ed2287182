// Package risk handles stop/target calculation, position sizing, trailing
// stop adjustment and daily loss tracking.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/logging"
)

// Stable rejection reasons. Tests and log consumers match on these exactly.
const (
	ReasonDailyLossLimit  = "daily loss limit reached"
	ReasonInvalidStop     = "stop distance is zero"
	ReasonInvalidBalance  = "balance is not positive"
	ReasonInvalidEntry    = "entry price is not positive"
	ReasonZeroQuantity    = "calculated quantity is zero"
)

// Config holds risk management configuration
type Config struct {
	RiskPercent               float64 // Percentage of balance risked per trade
	MaxPositionSize           float64 // Maximum quantity per position
	DailyLossLimit            float64 // Max realized daily loss before blocking trades
	StopMode                  string  // "percent" or "atr"
	StopLossPercent           float64
	TakeProfitPercent         float64
	ATRMultiplierSL           float64
	ATRMultiplierTP           float64
	PricePrecision            int // Decimal places for SL/TP rounding
	UseTrailingStop           bool
	TrailingStopPercent       float64
	TrailingATRMultiplier     float64
	TrailingActivationPercent float64
}

// Calculation is the result of sizing one trade candidate
type Calculation struct {
	Quantity      float64 `json:"quantity"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	RiskAmount    float64 `json:"risk_amount"`
	PositionValue float64 `json:"position_value"`
	Approved      bool    `json:"approved"`
	Reason        string  `json:"reason,omitempty"`
}

// DailyStats tracks realized results for the current UTC day
type DailyStats struct {
	Day         time.Time `json:"day"`
	RealizedPnL float64   `json:"realized_pnl"`
	PeakPnL     float64   `json:"peak_pnl"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Trades      int       `json:"trades"`
}

// Manager handles position sizing and risk management
type Manager struct {
	mu     sync.RWMutex
	config Config
	daily  DailyStats
	log    *logging.Logger
	now    func() time.Time
}

// NewManager creates a new risk manager
func NewManager(config Config, log *logging.Logger) *Manager {
	m := &Manager{
		config: config,
		log:    log.WithComponent("risk"),
		now:    time.Now,
	}
	m.daily.Day = m.today()
	return m
}

func (m *Manager) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}

// checkDailyReset starts a fresh stats window when the UTC day changed.
// Callers must hold the write lock.
func (m *Manager) checkDailyReset() {
	today := m.today()
	if today.After(m.daily.Day) {
		m.daily = DailyStats{Day: today}
	}
}

// CalculateStopTakeProfit computes protective levels for an entry. In ATR
// mode the distances scale with volatility; when ATR is unavailable it falls
// back to fixed 1%/2% distances. Levels are rounded to price precision.
func (m *Manager) CalculateStopTakeProfit(entry float64, side broker.Side, atr float64) (stop, take float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stopDist, takeDist float64
	switch {
	case m.config.StopMode == "atr" && atr > 0:
		stopDist = atr * m.config.ATRMultiplierSL
		takeDist = atr * m.config.ATRMultiplierTP
	case m.config.StopMode == "atr":
		m.log.Warn("ATR unavailable, falling back to fixed stop distances", "entry", entry)
		stopDist = entry * 0.01
		takeDist = entry * 0.02
	default:
		stopDist = entry * m.config.StopLossPercent / 100
		takeDist = entry * m.config.TakeProfitPercent / 100
	}

	if side == broker.SideBuy {
		stop = entry - stopDist
		take = entry + takeDist
	} else {
		stop = entry + stopDist
		take = entry - takeDist
	}
	return m.round(stop), m.round(take)
}

// CalculatePositionSize sizes a trade so that a stop-out loses riskPercent
// of the balance, capped at the configured maximum position size.
func (m *Manager) CalculatePositionSize(balance, entry, stop, riskPercent float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionSize(balance, entry, stop, riskPercent)
}

func (m *Manager) positionSize(balance, entry, stop, riskPercent float64) float64 {
	if balance <= 0 || entry <= 0 {
		return 0
	}
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit == 0 {
		return 0
	}
	riskAmount := balance * riskPercent / 100
	quantity := riskAmount / riskPerUnit
	if m.config.MaxPositionSize > 0 && quantity > m.config.MaxPositionSize {
		quantity = m.config.MaxPositionSize
	}
	return quantity
}

// ValidateTrade composes sizing and protective levels for a trade candidate
// and applies the daily loss gate. The returned reason strings are stable.
func (m *Manager) ValidateTrade(balance, entry float64, side broker.Side, atr float64) (bool, string, *Calculation) {
	m.mu.Lock()
	m.checkDailyReset()
	lossLimitHit := m.config.DailyLossLimit > 0 && m.daily.RealizedPnL <= -m.config.DailyLossLimit
	m.mu.Unlock()

	if lossLimitHit {
		return false, ReasonDailyLossLimit, nil
	}
	if balance <= 0 {
		return false, ReasonInvalidBalance, nil
	}
	if entry <= 0 {
		return false, ReasonInvalidEntry, nil
	}

	stop, take := m.CalculateStopTakeProfit(entry, side, atr)
	if stop == entry {
		return false, ReasonInvalidStop, nil
	}

	m.mu.RLock()
	quantity := m.positionSize(balance, entry, stop, m.config.RiskPercent)
	riskPercent := m.config.RiskPercent
	m.mu.RUnlock()

	if quantity <= 0 {
		return false, ReasonZeroQuantity, nil
	}

	calc := &Calculation{
		Quantity:      quantity,
		StopLoss:      stop,
		TakeProfit:    take,
		RiskAmount:    balance * riskPercent / 100,
		PositionValue: quantity * entry,
		Approved:      true,
	}

	m.log.Debug("trade validated",
		"balance", balance,
		"entry", entry,
		"side", string(side),
		"quantity", quantity,
		"stop_loss", stop,
		"take_profit", take,
	)
	return true, "", calc
}

// AdjustTrailingStop proposes a new stop for an open position. Trailing only
// activates once unrealized profit reaches activationPercent and the stop
// never loosens: it only rises for longs and only falls for shorts.
func (m *Manager) AdjustTrailingStop(currentPrice, currentStop, entry float64, side broker.Side, atr, activationPercent float64) (newStop float64, updated bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.config.UseTrailingStop || entry <= 0 || currentPrice <= 0 {
		return currentStop, false
	}

	var profitPercent float64
	if side == broker.SideBuy {
		profitPercent = (currentPrice - entry) / entry * 100
	} else {
		profitPercent = (entry - currentPrice) / entry * 100
	}
	if profitPercent < activationPercent {
		return currentStop, false
	}

	var distance float64
	if atr > 0 && m.config.TrailingATRMultiplier > 0 {
		distance = atr * m.config.TrailingATRMultiplier
	} else {
		distance = currentPrice * m.config.TrailingStopPercent / 100
	}

	if side == broker.SideBuy {
		candidate := m.round(currentPrice - distance)
		if candidate > currentStop {
			return candidate, true
		}
	} else {
		candidate := m.round(currentPrice + distance)
		if candidate < currentStop {
			return candidate, true
		}
	}
	return currentStop, false
}

// RecordTradeResult applies a realized trade outcome to the daily window.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkDailyReset()
	m.daily.Trades++
	m.daily.RealizedPnL += pnl
	if m.daily.RealizedPnL > m.daily.PeakPnL {
		m.daily.PeakPnL = m.daily.RealizedPnL
	}
	if dd := m.daily.PeakPnL - m.daily.RealizedPnL; dd > m.daily.MaxDrawdown {
		m.daily.MaxDrawdown = dd
	}
}

// Daily returns a copy of the current UTC-day statistics.
func (m *Manager) Daily() DailyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()
	return m.daily
}

// SetConfig atomically replaces the risk configuration, effective for the
// next calculation.
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

func (m *Manager) round(price float64) float64 {
	factor := math.Pow10(m.config.PricePrecision)
	return math.Round(price*factor) / factor
}

// String summarizes the daily window for diagnostics.
func (d DailyStats) String() string {
	return fmt.Sprintf("day=%s pnl=%.2f peak=%.2f drawdown=%.2f trades=%d",
		d.Day.Format("2006-01-02"), d.RealizedPnL, d.PeakPnL, d.MaxDrawdown, d.Trades)
}
