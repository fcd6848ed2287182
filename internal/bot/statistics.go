package bot

import (
	"sync"
	"time"
)

// StatisticsSnapshot is the exported view of the current UTC-day counters.
type StatisticsSnapshot struct {
	Day              time.Time `json:"day"`
	SignalsGenerated int       `json:"signals_generated"`
	SignalsRejected  int       `json:"signals_rejected"`
	TradesOpened     int       `json:"trades_opened"`
	TradesClosed     int       `json:"trades_closed"`
	Wins             int       `json:"wins"`
	Losses           int       `json:"losses"`
	TotalPnL         float64   `json:"total_pnl"`
	PeakPnL          float64   `json:"peak_pnl"`
	MaxDrawdown      float64   `json:"max_drawdown"`
}

// statistics accumulates per-day engine counters. The window resets when
// the UTC day rolls over, matching the risk manager's daily stats.
type statistics struct {
	mu   sync.Mutex
	snap StatisticsSnapshot
	now  func() time.Time
}

func newStatistics() *statistics {
	s := &statistics{now: time.Now}
	s.snap.Day = s.today()
	return s
}

func (s *statistics) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// rollover must be called with the lock held.
func (s *statistics) rollover() {
	today := s.today()
	if today.After(s.snap.Day) {
		s.snap = StatisticsSnapshot{Day: today}
	}
}

func (s *statistics) recordSignal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.snap.SignalsGenerated++
}

func (s *statistics) recordRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.snap.SignalsRejected++
}

func (s *statistics) recordOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.snap.TradesOpened++
}

func (s *statistics) recordClose(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.snap.TradesClosed++
	if pnl >= 0 {
		s.snap.Wins++
	} else {
		s.snap.Losses++
	}
	s.snap.TotalPnL += pnl
	if s.snap.TotalPnL > s.snap.PeakPnL {
		s.snap.PeakPnL = s.snap.TotalPnL
	}
	if dd := s.snap.PeakPnL - s.snap.TotalPnL; dd > s.snap.MaxDrawdown {
		s.snap.MaxDrawdown = dd
	}
}

func (s *statistics) snapshot() StatisticsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	return s.snap
}
