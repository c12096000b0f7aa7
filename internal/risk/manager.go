// Package risk screens trading signals against account-level limits and
// tracks realized results.
package risk

import (
	"fmt"
	"log"
	"sync"

	"trading-engine/internal/position"
	"trading-engine/internal/signal"
)

// Manager evaluates signals against the configured limits and keeps
// daily metrics in memory.
type Manager struct {
	mu      sync.RWMutex
	config  Config
	metrics Metrics
}

// NewManager creates a risk manager with the given limits.
func NewManager(cfg Config) *Manager {
	log.Printf("risk: limits max_notional=%.2f daily_trades=%d daily_loss=%.2f",
		cfg.MaxOrderNotional, cfg.MaxDailyTrades, cfg.MaxDailyLoss)
	return &Manager{config: cfg}
}

// Config returns a copy of the active limits.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// EvaluateSignal checks one signal against the limits. openPositions is
// the count of currently held slots in the ledger.
func (m *Manager) EvaluateSignal(sig signal.TradingSignal, openPositions int) Decision {
	m.mu.RLock()
	cfg := m.config
	metrics := m.metrics
	m.mu.RUnlock()

	// Closes always pass: refusing to flatten a position only ever
	// increases risk.
	if sig.Action == signal.ActionClose {
		return Decision{Allowed: true}
	}

	if cfg.MaxDailyTrades > 0 && metrics.DailyTrades >= cfg.MaxDailyTrades {
		return Decision{Reason: fmt.Sprintf("daily trade limit reached: %d/%d", metrics.DailyTrades, cfg.MaxDailyTrades)}
	}
	if cfg.MaxDailyLoss > 0 && metrics.DailyLosses >= cfg.MaxDailyLoss {
		return Decision{Reason: fmt.Sprintf("daily loss limit exceeded: %.2f/%.2f", metrics.DailyLosses, cfg.MaxDailyLoss)}
	}
	if cfg.MaxOpenPositions > 0 && openPositions >= cfg.MaxOpenPositions {
		return Decision{Reason: fmt.Sprintf("open position limit reached: %d/%d", openPositions, cfg.MaxOpenPositions)}
	}

	notional := sig.Quantity * sig.LatestPrice
	if cfg.MinOrderNotional > 0 && notional < cfg.MinOrderNotional {
		return Decision{Reason: fmt.Sprintf("order notional too small: %.2f < %.2f", notional, cfg.MinOrderNotional)}
	}
	if cfg.MaxOrderNotional > 0 && notional > cfg.MaxOrderNotional {
		return Decision{Reason: fmt.Sprintf("order notional too large: %.2f > %.2f", notional, cfg.MaxOrderNotional)}
	}

	return Decision{Allowed: true}
}

// RecordClose folds one realized close into the daily metrics.
func (m *Manager) RecordClose(key position.Key, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.DailyTrades++
	m.metrics.DailyPnL += realizedPnL
	if realizedPnL < 0 {
		m.metrics.DailyLosses += -realizedPnL
	}

	m.metrics.TotalRealizedPnL += realizedPnL
	if m.metrics.TotalRealizedPnL > m.metrics.MaxProfit {
		m.metrics.MaxProfit = m.metrics.TotalRealizedPnL
	}
	if dd := m.metrics.MaxProfit - m.metrics.TotalRealizedPnL; dd > m.metrics.MaxDrawdown {
		m.metrics.MaxDrawdown = dd
	}
}

// RecordOpen counts an admitted open toward the daily trade budget.
func (m *Manager) RecordOpen() {
	m.mu.Lock()
	m.metrics.DailyTrades++
	m.mu.Unlock()
}

// ResetDaily clears the day's counters; call at the daily rollover.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Printf("risk: daily reset, prev pnl=%.2f trades=%d losses=%.2f",
		m.metrics.DailyPnL, m.metrics.DailyTrades, m.metrics.DailyLosses)
	m.metrics.DailyPnL = 0
	m.metrics.DailyTrades = 0
	m.metrics.DailyLosses = 0
}

// Metrics returns a snapshot of current metrics.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}
