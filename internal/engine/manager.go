// Package engine wires strategy signals into the order pipeline. The
// manager is the single consumer of the signal queue; everything behind
// it can assume per-key serialization.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"trading-engine/internal/events"
	"trading-engine/internal/order"
	"trading-engine/internal/position"
	"trading-engine/internal/risk"
	"trading-engine/internal/signal"
	"trading-engine/internal/state"
)

var ErrQueueFull = errors.New("signal queue full")

const defaultQueueSize = 1024

// Manager consumes trading signals, screens them, and drives the order
// pipeline.
type Manager struct {
	Pipeline *order.Pipeline
	Ledger   *position.Ledger
	Risk     *risk.Manager
	Halt     *state.HaltLatch
	Bus      *events.Bus

	signals chan signal.TradingSignal

	mu     sync.Mutex
	lastID map[position.Key]uint64
}

// NewManager creates a signal manager over the given pipeline.
// queueSize <= 0 falls back to the default.
func NewManager(p *order.Pipeline, ledger *position.Ledger, rm *risk.Manager, halt *state.HaltLatch, bus *events.Bus, queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Manager{
		Pipeline: p,
		Ledger:   ledger,
		Risk:     rm,
		Halt:     halt,
		Bus:      bus,
		signals:  make(chan signal.TradingSignal, queueSize),
		lastID:   make(map[position.Key]uint64),
	}
}

// Submit enqueues one signal without blocking. Producers get an error
// back instead of stalling when trading is halted or the queue is full.
func (m *Manager) Submit(sig signal.TradingSignal) error {
	if m.Halt.Halted() {
		return order.ErrHalted
	}
	select {
	case m.signals <- sig:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes signals until ctx ends or trading halts.
func (m *Manager) Run(ctx context.Context) {
	log.Printf("engine: signal manager started")
	resetTicker := time.NewTicker(24 * time.Hour)
	defer resetTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("engine: signal manager stopped: %v", ctx.Err())
			return
		case <-m.Halt.Done():
			log.Printf("engine: signal manager stopped: %s", m.Halt.Reason())
			return
		case <-resetTicker.C:
			m.Risk.ResetDaily()
		case sig := <-m.signals:
			m.handle(ctx, sig)
		}
	}
}

func (m *Manager) handle(ctx context.Context, sig signal.TradingSignal) {
	if err := sig.Validate(); err != nil {
		m.reject(sig, err.Error())
		return
	}
	key := sig.Key()

	// Strategies number their signals; anything at or below the last
	// seen ID for the key is a replay.
	if m.isReplay(key, sig.ID) {
		m.reject(sig, "stale signal id")
		return
	}

	if m.Bus != nil {
		m.Bus.Publish(events.EventSignalReceived, events.SignalEvent{
			SignalID: sig.ID, Key: key, At: time.Now(),
		})
	}

	if dec := m.Risk.EvaluateSignal(sig, m.openPositions()); !dec.Allowed {
		m.reject(sig, dec.Reason)
		return
	}

	switch sig.Action {
	case signal.ActionOpen:
		if err := m.Pipeline.ProcessOpen(ctx, sig); err != nil {
			log.Printf("engine: %s failed: %v", sig, err)
			return
		}
		m.Risk.RecordOpen()
		log.Printf("engine: opened %s qty=%v @ %v", key, sig.Quantity, sig.LatestPrice)

	case signal.ActionClose:
		snap, held := m.Ledger.Snapshot(key)
		if err := m.Pipeline.ProcessClose(ctx, sig); err != nil {
			log.Printf("engine: %s failed: %v", sig, err)
			return
		}
		if held {
			closed := sig.Quantity
			if avail := absFloat(snap.Quantity); closed > avail {
				closed = avail
			}
			perUnit := sig.LatestPrice - snap.EntryPrice
			if key.Side == position.SideShort {
				perUnit = snap.EntryPrice - sig.LatestPrice
			}
			m.Risk.RecordClose(key, perUnit*closed)
		}
		log.Printf("engine: closed %s qty=%v @ %v", key, sig.Quantity, sig.LatestPrice)
	}
}

func (m *Manager) isReplay(key position.Key, id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id <= m.lastID[key] {
		return true
	}
	m.lastID[key] = id
	return false
}

func (m *Manager) reject(sig signal.TradingSignal, reason string) {
	log.Printf("engine: rejected %s: %s", sig, reason)
	if m.Bus != nil {
		m.Bus.Publish(events.EventSignalRejected, events.SignalEvent{
			SignalID: sig.ID, Key: sig.Key(), Reason: reason, At: time.Now(),
		})
	}
}

func (m *Manager) openPositions() int {
	n := 0
	m.Ledger.Range(func(position.Key, position.Snapshot) bool {
		n++
		return true
	})
	return n
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
