package strategy

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"trading-engine/internal/position"
	"trading-engine/internal/signal"
)

// PriceFunc returns the current price for a symbol.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// AdmissionFunc reports whether a new open may be attempted on a slot.
// The optimistic store's CanOpen satisfies it.
type AdmissionFunc func(key position.Key, side position.Side) bool

const (
	defaultPollInterval = 5 * time.Second
	defaultEntryPct     = 0.5
	defaultExitPct      = 0.3
)

// Momentum is a single-slot momentum follower: it opens its configured
// side when price moves in the slot's favor by entry_pct over one poll
// interval, and closes when price moves against the position by exit_pct.
// Thresholds come from the slot's parameters map: entry_pct and exit_pct
// are percentage moves, interval is a Go duration string.
type Momentum struct {
	slot     Config
	price    PriceFunc
	interval time.Duration
	entryPct float64
	exitPct  float64

	// Admit is the pre-flight check before an open is emitted. Nil
	// means no check; wiring the store's CanOpen here keeps the
	// strategy from emitting opens the engine would only reject.
	Admit AdmissionFunc

	nextID uint64
	held   bool
	last   float64
}

func NewMomentum(slot Config, price PriceFunc) *Momentum {
	m := &Momentum{
		slot:     slot,
		price:    price,
		interval: defaultPollInterval,
		entryPct: defaultEntryPct,
		exitPct:  defaultExitPct,
	}
	if v, ok := slot.Parameters["interval"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			m.interval = d
		}
	}
	if v, ok := slot.Parameters["entry_pct"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			m.entryPct = f
		}
	}
	if v, ok := slot.Parameters["exit_pct"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			m.exitPct = f
		}
	}
	return m
}

func (m *Momentum) Name() string { return m.slot.Name }

func (m *Momentum) Run(ctx context.Context, emit Emitter) error {
	if m.price == nil {
		return errors.New("momentum: no price source")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.step(ctx, emit); err != nil {
				log.Printf("strategy: %s: %v", m.slot.Name, err)
			}
		}
	}
}

// step performs one poll. The first poll only seeds the reference price.
func (m *Momentum) step(ctx context.Context, emit Emitter) error {
	px, err := m.price(ctx, m.slot.Symbol)
	if err != nil {
		return err
	}
	if px <= 0 {
		return errors.New("non-positive price")
	}
	if m.last == 0 {
		m.last = px
		return nil
	}

	changePct := (px - m.last) / m.last * 100
	m.last = px

	// A short slot profits from falling prices, so its favorable move
	// is the negated change.
	favorable := changePct
	if m.slot.Side == "SHORT" {
		favorable = -changePct
	}

	switch {
	case !m.held && favorable >= m.entryPct:
		key := m.slot.Key()
		if m.Admit != nil && !m.Admit(key, key.Side) {
			return nil
		}
		m.nextID++
		stop, profit := m.protectivePrices(px)
		sig := signal.NewOpen(m.nextID, key, m.slot.Quantity, px, stop, profit, time.Now())
		if err := emit.Submit(sig); err != nil {
			return err
		}
		m.held = true

	case m.held && favorable <= -m.exitPct:
		m.nextID++
		sig := signal.NewClose(m.nextID, m.slot.Key(), m.slot.Quantity, px)
		if err := emit.Submit(sig); err != nil {
			return err
		}
		m.held = false
	}
	return nil
}

// protectivePrices derives stop and take-profit triggers from the slot's
// configured percentages. Zero disables a leg.
func (m *Momentum) protectivePrices(px float64) (stop, profit float64) {
	sl := m.slot.StopLossPct / 100
	tp := m.slot.TakeProfit / 100
	if m.slot.Side == "SHORT" {
		if sl > 0 {
			stop = px * (1 + sl)
		}
		if tp > 0 {
			profit = px * (1 - tp)
		}
		return stop, profit
	}
	if sl > 0 {
		stop = px * (1 - sl)
	}
	if tp > 0 {
		profit = px * (1 + tp)
	}
	return stop, profit
}
