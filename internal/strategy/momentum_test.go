package strategy

import (
	"context"
	"testing"

	"trading-engine/internal/position"
	"trading-engine/internal/signal"
)

type captureEmitter struct {
	signals []signal.TradingSignal
	err     error
}

func (c *captureEmitter) Submit(sig signal.TradingSignal) error {
	if c.err != nil {
		return c.err
	}
	c.signals = append(c.signals, sig)
	return nil
}

func momentumSlot(side string) Config {
	return Config{
		Name:        "mom_btc",
		Symbol:      "BTCUSDT",
		Side:        side,
		Quantity:    0.1,
		StopLossPct: 2,
		TakeProfit:  4,
		Parameters:  map[string]string{"entry_pct": "1", "exit_pct": "0.5"},
		Enabled:     true,
	}
}

// feed returns a PriceFunc that replays the given prices in order.
func feed(prices ...float64) PriceFunc {
	i := 0
	return func(ctx context.Context, symbol string) (float64, error) {
		p := prices[i]
		if i < len(prices)-1 {
			i++
		}
		return p, nil
	}
}

func TestMomentumOpensOnFavorableMove(t *testing.T) {
	m := NewMomentum(momentumSlot("LONG"), feed(100, 102))
	em := &captureEmitter{}
	ctx := context.Background()

	if err := m.step(ctx, em); err != nil { // seeds reference price
		t.Fatalf("step: %v", err)
	}
	if err := m.step(ctx, em); err != nil { // +2% > 1% entry
		t.Fatalf("step: %v", err)
	}

	if len(em.signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(em.signals))
	}
	sig := em.signals[0]
	if sig.Action != signal.ActionOpen {
		t.Fatalf("action = %s", sig.Action)
	}
	if sig.Quantity != 0.1 || sig.LatestPrice != 102 {
		t.Fatalf("qty=%v price=%v", sig.Quantity, sig.LatestPrice)
	}
	if sig.StopPrice >= 102 || sig.ProfitPrice <= 102 {
		t.Fatalf("LONG protective prices inverted: stop=%v profit=%v", sig.StopPrice, sig.ProfitPrice)
	}
}

func TestMomentumShortOpensOnDrop(t *testing.T) {
	m := NewMomentum(momentumSlot("SHORT"), feed(100, 98))
	em := &captureEmitter{}
	ctx := context.Background()

	_ = m.step(ctx, em)
	_ = m.step(ctx, em)

	if len(em.signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(em.signals))
	}
	sig := em.signals[0]
	if sig.Side != "SHORT" || sig.Action != signal.ActionOpen {
		t.Fatalf("side=%s action=%s", sig.Side, sig.Action)
	}
	if sig.StopPrice <= 98 || sig.ProfitPrice >= 98 {
		t.Fatalf("SHORT protective prices inverted: stop=%v profit=%v", sig.StopPrice, sig.ProfitPrice)
	}
}

func TestMomentumClosesOnAdverseMove(t *testing.T) {
	// Seed at 100, open at 102, close after dropping to 101 (-0.98% < -0.5%).
	m := NewMomentum(momentumSlot("LONG"), feed(100, 102, 101))
	em := &captureEmitter{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.step(ctx, em); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if len(em.signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(em.signals))
	}
	if em.signals[1].Action != signal.ActionClose {
		t.Fatalf("second action = %s", em.signals[1].Action)
	}
	if em.signals[1].ID <= em.signals[0].ID {
		t.Fatalf("signal ids not increasing: %d then %d", em.signals[0].ID, em.signals[1].ID)
	}
}

func TestMomentumAdmissionGatesOpens(t *testing.T) {
	m := NewMomentum(momentumSlot("LONG"), feed(100, 102, 104))
	em := &captureEmitter{}
	ctx := context.Background()

	denied := 0
	allow := false
	m.Admit = func(key position.Key, side position.Side) bool {
		if key.Symbol != "BTCUSDT" || side != position.SideLong {
			t.Errorf("admission asked for %s %s", key, side)
		}
		if !allow {
			denied++
		}
		return allow
	}

	_ = m.step(ctx, em) // seeds reference price
	if err := m.step(ctx, em); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(em.signals) != 0 || denied != 1 {
		t.Fatalf("signals=%d denied=%d, want denied open emits nothing", len(em.signals), denied)
	}

	// Once the slot frees up the next favorable move opens normally.
	allow = true
	if err := m.step(ctx, em); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(em.signals) != 1 || em.signals[0].Action != signal.ActionOpen {
		t.Fatalf("signals = %+v, want one open", em.signals)
	}
}

func TestMomentumHoldsBelowThreshold(t *testing.T) {
	m := NewMomentum(momentumSlot("LONG"), feed(100, 100.5, 100.9))
	em := &captureEmitter{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = m.step(ctx, em)
	}
	if len(em.signals) != 0 {
		t.Fatalf("expected no signals, got %v", em.signals)
	}
}
