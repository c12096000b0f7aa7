package events

import (
	"testing"
	"time"

	"trading-engine/internal/position"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderSubmitted, 4)
	defer unsub()

	want := OrderEvent{ClientOrderID: "c1", Qty: 1, At: time.Now()}
	b.Publish(EventOrderSubmitted, want)

	select {
	case got := <-ch:
		ev, ok := got.(OrderEvent)
		if !ok {
			t.Fatalf("payload type %T", got)
		}
		if ev.ClientOrderID != "c1" {
			t.Errorf("ClientOrderID = %s, want c1", ev.ClientOrderID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventPositionOpened, 1)
	defer unsub()

	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "s", Side: position.SideLong}
	b.Publish(EventPositionOpened, PositionEvent{Key: key, Quantity: 1})
	// Buffer full; this publish must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(EventPositionOpened, PositionEvent{Key: key, Quantity: 2})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1 (second event dropped)", len(ch))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventTradingHalted, 1)
	unsub()
	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
	// Publishing after unsubscribe must be a no-op.
	b.Publish(EventTradingHalted, "reason")
}
