package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-engine/internal/events"
	"trading-engine/internal/position"
	"trading-engine/internal/signal"
	"trading-engine/internal/state"
	exchange "trading-engine/pkg/exchanges/common"
)

// fakeGateway replays scripted batch outcomes in order.
type fakeGateway struct {
	batches   [][]exchange.OrderRequest
	script    []func(orders []exchange.OrderRequest) (exchange.BatchResult, error)
	cancelled []string
	cancelErr error
}

func (g *fakeGateway) SubmitBatch(_ context.Context, orders []exchange.OrderRequest) (exchange.BatchResult, error) {
	g.batches = append(g.batches, orders)
	if len(g.script) == 0 {
		return ackAll(orders), nil
	}
	fn := g.script[0]
	g.script = g.script[1:]
	return fn(orders)
}

func (g *fakeGateway) CancelAllOpenOrders(_ context.Context, symbol string) error {
	g.cancelled = append(g.cancelled, symbol)
	return g.cancelErr
}

func ackAll(orders []exchange.OrderRequest) (res exchange.BatchResult) {
	res.Requested = len(orders)
	for _, o := range orders {
		res.Acks = append(res.Acks, exchange.OrderAck{
			ExchangeOrderID: "1",
			ClientID:        o.ClientID,
			Symbol:          o.Symbol,
			Status:          exchange.StatusNew,
		})
	}
	return res
}

func newTestPipeline(gw exchange.Gateway) *Pipeline {
	p := NewPipeline(gw, position.NewLedger(), position.NewStore(0), state.NewHaltLatch(), events.NewBus(), nil)
	p.backoff = func(int) {}
	return p
}

func openSignal(stop, profit float64) signal.TradingSignal {
	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "lead_lag", Side: position.SideLong}
	return signal.NewOpen(1, key, 0.5, 50000, stop, profit, time.Now())
}

func TestProcessOpenSubmitsProtectiveLegs(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	sig := openSignal(48000, 55000)

	if err := p.ProcessOpen(context.Background(), sig); err != nil {
		t.Fatalf("ProcessOpen: %v", err)
	}

	if len(gw.batches) != 1 || len(gw.batches[0]) != 3 {
		t.Fatalf("batches = %v, want one batch of 3", gw.batches)
	}
	batch := gw.batches[0]
	if batch[0].Type != exchange.OrderTypeMarket || batch[0].Side != exchange.SideBuy {
		t.Errorf("primary = %+v", batch[0])
	}
	if batch[1].Type != exchange.OrderTypeStopMarket || !batch[1].ReduceOnly || batch[1].Side != exchange.SideSell {
		t.Errorf("stop leg = %+v", batch[1])
	}
	if batch[2].Type != exchange.OrderTypeTakeProfitMarket || batch[2].StopPrice != 55000 {
		t.Errorf("take-profit leg = %+v", batch[2])
	}

	snap, ok := p.Ledger.Snapshot(sig.Key())
	if !ok || snap.Quantity != 0.5 {
		t.Errorf("ledger snapshot = %+v ok=%v, want qty 0.5", snap, ok)
	}
}

func TestProcessOpenWithoutLegsIsSingleOrder(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)

	if err := p.ProcessOpen(context.Background(), openSignal(0, 0)); err != nil {
		t.Fatalf("ProcessOpen: %v", err)
	}
	if len(gw.batches[0]) != 1 {
		t.Errorf("batch size = %d, want 1", len(gw.batches[0]))
	}
}

func TestProcessOpenRejectsSecondAttempt(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	sig := openSignal(0, 0)

	if err := p.ProcessOpen(context.Background(), sig); err != nil {
		t.Fatalf("first ProcessOpen: %v", err)
	}
	err := p.ProcessOpen(context.Background(), sig)
	if !errors.Is(err, position.ErrAlreadyHasPosition) {
		t.Errorf("second ProcessOpen = %v, want ErrAlreadyHasPosition", err)
	}
	if len(gw.batches) != 1 {
		t.Errorf("venue saw %d batches, want 1", len(gw.batches))
	}
}

// A ledger position restored from the journal must block opens even
// though the optimistic store starts empty after a restart.
func TestProcessOpenRejectsWhenLedgerHoldsSlot(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	sig := openSignal(0, 0)
	if err := p.Ledger.OpenOrAdd(sig.Key(), 1, 50000); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	err := p.ProcessOpen(context.Background(), sig)
	if !errors.Is(err, position.ErrAlreadyHasPosition) {
		t.Fatalf("ProcessOpen = %v, want ErrAlreadyHasPosition", err)
	}
	if len(gw.batches) != 0 {
		t.Errorf("venue saw %d batches, want 0", len(gw.batches))
	}
	snap, ok := p.Ledger.Snapshot(sig.Key())
	if !ok || snap.Quantity != 1 {
		t.Errorf("ledger snapshot = %+v ok=%v, want untouched qty 1", snap, ok)
	}
}

func TestProcessOpenRetriesThrottledOrders(t *testing.T) {
	gw := &fakeGateway{}
	gw.script = []func([]exchange.OrderRequest) (exchange.BatchResult, error){
		func(orders []exchange.OrderRequest) (exchange.BatchResult, error) {
			// Primary acked, stop leg throttled.
			res := exchange.BatchResult{Requested: len(orders)}
			res.Acks = append(res.Acks, exchange.OrderAck{ClientID: orders[0].ClientID, Status: exchange.StatusNew})
			res.Failures = append(res.Failures, exchange.OrderError{Index: 1, Code: -1003, Msg: "Too many requests."})
			return res, nil
		},
		func(orders []exchange.OrderRequest) (exchange.BatchResult, error) {
			return ackAll(orders), nil
		},
	}
	p := newTestPipeline(gw)

	if err := p.ProcessOpen(context.Background(), openSignal(48000, 0)); err != nil {
		t.Fatalf("ProcessOpen: %v", err)
	}
	if len(gw.batches) != 2 {
		t.Fatalf("rounds = %d, want 2", len(gw.batches))
	}
	if len(gw.batches[1]) != 1 || gw.batches[1][0].Type != exchange.OrderTypeStopMarket {
		t.Errorf("retry batch = %+v, want only the throttled stop leg", gw.batches[1])
	}
	if p.Halt.Halted() {
		t.Error("halt tripped on a recoverable throttle")
	}
}

func TestProcessOpenDoesNotRetryHardRejection(t *testing.T) {
	gw := &fakeGateway{}
	gw.script = []func([]exchange.OrderRequest) (exchange.BatchResult, error){
		func(orders []exchange.OrderRequest) (exchange.BatchResult, error) {
			res := exchange.BatchResult{Requested: len(orders)}
			res.Failures = append(res.Failures, exchange.OrderError{Index: 0, Code: -2019, Msg: "Margin is insufficient."})
			return res, nil
		},
	}
	p := newTestPipeline(gw)
	sig := openSignal(0, 0)

	err := p.ProcessOpen(context.Background(), sig)
	if err == nil {
		t.Fatal("expected error when primary order is rejected")
	}
	if len(gw.batches) != 1 {
		t.Errorf("rounds = %d, want 1 (no retry for hard rejections)", len(gw.batches))
	}
	if p.Ledger.HasPosition(sig.Key()) {
		t.Error("ledger updated despite rejection")
	}
	// After the failure settles, the slot must admit a new attempt.
	if err := p.ProcessOpen(context.Background(), sig); err != nil {
		t.Errorf("slot still blocked after settled failure: %v", err)
	}
}

func TestSubmitTransportFailureTripsHalt(t *testing.T) {
	transportErr := errors.New("connection reset")
	fail := func([]exchange.OrderRequest) (exchange.BatchResult, error) {
		return exchange.BatchResult{}, transportErr
	}
	gw := &fakeGateway{script: []func([]exchange.OrderRequest) (exchange.BatchResult, error){fail, fail, fail}}
	p := newTestPipeline(gw)

	err := p.ProcessOpen(context.Background(), openSignal(0, 0))
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("ProcessOpen = %v, want ErrHalted", err)
	}
	if !p.Halt.Halted() {
		t.Error("halt latch not tripped")
	}
	if len(gw.batches) != 3 {
		t.Errorf("transport retries = %d, want 3", len(gw.batches))
	}

	// Everything downstream must refuse to trade.
	if err := p.ProcessOpen(context.Background(), openSignal(0, 0)); !errors.Is(err, ErrHalted) {
		t.Errorf("post-halt ProcessOpen = %v, want ErrHalted", err)
	}
}

func TestProcessClose(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "lead_lag", Side: position.SideLong}
	if err := p.Ledger.OpenOrAdd(key, 2, 50000); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	sig := signal.NewClose(2, key, 2, 51000)
	if err := p.ProcessClose(context.Background(), sig); err != nil {
		t.Fatalf("ProcessClose: %v", err)
	}

	if len(gw.cancelled) != 1 || gw.cancelled[0] != "BTCUSDT" {
		t.Errorf("cancelled = %v, want resting orders cancelled first", gw.cancelled)
	}
	if len(gw.batches) != 1 || len(gw.batches[0]) != 1 {
		t.Fatalf("batches = %v, want single close order", gw.batches)
	}
	closeOrder := gw.batches[0][0]
	if closeOrder.Side != exchange.SideSell || !closeOrder.ReduceOnly || closeOrder.Qty != 2 {
		t.Errorf("close order = %+v", closeOrder)
	}
	if p.Ledger.HasPosition(key) {
		t.Error("position survived close")
	}
}

func TestProcessCloseClampsToClosable(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "ETHUSDT", Strategy: "s", Side: position.SideShort}
	if err := p.Ledger.OpenOrAdd(key, 1, 3000); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	if err := p.ProcessClose(context.Background(), signal.NewClose(3, key, 5, 2900)); err != nil {
		t.Fatalf("ProcessClose: %v", err)
	}
	if got := gw.batches[0][0].Qty; got != 1 {
		t.Errorf("close qty = %v, want clamp to held 1", got)
	}
	if gw.batches[0][0].Side != exchange.SideBuy {
		t.Errorf("short close side = %v, want BUY", gw.batches[0][0].Side)
	}
}

// A close on a locally flat slot still goes out: the order is
// reduce-only, so the venue no-ops it if nothing is held, and local
// flatness may just be drift.
func TestProcessCloseOnFlatSlot(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPipeline(gw)
	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "s", Side: position.SideLong}

	if err := p.ProcessClose(context.Background(), signal.NewClose(4, key, 1, 50000)); err != nil {
		t.Fatalf("ProcessClose = %v, want nil", err)
	}
	if len(gw.batches) != 1 || len(gw.batches[0]) != 1 {
		t.Fatalf("batches = %v, want one single-order batch", gw.batches)
	}
	o := gw.batches[0][0]
	if !o.ReduceOnly && o.PositionSide == "" {
		t.Errorf("close order not reduce-only: %+v", o)
	}
	if o.Qty != 1 {
		t.Errorf("close qty = %v, want the signal quantity", o.Qty)
	}
	if pos, ok := p.Store.GetPosition(key); ok {
		t.Errorf("tracked position after close = %+v, want flat", pos)
	}
}

func TestProcessCloseToleratesCancelFailure(t *testing.T) {
	gw := &fakeGateway{cancelErr: errors.New("cancel failed")}
	p := newTestPipeline(gw)
	key := position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "s", Side: position.SideLong}
	if err := p.Ledger.OpenOrAdd(key, 1, 50000); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	if err := p.ProcessClose(context.Background(), signal.NewClose(5, key, 1, 50500)); err != nil {
		t.Errorf("ProcessClose = %v, cancel failure must not block the close", err)
	}
}
