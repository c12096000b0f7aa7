package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"trading-engine/internal/events"
	"trading-engine/internal/position"
	"trading-engine/internal/signal"
	"trading-engine/internal/state"
	"trading-engine/pkg/db"
	exchange "trading-engine/pkg/exchanges/common"
)

var ErrHalted = errors.New("trading halted")

// maxRetryRounds bounds re-submission of throttle-rejected orders. Each
// round carries only the orders the previous round rejected as retryable.
const maxRetryRounds = 3

// Pipeline turns trading signals into exchange order batches, persists
// them, and applies acknowledged fills to the ledger.
type Pipeline struct {
	Gateway exchange.Gateway
	Ledger  *position.Ledger
	Store   *position.Store
	Halt    *state.HaltLatch
	Bus     *events.Bus
	DB      *db.Database // optional journal

	backoff func(round int)
}

func NewPipeline(gw exchange.Gateway, ledger *position.Ledger, store *position.Store, halt *state.HaltLatch, bus *events.Bus, database *db.Database) *Pipeline {
	return &Pipeline{
		Gateway: gw,
		Ledger:  ledger,
		Store:   store,
		Halt:    halt,
		Bus:     bus,
		DB:      database,
		backoff: func(round int) {
			time.Sleep(time.Duration(round+1) * 200 * time.Millisecond)
		},
	}
}

// ProcessOpen submits the open batch for a signal: the primary market
// order plus optional protective stop and take-profit legs. The primary
// ack applies the position to the ledger at the signal's latest price.
func (p *Pipeline) ProcessOpen(ctx context.Context, sig signal.TradingSignal) error {
	if p.Halt.Halted() {
		return ErrHalted
	}
	key := sig.Key()

	// A slot the ledger already holds is closed to new opens even when
	// the optimistic view has no entry for it, as after a restart that
	// restored positions from the journal.
	if p.Ledger.HasPosition(key) {
		return fmt.Errorf("open %s: %w", key, position.ErrAlreadyHasPosition)
	}

	orders := p.buildOpenBatch(sig)
	primaryID := orders[0].ClientID

	// Admission: one open attempt per slot. A held position or a live
	// pending order on the same side rejects the signal here, before
	// anything reaches the venue.
	err := p.Store.TryOpen(key, position.PendingOrder{
		ClientOrderID: primaryID,
		Side:          sig.Side,
		Quantity:      sig.Quantity,
		Price:         sig.LatestPrice,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}

	// Pre-commit the intended position. The slot is now claimed even
	// before the venue acks; a total failure below unwinds it.
	qty := sig.Quantity
	if sig.Side == position.SideShort {
		qty = -qty
	}
	p.Store.SetPosition(key, qty, sig.LatestPrice)

	res, err := p.submitWithRetry(ctx, key, orders)
	if err != nil {
		p.Store.Rollback(key)
		return fmt.Errorf("open %s: %w", key, err)
	}

	primaryAcked := false
	for _, ack := range res.Acks {
		if ack.ClientID == primaryID {
			primaryAcked = true
			if err := p.Store.ConfirmSubmission(key, primaryID, ack.ExchangeOrderID); err != nil {
				log.Printf("pipeline: confirm %s: %v", primaryID, err)
			}
		}
	}
	if !primaryAcked {
		p.Store.Rollback(key)
		return fmt.Errorf("open %s: primary order rejected", key)
	}

	// Market orders fill at once; the venue's positionRisk view is the
	// backstop if the actual fill price drifts from the signal price.
	if err := p.Ledger.OpenOrAdd(key, sig.Quantity, sig.LatestPrice); err != nil {
		log.Printf("pipeline: ledger open %s failed: %v", key, err)
	}
	// The optimistic view already carries the intended quantity; dropping
	// the order record just releases the slot's pending claim.
	p.Store.RemoveOrder(key, primaryID)
	p.journalOrders(ctx, key, orders, res)
	if p.Bus != nil {
		p.Bus.Publish(events.EventPositionOpened, events.PositionEvent{
			Key:        key,
			Quantity:   sig.Quantity,
			EntryPrice: sig.LatestPrice,
			At:         time.Now(),
		})
	}
	return nil
}

// ProcessClose flattens the signal's position slot: best-effort cancel of
// resting protective orders, then one reduce-only market order for the
// closable quantity.
func (p *Pipeline) ProcessClose(ctx context.Context, sig signal.TradingSignal) error {
	if p.Halt.Halted() {
		return ErrHalted
	}
	key := sig.Key()

	// Clamp to the ledger when it holds the slot. A flat ledger still
	// sends the close: the order is reduce-only, so the venue makes it a
	// no-op if nothing is actually held, and local flatness may be drift.
	qty := sig.Quantity
	if closable := p.Ledger.ClosableQuantity(key); closable > 0 && qty > closable {
		qty = closable
	}
	if qty <= 0 {
		return fmt.Errorf("close %s: %w", key, position.ErrBadQuantity)
	}

	// Resting stop/take-profit legs would double-close once the position
	// is gone; cancel them first. Failure here is tolerable, the legs
	// are reduce-only and die with the position.
	if err := p.Gateway.CancelAllOpenOrders(ctx, sig.Symbol); err != nil {
		log.Printf("pipeline: cancel open orders %s: %v", sig.Symbol, err)
	}

	closeOrder := exchange.OrderRequest{
		Symbol:       sig.Symbol,
		Side:         closeSide(sig.Side),
		Type:         exchange.OrderTypeMarket,
		Qty:          qty,
		ClientID:     uuid.NewString(),
		ReduceOnly:   true,
		PositionSide: positionSide(sig.Side),
	}

	// Pre-commit the flat state before the venue confirms.
	p.Store.SetPosition(key, 0, 0)

	res, err := p.submitWithRetry(ctx, key, []exchange.OrderRequest{closeOrder})
	if err != nil {
		p.Store.Rollback(key)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if len(res.Acks) == 0 {
		p.Store.Rollback(key)
		return fmt.Errorf("close %s: order rejected", key)
	}
	closed, err := p.Ledger.Close(key, qty, sig.LatestPrice)
	if err != nil && !errors.Is(err, position.ErrNoPosition) {
		log.Printf("pipeline: ledger close %s failed: %v", key, err)
	}
	p.journalOrders(ctx, key, []exchange.OrderRequest{closeOrder}, res)
	if p.Bus != nil {
		snap, _ := p.Ledger.Snapshot(key)
		p.Bus.Publish(events.EventPositionClosed, events.PositionEvent{
			Key:         key,
			Quantity:    closed,
			RealizedPnL: snap.RealizedPnL,
			At:          time.Now(),
		})
	}
	return nil
}

// submitWithRetry sends a batch and re-submits throttle-rejected orders,
// up to maxRetryRounds. Each round's batch shrinks to the retryable
// subset of the previous round. Retry applies whether the batch partially
// or wholly failed: a throttle rejection is transient either way, and a
// single-order batch would otherwise never get a second chance.
// A transport failure on the final round
// trips the halt latch: at that point order state at the venue is
// unknown and continuing to trade would compound the damage.
func (p *Pipeline) submitWithRetry(ctx context.Context, key position.Key, orders []exchange.OrderRequest) (exchange.BatchResult, error) {
	if len(orders) == 0 {
		return exchange.BatchResult{}, exchange.ErrEmptyBatch
	}
	if len(orders) > exchange.MaxBatchSize {
		return exchange.BatchResult{}, exchange.ErrBatchTooLarge
	}

	var (
		acks     []exchange.OrderAck
		failures []exchange.OrderError
	)
	pending := orders
	requested := len(orders)

	if p.Bus != nil {
		for _, o := range orders {
			p.Bus.Publish(events.EventOrderSubmitted, events.OrderEvent{
				ClientOrderID: o.ClientID,
				Key:           key,
				Qty:           o.Qty,
				At:            time.Now(),
			})
		}
	}

	for round := 0; round < maxRetryRounds; round++ {
		res, err := p.Gateway.SubmitBatch(ctx, pending)
		if err != nil {
			if ctx.Err() != nil {
				return exchange.BatchResult{}, err
			}
			if round == maxRetryRounds-1 {
				p.Halt.Trip(fmt.Sprintf("batch submission failed in transport for %s: %v", key, err))
				if p.Bus != nil {
					p.Bus.Publish(events.EventTradingHalted, err.Error())
				}
				return exchange.BatchResult{}, fmt.Errorf("%w: %v", ErrHalted, err)
			}
			log.Printf("pipeline: batch transport error for %s (round %d): %v", key, round+1, err)
			p.backoff(round)
			continue
		}

		acks = append(acks, res.Acks...)
		if p.Bus != nil {
			for _, a := range res.Acks {
				p.Bus.Publish(events.EventOrderAccepted, events.OrderEvent{
					ClientOrderID: a.ClientID,
					Key:           key,
					At:            time.Now(),
				})
			}
		}

		var retry []exchange.OrderRequest
		for _, f := range res.Failures {
			if f.Retryable() && round < maxRetryRounds-1 {
				retry = append(retry, pending[f.Index])
				continue
			}
			failures = append(failures, f)
			log.Printf("pipeline: order rejected for %s: code=%d %s", key, f.Code, f.Msg)
			if p.Bus != nil {
				p.Bus.Publish(events.EventOrderRejected, events.OrderEvent{
					ClientOrderID: pending[f.Index].ClientID,
					Key:           key,
					Qty:           pending[f.Index].Qty,
					Code:          f.Code,
					Msg:           f.Msg,
					At:            time.Now(),
				})
			}
		}
		if len(retry) == 0 {
			return exchange.BatchResult{Requested: requested, Acks: acks, Failures: failures}, nil
		}
		pending = retry
		p.backoff(round)
	}

	// Retryable rejections survived every round; report what was acked.
	return exchange.BatchResult{Requested: requested, Acks: acks, Failures: failures}, nil
}

func (p *Pipeline) buildOpenBatch(sig signal.TradingSignal) []exchange.OrderRequest {
	side := openSide(sig.Side)
	posSide := positionSide(sig.Side)

	orders := []exchange.OrderRequest{{
		Symbol:       sig.Symbol,
		Side:         side,
		Type:         exchange.OrderTypeMarket,
		Qty:          sig.Quantity,
		ClientID:     uuid.NewString(),
		PositionSide: posSide,
	}}

	// Protective legs close the position, so they sit on the opposite
	// side and are reduce-only.
	if sig.StopPrice > 0 {
		orders = append(orders, exchange.OrderRequest{
			Symbol:       sig.Symbol,
			Side:         closeSide(sig.Side),
			Type:         exchange.OrderTypeStopMarket,
			Qty:          sig.Quantity,
			StopPrice:    sig.StopPrice,
			ClientID:     uuid.NewString(),
			ReduceOnly:   true,
			PositionSide: posSide,
		})
	}
	if sig.ProfitPrice > 0 {
		orders = append(orders, exchange.OrderRequest{
			Symbol:       sig.Symbol,
			Side:         closeSide(sig.Side),
			Type:         exchange.OrderTypeTakeProfitMarket,
			Qty:          sig.Quantity,
			StopPrice:    sig.ProfitPrice,
			ClientID:     uuid.NewString(),
			ReduceOnly:   true,
			PositionSide: posSide,
		})
	}
	return orders
}

func (p *Pipeline) journalOrders(ctx context.Context, key position.Key, orders []exchange.OrderRequest, res exchange.BatchResult) {
	if p.DB == nil {
		return
	}
	acked := make(map[string]exchange.OrderAck, len(res.Acks))
	for _, a := range res.Acks {
		acked[a.ClientID] = a
	}
	for _, o := range orders {
		status := "REJECTED"
		exchID := ""
		if a, ok := acked[o.ClientID]; ok {
			status = string(a.Status)
			exchID = a.ExchangeOrderID
		}
		row := db.Order{
			ID:              o.ClientID,
			ExchangeOrderID: exchID,
			Exchange:        string(key.Exchange),
			Symbol:          o.Symbol,
			Strategy:        key.Strategy,
			Side:            string(o.Side),
			Type:            string(o.Type),
			Qty:             o.Qty,
			Price:           o.Price,
			StopPrice:       o.StopPrice,
			ReduceOnly:      o.ReduceOnly,
			Status:          status,
			CreatedAt:       time.Now(),
		}
		if err := p.DB.CreateOrder(ctx, row); err != nil {
			log.Printf("pipeline: journal order %s: %v", o.ClientID, err)
		}
	}
}

func openSide(s position.Side) exchange.Side {
	if s == position.SideLong {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

func closeSide(s position.Side) exchange.Side {
	if s == position.SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func positionSide(s position.Side) exchange.PositionSide {
	if s == position.SideLong {
		return exchange.PositionSideLong
	}
	return exchange.PositionSideShort
}
