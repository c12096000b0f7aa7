package events

import (
	"time"

	"trading-engine/internal/position"
)

// Event enumerates high-level topics inside the engine.
type Event string

const (
	EventSignalReceived  Event = "signal.received"
	EventSignalRejected  Event = "signal.rejected"
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderAccepted   Event = "order.accepted"
	EventOrderRejected   Event = "order.rejected"
	EventPositionOpened  Event = "position.opened"
	EventPositionClosed  Event = "position.closed"
	EventTradingHalted   Event = "trading.halted"
	EventReconcileDrift  Event = "reconcile.drift"
)

// SignalEvent reports a signal entering or being rejected by the engine.
type SignalEvent struct {
	SignalID uint64
	Key      position.Key
	Reason   string // set on rejection
	At       time.Time
}

// OrderEvent reports one order's progress through submission.
type OrderEvent struct {
	ClientOrderID string
	Key           position.Key
	Qty           float64
	Code          int    // venue rejection code, zero on success
	Msg           string
	At            time.Time
}

// PositionEvent reports a ledger-level position change.
type PositionEvent struct {
	Key         position.Key
	Quantity    float64
	EntryPrice  float64
	RealizedPnL float64
	At          time.Time
}

// DriftEvent reports a mismatch between local and venue position state.
type DriftEvent struct {
	Key       position.Key
	LocalQty  float64
	RemoteQty float64
	At        time.Time
}
