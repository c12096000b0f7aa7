package position

import "time"

// OrderStatus tracks a pending order through its lifecycle.
type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusSubmitted     OrderStatus = "SUBMITTED"
	StatusFilled        OrderStatus = "FILLED"
	StatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	StatusCancelled     OrderStatus = "CANCELLED"
	StatusFailed        OrderStatus = "FAILED"
)

// active reports whether the status still blocks a duplicate attempt.
func (s OrderStatus) active() bool {
	return s == StatusPending || s == StatusSubmitted
}

// PendingOrder is the store-side record of an order in flight. It is
// bookkeeping only; the exchange request lives elsewhere.
type PendingOrder struct {
	ClientOrderID   string
	ExchangeOrderID string // set once the venue acknowledges
	Side            Side   // direction of the resulting position
	Quantity        float64
	Price           float64
	Status          OrderStatus
	CreatedAt       time.Time
}

// Position is the optimistic store's view of a held position. Unlike a
// ledger snapshot it is written ahead of exchange confirmation.
type Position struct {
	Quantity    float64 // signed by side
	EntryPrice  float64
	RealizedPnL float64
	UpdatedAt   time.Time
}
