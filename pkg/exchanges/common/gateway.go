package common

import "context"

// Gateway abstracts a futures trading venue. Order entry is batch-only;
// a single order is a batch of one.
type Gateway interface {
	// SubmitBatch sends up to the venue's batch ceiling of orders in one
	// call. A non-nil error means the whole call failed in transport and
	// nothing is known about individual orders; otherwise the BatchResult
	// carries per-order acks and rejections.
	SubmitBatch(ctx context.Context, orders []OrderRequest) (BatchResult, error)

	// CancelAllOpenOrders cancels every resting order on the symbol.
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// PositionReader exposes the venue's authoritative position view.
type PositionReader interface {
	Positions(ctx context.Context) ([]PositionInfo, error)
}
