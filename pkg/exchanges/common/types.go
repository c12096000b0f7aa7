package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes the futures order types the engine emits.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
	TIFGTX TimeInForce = "GTX" // Post Only / Maker Only
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// PositionSide is the hedge-mode side tag on futures orders.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH"
)

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol       string
	Side         Side
	Type         OrderType
	Qty          float64
	Price        float64 // required for LIMIT
	StopPrice    float64 // required for STOP_MARKET / TAKE_PROFIT_MARKET
	TimeInForce  TimeInForce
	ClientID     string // client order id, generated when empty
	ReduceOnly   bool
	PositionSide PositionSide
	WorkingType  string // MARK_PRICE or CONTRACT_PRICE
}

// OrderAck is the exchange acknowledgement for one accepted order.
type OrderAck struct {
	ExchangeOrderID string
	ClientID        string
	Symbol          string
	Status          OrderStatus
}

// OrderError is one rejected order inside a batch. Index refers to the
// order's position in the submitted slice; Code is the venue's numeric
// error code.
type OrderError struct {
	Index int
	Code  int
	Msg   string
}

func (e OrderError) Error() string {
	return e.Msg
}

// codeTooManyRequests is the venue's request-throttle rejection. It is
// the only rejection worth re-submitting unchanged; every other code
// means the order itself is wrong.
const codeTooManyRequests = -1003

// Retryable reports whether re-submitting the identical order may
// succeed.
func (e OrderError) Retryable() bool {
	return e.Code == codeTooManyRequests
}

// BatchResult is the per-order outcome of one batch submission. Exchanges
// ack and reject orders independently within a single batch call.
type BatchResult struct {
	Requested int
	Acks      []OrderAck
	Failures  []OrderError
}

// AllSucceeded reports whether every order in the batch was accepted.
func (r BatchResult) AllSucceeded() bool {
	return len(r.Failures) == 0 && len(r.Acks) == r.Requested
}

// AllFailed reports whether no order in the batch was accepted.
func (r BatchResult) AllFailed() bool {
	return len(r.Acks) == 0 && r.Requested > 0
}

// PositionInfo is the exchange's view of one held position, used to
// reconcile local state against the venue.
type PositionInfo struct {
	Symbol       string
	PositionSide PositionSide
	Qty          float64 // signed, negative for short
	EntryPrice   float64
}

// Fill represents a trade fill update.
type Fill struct {
	ExchangeOrderID string
	TradeID         string
	Symbol          string
	Side            Side
	Qty             float64
	Price           float64
}
