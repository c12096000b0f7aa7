package db

import (
	"context"
	"time"
)

// Order is the journal row for one order sent to (or rejected by) a venue.
type Order struct {
	ID              string // client order id
	ExchangeOrderID string
	Exchange        string
	Symbol          string
	Strategy        string
	Side            string
	Type            string
	Qty             float64
	Price           float64
	StopPrice       float64
	ReduceOnly      bool
	Status          string
	CreatedAt       time.Time
}

// Trade is the journal row for one realized fill.
type Trade struct {
	ID          string
	OrderID     string
	Exchange    string
	Symbol      string
	Strategy    string
	Side        string
	Qty         float64
	Price       float64
	RealizedPnL float64
	CreatedAt   time.Time
}

// PositionRow is the durable snapshot of one position slot.
type PositionRow struct {
	Exchange    string
	Symbol      string
	Strategy    string
	Side        string
	Qty         float64
	EntryPrice  float64
	RealizedPnL float64
	UpdatedAt   time.Time
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, exchange_order_id, exchange, symbol, strategy, side, type,
			qty, price, stop_price, reduce_only, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		o.ID, o.ExchangeOrderID, o.Exchange, o.Symbol, o.Strategy, o.Side, o.Type,
		o.Qty, o.Price, o.StopPrice, boolToInt(o.ReduceOnly), o.Status, o.CreatedAt,
	)
	return err
}

// UpdateOrderStatus sets the status of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	return err
}

// CreateTrade inserts a new trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, order_id, exchange, symbol, strategy, side, qty, price, realized_pnl, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		t.ID, t.OrderID, t.Exchange, t.Symbol, t.Strategy, t.Side, t.Qty, t.Price, t.RealizedPnL, t.CreatedAt,
	)
	return err
}

// UpsertPosition stores the latest snapshot of a position slot.
func (d *Database) UpsertPosition(ctx context.Context, p PositionRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (exchange, symbol, strategy, side, qty, entry_price, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
		ON CONFLICT(exchange, symbol, strategy, side) DO UPDATE SET
			qty = excluded.qty,
			entry_price = excluded.entry_price,
			realized_pnl = excluded.realized_pnl,
			updated_at = COALESCE(excluded.updated_at, CURRENT_TIMESTAMP)
	`, p.Exchange, p.Symbol, p.Strategy, p.Side, p.Qty, p.EntryPrice, p.RealizedPnL, p.UpdatedAt)
	return err
}

// DeletePosition removes a flattened slot.
func (d *Database) DeletePosition(ctx context.Context, exchange, symbol, strategy, side string) error {
	_, err := d.DB.ExecContext(ctx, `
		DELETE FROM positions WHERE exchange = ? AND symbol = ? AND strategy = ? AND side = ?
	`, exchange, symbol, strategy, side)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
