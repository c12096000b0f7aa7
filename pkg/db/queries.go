package db

import "context"

// ListOpenOrders returns orders not yet in a terminal state.
func (d *Database) ListOpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(exchange_order_id, ''), exchange, symbol, strategy, side, type,
		       qty, price, stop_price, reduce_only, status, created_at
		FROM orders WHERE status NOT IN ('FILLED','CANCELED','REJECTED','EXPIRED')
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		var reduceOnly int
		if err := rows.Scan(&o.ID, &o.ExchangeOrderID, &o.Exchange, &o.Symbol, &o.Strategy, &o.Side, &o.Type,
			&o.Qty, &o.Price, &o.StopPrice, &reduceOnly, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.ReduceOnly = reduceOnly == 1
		res = append(res, o)
	}
	return res, rows.Err()
}

// ListPositions returns all persisted position slots.
func (d *Database) ListPositions(ctx context.Context) ([]PositionRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT exchange, symbol, strategy, side, qty, entry_price, realized_pnl, updated_at
		FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.Exchange, &p.Symbol, &p.Strategy, &p.Side, &p.Qty, &p.EntryPrice, &p.RealizedPnL, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListTradesByStrategy returns the most recent trades for a strategy.
func (d *Database) ListTradesByStrategy(ctx context.Context, strategy string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, exchange, symbol, strategy, side, qty, price, realized_pnl, created_at
		FROM trades WHERE strategy = ?
		ORDER BY created_at DESC LIMIT ?`, strategy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Exchange, &t.Symbol, &t.Strategy, &t.Side, &t.Qty, &t.Price, &t.RealizedPnL, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// RealizedPnLByStrategy sums realized results per strategy over all trades.
func (d *Database) RealizedPnLByStrategy(ctx context.Context) (map[string]float64, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT strategy, COALESCE(SUM(realized_pnl), 0) FROM trades GROUP BY strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[string]float64)
	for rows.Next() {
		var strategy string
		var pnl float64
		if err := rows.Scan(&strategy, &pnl); err != nil {
			return nil, err
		}
		res[strategy] = pnl
	}
	return res, rows.Err()
}
