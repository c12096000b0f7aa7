package db

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// WriteOp is one buffered statement for the batch writer.
type WriteOp struct {
	Query string
	Args  []any
}

// BatchWriter coalesces journal writes into transactions. SQLite commits
// are the expensive part; grouping periodic snapshot writes keeps the
// single connection free for the order path.
type BatchWriter struct {
	db       *sql.DB
	mu       sync.Mutex
	buffer   []WriteOp
	maxSize  int
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewBatchWriter starts a writer that flushes at maxSize buffered ops or
// every interval, whichever comes first.
func NewBatchWriter(database *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 64
	}
	if interval <= 0 {
		interval = time.Second
	}
	bw := &BatchWriter{
		db:       database,
		buffer:   make([]WriteOp, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		done:     make(chan struct{}),
	}
	bw.wg.Add(1)
	go bw.loop()
	return bw
}

// Write buffers one statement, flushing when the buffer is full.
func (bw *BatchWriter) Write(op WriteOp) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, op)
	full := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()
	if full {
		if err := bw.Flush(); err != nil {
			log.Printf("db: batch flush: %v", err)
		}
	}
}

// Flush commits everything buffered so far in one transaction.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]WriteOp, 0, bw.maxSize)
	bw.mu.Unlock()

	tx, err := bw.db.Begin()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if _, err := tx.Exec(op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Pending returns the number of buffered statements.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close flushes outstanding writes and stops the background loop.
func (bw *BatchWriter) Close() error {
	close(bw.done)
	bw.wg.Wait()
	return bw.Flush()
}

func (bw *BatchWriter) loop() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				log.Printf("db: batch flush: %v", err)
			}
		case <-bw.done:
			return
		}
	}
}

// UpsertPositionOp is the batched form of UpsertPosition.
func UpsertPositionOp(p PositionRow) WriteOp {
	return WriteOp{
		Query: `
			INSERT INTO positions (exchange, symbol, strategy, side, qty, entry_price, realized_pnl, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
			ON CONFLICT(exchange, symbol, strategy, side) DO UPDATE SET
				qty = excluded.qty,
				entry_price = excluded.entry_price,
				realized_pnl = excluded.realized_pnl,
				updated_at = COALESCE(excluded.updated_at, CURRENT_TIMESTAMP)
		`,
		Args: []any{p.Exchange, p.Symbol, p.Strategy, p.Side, p.Qty, p.EntryPrice, p.RealizedPnL, p.UpdatedAt},
	}
}

// DeletePositionOp is the batched form of DeletePosition.
func DeletePositionOp(exchange, symbol, strategy, side string) WriteOp {
	return WriteOp{
		Query: `DELETE FROM positions WHERE exchange = ? AND symbol = ? AND strategy = ? AND side = ?`,
		Args:  []any{exchange, symbol, strategy, side},
	}
}
