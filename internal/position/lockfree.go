package position

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Fixed-point scale shared by every atomic field. Storing real values as
// value*1e8 keeps quantity, entry price and PnL in machine-word atomics,
// at the cost of 8 decimal digits of precision. Conversions truncate on
// store and are exact on load for values inside that budget.
const fixedScale = 100_000_000

// epsilon below which a position counts as flat, in real units.
const epsilon = 1e-12

// casRetryLimit caps optimistic retry loops. Contention at trading
// frequencies is transient; the cap only exists so a pathological
// interleaving surfaces as an error instead of a livelock.
const casRetryLimit = 1 << 20

var (
	ErrNoPosition  = errors.New("no position for key")
	ErrBadQuantity = errors.New("quantity must be positive")
	ErrBadPrice    = errors.New("price must be positive")
	ErrContention  = errors.New("position update aborted: CAS retry limit reached")
)

func toFixed(v float64) int64 { return int64(v * fixedScale) }

func fromFixed(v int64) float64 { return float64(v) / fixedScale }

// cell is one lock-free ledger entry. The four fields are independently
// atomic; a consistent view requires the version to be identical before
// and after reading the others.
type cell struct {
	quantity  atomic.Int64  // signed fixed point
	entry     atomic.Uint64 // unsigned fixed point
	pnl       atomic.Int64  // signed fixed point, monotonically adjusted
	version   atomic.Uint64 // bumped on every committed mutation
	updatedMs atomic.Int64
}

func (c *cell) snapshot() Snapshot {
	for {
		v1 := c.version.Load()
		qty := c.quantity.Load()
		entry := c.entry.Load()
		pnl := c.pnl.Load()
		updated := c.updatedMs.Load()
		if c.version.Load() == v1 {
			return Snapshot{
				Quantity:    fromFixed(qty),
				EntryPrice:  fromFixed(int64(entry)),
				RealizedPnL: fromFixed(pnl),
				UpdatedAtMs: updated,
				Version:     v1,
			}
		}
		// A writer committed mid-read; re-read. Writers are short and
		// serialized per signal upstream, so this resolves immediately.
	}
}

// Snapshot is a consistent read of one position cell.
type Snapshot struct {
	Quantity    float64 // signed by side
	EntryPrice  float64
	RealizedPnL float64
	UpdatedAtMs int64
	Version     uint64
}

// Flat reports whether the snapshot holds no position.
func (s Snapshot) Flat() bool {
	return s.Quantity > -epsilon && s.Quantity < epsilon
}

// Ledger is the lock-free position ledger: a concurrent keyed store of
// atomic cells. Reads never take a lock; writes are CAS retry loops.
type Ledger struct {
	cells sync.Map // Key -> *cell
	now   func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

func (l *Ledger) getOrCreate(key Key) *cell {
	if c, ok := l.cells.Load(key); ok {
		return c.(*cell)
	}
	c, _ := l.cells.LoadOrStore(key, &cell{})
	return c.(*cell)
}

func (l *Ledger) get(key Key) (*cell, bool) {
	c, ok := l.cells.Load(key)
	if !ok {
		return nil, false
	}
	return c.(*cell), true
}

// OpenOrAdd opens a flat position or adds to an existing same-direction
// one, committing via CAS on the quantity field. Adding computes a
// quantity-weighted average entry price; the whole read-compute-CAS cycle
// restarts on contention.
func (l *Ledger) OpenOrAdd(key Key, quantity, price float64) error {
	if quantity <= 0 {
		return ErrBadQuantity
	}
	if price <= 0 {
		return ErrBadPrice
	}
	c := l.getOrCreate(key)
	nowMs := l.now().UnixMilli()

	for i := 0; i < casRetryLimit; i++ {
		snap := c.snapshot()
		curQty := toFixed(snap.Quantity)

		if curQty == 0 {
			newQty := toFixed(quantity)
			if key.Side == SideShort {
				newQty = -newQty
			}
			if c.quantity.CompareAndSwap(0, newQty) {
				c.entry.Store(uint64(toFixed(price)))
				c.updatedMs.Store(nowMs)
				c.version.Add(1)
				return nil
			}
			continue
		}

		// Same-direction add: weighted average cost.
		curAbs := abs(snap.Quantity)
		totalQty := curAbs + quantity
		avg := (snap.EntryPrice*curAbs + price*quantity) / totalQty
		newQty := toFixed(totalQty)
		if snap.Quantity < 0 {
			newQty = -newQty
		}
		if c.quantity.CompareAndSwap(curQty, newQty) {
			c.entry.Store(uint64(toFixed(avg)))
			c.updatedMs.Store(nowMs)
			c.version.Add(1)
			return nil
		}
	}
	return ErrContention
}

// Close reduces a position by up to the requested quantity at the given
// price and returns the quantity actually closed. Realized PnL is applied
// as a separate atomic add after the quantity CAS commits; the PnL field
// tolerates being momentarily stale relative to quantity. The cell is
// removed once the remainder drops below epsilon.
func (l *Ledger) Close(key Key, quantity, price float64) (float64, error) {
	if quantity <= 0 {
		return 0, ErrBadQuantity
	}
	if price <= 0 {
		return 0, ErrBadPrice
	}
	c, ok := l.get(key)
	if !ok {
		return 0, ErrNoPosition
	}
	nowMs := l.now().UnixMilli()

	for i := 0; i < casRetryLimit; i++ {
		snap := c.snapshot()
		if snap.Flat() {
			return 0, ErrNoPosition
		}

		curAbs := abs(snap.Quantity)
		closed := quantity
		if closed > curAbs {
			closed = curAbs
		}
		remaining := curAbs - closed

		perUnit := price - snap.EntryPrice
		if key.Side == SideShort {
			perUnit = snap.EntryPrice - price
		}
		pnlDelta := toFixed(perUnit * closed)

		curQty := toFixed(snap.Quantity)
		newQty := toFixed(remaining)
		if snap.Quantity < 0 {
			newQty = -newQty
		}
		if c.quantity.CompareAndSwap(curQty, newQty) {
			c.pnl.Add(pnlDelta)
			c.updatedMs.Store(nowMs)
			c.version.Add(1)
			if remaining < epsilon {
				l.cells.Delete(key)
			}
			return closed, nil
		}
	}
	return 0, ErrContention
}

// Snapshot returns a consistent read-only view of the position, or false
// if no cell exists for the key.
func (l *Ledger) Snapshot(key Key) (Snapshot, bool) {
	c, ok := l.get(key)
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// HasPosition reports whether the key holds a non-flat position.
func (l *Ledger) HasPosition(key Key) bool {
	s, ok := l.Snapshot(key)
	return ok && !s.Flat()
}

// ClosableQuantity returns the absolute quantity available to close.
func (l *Ledger) ClosableQuantity(key Key) float64 {
	s, ok := l.Snapshot(key)
	if !ok {
		return 0
	}
	return abs(s.Quantity)
}

// Clear removes a position cell outright, for recovery paths.
func (l *Ledger) Clear(key Key) {
	l.cells.Delete(key)
}

// Range calls fn for every live position until fn returns false.
func (l *Ledger) Range(fn func(Key, Snapshot) bool) {
	l.cells.Range(func(k, v any) bool {
		return fn(k.(Key), v.(*cell).snapshot())
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
