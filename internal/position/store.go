package position

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrAlreadyHasPosition    = errors.New("position already open for key")
	ErrDuplicatePendingOrder = errors.New("pending order already in flight for key")
	ErrNoPendingOrder        = errors.New("no matching pending order")
)

// DefaultPendingTTL is how long a pending order blocks new attempts
// before it is considered abandoned and pruned.
const DefaultPendingTTL = 30 * time.Second

// storeEntry guards one key's optimistic position plus its in-flight
// orders. The per-entry mutex keeps the duplicate check and the append
// a single critical section without serializing unrelated keys.
type storeEntry struct {
	mu      sync.Mutex
	pos     Position
	pending []PendingOrder
}

// Store is the optimistic position store. It records intended positions
// before the exchange confirms them, and rejects attempts that would
// double-open a key or race a still-pending order.
type Store struct {
	mu         sync.RWMutex
	entries    map[Key]*storeEntry
	pendingTTL time.Duration
	now        func() time.Time
}

// NewStore creates a store with the given pending-order TTL; zero or
// negative picks DefaultPendingTTL.
func NewStore(pendingTTL time.Duration) *Store {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Store{
		entries:    make(map[Key]*storeEntry),
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func (s *Store) entry(key Key) *storeEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &storeEntry{}
	s.entries[key] = e
	return e
}

func (s *Store) lookup(key Key) (*storeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// pruneExpiredLocked drops pending orders older than the TTL. Expired
// entries are treated as abandoned; the exchange reconcile pass is the
// backstop if one actually filled.
func (s *Store) pruneExpiredLocked(e *storeEntry) {
	cutoff := s.now().Add(-s.pendingTTL)
	kept := e.pending[:0]
	for _, o := range e.pending {
		if o.Status.active() && o.CreatedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, o)
	}
	e.pending = kept
}

// TryOpen admits one open attempt for the key. It fails if the key
// already holds a position, or if a live pending order in the same
// direction exists. On success the order is registered as pending.
func (s *Store) TryOpen(key Key, order PendingOrder) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if abs(e.pos.Quantity) > epsilon {
		return ErrAlreadyHasPosition
	}
	s.pruneExpiredLocked(e)
	for _, o := range e.pending {
		if o.Side == order.Side && o.Status.active() {
			return ErrDuplicatePendingOrder
		}
	}
	if order.Status == "" {
		order.Status = StatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	e.pending = append(e.pending, order)
	return nil
}

// SetPosition writes the key's optimistic position outright. Callers use
// it to pre-commit an intended state ahead of exchange confirmation.
func (s *Store) SetPosition(key Key, quantity, entryPrice float64) {
	e := s.entry(key)
	e.mu.Lock()
	e.pos = Position{Quantity: quantity, EntryPrice: entryPrice, UpdatedAt: s.now()}
	e.mu.Unlock()
}

// GetPosition returns the optimistic position, or false if none exists.
func (s *Store) GetPosition(key Key) (Position, bool) {
	e, ok := s.lookup(key)
	if !ok {
		return Position{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if abs(e.pos.Quantity) <= epsilon {
		return Position{}, false
	}
	return e.pos, true
}

// CanOpen reports whether TryOpen would currently admit an open attempt
// in the given direction. Read-only; strategies use it to pre-flight a
// signal before building it.
func (s *Store) CanOpen(key Key, side Side) bool {
	e, ok := s.lookup(key)
	if !ok {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if abs(e.pos.Quantity) > epsilon {
		return false
	}
	cutoff := s.now().Add(-s.pendingTTL)
	for _, o := range e.pending {
		if o.Side == side && o.Status.active() && !o.CreatedAt.Before(cutoff) {
			return false
		}
	}
	return true
}

// ConfirmSubmission moves a pending order to SUBMITTED and attaches the
// venue's order id. It fails if no order with that client id is still
// PENDING.
func (s *Store) ConfirmSubmission(key Key, clientOrderID, exchangeOrderID string) error {
	e, ok := s.lookup(key)
	if !ok {
		return ErrNoPendingOrder
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.pending {
		if e.pending[i].ClientOrderID == clientOrderID && e.pending[i].Status == StatusPending {
			e.pending[i].Status = StatusSubmitted
			e.pending[i].ExchangeOrderID = exchangeOrderID
			return nil
		}
	}
	return ErrNoPendingOrder
}

// OnFilled settles a fill against the optimistic position. A fill in the
// key's direction opens or adds at a quantity-weighted average entry; a
// fill in the opposite direction reduces the position and realizes PnL.
// The matching order moves to FILLED and terminal orders are pruned.
func (s *Store) OnFilled(key Key, exchangeOrderID string, quantity, price float64, side Side) {
	if quantity <= 0 {
		return
	}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.pending {
		if e.pending[i].ExchangeOrderID == exchangeOrderID {
			e.pending[i].Status = StatusFilled
			break
		}
	}
	s.pruneTerminalLocked(e)

	curAbs := abs(e.pos.Quantity)
	if side == key.Side {
		// Opening fill: weighted average entry.
		total := curAbs + quantity
		avg := price
		if curAbs > epsilon {
			avg = (e.pos.EntryPrice*curAbs + price*quantity) / total
		}
		signed := total
		if key.Side == SideShort {
			signed = -signed
		}
		e.pos.Quantity = signed
		e.pos.EntryPrice = avg
		e.pos.UpdatedAt = s.now()
		return
	}

	// Closing fill: reduce and realize.
	closed := quantity
	if closed > curAbs {
		closed = curAbs
	}
	if closed <= epsilon {
		return
	}
	perUnit := price - e.pos.EntryPrice
	if key.Side == SideShort {
		perUnit = e.pos.EntryPrice - price
	}
	remaining := curAbs - closed
	if remaining <= epsilon {
		remaining = 0
	}
	signed := remaining
	if key.Side == SideShort && remaining > 0 {
		signed = -remaining
	}
	e.pos.Quantity = signed
	e.pos.RealizedPnL += perUnit * closed
	e.pos.UpdatedAt = s.now()
}

// OnFailed marks the matching order FAILED and prunes it. The position
// is untouched: a failed order never moved any quantity.
func (s *Store) OnFailed(key Key, exchangeOrderID, clientOrderID string, code int) {
	e, ok := s.lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.pending {
		if (exchangeOrderID != "" && e.pending[i].ExchangeOrderID == exchangeOrderID) ||
			(clientOrderID != "" && e.pending[i].ClientOrderID == clientOrderID) {
			e.pending[i].Status = StatusFailed
			log.Printf("position: order %s failed on %s (code %d)", e.pending[i].ClientOrderID, key, code)
			break
		}
	}
	s.pruneTerminalLocked(e)
}

// pruneTerminalLocked drops orders that reached a terminal status.
// Partially filled orders stay: they are still working on the venue.
func (s *Store) pruneTerminalLocked(e *storeEntry) {
	kept := e.pending[:0]
	for _, o := range e.pending {
		if o.Status.active() || o.Status == StatusPartialFilled {
			kept = append(kept, o)
		}
	}
	e.pending = kept
}

// UpdateOrderStatus transitions a pending order identified by its client
// order id. Unknown ids are ignored; the reconcile pass handles drift.
func (s *Store) UpdateOrderStatus(key Key, clientOrderID string, status OrderStatus) {
	e, ok := s.lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.pending {
		if e.pending[i].ClientOrderID == clientOrderID {
			e.pending[i].Status = status
			return
		}
	}
}

// RemoveOrder drops a pending order once its outcome is settled.
func (s *Store) RemoveOrder(key Key, clientOrderID string) {
	e, ok := s.lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.pending {
		if e.pending[i].ClientOrderID == clientOrderID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// PendingOrders returns a copy of the key's live pending orders after
// pruning expired ones.
func (s *Store) PendingOrders(key Key) []PendingOrder {
	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.pruneExpiredLocked(e)
	out := make([]PendingOrder, len(e.pending))
	copy(out, e.pending)
	return out
}

// Rollback removes the key's entry entirely, discarding the optimistic
// position and any pending orders. Used when an attempt fails outright
// and the pre-committed state must be unwound.
func (s *Store) Rollback(key Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
