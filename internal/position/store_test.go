package position

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStoreTryOpen(t *testing.T) {
	key := testKey(SideLong)

	t.Run("first attempt admitted", func(t *testing.T) {
		s := NewStore(0)
		err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1})
		if err != nil {
			t.Fatalf("TryOpen: %v", err)
		}
		if got := len(s.PendingOrders(key)); got != 1 {
			t.Errorf("pending = %d, want 1", got)
		}
	})

	t.Run("rejects when position open", func(t *testing.T) {
		s := NewStore(0)
		s.SetPosition(key, 2, 50000)
		err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1})
		if !errors.Is(err, ErrAlreadyHasPosition) {
			t.Errorf("TryOpen = %v, want ErrAlreadyHasPosition", err)
		}
	})

	t.Run("rejects duplicate same-side pending", func(t *testing.T) {
		s := NewStore(0)
		if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
			t.Fatalf("first TryOpen: %v", err)
		}
		err := s.TryOpen(key, PendingOrder{ClientOrderID: "a2", Side: SideLong, Quantity: 1})
		if !errors.Is(err, ErrDuplicatePendingOrder) {
			t.Errorf("second TryOpen = %v, want ErrDuplicatePendingOrder", err)
		}
	})

	t.Run("settled pending does not block", func(t *testing.T) {
		s := NewStore(0)
		if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
			t.Fatalf("first TryOpen: %v", err)
		}
		s.UpdateOrderStatus(key, "a1", StatusFailed)
		if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a2", Side: SideLong, Quantity: 1}); err != nil {
			t.Errorf("TryOpen after failure = %v, want nil", err)
		}
	})
}

func TestStoreExpiredPendingIsPruned(t *testing.T) {
	key := testKey(SideShort)
	s := NewStore(30 * time.Second)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideShort, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}

	// Inside the TTL the stale order still blocks.
	clock = clock.Add(10 * time.Second)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a2", Side: SideShort, Quantity: 1}); !errors.Is(err, ErrDuplicatePendingOrder) {
		t.Fatalf("TryOpen inside TTL = %v, want ErrDuplicatePendingOrder", err)
	}

	// Past the TTL the abandoned order is pruned and the retry admitted.
	clock = clock.Add(time.Minute)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a3", Side: SideShort, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen past TTL = %v, want nil", err)
	}
	pending := s.PendingOrders(key)
	if len(pending) != 1 || pending[0].ClientOrderID != "a3" {
		t.Errorf("pending = %+v, want only a3", pending)
	}
}

func TestStoreRollback(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideShort, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}
	s.SetPosition(key, 1.5, 42000)

	s.Rollback(key)

	if _, ok := s.GetPosition(key); ok {
		t.Error("position survived rollback")
	}
	if got := s.PendingOrders(key); got != nil {
		t.Errorf("pending survived rollback: %+v", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStoreRemoveOrder(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}
	s.RemoveOrder(key, "a1")
	if got := len(s.PendingOrders(key)); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestStoreGetPositionTreatsFlatAsAbsent(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)
	s.SetPosition(key, 0, 0)
	if _, ok := s.GetPosition(key); ok {
		t.Error("flat position reported as held")
	}
}

func TestStoreConfirmSubmission(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}

	if err := s.ConfirmSubmission(key, "a1", "ex-9"); err != nil {
		t.Fatalf("ConfirmSubmission: %v", err)
	}
	pending := s.PendingOrders(key)
	if len(pending) != 1 || pending[0].Status != StatusSubmitted || pending[0].ExchangeOrderID != "ex-9" {
		t.Errorf("pending = %+v, want a1 SUBMITTED with ex-9", pending)
	}

	// A second confirm finds no PENDING order left.
	if err := s.ConfirmSubmission(key, "a1", "ex-9"); !errors.Is(err, ErrNoPendingOrder) {
		t.Errorf("second ConfirmSubmission = %v, want ErrNoPendingOrder", err)
	}
	if err := s.ConfirmSubmission(key, "missing", "ex-1"); !errors.Is(err, ErrNoPendingOrder) {
		t.Errorf("unknown id ConfirmSubmission = %v, want ErrNoPendingOrder", err)
	}
}

func TestStoreOnFilled(t *testing.T) {
	t.Run("opening fill averages entry", func(t *testing.T) {
		key := testKey(SideLong)
		s := NewStore(0)
		s.OnFilled(key, "ex-1", 1, 100, SideLong)
		s.OnFilled(key, "ex-2", 1, 110, SideLong)

		pos, ok := s.GetPosition(key)
		if !ok {
			t.Fatal("no position after fills")
		}
		if pos.Quantity != 2 || pos.EntryPrice != 105 {
			t.Errorf("pos = %+v, want qty 2 entry 105", pos)
		}
	})

	t.Run("closing fill realizes pnl", func(t *testing.T) {
		key := testKey(SideLong)
		s := NewStore(0)
		s.OnFilled(key, "ex-1", 2, 100, SideLong)
		s.OnFilled(key, "ex-2", 1, 110, SideShort)

		pos, ok := s.GetPosition(key)
		if !ok {
			t.Fatal("no position after partial close")
		}
		if pos.Quantity != 1 || pos.RealizedPnL != 10 {
			t.Errorf("pos = %+v, want qty 1 pnl 10", pos)
		}
	})

	t.Run("short close realizes inverted pnl", func(t *testing.T) {
		key := testKey(SideShort)
		s := NewStore(0)
		s.OnFilled(key, "ex-1", 2, 100, SideShort)
		s.OnFilled(key, "ex-2", 2, 90, SideLong)

		pos, ok := s.GetPosition(key)
		if ok {
			t.Fatalf("fully closed position still held: %+v", pos)
		}
	})

	t.Run("fill settles the matching order", func(t *testing.T) {
		key := testKey(SideLong)
		s := NewStore(0)
		if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
			t.Fatalf("TryOpen: %v", err)
		}
		if err := s.ConfirmSubmission(key, "a1", "ex-1"); err != nil {
			t.Fatalf("ConfirmSubmission: %v", err)
		}
		s.OnFilled(key, "ex-1", 1, 100, SideLong)
		if got := len(s.PendingOrders(key)); got != 0 {
			t.Errorf("pending = %d, want 0 after fill", got)
		}
	})
}

func TestStoreOnFailedLeavesPositionUntouched(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideShort, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}
	s.SetPosition(key, 2, 100)

	s.OnFailed(key, "", "a1", -2019)

	if got := len(s.PendingOrders(key)); got != 0 {
		t.Errorf("pending = %d, want 0 after failure", got)
	}
	pos, ok := s.GetPosition(key)
	if !ok || pos.Quantity != 2 {
		t.Errorf("pos = %+v/%v, want untouched qty 2", pos, ok)
	}
}

func TestStoreCanOpen(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)

	if !s.CanOpen(key, SideLong) {
		t.Error("empty store should admit")
	}
	if err := s.TryOpen(key, PendingOrder{ClientOrderID: "a1", Side: SideLong, Quantity: 1}); err != nil {
		t.Fatalf("TryOpen: %v", err)
	}
	if s.CanOpen(key, SideLong) {
		t.Error("same-side pending should block")
	}
	if !s.CanOpen(key, SideShort) {
		t.Error("opposite side should still admit")
	}

	s.RemoveOrder(key, "a1")
	s.SetPosition(key, 1, 100)
	if s.CanOpen(key, SideLong) {
		t.Error("held position should block")
	}
}

// Concurrent attempts on the same key admit exactly one order.
func TestStoreTryOpenSingleWinner(t *testing.T) {
	key := testKey(SideLong)
	s := NewStore(0)

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.TryOpen(key, PendingOrder{
				ClientOrderID: fmt.Sprintf("a%d", i),
				Side:          SideLong,
				Quantity:      1,
			})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("admitted = %d, want 1", admitted)
	}
}
