// Package reconcile periodically compares the engine's local position
// ledger against the venue's authoritative view and reports drift.
package reconcile

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"trading-engine/internal/events"
	"trading-engine/internal/position"
	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/common"
)

// driftTolerance is the quantity mismatch below which local and venue
// state are considered equal.
const driftTolerance = 1e-4

// slot aggregates positions by symbol and direction. The venue does not
// know about strategies, so per-strategy ledger cells are summed before
// comparison.
type slot struct {
	Symbol string
	Side   position.Side
}

// Service runs the periodic drift check.
type Service struct {
	reader   common.PositionReader
	ledger   *position.Ledger
	bus      *events.Bus
	writer   *db.BatchWriter // optional, nil skips persistence
	exchange position.Exchange
	interval time.Duration
	mu       sync.Mutex
}

// Report holds the outcome of one reconciliation pass.
type Report struct {
	Timestamp time.Time
	Drifts    []Drift
}

// Drift is one symbol/side slot where local and venue quantities differ.
type Drift struct {
	Symbol    string
	Side      position.Side
	LocalQty  float64
	RemoteQty float64
}

func NewService(reader common.PositionReader, ledger *position.Ledger, bus *events.Bus, writer *db.BatchWriter, exchange position.Exchange, interval time.Duration) *Service {
	return &Service{
		reader:   reader,
		ledger:   ledger,
		bus:      bus,
		writer:   writer,
		exchange: exchange,
		interval: interval,
	}
}

// Start launches the periodic loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					log.Printf("reconcile: %v", err)
					continue
				}
				s.logReport(report)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("reconcile: started (interval %v)", s.interval)
}

// Reconcile performs one comparison pass. Every drifted slot is published
// on the bus; ledger snapshots are written through to the journal so the
// persisted position table tracks the live ledger.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remote, err := s.reader.Positions(ctx)
	if err != nil {
		return nil, err
	}

	local := make(map[slot]float64)
	s.ledger.Range(func(key position.Key, snap position.Snapshot) bool {
		local[slot{Symbol: key.Symbol, Side: key.Side}] += math.Abs(snap.Quantity)
		if s.writer != nil {
			s.persist(key, snap)
		}
		return true
	})

	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			log.Printf("reconcile: flush journal: %v", err)
		}
	}

	remoteQty := make(map[slot]float64)
	for _, p := range remote {
		q := math.Abs(p.Qty)
		if q < driftTolerance {
			continue
		}
		remoteQty[slot{Symbol: p.Symbol, Side: sideOf(p)}] += q
	}

	report := &Report{Timestamp: time.Now()}
	seen := make(map[slot]bool)
	for sl, lq := range local {
		seen[sl] = true
		if rq := remoteQty[sl]; math.Abs(lq-rq) > driftTolerance {
			report.Drifts = append(report.Drifts, Drift{Symbol: sl.Symbol, Side: sl.Side, LocalQty: lq, RemoteQty: rq})
		}
	}
	for sl, rq := range remoteQty {
		if !seen[sl] {
			report.Drifts = append(report.Drifts, Drift{Symbol: sl.Symbol, Side: sl.Side, LocalQty: 0, RemoteQty: rq})
		}
	}

	if s.bus != nil {
		for _, d := range report.Drifts {
			s.bus.Publish(events.EventReconcileDrift, events.DriftEvent{
				Key:       position.Key{Exchange: s.exchange, Symbol: d.Symbol, Side: d.Side},
				LocalQty:  d.LocalQty,
				RemoteQty: d.RemoteQty,
				At:        report.Timestamp,
			})
		}
	}
	return report, nil
}

// sideOf maps a venue position row to a ledger direction. Hedge-mode rows
// carry an explicit side; one-way rows are classified by sign.
func sideOf(p common.PositionInfo) position.Side {
	switch p.PositionSide {
	case common.PositionSideLong:
		return position.SideLong
	case common.PositionSideShort:
		return position.SideShort
	}
	if p.Qty < 0 {
		return position.SideShort
	}
	return position.SideLong
}

func (s *Service) persist(key position.Key, snap position.Snapshot) {
	if snap.Flat() {
		s.writer.Write(db.DeletePositionOp(string(key.Exchange), key.Symbol, key.Strategy, string(key.Side)))
		return
	}
	s.writer.Write(db.UpsertPositionOp(db.PositionRow{
		Exchange:    string(key.Exchange),
		Symbol:      key.Symbol,
		Strategy:    key.Strategy,
		Side:        string(key.Side),
		Qty:         snap.Quantity,
		EntryPrice:  snap.EntryPrice,
		RealizedPnL: snap.RealizedPnL,
		UpdatedAt:   time.UnixMilli(snap.UpdatedAtMs),
	}))
}

func (s *Service) logReport(r *Report) {
	if len(r.Drifts) == 0 {
		return
	}
	for _, d := range r.Drifts {
		log.Printf("reconcile: drift %s %s local=%.4f venue=%.4f", d.Symbol, d.Side, d.LocalQty, d.RemoteQty)
	}
}
