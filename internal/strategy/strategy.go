package strategy

import (
	"context"
	"log"
	"sync"

	"trading-engine/internal/signal"
)

// Emitter delivers produced signals into the engine. The signal manager
// satisfies this.
type Emitter interface {
	Submit(sig signal.TradingSignal) error
}

// Strategy produces trading signals for one position slot. Run blocks
// until ctx ends; a non-nil error means the strategy gave up early.
type Strategy interface {
	Name() string
	Run(ctx context.Context, emit Emitter) error
}

// Runner hosts a set of strategies, one goroutine each.
type Runner struct {
	emit       Emitter
	strategies []Strategy
	wg         sync.WaitGroup
}

func NewRunner(emit Emitter, strategies ...Strategy) *Runner {
	return &Runner{emit: emit, strategies: strategies}
}

// Start launches every strategy and returns immediately.
func (r *Runner) Start(ctx context.Context) {
	for _, s := range r.strategies {
		r.wg.Add(1)
		go func(s Strategy) {
			defer r.wg.Done()
			if err := s.Run(ctx, r.emit); err != nil && ctx.Err() == nil {
				log.Printf("strategy: %s stopped: %v", s.Name(), err)
			}
		}(s)
	}
}

// Wait blocks until every strategy has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
