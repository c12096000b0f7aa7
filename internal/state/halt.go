// Package state holds process-wide trading state shared across the engine.
package state

import (
	"log"
	"sync"
	"sync/atomic"
)

// HaltLatch is a one-way switch that stops all trading once tripped.
// Components check it before acting and trip it on unrecoverable
// failures; the process owner decides whether tripping ends the process.
type HaltLatch struct {
	halted atomic.Bool

	mu     sync.Mutex
	reason string
	ch     chan struct{}
}

// NewHaltLatch creates an untripped latch.
func NewHaltLatch() *HaltLatch {
	return &HaltLatch{ch: make(chan struct{})}
}

// Trip halts trading permanently with a reason. Only the first call
// wins; later calls are ignored.
func (h *HaltLatch) Trip(reason string) {
	if !h.halted.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	h.reason = reason
	close(h.ch)
	h.mu.Unlock()
	log.Printf("state: trading halted: %s", reason)
}

// Halted reports whether trading has been stopped.
func (h *HaltLatch) Halted() bool {
	return h.halted.Load()
}

// Reason returns the first trip reason, or empty if untripped.
func (h *HaltLatch) Reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Done returns a channel closed when the latch trips, for select loops.
func (h *HaltLatch) Done() <-chan struct{} {
	return h.ch
}
