package common

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// WeightTracker follows the venue's used-weight headers so the client can
// back off before hitting a ban. It is advisory; hard pacing is done by
// the client's request limiter.
type WeightTracker struct {
	mu            sync.RWMutex
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
}

// NewWeightTracker creates a tracker for the given weight budget per
// reset window (2400/min for USDT-margined futures).
func NewWeightTracker(limit int, resetInterval time.Duration) *WeightTracker {
	return &WeightTracker{
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// ObserveHeader records the used weight reported by a response header.
func (wt *WeightTracker) ObserveHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	wt.mu.Lock()
	defer wt.mu.Unlock()

	if time.Since(wt.lastReset) >= wt.resetInterval {
		wt.usedWeight = 0
		wt.lastReset = time.Now()
	}
	wt.usedWeight = weight

	pct := float64(wt.usedWeight) / float64(wt.limit) * 100
	if pct >= 95 {
		log.Printf("ratelimit: critical %d/%d (%.1f%%), nearing ban threshold", wt.usedWeight, wt.limit, pct)
	} else if pct >= 80 {
		log.Printf("ratelimit: warning %d/%d (%.1f%%)", wt.usedWeight, wt.limit, pct)
	}
}

// Usage returns the weight used in the current window.
func (wt *WeightTracker) Usage() (used, limit int, percentage float64) {
	wt.mu.RLock()
	defer wt.mu.RUnlock()
	if time.Since(wt.lastReset) >= wt.resetInterval {
		return 0, wt.limit, 0
	}
	return wt.usedWeight, wt.limit, float64(wt.usedWeight) / float64(wt.limit) * 100
}

// NearLimit reports whether the window budget is almost exhausted.
func (wt *WeightTracker) NearLimit() bool {
	_, _, pct := wt.Usage()
	return pct >= 90
}
