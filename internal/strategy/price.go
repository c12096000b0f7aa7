package strategy

import (
	"context"
	"time"

	"trading-engine/pkg/cache"
)

// CachedPrice wraps a PriceFunc with a shared cache so several slots on
// the same symbol cost one venue request per freshness window.
func CachedPrice(c *cache.PriceCache, fetch PriceFunc, maxAge time.Duration) PriceFunc {
	return func(ctx context.Context, symbol string) (float64, error) {
		if px, ok := c.GetFresh(symbol, maxAge); ok {
			return px, nil
		}
		px, err := fetch(ctx, symbol)
		if err != nil {
			// Serve a stale price over failing the poll outright.
			if stale, ok := c.Get(symbol); ok {
				return stale, nil
			}
			return 0, err
		}
		c.Set(symbol, px)
		return px, nil
	}
}
