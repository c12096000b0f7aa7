package risk

// Config holds the limits a signal must pass before reaching the venue.
type Config struct {
	MaxOrderNotional float64 // per-order cap in quote currency, 0 disables
	MinOrderNotional float64 // venue minimum, 0 disables
	MaxDailyTrades   int     // 0 disables
	MaxDailyLoss     float64 // realized, net of fees; 0 disables
	MaxOpenPositions int     // 0 disables
}

// DefaultConfig returns conservative limits for an unconfigured engine.
func DefaultConfig() Config {
	return Config{
		MaxOrderNotional: 100_000,
		MinOrderNotional: 5,
		MaxDailyTrades:   500,
		MaxDailyLoss:     5_000,
		MaxOpenPositions: 20,
	}
}

// Decision is the outcome of evaluating one signal.
type Decision struct {
	Allowed bool
	Reason  string
}

// Metrics aggregates realized results for the current day.
type Metrics struct {
	DailyTrades      int
	DailyPnL         float64
	DailyLosses      float64
	TotalRealizedPnL float64
	MaxProfit        float64
	MaxDrawdown      float64
}
