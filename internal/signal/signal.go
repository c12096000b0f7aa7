// Package signal defines the trading signals strategies emit and the
// engine consumes.
package signal

import (
	"fmt"
	"time"

	"trading-engine/internal/position"
)

// Action is what a signal asks the engine to do with the position slot.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// TradingSignal is one strategy decision: open or close a position on a
// specific key, with optional protective stop and take-profit prices.
type TradingSignal struct {
	ID          uint64
	Exchange    position.Exchange
	Symbol      string
	Strategy    string
	Side        position.Side
	Action      Action
	Quantity    float64
	LatestPrice float64

	// Optional protective legs for opens; zero means no leg.
	StopPrice   float64
	ProfitPrice float64

	// DataTimestamp is the market-data time the decision was made on;
	// Timestamp is when the signal object was built.
	DataTimestamp time.Time
	Timestamp     time.Time
}

// NewOpen builds an open signal for the key at the current price.
func NewOpen(id uint64, key position.Key, quantity, latestPrice, stopPrice, profitPrice float64, dataTS time.Time) TradingSignal {
	return TradingSignal{
		ID:            id,
		Exchange:      key.Exchange,
		Symbol:        key.Symbol,
		Strategy:      key.Strategy,
		Side:          key.Side,
		Action:        ActionOpen,
		Quantity:      quantity,
		LatestPrice:   latestPrice,
		StopPrice:     stopPrice,
		ProfitPrice:   profitPrice,
		DataTimestamp: dataTS,
		Timestamp:     time.Now(),
	}
}

// NewClose builds a close signal for the held side of the key.
func NewClose(id uint64, key position.Key, quantity, latestPrice float64) TradingSignal {
	return TradingSignal{
		ID:          id,
		Exchange:    key.Exchange,
		Symbol:      key.Symbol,
		Strategy:    key.Strategy,
		Side:        key.Side,
		Action:      ActionClose,
		Quantity:    quantity,
		LatestPrice: latestPrice,
		Timestamp:   time.Now(),
	}
}

// Key returns the position slot the signal targets.
func (s TradingSignal) Key() position.Key {
	return position.Key{
		Exchange: s.Exchange,
		Symbol:   s.Symbol,
		Strategy: s.Strategy,
		Side:     s.Side,
	}
}

// Validate rejects signals the engine must never act on.
func (s TradingSignal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal %d: empty symbol", s.ID)
	}
	if s.Strategy == "" {
		return fmt.Errorf("signal %d: empty strategy", s.ID)
	}
	if s.Side != position.SideLong && s.Side != position.SideShort {
		return fmt.Errorf("signal %d: bad side %q", s.ID, s.Side)
	}
	if s.Action != ActionOpen && s.Action != ActionClose {
		return fmt.Errorf("signal %d: bad action %q", s.ID, s.Action)
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("signal %d: quantity %v must be positive", s.ID, s.Quantity)
	}
	if s.LatestPrice <= 0 {
		return fmt.Errorf("signal %d: price %v must be positive", s.ID, s.LatestPrice)
	}
	return nil
}

func (s TradingSignal) String() string {
	return fmt.Sprintf("signal{id=%d %s %s qty=%v px=%v}",
		s.ID, s.Action, s.Key(), s.Quantity, s.LatestPrice)
}
