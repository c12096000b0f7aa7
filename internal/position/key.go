package position

import "fmt"

// Exchange identifies a trading venue.
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE"
	ExchangeMexc    Exchange = "MEXC"
	ExchangeAster   Exchange = "ASTER"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing direction for a held side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Key uniquely identifies one logical position slot. All position and
// pending-order state is sharded by it; two strategies never share a key.
type Key struct {
	Exchange Exchange
	Symbol   string
	Strategy string
	Side     Side
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Exchange, k.Symbol, k.Strategy, k.Side)
}
