package signal

import (
	"testing"
	"time"

	"trading-engine/internal/position"
)

func testKey() position.Key {
	return position.Key{Exchange: position.ExchangeBinance, Symbol: "BTCUSDT", Strategy: "s", Side: position.SideLong}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradingSignal)
		wantErr bool
	}{
		{"valid open", func(s *TradingSignal) {}, false},
		{"valid close", func(s *TradingSignal) { s.Action = ActionClose }, false},
		{"empty symbol", func(s *TradingSignal) { s.Symbol = "" }, true},
		{"empty strategy", func(s *TradingSignal) { s.Strategy = "" }, true},
		{"bad side", func(s *TradingSignal) { s.Side = "SIDEWAYS" }, true},
		{"bad action", func(s *TradingSignal) { s.Action = "HOLD" }, true},
		{"zero quantity", func(s *TradingSignal) { s.Quantity = 0 }, true},
		{"negative quantity", func(s *TradingSignal) { s.Quantity = -1 }, true},
		{"open zero price", func(s *TradingSignal) { s.LatestPrice = 0 }, true},
		{"close zero price", func(s *TradingSignal) {
			s.Action = ActionClose
			s.LatestPrice = 0
		}, true},
		{"close negative price", func(s *TradingSignal) {
			s.Action = ActionClose
			s.LatestPrice = -50000
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := NewOpen(1, testKey(), 0.5, 50000, 0, 0, time.Now())
			tt.mutate(&sig)
			err := sig.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
