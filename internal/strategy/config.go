// Package strategy defines the boundary between signal producers and the
// engine, plus the YAML configuration describing each strategy slot.
package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trading-engine/internal/position"
)

// Config describes one strategy slot in YAML.
type Config struct {
	Name        string            `yaml:"name"`
	Exchange    string            `yaml:"exchange"`
	Symbol      string            `yaml:"symbol"`
	Side        string            `yaml:"side"` // LONG or SHORT
	Quantity    float64           `yaml:"quantity"`
	StopLossPct float64           `yaml:"stop_loss_pct"`   // 0 disables the stop leg
	TakeProfit  float64           `yaml:"take_profit_pct"` // 0 disables the take-profit leg
	Parameters  map[string]string `yaml:"parameters"`
	Enabled     bool              `yaml:"enabled"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy slots from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for i, cfg := range file.Strategies {
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("strategy %d: %w", i, err)
		}
	}
	return file.Strategies, nil
}

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("missing name")
	}
	if c.Symbol == "" {
		return fmt.Errorf("%s: missing symbol", c.Name)
	}
	if c.Side != string(position.SideLong) && c.Side != string(position.SideShort) {
		return fmt.Errorf("%s: side must be LONG or SHORT, got %q", c.Name, c.Side)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("%s: quantity must be positive", c.Name)
	}
	return nil
}

// Key returns the position slot this strategy trades.
func (c Config) Key() position.Key {
	ex := position.Exchange(c.Exchange)
	if ex == "" {
		ex = position.ExchangeBinance
	}
	return position.Key{
		Exchange: ex,
		Symbol:   c.Symbol,
		Strategy: c.Name,
		Side:     position.Side(c.Side),
	}
}
