package scanner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights controls how much each score component contributes to the
// composite. They are relative; the scorer normalizes by their sum.
type Weights struct {
	AnnualizedReturn float64 `yaml:"annualized_return"`
	PremiumPercent   float64 `yaml:"premium_percent"`
	DTEFit           float64 `yaml:"dte_fit"`
	DeltaProximity   float64 `yaml:"delta_proximity"`
}

// Targets describes what an ideal wheel entry looks like.
type Targets struct {
	AnnualizedReturn float64 `yaml:"annualized_return"` // percent considered a full score
	PremiumPercent   float64 `yaml:"premium_percent"`   // percent of capital per cycle
	Delta            float64 `yaml:"delta"`             // absolute delta to sell at
	IdealDTE         int     `yaml:"ideal_dte"`
	MinDTE           int     `yaml:"min_dte"`
	MaxDTE           int     `yaml:"max_dte"`
}

// Limits are the hard elimination thresholds, in percent of net worth.
type Limits struct {
	MaxPositionPercent float64 `yaml:"max_position_percent"`
	MaxSectorPercent   float64 `yaml:"max_sector_percent"`
}

// Config is the scanner tuning file.
type Config struct {
	Weights Weights `yaml:"weights"`
	Targets Targets `yaml:"targets"`
	Limits  Limits  `yaml:"limits"`
}

// DefaultConfig returns the tuning used when no file is present.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			AnnualizedReturn: 0.35,
			PremiumPercent:   0.25,
			DTEFit:           0.20,
			DeltaProximity:   0.20,
		},
		Targets: Targets{
			AnnualizedReturn: 30,
			PremiumPercent:   1.0,
			Delta:            0.30,
			IdealDTE:         30,
			MinDTE:           7,
			MaxDTE:           60,
		},
		Limits: Limits{
			MaxPositionPercent: 10,
			MaxSectorPercent:   20,
		},
	}
}

// LoadConfig reads scanner tuning from a YAML file. A missing file falls back
// to defaults; a present but invalid file is an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse scanner config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects tunings the scorer cannot work with.
func (c Config) Validate() error {
	sum := c.Weights.AnnualizedReturn + c.Weights.PremiumPercent + c.Weights.DTEFit + c.Weights.DeltaProximity
	if sum <= 0 {
		return fmt.Errorf("scanner config: weights must sum to a positive value")
	}
	if c.Targets.MinDTE < 0 || c.Targets.MaxDTE < c.Targets.MinDTE {
		return fmt.Errorf("scanner config: dte window %d..%d is invalid", c.Targets.MinDTE, c.Targets.MaxDTE)
	}
	if c.Targets.IdealDTE <= 0 {
		return fmt.Errorf("scanner config: ideal_dte must be positive")
	}
	if c.Targets.Delta <= 0 || c.Targets.Delta >= 1 {
		return fmt.Errorf("scanner config: target delta %v out of (0, 1)", c.Targets.Delta)
	}
	if c.Limits.MaxPositionPercent <= 0 || c.Limits.MaxSectorPercent <= 0 {
		return fmt.Errorf("scanner config: limits must be positive")
	}
	return nil
}
