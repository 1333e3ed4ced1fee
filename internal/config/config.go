package config

// Configuration loading and validation for cecat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vkaloerov/cecat/internal/errors"
)

// TimeoutConfig holds the per-operation deadlines.
type TimeoutConfig struct {
	StateMs    int `yaml:"state_ms"`    // state transition convergence
	ExchangeUs int `yaml:"exchange_us"` // process data receive
	RegisterUs int `yaml:"register_us"` // direct register access
}

// LoopConfig holds the cyclic exchange defaults used when the loop command
// is invoked without explicit arguments.
type LoopConfig struct {
	Cycles     int `yaml:"cycles"`
	IntervalMs int `yaml:"interval_ms"`
}

// Config represents the tool configuration
type Config struct {
	Interface string        `yaml:"interface"`
	Verbose   bool          `yaml:"verbose"`
	LogFile   string        `yaml:"log_file,omitempty"`
	Timeouts  TimeoutConfig `yaml:"timeouts"`
	Loop      LoopConfig    `yaml:"loop"`
}

// CreateDefaultConfig creates a configuration with the built-in defaults.
func CreateDefaultConfig() *Config {
	return &Config{
		Timeouts: TimeoutConfig{
			StateMs:    5000,
			ExchangeUs: 2000,
			RegisterUs: 2000,
		},
		Loop: LoopConfig{
			Cycles:     10,
			IntervalMs: 100,
		},
	}
}

// WriteDefaultConfig writes the built-in defaults to path as YAML.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file. Missing fields fall
// back to the built-in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(
				fmt.Errorf("config file not found: %s", path),
				path,
			)
		}
		return nil, errors.WrapConfigError(
			fmt.Errorf("read config file: %w", err),
			path,
		)
	}

	cfg := CreateDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// ValidateConfig validates a configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Timeouts.StateMs <= 0 {
		return fmt.Errorf("timeouts.state_ms must be positive, got %d", cfg.Timeouts.StateMs)
	}
	if cfg.Timeouts.ExchangeUs <= 0 {
		return fmt.Errorf("timeouts.exchange_us must be positive, got %d", cfg.Timeouts.ExchangeUs)
	}
	if cfg.Timeouts.RegisterUs <= 0 {
		return fmt.Errorf("timeouts.register_us must be positive, got %d", cfg.Timeouts.RegisterUs)
	}
	if cfg.Loop.Cycles < 1 || cfg.Loop.Cycles > 1000000 {
		return fmt.Errorf("loop.cycles must be in 1..1000000, got %d", cfg.Loop.Cycles)
	}
	if cfg.Loop.IntervalMs < 1 || cfg.Loop.IntervalMs > 10000 {
		return fmt.Errorf("loop.interval_ms must be in 1..10000, got %d", cfg.Loop.IntervalMs)
	}
	return nil
}
