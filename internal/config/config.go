// Package config loads engine settings from defaults, an optional YAML
// file, and environment variables via viper. Policy knobs (retry, timeout,
// gate TTL) live here so nothing in the engine is hardcoded.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

type Config struct {
	DataDir string

	// Retry policy for transient executor failures.
	MaxAttempts int
	Backoff     []time.Duration

	// Per-step executor call timeout; a timeout counts as transient.
	StepTimeout time.Duration

	// GateTTL auto-rejects a pending gate after the duration; zero
	// disables expiry for that kind.
	GateTTL           map[workflow.GateKind]time.Duration
	GateSweepInterval time.Duration

	RelayBuffer int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", "data")
	v.SetDefault("retry.max-attempts", 3)
	v.SetDefault("retry.backoff", []string{"250ms", "1s", "4s"})
	v.SetDefault("step-timeout", "60s")
	v.SetDefault("gate-ttl.plan", "0")
	v.SetDefault("gate-ttl.tool", "0")
	v.SetDefault("gate-ttl.player", "0")
	v.SetDefault("gate-sweep-interval", "1s")
	v.SetDefault("relay-buffer", 64)
}

// Load reads configuration out of a viper instance that the CLI has already
// pointed at its config file and environment.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	cfg := Config{
		DataDir:     v.GetString("data-dir"),
		MaxAttempts: v.GetInt("retry.max-attempts"),
		StepTimeout: v.GetDuration("step-timeout"),
		GateTTL: map[workflow.GateKind]time.Duration{
			workflow.GateKindPlan:   v.GetDuration("gate-ttl.plan"),
			workflow.GateKindTool:   v.GetDuration("gate-ttl.tool"),
			workflow.GateKindPlayer: v.GetDuration("gate-ttl.player"),
		},
		GateSweepInterval: v.GetDuration("gate-sweep-interval"),
		RelayBuffer:       v.GetInt("relay-buffer"),
	}
	for _, raw := range v.GetStringSlice("retry.backoff") {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff entry %q: %w", raw, err)
		}
		cfg.Backoff = append(cfg.Backoff, d)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting any file
// or environment.
func Default() Config {
	cfg, err := Load(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry.max-attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if len(c.Backoff) == 0 {
		return fmt.Errorf("retry.backoff must list at least one duration")
	}
	for i, d := range c.Backoff {
		if d < 0 {
			return fmt.Errorf("retry.backoff[%d] must be >= 0", i)
		}
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step-timeout must be >= 0")
	}
	for kind, d := range c.GateTTL {
		if err := workflow.ValidateGateKind(kind); err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("gate-ttl.%s must be >= 0", kind)
		}
	}
	if c.GateSweepInterval <= 0 {
		return fmt.Errorf("gate-sweep-interval must be > 0")
	}
	if c.RelayBuffer < 1 {
		return fmt.Errorf("relay-buffer must be >= 1")
	}
	return nil
}
