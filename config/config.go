// Package config provides configuration for the orchestration core.
// Precedence: defaults < YAML file. All values have safe defaults so a nil
// or missing file yields a working configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the orchestration core.
type Config struct {
	Router  Router  `yaml:"router"`
	Budgets Budgets `yaml:"budgets"`
	Memory  Memory  `yaml:"memory"`
	Window  Window  `yaml:"window"`
	Logging Logging `yaml:"logging"`
}

// Router holds routing thresholds and structural signal configuration.
type Router struct {
	// CapabilityThreshold is the minimum registry match confidence for a
	// capability route. The boundary is inclusive: a match at exactly the
	// threshold counts.
	CapabilityThreshold float64 `yaml:"capability_threshold"`
	// Keywords extends the built-in structural keyword list indicating a
	// mechanically solvable task.
	Keywords []string `yaml:"keywords"`
	// Patterns extends the built-in shape patterns (regular expressions).
	Patterns []string `yaml:"patterns"`
}

// Budgets holds per-strategy latency budgets. Zero means the strategy's
// declared default (reasoning: unbounded).
type Budgets struct {
	Capability    time.Duration `yaml:"capability"`
	GeneratedCode time.Duration `yaml:"generated_code"`
	Reasoning     time.Duration `yaml:"reasoning"`
}

// Memory holds working memory policy configuration.
type Memory struct {
	// ActionsPerFinding is the number of qualifying information-gathering
	// attempts permitted between findings externalizations (the 2-Action Rule).
	ActionsPerFinding int `yaml:"actions_per_finding"`
	// StrikeLimit is the per-class failure count at which the 3-Strike
	// Protocol halts automatic retrying.
	StrikeLimit int `yaml:"strike_limit"`
}

// Window holds context window compaction configuration.
type Window struct {
	// TokenBudget is the compaction trigger and target.
	TokenBudget int `yaml:"token_budget"`
	// PinnedFailures is the number of most recent failure entries excluded
	// from summarization.
	PinnedFailures int `yaml:"pinned_failures"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Router:  Router{CapabilityThreshold: 0.80},
		Budgets: Budgets{Capability: 100 * time.Millisecond, GeneratedCode: 5 * time.Second, Reasoning: 0},
		Memory:  Memory{ActionsPerFinding: 2, StrikeLimit: 3},
		Window:  Window{TokenBudget: 8192, PinnedFailures: 5},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads a YAML file over the defaults. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configured values are in range.
func (c *Config) Validate() error {
	if c.Router.CapabilityThreshold < 0 || c.Router.CapabilityThreshold > 1 {
		return fmt.Errorf("router.capability_threshold must be in [0,1], got %v", c.Router.CapabilityThreshold)
	}
	if c.Memory.ActionsPerFinding < 1 {
		return fmt.Errorf("memory.actions_per_finding must be >= 1, got %d", c.Memory.ActionsPerFinding)
	}
	if c.Memory.StrikeLimit < 1 {
		return fmt.Errorf("memory.strike_limit must be >= 1, got %d", c.Memory.StrikeLimit)
	}
	if c.Window.TokenBudget < 0 {
		return fmt.Errorf("window.token_budget must be >= 0, got %d", c.Window.TokenBudget)
	}
	if c.Window.PinnedFailures < 0 {
		return fmt.Errorf("window.pinned_failures must be >= 0, got %d", c.Window.PinnedFailures)
	}
	return nil
}
