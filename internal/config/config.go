// Package config holds the per-compilation settings: list mode, budget,
// rewrite-set toggles and whether budget exhaustion is an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yautze/cube/internal/rewrite"
	"github.com/yautze/cube/internal/saturate"
)

// Config is one compilation configuration.
type Config struct {
	// ListMode selects the list encoding: "flat" or "cons".
	ListMode string `yaml:"list_mode" json:"list_mode"`

	Budget BudgetConfig `yaml:"budget" json:"budget"`

	Rules RulesConfig `yaml:"rules" json:"rules"`

	// RequirePushdown turns a fallback to the unrewritten plan into an error.
	RequirePushdown bool `yaml:"require_pushdown" json:"require_pushdown"`
}

// BudgetConfig bounds saturation.
type BudgetConfig struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// MaxNodes counts every node added during a run, merged ones included.
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`
}

// RulesConfig enables the wrapper rule families.
type RulesConfig struct {
	Aggregate  bool `yaml:"aggregate" json:"aggregate"`
	Window     bool `yaml:"window" json:"window"`
	Projection bool `yaml:"projection" json:"projection"`
	Filter     bool `yaml:"filter" json:"filter"`
	Sort       bool `yaml:"sort" json:"sort"`
	Limit      bool `yaml:"limit" json:"limit"`
}

// Default returns flat lists, the default budget and every rule family on.
func Default() Config {
	return Config{
		ListMode: rewrite.ListFlat.String(),
		Budget: BudgetConfig{
			MaxIterations: saturate.DefaultMaxIterations,
			MaxNodes:      saturate.DefaultMaxNodes,
		},
		Rules: RulesConfig{
			Aggregate:  true,
			Window:     true,
			Projection: true,
			Filter:     true,
			Sort:       true,
			Limit:      true,
		},
	}
}

// Load reads a YAML configuration file. Fields it leaves out keep their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the list mode and the budget.
func (c Config) Validate() error {
	if _, err := rewrite.ParseListMode(c.ListMode); err != nil {
		return err
	}
	return c.SaturationBudget().Validate()
}

// Mode returns the parsed list mode. An invalid mode yields flat; call
// Validate first.
func (c Config) Mode() rewrite.ListMode {
	m, err := rewrite.ParseListMode(c.ListMode)
	if err != nil {
		return rewrite.ListFlat
	}
	return m
}

// RewriteConfig returns the rule-set configuration.
func (c Config) RewriteConfig() rewrite.Config {
	return rewrite.Config{
		ListMode:   c.Mode(),
		Aggregate:  c.Rules.Aggregate,
		Window:     c.Rules.Window,
		Projection: c.Rules.Projection,
		Filter:     c.Rules.Filter,
		Sort:       c.Rules.Sort,
		Limit:      c.Rules.Limit,
	}
}

// SaturationBudget returns the saturation budget.
func (c Config) SaturationBudget() saturate.Budget {
	return saturate.Budget{MaxIterations: c.Budget.MaxIterations, MaxNodes: c.Budget.MaxNodes}
}
