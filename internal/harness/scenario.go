package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/plan"
)

// Scenario defines one compilation and its expected result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Plan is the path of the input plan JSON.
	Plan string `yaml:"plan"`

	// Meta is the path of the CUE meta definition (file or directory).
	Meta string `yaml:"meta"`

	// Config overrides the default compiler configuration. It uses the
	// config file format; fields left out keep their defaults.
	Config yaml.Node `yaml:"config,omitempty"`

	Expect Expect `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`

	config config.Config
}

// Expect is the required shape of the result.
type Expect struct {
	// Outcome is pushed, local or fallback.
	Outcome string `yaml:"outcome"`

	// Pushed lists the expected SQL of every pushed region in plan order.
	// Nil skips the check; an empty list requires no pushed region.
	Pushed []string `yaml:"pushed,omitempty"`

	// Diagnostics lists the expected diagnostic codes in order.
	Diagnostics []string `yaml:"diagnostics,omitempty"`
}

// Assertion is an additional check on the result.
type Assertion struct {
	Type string `yaml:"type"`

	// Text is the substring to find (sql_contains).
	Text string `yaml:"text,omitempty"`

	// Rule is the rule name (rule_applied).
	Rule string `yaml:"rule,omitempty"`
	// Min is the minimum number of applications (rule_applied).
	Min int `yaml:"min,omitempty"`

	// Op is the node kind to count (plan_op).
	Op string `yaml:"op,omitempty"`
	// Count is the exact number of nodes (plan_op).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSQLContains = "sql_contains"
	AssertRuleApplied = "rule_applied"
	AssertPlanOp      = "plan_op"
	AssertReplayMatch = "replay_match"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving plan and meta paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Plan = resolve(basePath, scenario.Plan)
	scenario.Meta = resolve(basePath, scenario.Meta)

	if err := scenario.parseConfig(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// parseConfig re-encodes the config node and reads it with the config
// file parser, so defaults and strict field checks apply.
func (s *Scenario) parseConfig() error {
	if s.Config.Kind == 0 {
		s.config = config.Default()
		return nil
	}
	data, err := yaml.Marshal(&s.Config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s.config = cfg
	return nil
}

// CompilerConfig returns the effective compiler configuration.
func (s *Scenario) CompilerConfig() config.Config { return s.config }

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Plan == "" {
		return fmt.Errorf("plan is required")
	}
	if s.Meta == "" {
		return fmt.Errorf("meta is required")
	}
	for _, p := range []string{s.Plan, s.Meta} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	switch compiler.Outcome(s.Expect.Outcome) {
	case compiler.OutcomePushed, compiler.OutcomeLocal, compiler.OutcomeFallback:
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertSQLContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for sql_contains", index)
		}
	case AssertRuleApplied:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rule_applied", index)
		}
		if a.Min < 0 {
			return fmt.Errorf("assertions[%d]: min must be non-negative for rule_applied", index)
		}
	case AssertPlanOp:
		if _, ok := plan.Lookup(a.Op); !ok {
			return fmt.Errorf("assertions[%d]: unknown op %q for plan_op", index, a.Op)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for plan_op", index)
		}
	case AssertReplayMatch:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
