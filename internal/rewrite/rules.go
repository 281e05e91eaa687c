package rewrite

// Config selects the rule set of one compilation.
type Config struct {
	ListMode ListMode

	// Operators that may be absorbed into a wrapped select.
	Aggregate  bool
	Window     bool
	Projection bool
	Filter     bool
	Sort       bool
	Limit      bool
}

// DefaultConfig enables every wrapper rule in flat list mode.
func DefaultConfig() Config {
	return Config{
		ListMode:   ListFlat,
		Aggregate:  true,
		Window:     true,
		Projection: true,
		Filter:     true,
		Sort:       true,
		Limit:      true,
	}
}

// NewRules returns the rule set for cfg. Capability-gated rules consult m
// when they fire. The order is fixed so saturation is deterministic.
func NewRules(m Meta, cfg Config) []Rule {
	var rules []Rule
	rules = append(rules, pushdownRules()...)
	rules = append(rules, listRules(cfg.ListMode)...)
	rules = append(rules, expressionRules(m)...)
	rules = append(rules, wrapperRules(m, cfg)...)
	return rules
}
