package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yautze/cube/internal/rewrite"
	"github.com/yautze/cube/internal/saturate"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, rewrite.ListFlat, cfg.Mode())
	assert.Equal(t, saturate.DefaultBudget(), cfg.SaturationBudget())

	rc := cfg.RewriteConfig()
	assert.Equal(t, rewrite.DefaultConfig(), rc)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
list_mode: cons
budget:
  max_iterations: 3
rules:
  window: false
require_pushdown: true
`))
	require.NoError(t, err)
	assert.Equal(t, rewrite.ListCons, cfg.Mode())
	assert.Equal(t, 3, cfg.Budget.MaxIterations)
	assert.Equal(t, saturate.DefaultMaxNodes, cfg.Budget.MaxNodes, "omitted fields keep defaults")
	assert.False(t, cfg.Rules.Window)
	assert.True(t, cfg.Rules.Aggregate)
	assert.True(t, cfg.RequirePushdown)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "list_mod: flat\n", "field list_mod not found"},
		{"bad mode", "list_mode: tree\n", "list mode"},
		{"negative budget", "budget:\n  max_nodes: -1\n", "max_nodes"},
		{"wrong type", "budget: 3\n", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget:\n  max_iterations: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Budget.MaxIterations)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
