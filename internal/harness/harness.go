package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/store"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory compilation log:
//  1. load the meta definition and the plan
//  2. compile with the id "<name>"
//  3. log the compilation, then replay it
//  4. check expectations and assertions
//
// An error is returned only when the scenario cannot be executed; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := meta.Load(scenario.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta: %w", err)
	}
	data, err := os.ReadFile(scenario.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	input, err := plan.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	cfg := scenario.CompilerConfig()
	c, err := compiler.New(m, cfg,
		compiler.WithLogger(logger),
		compiler.WithIDGenerator(compiler.NewFixedGenerator(scenario.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	result := NewResult()
	res, err := c.Compile(ctx, input)
	if err != nil {
		result.AddError(fmt.Sprintf("compilation failed: %v", err))
		return result, nil
	}
	result.Compilation = res

	if err := st.WriteCompilation(ctx, cfg, input, res); err != nil {
		return nil, fmt.Errorf("failed to log compilation: %w", err)
	}
	result.Replay, err = st.Replay(ctx, m, res.ID,
		compiler.WithLogger(logger),
		compiler.WithIDGenerator(compiler.NewFixedGenerator(scenario.Name+"-replay")))
	if err != nil {
		return nil, fmt.Errorf("failed to replay compilation: %w", err)
	}

	for _, msg := range checkExpect(scenario.Expect, res) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
