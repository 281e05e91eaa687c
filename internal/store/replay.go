package store

import (
	"context"
	"fmt"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// ReplayResult compares a logged compilation with a fresh one.
type ReplayResult struct {
	ID       string           `json:"id"`
	PlanHash string           `json:"plan_hash"`
	Expected string           `json:"expected_output_hash"`
	Actual   string           `json:"actual_output_hash,omitempty"`
	Outcome  compiler.Outcome `json:"outcome,omitempty"`
	Match    bool             `json:"match"`
	// Error is set when the recompilation failed.
	Error string `json:"error,omitempty"`
}

// Replay recompiles the logged input of id with its logged configuration
// against m and reports whether the output hash is unchanged.
func (s *Store) Replay(ctx context.Context, m *meta.Context, id string, opts ...compiler.Option) (ReplayResult, error) {
	c, err := s.ReadCompilation(ctx, id)
	if err != nil {
		return ReplayResult{}, err
	}
	return replay(ctx, m, c, opts)
}

// ReplayAll replays every compilation selected by list.
func (s *Store) ReplayAll(ctx context.Context, m *meta.Context, list ListOptions, opts ...compiler.Option) ([]ReplayResult, error) {
	comps, err := s.ListCompilations(ctx, list)
	if err != nil {
		return nil, err
	}
	out := make([]ReplayResult, 0, len(comps))
	for _, c := range comps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := replay(ctx, m, c, opts)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func replay(ctx context.Context, m *meta.Context, c Compilation, opts []compiler.Option) (ReplayResult, error) {
	r := ReplayResult{ID: c.ID, PlanHash: c.PlanHash, Expected: c.OutputHash}
	comp, err := compiler.New(m, c.Config, opts...)
	if err != nil {
		return r, fmt.Errorf("replay %s: %w", c.ID, err)
	}
	res, err := comp.Compile(ctx, c.Input)
	if err != nil {
		r.Error = err.Error()
		return r, nil
	}
	r.Outcome = res.Outcome
	if r.Actual, err = plan.OutputFingerprint(res.Plan); err != nil {
		return r, fmt.Errorf("replay %s: %w", c.ID, err)
	}
	r.Match = r.Actual == r.Expected
	return r, nil
}
