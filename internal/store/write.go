package store

import (
	"context"
	"fmt"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/plan"
)

// WriteCompilation appends one compilation to the log. Writing the same id
// twice is a no-op.
func (s *Store) WriteCompilation(ctx context.Context, cfg config.Config, input *plan.Expr, res *compiler.Result) error {
	if res == nil {
		return fmt.Errorf("write compilation: nil result")
	}
	inBlob, planHash, err := encodePlan(input, plan.Fingerprint)
	if err != nil {
		return fmt.Errorf("write compilation %s: input: %w", res.ID, err)
	}
	outBlob, outputHash, err := encodePlan(res.Plan, plan.OutputFingerprint)
	if err != nil {
		return fmt.Errorf("write compilation %s: output: %w", res.ID, err)
	}
	cfgJSON, err := marshalText(cfg)
	if err != nil {
		return fmt.Errorf("write compilation %s: config: %w", res.ID, err)
	}
	diagnostics := res.Diagnostics
	if diagnostics == nil {
		diagnostics = []compiler.Diagnostic{}
	}
	diagJSON, err := marshalText(diagnostics)
	if err != nil {
		return fmt.Errorf("write compilation %s: diagnostics: %w", res.ID, err)
	}
	statsJSON, err := marshalText(res.Stats)
	if err != nil {
		return fmt.Errorf("write compilation %s: stats: %w", res.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compilations
		(id, plan_hash, output_hash, outcome, config, input, output, diagnostics, stats, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.ID,
		planHash,
		outputHash,
		string(res.Outcome),
		cfgJSON,
		inBlob,
		outBlob,
		diagJSON,
		statsJSON,
		compiler.Version,
	)
	if err != nil {
		return fmt.Errorf("write compilation %s: %w", res.ID, err)
	}
	return nil
}
