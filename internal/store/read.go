package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/plan"
)

// Compilation is one logged compilation.
type Compilation struct {
	Seq           int64
	ID            string
	PlanHash      string
	OutputHash    string
	Outcome       compiler.Outcome
	Config        config.Config
	Input         *plan.Expr
	Output        *plan.Expr
	Diagnostics   []compiler.Diagnostic
	Stats         compiler.Stats
	EngineVersion string
}

// ListOptions filters ListCompilations.
type ListOptions struct {
	// PlanHash keeps only compilations of one input plan.
	PlanHash string
	// Limit caps the number of rows; zero means no limit.
	Limit int
}

const selectColumns = `
	SELECT seq, id, plan_hash, output_hash, outcome, config, input, output, diagnostics, stats, engine_version
	FROM compilations`

// ReadCompilation returns the compilation with the given id, or ErrNotFound.
func (s *Store) ReadCompilation(ctx context.Context, id string) (Compilation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	c, err := scanCompilation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Compilation{}, fmt.Errorf("read compilation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Compilation{}, fmt.Errorf("read compilation %s: %w", id, err)
	}
	return c, nil
}

// ListCompilations returns logged compilations in log order. It returns an
// empty slice, not nil, when nothing matches.
func (s *Store) ListCompilations(ctx context.Context, opts ListOptions) ([]Compilation, error) {
	query := selectColumns
	var args []any
	if opts.PlanHash != "" {
		query += ` WHERE plan_hash = ?`
		args = append(args, opts.PlanHash)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compilations: %w", err)
	}
	defer rows.Close()

	out := []Compilation{}
	for rows.Next() {
		c, err := scanCompilation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compilations: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompilation(row scanner) (Compilation, error) {
	var (
		c                          Compilation
		outcome, cfg, diags, stats string
		inBlob, outBlob            []byte
	)
	if err := row.Scan(&c.Seq, &c.ID, &c.PlanHash, &c.OutputHash, &outcome, &cfg,
		&inBlob, &outBlob, &diags, &stats, &c.EngineVersion); err != nil {
		return Compilation{}, err
	}
	c.Outcome = compiler.Outcome(outcome)

	var err error
	if c.Input, err = decodePlan(inBlob); err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: input: %w", c.ID, err)
	}
	if c.Output, err = decodePlan(outBlob); err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: output: %w", c.ID, err)
	}
	if err := unmarshalText(cfg, &c.Config); err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: config: %w", c.ID, err)
	}
	if err := unmarshalText(diags, &c.Diagnostics); err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: diagnostics: %w", c.ID, err)
	}
	if err := unmarshalText(stats, &c.Stats); err != nil {
		return Compilation{}, fmt.Errorf("compilation %s: stats: %w", c.ID, err)
	}
	return c, nil
}
