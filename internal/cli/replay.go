package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Meta     string
	ID       string // optional - specific compilation only
	PlanHash string // optional - compilations of one plan only
	Limit    int
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Compilations []store.ReplayResult `json:"compilations"`
	Total        int                  `json:"total"`
	Mismatched   int                  `json:"mismatched"`
	AllMatch     bool                 `json:"all_match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompile logged plans and verify determinism",
		Long: `Recompile every logged compilation with its recorded configuration and
compare the output hash with the logged one.

A mismatch means the rewrite changed for the same input: either the meta
definition's capabilities changed or compilation is not deterministic.

Exit codes:
  0 - Every compilation reproduced its output
  1 - One or more outputs differ
  2 - Command error (database not found, etc.)

Examples:
  cube replay --db ./cube.db --meta ./meta
  cube replay --db ./cube.db --meta ./meta --id 0190b6b2-...
  cube replay --db ./cube.db --meta ./meta --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Meta, "meta", "", "meta definition (CUE file or directory)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("meta")
	cmd.Flags().StringVar(&opts.ID, "id", "", "replay one compilation only")
	cmd.Flags().StringVar(&opts.PlanHash, "plan-hash", "", "replay compilations of one plan only")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "replay at most this many compilations")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	// store.Open would create a missing database.
	if _, err := os.Stat(opts.Database); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("database not found: %s", opts.Database))
	}
	m, err := meta.Load(opts.Meta)
	if err != nil {
		return failInput(f, &InputError{Code: ErrCodeMetaInvalid, Path: opts.Meta, Err: err})
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStoreFailed, err)
	}
	defer st.Close()

	copts := []compiler.Option{compiler.WithLogger(opts.logger())}
	var results []store.ReplayResult
	if opts.ID != "" {
		r, err := st.Replay(ctx, m, opts.ID, copts...)
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, err)
		}
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeStoreFailed, err)
		}
		results = []store.ReplayResult{r}
	} else {
		list := store.ListOptions{PlanHash: opts.PlanHash, Limit: opts.Limit}
		if results, err = st.ReplayAll(ctx, m, list, copts...); err != nil {
			return f.Fail(ExitFailure, ErrCodeStoreFailed, err)
		}
	}

	summary := ReplaySummary{Compilations: results, Total: len(results), AllMatch: true}
	for _, r := range results {
		if !r.Match {
			summary.Mismatched++
			summary.AllMatch = false
		}
	}

	if f.Format == "json" {
		if err := f.Success(summary); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Fprintf(w, "✗ %s: %s\n", r.ID, r.Error)
			case r.Match:
				fmt.Fprintf(w, "✓ %s: %s\n", r.ID, r.Outcome)
			default:
				fmt.Fprintf(w, "✗ %s: output %s, logged %s\n", r.ID, short(r.Actual), short(r.Expected))
			}
		}
		fmt.Fprintf(w, "\n%d of %d compilation(s) reproduced\n", summary.Total-summary.Mismatched, summary.Total)
	}

	if !summary.AllMatch {
		return NewExitError(ExitFailure, fmt.Sprintf("%d compilation(s) did not reproduce", summary.Mismatched))
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
