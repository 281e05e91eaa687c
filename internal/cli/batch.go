package cli

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/store"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	InputOptions
	Database string
	Jobs     int
}

// BatchItem is the outcome of one plan file.
type BatchItem struct {
	Path   string           `json:"path"`
	Result *compiler.Result `json:"result,omitempty"`
	Code   string           `json:"code,omitempty"`
	Error  string           `json:"error,omitempty"`

	input *plan.Expr
}

// BatchResult summarizes a batch run. Items keep the argument order.
type BatchResult struct {
	Items    []BatchItem `json:"items"`
	Pushed   int         `json:"pushed"`
	Local    int         `json:"local"`
	Fallback int         `json:"fallback"`
	Failed   int         `json:"failed"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <plan.json>...",
		Short: "Compile many plans concurrently",
		Long: `Compile several plan files against one meta definition. Plans are
compiled concurrently and share the loaded meta and configuration; results
are reported in argument order.

Exit codes:
  0 - Every plan compiled
  1 - One or more plans failed
  2 - Command error (missing meta, invalid config)

Examples:
  cube batch plans/*.json --meta ./meta
  cube batch a.json b.json --meta meta.cue --jobs 2 --db cube.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args, cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "append every compilation to this log database")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", runtime.GOMAXPROCS(0), "maximum concurrent compilations")

	return cmd
}

func runBatch(opts *BatchOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Jobs < 1 {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("--jobs must be at least 1, got %d", opts.Jobs))
	}

	in, err := opts.load()
	if err != nil {
		return failInput(f, err)
	}
	c, err := in.compiler(opts.RootOptions)
	if err != nil {
		return failInput(f, err)
	}

	items := make([]BatchItem, len(paths))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(opts.Jobs)
	for i, path := range paths {
		g.Go(func() error {
			item := BatchItem{Path: path}
			defer func() { items[i] = item }()

			e, err := loadPlan(path, nil)
			if err != nil {
				var ie *InputError
				errors.As(err, &ie)
				item.Code, item.Error = ie.Code, err.Error()
				return nil
			}
			item.input = e
			res, err := c.Compile(ctx, e)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				item.Code, item.Error = batchCode(err), err.Error()
				return nil
			}
			item.Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return f.Fail(ExitFailure, ErrCodeCompileFailed, err)
	}

	if opts.Database != "" {
		if err := logBatch(cmd, opts.Database, in, items); err != nil {
			return f.Fail(ExitFailure, ErrCodeStoreFailed, err)
		}
	}

	summary := summarize(items)
	if f.Format == "json" {
		if err := f.Success(summary); err != nil {
			return err
		}
	} else {
		writeBatchText(cmd.OutOrStdout(), summary)
	}
	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d plan(s) failed", summary.Failed, len(items)))
	}
	return nil
}

func batchCode(err error) string {
	switch {
	case plan.IsMalformedPlan(err):
		return ErrCodeMalformedPlan
	case compiler.IsFallback(err):
		return ErrCodeFallback
	default:
		return ErrCodeCompileFailed
	}
}

// logBatch writes results in argument order so the log is reproducible.
func logBatch(cmd *cobra.Command, path string, in *loaded, items []BatchItem) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	for _, item := range items {
		if item.Result == nil {
			continue
		}
		if err := s.WriteCompilation(cmd.Context(), in.config, item.input, item.Result); err != nil {
			return err
		}
	}
	return nil
}

func summarize(items []BatchItem) BatchResult {
	out := BatchResult{Items: items}
	for _, item := range items {
		if item.Result == nil {
			out.Failed++
			continue
		}
		switch item.Result.Outcome {
		case compiler.OutcomePushed:
			out.Pushed++
		case compiler.OutcomeLocal:
			out.Local++
		case compiler.OutcomeFallback:
			out.Fallback++
		}
	}
	return out
}

func writeBatchText(w io.Writer, r BatchResult) {
	for _, item := range r.Items {
		if item.Result == nil {
			fmt.Fprintf(w, "✗ %s\n  Error [%s]: %s\n", item.Path, item.Code, item.Error)
			continue
		}
		writeResultText(w, item.Path, item.Result)
	}
	fmt.Fprintf(w, "\n%d pushed, %d local, %d fallback, %d failed\n", r.Pushed, r.Local, r.Fallback, r.Failed)
}
