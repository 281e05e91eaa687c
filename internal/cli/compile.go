package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/plan"
	"github.com/yautze/cube/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	InputOptions
	Database        string // optional compilation log
	Output          string // write the rewritten plan JSON here
	RequirePushdown bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <plan.json>",
		Short: "Rewrite one plan and show the pushed-down SQL",
		Long: `Compile a logical plan: push as much of it as possible into SQL for the
cubes' data sources and print the result.

The plan is read from a JSON file, or from stdin when the argument is "-".
With --db, the compilation is appended to the compilation log for replay.

Exit codes:
  0 - Compiled (pushed, local or fallback)
  1 - Push-down required but not possible, or compilation failed
  2 - Command error (missing files, malformed plan or meta)

Examples:
  cube compile plan.json --meta ./meta
  cube compile plan.json --meta meta.cue --config cube.yaml --db cube.db
  cube compile - --meta meta.cue --format json < plan.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "append the compilation to this log database")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the rewritten plan JSON to a file")
	cmd.Flags().BoolVar(&opts.RequirePushdown, "require-pushdown", false, "fail instead of falling back")

	return cmd
}

func runCompile(opts *CompileOptions, planPath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	in, err := opts.load()
	if err != nil {
		return failInput(f, err)
	}
	if opts.RequirePushdown {
		in.config.RequirePushdown = true
	}
	e, err := loadPlan(planPath, cmd.InOrStdin())
	if err != nil {
		return failInput(f, err)
	}
	c, err := in.compiler(opts.RootOptions)
	if err != nil {
		return failInput(f, err)
	}

	f.VerboseLog("Compiling %s (%d nodes, list mode %s)", planPath, e.Count(), in.config.Mode())
	res, err := c.Compile(cmd.Context(), e)
	if err != nil {
		return compileFailure(f, err)
	}

	if opts.Database != "" {
		if err := logCompilation(cmd, opts.Database, in, e, res); err != nil {
			return f.Fail(ExitFailure, ErrCodeStoreFailed, err)
		}
		f.VerboseLog("Logged compilation %s to %s", res.ID, opts.Database)
	}
	if opts.Output != "" {
		if err := writePlanFile(opts.Output, res.Plan); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err)
		}
	}

	if f.Format == "json" {
		return f.Success(res)
	}
	writeResultText(cmd.OutOrStdout(), planPath, res)
	return nil
}

func compileFailure(f *OutputFormatter, err error) error {
	switch {
	case plan.IsMalformedPlan(err):
		return f.Fail(ExitCommandError, ErrCodeMalformedPlan, err)
	case compiler.IsFallback(err):
		return f.Fail(ExitFailure, ErrCodeFallback, err)
	default:
		return f.Fail(ExitFailure, ErrCodeCompileFailed, err)
	}
}

func logCompilation(cmd *cobra.Command, path string, in *loaded, e *plan.Expr, res *compiler.Result) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.WriteCompilation(cmd.Context(), in.config, e, res)
}

func writePlanFile(path string, e *plan.Expr) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// writeResultText prints a result for humans:
//
//	✓ plan.json: pushed (1 region, 4 iteration(s))
//	  [default] SELECT SUM("orders"."amount") FROM public.orders AS "orders"
func writeResultText(w io.Writer, name string, res *compiler.Result) {
	mark := "✓"
	if res.Outcome == compiler.OutcomeFallback {
		mark = "!"
	}
	fmt.Fprintf(w, "%s %s: %s (%s, %d iteration(s))\n", mark, name, res.Outcome,
		plural(len(res.Pushed), "region"), res.Stats.Iterations)
	for _, q := range res.Pushed {
		fmt.Fprintf(w, "  [%s] %s\n", q.DataSource, q.SQL)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "  %s: %s\n", d.Code, d.Message)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
