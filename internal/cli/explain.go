package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	InputOptions
	Dot string // Graphviz output path; "-" for stdout
}

// ExplainResult is the JSON form of an explanation.
type ExplainResult struct {
	Outcome    string         `json:"outcome"`
	Stop       string         `json:"stop"`
	Iterations int            `json:"iterations"`
	Classes    int            `json:"classes"`
	Nodes      int            `json:"nodes"`
	Cost       uint64         `json:"cost"`
	Applied    map[string]int `json:"applied"`
	Plan       string         `json:"plan"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <plan.json>",
		Short: "Show how a plan was rewritten",
		Long: `Compile a plan and report the saturation: how many rules fired, the
size of the e-graph, the cost of the extracted plan and the plan itself.
With --dot, the saturated e-graph is written in Graphviz format.

Examples:
  cube explain plan.json --meta meta.cue
  cube explain plan.json --meta meta.cue --dot - | dot -Tsvg > egraph.svg`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Dot, "dot", "", `write the e-graph in Graphviz format ("-" for stdout)`)

	return cmd
}

func runExplain(opts *ExplainOptions, planPath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	in, err := opts.load()
	if err != nil {
		return failInput(f, err)
	}
	e, err := loadPlan(planPath, cmd.InOrStdin())
	if err != nil {
		return failInput(f, err)
	}
	c, err := in.compiler(opts.RootOptions)
	if err != nil {
		return failInput(f, err)
	}

	x, err := c.Explain(cmd.Context(), e)
	if err != nil {
		return compileFailure(f, err)
	}

	switch opts.Dot {
	case "":
	case "-":
		_, err := fmt.Fprint(cmd.OutOrStdout(), x.Dot())
		return err
	default:
		if err := os.WriteFile(opts.Dot, []byte(x.Dot()), 0o644); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Errorf("failed to write dot file: %w", err))
		}
		f.VerboseLog("Wrote e-graph to %s", opts.Dot)
	}

	res := x.Result
	out := ExplainResult{
		Outcome:    string(res.Outcome),
		Stop:       string(res.Stats.Stop),
		Iterations: res.Stats.Iterations,
		Classes:    res.Stats.Classes,
		Nodes:      res.Stats.Nodes,
		Cost:       res.Stats.Cost,
		Applied:    res.Stats.Applied,
		Plan:       res.Plan.String(),
	}
	if out.Applied == nil {
		out.Applied = map[string]int{}
	}
	if f.Format == "json" {
		return f.Success(out)
	}

	w := cmd.OutOrStdout()
	writeResultText(w, planPath, res)
	fmt.Fprintf(w, "\nStop reason: %s\n", out.Stop)
	fmt.Fprintf(w, "E-graph: %d classes, %d nodes\n", out.Classes, out.Nodes)
	fmt.Fprintf(w, "Cost: %d\n", out.Cost)
	if len(out.Applied) > 0 {
		fmt.Fprintln(w, "Rules applied:")
		for _, name := range slices.Sorted(maps.Keys(out.Applied)) {
			fmt.Fprintf(w, "  %-40s %d\n", name, out.Applied[name])
		}
	}
	fmt.Fprintf(w, "\nPlan:\n%s", out.Plan)
	return nil
}
