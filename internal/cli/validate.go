package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Meta   string
	Config string
}

// ValidationIssue is one invalid input.
type ValidationIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Node locates the offending plan node, e.g. "root/0/2".
	Node string `json:"node,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Plans  int               `json:"plans"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [plan.json]...",
		Short: "Check plans, meta and config without compiling",
		Long: `Check that plan files are well-formed upstream plans, and optionally
that a meta definition and a configuration file load. Nothing is compiled.

Exit codes:
  0 - Everything is valid
  1 - One or more inputs are invalid
  2 - Command error

Examples:
  cube validate plans/*.json
  cube validate --meta ./meta --config cube.yaml plan.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Meta, "meta", "", "meta definition to check (CUE file or directory)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration file to check (YAML)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if len(paths) == 0 && opts.Meta == "" && opts.Config == "" {
		return f.Fail(ExitCommandError, ErrCodeGeneric, errors.New("nothing to validate: pass plan files, --meta or --config"))
	}

	result := ValidationResult{Plans: len(paths)}
	if opts.Meta != "" {
		if _, err := meta.Load(opts.Meta); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{Path: opts.Meta, Code: ErrCodeMetaInvalid, Message: err.Error()})
		} else {
			f.VerboseLog("Meta %s is valid", opts.Meta)
		}
	}
	if opts.Config != "" {
		if _, err := config.Load(opts.Config); err != nil {
			result.Errors = append(result.Errors, ValidationIssue{Path: opts.Config, Code: ErrCodeConfigInvalid, Message: err.Error()})
		}
	}
	for _, path := range paths {
		if issue, ok := validatePlanFile(path); !ok {
			result.Errors = append(result.Errors, issue)
		}
	}
	result.Valid = len(result.Errors) == 0

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, issue := range result.Errors {
			if issue.Node != "" {
				fmt.Fprintf(w, "✗ %s at %s: [%s] %s\n", issue.Path, issue.Node, issue.Code, issue.Message)
			} else {
				fmt.Fprintf(w, "✗ %s: [%s] %s\n", issue.Path, issue.Code, issue.Message)
			}
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ All inputs valid (%d plan(s))\n", result.Plans)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid input(s)", len(result.Errors)))
	}
	return nil
}

func validatePlanFile(path string) (ValidationIssue, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ValidationIssue{Path: path, Code: ErrCodeNotFound, Message: err.Error()}, false
	}
	if _, err := plan.ParseJSON(data); err != nil {
		issue := ValidationIssue{Path: path, Code: ErrCodeMalformedPlan, Message: err.Error()}
		var me *plan.MalformedPlanError
		if errors.As(err, &me) {
			issue.Node = me.Path
			issue.Message = me.Message
		}
		return issue, false
	}
	return ValidationIssue{}, true
}
