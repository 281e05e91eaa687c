package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yautze/cube/internal/compiler"
	"github.com/yautze/cube/internal/config"
	"github.com/yautze/cube/internal/meta"
	"github.com/yautze/cube/internal/plan"
)

// InputOptions holds the flags shared by every command that compiles.
type InputOptions struct {
	Meta   string // CUE file or directory
	Config string // YAML file; empty means defaults
}

func (o *InputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Meta, "meta", "", "meta definition (CUE file or directory)")
	cmd.Flags().StringVar(&o.Config, "config", "", "compiler configuration (YAML file)")
	_ = cmd.MarkFlagRequired("meta")
}

// InputError is a failure to load an input, tagged with the error code
// the command reports for it.
type InputError struct {
	Code string
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// loaded bundles the inputs shared by a compilation run.
type loaded struct {
	meta   *meta.Context
	config config.Config
}

func (o *InputOptions) load() (*loaded, error) {
	m, err := meta.Load(o.Meta)
	if err != nil {
		code := ErrCodeMetaInvalid
		var le *meta.LoadError
		if errors.As(err, &le) && le.Code == meta.ErrCodeNotFound {
			code = ErrCodeNotFound
		}
		return nil, &InputError{Code: code, Path: o.Meta, Err: err}
	}

	cfg := config.Default()
	if o.Config != "" {
		if cfg, err = config.Load(o.Config); err != nil {
			code := ErrCodeConfigInvalid
			if errors.Is(err, os.ErrNotExist) {
				code = ErrCodeNotFound
			}
			return nil, &InputError{Code: code, Path: o.Config, Err: err}
		}
	}
	return &loaded{meta: m, config: cfg}, nil
}

// compiler builds a compiler over the loaded inputs. Extra options override
// the defaults.
func (l *loaded) compiler(opts *RootOptions, extra ...compiler.Option) (*compiler.Compiler, error) {
	all := append([]compiler.Option{compiler.WithLogger(opts.logger())}, extra...)
	c, err := compiler.New(l.meta, l.config, all...)
	if err != nil {
		return nil, &InputError{Code: ErrCodeConfigInvalid, Path: "config", Err: err}
	}
	return c, nil
}

// loadPlan reads a plan JSON file; "-" reads stdin.
func loadPlan(path string, stdin io.Reader) (*plan.Expr, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return nil, &InputError{Code: code, Path: path, Err: err}
	}
	e, err := plan.ParseJSON(data)
	if err != nil {
		return nil, &InputError{Code: ErrCodeMalformedPlan, Path: path, Err: err}
	}
	return e, nil
}

// failInput reports an input failure as a command error.
func failInput(f *OutputFormatter, err error) error {
	var ie *InputError
	if errors.As(err, &ie) {
		return f.Fail(ExitCommandError, ie.Code, err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err)
}
