package meta

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Load error codes.
const (
	ErrCodeNotFound    = "META_NOT_FOUND"
	ErrCodeLoadFailed  = "META_LOAD_FAILED"
	ErrCodeBuildFailed = "META_BUILD_FAILED"
	ErrCodeInvalid     = "META_INVALID"
)

// LoadError reports a problem reading a meta definition.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	loc := ""
	if e.Pos.IsValid() {
		loc = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Field != "" {
		return fmt.Sprintf("%s%s: %s: %s", loc, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s%s: %s", loc, e.Code, e.Message)
}

// Load reads a meta definition from a CUE file or a directory of CUE files.
//
// The definition has two top-level structs:
//
//	data_sources: default: {
//		dialect: "ansi"
//		templates: "functions/MEDIAN": "MEDIAN({{.args_concat}})"
//		disable: ["expressions/within_group"]
//	}
//	cubes: Orders: {
//		sql_table:   "public.orders"
//		data_source: "default"
//		members: ["Orders.amount", "Orders.status"]
//	}
func Load(path string) (*Context, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	if info.IsDir() {
		return loadDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	return compileValue(v)
}

// Parse builds a Context from CUE source text.
func Parse(src string) (*Context, error) {
	return compileValue(cuecontext.New().CompileString(src))
}

func loadDir(dir string) (*Context, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: inst.Err.Error()}
	}
	return compileValue(cuecontext.New().BuildInstance(inst))
}

func compileValue(v cue.Value) (*Context, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var sources []DataSource
	dsVal := v.LookupPath(cue.ParsePath("data_sources"))
	if dsVal.Exists() {
		iter, err := dsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			ds, err := compileDataSource(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			sources = append(sources, ds)
		}
	}
	if len(sources) == 0 {
		sources = append(sources, DataSource{Name: "default"})
	}

	var cubes []Cube
	cubesVal := v.LookupPath(cue.ParsePath("cubes"))
	if cubesVal.Exists() {
		iter, err := cubesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			cube, err := compileCube(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			cubes = append(cubes, cube)
		}
	}

	ctx, err := New(cubes, sources)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	return ctx, nil
}

func compileDataSource(name string, v cue.Value) (DataSource, error) {
	ds := DataSource{Name: name, Templates: map[string]string{}}
	var err error
	if ds.Dialect, err = optionalString(v, "dialect"); err != nil {
		return ds, err
	}

	tv := v.LookupPath(cue.ParsePath("templates"))
	if tv.Exists() {
		iter, err := tv.Fields()
		if err != nil {
			return ds, formatCUEError(err)
		}
		for iter.Next() {
			text, err := iter.Value().String()
			if err != nil {
				return ds, &LoadError{Code: ErrCodeInvalid, Field: "data_sources." + name + ".templates",
					Message: err.Error(), Pos: iter.Value().Pos()}
			}
			ds.Templates[iter.Selector().Unquoted()] = text
		}
	}

	if ds.Disable, err = stringList(v, "disable"); err != nil {
		return ds, err
	}
	return ds, nil
}

func compileCube(name string, v cue.Value) (Cube, error) {
	cube := Cube{Name: name}
	table, err := optionalString(v, "sql_table")
	if err != nil {
		return cube, err
	}
	if table == "" {
		return cube, &LoadError{Code: ErrCodeInvalid, Field: "cubes." + name + ".sql_table",
			Message: "sql_table is required", Pos: v.Pos()}
	}
	cube.SQLTable = table

	if cube.DataSource, err = optionalString(v, "data_source"); err != nil {
		return cube, err
	}
	if cube.DataSource == "" {
		cube.DataSource = "default"
	}
	if cube.Members, err = stringList(v, "members"); err != nil {
		return cube, err
	}
	return cube, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &LoadError{Code: ErrCodeInvalid, Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Field: field, Message: err.Error(), Pos: lv.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalid, Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: ErrCodeBuildFailed, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
