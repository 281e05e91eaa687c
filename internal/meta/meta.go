package meta

import (
	"fmt"
	"maps"
	"slices"

	"github.com/yautze/cube/internal/plan"
)

// Cube is one semantic-layer table.
type Cube struct {
	Name       string
	SQLTable   string
	DataSource string
	// Members lists the "Cube.member" names a scan may reference when its
	// own member list is empty. Empty allows every member.
	Members []string
}

// DataSource configures the generator of one destination.
type DataSource struct {
	Name string
	// Dialect names a built-in template set to start from; "" or "ansi".
	Dialect string
	// Templates override or extend the dialect set.
	Templates map[string]string
	// Disable removes keys from the resulting set.
	Disable []string
}

// Context binds aliases to cubes and cubes to generators. It is built once,
// never mutated, and shared by every compilation.
type Context struct {
	cubes      map[string]Cube
	generators map[string]*TemplateGenerator
}

// New validates cubes and data sources and parses every template.
func New(cubes []Cube, sources []DataSource) (*Context, error) {
	c := &Context{
		cubes:      make(map[string]Cube, len(cubes)),
		generators: make(map[string]*TemplateGenerator, len(sources)),
	}
	for _, ds := range sources {
		if ds.Name == "" {
			return nil, fmt.Errorf("meta: data source without a name")
		}
		if _, dup := c.generators[ds.Name]; dup {
			return nil, fmt.Errorf("meta: duplicate data source %q", ds.Name)
		}
		templates, err := dialectTemplates(ds.Dialect)
		if err != nil {
			return nil, fmt.Errorf("meta: data source %q: %w", ds.Name, err)
		}
		maps.Copy(templates, ds.Templates)
		for _, key := range ds.Disable {
			delete(templates, key)
		}
		gen, err := NewTemplateGenerator(ds.Name, templates)
		if err != nil {
			return nil, fmt.Errorf("meta: %w", err)
		}
		c.generators[ds.Name] = gen
	}
	for _, cube := range cubes {
		if cube.Name == "" {
			return nil, fmt.Errorf("meta: cube without a name")
		}
		if _, dup := c.cubes[cube.Name]; dup {
			return nil, fmt.Errorf("meta: duplicate cube %q", cube.Name)
		}
		if _, ok := c.generators[cube.DataSource]; !ok {
			return nil, fmt.Errorf("meta: cube %q uses unknown data source %q", cube.Name, cube.DataSource)
		}
		cube.Members = slices.Clone(cube.Members)
		c.cubes[cube.Name] = cube
	}
	return c, nil
}

func dialectTemplates(dialect string) (map[string]string, error) {
	switch dialect {
	case "", "ansi":
		return DefaultTemplates(), nil
	case "none":
		return map[string]string{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", dialect)
	}
}

// Cube returns the cube named name.
func (c *Context) Cube(name string) (Cube, bool) {
	cube, ok := c.cubes[name]
	return cube, ok
}

// Cubes returns every cube sorted by name.
func (c *Context) Cubes() []Cube {
	out := make([]Cube, 0, len(c.cubes))
	for _, name := range slices.Sorted(maps.Keys(c.cubes)) {
		out = append(out, c.cubes[name])
	}
	return out
}

// Generator returns the generator of a data source.
func (c *Context) Generator(dataSource string) (*TemplateGenerator, bool) {
	g, ok := c.generators[dataSource]
	return g, ok
}

// DataSourceFor returns the single data source serving every cube of the
// binding. Bindings that are empty, name an unknown cube, or span several
// data sources have none.
func (c *Context) DataSourceFor(atc plan.AliasToCube) (string, bool) {
	source := ""
	for _, name := range atc.Cubes() {
		cube, ok := c.cubes[name]
		if !ok {
			return "", false
		}
		if source != "" && cube.DataSource != source {
			return "", false
		}
		source = cube.DataSource
	}
	return source, source != ""
}

// SQLGeneratorByAliasToCube resolves the generator of the data source behind
// a binding.
func (c *Context) SQLGeneratorByAliasToCube(atc plan.AliasToCube) (SQLGenerator, bool) {
	source, ok := c.DataSourceFor(atc)
	if !ok {
		return nil, false
	}
	g, ok := c.generators[source]
	if !ok {
		return nil, false
	}
	return g, true
}
