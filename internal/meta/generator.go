package meta

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
)

// SQLGenerator is the capability set of one data source: which feature keys
// it can render and how.
type SQLGenerator interface {
	ContainsKey(key string) bool
	Render(key string, args map[string]any) (string, error)
}

// TemplateError reports a failed render.
type TemplateError struct {
	DataSource string
	Key        string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s (data source %s): %v", e.Key, e.DataSource, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// TemplateGenerator is a SQLGenerator backed by text/template. Templates are
// parsed at construction; the generator is immutable afterwards and safe for
// concurrent use.
type TemplateGenerator struct {
	name      string
	templates map[string]*template.Template
	sources   map[string]string
}

// NewTemplateGenerator parses every template of a data source.
func NewTemplateGenerator(name string, templates map[string]string) (*TemplateGenerator, error) {
	g := &TemplateGenerator{
		name:      name,
		templates: make(map[string]*template.Template, len(templates)),
		sources:   maps.Clone(templates),
	}
	for _, key := range slices.Sorted(maps.Keys(templates)) {
		if strings.TrimSpace(key) == "" {
			return nil, &TemplateError{DataSource: name, Key: key, Err: fmt.Errorf("empty key")}
		}
		t, err := template.New(key).Parse(templates[key])
		if err != nil {
			return nil, &TemplateError{DataSource: name, Key: key, Err: err}
		}
		g.templates[key] = t
	}
	return g, nil
}

// Name returns the data source name.
func (g *TemplateGenerator) Name() string { return g.name }

func (g *TemplateGenerator) ContainsKey(key string) bool {
	_, ok := g.templates[key]
	return ok
}

func (g *TemplateGenerator) Render(key string, args map[string]any) (string, error) {
	t, ok := g.templates[key]
	if !ok {
		return "", &TemplateError{DataSource: g.name, Key: key, Err: fmt.Errorf("no such template")}
	}
	var b strings.Builder
	if err := t.Execute(&b, args); err != nil {
		return "", &TemplateError{DataSource: g.name, Key: key, Err: err}
	}
	return b.String(), nil
}

// Keys returns the template keys in sorted order.
func (g *TemplateGenerator) Keys() []string {
	return slices.Sorted(maps.Keys(g.templates))
}

// Source returns the unparsed text of a template.
func (g *TemplateGenerator) Source(key string) (string, bool) {
	s, ok := g.sources[key]
	return s, ok
}
