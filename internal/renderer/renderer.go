// Package renderer turns template text plus a read-only context into text.
//
// Rendering goes through an Environment: an immutable value built once with
// NewEnvironment that owns the helper functions and the dialect registry.
// Nothing here is process-global, so two environments (for example one per
// test) never share configuration. A Dialect is chosen by the last file
// extension of a template name (".tmpl" for Go templates, ".njk" for
// Jinja/Nunjucks-style templates) when the template is discovered, and every
// dialect is invoked through the same Template interface.
package renderer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	generrors "github.com/stdg/reqs-builder/internal/errors"
)

// Funcs maps helper names to Go functions exposed to every dialect.
type Funcs map[string]interface{}

// Template is a compiled template ready to execute.
type Template interface {
	Execute(data map[string]interface{}) (string, error)
}

// Dialect compiles template source written in one templating syntax.
type Dialect interface {
	// Name identifies the dialect in logs.
	Name() string
	// Extensions lists the file extensions (with leading dot) that select
	// this dialect.
	Extensions() []string
	// Compile parses source. name is the template path, used for error
	// messages and for resolving includes relative to the template.
	Compile(name, source string, funcs Funcs) (Template, error)
}

// Environment is the immutable render configuration.
type Environment struct {
	dialects map[string]Dialect
	funcs    Funcs
}

// Option configures an Environment under construction.
type Option func(*Environment)

// WithDialect registers d for each of its extensions, replacing any dialect
// registered earlier for the same extension.
func WithDialect(d Dialect) Option {
	return func(e *Environment) {
		for _, ext := range d.Extensions() {
			e.dialects[strings.ToLower(ext)] = d
		}
	}
}

// WithFunc adds or replaces a helper function.
func WithFunc(name string, fn interface{}) Option {
	return func(e *Environment) {
		e.funcs[name] = fn
	}
}

// WithoutBuiltins drops the built-in helpers; later WithFunc options still
// apply.
func WithoutBuiltins() Option {
	return func(e *Environment) {
		e.funcs = Funcs{}
	}
}

// NewEnvironment builds an Environment with the built-in helpers and no
// dialects, then applies opts in order.
func NewEnvironment(opts ...Option) *Environment {
	env := &Environment{
		dialects: make(map[string]Dialect),
		funcs:    BuiltinFuncs(),
	}
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// DefaultEnvironment returns a new Environment with the Go template and
// Jinja dialects and the built-in helpers, plus any extra options.
func DefaultEnvironment(opts ...Option) *Environment {
	base := []Option{
		WithDialect(NewGoTemplateDialect()),
		WithDialect(NewJinjaDialect()),
	}
	return NewEnvironment(append(base, opts...)...)
}

// Funcs returns a copy of the helper functions.
func (e *Environment) Funcs() Funcs {
	out := make(Funcs, len(e.funcs))
	for k, v := range e.funcs {
		out[k] = v
	}
	return out
}

// Extensions returns the registered dialect extensions, sorted.
func (e *Environment) Extensions() []string {
	exts := make([]string, 0, len(e.dialects))
	for ext := range e.dialects {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DialectFor selects the dialect for a template file by its last extension.
// It returns the dialect and the name with that extension stripped.
func (e *Environment) DialectFor(name string) (Dialect, string, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return nil, name, false
	}
	d, ok := e.dialects[strings.ToLower(ext)]
	if !ok {
		return nil, name, false
	}
	return d, strings.TrimSuffix(name, ext), true
}

// Compile compiles source with the dialect selected by name.
func (e *Environment) Compile(name, source string) (Template, error) {
	d, _, ok := e.DialectFor(name)
	if !ok {
		return nil, generrors.NewTemplateRenderError(name, fmt.Errorf("no dialect registered for %q", filepath.Ext(name)))
	}
	return e.CompileWith(d, name, source)
}

// CompileWith compiles source with an already selected dialect.
func (e *Environment) CompileWith(d Dialect, name, source string) (Template, error) {
	tpl, err := d.Compile(name, source, e.funcs)
	if err != nil {
		return nil, generrors.NewTemplateRenderError(name, err)
	}
	return &namedTemplate{name: name, inner: tpl}, nil
}

// Render compiles and executes source in one step.
func (e *Environment) Render(name, source string, data map[string]interface{}) (string, error) {
	tpl, err := e.Compile(name, source)
	if err != nil {
		return "", err
	}
	return tpl.Execute(data)
}

// namedTemplate turns execution failures into TemplateRenderError.
type namedTemplate struct {
	name  string
	inner Template
}

func (t *namedTemplate) Execute(data map[string]interface{}) (string, error) {
	out, err := t.inner.Execute(data)
	if err != nil {
		return "", generrors.NewTemplateRenderError(t.name, err)
	}
	return out, nil
}
