package renderer

import (
	"bytes"
	"io"
	"path/filepath"
	"regexp"

	"github.com/flosch/pongo2/v6"
)

// JinjaDialect renders Jinja/Nunjucks-style templates with pongo2.
//
// Helpers are passed as callables in the execution context instead of being
// registered as pongo2 filters, because pongo2 keeps filters in a
// process-wide registry: {{ unique(pluck(source.entities, "category")) }}.
// Output is plain text (YAML, Markdown), so autoescaping is off unless
// Autoescape is set. That holds for included and extended files too.
type JinjaDialect struct {
	Autoescape bool
	extensions []string
}

// NewJinjaDialect handles ".njk", ".j2", ".jinja" and ".jinja2" files.
func NewJinjaDialect() *JinjaDialect {
	return &JinjaDialect{
		extensions: []string{".njk", ".j2", ".jinja", ".jinja2"},
	}
}

// Name returns the dialect name
func (d *JinjaDialect) Name() string { return "jinja" }

// Extensions returns the file extensions handled by the dialect
func (d *JinjaDialect) Extensions() []string { return d.extensions }

// Compile parses source in a template set rooted at the template's own
// directory so {% include %} and {% extends %} resolve relative to it.
func (d *JinjaDialect) Compile(name, source string, funcs Funcs) (Template, error) {
	fsLoader, err := pongo2.NewLocalFileSystemLoader(filepath.Dir(name))
	if err != nil {
		return nil, err
	}
	var loader pongo2.TemplateLoader = fsLoader
	if !d.Autoescape {
		loader = unescapedLoader{inner: fsLoader}
		source = disableEscaping(source)
	}
	set := pongo2.NewSet(filepath.Base(name), loader)

	tpl, err := set.FromString(source)
	if err != nil {
		return nil, err
	}
	return &jinjaTemplate{tpl: tpl, funcs: funcs}, nil
}

// unescapedLoader turns autoescaping off in every file the set loads.
// pongo2 executes included files in a fresh context, so wrapping only the
// root source would leave partials escaped.
type unescapedLoader struct {
	inner pongo2.TemplateLoader
}

func (l unescapedLoader) Abs(base, name string) string {
	return l.inner.Abs(base, name)
}

func (l unescapedLoader) Get(path string) (io.Reader, error) {
	r, err := l.inner.Get(path)
	if err != nil {
		return nil, err
	}
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader([]byte(disableEscaping(string(src)))), nil
}

// disableEscaping wraps source in an autoescape-off block. A child template
// is left alone: {% extends %} must stay at root level, and its blocks run
// inside the (wrapped) base template's context.
func disableEscaping(source string) string {
	if extendsLayout(source) {
		return source
	}
	return "{% autoescape off %}" + source + "{% endautoescape %}"
}

var extendsTag = regexp.MustCompile(`\{%-?\s*extends\s`)

func extendsLayout(source string) bool {
	return extendsTag.MatchString(source)
}

type jinjaTemplate struct {
	tpl   *pongo2.Template
	funcs Funcs
}

func (t *jinjaTemplate) Execute(data map[string]interface{}) (string, error) {
	ctx := make(pongo2.Context, len(t.funcs)+len(data))
	for k, v := range t.funcs {
		ctx[k] = v
	}
	for k, v := range data {
		ctx[k] = v
	}
	return t.tpl.Execute(ctx)
}
