package renderer

import (
	"bytes"
	"path/filepath"
	"text/template"
)

// GoTemplateDialect renders text/template sources. Missing map keys are an
// error rather than "<no value>", so a typo in a reference fails the run.
type GoTemplateDialect struct {
	extensions []string
	missingKey string
}

// NewGoTemplateDialect handles ".tmpl" and ".gotmpl" files.
func NewGoTemplateDialect() *GoTemplateDialect {
	return &GoTemplateDialect{
		extensions: []string{".tmpl", ".gotmpl"},
		missingKey: "error",
	}
}

// Name returns the dialect name
func (d *GoTemplateDialect) Name() string { return "gotemplate" }

// Extensions returns the file extensions handled by the dialect
func (d *GoTemplateDialect) Extensions() []string { return d.extensions }

// Compile parses source into a text/template with funcs installed.
func (d *GoTemplateDialect) Compile(name, source string, funcs Funcs) (Template, error) {
	tpl, err := template.New(filepath.Base(name)).
		Option("missingkey=" + d.missingKey).
		Funcs(template.FuncMap(funcs)).
		Parse(source)
	if err != nil {
		return nil, err
	}
	return &goTemplate{tpl: tpl}, nil
}

type goTemplate struct {
	tpl *template.Template
}

func (t *goTemplate) Execute(data map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
