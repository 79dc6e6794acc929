// Package expander renders every document template in a directory against
// the {source, toc} context and writes the results to an output tree.
//
// Templates are discovered recursively; names starting with "." or "_" are
// skipped so partials can live next to documents. A template may carry a
// YAML front matter block declaring a permalink and pagination. Rendering
// runs on a bounded errgroup, but files are written one at a time in
// discovery order so that two templates claiming the same output resolve
// to the later one on every run.
package expander

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/stdg/reqs-builder/internal/datatree"
	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
	"github.com/stdg/reqs-builder/internal/renderer"
)

// DefaultExtension is appended to output names that have none.
const DefaultExtension = ".md"

// Config tunes an Expander.
type Config struct {
	Workers          int
	DefaultExtension string
}

// Expander renders document templates.
type Expander struct {
	env    *renderer.Environment
	logger logging.Logger
	config Config
}

// Summary describes one expansion run.
type Summary struct {
	Templates int
	Documents int
}

// document is one rendered output waiting to be written.
type document struct {
	relPath string
	content string
}

// NewExpander creates an expander. Zero config values fall back to one
// worker per template and DefaultExtension.
func NewExpander(env *renderer.Environment, logger logging.Logger, config Config) *Expander {
	if logger == nil {
		logger = logging.Nop()
	}
	if config.DefaultExtension == "" {
		config.DefaultExtension = DefaultExtension
	}
	if !strings.HasPrefix(config.DefaultExtension, ".") {
		config.DefaultExtension = "." + config.DefaultExtension
	}
	return &Expander{
		env:    env,
		logger: logger.WithComponent("expander"),
		config: config,
	}
}

// Expand renders every template in templateDir with data as context and
// writes the documents below outputDir.
func (e *Expander) Expand(ctx context.Context, templateDir string, data map[string]interface{}, outputDir string) error {
	_, err := e.Run(ctx, templateDir, data, outputDir)
	return err
}

// Run is Expand that also reports what it produced.
func (e *Expander) Run(ctx context.Context, templateDir string, data map[string]interface{}, outputDir string) (Summary, error) {
	if err := datatree.CheckDir(templateDir); err != nil {
		return Summary{}, err
	}

	units, err := e.Discover(templateDir)
	if err != nil {
		return Summary{}, err
	}

	rendered := make([][]document, len(units))
	g, gctx := errgroup.WithContext(ctx)
	if e.config.Workers > 0 {
		g.SetLimit(e.config.Workers)
	}
	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := e.renderUnit(unit, data)
			if err != nil {
				return err
			}
			rendered[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Templates: len(units)}
	written := make(map[string]string)
	for i, docs := range rendered {
		for _, doc := range docs {
			if prev, ok := written[doc.relPath]; ok {
				e.logger.Warn(ctx, nil, "Output overwritten by later template",
					"output", doc.relPath, "previous", prev, "template", units[i].RelPath)
			}
			if err := writeDocument(outputDir, doc); err != nil {
				return summary, err
			}
			written[doc.relPath] = units[i].RelPath
			summary.Documents++
		}
	}

	e.logger.Debug(ctx, "Templates expanded", "dir", templateDir,
		"templates", summary.Templates, "documents", summary.Documents)
	return summary, nil
}

// Discover walks dir and returns the templates with a registered dialect
// in lexical order of their relative paths.
func (e *Expander) Discover(dir string) ([]Unit, error) {
	var units []Unit

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return generrors.WrapIO(err, p, "walk failed")
		}
		if p == dir {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		dialect, stripped, ok := e.env.DialectFor(name)
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return generrors.WrapIO(err, p, "relative path failed")
		}
		rel = filepath.ToSlash(rel)

		unit, err := e.loadUnit(p, rel, dialect, stripped)
		if err != nil {
			return err
		}
		units = append(units, unit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (e *Expander) loadUnit(p, rel string, dialect renderer.Dialect, stripped string) (Unit, error) {
	content, err := os.ReadFile(p)
	if err != nil {
		return Unit{}, generrors.WrapIO(err, p, "read failed")
	}

	fm, body, err := splitFrontMatter(content)
	if err != nil {
		return Unit{}, generrors.NewTemplateRenderError(p, err)
	}

	return Unit{
		Path:        p,
		RelPath:     rel,
		Dialect:     dialect,
		Identity:    e.withExtension(path.Join(path.Dir(rel), stripped)),
		FrontMatter: fm,
		Body:        body,
	}, nil
}

func (e *Expander) withExtension(p string) string {
	if strings.HasSuffix(p, "/") {
		return p + "index" + e.config.DefaultExtension
	}
	if path.Ext(p) == "" {
		return p + e.config.DefaultExtension
	}
	return p
}

// renderUnit produces one document, or one per page when the unit
// paginates.
func (e *Expander) renderUnit(unit Unit, data map[string]interface{}) ([]document, error) {
	body, err := e.env.CompileWith(unit.Dialect, unit.Path, unit.Body)
	if err != nil {
		return nil, err
	}

	var permalink renderer.Template
	if unit.FrontMatter.Permalink != "" {
		permalink, err = e.env.CompileWith(unit.Dialect, unit.Path+"#permalink", unit.FrontMatter.Permalink)
		if err != nil {
			return nil, err
		}
	}

	pages, err := paginate(unit, data)
	if err != nil {
		return nil, err
	}

	docs := make([]document, 0, len(pages))
	for _, pg := range pages {
		renderContext := e.contextFor(unit, data, pg)

		out := defaultIdentity(unit.Identity, pg)
		if permalink != nil {
			link, err := permalink.Execute(renderContext)
			if err != nil {
				return nil, err
			}
			link = strings.TrimSpace(link)
			if link == "" {
				return nil, generrors.NewTemplateRenderError(unit.Path, fmt.Errorf("permalink renders empty"))
			}
			out = e.withExtension(link)
		}

		relPath, err := cleanOutputPath(out)
		if err != nil {
			return nil, generrors.NewTemplateRenderError(unit.Path, err)
		}
		renderContext["permalink"] = relPath
		renderContext["page"].(map[string]interface{})["outputPath"] = relPath

		content, err := body.Execute(renderContext)
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{relPath: relPath, content: content})
	}
	return docs, nil
}

func (e *Expander) contextFor(unit Unit, data map[string]interface{}, pg *page) map[string]interface{} {
	renderContext := make(map[string]interface{}, len(data)+4)
	for k, v := range data {
		renderContext[k] = v
	}

	pageData := unit.FrontMatter.Data
	if pageData == nil {
		pageData = map[string]interface{}{}
	}
	base := path.Base(unit.Identity)
	renderContext["page"] = map[string]interface{}{
		"inputPath":  unit.RelPath,
		"fileSlug":   strings.TrimSuffix(base, path.Ext(base)),
		"outputPath": unit.Identity,
		"data":       pageData,
	}
	renderContext["permalink"] = unit.Identity

	if pg != nil {
		renderContext[unit.FrontMatter.Pagination.Alias] = pg.value
		renderContext["pagination"] = map[string]interface{}{
			"pageNumber": pg.number,
			"pages":      pg.total,
			"size":       unit.FrontMatter.Pagination.Size,
			"items":      pg.items,
		}
	}
	return renderContext
}

// cleanOutputPath turns a permalink into a slash path relative to the
// output directory. Leading slashes are anchored at the output directory;
// anything resolving outside it is rejected.
func cleanOutputPath(link string) (string, error) {
	trimmed := strings.TrimLeft(filepath.ToSlash(link), "/")
	cleaned := path.Clean(trimmed)
	if trimmed == "" || cleaned == "." || !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("permalink %q escapes the output directory", link)
	}
	return cleaned, nil
}

func writeDocument(outputDir string, doc document) error {
	target := filepath.Join(outputDir, filepath.FromSlash(doc.relPath))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return generrors.WrapIO(err, filepath.Dir(target), "create output directory failed")
	}
	if err := atomic.WriteFile(target, strings.NewReader(doc.content)); err != nil {
		return generrors.WrapIO(err, target, "write document failed")
	}
	return nil
}
