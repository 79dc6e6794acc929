// Package toc builds the table-of-contents tree: templates whose rendered
// output is structured data (erds.yaml.njk, entities.yaml.tmpl, ...) are
// rendered against the merged source tree, parsed, and deep-merged with the
// same rules as the source data.
package toc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/stdg/reqs-builder/internal/datatree"
	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
	"github.com/stdg/reqs-builder/internal/renderer"
)

// Builder renders toc templates with a fixed render Environment.
type Builder struct {
	env    *renderer.Environment
	logger logging.Logger
}

// NewBuilder creates a toc builder. A nil logger discards output.
func NewBuilder(env *renderer.Environment, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Builder{
		env:    env,
		logger: logger.WithComponent("toc"),
	}
}

// entry is a toc template matched by the naming convention.
type entry struct {
	path     string
	dataName string // file name with the dialect suffix stripped
	dialect  renderer.Dialect
}

// Build renders every toc template directly inside dir against source and
// merges the results. A missing dir is not an error: the toc stage is
// optional and yields an empty tree. When outputDir is non-empty each
// rendered text is also written there for inspection; those files are
// never read back.
func (b *Builder) Build(ctx context.Context, dir string, source datatree.Tree, outputDir string) (datatree.Tree, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.logger.Debug(ctx, "Toc directory absent, skipping", "dir", dir)
			return datatree.Tree{}, nil
		}
		return nil, generrors.WrapIO(err, dir, "stat failed")
	}
	if !info.IsDir() {
		return nil, generrors.NewNotADirectory(dir)
	}

	entries, err := b.discover(dir)
	if err != nil {
		return nil, err
	}

	if outputDir != "" && len(entries) > 0 {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, generrors.WrapIO(err, outputDir, "create toc output directory failed")
		}
	}

	renderContext := map[string]interface{}{"source": source}

	acc := datatree.Tree{}
	for _, e := range entries {
		tree, err := b.renderEntry(ctx, e, renderContext, outputDir)
		if err != nil {
			return nil, err
		}

		if acc, err = datatree.Merge(acc, tree); err != nil {
			return nil, generrors.InFile(err, e.path)
		}
	}

	b.logger.Debug(ctx, "Toc built", "dir", dir, "templates", len(entries), "keys", len(acc))
	return acc, nil
}

// discover lists files named <name>.<data ext>.<dialect ext> in lexical order.
func (b *Builder) discover(dir string) ([]entry, error) {
	var entries []entry
	files, err := datatree.ListFiles(dir, nil)
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		dialect, dataName, ok := b.env.DialectFor(filepath.Base(path))
		if !ok || !datatree.IsDataFile(dataName) {
			continue
		}
		entries = append(entries, entry{path: path, dataName: dataName, dialect: dialect})
	}
	return entries, nil
}

func (b *Builder) renderEntry(ctx context.Context, e entry, renderContext map[string]interface{}, outputDir string) (datatree.Tree, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, generrors.WrapIO(err, e.path, "read failed")
	}

	tpl, err := b.env.CompileWith(e.dialect, e.path, string(content))
	if err != nil {
		return nil, err
	}
	rendered, err := tpl.Execute(renderContext)
	if err != nil {
		return nil, err
	}

	if outputDir != "" {
		target := filepath.Join(outputDir, e.dataName)
		if err := atomic.WriteFile(target, strings.NewReader(rendered)); err != nil {
			return nil, generrors.WrapIO(err, target, "write rendered toc failed")
		}
	}

	v, err := datatree.Decode(e.dataName, []byte(rendered))
	if err != nil {
		return nil, generrors.Wrap(err, generrors.KindInvalidTocFile, "rendered toc does not parse").WithPath(e.path)
	}

	tree, ok := v.(map[string]interface{})
	if !ok {
		return nil, generrors.NewInvalidTocFile(e.path, datatree.KindOf(v).String())
	}

	b.logger.Debug(ctx, "Rendered toc template", "file", e.path, "dialect", e.dialect.Name())
	return tree, nil
}
