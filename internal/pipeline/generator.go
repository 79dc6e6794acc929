// Package pipeline wires the generation stages together.
//
// A run merges the source directory, builds the toc tree from it, and
// expands the document templates against {source, toc}. Stages run in that
// order and the first failure aborts the run; files already written by an
// earlier run are left in place. Queue serializes runs requested by the
// watcher in dev mode.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/stdg/reqs-builder/internal/datatree"
	"github.com/stdg/reqs-builder/internal/expander"
	"github.com/stdg/reqs-builder/internal/logging"
	"github.com/stdg/reqs-builder/internal/renderer"
	"github.com/stdg/reqs-builder/internal/toc"
)

// Config names the directories a run reads and writes.
type Config struct {
	SourceDir    string
	TocDir       string
	TemplateDir  string
	DocOutputDir string
	// TocOutputDir receives rendered toc files for inspection. Empty
	// disables the debug copies.
	TocOutputDir string

	Workers          int
	DefaultExtension string
}

// Result summarizes a successful run.
type Result struct {
	SourceKeys int
	TocKeys    int
	Templates  int
	Documents  int
	Duration   time.Duration
}

// Generator runs the three stages with a shared render Environment.
type Generator struct {
	config   Config
	toc      *toc.Builder
	expander *expander.Expander
	logger   logging.Logger
}

// NewGenerator creates a Generator. A nil env uses the default dialects and
// helpers; a nil logger discards output.
func NewGenerator(config Config, env *renderer.Environment, logger logging.Logger) *Generator {
	if env == nil {
		env = renderer.DefaultEnvironment()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Generator{
		config: config,
		toc:    toc.NewBuilder(env, logger),
		expander: expander.NewExpander(env, logger, expander.Config{
			Workers:          config.Workers,
			DefaultExtension: config.DefaultExtension,
		}),
		logger: logger.WithComponent("pipeline"),
	}
}

// Generate performs one full run.
func (g *Generator) Generate(ctx context.Context) (Result, error) {
	op := logging.StartOperation(g.logger, "generate")

	source, err := datatree.MergeDirectory(g.config.SourceDir)
	if err != nil {
		op.Abort(ctx, "stage", "merge")
		return Result{}, fmt.Errorf("merge source data: %w", err)
	}

	tocTree, err := g.toc.Build(ctx, g.config.TocDir, source, g.config.TocOutputDir)
	if err != nil {
		op.Abort(ctx, "stage", "toc")
		return Result{}, fmt.Errorf("build toc: %w", err)
	}

	data := map[string]interface{}{
		"source": source,
		"toc":    tocTree,
	}
	summary, err := g.expander.Run(ctx, g.config.TemplateDir, data, g.config.DocOutputDir)
	if err != nil {
		op.Abort(ctx, "stage", "expand")
		return Result{}, fmt.Errorf("expand templates: %w", err)
	}

	result := Result{
		SourceKeys: len(source),
		TocKeys:    len(tocTree),
		Templates:  summary.Templates,
		Documents:  summary.Documents,
	}
	result.Duration = op.End(ctx, "documents", result.Documents, "templates", result.Templates)
	return result, nil
}
