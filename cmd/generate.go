package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/stdg/reqs-builder/internal/config"
	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/pipeline"
)

// generateCmd represents the generate command.
var generateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"gen", "g"},
	Short:   "Run the pipeline once",
	Long: `Merge the source directory, build the toc data, and expand every template
into the output directory. The command exits non-zero when any stage fails;
documents written by earlier runs are left in place.

Examples:
  reqs-builder generate                        # Use .reqs-builder.yml and defaults
  reqs-builder generate -s ./data -o ./site    # Override directories
  STDG_RENDER_WORKERS=1 reqs-builder generate  # Render templates one at a time`,
	Args: cobra.NoArgs,
	RunE: runGenerateCommand,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	AddPipelineFlags(generateCmd)
}

func runGenerateCommand(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd.Flags(), pipelineFlagBindings)
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	generator := pipeline.NewGenerator(pipelineConfig(cfg), nil, logger)
	result, err := generator.Generate(ctx)
	if err != nil {
		generrors.NewErrorHandler(logger, nil).Handle(ctx, err)
		return err
	}

	printSummary(cmd.OutOrStdout(), cfg, result)
	return nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SourceDir:        cfg.Source.Dir,
		TocDir:           cfg.Toc.Dir,
		TemplateDir:      cfg.Templates.Dir,
		DocOutputDir:     cfg.Output.Doc.Dir,
		TocOutputDir:     cfg.Output.Toc.Dir,
		Workers:          cfg.Render.Workers,
		DefaultExtension: cfg.Output.Extension,
	}
}

func printSummary(w io.Writer, cfg *config.Config, result pipeline.Result) {
	fmt.Fprintf(w, "Generated %d documents from %d templates into %s (%s)\n",
		result.Documents, result.Templates, cfg.Output.Doc.Dir, result.Duration.Round(time.Millisecond))
}
