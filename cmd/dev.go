package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stdg/reqs-builder/internal/config"
	generrors "github.com/stdg/reqs-builder/internal/errors"
	"github.com/stdg/reqs-builder/internal/logging"
	"github.com/stdg/reqs-builder/internal/pipeline"
	"github.com/stdg/reqs-builder/internal/preview"
	"github.com/stdg/reqs-builder/internal/watcher"
	"github.com/stdg/reqs-builder/internal/websocket"
)

// failureHistory bounds the failures kept for the shutdown report.
const failureHistory = 20

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d", "watch"},
	Short:   "Regenerate on change and serve a live preview",
	Long: `Run the pipeline once, then watch the source, toc and template directories
and regenerate after every burst of changes. Runs are serialized; changes that
arrive during a run cause exactly one more run.

The generated documents are served by the preview command (hugo by default).
With reload enabled, browsers connected to ws://<host>:<reload port>/ws are
told about every finished run.

Failures are logged and the watcher keeps running. Stop with Ctrl+C.

Examples:
  reqs-builder dev                       # Watch with the hugo preview
  reqs-builder dev --no-preview          # Watch and regenerate only
  reqs-builder dev --reload --port 8080  # Preview on 8080 with reload messages`,
	Args: cobra.NoArgs,
	RunE: runDevCommand,
}

func init() {
	rootCmd.AddCommand(devCmd)
	AddPipelineFlags(devCmd)

	devCmd.Flags().IntP("port", "p", 1313, "Preview server port")
	devCmd.Flags().String("host", "0.0.0.0", "Preview server bind address")
	devCmd.Flags().Bool("no-preview", false, "Do not start the preview server")
	devCmd.Flags().Bool("reload", false, "Serve reload notifications over websocket")
	devCmd.Flags().Int("reload-port", 35729, "Reload notifier port")
	AddFlagValidation(devCmd, "port", ValidatePort)
	AddFlagValidation(devCmd, "reload-port", ValidatePort)
}

var devFlagBindings = map[string]string{
	"port":        "preview.port",
	"host":        "preview.host",
	"reload":      "reload.enabled",
	"reload-port": "reload.port",
}

func runDevCommand(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd.Flags(), pipelineFlagBindings)
	bindFlags(cmd.Flags(), devFlagBindings)
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if noPreview, _ := cmd.Flags().GetBool("no-preview"); noPreview {
		cfg.Preview.Enabled = false
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDev(ctx, cfg, logger)
}

// runDev blocks until ctx is done.
func runDev(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	var (
		hub      *websocket.ReloadHub
		notifier generrors.Notifier
	)
	if cfg.Reload.Enabled {
		hub = websocket.NewReloadHub(nil, logger)
		notifier = hub
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Preview.Host, cfg.Reload.Port); err != nil {
				logger.Error(ctx, err, "Reload notifier stopped")
			}
		}()
	}

	collector := generrors.NewErrorCollector(failureHistory)
	queue := pipeline.NewQueue(
		pipeline.NewGenerator(pipelineConfig(cfg), nil, logger),
		logger,
		pipeline.WithErrorHandler(generrors.NewErrorHandler(logger, notifier)),
		pipeline.WithCollector(collector),
		pipeline.WithResultHook(func(run uint64, result pipeline.Result, err error) {
			if err == nil && hub != nil {
				hub.NotifyRegenerated(run, result.Documents)
			}
		}),
	)
	defer queue.Close()

	if err := queue.Request(); err != nil {
		return err
	}

	fw, err := newDevWatcher(cfg, logger, queue)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Stop()

	if cfg.Preview.Enabled {
		server, err := startPreview(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer server.Stop()
	}

	logger.Info(ctx, "Watching for changes",
		"source", cfg.Source.Dir, "toc", cfg.Toc.Dir, "templates", cfg.Templates.Dir)
	<-ctx.Done()

	logger.Info(context.Background(), "Shutting down")
	metrics := queue.Metrics()
	logger.Info(context.Background(), "Session summary",
		"runs", metrics.TotalRuns, "failed", metrics.FailedRuns, "coalesced", metrics.Coalesced)
	if last, ok := collector.Last(); ok {
		logger.Warn(context.Background(), last.Err, "Last failed run", "run", last.Run)
	}
	return nil
}

func newDevWatcher(cfg *config.Config, logger logging.Logger, queue *pipeline.Queue) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(watcher.Config{
		Debounce:     cfg.Watch.Debounce,
		Stability:    cfg.Watch.Stability,
		PollInterval: cfg.Watch.PollInterval,
		Ignore:       cfg.Watch.Ignore,
	}, logger)
	if err != nil {
		return nil, err
	}

	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		logger.Debug(context.Background(), "Change detected", "files", len(events), "first", events[0].Path)
		return queue.Request()
	})

	for _, dir := range []string{cfg.Source.Dir, cfg.Toc.Dir, cfg.Templates.Dir} {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		if err := fw.AddRecursive(abs); err != nil {
			// The first run reports the missing directory; a directory created
			// later is not picked up until restart.
			logger.Warn(context.Background(), err, "Not watching directory", "dir", dir)
		}
	}
	return fw, nil
}

func startPreview(ctx context.Context, cfg *config.Config, logger logging.Logger) (*preview.RenderServer, error) {
	// The server needs its source directory before the first run writes it.
	if err := os.MkdirAll(cfg.Output.Doc.Dir, 0755); err != nil {
		return nil, generrors.WrapIO(err, cfg.Output.Doc.Dir, "create document directory")
	}

	// hugo resolves relative paths against --source.
	paths := []string{cfg.Output.Doc.Dir, cfg.Output.Rendered.Dir, cfg.Preview.Config, cfg.Preview.LayoutDir}
	for i, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		paths[i] = abs
	}

	server := preview.NewRenderServer(preview.Config{
		Command:        cfg.Preview.Command,
		SourceDir:      paths[0],
		DestinationDir: paths[1],
		Host:           cfg.Preview.Host,
		Port:           cfg.Preview.Port,
		ConfigFile:     paths[2],
		LayoutDir:      paths[3],
	}, logger)
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("start preview server: %w", err)
	}
	logger.Info(ctx, "Preview available", "url", server.URL())
	return server, nil
}
