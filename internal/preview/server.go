// Package preview runs the external render server that serves the generated
// documents while dev mode is active.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/stdg/reqs-builder/internal/logging"
)

// LockFile is left in the source directory by hugo and removed when the
// server process exits.
const LockFile = ".hugo_build.lock"

// DefaultStopTimeout bounds how long Stop waits after interrupting the
// process before killing it.
const DefaultStopTimeout = 5 * time.Second

// Config describes the render server invocation.
type Config struct {
	Command        string
	SourceDir      string
	DestinationDir string
	Host           string
	Port           int
	ConfigFile     string
	LayoutDir      string

	// Env is appended to the current environment of the child.
	Env         []string
	Stdout      io.Writer
	Stderr      io.Writer
	StopTimeout time.Duration
}

// RenderServer manages one render server process. Start and Stop are
// idempotent and safe for concurrent use.
type RenderServer struct {
	config Config
	logger logging.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewRenderServer creates a stopped server.
func NewRenderServer(config Config, logger logging.Logger) *RenderServer {
	if config.Command == "" {
		config.Command = "hugo"
	}
	if config.Host == "" {
		config.Host = "0.0.0.0"
	}
	if config.Port == 0 {
		config.Port = 1313
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RenderServer{
		config: config,
		logger: logger.WithComponent("preview"),
	}
}

// Args returns the command line arguments passed to the render server.
func (s *RenderServer) Args() []string {
	args := []string{"server"}
	if s.config.ConfigFile != "" {
		args = append(args, "--config", s.config.ConfigFile)
	}
	if s.config.LayoutDir != "" {
		args = append(args, "--layoutDir", s.config.LayoutDir)
	}
	return append(args,
		"--contentDir", ".",
		"--source", s.config.SourceDir,
		"--destination", s.config.DestinationDir,
		"--port", strconv.Itoa(s.config.Port),
		"--bind", s.config.Host,
		"--disableFastRender",
	)
}

// URL is where the server listens.
func (s *RenderServer) URL() string {
	host := s.config.Host
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d/", host, s.config.Port)
}

// Start launches the process unless it is already running.
func (s *RenderServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.config.Command, s.Args()...)
	cmd.Stdout = s.config.Stdout
	cmd.Stderr = s.config.Stderr
	if len(s.config.Env) > 0 {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start render server %q: %w", s.config.Command, err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	s.logger.Info(ctx, "Render server started", "pid", cmd.Process.Pid, "url", s.URL())

	go s.wait(ctx, cmd, done)
	return nil
}

// wait reaps the process and cleans up after it, whoever ended it.
func (s *RenderServer) wait(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()

	s.removeLock(ctx)
	if err != nil {
		s.logger.Warn(ctx, err, "Render server exited")
	} else {
		s.logger.Info(ctx, "Render server exited")
	}
	close(done)
}

func (s *RenderServer) removeLock(ctx context.Context) {
	lock := filepath.Join(s.config.SourceDir, LockFile)
	if err := os.Remove(lock); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn(ctx, err, "Failed to remove render server lock", "path", lock)
	}
}

// Stop interrupts the process and waits for it to exit, killing it after
// the stop timeout. Stopping a stopped server is a no-op.
func (s *RenderServer) Stop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Already gone, or interrupts are unsupported on this platform.
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.config.StopTimeout):
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill render server: %w", err)
	}
	<-done
	return nil
}

// Running reports whether the process is alive.
func (s *RenderServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Done is closed when the current process exits. It returns nil when the
// server was never started.
func (s *RenderServer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
