// Package runner executes shell command lines for the backend.
//
// Awaited runs capture bounded output and are killed after a timeout.
// Detached runs discard their output and are tracked until they exit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"ordito/internal/domain"
)

// DetachedStarted is the output reported for a detached command.
const DetachedStarted = "Process started successfully in background"

// Config holds configuration for the Runner.
type Config struct {
	Shell       string        // shell binary invoked with -c (default: sh)
	Timeout     time.Duration // awaited run limit (default: 30s)
	OutputLimit int           // max bytes kept per stream (default: 1MB)
	MaxDetached int           // max concurrently running detached commands (default: 32)
	WorkDir     string        // working directory, empty for the current one
}

// Error is a failed run. Its message is shown to users verbatim.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Detached describes a running detached command.
type Detached struct {
	ID        string
	Cmd       string
	PID       int
	StartedAt time.Time
}

type detachedEntry struct {
	info   Detached
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner runs command lines through a shell.
type Runner struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	detached map[string]*detachedEntry
}

// New creates a Runner.
func New(cfg Config, logger *slog.Logger) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.OutputLimit <= 0 {
		cfg.OutputLimit = 1024 * 1024
	}
	if cfg.MaxDetached <= 0 {
		cfg.MaxDetached = 32
	}
	return &Runner{
		config:   cfg,
		logger:   logger,
		detached: make(map[string]*detachedEntry),
	}
}

// Run executes line and waits for it. A non-zero exit reports stderr.
func (r *Runner) Run(ctx context.Context, line string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.config.Shell, "-c", line)
	cmd.Dir = r.config.WorkDir
	cmd.WaitDelay = time.Second
	stdout := newTail(r.config.OutputLimit)
	stderr := newTail(r.config.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", &Error{Message: fmt.Sprintf("Failed to execute command: %v", err), Err: err}
	}
	err := cmd.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("command timed out", "cmd", line, "timeout", r.config.Timeout)
		return "", &Error{
			Message: fmt.Sprintf("Command timed out after %d seconds", int(r.config.Timeout.Seconds())),
			Err:     domain.NewSubSystemError("runner", "Runner.Run", domain.ErrTimeout, line),
		}
	}
	if lost := stdout.Truncated() + stderr.Truncated(); lost > 0 {
		r.logger.Debug("command output truncated", "cmd", line, "truncated_bytes", lost)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &Error{Message: "Command failed: " + stderr.String(), Err: err}
		}
		return "", &Error{Message: fmt.Sprintf("Failed to execute command: %v", err), Err: err}
	}

	r.logger.Debug("command finished", "cmd", line, "duration", time.Since(start))
	return stdout.String(), nil
}

// Start launches line without waiting for it. Output is discarded.
func (r *Runner) Start(ctx context.Context, line string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.detached) >= r.config.MaxDetached {
		return "", &Error{
			Message: fmt.Sprintf("Failed to start command: %d detached commands already running", len(r.detached)),
			Err:     domain.NewSubSystemError("runner", "Runner.Start", domain.ErrLimitReached, line),
		}
	}

	// The process must outlive the request, so it gets its own context.
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, r.config.Shell, "-c", line)
	cmd.Dir = r.config.WorkDir

	if err := cmd.Start(); err != nil {
		cancel()
		return "", &Error{Message: fmt.Sprintf("Failed to start command: %v", err), Err: err}
	}

	entry := &detachedEntry{
		info: Detached{
			ID:        newID(),
			Cmd:       line,
			PID:       cmd.Process.Pid,
			StartedAt: time.Now(),
		},
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.detached[entry.info.ID] = entry
	go r.waitForExit(entry)

	r.logger.Info("detached command started", "id", entry.info.ID, "pid", entry.info.PID)
	return DetachedStarted, nil
}

// Detached lists running detached commands, oldest first.
func (r *Runner) Detached() []Detached {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Detached, 0, len(r.detached))
	for _, e := range r.detached {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stop kills every running detached command and waits for them to exit.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	running := make([]*detachedEntry, 0, len(r.detached))
	for _, e := range r.detached {
		running = append(running, e)
	}
	r.mu.Unlock()

	for _, e := range running {
		e.cancel()
		select {
		case <-e.done:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) waitForExit(entry *detachedEntry) {
	err := entry.cmd.Wait()
	close(entry.done)
	entry.cancel()

	r.mu.Lock()
	delete(r.detached, entry.info.ID)
	r.mu.Unlock()

	if err != nil {
		r.logger.Info("detached command exited", "id", entry.info.ID, "error", err)
		return
	}
	r.logger.Info("detached command exited", "id", entry.info.ID)
}

func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
