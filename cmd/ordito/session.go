package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"ordito/internal/adapter/gateway"
	"ordito/internal/adapter/storage"
	"ordito/internal/domain"
	"ordito/internal/infra/config"
	"ordito/internal/infra/logger"
	"ordito/internal/infra/tracer"
	"ordito/internal/usecase/backend"
	"ordito/internal/usecase/eventbus"
	"ordito/internal/usecase/runner"
	"ordito/internal/usecase/scheduling"
	"ordito/internal/usecase/shell"
)

// app holds the process-wide pieces every command starts from.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	cleanup []func()
}

// openApp loads the config and sets up logging and tracing.
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(opts.configPath))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	a.onClose(func() { logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.onClose(func() { tracerShutdown(context.Background()) })
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.cleanup = append(a.cleanup, fn)
}

// Close runs the cleanup functions in reverse order of registration.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// backendStack is the remote authority: storage, runner, cron engine and
// the service that ties them together.
type backendStack struct {
	Service   *backend.Service
	Scheduler *scheduling.Scheduler
	runner    *runner.Runner
	store     *storage.SQLiteStore
}

func openBackend(ctx context.Context, cfg *config.Config, bus domain.EventBus, log *slog.Logger) (*backendStack, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	run := runner.New(runner.Config{
		Shell:       cfg.Runner.Shell,
		Timeout:     cfg.Runner.Timeout.Std(),
		OutputLimit: cfg.Runner.OutputLimit,
		MaxDetached: cfg.Runner.MaxDetached,
		WorkDir:     cfg.Runner.WorkDir,
	}, logger.Component(log, "runner"))

	sched := scheduling.NewScheduler(logger.Component(log, "scheduler"),
		scheduling.WithLocation(loc),
		scheduling.WithTaskTimeout(cfg.Scheduler.TaskTimeout.Std()),
	)

	svc := backend.New(store, run, sched, bus, backend.Config{
		ExportDir: cfg.Export.Dir,
		Location:  loc,
	}, logger.Component(log, "backend"))
	if err := svc.LoadAndSchedule(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &backendStack{Service: svc, Scheduler: sched, runner: run, store: store}, nil
}

// Close stops the cron engine, kills detached commands and closes storage.
func (b *backendStack) Close(ctx context.Context) error {
	b.Scheduler.Stop()
	b.runner.Stop(ctx)
	return b.store.Close()
}

// session is a client-side view of the remote authority.
type session struct {
	*app
	shell *shell.Shell
}

// openSession connects a shell to the server, or to an in-process backend
// when opts.local is set, and loads the groups and schedules.
func openSession(ctx context.Context, opts *globalOptions) (*session, error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		return nil, err
	}
	policy, err := shell.ParseOrphanPolicy(a.cfg.Schedules.OrphanPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	bus := eventbus.New(a.log)
	a.onClose(bus.Close)

	var gw domain.RemoteGateway
	if opts.local {
		stack, err := openBackend(ctx, a.cfg, bus, a.log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.onClose(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := stack.Close(closeCtx); err != nil {
				a.log.Warn("backend close failed", "error", err)
			}
		})
		gw = stack.Service
	} else {
		client, err := gateway.Dial(ctx, gateway.ClientConfig{
			URL:            a.cfg.Gateway.URL,
			Token:          a.cfg.Gateway.Token,
			RequestTimeout: a.cfg.Gateway.RequestTimeout.Std(),
			MaxFailures:    a.cfg.Gateway.Breaker.MaxFailures,
			BreakerTimeout: a.cfg.Gateway.Breaker.Timeout.Std(),
		}, logger.Component(a.log, "gateway"))
		if err != nil {
			a.Close()
			return nil, err
		}
		// Server events reach the shell through the local bus.
		client.OnEvent(bus.Publish)
		a.onClose(func() { client.Close() })
		gw = client
	}

	sh := shell.New(gw, bus, policy, a.log)
	a.onClose(sh.Close)
	if err := sh.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return &session{app: a, shell: sh}, nil
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
