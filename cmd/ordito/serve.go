package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ordito/internal/adapter/gateway"
	"ordito/internal/domain"
	"ordito/internal/infra/config"
	"ordito/internal/infra/logger"
	"ordito/internal/infra/middleware"
	"ordito/internal/usecase/eventbus"
)

var errNoTokens = errors.New("no gateway tokens configured: set gateway.auth.tokens, gateway.token or ORDITO_GATEWAY_TOKENS")

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Host groups and schedules and fire the schedules",
		Long: `Serve loads the groups and schedules from the database, arms every
active schedule and exposes them over the WebSocket gateway until it is
interrupted. /api/v1/status and /metrics report on the same address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("addr") {
				a.cfg.Gateway.Addr = addr
			}
			return runServer(ctx, a)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides gateway.addr)")
	return serveCmd
}

// serverTokens returns the tokens the gateway accepts. The client token
// counts too so a single-user setup needs only gateway.token.
func serverTokens(cfg *config.Config) []gateway.TokenEntry {
	var entries []gateway.TokenEntry
	for _, t := range cfg.Gateway.Auth.Tokens {
		entries = append(entries, gateway.TokenEntry{Token: t.Token, Name: t.Name, ReadOnly: t.ReadOnly})
	}
	if len(entries) == 0 && cfg.Gateway.Token != "" {
		entries = append(entries, gateway.TokenEntry{Token: cfg.Gateway.Token, Name: "default"})
	}
	return entries
}

func runServer(ctx context.Context, a *app) error {
	log := a.log
	tokens := serverTokens(a.cfg)
	if len(tokens) == 0 {
		return fmt.Errorf("%w: %w", errNoTokens, domain.ErrInvalidInput)
	}

	bus := eventbus.New(log)
	defer bus.Close()

	stack, err := openBackend(ctx, a.cfg, bus, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := stack.Close(shutdownCtx); err != nil {
			log.Error("backend shutdown error", "error", err)
		}
	}()

	srv := gateway.NewServer(bus, gateway.NewStaticTokenAuth(tokens), a.cfg.Gateway.Addr,
		logger.Component(log, "gateway"),
		gateway.WithRateLimit(a.cfg.Gateway.RateLimit.PerSecond, a.cfg.Gateway.RateLimit.Burst),
		gateway.WithHTTPMiddleware(
			middleware.RequestLog(logger.Component(log, "http")),
			middleware.LimitByIP(ctx, a.cfg.Gateway.ConnectLimit.PerMinute, a.cfg.Gateway.ConnectLimit.Burst),
			middleware.Headers,
		),
	)
	gateway.RegisterHandlers(srv, stack.Service)
	gateway.RegisterStatusRoutes(srv, stack.Service)

	if err := stack.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	log.Info("ordito serving", "addr", a.cfg.Gateway.Addr, "storage", a.cfg.Storage.Path, "clients", len(tokens))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("ordito stopped")
	return nil
}
