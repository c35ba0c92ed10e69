package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/arena/internal/errors"
	"github.com/vango-dev/arena/pkg/auth"
)

func authServerCmd(a *app) *cobra.Command {
	var (
		addr  string
		creds map[string]string
	)

	cmd := &cobra.Command{
		Use:   "auth-server",
		Short: "Run a custom authentication service",
		Long: `Run an HTTP endpoint that checks custom authentication parameters.

The master forwards the client's auth parameters as the query string
of GET /auth. A request is accepted when its user and token match a
configured credential.

Examples:
  arena auth-server --cred ann=secret
  arena auth-server --addr=:8081 --config=arena.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.AuthServer
			if addr != "" {
				cfg.Addr = addr
			}
			credentials := auth.Credentials{}
			for user, token := range cfg.Credentials {
				credentials[user] = token
			}
			for user, token := range creds {
				credentials[user] = token
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := a.logger.With("component", "auth-server")
			if len(credentials) == 0 {
				warn(cmd.OutOrStdout(), "No credentials configured; every request will be rejected")
			}

			reg := newMetricsRegistry()
			handler := auth.NewRouter(auth.NewHandler(credentials, logger))

			g, gctx := errgroup.WithContext(ctx)
			serveHTTP(gctx, g, &http.Server{
				Addr:              cfg.Addr,
				Handler:           instrument(handler, reg, "auth"),
				ReadHeaderTimeout: shutdownTimeout,
			}, logger)
			serveMetrics(gctx, g, a.cfg.Metrics.Addr, reg, a.logger)

			success(cmd.OutOrStdout(), "Auth service on %s/auth", cfg.Addr)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return errors.New("A051").Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringToStringVar(&creds, "cred", nil, "Accepted credential user=token")

	return cmd
}
