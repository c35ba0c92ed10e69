package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/arena/internal/errors"
	"github.com/vango-dev/arena/pkg/auth"
	"github.com/vango-dev/arena/pkg/lbtest"
)

func devServerCmd(a *app) *cobra.Command {
	var (
		masterAddr    string
		gameAddr      string
		advertise     string
		appID         string
		authURL       string
		statsInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local master and game server",
		Long: `Run an in-memory master server and game server for development.

The master hands out --advertise as the game-server address. Rooms
live in memory and disappear when their last actor leaves.

Examples:
  arena dev-server
  arena dev-server --master-addr=:9090 --game-addr=:9091
  arena dev-server --auth-url=http://localhost:8081/auth`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.DevServer
			if masterAddr != "" {
				cfg.MasterAddr = masterAddr
			}
			if gameAddr != "" {
				cfg.GameAddr = gameAddr
			}
			if authURL != "" {
				cfg.AuthURL = authURL
			}
			if appID == "" {
				appID = a.cfg.Client.AppID
			}
			if advertise == "" {
				advertise = advertiseAddr(cfg.GameAddr)
			}

			serverConfig := lbtest.Config{
				AppID:       appID,
				GameAddress: advertise,
				Logger:      a.logger,
			}
			if cfg.AuthURL != "" {
				serverConfig.Verifier = &auth.HTTPVerifier{URL: cfg.AuthURL}
			}
			srv := lbtest.New(serverConfig)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := a.logger.With("component", "dev-server")
			reg := newMetricsRegistry()
			g, gctx := errgroup.WithContext(ctx)
			serveHTTP(gctx, g, &http.Server{
				Addr:              cfg.MasterAddr,
				Handler:           instrument(srv.MasterHandler(), reg, "master"),
				ReadHeaderTimeout: shutdownTimeout,
			}, logger.With("server", "master"))
			serveHTTP(gctx, g, &http.Server{
				Addr:              cfg.GameAddr,
				Handler:           instrument(srv.GameHandler(), reg, "game"),
				ReadHeaderTimeout: shutdownTimeout,
			}, logger.With("server", "game"))
			serveMetrics(gctx, g, a.cfg.Metrics.Addr, reg, a.logger)

			if statsInterval > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(statsInterval)
					defer ticker.Stop()
					for {
						select {
						case <-gctx.Done():
							return nil
						case <-ticker.C:
							srv.BroadcastAppStats()
						}
					}
				})
			}

			out := cmd.OutOrStdout()
			printBanner(out)
			success(out, "Master server on %s", cfg.MasterAddr)
			success(out, "Game server on %s (advertised as %s)", cfg.GameAddr, advertise)
			if serverConfig.Verifier != nil {
				info(out, "Custom auth checked against %s", cfg.AuthURL)
			}

			err := g.Wait()
			srv.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				return errors.New("A051").Wrap(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&masterAddr, "master-addr", "", "Master listen address (default from config)")
	cmd.Flags().StringVar(&gameAddr, "game-addr", "", "Game server listen address (default from config)")
	cmd.Flags().StringVar(&advertise, "advertise", "", "Game server address handed to clients (default: derived from --game-addr)")
	cmd.Flags().StringVar(&appID, "app-id", "", "Required application id (default from config, empty accepts any)")
	cmd.Flags().StringVar(&authURL, "auth-url", "", "Custom auth endpoint, e.g. http://localhost:8081/auth")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 5*time.Second, "Interval of application statistics pushed to the lobby (0 disables)")

	return cmd
}

// advertiseAddr turns a listen address into one clients can dial.
func advertiseAddr(listen string) string {
	switch {
	case strings.HasPrefix(listen, ":"):
		return "localhost" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "localhost" + strings.TrimPrefix(listen, "0.0.0.0")
	default:
		return listen
	}
}
