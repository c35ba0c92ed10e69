package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/arena/internal/config"
)

// app is the state shared by every command: the resolved configuration and
// the logger built from it.
type app struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	metricsAddr string

	cfg    *config.Config
	logger *slog.Logger
}

// load resolves the configuration. Precedence, lowest first: defaults, the
// config file, the env file and process environment, then flags.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := a.readConfig()
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Format, cfg.LogLevel())
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) readConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if root, err := config.FindProjectRoot(wd); err == nil {
		return config.Load(root)
	}
	return config.New(), nil
}

// newLogger builds the process logger.
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
