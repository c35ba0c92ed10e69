package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/arena/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┬─┐┌─┐┌┐┌┌─┐
  ╠═╣├┬┘├┤ │││├─┤
  ╩ ╩┴└─└─┘┘└┘┴ ┴
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(errors.Classify(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "arena",
		Short: "Command line client for realtime multiplayer servers",
		Long: `Arena connects to a load-balanced realtime server cluster.

It authenticates on the master server, lists rooms in the lobby
and joins rooms hosted on game servers. Features include:

  • Lobby listing with live updates
  • Create, join and random-join rooms
  • Raising custom room events
  • A local master and game server for development
  • A custom authentication service`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (default: arena.yaml in the working directory or a parent)")
	flags.StringVar(&a.envFile, "env-file", ".env", "Env file loaded before ARENA_* overrides")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		lobbyCmd(a),
		createCmd(a),
		joinCmd(a),
		randomCmd(a),
		authServerCmd(a),
		devServerCmd(a),
		versionCmd(),
	)

	return rootCmd
}

// printBanner prints the arena ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
