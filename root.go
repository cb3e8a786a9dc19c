// Command inkhaven runs the persistence core of the Inkhaven
// book-authoring application: an HTTP server that keeps fast in-memory
// book metadata, mirrors content to a remote drive, and manages the
// drive credential lifecycle.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/inkhaven/inkhaven/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
	flagJSON       bool
)

// defaultConfigPath is used when neither --config nor INKHAVEN_CONFIG is set.
const defaultConfigPath = "inkhaven.toml"

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inkhaven",
		Short:   "Inkhaven persistence core",
		Long:    "Hybrid persistence server for the Inkhaven book-authoring application.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "force JSON log output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuthURLCmd())

	return cmd
}

// resolveConfigPath applies the override chain for the config file
// location: CLI flag > environment > default.
func resolveConfigPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	if env := os.Getenv(config.EnvConfig); env != "" {
		return env
	}

	return defaultConfigPath
}

// buildLogger creates the process logger. The level variable is shared
// with the config watcher so a reload can retune verbosity live. Output
// is human-readable text on a terminal, JSON otherwise.
func buildLogger(cfg *config.Config, levelVar *slog.LevelVar) *slog.Logger {
	levelVar.Set(logLevel(cfg))

	opts := &slog.HandlerOptions{Level: levelVar}

	if !flagJSON && isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// logLevel maps the config level string, with CLI flags taking priority.
func logLevel(cfg *config.Config) slog.Level {
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return level
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
