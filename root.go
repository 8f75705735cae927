package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/romm-sync/saveport/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIContext bundles the resolved config and logger built once in
// PersistentPreRunE, so RunE handlers never redo config resolution.
type CLIContext struct {
	Holder *config.Holder
	Logger *slog.Logger
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics. Every command in this
// tree loads config in PersistentPreRunE, so a missing context here is a
// programmer error, not a runtime condition.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context")
	}
	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "saveport",
		Short:   "Bidirectional game save synchronizer",
		Long:    "saveport reconciles game save files between a handheld device and a remote ROM-management service.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	// Register subcommands.
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newTriggerCmd())

	return cmd
}

// loadConfig resolves the effective configuration (CLI flag > environment
// variable > platform default path) and stores it, alongside a logger, in
// the command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger()

	var cliPaths []string
	if flagConfigPath != "" {
		cliPaths = []string{flagConfigPath}
	}

	env := config.ReadEnvOverrides()
	paths := config.ResolveConfigPaths(env, cliPaths, logger)

	cfg, err := config.LoadOrDefault(paths, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	holder := config.NewHolder(cfg, paths[0])
	cc := &CLIContext{Holder: holder, Logger: logger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger honoring the mutually exclusive
// --verbose/--debug/--quiet flags. Default level is warn.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
