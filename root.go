package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/irdrive/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and handed to
// subcommands through the command context.
type CLIContext struct {
	Flags   CLIFlags
	Env     config.EnvOverrides
	CLI     config.CLIOverrides
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("irdrive: CLIContext missing from command context")
	}

	return cc
}

// unvalidatedCommands still load the config but tolerate an incomplete one,
// so a user can inspect or clean up a half-written setup. Keyed by
// CommandPath() so that same-named subcommands do not collide.
var unvalidatedCommands = map[string]bool{
	"irdrive logout":      true,
	"irdrive config show": true,
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "irdrive",
		Short:   "Incident report filing on SharePoint and OneDrive",
		Long:    "Files ground station incident reports into a SharePoint document library over Microsoft Graph.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newIncidentCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves the effective configuration for cmd and builds the
// logger from it.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	env := config.ReadEnvOverrides()
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		listen := f.Value.String()
		cli.Listen = &listen
	}

	resolve := config.Resolve
	if unvalidatedCommands[cmd.CommandPath()] {
		resolve = config.ResolveUnvalidated
	}

	cfg, path, err := resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := buildLogger(cfg.Logging, flags)
	if err != nil {
		return nil, err
	}

	logger.Debug("config resolved", slog.String("path", path))

	return &CLIContext{
		Flags:   flags,
		Env:     env,
		CLI:     cli,
		Cfg:     cfg,
		CfgPath: path,
		Logger:  logger,
	}, nil
}

// buildLogger creates the process logger. The config file sets the level,
// format, and destination; --verbose and --quiet override the level because
// CLI flags always win. A log file stays open for the life of the process.
func buildLogger(lc config.LoggingConfig, flags CLIFlags) (*slog.Logger, error) {
	level := slog.LevelInfo

	switch strings.ToLower(lc.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr

	if lc.LogFile != "" {
		f, err := os.OpenFile(lc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:mnd // owner-only log
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}

		out = f
	}

	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(lc.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	}

	return slog.New(slog.NewTextHandler(out, opts)), nil
}
