// Package cmd provides the CLI commands for conceptrank.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/logging"
	"github.com/Aman-CERP/conceptrank/internal/profiling"
	"github.com/Aman-CERP/conceptrank/pkg/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configDir  string
	debug      bool
	profileCPU string
	profileMem string

	profile *profiling.Session
	cleanup func()
}

// NewRootCmd creates the root command for the conceptrank CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "conceptrank",
		Short: "Rank related concepts in a knowledge graph",
		Long: `conceptrank answers "which concepts are most related to these?" by
running a random walk with restart (personalized PageRank) over a
knowledge graph built from tab-separated edge and label files.

Build the corpus caches once, then rank from the CLI, a background
daemon, or an MCP client.

Examples:
  conceptrank build
  conceptrank rank --seed 1234 --seed 5678 --limit 10
  conceptrank rank --label "graph theory" --alpha 0.3
  conceptrank serve --poll`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("conceptrank version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.configDir, "config-dir", ".", "Directory containing .conceptrank.yaml")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error { return g.start(cmd) }
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error { return g.stop() }

	cmd.AddCommand(newBuildCmd(g))
	cmd.AddCommand(newRankCmd(g))
	cmd.AddCommand(newLookupCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newEnqueueCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start installs file logging and starts profiling. The MCP server swaps in
// its own file-only logger, so stdout is never written here.
func (g *globalOptions) start(cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	if g.debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is best effort; fall back to stderr.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		cleanup = func() {}
	}
	slog.SetDefault(logger)
	g.cleanup = cleanup
	slog.Debug("command_started", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))

	g.profile, err = profiling.Start(profiling.Options{CPUPath: g.profileCPU, MemPath: g.profileMem})
	if err != nil {
		return err
	}
	return nil
}

func (g *globalOptions) stop() error {
	var err error
	if g.profile != nil {
		err = g.profile.Stop()
		g.profile = nil
	}
	if g.cleanup != nil {
		g.cleanup()
		g.cleanup = nil
	}
	return err
}

// Execute runs the root command with SIGINT/SIGTERM cancelling the context,
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, "interrupted")
		return 130
	}
	_, _ = fmt.Fprint(os.Stderr, crerrors.FormatForCLI(err))
	return 1
}
