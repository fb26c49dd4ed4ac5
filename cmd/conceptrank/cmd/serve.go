package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/conceptrank/internal/daemon"
	"github.com/Aman-CERP/conceptrank/internal/logging"
	"github.com/Aman-CERP/conceptrank/internal/mcp"
	"github.com/Aman-CERP/conceptrank/internal/output"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	mcp  bool
	poll bool
	stop bool
}

func newServeCmd(g *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rankings over a unix socket or MCP",
		Long: `Load the corpus once and answer ranking requests until interrupted.

By default a JSON-RPC server listens on server.socket_path and the CLI
'rank' command uses it automatically. With --poll the daemon also drains
the query log's request queue. With --mcp the tools are served to an MCP
client over stdio instead.

Examples:
  conceptrank serve
  conceptrank serve --poll
  conceptrank serve --mcp
  conceptrank serve --stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case opts.stop:
				return runServeStop(cmd, g)
			case opts.mcp:
				return runServeMCP(cmd.Context(), g)
			default:
				return runServeDaemon(cmd, g, opts.poll)
			}
		},
	}

	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Serve MCP tools over stdio")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Also process queued requests from the query log")
	cmd.Flags().BoolVar(&opts.stop, "stop", false, "Stop the running daemon")
	cmd.MarkFlagsMutuallyExclusive("mcp", "poll")
	cmd.MarkFlagsMutuallyExclusive("mcp", "stop")
	return cmd
}

func runServeDaemon(cmd *cobra.Command, g *globalOptions, poll bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())
	logger := slog.Default()

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	dcfg, err := daemon.FromConfig(cfg)
	if err != nil {
		return err
	}
	if err := dcfg.EnsureDir(); err != nil {
		return err
	}

	pid := daemon.NewPIDFile(dcfg.PIDPath)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pid.Remove() }()

	rt, err := g.openApp(ctx, logger, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if poll && rt.store == nil {
		return fmt.Errorf("--poll needs the query log; set querylog.enabled in config")
	}

	handler := daemon.NewEngineHandler(rt.engine)
	server := daemon.NewServer(dcfg, handler, logger)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return server.ListenAndServe(ctx) })
	if poll {
		handler.SetPolling(true)
		poller := daemon.NewPoller(rt.store, rt.engine, dcfg, cfg.Ranking.TopN, logger)
		eg.Go(func() error { return poller.Run(ctx) })
	}

	st := rt.engine.Corpus().Stats()
	out.Successf("Serving %d concepts on %s", st.Concepts, dcfg.SocketPath)
	if poll {
		out.Statusf("", "polling request queue every %s", dcfg.PollInterval)
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		out.Status("", "stopped")
		return nil
	}
	return err
}

func runServeMCP(ctx context.Context, g *globalOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Server.LogLevel
	if g.debug {
		level = "debug"
	}
	// Stdout carries the protocol; log to file only.
	logger, cleanup, err := logging.Setup(logging.MCPConfig(level))
	if err != nil {
		return err
	}
	defer cleanup()

	rt, err := g.openApp(ctx, logger, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	srv, err := mcp.NewServer(rt.engine, logger)
	if err != nil {
		return err
	}
	err = srv.Serve(ctx, "stdio")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runServeStop(cmd *cobra.Command, g *globalOptions) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	dcfg, err := daemon.FromConfig(cfg)
	if err != nil {
		return err
	}

	pid := daemon.NewPIDFile(dcfg.PIDPath)
	if !pid.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}
	if err := pid.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !pid.IsRunning() {
			out.Success("Daemon stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	out.Warning("Daemon did not exit within 5s")
	return nil
}
