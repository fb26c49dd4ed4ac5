package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/conceptrank/internal/daemon"
	"github.com/Aman-CERP/conceptrank/internal/engine"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/output"
)

// rankOptions holds CLI flags for rank.
type rankOptions struct {
	seeds  []int64
	labels []string
	alpha  float64
	limit  int
	format string // "text", "json"
	local  bool   // bypass the daemon
}

func newRankCmd(g *globalOptions) *cobra.Command {
	var opts rankOptions

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the concepts most related to a seed set",
		Long: `Run a random walk with restart from the seed concepts and print the
highest scoring other concepts.

Uses the running daemon when there is one, otherwise loads the corpus
in-process.

Examples:
  conceptrank rank --seed 1234
  conceptrank rank --seed 1234 --seed 5678 --alpha 0.3 --limit 5
  conceptrank rank --label "random walk" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var damping *float64
			if cmd.Flags().Changed("alpha") {
				damping = &opts.alpha
			}
			return runRank(cmd, g, opts, damping)
		},
	}

	cmd.Flags().Int64SliceVarP(&opts.seeds, "seed", "s", nil, "Seed concept id (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.labels, "label", "l", nil, "Seed concept label (repeatable)")
	cmd.Flags().Float64VarP(&opts.alpha, "alpha", "a", 0, "Restart probability in [0,1] (default from config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Rank in-process (bypass daemon)")
	return cmd
}

func runRank(cmd *cobra.Command, g *globalOptions, opts rankOptions, damping *float64) error {
	if opts.format != "text" && opts.format != "json" {
		return crerrors.InvalidParameter(fmt.Sprintf("unknown format %q", opts.format))
	}
	ctx := cmd.Context()
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	params := daemon.RankParams{Seeds: opts.seeds, SeedLabels: opts.labels, Damping: damping, TopN: opts.limit}
	if err := params.Validate(); err != nil {
		return crerrors.InvalidParameter(err.Error())
	}

	if !opts.local {
		if dcfg, err := daemon.FromConfig(cfg); err == nil {
			client := daemon.NewClient(dcfg)
			if client.IsRunning() {
				resp, err := client.Rank(ctx, params)
				if err == nil {
					slog.Info("rank_complete", slog.String("mode", "daemon"), slog.Int("results", len(resp.Results)))
					return printRanking(cmd, resp, opts.format)
				}
				if crerrors.GetCode(err) != "" {
					return err
				}
				slog.Warn("daemon rank failed, falling back to local", slog.String("error", err.Error()))
			}
		}
	}

	resp, err := rankLocal(ctx, g, params.Query(cfg.Ranking.TopN))
	if err != nil {
		return err
	}
	slog.Info("rank_complete", slog.String("mode", "local"), slog.Int("results", len(resp.Results)))
	return printRanking(cmd, resp, opts.format)
}

func rankLocal(ctx context.Context, g *globalOptions, q engine.Query) (*engine.Response, error) {
	rt, err := g.openApp(ctx, slog.Default(), appOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rt.Close() }()
	return rt.engine.Rank(ctx, q)
}

func printRanking(cmd *cobra.Command, resp *engine.Response, format string) error {
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	if len(resp.Results) == 0 {
		out.Warning("No related concepts found")
		return nil
	}
	if resp.Degenerate {
		out.Warning("The walk has no unique stationary distribution; all scores are 0")
	}

	rows := make([][]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		label := r.Label
		if label == "" {
			label = "-"
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			fmt.Sprint(r.ExternalID),
			label,
			fmt.Sprintf("%.4f", r.Score),
			output.ScoreBar(r.Score, 20),
		})
	}
	out.Table([]string{"RANK", "ID", "LABEL", "SCORE", ""}, rows)
	out.Newline()
	out.Dim(fmt.Sprintf("alpha %.2f, %d seeds, %s%s", resp.Alpha, resp.SeedCount,
		resp.Elapsed.Round(time.Microsecond), cachedNote(resp.Cached)))
	return nil
}

func cachedNote(cached bool) string {
	if cached {
		return " (cached)"
	}
	return ""
}
