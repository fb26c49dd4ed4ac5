package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/conceptrank/internal/corpus"
	"github.com/Aman-CERP/conceptrank/internal/daemon"
	"github.com/Aman-CERP/conceptrank/internal/output"
)

// statsReport is the JSON shape of `stats --json`.
type statsReport struct {
	corpus.Stats
	Damping   float64              `json:"damping"`
	Method    string               `json:"method"`
	Direction string               `json:"direction"`
	Daemon    *daemon.StatusResult `json:"daemon,omitempty"`
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := g.openApp(ctx, slog.Default(), appOptions{noSink: true})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			report := statsReport{
				Stats:     rt.engine.Corpus().Stats(),
				Damping:   rt.cfg.Solver.Damping,
				Method:    rt.cfg.Solver.Method,
				Direction: rt.cfg.Corpus.Direction,
			}
			if dcfg, err := daemon.FromConfig(rt.cfg); err == nil {
				client := daemon.NewClient(dcfg)
				if client.IsRunning() {
					if st, err := client.Status(ctx); err == nil {
						report.Daemon = st
					}
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out := output.New(cmd.OutOrStdout())
			pairs := [][2]string{
				{"concepts", fmt.Sprint(report.Concepts)},
				{"edges", fmt.Sprint(report.Edges)},
				{"matrix non-zeros", fmt.Sprint(report.NonZeros)},
				{"labels", fmt.Sprint(report.Labels)},
				{"label-only ids", fmt.Sprint(report.LabelOnlyIDs)},
				{"direction", report.Direction},
				{"damping", fmt.Sprintf("%.2f", report.Damping)},
				{"solver", report.Method},
				{"cache", report.CacheDir},
			}
			if report.Daemon != nil {
				pairs = append(pairs,
					[2]string{"daemon", fmt.Sprintf("running (pid %d, %d queries served)", report.Daemon.PID, report.Daemon.QueriesServed)})
				if m := report.Daemon.Metrics; m != nil && m.Total > 0 {
					pairs = append(pairs,
						[2]string{"failed queries", fmt.Sprint(m.Failed)},
						[2]string{"cache hit rate", fmt.Sprintf("%.0f%%", 100*m.CacheHitRate())})
				}
			} else {
				pairs = append(pairs, [2]string{"daemon", "not running"})
			}
			out.KeyValue(pairs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
