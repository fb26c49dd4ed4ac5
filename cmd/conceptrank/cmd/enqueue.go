package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/output"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
)

func newEnqueueCmd(g *globalOptions) *cobra.Command {
	var (
		req  querylog.Request
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a ranking request for a polling daemon",
		Long: `Add a ranking request to the query log's request queue. A daemon
started with 'serve --poll' picks it up; 'history --request <id>' shows
its state.

Examples:
  conceptrank enqueue --seed 1234 --limit 50
  conceptrank enqueue --label "graph theory" --wait 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("alpha") {
				a, _ := cmd.Flags().GetFloat64("alpha")
				req.Alpha = &a
			}
			if len(req.Seeds) == 0 && len(req.SeedLabels) == 0 {
				return crerrors.InvalidParameter("at least one --seed or --label is required")
			}

			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			id, err := store.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("Queued request %s", id)
			if wait <= 0 {
				return nil
			}

			deadline := time.Now().Add(wait)
			for {
				got, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				switch got.Status {
				case querylog.StatusDone:
					out.Success("Request completed")
					return nil
				case querylog.StatusFailed:
					return errors.New(got.Error)
				}
				if time.Now().After(deadline) {
					out.Warningf("Request still %s after %s", got.Status, wait)
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(250 * time.Millisecond):
				}
			}
		},
	}

	cmd.Flags().Int64SliceVarP(&req.Seeds, "seed", "s", nil, "Seed concept id (repeatable)")
	cmd.Flags().StringArrayVarP(&req.SeedLabels, "label", "l", nil, "Seed concept label (repeatable)")
	cmd.Flags().Float64P("alpha", "a", 0, "Restart probability in [0,1] (default from config)")
	cmd.Flags().IntVarP(&req.TopN, "limit", "n", 0, "Number of results (default from config)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the request to finish")
	return cmd
}

func newHistoryCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		requestID  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries from the query log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			out := output.New(cmd.OutOrStdout())

			if requestID != "" {
				req, err := store.Get(ctx, requestID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return enc.Encode(req)
				}
				pairs := [][2]string{
					{"id", req.ID},
					{"status", req.Status},
					{"created", req.CreatedAt.Format(time.RFC3339)},
					{"updated", req.UpdatedAt.Format(time.RFC3339)},
				}
				if req.Error != "" {
					pairs = append(pairs, [2]string{"error", req.Error})
				}
				out.KeyValue(pairs)
				return nil
			}

			recs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				out.Status("", "No queries recorded")
				return nil
			}
			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, []string{
					r.Timestamp.Format("2006-01-02 15:04:05"),
					r.QueryID,
					fmt.Sprintf("%.2f", r.Alpha),
					fmt.Sprint(r.SeedCount),
				})
			}
			out.Table([]string{"TIME", "QUERY", "ALPHA", "SEEDS"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records")
	cmd.Flags().StringVar(&requestID, "request", "", "Show a queued request by id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
