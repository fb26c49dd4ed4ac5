package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/output"
)

func newLookupCmd(g *globalOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "lookup <text>",
		Short: "Search concept labels",
		Long: `Search the labels of graph concepts and print matching ids, for use
as --seed values.

Examples:
  conceptrank lookup "markov chain"
  conceptrank lookup eigen --limit 20`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			rt, err := g.openApp(cmd.Context(), slog.Default(), appOptions{noSink: true})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if rt.labels == nil {
				return crerrors.ConfigError("label index is disabled (labels.index: off)", nil)
			}
			matches, err := rt.labels.Search(cmd.Context(), text, limit)
			if err != nil {
				return err
			}
			return printMatches(cmd, text, matches, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of matches")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printMatches(cmd *cobra.Command, text string, matches []labelindex.Match, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	out := output.New(cmd.OutOrStdout())
	if len(matches) == 0 {
		out.Warningf("No concepts found for %q", text)
		return nil
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{fmt.Sprint(m.ExternalID), m.Label, fmt.Sprintf("%.3f", m.Score)})
	}
	out.Table([]string{"ID", "LABEL", "SCORE"}, rows)
	return nil
}
