package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/conceptrank/internal/output"
	"github.com/Aman-CERP/conceptrank/internal/profiling"
)

func newBuildCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or load the corpus caches",
		Long: `Parse the edge and label sources into the four cache artifacts
(adjacency, id map, labels, transition matrix). Existing caches are reused
when valid; stale or corrupt ones are rebuilt from the sources.

Examples:
  conceptrank build
  conceptrank build --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			start := time.Now()

			rt, err := g.openApp(cmd.Context(), slog.Default(), appOptions{force: force, noSink: true})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			st := rt.engine.Corpus().Stats()
			out.Successf("Corpus ready in %s", time.Since(start).Round(time.Millisecond))
			out.KeyValue([][2]string{
				{"concepts", fmt.Sprint(st.Concepts)},
				{"edges", fmt.Sprint(st.Edges)},
				{"labels", fmt.Sprint(st.Labels)},
				{"cache", st.CacheDir},
				{"heap", profiling.FormatBytes(profiling.HeapInUse())},
			})
			if st.LabelOnlyIDs > 0 {
				out.Warningf("%d labelled ids have no edges and cannot be used as seeds", st.LabelOnlyIDs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild every cache from the sources")
	return cmd
}
