package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/conceptrank/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		lines int
		level string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Print the last entries of the conceptrank log
(~/.conceptrank/logs/conceptrank.log).

Examples:
  conceptrank logs
  conceptrank logs -n 200 --level warn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}
			v := logging.NewViewer(level, cmd.OutOrStdout())
			entries, err := v.Tail(path, lines)
			if err != nil {
				return err
			}
			v.Print(entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&level, "level", "debug", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&file, "file", "", "Custom log file path")
	return cmd
}
