package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/conceptrank/internal/labelindex"
)

// FormatRanking renders a ranking as a markdown table.
func FormatRanking(resp RankOutput) string {
	if len(resp.Results) == 0 {
		return "No related concepts found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Related concepts (alpha %.2f, %d seed", resp.Alpha, resp.SeedCount))
	if resp.SeedCount != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(")\n\n")
	if resp.Degenerate {
		sb.WriteString("> The walk has no unique stationary distribution; all scores are 0.\n\n")
	}

	sb.WriteString("| # | id | label | score |\n|---|---|---|---|\n")
	for i, r := range resp.Results {
		sb.WriteString(fmt.Sprintf("| %d | %d | %s | %.4f |\n", i+1, r.ExternalID, escapeCell(r.Label), r.Score))
	}
	return sb.String()
}

// FormatMatches renders label search hits as a markdown list.
func FormatMatches(text string, matches []labelindex.Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No concepts found for \"%s\"", text)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Concepts matching \"%s\"\n\n", text))
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("- **%s** (id %d)\n", m.Label, m.ExternalID))
	}
	return sb.String()
}

func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
