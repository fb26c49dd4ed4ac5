package mcp

import (
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/rank"
)

// RankInput defines the input schema for the rank_concepts tool.
type RankInput struct {
	Seeds  []int64  `json:"seeds,omitempty" jsonschema:"external concept ids to restart from"`
	Labels []string `json:"labels,omitempty" jsonschema:"concept labels to resolve into seeds"`
	Alpha  *float64 `json:"alpha,omitempty" jsonschema:"restart probability in [0,1], default from config"`
	Limit  int      `json:"limit,omitempty" jsonschema:"number of related concepts to return"`
}

// RankOutput defines the output schema for the rank_concepts tool.
type RankOutput struct {
	QueryID    string        `json:"query_id"`
	Alpha      float64       `json:"alpha"`
	SeedCount  int           `json:"seed_count"`
	Degenerate bool          `json:"degenerate,omitempty" jsonschema:"true when the walk had no unique stationary distribution; all scores are 0"`
	Results    []rank.Result `json:"results" jsonschema:"concepts ordered by relatedness, seeds excluded"`
}

// LookupInput defines the input schema for the lookup_concepts tool.
type LookupInput struct {
	Text  string `json:"text" jsonschema:"label text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of matches, default 10"`
}

// LookupOutput defines the output schema for the lookup_concepts tool.
type LookupOutput struct {
	Matches []labelindex.Match `json:"matches"`
}

// StatusInput defines the input schema for the corpus_status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the corpus_status tool.
type StatusOutput struct {
	Concepts     int     `json:"concepts"`
	Edges        int     `json:"edges"`
	NonZeros     int     `json:"non_zeros"`
	Labels       int     `json:"labels"`
	Symmetric    bool    `json:"symmetric"`
	Damping      float64 `json:"damping"`
	Method       string  `json:"method"`
	LabelIndex   bool    `json:"label_index"`
	QueryLog     string  `json:"query_log"`
	CacheDir     string  `json:"cache_dir"`
	DefaultLimit int     `json:"default_limit"`
}
