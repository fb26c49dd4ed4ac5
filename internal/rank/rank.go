// Package rank turns a stationary score vector into the ordered list of
// concepts most related to the seeds.
package rank

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/registry"
)

// Result is one ranked concept.
type Result struct {
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	ExternalID int64   `json:"external_id"`
	Label      string  `json:"label,omitempty"`
}

// Rank excludes every seed, orders the remaining concepts by score
// descending and returns the first topN. reg may be nil, in which case
// ExternalID and Label are left empty.
func Rank(scores []float64, seeds *roaring.Bitmap, topN int, reg *registry.Registry) ([]Result, error) {
	if topN <= 0 {
		return nil, crerrors.InvalidParameter(fmt.Sprintf("topN must be positive, got %d", topN))
	}
	if seeds == nil {
		seeds = roaring.New()
	}

	results := make([]Result, 0, len(scores))
	for i, s := range scores {
		if seeds.Contains(uint32(i)) {
			continue
		}
		results = append(results, Result{Index: i, Score: s})
	}

	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})
	if len(results) > topN {
		results = results[:topN]
	}

	if reg != nil {
		for i := range results {
			results[i].ExternalID, _ = reg.Decode(results[i].Index)
			results[i].Label, _ = reg.Label(results[i].Index)
		}
	}
	return results, nil
}

// compare orders by higher score, then by lower index.
func compare(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}
