package rank

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/registry"
)

func TestRank_ExcludesSeedsAndOrdersByScore(t *testing.T) {
	// Given: path A–B–C–D–E scores for seed A
	scores := []float64{0.98684, 1.0, 0.45614, 0.21053, 0.0}
	reg := registry.New([]int64{1, 2, 3, 4, 5})
	reg.AddLabels([]registry.LabelRecord{{ExternalID: 2, Label: "B"}, {ExternalID: 3, Label: "C"}})

	// When: ranking the top 2
	got, err := Rank(scores, roaring.BitmapOf(0), 2, reg)

	// Then: B then C, with ids and labels resolved
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Result{Index: 1, Score: 1.0, ExternalID: 2, Label: "B"}, got[0])
	assert.Equal(t, Result{Index: 2, Score: 0.45614, ExternalID: 3, Label: "C"}, got[1])
}

func TestRank_TiesBreakByAscendingIndex(t *testing.T) {
	scores := []float64{0.25, 1.0, 0.0, 1.0, 0.25}

	got, err := Rank(scores, nil, 5, nil)
	require.NoError(t, err)

	idx := make([]int, len(got))
	for i, r := range got {
		idx[i] = r.Index
	}
	assert.Equal(t, []int{1, 3, 0, 4, 2}, idx)
}

func TestRank_TopNLargerThanCandidates(t *testing.T) {
	got, err := Rank([]float64{0.5, 1, 0}, roaring.BitmapOf(0, 1), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Index: 2, Score: 0}}, got)

	got, err = Rank([]float64{1}, roaring.BitmapOf(0), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRank_RejectsNonPositiveTopN(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := Rank([]float64{1, 0}, nil, n, nil)
		assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeInvalidParameter))
	}
}
