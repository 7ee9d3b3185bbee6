package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mitosis.report/internal/tracks"
)

func scoredPair(a, b string, score float64, label Label) TrackPair {
	p := NewPair("m", &tracks.Track{ID: a}, &tracks.Track{ID: b})
	return p.WithScore(Scored(score), label)
}

func statuses(pairs []TrackPair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.ID] = p.Status()
	}
	return out
}

func TestHungarianAssign_SquareOptimal(t *testing.T) {
	t.Parallel()

	cost := [][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	result := hungarianAssign(cost)
	require.Len(t, result, 3)

	total := 0.0
	for i, j := range result {
		require.GreaterOrEqual(t, j, 0, "row %d unassigned", i)
		total += cost[i][j]
	}
	assert.Equal(t, 10.0, total)
}

func TestHungarianAssign_Forbidden(t *testing.T) {
	t.Parallel()

	cost := [][]float64{
		{1, 2},
		{forbidden, forbidden},
	}
	result := hungarianAssign(cost)
	require.Len(t, result, 2)
	assert.GreaterOrEqual(t, result[0], 0)
	assert.Equal(t, -1, result[1])
	assert.Nil(t, hungarianAssign(nil))
}

func TestAssign_SharedTrackKeepsBest(t *testing.T) {
	t.Parallel()

	pairs := []TrackPair{
		scoredPair("1", "2", 0.95, Accepted),
		scoredPair("1", "3", 0.70, Accepted),
		scoredPair("4", "5", 0.90, Accepted),
		scoredPair("2", "4", 0.20, Rejected),
	}
	out := Assign(pairs)

	assert.Equal(t, map[string]string{
		"m:1+2": "true",
		"m:1+3": "conflict",
		"m:4+5": "true",
		"m:2+4": "false",
	}, statuses(out))

	// Input values are untouched.
	for _, p := range pairs {
		assert.False(t, p.Conflict)
	}
}

func TestAssign_MaximisesTotalScore(t *testing.T) {
	t.Parallel()

	// Greedy would keep 1+2 (0.9) and lose both others; the optimal
	// assignment keeps 1+3 and 4+2 (0.8 + 0.8).
	pairs := []TrackPair{
		scoredPair("1", "2", 0.90, Accepted),
		scoredPair("1", "3", 0.80, Accepted),
		scoredPair("0", "2", 0.80, Accepted),
	}
	out := Assign(pairs)
	assert.Equal(t, map[string]string{
		"m:1+2": "conflict",
		"m:1+3": "true",
		"m:0+2": "true",
	}, statuses(out))
}

func TestAssign_TrackOnBothSides(t *testing.T) {
	t.Parallel()

	// Track 2 is the higher id in 1+2 and the lower id in 2+3.
	pairs := []TrackPair{
		scoredPair("1", "2", 0.60, Accepted),
		scoredPair("2", "3", 0.85, Accepted),
	}
	out := Assign(pairs)
	assert.Equal(t, map[string]string{
		"m:1+2": "conflict",
		"m:2+3": "true",
	}, statuses(out))
}

func TestAssign_NoAccepted(t *testing.T) {
	t.Parallel()

	pairs := []TrackPair{scoredPair("1", "2", 0.1, Rejected), {ID: "m:3+4", Label: Unscored}}
	out := Assign(pairs)
	assert.Equal(t, pairs, out)
}
