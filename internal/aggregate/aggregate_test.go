package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
)

func cell(id string, human *reconcile.EventScore, fit [3]reconcile.EventValue) reconcile.Result {
	return reconcile.Reconcile(reconcile.Input{MovieID: "m1", CellID: id, Human: human, Fitted: fit}, reconcile.DefaultOptions())
}

func score(nebd, congS, congE reconcile.EventValue) *reconcile.EventScore {
	return &reconcile.EventScore{Values: [3]reconcile.EventValue{nebd, congS, congE}}
}

func pair(v float64, valid bool, label pairing.Label, conflict bool) pairing.TrackPair {
	return pairing.TrackPair{Score: pairing.Score{Value: v, Valid: valid}, Label: label, Conflict: conflict}
}

func fitted(a, b, c int) [3]reconcile.EventValue {
	return [3]reconcile.EventValue{reconcile.At(a), reconcile.At(b), reconcile.At(c)}
}

func TestMovie_Counts(t *testing.T) {
	t.Parallel()

	in := MovieInput{
		MovieID: "m1",
		Cells: []reconcile.Result{
			cell("Cell_1", nil, fitted(10, 15, 55)),
			cell("Cell_2", nil, fitted(10, 15, 45)),
			cell("Cell_3", score(reconcile.At(10), reconcile.At(40), reconcile.At(60)), fitted(10, 15, 60)),
			cell("Cell_4", score(reconcile.Before, reconcile.At(5), reconcile.After), [3]reconcile.EventValue{}),
			cell("Cell_5", nil, [3]reconcile.EventValue{}),
		},
		Fits: []curvefit.Result{
			{CellID: "Cell_1", HasCandidates: true},
			{CellID: "Cell_5", LowConfidence: true, Reason: curvefit.ReasonTooFewPoints},
		},
		Pairs: []pairing.TrackPair{
			pair(0.95, true, pairing.Accepted, false),
			pair(0.85, true, pairing.Accepted, true),
			pair(0.10, true, pairing.Rejected, false),
			pair(1.00, true, pairing.Accepted, false),
			pair(0, false, pairing.Unscored, false),
		},
		Gated:          7,
		RejectedTracks: 1,
		TooShortTracks: 2,
	}

	s := Movie(in)
	assert.Equal(t, "m1", s.MovieID)
	assert.Equal(t, 1, s.Movies)
	assert.Equal(t, 5, s.Cells)
	assert.Equal(t, 3, s.Scored)
	assert.Equal(t, 1, s.Divergent)
	assert.Equal(t, 1, s.Insufficient)
	assert.Equal(t, 0, s.OrderViolations)

	assert.Equal(t, 5, s.Pairs)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 1, s.UnscoredPairs)
	assert.Equal(t, 1, s.Conflicts)
	assert.Equal(t, 7, s.Gated)
	assert.Equal(t, 1, s.RejectedTracks)
	assert.Equal(t, 2, s.TooShortTracks)

	// Durations: 40 and 30 frames; Cell_3 is divergent, Cell_4 bounded by a
	// sentinel.
	assert.Equal(t, 2, s.Durations)
	require.NotNil(t, s.DurationMean)
	assert.InDelta(t, 35, *s.DurationMean, 1e-9)
	require.NotNil(t, s.DurationVariance)
	assert.InDelta(t, 50, *s.DurationVariance, 1e-9)
	assert.Nil(t, s.DurationMeanMinutes)

	assert.Equal(t, [HistogramBins]int{0, 1, 0, 0, 0, 0, 0, 0, 1, 2}, s.ScoreHistogram)
	require.NotNil(t, s.ScoreP50)
	assert.InDelta(t, 0.85, *s.ScoreP50, 1e-9)
}

func TestMovie_Empty(t *testing.T) {
	t.Parallel()

	s := Movie(MovieInput{MovieID: "empty"})
	assert.Zero(t, s.Cells)
	assert.Nil(t, s.DurationMean)
	assert.Nil(t, s.DurationVariance)
	assert.Nil(t, s.ScoreP25)
	assert.Equal(t, [HistogramBins]int{}, s.ScoreHistogram)
}

func TestMovie_SingleDurationHasNoVariance(t *testing.T) {
	t.Parallel()

	s := Movie(MovieInput{Cells: []reconcile.Result{cell("Cell_1", nil, fitted(1, 2, 12))}})
	require.NotNil(t, s.DurationMean)
	assert.Equal(t, 10.0, *s.DurationMean)
	assert.Nil(t, s.DurationVariance)
}

func TestMovie_OrderViolationHasNoDuration(t *testing.T) {
	t.Parallel()

	s := Movie(MovieInput{Cells: []reconcile.Result{
		cell("Cell_1", nil, fitted(1, 2, 12)),
		cell("Cell_2", score(reconcile.At(5), reconcile.At(40), reconcile.At(20)), [3]reconcile.EventValue{}),
	}})
	assert.Equal(t, 1, s.OrderViolations)
	assert.Equal(t, 1, s.Durations)
	require.NotNil(t, s.DurationMean)
	assert.Equal(t, 10.0, *s.DurationMean)
}

func TestDataset_Pools(t *testing.T) {
	t.Parallel()

	a := MovieInput{MovieID: "a", Cells: []reconcile.Result{cell("Cell_1", nil, fitted(0, 10, 20))}, Gated: 1}
	b := MovieInput{MovieID: "b", Cells: []reconcile.Result{
		cell("Cell_1", nil, fitted(0, 10, 40)),
		cell("Cell_2", nil, fitted(0, 10, 40)),
	}, Gated: 2}

	s := Dataset([]MovieInput{a, b})
	assert.Equal(t, DatasetID, s.MovieID)
	assert.Equal(t, 2, s.Movies)
	assert.Equal(t, 3, s.Cells)
	assert.Equal(t, 3, s.Gated)
	require.NotNil(t, s.DurationMean)
	// Pooled over cells, not averaged per movie.
	assert.InDelta(t, (10.0+30+30)/3, *s.DurationMean, 1e-9)
}

func TestHistogram_Edges(t *testing.T) {
	t.Parallel()

	h := histogram([]float64{0, 0.1, 0.5, 0.99999, 1})
	assert.Equal(t, [HistogramBins]int{1, 1, 0, 0, 0, 1, 0, 0, 0, 2}, h)
}
