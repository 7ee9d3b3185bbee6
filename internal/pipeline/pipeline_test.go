package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/config"
	"github.com/banshee-data/mitosis.report/internal/metrics"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
	"github.com/banshee-data/mitosis.report/internal/testutil"
	"github.com/banshee-data/mitosis.report/internal/timeutil"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// trainingMovie holds six spindle pairs and six pairs of unrelated tracks,
// each placed far from the others.
func trainingMovie() (*tracks.Movie, []PairLabel) {
	var records []tracks.Record
	var labels []PairLabel
	for i := 0; i < 6; i++ {
		p := testutil.DefaultProfile()
		p.NEBD += i
		p.CongS += i
		p.CongE -= 2 * i
		p.Plateau += 0.4 * float64(i)
		a, b := fmt.Sprintf("s%da", i), fmt.Sprintf("s%db", i)
		records = append(records, testutil.PairRecordsAt("train", a, b, float64(1000*i), 0, p)...)
		labels = append(labels, PairLabel{PairID: pairing.PairID("train", a, b), Label: true})

		x, y := float64(1000*i), 5000.0
		a, b = fmt.Sprintf("w%da", i), fmt.Sprintf("w%db", i)
		records = append(records, testutil.WanderRecords("train", a, x, y, 0, 60, int64(10+i))...)
		records = append(records, testutil.WanderRecords("train", b, x+10, y+6, 0, 60, int64(100+i))...)
		labels = append(labels, PairLabel{PairID: pairing.PairID("train", a, b), Label: false})
	}
	return tracks.Ingest("train", records, tracks.Options{}), labels
}

func trainedModel(t testing.TB) *classifier.Model {
	t.Helper()
	m, labels := trainingMovie()
	examples, stats := BuildTrainingSet([]*tracks.Movie{m}, labels, pairing.DefaultOptions())
	require.Equal(t, 12, stats.Used)
	model, err := classifier.Train(examples, classifier.DefaultTrainOptions())
	require.NoError(t, err)
	return model
}

// batchMovie holds two spindles, a track far from everything and a track
// too short to pair.
func batchMovie() *tracks.Movie {
	second := testutil.DefaultProfile()
	second.CongE = 50
	records := testutil.PairRecords("m1", "1", "2", testutil.DefaultProfile())
	records = append(records, testutil.PairRecordsAt("m1", "3", "4", 400, 400, second)...)
	records = append(records, testutil.WanderRecords("m1", "5", 2000, 2000, 0, 80, 3)...)
	records = append(records, tracks.Record{MovieID: "m1", TrackID: "6", Frame: 4, X: 50, Y: 40})
	return tracks.Ingest("m1", records, tracks.Options{})
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	model := trainedModel(t)
	mm := metrics.NewManager()
	opts := DefaultOptions()
	opts.Workers = 3
	runner := NewRunner(opts, mm)

	scores := []reconcile.EventScore{
		{MovieID: "m1", CellID: "Cell_1", Values: [3]reconcile.EventValue{reconcile.At(10), reconcile.At(15), reconcile.At(60)}},
		{MovieID: "m1", CellID: "Cell_2", Values: [3]reconcile.EventValue{reconcile.At(10), reconcile.At(30), reconcile.At(50)}},
		{MovieID: "m1", CellID: "Cell_9", Values: [3]reconcile.EventValue{reconcile.Before}},
	}

	res, err := runner.Run(context.Background(), []*tracks.Movie{batchMovie()}, model, scores, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ID(), res.ModelID)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []reconcile.Key{{MovieID: "m1", CellID: "Cell_9"}}, res.UnmatchedScores)

	require.Len(t, res.Movies, 1)
	mr := res.Movies[0]
	require.Len(t, mr.Cells, 2)

	c1, c2 := mr.Cells[0], mr.Cells[1]
	assert.Equal(t, "Cell_1", c1.CellID)
	assert.Equal(t, "m1:1+2", c1.Pair.ID)
	assert.Equal(t, "Cell_2", c2.CellID)
	assert.Equal(t, "m1:3+4", c2.Pair.ID)

	require.True(t, c1.Fit.HasCandidates)
	assert.InDelta(t, 10, c1.Fit.NEBD, 1)
	assert.InDelta(t, 15, c1.Fit.CongS, 1)
	assert.InDelta(t, 60, c1.Fit.CongE, 1)
	assert.Len(t, c1.Series.Points, 80)
	assert.Len(t, c1.Midpoints, 80)

	for _, e := range reconcile.Events {
		assert.Equal(t, reconcile.Human, c1.Reconciled.Events[e].Provenance)
	}
	assert.True(t, c1.Reconciled.Duration.Valid)
	assert.Equal(t, 45, c1.Reconciled.Duration.Frames)

	assert.True(t, c2.Reconciled.Events[reconcile.CongS].Divergent)
	assert.False(t, c2.Reconciled.Duration.Valid)

	s := mr.Summary
	assert.Equal(t, 2, s.Cells)
	assert.Equal(t, 1, s.Scored)
	assert.Equal(t, 1, s.Divergent)
	assert.Equal(t, 1, s.TooShortTracks)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, res.Dataset.Cells, s.Cells)

	// One series per outcome: Cell_1 scored, Cell_2 divergent.
	n, err := promtestutil.GatherAndCount(mm.Registry(), "mitosis_cells_cells_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_DecisionResolvesDivergence(t *testing.T) {
	t.Parallel()

	scores := []reconcile.EventScore{
		{MovieID: "m1", CellID: "Cell_2", Values: [3]reconcile.EventValue{reconcile.At(10), reconcile.At(30), reconcile.At(50)}},
	}
	decisions := []reconcile.Decision{
		{MovieID: "m1", CellID: "Cell_2", Event: reconcile.CongS, Value: reconcile.At(16)},
	}
	res, err := NewRunner(DefaultOptions(), nil).Run(context.Background(), []*tracks.Movie{batchMovie()}, trainedModel(t), scores, decisions)
	require.NoError(t, err)

	c2 := res.Movies[0].Cells[1]
	out := c2.Reconciled.Events[reconcile.CongS]
	assert.False(t, out.Divergent)
	assert.Equal(t, reconcile.Reconciled, out.Provenance)
	assert.Equal(t, reconcile.At(16), out.Final)
	require.True(t, c2.Reconciled.Duration.Valid)
	assert.Equal(t, 34, c2.Reconciled.Duration.Frames)
	assert.Empty(t, res.UnmatchedScores)
}

func TestRun_Untrained(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(DefaultOptions(), nil).Run(context.Background(), []*tracks.Movie{batchMovie()}, nil, nil, nil)
	assert.ErrorIs(t, err, classifier.ErrClassifierUntrained)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(DefaultOptions(), nil).Run(ctx, []*tracks.Movie{batchMovie()}, trainedModel(t), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	model := trainedModel(t)
	run := func(workers int) *Result {
		opts := DefaultOptions()
		opts.Workers = workers
		res, err := NewRunner(opts, nil).Run(context.Background(), []*tracks.Movie{batchMovie()}, model, nil, nil)
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(8)
	require.Len(t, b.Movies[0].Cells, len(a.Movies[0].Cells))
	for i := range a.Movies[0].Cells {
		assert.Equal(t, a.Movies[0].Cells[i].Fit, b.Movies[0].Cells[i].Fit)
		assert.Equal(t, a.Movies[0].Cells[i].Pair.Score, b.Movies[0].Cells[i].Pair.Score)
	}
	assert.Equal(t, a.Dataset, b.Dataset)
}

func TestBuildTrainingSet_Exclusions(t *testing.T) {
	t.Parallel()

	records := append(
		testutil.WanderRecords("m1", "a", 0, 0, 0, 10, 1),
		testutil.WanderRecords("m1", "b", 3, 0, 8, 10, 2)..., // overlaps a on frames 8 and 9 only
	)
	records = append(records, testutil.WanderRecords("m1", "c", 3, 3, 0, 10, 3)...)
	m := tracks.Ingest("m1", records, tracks.Options{})

	labels := []PairLabel{
		{PairID: "m1:a+b", Label: true},
		{PairID: "m1:c+a", Label: true},
		{PairID: "m1:a+zz", Label: false},
		{PairID: "m9:a+b", Label: false},
	}
	examples, stats := BuildTrainingSet([]*tracks.Movie{m}, labels, pairing.DefaultOptions())
	require.Len(t, examples, 1)
	assert.Equal(t, "m1:a+c", examples[0].PairID)
	assert.Equal(t, 4, stats.Labels)
	assert.Equal(t, 1, stats.Used)
	assert.Equal(t, 1, stats.Insufficient)
	assert.Equal(t, []string{"m1:a+zz", "m9:a+b"}, stats.Unknown)
}

func TestReadLabelsCSV(t *testing.T) {
	t.Parallel()

	data := `pairId,label
m1:1+2,true
m1:3+4,0
m1:5+6,yes
bad,true
m1:7+8,maybe
`
	labels, rowErrs, err := ReadLabelsCSV(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []PairLabel{
		{PairID: "m1:1+2", Label: true},
		{PairID: "m1:3+4", Label: false},
		{PairID: "m1:5+6", Label: true},
	}, labels)
	require.Len(t, rowErrs, 2)
	assert.Equal(t, 5, rowErrs[0].Line)
	assert.Equal(t, 6, rowErrs[1].Line)

	_, _, err = ReadLabelsCSV(strings.NewReader("id,verdict\n"))
	assert.Error(t, err)
}

func TestRun_ElapsedUsesClock(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	clock.SetStep(time.Second)
	runner := NewRunner(DefaultOptions(), nil)
	runner.SetClock(clock)

	res, err := runner.Run(context.Background(), []*tracks.Movie{batchMovie()}, trainedModel(t), nil, nil)
	require.NoError(t, err)
	cells := res.Movies[0].Cells
	require.Len(t, cells, 2)
	// One reading at batch start and one per fitted cell.
	assert.Equal(t, time.Duration(1+len(cells))*time.Second, res.Elapsed)
}

func TestOptionsFromConfig_Defaults(t *testing.T) {
	t.Parallel()

	got := OptionsFromConfig(config.DefaultAnalysisConfig())
	want := DefaultOptions()
	assert.Equal(t, want.Pairing, got.Pairing)
	assert.Equal(t, want.Fit, got.Fit)
	assert.Equal(t, want.Reconcile, got.Reconcile)
	assert.Equal(t, want.Train, got.Train)
	assert.Equal(t, want.Threshold, got.Threshold)
	assert.Equal(t, want.Exclusive, got.Exclusive)
	assert.Positive(t, got.Workers)
}

func TestRun_BindsScoresWithoutMovie(t *testing.T) {
	t.Parallel()

	model := trainedModel(t)
	scores := []reconcile.EventScore{
		{CellID: "Cell_1", Values: [3]reconcile.EventValue{reconcile.Before, reconcile.At(15), reconcile.At(60)}},
		{PairID: "m1:3+4", Values: [3]reconcile.EventValue{reconcile.At(10), reconcile.At(15), reconcile.At(50)}},
	}
	res, err := NewRunner(DefaultOptions(), nil).Run(context.Background(), []*tracks.Movie{batchMovie()}, model, scores, nil)
	require.NoError(t, err)
	assert.Empty(t, res.UnmatchedScores)

	c1, c2 := res.Movies[0].Cells[0], res.Movies[0].Cells[1]
	nebd := c1.Reconciled.Events[reconcile.NEBD]
	assert.Equal(t, reconcile.Before, nebd.Final)
	assert.Equal(t, reconcile.Human, nebd.Provenance)
	assert.Equal(t, reconcile.Human, c2.Reconciled.Events[reconcile.CongE].Provenance)
}

func TestRun_AmbiguousScoreFails(t *testing.T) {
	t.Parallel()

	other := testutil.PairRecords("m2", "1", "2", testutil.DefaultProfile())
	movies := []*tracks.Movie{batchMovie(), tracks.Ingest("m2", other, tracks.Options{})}
	scores := []reconcile.EventScore{{CellID: "Cell_1", Values: [3]reconcile.EventValue{reconcile.At(10)}}}

	_, err := NewRunner(DefaultOptions(), nil).Run(context.Background(), movies, trainedModel(t), scores, nil)
	require.ErrorIs(t, err, reconcile.ErrAmbiguousCell)
	assert.Contains(t, err.Error(), "m1, m2")

	// Cell_2 exists only in m1.
	scores = []reconcile.EventScore{{CellID: "Cell_2", Values: [3]reconcile.EventValue{reconcile.At(10)}}}
	res, err := NewRunner(DefaultOptions(), nil).Run(context.Background(), movies, trainedModel(t), scores, nil)
	require.NoError(t, err)
	assert.Empty(t, res.UnmatchedScores)
	assert.Equal(t, reconcile.Human, res.Movies[0].Cells[1].Reconciled.Events[reconcile.NEBD].Provenance)
}
