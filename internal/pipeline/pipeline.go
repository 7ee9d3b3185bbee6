// Package pipeline runs a batch: pair classification, spindle series, curve
// fitting, reconciliation and aggregation over a set of ingested movies.
// Pairs and cells are processed in a bounded worker pool; a failure is
// isolated to the pair or cell that caused it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/mitosis.report/internal/aggregate"
	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/metrics"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
	"github.com/banshee-data/mitosis.report/internal/spindle"
	"github.com/banshee-data/mitosis.report/internal/timeutil"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// Stage names used for item errors and metrics.
const (
	StageClassify = "classify"
	StageSeries   = "series"
	StageFit      = "fit"
)

// ItemError is a failure scoped to one pair or cell.
type ItemError struct {
	Stage   string
	MovieID string
	ItemID  string
	Err     error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Stage, e.MovieID, e.ItemID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Cell is the full result for one accepted spindle.
type Cell struct {
	MovieID    string
	CellID     string
	Pair       pairing.TrackPair
	Series     spindle.Series
	Midpoints  []spindle.Midpoint
	Fit        curvefit.Result
	Reconciled reconcile.Result
	Err        error
}

// MovieResult holds everything produced for one movie.
type MovieResult struct {
	Movie    *tracks.Movie
	Pairs    []pairing.TrackPair
	Gated    int
	Disjoint int
	Cells    []Cell
	Summary  aggregate.Summary
}

// Result is the outcome of a batch run.
type Result struct {
	Movies       []MovieResult
	Dataset      aggregate.Summary
	ModelID      string
	ModelVersion int
	Errors       []ItemError
	// UnmatchedScores are human scores whose cell was not produced.
	UnmatchedScores []reconcile.Key
	Elapsed         time.Duration
}

// Runner executes batches with fixed options.
type Runner struct {
	opts    Options
	metrics *metrics.Manager
	clock   timeutil.Clock
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(opts Options, m *metrics.Manager) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	return &Runner{opts: opts, metrics: m, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for batch and fit timings.
func (r *Runner) SetClock(c timeutil.Clock) {
	r.clock = c
}

// Run processes the movies with the given model. The model is shared
// read-only by all workers. A nil model fails the batch with
// classifier.ErrClassifierUntrained before any work starts.
func (r *Runner) Run(ctx context.Context, movies []*tracks.Movie, model *classifier.Model, scores []reconcile.EventScore, decisions []reconcile.Decision) (*Result, error) {
	if model == nil {
		return nil, classifier.ErrClassifierUntrained
	}
	start := r.clock.Now()
	res := &Result{ModelID: model.ID(), ModelVersion: model.Version()}
	res.Movies = make([]MovieResult, len(movies))

	sets := make([]pairing.CandidateSet, len(movies))
	if err := r.parallel(ctx, len(movies), func(i int) error {
		sets[i] = pairing.Candidates(movies[i], r.opts.Pairing)
		return nil
	}); err != nil {
		return nil, err
	}

	type pairRef struct{ movie, pair int }
	var refs []pairRef
	for mi, set := range sets {
		res.Movies[mi] = MovieResult{Movie: movies[mi], Gated: set.Gated, Disjoint: set.Disjoint}
		r.metrics.TracksIngested(len(movies[mi].Rejected), movies[mi].TooShortCount())
		r.metrics.PairsObserved("gated", set.Gated)
		for pi := range set.Pairs {
			refs = append(refs, pairRef{mi, pi})
		}
	}

	classErrs := make([]error, len(refs))
	if err := r.parallel(ctx, len(refs), func(i int) error {
		ref := refs[i]
		p := sets[ref.movie].Pairs[ref.pair]
		classified, err := classifier.Classify(model, p, r.opts.Threshold)
		switch {
		case errors.Is(err, classifier.ErrFeatureMismatch), errors.Is(err, classifier.ErrClassifierUntrained):
			return err
		case err != nil:
			classErrs[i] = err
			return nil
		}
		sets[ref.movie].Pairs[ref.pair] = classified
		return nil
	}); err != nil {
		return nil, err
	}
	for i, err := range classErrs {
		if err != nil {
			ref := refs[i]
			r.fail(res, StageClassify, movies[ref.movie].ID, sets[ref.movie].Pairs[ref.pair].ID, err)
		}
	}

	type cellRef struct{ movie, cell int }
	var cellRefs []cellRef
	for mi, set := range sets {
		pairs := set.Pairs
		if r.opts.Exclusive {
			pairs = pairing.Assign(pairs)
		}
		res.Movies[mi].Pairs = pairs
		for _, p := range pairs {
			r.metrics.PairsObserved(p.Status(), 1)
		}
		for ci, c := range spindle.NumberCells(pairs) {
			res.Movies[mi].Cells = append(res.Movies[mi].Cells, Cell{MovieID: movies[mi].ID, CellID: c.ID, Pair: c.Pair})
			cellRefs = append(cellRefs, cellRef{mi, ci})
		}
	}

	if err := r.parallel(ctx, len(cellRefs), func(i int) error {
		ref := cellRefs[i]
		c := &res.Movies[ref.movie].Cells[ref.cell]
		r.fitCell(ctx, c)
		return nil
	}); err != nil {
		return nil, err
	}

	scores, decisions, err := bindScores(movies, res.Movies, scores, decisions)
	if err != nil {
		return nil, err
	}
	humanByKey := reconcile.IndexScores(scores)
	decisionsByKey := reconcile.IndexDecisions(decisions)
	produced := make(map[reconcile.Key]bool)
	var inputs []aggregate.MovieInput
	for mi := range res.Movies {
		mr := &res.Movies[mi]
		var cells []reconcile.Result
		var fits []curvefit.Result
		for ci := range mr.Cells {
			c := &mr.Cells[ci]
			key := reconcile.Key{MovieID: c.MovieID, CellID: c.CellID}
			produced[key] = true
			in := reconcile.Input{
				MovieID:   c.MovieID,
				CellID:    c.CellID,
				Fitted:    reconcile.FittedValues(c.Fit),
				Decisions: decisionsByKey[key],
			}
			if h, ok := humanByKey[key]; ok {
				in.Human = &h
			}
			c.Reconciled = reconcile.Reconcile(in, r.opts.Reconcile)
			r.metrics.CellObserved(cellOutcome(c))
			if c.Err != nil {
				r.fail(res, stageOf(c.Err), c.MovieID, c.CellID, c.Err)
			}
			cells = append(cells, c.Reconciled)
			fits = append(fits, c.Fit)
		}
		in := aggregate.MovieInput{
			MovieID:        mr.Movie.ID,
			Cells:          cells,
			Fits:           fits,
			Pairs:          mr.Pairs,
			Gated:          mr.Gated,
			RejectedTracks: len(mr.Movie.Rejected),
			TooShortTracks: mr.Movie.TooShortCount(),
		}
		mr.Summary = aggregate.Movie(in)
		inputs = append(inputs, in)
	}
	res.Dataset = aggregate.Dataset(inputs)

	for _, s := range scores {
		if !produced[s.Key()] {
			res.UnmatchedScores = append(res.UnmatchedScores, s.Key())
		}
	}
	sort.Slice(res.UnmatchedScores, func(i, j int) bool {
		a, b := res.UnmatchedScores[i], res.UnmatchedScores[j]
		if a.MovieID != b.MovieID {
			return a.MovieID < b.MovieID
		}
		return a.CellID < b.CellID
	})
	if n := len(res.UnmatchedScores); n > 0 {
		monitoring.Logf("[pipeline] %d human scores did not match any cell", n)
	}

	res.Elapsed = r.clock.Since(start)
	r.metrics.BatchFinished(res.Elapsed, model.Version(), r.opts.Workers)
	monitoring.Logf("[pipeline] %d movies, %d cells, %d item errors in %v", len(movies), res.Dataset.Cells, len(res.Errors), res.Elapsed)
	return res, nil
}

// bindScores ties score and decision rows to the cells produced in this
// batch.
func bindScores(movies []*tracks.Movie, results []MovieResult, scores []reconcile.EventScore, decisions []reconcile.Decision) ([]reconcile.EventScore, []reconcile.Decision, error) {
	ids := make([]string, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
	}
	var refs []reconcile.CellRef
	for _, mr := range results {
		for _, c := range mr.Cells {
			refs = append(refs, reconcile.CellRef{MovieID: c.MovieID, CellID: c.CellID, PairID: c.Pair.ID})
		}
	}
	b := reconcile.NewBinder(ids, refs)
	bound, err := b.Scores(scores)
	if err != nil {
		return nil, nil, err
	}
	ds, err := b.Decisions(decisions)
	if err != nil {
		return nil, nil, err
	}
	return bound, ds, nil
}

// stageError tags a cell error with the stage that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return StageFit
}

func (r *Runner) fitCell(ctx context.Context, c *Cell) {
	series, err := spindle.Build(c.Pair, c.CellID)
	if err != nil {
		c.Err = &stageError{stage: StageSeries, err: err}
		return
	}
	c.Series = series
	c.Midpoints = spindle.Midpoints(c.Pair, c.CellID)

	began := r.clock.Now()
	fit, err := curvefit.FitSeries(ctx, series, r.opts.Fit)
	r.metrics.FitObserved(r.clock.Since(began))
	c.Fit = fit
	switch {
	case errors.Is(err, curvefit.ErrFitTimeout):
		// Reported through the low-confidence result.
	case err != nil:
		c.Err = &stageError{stage: StageFit, err: err}
	}
}

func cellOutcome(c *Cell) string {
	switch {
	case c.Err != nil:
		return "error"
	case c.Reconciled.Divergent():
		return "divergent"
	case c.Fit.LowConfidence:
		return "low_confidence"
	case c.Reconciled.Scored():
		return "scored"
	default:
		return "partial"
	}
}

func (r *Runner) fail(res *Result, stage, movieID, itemID string, err error) {
	monitoring.Logf("[pipeline] %s failed for %s/%s: %v", stage, movieID, itemID, err)
	r.metrics.ItemFailed(stage)
	res.Errors = append(res.Errors, ItemError{Stage: stage, MovieID: movieID, ItemID: itemID, Err: err})
}

// parallel runs fn for every index in [0, n) on the worker pool. fn returns
// an error only for failures that must stop the batch.
func (r *Runner) parallel(ctx context.Context, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
