// Package aggregate rolls per-cell results up into per-movie and per-dataset
// summaries.
package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
)

// HistogramBins is the number of equal-width classifier score bins on [0, 1].
const HistogramBins = 10

// DatasetID labels the dataset-wide summary row.
const DatasetID = "ALL"

// MovieInput is everything the pipeline produced for one movie.
type MovieInput struct {
	MovieID        string
	Cells          []reconcile.Result
	Fits           []curvefit.Result
	Pairs          []pairing.TrackPair
	Gated          int
	RejectedTracks int
	TooShortTracks int
}

// Summary is one row of the per-movie table.
type Summary struct {
	MovieID string `json:"movie_id"`
	Movies  int    `json:"movies"`

	Cells           int `json:"cells"`
	Scored          int `json:"scored"`
	Divergent       int `json:"divergent"`
	Insufficient    int `json:"insufficient"`
	OrderViolations int `json:"order_violations"`

	Pairs          int `json:"pairs"`
	Accepted       int `json:"accepted"`
	UnscoredPairs  int `json:"unscored_pairs"`
	Gated          int `json:"gated"`
	Conflicts      int `json:"conflicts"`
	RejectedTracks int `json:"rejected_tracks"`
	TooShortTracks int `json:"too_short_tracks"`

	// Congression duration statistics in frames over cells where it is
	// defined. Nil when undefined.
	Durations           int      `json:"durations"`
	DurationMean        *float64 `json:"duration_mean"`
	DurationVariance    *float64 `json:"duration_variance"`
	DurationMeanMinutes *float64 `json:"duration_mean_minutes"`

	ScoreHistogram [HistogramBins]int `json:"score_histogram"`
	ScoreP25       *float64           `json:"score_p25"`
	ScoreP50       *float64           `json:"score_p50"`
	ScoreP75       *float64           `json:"score_p75"`
}

// Movie summarises one movie.
func Movie(in MovieInput) Summary {
	s := Dataset([]MovieInput{in})
	s.MovieID = in.MovieID
	return s
}

// Dataset pools the cells and pairs of all movies into one summary.
func Dataset(ins []MovieInput) Summary {
	s := Summary{MovieID: DatasetID, Movies: len(ins)}
	var durations, minutes, scores []float64

	for _, in := range ins {
		s.Gated += in.Gated
		s.RejectedTracks += in.RejectedTracks
		s.TooShortTracks += in.TooShortTracks

		for _, c := range in.Cells {
			s.Cells++
			if c.Scored() {
				s.Scored++
			}
			if c.Divergent() {
				s.Divergent++
			}
			if c.OrderViolation {
				s.OrderViolations++
			}
			if c.Duration.Valid {
				durations = append(durations, float64(c.Duration.Frames))
				if c.Duration.Timed {
					minutes = append(minutes, c.Duration.Minutes)
				}
			}
		}
		for _, f := range in.Fits {
			if f.LowConfidence {
				s.Insufficient++
			}
		}
		for _, p := range in.Pairs {
			s.Pairs++
			switch {
			case !p.Score.Valid:
				s.UnscoredPairs++
			default:
				scores = append(scores, p.Score.Value)
			}
			if p.Conflict {
				s.Conflicts++
			} else if p.Label == pairing.Accepted {
				s.Accepted++
			}
		}
	}

	s.Durations = len(durations)
	if len(durations) > 0 {
		mean := stat.Mean(durations, nil)
		s.DurationMean = &mean
	}
	if len(durations) > 1 {
		v := stat.Variance(durations, nil)
		s.DurationVariance = &v
	}
	if len(minutes) > 0 {
		m := stat.Mean(minutes, nil)
		s.DurationMeanMinutes = &m
	}

	if len(scores) > 0 {
		sort.Float64s(scores)
		s.ScoreHistogram = histogram(scores)
		s.ScoreP25 = quantile(0.25, scores)
		s.ScoreP50 = quantile(0.5, scores)
		s.ScoreP75 = quantile(0.75, scores)
	}
	return s
}

// histogram bins sorted scores into equal-width bins on [0, 1]. A score of
// exactly 1 falls in the last bin.
func histogram(sorted []float64) [HistogramBins]int {
	dividers := make([]float64, HistogramBins+1)
	floats.Span(dividers, 0, 1)
	dividers[HistogramBins] = math.Nextafter(1, 2)

	counts := stat.Histogram(nil, dividers, sorted, nil)
	var out [HistogramBins]int
	for i, c := range counts {
		out[i] = int(c)
	}
	return out
}

func quantile(p float64, sorted []float64) *float64 {
	q := stat.Quantile(p, stat.Empirical, sorted, nil)
	return &q
}
