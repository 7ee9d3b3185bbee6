// Package curvefit finds the mitotic event frames in a spindle-length series
// by fitting a four-phase piecewise-linear model: a plateau before nuclear
// envelope breakdown (NEBD), a drop until congression starts (CongS),
// elongation during congression and a plateau after congression ends (CongE).
// Each phase gets its own least-squares line; adjacent phases share their
// boundary point but the lines need not meet there.
package curvefit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/spindle"
)

// ErrFitTimeout is returned alongside a low-confidence result when the
// breakpoint search did not finish in time. It is not fatal.
var ErrFitTimeout = errors.New("curve fit timed out")

// Low-confidence reasons.
const (
	ReasonTooFewPoints = "too-few-points"
	ReasonFlatSeries   = "flat-series"
	ReasonTimeout      = "timeout"
)

// Default fit parameters.
const (
	DefaultMinPoints        = 5
	DefaultMinSegmentPoints = 3
	DefaultTimeout          = 2 * time.Second
	DefaultConfidenceScale  = 0.05
)

// Options controls the breakpoint search.
type Options struct {
	MinPoints int
	// MinSegmentPoints is the fewest points the pre-NEBD, congression and
	// post-congression phases may cover. It is lowered for series too short
	// to give every one of them that many.
	MinSegmentPoints int
	Timeout          time.Duration
	ConfidenceScale  float64
}

// DefaultOptions returns the built-in fit parameters.
func DefaultOptions() Options {
	return Options{
		MinPoints:        DefaultMinPoints,
		MinSegmentPoints: DefaultMinSegmentPoints,
		Timeout:          DefaultTimeout,
		ConfidenceScale:  DefaultConfidenceScale,
	}
}

// Line is one fitted segment: length = Intercept + Slope*frame over
// [FromFrame, ToFrame].
type Line struct {
	FromFrame int     `json:"from_frame"`
	ToFrame   int     `json:"to_frame"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at frame f.
func (l Line) At(f float64) float64 { return l.Intercept + l.Slope*f }

// Result is the outcome of fitting one cell. Candidate frames and lines are
// present only when HasCandidates is set; Confidence is then in (0, 1].
type Result struct {
	CellID string `json:"cell_id"`
	Points int    `json:"points"`

	HasCandidates bool    `json:"has_candidates"`
	NEBD          int     `json:"nebd"`
	CongS         int     `json:"cong_s"`
	CongE         int     `json:"cong_e"`
	Segments      [4]Line `json:"segments"`

	Residual      float64 `json:"residual"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
	Reason        string  `json:"reason,omitempty"`
}

// FitSeries fits a spindle-length series.
func FitSeries(ctx context.Context, s spindle.Series, opts Options) (Result, error) {
	return Fit(ctx, s.CellID, s.Frames(), s.Lengths(), opts)
}

// Fit searches the three breakpoints minimising the total squared residual
// of the four-phase model. Frames must be strictly increasing; gaps are
// allowed. On timeout the result is low-confidence without candidates and
// the error wraps ErrFitTimeout.
func Fit(ctx context.Context, cellID string, frames []int, lengths []float64, opts Options) (Result, error) {
	res := Result{CellID: cellID, Points: len(frames)}
	if err := validateSeries(frames, lengths); err != nil {
		return res, fmt.Errorf("cell %s: %w", cellID, err)
	}

	minPoints := opts.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	if len(frames) < minPoints {
		return lowConfidence(res, ReasonTooFewPoints), nil
	}

	lo, hi := lengths[0], lengths[0]
	for _, v := range lengths[1:] {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return lowConfidence(res, ReasonFlatSeries), nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	p := newPrefix(frames, lengths)
	i1, i2, i3, sse, err := search(ctx, p, len(frames), segmentSpan(opts.MinSegmentPoints, len(frames)))
	if err != nil {
		monitoring.Logf("[curvefit] cell %s: search aborted after %v: %v", cellID, opts.Timeout, err)
		return lowConfidence(res, ReasonTimeout), fmt.Errorf("cell %s: %w", cellID, ErrFitTimeout)
	}

	n := len(frames)
	res.HasCandidates = true
	res.NEBD, res.CongS, res.CongE = frames[i1], frames[i2], frames[i3]
	res.Residual = sse
	bounds := [5]int{0, i1, i2, i3, n - 1}
	for k := 0; k < 4; k++ {
		slope, intercept := p.line(bounds[k], bounds[k+1])
		res.Segments[k] = Line{FromFrame: frames[bounds[k]], ToFrame: frames[bounds[k+1]], Slope: slope, Intercept: intercept}
	}

	scale := opts.ConfidenceScale
	if scale <= 0 {
		scale = DefaultConfidenceScale
	}
	nrmse := math.Sqrt(sse/float64(n)) / span
	res.Confidence = math.Exp(-nrmse / scale)
	return res, nil
}

func lowConfidence(res Result, reason string) Result {
	res.LowConfidence = true
	res.Reason = reason
	return res
}

func validateSeries(frames []int, lengths []float64) error {
	if len(frames) != len(lengths) {
		return fmt.Errorf("series has %d frames but %d lengths", len(frames), len(lengths))
	}
	for i := range frames {
		if math.IsNaN(lengths[i]) || math.IsInf(lengths[i], 0) {
			return fmt.Errorf("non-finite length at frame %d", frames[i])
		}
		if i > 0 && frames[i] <= frames[i-1] {
			return fmt.Errorf("frames not strictly increasing at frame %d", frames[i])
		}
	}
	return nil
}

// segmentSpan converts a minimum point count into the minimum index
// distance between the two ends of a phase, capped so that three such
// phases fit into n points.
func segmentSpan(minPoints, n int) int {
	if minPoints <= 0 {
		minPoints = DefaultMinSegmentPoints
	}
	span := minPoints - 1
	if limit := (n - 1) / 3; span > limit {
		span = limit
	}
	return max(span, 0)
}

// search runs the three-stage dynamic programme over breakpoint indices
// i1 <= i2 <= i3, with i1, i3-i2 and n-1-i3 each at least span. Ties
// resolve to the earliest index.
func search(ctx context.Context, p *prefix, n, span int) (i1, i2, i3 int, sse float64, err error) {
	best2 := make([]float64, n)
	arg2 := make([]int, n)
	for j := 0; j < n; j++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, 0, err
		}
		best2[j] = math.Inf(1)
		for i := span; i <= j; i++ {
			if c := p.sse(0, i) + p.sse(i, j); c < best2[j] {
				best2[j], arg2[j] = c, i
			}
		}
	}

	best3 := make([]float64, n)
	arg3 := make([]int, n)
	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, 0, err
		}
		best3[k] = math.Inf(1)
		for j := span; j <= k-span; j++ {
			if c := best2[j] + p.sse(j, k); c < best3[k] {
				best3[k], arg3[k] = c, j
			}
		}
	}

	sse = math.Inf(1)
	for k := 2 * span; k <= n-1-span; k++ {
		if c := best3[k] + p.sse(k, n-1); c < sse {
			sse, i3 = c, k
		}
	}
	i2 = arg3[i3]
	i1 = arg2[i2]
	return i1, i2, i3, sse, nil
}
