// Package reconcile combines human-scored event timings with fitted ones.
// Disagreements beyond tolerance are flagged for an explicit external
// decision and never resolved automatically.
package reconcile

import (
	"time"

	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/units"
)

// DefaultTolerance is the agreement window in frames.
const DefaultTolerance = 2

// Options controls reconciliation.
type Options struct {
	// Tolerance is the largest human/fit difference, in frames, that
	// still counts as agreement.
	Tolerance int
	// FrameInterval converts durations to minutes when non-zero.
	FrameInterval time.Duration
}

// DefaultOptions returns the built-in reconciliation parameters.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance}
}

// Input is everything known about one cell.
type Input struct {
	MovieID string
	CellID  string
	// Human is the external score, nil when the cell was not scored.
	Human *EventScore
	// Fitted holds the fit candidates; values are Missing when the fit
	// produced none.
	Fitted [3]EventValue
	// Decisions resolve divergent events.
	Decisions []Decision
}

// FittedValues converts a fit result into event values.
func FittedValues(res curvefit.Result) [3]EventValue {
	if !res.HasCandidates {
		return [3]EventValue{}
	}
	return [3]EventValue{At(res.NEBD), At(res.CongS), At(res.CongE)}
}

// Outcome is the reconciled state of one event.
type Outcome struct {
	Final      EventValue
	Provenance Provenance
	Divergent  bool
	Human      EventValue
	Fitted     EventValue
	Decision   *EventValue
}

// Duration is the congression duration. It is undefined unless both bounds
// are concrete, final and non-divergent, and the events are in order.
type Duration struct {
	Frames  int
	Valid   bool
	Minutes float64
	// Timed is set when Minutes was derived from a frame interval.
	Timed bool
}

// Result is the finalized event score of one cell.
type Result struct {
	MovieID        string
	CellID         string
	Events         [3]Outcome
	OrderViolation bool
	Duration       Duration
}

// Final returns the finalized score.
func (r Result) Final() EventScore {
	s := EventScore{MovieID: r.MovieID, CellID: r.CellID}
	for _, e := range Events {
		s.Values[e] = r.Events[e].Final
	}
	return s
}

// Divergent reports whether any event awaits a decision.
func (r Result) Divergent() bool {
	for _, o := range r.Events {
		if o.Divergent {
			return true
		}
	}
	return false
}

// Scored reports whether all three events have a final value.
func (r Result) Scored() bool {
	for _, o := range r.Events {
		if !o.Final.Present() {
			return false
		}
	}
	return true
}

// Input reconstructs the input the result was derived from, so that a
// finalized score can be reconciled again.
func (r Result) Input() Input {
	in := Input{MovieID: r.MovieID, CellID: r.CellID}
	var human EventScore
	hasHuman := false
	for _, e := range Events {
		o := r.Events[e]
		human.Values[e] = o.Human
		hasHuman = hasHuman || o.Human.Present()
		in.Fitted[e] = o.Fitted
		if o.Decision != nil {
			in.Decisions = append(in.Decisions, Decision{MovieID: r.MovieID, CellID: r.CellID, Event: e, Value: *o.Decision})
		}
	}
	if hasHuman {
		human.MovieID, human.CellID = r.MovieID, r.CellID
		in.Human = &human
	}
	return in
}

// Reconcile applies the per-event policy to one cell. It is a pure function
// of its arguments.
func Reconcile(in Input, opts Options) Result {
	res := Result{MovieID: in.MovieID, CellID: in.CellID}
	tol := opts.Tolerance
	if tol < 0 {
		tol = 0
	}

	for _, e := range Events {
		var human EventValue
		if in.Human != nil {
			human = in.Human.Get(e)
		}
		o := decide(human, in.Fitted[e], tol)
		if o.Divergent {
			if d, ok := findDecision(in.Decisions, e); ok {
				v := d.Value
				o.Decision = &v
				o.Final = v
				o.Provenance = Reconciled
				o.Divergent = false
			} else {
				monitoring.Logf("[reconcile] %s %s %s divergent: human %s, fitted %s", in.MovieID, in.CellID, e, human, in.Fitted[e])
			}
		}
		res.Events[e] = o
	}

	res.OrderViolation = orderViolation(res.Events)
	if !res.OrderViolation {
		res.Duration = congressionDuration(res.Events, opts.FrameInterval)
	}
	return res
}

func decide(human, fitted EventValue, tol int) Outcome {
	o := Outcome{Human: human, Fitted: fitted}
	switch {
	case human.Sentinel():
		o.Final, o.Provenance = human, Human
	case human.Concrete() && fitted.Concrete():
		if abs(human.Frame-fitted.Frame) <= tol {
			o.Final, o.Provenance = human, Human
		} else {
			o.Provenance = ReconciledPending
			o.Divergent = true
		}
	case human.Concrete():
		o.Final, o.Provenance = human, Human
	case fitted.Present():
		o.Final, o.Provenance = fitted, Fitted
	default:
		o.Provenance = None
	}
	return o
}

func findDecision(ds []Decision, e Event) (Decision, bool) {
	// The last decision for an event wins.
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].Event == e && ds[i].Value.Present() {
			return ds[i], true
		}
	}
	return Decision{}, false
}

func orderViolation(events [3]Outcome) bool {
	var prev *EventValue
	for i := range events {
		v := events[i].Final
		if !v.Present() {
			continue
		}
		if prev != nil && v.rank() < prev.rank() {
			return true
		}
		prev = &events[i].Final
	}
	return false
}

func congressionDuration(events [3]Outcome, interval time.Duration) Duration {
	s, e := events[CongS], events[CongE]
	if s.Divergent || e.Divergent || !s.Final.Concrete() || !e.Final.Concrete() {
		return Duration{}
	}
	d := Duration{Frames: e.Final.Frame - s.Final.Frame, Valid: true}
	if m, ok := units.ConvertFrames(d.Frames, interval, units.Minutes); ok {
		d.Minutes = m
		d.Timed = true
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
