package pairing

import (
	"math"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// CandidateSet is the outcome of pair enumeration for one movie.
type CandidateSet struct {
	MovieID string
	Pairs   []TrackPair

	// Gated counts pairs rejected by the distance gates. Disjoint counts
	// pairs with no shared frame at all.
	Gated    int
	Disjoint int
}

// Candidates enumerates every unordered pair of usable tracks in the movie,
// in pair-id order, and computes each pair's feature vector. Pairs that
// share no frame, or that fail the distance gates, are counted rather than
// returned.
func Candidates(m *tracks.Movie, opts Options) CandidateSet {
	set := CandidateSet{MovieID: m.ID}
	usable := m.Usable()
	window := m.Length()

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			a, b := usable[i], usable[j]
			joints := SharedFrames(a, b)
			if len(joints) == 0 {
				set.Disjoint++
				continue
			}
			if gated(joints, opts) {
				set.Gated++
				continue
			}
			p := NewPair(m.ID, a, b)
			p.Features = featurizeJoints(joints, p.A, p.B, window, opts)
			set.Pairs = append(set.Pairs, p)
		}
	}

	if set.Gated > 0 {
		monitoring.Logf("[pairing] movie %s: %d candidates, %d gated (mean > %.1f or closest > %.1f)",
			m.ID, len(set.Pairs), set.Gated, opts.GateDistance, opts.MinContactDistance)
	}
	return set
}

// gated reports whether the mean separation over the shared frames exceeds
// GateDistance, or the closest approach stays above MinContactDistance.
func gated(joints []Joint, opts Options) bool {
	if opts.GateDistance <= 0 && opts.MinContactDistance <= 0 {
		return false
	}
	sum, closest := 0.0, math.Inf(1)
	for _, j := range joints {
		d := j.Distance()
		sum += d
		closest = math.Min(closest, d)
	}
	if opts.GateDistance > 0 && sum/float64(len(joints)) > opts.GateDistance {
		return true
	}
	return opts.MinContactDistance > 0 && closest > opts.MinContactDistance
}
