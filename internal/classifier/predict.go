package classifier

import (
	"fmt"

	"github.com/banshee-data/mitosis.report/internal/pairing"
)

// DefaultThreshold separates accepted from rejected scores.
const DefaultThreshold = 0.5

// Predict scores a feature vector. An insufficient vector is returned
// unscored without error; a nil model returns ErrClassifierUntrained.
func Predict(m *Model, fv pairing.FeatureVector) (pairing.Score, error) {
	if m == nil {
		return pairing.Score{}, ErrClassifierUntrained
	}
	if fv.Insufficient() {
		return pairing.Score{}, nil
	}
	x := fv.Features.Values()
	if len(x) != len(m.weights) {
		return pairing.Score{}, fmt.Errorf("%w: %d features, model expects %d", ErrFeatureMismatch, len(x), len(m.weights))
	}
	return pairing.Scored(m.probability(x)), nil
}

// LabelFor converts a score into a label. Unscored stays unscored; a score
// at or above threshold is accepted.
func LabelFor(s pairing.Score, threshold float64) pairing.Label {
	if !s.Valid {
		return pairing.Unscored
	}
	if s.Value >= threshold {
		return pairing.Accepted
	}
	return pairing.Rejected
}

// Classify scores a pair and returns a new pair value carrying the score and
// label. The input pair is not modified.
func Classify(m *Model, p pairing.TrackPair, threshold float64) (pairing.TrackPair, error) {
	s, err := Predict(m, p.Features)
	if err != nil {
		return p, fmt.Errorf("classify %s: %w", p.ID, err)
	}
	return p.WithScore(s, LabelFor(s, threshold)), nil
}
