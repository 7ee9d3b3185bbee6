package pairing

import (
	"fmt"
	"strings"

	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// Label is the classification outcome of a pair.
type Label int8

const (
	Unscored Label = iota
	Rejected
	Accepted
)

func (l Label) String() string {
	switch l {
	case Accepted:
		return "true"
	case Rejected:
		return "false"
	default:
		return "unscored"
	}
}

// Score is a classifier probability. Valid is false for unscored pairs.
type Score struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Scored returns a valid score.
func Scored(v float64) Score { return Score{Value: v, Valid: true} }

// TrackPair is a candidate spindle: two tracks from the same movie. Values
// are not mutated once classified; WithScore returns a new pair.
type TrackPair struct {
	ID       string
	MovieID  string
	A        *tracks.Track
	B        *tracks.Track
	Features FeatureVector
	Score    Score
	Label    Label

	// Conflict marks an accepted pair that lost exclusive assignment to a
	// higher-scoring pair sharing one of its tracks.
	Conflict bool
}

// NewPair builds a pair with the tracks ordered by id.
func NewPair(movieID string, a, b *tracks.Track) TrackPair {
	if b.ID < a.ID {
		a, b = b, a
	}
	return TrackPair{ID: PairID(movieID, a.ID, b.ID), MovieID: movieID, A: a, B: b}
}

// PairID formats the identifier of a pair. Track ids are ordered so the id
// does not depend on argument order.
func PairID(movieID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return movieID + ":" + a + "+" + b
}

// ParsePairID splits a pair identifier into its parts.
func ParsePairID(id string) (movieID, a, b string, err error) {
	colon := strings.LastIndex(id, ":")
	if colon <= 0 {
		return "", "", "", fmt.Errorf("pair id %q: missing movie id", id)
	}
	movieID = id[:colon]
	a, b, ok := strings.Cut(id[colon+1:], "+")
	if !ok || a == "" || b == "" {
		return "", "", "", fmt.Errorf("pair id %q: expected <movie>:<trackA>+<trackB>", id)
	}
	if b < a {
		a, b = b, a
	}
	return movieID, a, b, nil
}

// Featurized returns a copy of p with its feature vector computed.
func (p TrackPair) Featurized(window int, opts Options) TrackPair {
	p.Features = Featurize(p.A, p.B, window, opts)
	return p
}

// WithScore returns a copy of p carrying score and label. Conflict is reset
// because assignment must be re-run for a new score.
func (p TrackPair) WithScore(score Score, label Label) TrackPair {
	p.Score = score
	p.Label = label
	p.Conflict = false
	return p
}

// Status summarises the pair for reporting.
func (p TrackPair) Status() string {
	if p.Conflict {
		return "conflict"
	}
	return p.Label.String()
}

// Usable reports whether the pair is accepted and survived assignment.
func (p TrackPair) Usable() bool {
	return p.Label == Accepted && !p.Conflict
}
