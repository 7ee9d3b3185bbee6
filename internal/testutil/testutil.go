// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic track and spindle-length generators so
// the pairing, fitting and pipeline tests exercise the same shapes.
package testutil

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Profile describes a noiseless four-phase spindle-length curve: a plateau
// until NEBD, a linear drop until congression starts, linear elongation
// during congression and a plateau after it ends.
type Profile struct {
	Frames     int
	NEBD       int
	CongS      int
	CongE      int
	Plateau    float64
	DropSlope  float64
	ElongSlope float64
}

// DefaultProfile returns the reference curve: 80 frames, NEBD at 10,
// congression from 15 to 60 with slope 0.2. Lengths run from 3.2 to 12.2,
// so the pair passes the default distance gates.
func DefaultProfile() Profile {
	return Profile{
		Frames:     80,
		NEBD:       10,
		CongS:      15,
		CongE:      60,
		Plateau:    4,
		DropSlope:  -0.16,
		ElongSlope: 0.2,
	}
}

// Length returns the curve value at frame f.
func (p Profile) Length(f int) float64 {
	atCongS := p.Plateau + p.DropSlope*float64(p.CongS-p.NEBD)
	switch {
	case f <= p.NEBD:
		return p.Plateau
	case f <= p.CongS:
		return p.Plateau + p.DropSlope*float64(f-p.NEBD)
	case f <= p.CongE:
		return atCongS + p.ElongSlope*float64(f-p.CongS)
	default:
		return atCongS + p.ElongSlope*float64(p.CongE-p.CongS)
	}
}

// Series samples the curve at every frame.
func (p Profile) Series() (frames []int, lengths []float64) {
	frames = make([]int, p.Frames)
	lengths = make([]float64, p.Frames)
	for f := 0; f < p.Frames; f++ {
		frames[f] = f
		lengths[f] = p.Length(f)
	}
	return frames, lengths
}

// NoisySeries samples the curve with Gaussian noise of the given standard
// deviation, using a fixed seed.
func (p Profile) NoisySeries(sigma float64, seed int64) (frames []int, lengths []float64) {
	rng := rand.New(rand.NewSource(seed))
	frames, lengths = p.Series()
	for i := range lengths {
		lengths[i] += rng.NormFloat64() * sigma
	}
	return frames, lengths
}

// PairRecords generates two centrosome tracks that split symmetrically around
// a drifting midpoint so that their separation follows p. Both tracks cover
// frames [0, p.Frames). The midpoint moves faster than the separation
// changes, as a migrating cell carries its spindle.
func PairRecords(movieID, trackA, trackB string, p Profile) []tracks.Record {
	return PairRecordsAt(movieID, trackA, trackB, 50, 40, p)
}

// PairRecordsAt is PairRecords with the midpoint starting at (x, y).
func PairRecordsAt(movieID, trackA, trackB string, x, y float64, p Profile) []tracks.Record {
	out := make([]tracks.Record, 0, 2*p.Frames)
	for f := 0; f < p.Frames; f++ {
		cx := x + 1.0*float64(f) + 2*math.Sin(float64(f)/5)
		cy := y + 0.6*float64(f)
		angle := 0.3 + 0.002*float64(f)
		half := p.Length(f) / 2
		dx, dy := half*math.Cos(angle), half*math.Sin(angle)
		out = append(out,
			tracks.Record{MovieID: movieID, TrackID: trackA, Frame: f, X: cx - dx, Y: cy - dy, Intensity: 120},
			tracks.Record{MovieID: movieID, TrackID: trackB, Frame: f, X: cx + dx, Y: cy + dy, Intensity: 118},
		)
	}
	return out
}

// WanderRecords generates a random-walk track starting at (x, y) that covers
// frames [start, start+n).
func WanderRecords(movieID, trackID string, x, y float64, start, n int, seed int64) []tracks.Record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]tracks.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tracks.Record{
			MovieID: movieID, TrackID: trackID, Frame: start + i,
			X: x, Y: y, Intensity: 60 + rng.Float64()*20,
		})
		x += rng.NormFloat64() * 1.5
		y += rng.NormFloat64() * 1.5
	}
	return out
}

// CompanionRecords generates a track that follows lead at offset (dx, dy)
// with Gaussian jitter, as the sister centrosome of a pair would.
func CompanionRecords(lead []tracks.Record, trackID string, dx, dy, jitter float64, seed int64) []tracks.Record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]tracks.Record, len(lead))
	for i, r := range lead {
		r.TrackID = trackID
		r.X += dx + rng.NormFloat64()*jitter
		r.Y += dy + rng.NormFloat64()*jitter
		out[i] = r
	}
	return out
}

// Movie ingests records as a single movie with default options.
func Movie(movieID string, records ...[]tracks.Record) *tracks.Movie {
	var all []tracks.Record
	for _, r := range records {
		all = append(all, r...)
	}
	return tracks.Ingest(movieID, all, tracks.Options{})
}
