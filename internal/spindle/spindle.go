// Package spindle turns an accepted centrosome pair into the spindle-length
// series of one dividing cell.
package spindle

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/mitosis.report/internal/pairing"
)

// ErrPairNotAccepted is returned when building a series from a pair that is
// not a usable accepted spindle.
var ErrPairNotAccepted = errors.New("pair is not an accepted spindle")

// Point is one spindle-length observation.
type Point struct {
	Frame  int     `json:"frame"`
	Length float64 `json:"length"`
}

// Series is the spindle length of one cell over the frames both centrosomes
// were observed. Frames missing from either track are absent, never
// interpolated.
type Series struct {
	CellID  string  `json:"cell_id"`
	PairID  string  `json:"pair_id"`
	MovieID string  `json:"movie_id"`
	Points  []Point `json:"points"`
}

// Frames returns the frame column.
func (s Series) Frames() []int {
	out := make([]int, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Frame
	}
	return out
}

// Lengths returns the length column.
func (s Series) Lengths() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Length
	}
	return out
}

// Build derives the spindle-length series of an accepted pair.
func Build(p pairing.TrackPair, cellID string) (Series, error) {
	if !p.Usable() {
		return Series{}, fmt.Errorf("%s (%s): %w", p.ID, p.Status(), ErrPairNotAccepted)
	}
	joints := pairing.SharedFrames(p.A, p.B)
	s := Series{CellID: cellID, PairID: p.ID, MovieID: p.MovieID, Points: make([]Point, len(joints))}
	for i, j := range joints {
		s.Points[i] = Point{Frame: j.Frame, Length: j.Distance()}
	}
	return s, nil
}

// Midpoint is the spindle centre in one frame.
type Midpoint struct {
	CellID string
	Frame  int
	X      float64
	Y      float64
}

// Midpoints returns the per-frame spindle centre of a pair, used by the cell
// manifest that locates each cell for manual scoring.
func Midpoints(p pairing.TrackPair, cellID string) []Midpoint {
	joints := pairing.SharedFrames(p.A, p.B)
	out := make([]Midpoint, len(joints))
	for i, j := range joints {
		out[i] = Midpoint{CellID: cellID, Frame: j.Frame, X: (j.A.X + j.B.X) / 2, Y: (j.A.Y + j.B.Y) / 2}
	}
	return out
}

// Cell is an accepted pair with its assigned cell id.
type Cell struct {
	ID   string
	Pair pairing.TrackPair
}

// CellID formats the identifier of the n-th cell of a movie (1-based).
func CellID(n int) string { return fmt.Sprintf("Cell_%d", n) }

// NumberCells assigns cell ids to the usable pairs of one movie in pair-id
// order.
func NumberCells(pairs []pairing.TrackPair) []Cell {
	var usable []pairing.TrackPair
	for _, p := range pairs {
		if p.Usable() {
			usable = append(usable, p)
		}
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })
	cells := make([]Cell, len(usable))
	for i, p := range usable {
		cells[i] = Cell{ID: CellID(i + 1), Pair: p}
	}
	return cells
}
