package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAmbiguousCell is returned when a row without a movie id names a cell id
// that exists in more than one movie.
var ErrAmbiguousCell = errors.New("ambiguous cell id")

// CellRef names a produced cell and the track pair behind it.
type CellRef struct {
	MovieID string
	CellID  string
	PairID  string
}

// Binder ties score and decision rows to the cells of a batch. Rows are
// resolved by pair id first, then by movie and cell id. Rows without a movie
// id belong to the only movie of the batch, or to the one movie that has
// their cell id.
type Binder struct {
	movies []string
	byPair map[string]Key
	byCell map[string][]string
}

// NewBinder indexes the batch. movies lists every ingested movie, including
// those that produced no cell.
func NewBinder(movies []string, cells []CellRef) *Binder {
	b := &Binder{
		byPair: make(map[string]Key, len(cells)),
		byCell: make(map[string][]string),
	}
	seen := make(map[string]bool)
	for _, m := range movies {
		if !seen[m] {
			seen[m] = true
			b.movies = append(b.movies, m)
		}
	}
	for _, c := range cells {
		k := Key{MovieID: c.MovieID, CellID: c.CellID}
		if c.PairID != "" {
			b.byPair[c.PairID] = k
		}
		b.byCell[c.CellID] = append(b.byCell[c.CellID], c.MovieID)
	}
	return b
}

// resolve returns the key a row refers to. A row that matches no cell keeps
// whatever identity it carries so it can be reported as unmatched.
func (b *Binder) resolve(movieID, cellID, pairID string) (Key, error) {
	if pairID != "" {
		if k, ok := b.byPair[pairID]; ok {
			if movieID != "" && movieID != k.MovieID {
				return Key{}, fmt.Errorf("pair %s belongs to movie %s, not %s", pairID, k.MovieID, movieID)
			}
			return k, nil
		}
		if cellID == "" {
			return Key{MovieID: movieID, CellID: pairID}, nil
		}
	}
	if movieID != "" {
		return Key{MovieID: movieID, CellID: cellID}, nil
	}
	if len(b.movies) == 1 {
		return Key{MovieID: b.movies[0], CellID: cellID}, nil
	}
	switch owners := b.byCell[cellID]; len(owners) {
	case 0:
		return Key{CellID: cellID}, nil
	case 1:
		return Key{MovieID: owners[0], CellID: cellID}, nil
	default:
		sorted := append([]string(nil), owners...)
		sort.Strings(sorted)
		return Key{}, fmt.Errorf("%w: %s exists in movies %s; add a movieId or pairId column",
			ErrAmbiguousCell, cellID, strings.Join(sorted, ", "))
	}
}

// Scores returns a copy of scores with every row bound to a cell key.
// Rows bound to the same cell keep the later row.
func (b *Binder) Scores(scores []EventScore) ([]EventScore, error) {
	out := make([]EventScore, 0, len(scores))
	at := make(map[Key]int, len(scores))
	for _, s := range scores {
		k, err := b.resolve(s.MovieID, s.CellID, s.PairID)
		if err != nil {
			return nil, fmt.Errorf("score: %w", err)
		}
		s.MovieID, s.CellID = k.MovieID, k.CellID
		if i, dup := at[k]; dup {
			out[i] = s
			continue
		}
		at[k] = len(out)
		out = append(out, s)
	}
	return out, nil
}

// Decisions returns a copy of ds with every row bound to a cell key,
// preserving order.
func (b *Binder) Decisions(ds []Decision) ([]Decision, error) {
	out := make([]Decision, 0, len(ds))
	for _, d := range ds {
		k, err := b.resolve(d.MovieID, d.CellID, d.PairID)
		if err != nil {
			return nil, fmt.Errorf("decision: %w", err)
		}
		d.MovieID, d.CellID = k.MovieID, k.CellID
		out = append(out, d)
	}
	return out, nil
}
