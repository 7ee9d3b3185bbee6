package tracks

import (
	"errors"
	"sort"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
)

// DefaultMinTrackLength is the minimum number of detections for a track to
// take part in pairing.
const DefaultMinTrackLength = 2

// Record is one row of tracker output: a single detection of one track.
type Record struct {
	MovieID   string
	TrackID   string
	Frame     int
	X         float64
	Y         float64
	Intensity float64
}

// Options controls ingestion.
type Options struct {
	// MinTrackLength flags shorter tracks as TooShort. Zero uses the default.
	MinTrackLength int
	// MovieLength is the acquisition length in frames. Zero infers the
	// window from the observed frames.
	MovieLength int
}

func (o Options) minTrackLength() int {
	if o.MinTrackLength <= 0 {
		return DefaultMinTrackLength
	}
	return o.MinTrackLength
}

// Movie is the ingested set of tracks for one time-lapse acquisition.
type Movie struct {
	ID       string
	Tracks   map[string]*Track
	Rejected map[string]*DataError

	// Acquisition window, inclusive.
	FirstFrame int
	LastFrame  int
}

// Length returns the number of frames in the acquisition window.
func (m *Movie) Length() int {
	if m.LastFrame < m.FirstFrame {
		return 0
	}
	return m.LastFrame - m.FirstFrame + 1
}

// Usable returns the accepted tracks that are long enough for pairing,
// sorted by id so downstream enumeration is deterministic.
func (m *Movie) Usable() []*Track {
	out := make([]*Track, 0, len(m.Tracks))
	for _, t := range m.Tracks {
		if t.TooShort {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TooShortCount returns how many accepted tracks are flagged too-short.
func (m *Movie) TooShortCount() int {
	n := 0
	for _, t := range m.Tracks {
		if t.TooShort {
			n++
		}
	}
	return n
}

// Reject removes a track from the accepted set and records why.
func (m *Movie) Reject(err *DataError) {
	delete(m.Tracks, err.TrackID)
	if _, seen := m.Rejected[err.TrackID]; !seen {
		m.Rejected[err.TrackID] = err
		monitoring.Logf("[ingest] rejected %v", err)
	}
}

// Ingest groups the records of one movie into validated tracks. Records keep
// their input order within a track so that out-of-order frames are detected
// rather than silently sorted.
func Ingest(movieID string, records []Record, opts Options) *Movie {
	m := &Movie{
		ID:         movieID,
		Tracks:     make(map[string]*Track),
		Rejected:   make(map[string]*DataError),
		FirstFrame: 0,
		LastFrame:  -1,
	}

	first := true
	for _, r := range records {
		t, ok := m.Tracks[r.TrackID]
		if !ok {
			t = &Track{ID: r.TrackID, MovieID: movieID}
			m.Tracks[r.TrackID] = t
		}
		t.Detections = append(t.Detections, Detection{Frame: r.Frame, X: r.X, Y: r.Y, Intensity: r.Intensity})

		if r.Frame < 0 {
			continue
		}
		if first || r.Frame < m.FirstFrame {
			m.FirstFrame = r.Frame
		}
		if first || r.Frame > m.LastFrame {
			m.LastFrame = r.Frame
		}
		first = false
	}

	if opts.MovieLength > 0 {
		m.FirstFrame = 0
		m.LastFrame = opts.MovieLength - 1
	}

	minLen := opts.minTrackLength()
	for id, t := range m.Tracks {
		if err := t.validate(); err != nil {
			m.Reject(err)
			continue
		}
		if opts.MovieLength > 0 && t.LastFrame() > m.LastFrame {
			m.Reject(&DataError{MovieID: movieID, TrackID: id, Frame: t.LastFrame(), Reason: "frame beyond movie length"})
			continue
		}
		t.TooShort = t.Len() < minLen
	}
	return m
}

// IngestAll splits records by movie and ingests each one. Invalid carries
// track-scoped errors found while reading (for example an unparseable
// coordinate); those tracks are rejected even if their other rows are valid.
// Movies are returned sorted by id.
func IngestAll(records []Record, invalid []*DataError, opts Options) []*Movie {
	byMovie := make(map[string][]Record)
	order := make([]string, 0)
	for _, r := range records {
		if _, ok := byMovie[r.MovieID]; !ok {
			order = append(order, r.MovieID)
		}
		byMovie[r.MovieID] = append(byMovie[r.MovieID], r)
	}
	for _, e := range invalid {
		if _, ok := byMovie[e.MovieID]; !ok {
			order = append(order, e.MovieID)
			byMovie[e.MovieID] = nil
		}
	}
	sort.Strings(order)

	movies := make([]*Movie, 0, len(order))
	for _, id := range order {
		m := Ingest(id, byMovie[id], opts)
		for _, e := range invalid {
			if e.MovieID == id {
				m.Reject(e)
			}
		}
		movies = append(movies, m)
	}
	return movies
}

// AsDataError reports whether err is (or wraps) a DataError.
func AsDataError(err error) (*DataError, bool) {
	var de *DataError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
