package tracks

import (
	"fmt"
	"math"
	"sort"
)

// Detection is one tracked centrosome position in one frame.
type Detection struct {
	Frame     int
	X         float64
	Y         float64
	Intensity float64
}

// Track is an ordered centrosome trajectory. Frames are strictly increasing.
type Track struct {
	ID         string
	MovieID    string
	Detections []Detection

	// TooShort marks tracks below the configured minimum length. They are
	// retained for reporting but excluded from pairing.
	TooShort bool
}

// Len returns the number of detections.
func (t *Track) Len() int { return len(t.Detections) }

// FirstFrame returns the first observed frame, or -1 for an empty track.
func (t *Track) FirstFrame() int {
	if len(t.Detections) == 0 {
		return -1
	}
	return t.Detections[0].Frame
}

// LastFrame returns the last observed frame, or -1 for an empty track.
func (t *Track) LastFrame() int {
	if len(t.Detections) == 0 {
		return -1
	}
	return t.Detections[len(t.Detections)-1].Frame
}

// At returns the detection at frame using binary search.
func (t *Track) At(frame int) (Detection, bool) {
	i := sort.Search(len(t.Detections), func(i int) bool {
		return t.Detections[i].Frame >= frame
	})
	if i < len(t.Detections) && t.Detections[i].Frame == frame {
		return t.Detections[i], true
	}
	return Detection{}, false
}

// validate checks frame monotonicity and finite values.
func (t *Track) validate() *DataError {
	for i, d := range t.Detections {
		if math.IsNaN(d.X) || math.IsNaN(d.Y) || math.IsInf(d.X, 0) || math.IsInf(d.Y, 0) {
			return &DataError{MovieID: t.MovieID, TrackID: t.ID, Frame: d.Frame, Reason: "non-finite position"}
		}
		if math.IsNaN(d.Intensity) || math.IsInf(d.Intensity, 0) {
			return &DataError{MovieID: t.MovieID, TrackID: t.ID, Frame: d.Frame, Reason: "non-finite intensity"}
		}
		if d.Frame < 0 {
			return &DataError{MovieID: t.MovieID, TrackID: t.ID, Frame: d.Frame, Reason: "negative frame"}
		}
		if i == 0 {
			continue
		}
		prev := t.Detections[i-1].Frame
		if d.Frame == prev {
			return &DataError{MovieID: t.MovieID, TrackID: t.ID, Frame: d.Frame, Reason: "duplicate frame"}
		}
		if d.Frame < prev {
			return &DataError{MovieID: t.MovieID, TrackID: t.ID, Frame: d.Frame,
				Reason: fmt.Sprintf("frame order violation after frame %d", prev)}
		}
	}
	return nil
}
