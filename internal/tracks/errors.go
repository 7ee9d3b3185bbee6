package tracks

import "fmt"

// DataError reports a malformed or non-monotonic track. It is scoped to one
// track: the track is excluded and ingestion of the movie continues.
type DataError struct {
	MovieID string
	TrackID string
	Frame   int
	Reason  string
}

func (e *DataError) Error() string {
	if e.MovieID != "" {
		return fmt.Sprintf("movie %s track %s frame %d: %s", e.MovieID, e.TrackID, e.Frame, e.Reason)
	}
	return fmt.Sprintf("track %s frame %d: %s", e.TrackID, e.Frame, e.Reason)
}

// RowError reports a CSV row that could not be attributed to any track.
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
