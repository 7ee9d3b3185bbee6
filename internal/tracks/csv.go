package tracks

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Column aliases accepted in track CSV headers. The TrackMate spot-table
// names are accepted alongside the short names.
var columnAliases = map[string][]string{
	"frame":     {"frame", "FRAME"},
	"trackId":   {"trackId", "track_id", "TRACK_ID"},
	"x":         {"x", "POSITION_X"},
	"y":         {"y", "POSITION_Y"},
	"intensity": {"intensity", "MEAN_INTENSITY", "MAX_INTENSITY"},
	"movieId":   {"movieId", "movie_id", "MOVIE_ID"},
}

// Input is the parsed content of one or more track tables.
type Input struct {
	Records []Record
	// Invalid holds track-scoped errors found while parsing values.
	Invalid []*DataError
	// Rows holds rows that could not be attributed to a track.
	Rows []*RowError
}

// Merge appends another parsed table.
func (in *Input) Merge(other *Input) {
	in.Records = append(in.Records, other.Records...)
	in.Invalid = append(in.Invalid, other.Invalid...)
	in.Rows = append(in.Rows, other.Rows...)
}

// ReadCSV parses a track table. movieID is used for rows without a movieId
// column. A header error or I/O failure is returned as err; problems in
// individual rows are collected in the Input instead.
func ReadCSV(r io.Reader, movieID string) (*Input, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty track table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	in := &Input{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				in.Rows = append(in.Rows, &RowError{Line: line, Reason: pe.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		rec, dataErr, rowErr := parseRow(row, idx, movieID, line)
		switch {
		case rowErr != nil:
			in.Rows = append(in.Rows, rowErr)
		case dataErr != nil:
			in.Invalid = append(in.Invalid, dataErr)
		default:
			in.Records = append(in.Records, rec)
		}
	}
	return in, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		for canonical, aliases := range columnAliases {
			if _, done := idx[canonical]; done {
				continue
			}
			for _, a := range aliases {
				if h == a {
					idx[canonical] = i
					break
				}
			}
		}
	}
	for _, required := range []string{"frame", "trackId", "x", "y"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("track table missing required column %q", required)
		}
	}
	return idx, nil
}

func field(row []string, idx map[string]int, name string) (string, bool) {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func parseRow(row []string, idx map[string]int, movieID string, line int) (Record, *DataError, *RowError) {
	trackID, ok := field(row, idx, "trackId")
	if !ok || trackID == "" {
		return Record{}, nil, &RowError{Line: line, Reason: "missing track id"}
	}
	// TrackMate writes integer ids as floats in some exports.
	if f, err := strconv.ParseFloat(trackID, 64); err == nil && f == math.Trunc(f) {
		trackID = strconv.FormatInt(int64(f), 10)
	}

	rec := Record{MovieID: movieID, TrackID: trackID}
	if m, ok := field(row, idx, "movieId"); ok && m != "" {
		rec.MovieID = m
	}

	bad := func(frame int, reason string) (Record, *DataError, *RowError) {
		return Record{}, &DataError{MovieID: rec.MovieID, TrackID: trackID, Frame: frame,
			Reason: fmt.Sprintf("line %d: %s", line, reason)}, nil
	}

	frameStr, _ := field(row, idx, "frame")
	frameF, err := strconv.ParseFloat(frameStr, 64)
	if err != nil || frameF != math.Trunc(frameF) {
		return bad(-1, fmt.Sprintf("invalid frame %q", frameStr))
	}
	rec.Frame = int(frameF)

	xs, _ := field(row, idx, "x")
	if rec.X, err = strconv.ParseFloat(xs, 64); err != nil {
		return bad(rec.Frame, fmt.Sprintf("invalid x %q", xs))
	}
	ys, _ := field(row, idx, "y")
	if rec.Y, err = strconv.ParseFloat(ys, 64); err != nil {
		return bad(rec.Frame, fmt.Sprintf("invalid y %q", ys))
	}
	if is, ok := field(row, idx, "intensity"); ok && is != "" {
		if rec.Intensity, err = strconv.ParseFloat(is, 64); err != nil {
			return bad(rec.Frame, fmt.Sprintf("invalid intensity %q", is))
		}
	}
	return rec, nil, nil
}
