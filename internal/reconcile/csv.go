package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RowError reports a score-table row that could not be used.
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Reason) }

type table struct {
	idx  map[string]int
	rows [][]string
	// line numbers of rows, 1-based including the header.
	lines []int
}

func (t *table) get(row []string, col string) string {
	i, ok := t.idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readTable reads a CSV file, matching header names case-insensitively
// against the aliases of each canonical column.
func readTable(r io.Reader, columns map[string][]string, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty table")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{idx: make(map[string]int)}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		for canonical, aliases := range columns {
			if _, done := t.idx[canonical]; done {
				continue
			}
			for _, a := range aliases {
				if strings.EqualFold(h, a) {
					t.idx[canonical] = i
					break
				}
			}
		}
	}
	for _, c := range required {
		if _, ok := t.idx[c]; !ok {
			return nil, fmt.Errorf("table missing required column %q", c)
		}
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// requireCell checks that rows can be tied to a cell.
func (t *table) requireCell() error {
	_, cell := t.idx["cellId"]
	_, pair := t.idx["pairId"]
	if !cell && !pair {
		return fmt.Errorf("table missing required column %q or %q", "cellId", "pairId")
	}
	return nil
}

// rowKey is the identity of a row for duplicate detection.
func rowKey(movieID, cellID, pairID string) string {
	if pairID != "" {
		return "pair:" + pairID
	}
	return "cell:" + movieID + "/" + cellID
}

var scoreColumns = map[string][]string{
	"cellId":  {"cellId", "cell_id", "cell"},
	"movieId": {"movieId", "movie_id", "movie"},
	"pairId":  {"pairId", "pair_id", "pair"},
	"NEBD":    {"NEBD"},
	"CongS":   {"CongS", "cong_s"},
	"CongE":   {"CongE", "cong_e"},
}

// ReadScoresCSV reads human event scores. movieID applies to rows without a
// movieId column value; an empty movieID leaves those rows unbound until
// Binder.Scores ties them to a cell. Rows that cannot be parsed are returned
// as row errors and skipped.
func ReadScoresCSV(r io.Reader, movieID string) ([]EventScore, []*RowError, error) {
	t, err := readTable(r, scoreColumns, "NEBD", "CongS", "CongE")
	if err == nil {
		err = t.requireCell()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scores: %w", err)
	}

	var scores []EventScore
	var rowErrs []*RowError
	seen := make(map[string]int)
	for i, row := range t.rows {
		line := t.lines[i]
		s := EventScore{MovieID: movieID, CellID: t.get(row, "cellId"), PairID: t.get(row, "pairId")}
		if m := t.get(row, "movieId"); m != "" {
			s.MovieID = m
		}
		if s.CellID == "" && s.PairID == "" {
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: "missing cell id"})
			continue
		}
		var bad error
		for _, e := range Events {
			v, err := ParseEventValue(t.get(row, e.String()))
			if err != nil {
				bad = fmt.Errorf("%s: %w", e, err)
				break
			}
			s.Values[e] = v
		}
		if bad != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: bad.Error()})
			continue
		}
		k := rowKey(s.MovieID, s.CellID, s.PairID)
		if prev, dup := seen[k]; dup {
			// A later row is an updated score for the same cell.
			scores[prev] = s
			continue
		}
		seen[k] = len(scores)
		scores = append(scores, s)
	}
	return scores, rowErrs, nil
}

var decisionColumns = map[string][]string{
	"cellId":  {"cellId", "cell_id", "cell"},
	"movieId": {"movieId", "movie_id", "movie"},
	"pairId":  {"pairId", "pair_id", "pair"},
	"event":   {"event"},
	"value":   {"value", "frame"},
}

// ReadDecisionsCSV reads explicit divergence resolutions. movieID is applied
// the same way as in ReadScoresCSV.
func ReadDecisionsCSV(r io.Reader, movieID string) ([]Decision, []*RowError, error) {
	t, err := readTable(r, decisionColumns, "event", "value")
	if err == nil {
		err = t.requireCell()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("decisions: %w", err)
	}

	var out []Decision
	var rowErrs []*RowError
	for i, row := range t.rows {
		line := t.lines[i]
		d := Decision{MovieID: movieID, CellID: t.get(row, "cellId"), PairID: t.get(row, "pairId")}
		if m := t.get(row, "movieId"); m != "" {
			d.MovieID = m
		}
		if d.CellID == "" && d.PairID == "" {
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: "missing cell id"})
			continue
		}
		e, err := ParseEvent(t.get(row, "event"))
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: err.Error()})
			continue
		}
		v, err := ParseEventValue(t.get(row, "value"))
		if err != nil || !v.Present() {
			rowErrs = append(rowErrs, &RowError{Line: line, Reason: fmt.Sprintf("decision for %s needs a value", e)})
			continue
		}
		d.Event, d.Value = e, v
		out = append(out, d)
	}
	return out, rowErrs, nil
}

// IndexScores keys scores by cell.
func IndexScores(scores []EventScore) map[Key]EventScore {
	out := make(map[Key]EventScore, len(scores))
	for _, s := range scores {
		out[s.Key()] = s
	}
	return out
}

// IndexDecisions groups decisions by cell, preserving order.
func IndexDecisions(ds []Decision) map[Key][]Decision {
	out := make(map[Key][]Decision)
	for _, d := range ds {
		out[d.Key()] = append(out[d.Key()], d)
	}
	return out
}
