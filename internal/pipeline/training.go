package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// PairLabel is a human verdict on one pair.
type PairLabel struct {
	PairID string
	Label  bool
}

// LabelRowError reports an unusable row of a pair-label table.
type LabelRowError struct {
	Line   int
	Reason string
}

func (e *LabelRowError) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Reason) }

// ReadLabelsCSV reads a pairId,label table. Labels accept true/false, 1/0
// and yes/no.
func ReadLabelsCSV(r io.Reader) ([]PairLabel, []*LabelRowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("labels: empty table")
		}
		return nil, nil, fmt.Errorf("labels: read header: %w", err)
	}
	idCol, labelCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "pairid", "pair_id", "pair":
			idCol = i
		case "label":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, nil, fmt.Errorf("labels: header needs pairId and label columns, got %v", header)
	}

	var out []PairLabel
	var rowErrs []*LabelRowError
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("labels: read line %d: %w", line, err)
		}
		if idCol >= len(row) || labelCol >= len(row) {
			rowErrs = append(rowErrs, &LabelRowError{Line: line, Reason: "short row"})
			continue
		}
		id := strings.TrimSpace(row[idCol])
		if _, _, _, err := pairing.ParsePairID(id); err != nil {
			rowErrs = append(rowErrs, &LabelRowError{Line: line, Reason: err.Error()})
			continue
		}
		v, err := parseLabel(row[labelCol])
		if err != nil {
			rowErrs = append(rowErrs, &LabelRowError{Line: line, Reason: err.Error()})
			continue
		}
		out = append(out, PairLabel{PairID: id, Label: v})
	}
	return out, rowErrs, nil
}

func parseLabel(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid label %q", s)
	}
	return v, nil
}

// TrainingStats counts what happened to the labels.
type TrainingStats struct {
	Labels       int
	Used         int
	Insufficient int
	// Unknown labels name a movie or track that is not among the accepted
	// tracks.
	Unknown []string
}

// BuildTrainingSet featurizes the labelled pairs. Labels whose tracks share
// too few frames are counted and left out, as are labels for unknown or
// rejected tracks. Examples are returned in pair-id order.
func BuildTrainingSet(movies []*tracks.Movie, labels []PairLabel, opts pairing.Options) ([]classifier.Example, TrainingStats) {
	byID := make(map[string]*tracks.Movie, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}

	stats := TrainingStats{Labels: len(labels)}
	var out []classifier.Example
	for _, l := range labels {
		movieID, a, b, err := pairing.ParsePairID(l.PairID)
		if err != nil {
			stats.Unknown = append(stats.Unknown, l.PairID)
			continue
		}
		m, ok := byID[movieID]
		if !ok {
			stats.Unknown = append(stats.Unknown, l.PairID)
			continue
		}
		ta, okA := m.Tracks[a]
		tb, okB := m.Tracks[b]
		if !okA || !okB {
			stats.Unknown = append(stats.Unknown, l.PairID)
			continue
		}
		p := pairing.NewPair(movieID, ta, tb).Featurized(m.Length(), opts)
		if p.Features.Insufficient() {
			stats.Insufficient++
			continue
		}
		out = append(out, classifier.Example{PairID: p.ID, Features: p.Features, Label: l.Label})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PairID < out[j].PairID })
	stats.Used = len(out)

	if len(stats.Unknown) > 0 {
		monitoring.Logf("[train] %d labels reference unknown tracks: %v", len(stats.Unknown), stats.Unknown)
	}
	if stats.Insufficient > 0 {
		monitoring.Logf("[train] %d labelled pairs have insufficient overlap", stats.Insufficient)
	}
	return out, stats
}
