// Package report renders batch results: CSV and TSV tables, PNG fit plots,
// an HTML dashboard and a console summary.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/banshee-data/mitosis.report/internal/aggregate"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
)

// CellHeader is the header of the per-cell table.
var CellHeader = []string{
	"movie_id", "cell_id", "pair_id",
	"nebd", "nebd_provenance", "cong_s", "cong_s_provenance", "cong_e", "cong_e_provenance",
	"divergent",
	"nebd_human", "nebd_fitted", "cong_s_human", "cong_s_fitted", "cong_e_human", "cong_e_fitted",
	"congression_frames", "congression_minutes",
	"score", "fit_confidence", "low_confidence_reason", "order_violation", "error",
}

// MovieHeader is the header of the per-movie table.
var MovieHeader = []string{
	"movie_id", "cells", "scored", "divergent", "insufficient", "order_violations",
	"pairs", "accepted", "unscored_pairs", "gated", "conflicts", "rejected_tracks", "too_short_tracks",
	"durations", "duration_mean", "duration_variance", "duration_mean_minutes",
	"score_p25", "score_p50", "score_p75",
}

// PairHeader is the header of the pair predictions table.
var PairHeader = []string{"pair_id", "movie_id", "track_a", "track_b", "overlap", "score", "label", "status"}

// WriteCells writes one row per cell across all movies.
func WriteCells(w io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CellHeader); err != nil {
		return err
	}
	for _, mr := range res.Movies {
		for _, c := range mr.Cells {
			if err := cw.Write(cellRow(c)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellRow(c pipeline.Cell) []string {
	rec := c.Reconciled
	row := []string{c.MovieID, c.CellID, c.Pair.ID}
	for _, e := range reconcile.Events {
		o := rec.Events[e]
		row = append(row, o.Final.String(), string(o.Provenance))
	}
	row = append(row, strconv.FormatBool(rec.Divergent()))
	for _, e := range reconcile.Events {
		o := rec.Events[e]
		row = append(row, o.Human.String(), o.Fitted.String())
	}

	frames, minutes := "", ""
	if rec.Duration.Valid {
		frames = strconv.Itoa(rec.Duration.Frames)
		if rec.Duration.Timed {
			minutes = formatFloat(rec.Duration.Minutes)
		}
	}
	score := ""
	if c.Pair.Score.Valid {
		score = formatFloat(c.Pair.Score.Value)
	}
	errText := ""
	if c.Err != nil {
		errText = c.Err.Error()
	}
	return append(row,
		frames, minutes,
		score, formatFloat(c.Fit.Confidence), c.Fit.Reason,
		strconv.FormatBool(rec.OrderViolation), errText,
	)
}

// WriteMovies writes one row per movie followed by the dataset row.
func WriteMovies(w io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MovieHeader); err != nil {
		return err
	}
	for _, mr := range res.Movies {
		if err := cw.Write(summaryRow(mr.Summary)); err != nil {
			return err
		}
	}
	if err := cw.Write(summaryRow(res.Dataset)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func summaryRow(s aggregate.Summary) []string {
	return []string{
		s.MovieID,
		strconv.Itoa(s.Cells), strconv.Itoa(s.Scored), strconv.Itoa(s.Divergent),
		strconv.Itoa(s.Insufficient), strconv.Itoa(s.OrderViolations),
		strconv.Itoa(s.Pairs), strconv.Itoa(s.Accepted), strconv.Itoa(s.UnscoredPairs),
		strconv.Itoa(s.Gated), strconv.Itoa(s.Conflicts),
		strconv.Itoa(s.RejectedTracks), strconv.Itoa(s.TooShortTracks),
		strconv.Itoa(s.Durations), formatOptional(s.DurationMean), formatOptional(s.DurationVariance),
		formatOptional(s.DurationMeanMinutes),
		formatOptional(s.ScoreP25), formatOptional(s.ScoreP50), formatOptional(s.ScoreP75),
	}
}

// WriteManifest writes the cell manifest: the spindle midpoint of every
// cell in every frame, tab separated.
func WriteManifest(w io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"movie_id", "cell_id", "frame", "x", "y"}); err != nil {
		return err
	}
	for _, mr := range res.Movies {
		for _, c := range mr.Cells {
			for _, m := range c.Midpoints {
				row := []string{c.MovieID, m.CellID, strconv.Itoa(m.Frame), formatFloat(m.X), formatFloat(m.Y)}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePairs writes the classification of every candidate pair.
func WritePairs(w io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PairHeader); err != nil {
		return err
	}
	for _, mr := range res.Movies {
		for _, p := range mr.Pairs {
			score := ""
			if p.Score.Valid {
				score = formatFloat(p.Score.Value)
			}
			row := []string{p.ID, p.MovieID, p.A.ID, p.B.ID, strconv.Itoa(p.Features.Overlap), score, p.Label.String(), p.Status()}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
