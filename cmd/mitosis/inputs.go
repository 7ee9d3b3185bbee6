package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// movieIDFromPath names a movie after its file when the track table carries
// no movieId column. Score and decision tables are bound to cells instead.
func movieIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readTracks(paths []string, opts tracks.Options) ([]*tracks.Movie, error) {
	all := &tracks.Input{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		in, err := tracks.ReadCSV(f, movieIDFromPath(path))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, re := range in.Rows {
			monitoring.Logf("[ingest] %s: %v", path, re)
		}
		all.Merge(in)
	}
	movies := tracks.IngestAll(all.Records, all.Invalid, opts)
	if len(movies) == 0 {
		return nil, fmt.Errorf("no tracks in %s", strings.Join(paths, ", "))
	}
	return movies, nil
}

func readScores(paths []string) ([]reconcile.EventScore, error) {
	var out []reconcile.EventScore
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		scores, rowErrs, err := reconcile.ReadScoresCSV(f, "")
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, re := range rowErrs {
			monitoring.Logf("[reconcile] %s: %v", path, re)
		}
		out = append(out, scores...)
	}
	return out, nil
}

func readDecisions(paths []string) ([]reconcile.Decision, error) {
	var out []reconcile.Decision
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		ds, rowErrs, err := reconcile.ReadDecisionsCSV(f, "")
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, re := range rowErrs {
			monitoring.Logf("[reconcile] %s: %v", path, re)
		}
		out = append(out, ds...)
	}
	return out, nil
}

func readLabels(path string) ([]pipeline.PairLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	labels, rowErrs, err := pipeline.ReadLabelsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, re := range rowErrs {
		monitoring.Logf("[train] %s: %v", path, re)
	}
	return labels, nil
}

func readModel(path string) (*classifier.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := classifier.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func writeModel(path string, m *classifier.Model) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
