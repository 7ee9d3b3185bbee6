package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/mitosis.report/internal/fsutil"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
)

// Files names the outputs written by WriteAll.
const (
	CellsFile     = "cells.csv"
	MoviesFile    = "movies.csv"
	ManifestFile  = "manifest.tsv"
	PairsFile     = "pairs.csv"
	DashboardFile = "dashboard.html"
	PlotsDir      = "plots"
)

type output struct {
	name  string
	write func(io.Writer, *pipeline.Result) error
}

// Options selects the optional outputs of WriteAll.
type Options struct {
	Plots     bool
	Dashboard bool
	Assets    string
}

// WriteAll writes every table into dir, plus plots and the dashboard when
// requested.
func WriteAll(dir string, res *pipeline.Result, o Options) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	writers := []output{
		{CellsFile, WriteCells},
		{MoviesFile, WriteMovies},
		{ManifestFile, WriteManifest},
		{PairsFile, WritePairs},
	}
	if o.Dashboard {
		writers = append(writers, output{DashboardFile, func(w io.Writer, r *pipeline.Result) error {
			return WriteDashboard(w, r, DashboardOptions{AssetsHost: o.Assets})
		}})
	}
	for _, w := range writers {
		if err := writeFile(filepath.Join(dir, w.name), res, w.write); err != nil {
			return err
		}
	}
	if o.Plots {
		if _, err := PlotCells(res, filepath.Join(dir, PlotsDir)); err != nil {
			return err
		}
	}
	monitoring.Logf("[report] wrote %d cells to %s", res.Dataset.Cells, dir)
	return nil
}

func writeFile(path string, res *pipeline.Result, write func(io.Writer, *pipeline.Result) error) error {
	err := fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		return write(w, res)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
