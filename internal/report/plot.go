package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mitosis.report/internal/fsutil"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
)

var (
	seriesColor  = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	fittedColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	eventColors  = generateColors(len(reconcile.Events))
	plotWidth    = 10 * vg.Inch
	plotHeight   = 5 * vg.Inch
	markerRadius = vg.Points(2)
)

// PlotCell renders the spindle-length series of c with the fitted
// piecewise-linear curve and the final event frames, and saves it as PNG.
func PlotCell(c pipeline.Cell, path string) error {
	if len(c.Series.Points) == 0 {
		return fmt.Errorf("cell %s/%s: empty series", c.MovieID, c.CellID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s (%s)", c.MovieID, c.CellID, c.Pair.ID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Spindle length"

	pts := make(plotter.XYs, len(c.Series.Points))
	minY, maxY := c.Series.Points[0].Length, c.Series.Points[0].Length
	for i, sp := range c.Series.Points {
		pts[i] = plotter.XY{X: float64(sp.Frame), Y: sp.Length}
		minY = min(minY, sp.Length)
		maxY = max(maxY, sp.Length)
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Color = seriesColor
	scatter.GlyphStyle.Radius = markerRadius
	p.Add(scatter)
	p.Legend.Add("length", scatter)

	if c.Fit.HasCandidates {
		fitted := make(plotter.XYs, 0, 2*len(c.Fit.Segments))
		for _, seg := range c.Fit.Segments {
			fitted = append(fitted,
				plotter.XY{X: float64(seg.FromFrame), Y: seg.At(float64(seg.FromFrame))},
				plotter.XY{X: float64(seg.ToFrame), Y: seg.At(float64(seg.ToFrame))},
			)
		}
		line, err := plotter.NewLine(fitted)
		if err != nil {
			return err
		}
		line.Color = fittedColor
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("fit (confidence %.2f)", c.Fit.Confidence), line)
	}

	for i, e := range reconcile.Events {
		v := c.Reconciled.Events[e].Final
		if !v.Concrete() {
			continue
		}
		marker, err := plotter.NewLine(plotter.XYs{
			{X: float64(v.Frame), Y: minY},
			{X: float64(v.Frame), Y: maxY},
		})
		if err != nil {
			return err
		}
		marker.Color = eventColors[i]
		marker.Width = vg.Points(1)
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("%s %d (%s)", e, v.Frame, c.Reconciled.Events[e].Provenance), marker)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	err = fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
	if err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

// PlotCells writes one PNG per cell into dir and returns how many were
// written. Cells without a series are skipped.
func PlotCells(res *pipeline.Result, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create plot dir: %w", err)
	}
	n := 0
	for _, mr := range res.Movies {
		for _, c := range mr.Cells {
			if len(c.Series.Points) == 0 {
				continue
			}
			path := filepath.Join(dir, PlotFileName(c))
			if err := PlotCell(c, path); err != nil {
				return n, err
			}
			n++
		}
	}
	monitoring.Logf("[report] wrote %d fit plots to %s", n, dir)
	return n, nil
}

// PlotFileName names the plot of c after its movie and cell.
func PlotFileName(c pipeline.Cell) string {
	return fsutil.SafeName(c.MovieID, c.CellID) + ".png"
}

// generateColors spreads n hues around the colour wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
