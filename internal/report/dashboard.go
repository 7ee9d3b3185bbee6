package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mitosis.report/internal/aggregate"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
)

// DashboardOptions controls the HTML dashboard. An empty AssetsHost uses the
// go-echarts default CDN.
type DashboardOptions struct {
	Title      string
	AssetsHost string
}

// WriteDashboard renders an HTML page with the score histogram, the
// congression durations of every cell and the per-movie cell outcomes.
func WriteDashboard(w io.Writer, res *pipeline.Result, o DashboardOptions) error {
	if o.Title == "" {
		o.Title = "Mitosis timing"
	}
	initOpts := opts.Initialization{PageTitle: o.Title, Width: "1100px", Height: "480px", AssetsHost: o.AssetsHost}

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.SetPageTitle(o.Title)
	page.AddCharts(
		scoreHistogram(res.Dataset, initOpts),
		durationChart(res, initOpts),
		outcomeChart(res, initOpts),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}

func scoreHistogram(s aggregate.Summary, initOpts opts.Initialization) *charts.Bar {
	labels := make([]string, aggregate.HistogramBins)
	data := make([]opts.BarData, aggregate.HistogramBins)
	for i, n := range s.ScoreHistogram {
		lo := float64(i) / aggregate.HistogramBins
		labels[i] = fmt.Sprintf("%.1f-%.1f", lo, lo+1.0/aggregate.HistogramBins)
		data[i] = opts.BarData{Value: n}
	}

	subtitle := fmt.Sprintf("pairs=%d accepted=%d unscored=%d", s.Pairs, s.Accepted, s.UnscoredPairs)
	if s.ScoreP50 != nil {
		subtitle += fmt.Sprintf(" median=%.3f", *s.ScoreP50)
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Pair scores", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "score", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pairs"}),
	)
	bar.SetXAxis(labels).AddSeries("pairs", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}

func durationChart(res *pipeline.Result, initOpts opts.Initialization) *charts.Bar {
	var labels []string
	var data []opts.BarData
	for _, mr := range res.Movies {
		for _, c := range mr.Cells {
			d := c.Reconciled.Duration
			if !d.Valid {
				continue
			}
			labels = append(labels, c.MovieID+"/"+c.CellID)
			data = append(data, opts.BarData{Value: d.Frames})
		}
	}

	subtitle := fmt.Sprintf("cells with a duration: %d", res.Dataset.Durations)
	if res.Dataset.DurationMean != nil {
		subtitle += fmt.Sprintf(", mean %.1f frames", *res.Dataset.DurationMean)
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Congression duration", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(labels).AddSeries("duration", data)
	return bar
}

func outcomeChart(res *pipeline.Result, initOpts opts.Initialization) *charts.Bar {
	movies := make([]string, len(res.Movies))
	var scored, divergent, insufficient []opts.BarData
	for i, mr := range res.Movies {
		movies[i] = mr.Summary.MovieID
		scored = append(scored, opts.BarData{Value: mr.Summary.Scored})
		divergent = append(divergent, opts.BarData{Value: mr.Summary.Divergent})
		insufficient = append(insufficient, opts.BarData{Value: mr.Summary.Insufficient})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Cells per movie"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
	)
	bar.SetXAxis(movies).
		AddSeries("scored", scored).
		AddSeries("divergent", divergent).
		AddSeries("low confidence", insufficient)
	return bar
}
