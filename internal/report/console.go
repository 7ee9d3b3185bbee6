package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/banshee-data/mitosis.report/internal/aggregate"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
)

// RenderSummary renders the per-movie summaries and the dataset row as a
// table. Plain output uses ASCII borders for logs and pipes.
func RenderSummary(res *pipeline.Result, plain bool) string {
	tw := table.NewWriter()
	if plain {
		tw.SetStyle(table.StyleDefault)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.AppendHeader(table.Row{"Movie", "Cells", "Scored", "Divergent", "Low conf.", "Order", "Accepted", "Conflicts", "Mean cong.", "Median score"})
	for _, mr := range res.Movies {
		tw.AppendRow(summaryTableRow(mr.Summary))
	}
	tw.AppendFooter(summaryTableRow(res.Dataset))

	configs := make([]table.ColumnConfig, 0, 10)
	for i := 2; i <= 10; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func summaryTableRow(s aggregate.Summary) table.Row {
	return table.Row{
		s.MovieID, s.Cells, s.Scored, s.Divergent, s.Insufficient, s.OrderViolations,
		s.Accepted, s.Conflicts, orDash(s.DurationMean, "%.1f"), orDash(s.ScoreP50, "%.3f"),
	}
}

// RenderErrors renders the per-item failures of a batch, or "" when there
// were none.
func RenderErrors(res *pipeline.Result, plain bool) string {
	if len(res.Errors) == 0 {
		return ""
	}
	tw := table.NewWriter()
	if plain {
		tw.SetStyle(table.StyleDefault)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.AppendHeader(table.Row{"Stage", "Movie", "Item", "Error"})
	for _, e := range res.Errors {
		tw.AppendRow(table.Row{e.Stage, e.MovieID, e.ItemID, fmt.Sprint(e.Err)})
	}
	return tw.Render()
}

func orDash(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

