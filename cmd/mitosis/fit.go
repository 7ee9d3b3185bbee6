package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/units"
)

func newFitCommand(ctx *commandContext) *cobra.Command {
	var (
		seriesPath string
		cellID     string
		asJSON     bool
		unit       string
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the four-phase model to one spindle-length series",
		Long: `Fit reads a frame,length table and prints the fitted NEBD, congression
start and congression end frames with the segment lines and the fit
confidence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !units.IsValid(unit) {
				return fmt.Errorf("invalid --units %q: want one of %s", unit, units.GetValidUnitsString())
			}
			opts, err := ctx.options()
			if err != nil {
				return err
			}
			f, err := os.Open(seriesPath)
			if err != nil {
				return err
			}
			frames, lengths, err := readSeries(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", seriesPath, err)
			}
			if cellID == "" {
				cellID = movieIDFromPath(seriesPath)
			}

			res, fitErr := curvefit.Fit(cmd.Context(), cellID, frames, lengths, opts.Fit)
			if fitErr != nil && !errors.Is(fitErr, curvefit.ErrFitTimeout) {
				return fitErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
				return fitErr
			}
			fmt.Fprintln(out, renderFit(res, !isTerminal(out)))
			if res.HasCandidates {
				frames := res.CongE - res.CongS
				if v, ok := units.ConvertFrames(frames, opts.Reconcile.FrameInterval, unit); ok {
					fmt.Fprintf(out, "Congression lasted %g %s\n", v, unit)
				} else {
					fmt.Fprintf(out, "Congression lasted %d %s (no frame_interval configured)\n", frames, units.Frames)
				}
			}
			return fitErr
		},
	}

	cmd.Flags().StringVar(&seriesPath, "series", "", "Series table (CSV with frame,length)")
	cmd.Flags().StringVar(&cellID, "cell", "", "Cell id to report (defaults to the file name)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the fit result as JSON")
	cmd.Flags().StringVar(&unit, "units", units.Frames, "Units for the congression duration: "+units.GetValidUnitsString())
	_ = cmd.MarkFlagRequired("series")

	return cmd
}

// readSeries reads a frame,length table. Rows must be in frame order.
func readSeries(r io.Reader) ([]int, []float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	frameCol, lengthCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "frame":
			frameCol = i
		case "length", "spindle_length":
			lengthCol = i
		}
	}
	if frameCol < 0 || lengthCol < 0 {
		return nil, nil, fmt.Errorf("series header needs frame and length columns, got %v", header)
	}

	var frames []int
	var lengths []float64
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("read line %d: %w", line, err)
		}
		frame, err := strconv.Atoi(strings.TrimSpace(row[frameCol]))
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid frame %q", line, row[frameCol])
		}
		length, err := strconv.ParseFloat(strings.TrimSpace(row[lengthCol]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid length %q", line, row[lengthCol])
		}
		frames = append(frames, frame)
		lengths = append(lengths, length)
	}
	return frames, lengths, nil
}

func renderFit(res curvefit.Result, plain bool) string {
	tw := table.NewWriter()
	if plain {
		tw.SetStyle(table.StyleDefault)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.SetTitle(fmt.Sprintf("%s (%d points)", res.CellID, res.Points))
	if !res.HasCandidates {
		tw.AppendRow(table.Row{"low confidence", res.Reason})
		return tw.Render()
	}
	tw.AppendHeader(table.Row{"Phase", "From", "To", "Slope", "Intercept"})
	for i, name := range []string{"pre-NEBD", "prometaphase", "metaphase", "anaphase"} {
		seg := res.Segments[i]
		tw.AppendRow(table.Row{name, seg.FromFrame, seg.ToFrame, fmt.Sprintf("%.4f", seg.Slope), fmt.Sprintf("%.3f", seg.Intercept)})
	}
	tw.AppendFooter(table.Row{"events", fmt.Sprintf("NEBD %d", res.NEBD), fmt.Sprintf("CongS %d", res.CongS), fmt.Sprintf("CongE %d", res.CongE),
		fmt.Sprintf("confidence %.3f", res.Confidence)})
	return tw.Render()
}
