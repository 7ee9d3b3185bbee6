package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/metrics"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/report"
	"github.com/banshee-data/mitosis.report/internal/storage/sqlite"
)

const lockFile = ".mitosis.lock"

type runFlags struct {
	tracks      []string
	scores      []string
	decisions   []string
	modelPath   string
	outDir      string
	dbPath      string
	plots       bool
	dashboard   bool
	assetsHost  string
	metricsFile string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch: pair, fit, reconcile and summarise",
		Long: `Run classifies the candidate pairs of every movie, fits the spindle
length of every accepted pair, reconciles the fitted events with human
scores and writes per-cell and per-movie tables to --out.

The model is read from --model, or the latest registered model in --db.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, f)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&f.tracks, "tracks", nil, "Track tables (CSV); repeat or comma-separate")
	flags.StringSliceVar(&f.scores, "scores", nil, "Human event score tables (CSV)")
	flags.StringSliceVar(&f.decisions, "decisions", nil, "Divergence decision tables (CSV)")
	flags.StringVarP(&f.modelPath, "model", "m", "", "Trained model file")
	flags.StringVarP(&f.outDir, "out", "o", "", "Output directory")
	flags.StringVar(&f.dbPath, "db", "", "SQLite database for the model registry and run history")
	flags.BoolVar(&f.plots, "plots", false, "Write one fit plot per cell")
	flags.BoolVar(&f.dashboard, "dashboard", false, "Write an HTML dashboard")
	flags.StringVar(&f.assetsHost, "assets-host", "", "Host serving the dashboard's JavaScript assets")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	_ = cmd.MarkFlagRequired("tracks")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runBatch(cmd *cobra.Command, ctx *commandContext, f runFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	opts := pipeline.OptionsFromConfig(cfg)

	if err := os.MkdirAll(f.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(f.outDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.outDir, err)
	}
	if !locked {
		return fmt.Errorf("another run is writing to %s", f.outDir)
	}
	defer lock.Unlock()

	var db *sqlite.DB
	if f.dbPath != "" {
		if db, err = sqlite.OpenMigrated(f.dbPath); err != nil {
			return err
		}
		defer db.Close()
	}

	model, err := loadModel(f.modelPath, db)
	if err != nil {
		return err
	}
	movies, err := readTracks(f.tracks, opts.Ingest)
	if err != nil {
		return err
	}
	scores, err := readScores(f.scores)
	if err != nil {
		return err
	}
	decisions, err := readDecisions(f.decisions)
	if err != nil {
		return err
	}

	mm := metrics.NewManager()
	res, err := pipeline.NewRunner(opts, mm).Run(cmd.Context(), movies, model, scores, decisions)
	if err != nil {
		return err
	}

	if err := report.WriteAll(f.outDir, res, report.Options{Plots: f.plots, Dashboard: f.dashboard, Assets: f.assetsHost}); err != nil {
		return err
	}
	if db != nil {
		params, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal parameters: %w", err)
		}
		run, err := sqlite.NewRunStore(db.DB).Save(res, params)
		if err != nil {
			return err
		}
		monitoring.Logf("[run] stored run %s", run.RunID)
	}
	if f.metricsFile != "" {
		if err := mm.WriteToTextfile(f.metricsFile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	plain := !isTerminal(out)
	fmt.Fprintln(out, report.RenderSummary(res, plain))
	if errs := report.RenderErrors(res, plain); errs != "" {
		fmt.Fprintln(out, errs)
	}
	for _, k := range res.UnmatchedScores {
		fmt.Fprintf(out, "No cell for score %s\n", k)
	}
	return nil
}

// loadModel prefers an explicit model file and falls back to the latest
// registered model. A nil model with a nil error means none is available.
func loadModel(path string, db *sqlite.DB) (*classifier.Model, error) {
	if path != "" {
		return readModel(path)
	}
	if db == nil {
		return nil, nil
	}
	rec, err := sqlite.NewModelStore(db.DB).Latest()
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[run] using registered model version %d", rec.Version)
	return rec.Model, nil
}
