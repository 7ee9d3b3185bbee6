package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/storage/sqlite"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var (
		trackPaths []string
		labelsPath string
		outPath    string
		dbPath     string
		version    int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the pair classifier from labelled pairs",
		Long: `Train reads one or more track tables and a pairId,label table, builds
the feature vector of every labelled pair and fits the pair classifier.

With --db the model is recorded in the model registry under the next free
version; otherwise --model-version is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.options()
			if err != nil {
				return err
			}
			movies, err := readTracks(trackPaths, opts.Ingest)
			if err != nil {
				return err
			}
			labels, err := readLabels(labelsPath)
			if err != nil {
				return err
			}

			examples, stats := pipeline.BuildTrainingSet(movies, labels, opts.Pairing)
			monitoring.Logf("[train] %d of %d labels usable", stats.Used, stats.Labels)

			var store *sqlite.ModelStore
			if dbPath != "" {
				db, err := sqlite.OpenMigrated(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				store = sqlite.NewModelStore(db.DB)
				if version, err = store.NextVersion(); err != nil {
					return err
				}
			}

			trainOpts := opts.Train
			trainOpts.Version = version
			model, err := classifier.Train(examples, trainOpts)
			if err != nil {
				return err
			}
			if store != nil {
				if err := store.Insert(model); err != nil {
					return err
				}
			}
			if err := writeModel(outPath, model); err != nil {
				return err
			}

			n, pos := model.TrainedOn()
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s (version %d) trained on %d pairs, %d positive\n", model.ID(), model.Version(), n, pos)
			fmt.Fprintf(cmd.OutOrStdout(), "Written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&trackPaths, "tracks", nil, "Track tables (CSV); repeat or comma-separate")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "Pair label table (CSV with pairId,label)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "model.json", "Where to write the trained model")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database for the model registry")
	cmd.Flags().IntVar(&version, "model-version", 1, "Model version when no --db is given")
	_ = cmd.MarkFlagRequired("tracks")
	_ = cmd.MarkFlagRequired("labels")

	return cmd
}
