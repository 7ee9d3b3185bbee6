package pipeline

import (
	"runtime"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/config"
	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

// Options gathers the per-stage parameters of a batch run.
type Options struct {
	Ingest    tracks.Options
	Pairing   pairing.Options
	Threshold float64
	Exclusive bool
	Fit       curvefit.Options
	Reconcile reconcile.Options
	Train     classifier.TrainOptions
	Workers   int
}

// DefaultOptions returns the built-in parameters of every stage.
func DefaultOptions() Options {
	return Options{
		Pairing:   pairing.DefaultOptions(),
		Threshold: classifier.DefaultThreshold,
		Exclusive: true,
		Fit:       curvefit.DefaultOptions(),
		Reconcile: reconcile.DefaultOptions(),
		Train:     classifier.DefaultTrainOptions(),
		Workers:   runtime.NumCPU(),
	}
}

// OptionsFromConfig maps the analysis configuration onto stage options.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		Ingest: tracks.Options{MinTrackLength: cfg.GetMinTrackLength()},
		Pairing: pairing.Options{
			MinOverlap:         cfg.GetMinOverlap(),
			GateDistance:       cfg.GetPairGateDistance(),
			MinContactDistance: cfg.GetPairMinContactDistance(),
			ContactDistance:    cfg.GetCongressionDistance(),
		},
		Threshold: cfg.GetClassifierThreshold(),
		Exclusive: cfg.GetExclusivePairs(),
		Fit: curvefit.Options{
			MinPoints:        cfg.GetFitMinPoints(),
			MinSegmentPoints: cfg.GetFitMinSegmentPoints(),
			Timeout:          cfg.GetFitTimeout(),
			ConfidenceScale:  cfg.GetConfidenceScale(),
		},
		Reconcile: reconcile.Options{
			Tolerance:     cfg.GetReconcileTolerance(),
			FrameInterval: cfg.GetFrameInterval(),
		},
		Train: classifier.TrainOptions{
			Seed:         cfg.GetTrainSeed(),
			Epochs:       cfg.GetTrainEpochs(),
			LearningRate: cfg.GetTrainLearningRate(),
			L2:           cfg.GetTrainL2(),
			Version:      1,
		},
		Workers: cfg.GetWorkers(),
	}
}
