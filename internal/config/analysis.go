// Package config loads the analysis parameters shared by every stage of a
// batch run.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/banshee-data/mitosis.report/internal/units"
)

// EnvPrefix is the prefix for environment overrides, e.g. MITOSIS_MIN_OVERLAP.
const EnvPrefix = "MITOSIS_"

//go:embed analysis.defaults.json
var defaultsJSON []byte

// AnalysisConfig is the root configuration for a batch run. Fields are
// pointers so that a partial file only overrides what it names; the Get*
// methods supply defaults for anything left unset.
type AnalysisConfig struct {
	// Ingest
	MinTrackLength *int `json:"min_track_length,omitempty"`

	// Pair features
	MinOverlap          *int     `json:"min_overlap,omitempty"`
	PairGateDistance       *float64 `json:"pair_gate_distance,omitempty"`        // mean separation; 0 disables
	PairMinContactDistance *float64 `json:"pair_min_contact_distance,omitempty"` // closest approach; 0 disables
	CongressionDistance    *float64 `json:"congression_distance,omitempty"`

	// Classifier
	ClassifierThreshold *float64 `json:"classifier_threshold,omitempty"`
	TrainSeed           *int64   `json:"train_seed,omitempty"`
	TrainEpochs         *int     `json:"train_epochs,omitempty"`
	TrainLearningRate   *float64 `json:"train_learning_rate,omitempty"`
	TrainL2             *float64 `json:"train_l2,omitempty"`

	// Curve fit
	FitMinPoints        *int     `json:"fit_min_points,omitempty"`
	FitMinSegmentPoints *int     `json:"fit_min_segment_points,omitempty"`
	FitTimeout          *string  `json:"fit_timeout,omitempty"` // duration string like "2s"
	ConfidenceScale     *float64 `json:"confidence_scale,omitempty"`

	// Reconciliation
	ReconcileTolerance *int    `json:"reconcile_tolerance,omitempty"`
	FrameInterval      *string `json:"frame_interval,omitempty"` // duration string like "30s"

	// Execution
	Workers        *int  `json:"workers,omitempty"`
	ExclusivePairs *bool `json:"exclusive_pairs,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns the embedded defaults with every field set.
func DefaultAnalysisConfig() *AnalysisConfig {
	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(defaultsJSON, cfg); err != nil {
		panic("config: embedded defaults are invalid: " + err.Error())
	}
	return cfg
}

// Load layers configuration sources, lowest precedence first:
//  1. embedded defaults
//  2. the file at path (JSON or YAML), if path is non-empty
//  3. environment variables with EnvPrefix
func Load(path string) (*AnalysisConfig, error) {
	k := koanf.New(".")

	if path != "" {
		cleanPath := filepath.Clean(path)
		ext := strings.ToLower(filepath.Ext(cleanPath))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil, fmt.Errorf("config file must be .json, .yaml or .yml, got %q", ext)
		}
		fileInfo, err := os.Stat(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		const maxFileSize = 1 * 1024 * 1024 // 1MB
		if fileInfo.Size() > maxFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
		}
		// YAML is a superset of JSON, so one parser serves both.
		if err := k.Load(file.Provider(cleanPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := DefaultAnalysisConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.MinTrackLength != nil && *c.MinTrackLength < 1 {
		return fmt.Errorf("min_track_length must be at least 1, got %d", *c.MinTrackLength)
	}
	if c.MinOverlap != nil && *c.MinOverlap < 2 {
		return fmt.Errorf("min_overlap must be at least 2, got %d", *c.MinOverlap)
	}
	if c.PairGateDistance != nil && *c.PairGateDistance < 0 {
		return fmt.Errorf("pair_gate_distance must be non-negative, got %f", *c.PairGateDistance)
	}
	if c.PairMinContactDistance != nil && *c.PairMinContactDistance < 0 {
		return fmt.Errorf("pair_min_contact_distance must be non-negative, got %f", *c.PairMinContactDistance)
	}
	if c.CongressionDistance != nil && *c.CongressionDistance <= 0 {
		return fmt.Errorf("congression_distance must be positive, got %f", *c.CongressionDistance)
	}
	if c.ClassifierThreshold != nil {
		if *c.ClassifierThreshold < 0 || *c.ClassifierThreshold > 1 {
			return fmt.Errorf("classifier_threshold must be between 0 and 1, got %f", *c.ClassifierThreshold)
		}
	}
	if c.TrainEpochs != nil && *c.TrainEpochs < 1 {
		return fmt.Errorf("train_epochs must be positive, got %d", *c.TrainEpochs)
	}
	if c.TrainLearningRate != nil && *c.TrainLearningRate <= 0 {
		return fmt.Errorf("train_learning_rate must be positive, got %f", *c.TrainLearningRate)
	}
	if c.TrainL2 != nil && *c.TrainL2 < 0 {
		return fmt.Errorf("train_l2 must be non-negative, got %f", *c.TrainL2)
	}
	if c.FitMinPoints != nil && *c.FitMinPoints < 1 {
		return fmt.Errorf("fit_min_points must be positive, got %d", *c.FitMinPoints)
	}
	if c.FitMinSegmentPoints != nil && *c.FitMinSegmentPoints < 1 {
		return fmt.Errorf("fit_min_segment_points must be positive, got %d", *c.FitMinSegmentPoints)
	}
	if c.FitTimeout != nil && *c.FitTimeout != "" {
		d, err := time.ParseDuration(*c.FitTimeout)
		if err != nil {
			return fmt.Errorf("invalid fit_timeout '%s': %w", *c.FitTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("fit_timeout must be positive, got %s", d)
		}
	}
	if c.ConfidenceScale != nil && *c.ConfidenceScale <= 0 {
		return fmt.Errorf("confidence_scale must be positive, got %f", *c.ConfidenceScale)
	}
	if c.ReconcileTolerance != nil && *c.ReconcileTolerance < 0 {
		return fmt.Errorf("reconcile_tolerance must be non-negative, got %d", *c.ReconcileTolerance)
	}
	if c.FrameInterval != nil {
		if _, err := units.ParseFrameInterval(*c.FrameInterval); err != nil {
			return fmt.Errorf("frame_interval: %w", err)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetMinTrackLength returns the min_track_length value or the default.
func (c *AnalysisConfig) GetMinTrackLength() int {
	if c.MinTrackLength == nil {
		return 2
	}
	return *c.MinTrackLength
}

// GetMinOverlap returns the min_overlap value or the default.
func (c *AnalysisConfig) GetMinOverlap() int {
	if c.MinOverlap == nil {
		return 3
	}
	return *c.MinOverlap
}

// GetPairGateDistance returns the pair_gate_distance value or the default.
func (c *AnalysisConfig) GetPairGateDistance() float64 {
	if c.PairGateDistance == nil {
		return 11.0
	}
	return *c.PairGateDistance
}

// GetPairMinContactDistance returns the pair_min_contact_distance value or
// the default.
func (c *AnalysisConfig) GetPairMinContactDistance() float64 {
	if c.PairMinContactDistance == nil {
		return 4.0
	}
	return *c.PairMinContactDistance
}

// GetCongressionDistance returns the congression_distance value or the default.
func (c *AnalysisConfig) GetCongressionDistance() float64 {
	if c.CongressionDistance == nil {
		return 4.0
	}
	return *c.CongressionDistance
}

// GetClassifierThreshold returns the classifier_threshold value or the default.
func (c *AnalysisConfig) GetClassifierThreshold() float64 {
	if c.ClassifierThreshold == nil {
		return 0.5
	}
	return *c.ClassifierThreshold
}

// GetTrainSeed returns the train_seed value or the default.
func (c *AnalysisConfig) GetTrainSeed() int64 {
	if c.TrainSeed == nil {
		return 1
	}
	return *c.TrainSeed
}

// GetTrainEpochs returns the train_epochs value or the default.
func (c *AnalysisConfig) GetTrainEpochs() int {
	if c.TrainEpochs == nil {
		return 2000
	}
	return *c.TrainEpochs
}

// GetTrainLearningRate returns the train_learning_rate value or the default.
func (c *AnalysisConfig) GetTrainLearningRate() float64 {
	if c.TrainLearningRate == nil {
		return 0.5
	}
	return *c.TrainLearningRate
}

// GetTrainL2 returns the train_l2 value or the default.
func (c *AnalysisConfig) GetTrainL2() float64 {
	if c.TrainL2 == nil {
		return 0.001
	}
	return *c.TrainL2
}

// GetFitMinPoints returns the fit_min_points value or the default.
func (c *AnalysisConfig) GetFitMinPoints() int {
	if c.FitMinPoints == nil {
		return 5
	}
	return *c.FitMinPoints
}

// GetFitMinSegmentPoints returns the fit_min_segment_points value or the
// default.
func (c *AnalysisConfig) GetFitMinSegmentPoints() int {
	if c.FitMinSegmentPoints == nil {
		return 3
	}
	return *c.FitMinSegmentPoints
}

// GetFitTimeout parses and returns the FitTimeout as a time.Duration.
func (c *AnalysisConfig) GetFitTimeout() time.Duration {
	if c.FitTimeout == nil || *c.FitTimeout == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FitTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetConfidenceScale returns the confidence_scale value or the default.
func (c *AnalysisConfig) GetConfidenceScale() float64 {
	if c.ConfidenceScale == nil {
		return 0.05
	}
	return *c.ConfidenceScale
}

// GetReconcileTolerance returns the reconcile_tolerance value or the default.
func (c *AnalysisConfig) GetReconcileTolerance() int {
	if c.ReconcileTolerance == nil {
		return 2
	}
	return *c.ReconcileTolerance
}

// GetFrameInterval parses and returns the FrameInterval. Zero means unknown.
func (c *AnalysisConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil {
		return 0
	}
	d, err := units.ParseFrameInterval(*c.FrameInterval)
	if err != nil {
		return 0
	}
	return d
}

// GetWorkers returns the worker pool size, resolving 0 to the CPU count.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetExclusivePairs returns the exclusive_pairs value or the default.
func (c *AnalysisConfig) GetExclusivePairs() bool {
	if c.ExclusivePairs == nil {
		return true
	}
	return *c.ExclusivePairs
}
