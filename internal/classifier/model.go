package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/banshee-data/mitosis.report/internal/pairing"
)

// ModelKind identifies the serialised model family.
const ModelKind = "logistic-regression"

var (
	// ErrClassifierUntrained is returned when prediction is requested
	// without a model. It is fatal for a batch.
	ErrClassifierUntrained = errors.New("classifier has not been trained")
	// ErrNoTrainingData is returned when no usable example remains after
	// excluding insufficient feature vectors.
	ErrNoTrainingData = errors.New("no usable training examples")
	// ErrFeatureMismatch is returned when a model was trained on a
	// different feature layout than the current featurizer produces.
	ErrFeatureMismatch = errors.New("model feature layout does not match featurizer")
)

// modelNamespace scopes the name-based model ids.
var modelNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/banshee-data/mitosis.report/model"))

// Model is a trained pair classifier. It is immutable: all fields are
// unexported and accessors return copies, so a model may be shared across
// concurrent predictions.
type Model struct {
	version   int
	id        string
	features  []string
	weights   []float64
	bias      float64
	scaler    Scaler
	trainedOn int
	positives int
}

func newModel(version int, features []string, weights []float64, bias float64, scaler Scaler, trainedOn, positives int) *Model {
	m := &Model{
		version:   version,
		features:  slices.Clone(features),
		weights:   slices.Clone(weights),
		bias:      bias,
		scaler:    Scaler{Mean: slices.Clone(scaler.Mean), StdDev: slices.Clone(scaler.StdDev)},
		trainedOn: trainedOn,
		positives: positives,
	}
	m.id = m.computeID()
	return m
}

// Version returns the model version. Newer models have larger versions.
func (m *Model) Version() int { return m.version }

// ID returns a deterministic identifier derived from the model parameters.
func (m *Model) ID() string { return m.id }

// Features returns the feature names the model was trained on.
func (m *Model) Features() []string { return slices.Clone(m.features) }

// Weights returns a copy of the coefficient vector in scaled feature space.
func (m *Model) Weights() []float64 { return slices.Clone(m.weights) }

// Bias returns the intercept.
func (m *Model) Bias() float64 { return m.bias }

// TrainedOn returns the number of examples used for training and how many
// of them were positive.
func (m *Model) TrainedOn() (examples, positives int) { return m.trainedOn, m.positives }

// WithVersion returns a copy of m carrying a different version.
func (m *Model) WithVersion(version int) *Model {
	return newModel(version, m.features, m.weights, m.bias, m.scaler, m.trainedOn, m.positives)
}

// probability evaluates the logistic function on a raw feature row.
func (m *Model) probability(x []float64) float64 {
	z := m.bias
	for j, v := range m.scaler.Transform(x) {
		z += m.weights[j] * v
	}
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

type modelJSON struct {
	Kind      string    `json:"kind"`
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Scaler    Scaler    `json:"scaler"`
	TrainedOn int       `json:"trained_on"`
	Positives int       `json:"positives"`
}

func (m *Model) toJSON() modelJSON {
	return modelJSON{
		Kind:      ModelKind,
		Version:   m.version,
		ID:        m.id,
		Features:  m.features,
		Weights:   m.weights,
		Bias:      m.bias,
		Scaler:    m.scaler,
		TrainedOn: m.trainedOn,
		Positives: m.positives,
	}
}

func (m *Model) computeID() string {
	params := m.toJSON()
	params.ID = ""
	b, err := json.Marshal(params)
	if err != nil {
		// Only non-finite floats fail to marshal, and training never
		// produces them.
		panic(fmt.Sprintf("classifier: marshal model params: %v", err))
	}
	return uuid.NewSHA1(modelNamespace, b).String()
}

// MarshalJSON implements json.Marshaler.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toJSON())
}

// Save writes the model as indented JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.toJSON()); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a model written by Save and checks it against the current
// feature layout.
func Load(r io.Reader) (*Model, error) {
	var mj modelJSON
	if err := json.NewDecoder(r).Decode(&mj); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return fromJSON(mj)
}

// Unmarshal parses a model from JSON bytes.
func Unmarshal(b []byte) (*Model, error) {
	var mj modelJSON
	if err := json.Unmarshal(b, &mj); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return fromJSON(mj)
}

func fromJSON(mj modelJSON) (*Model, error) {
	if mj.Kind != ModelKind {
		return nil, fmt.Errorf("unsupported model kind %q", mj.Kind)
	}
	if !slices.Equal(mj.Features, pairing.FeatureNames) {
		return nil, fmt.Errorf("%w: model has %v", ErrFeatureMismatch, mj.Features)
	}
	d := len(mj.Features)
	if len(mj.Weights) != d || len(mj.Scaler.Mean) != d || len(mj.Scaler.StdDev) != d {
		return nil, fmt.Errorf("model parameters do not match %d features", d)
	}
	for _, s := range mj.Scaler.StdDev {
		if s == 0 {
			return nil, fmt.Errorf("model scaler has zero deviation")
		}
	}
	m := newModel(mj.Version, mj.Features, mj.Weights, mj.Bias, mj.Scaler, mj.TrainedOn, mj.Positives)
	if mj.ID != "" && mj.ID != m.id {
		return nil, fmt.Errorf("model id %s does not match its parameters (%s)", mj.ID, m.id)
	}
	return m, nil
}
