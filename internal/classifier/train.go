package classifier

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pairing"
)

// Example is one labelled pair used for training.
type Example struct {
	PairID   string
	Features pairing.FeatureVector
	Label    bool
}

// TrainOptions controls logistic-regression training.
type TrainOptions struct {
	Seed         int64
	Epochs       int
	LearningRate float64
	L2           float64
	Version      int
}

// DefaultTrainOptions returns the built-in training parameters.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Seed:         1,
		Epochs:       2000,
		LearningRate: 0.5,
		L2:           0.001,
		Version:      1,
	}
}

// Train fits a logistic-regression classifier on the examples. Examples
// with insufficient feature vectors are excluded. The result depends only
// on the examples and options.
func Train(examples []Example, opts TrainOptions) (*Model, error) {
	var rows [][]float64
	var labels []float64
	positives := 0
	for _, ex := range examples {
		if ex.Features.Insufficient() {
			continue
		}
		rows = append(rows, ex.Features.Features.Values())
		if ex.Label {
			labels = append(labels, 1)
			positives++
		} else {
			labels = append(labels, 0)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoTrainingData
	}
	if excluded := len(examples) - len(rows); excluded > 0 {
		monitoring.Logf("[classifier] excluded %d examples with insufficient overlap", excluded)
	}
	if positives == 0 || positives == len(rows) {
		monitoring.Logf("[classifier] training set has a single class (%d of %d positive)", positives, len(rows))
	}
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", opts.LearningRate)
	}

	scaler := FitScaler(rows)
	n, d := len(rows), len(pairing.FeatureNames)
	x := mat.NewDense(n, d, nil)
	for i, r := range rows {
		x.SetRow(i, scaler.Transform(r))
	}
	y := mat.NewVecDense(n, labels)

	rng := rand.New(rand.NewSource(opts.Seed))
	w := mat.NewVecDense(d, nil)
	for j := 0; j < d; j++ {
		w.SetVec(j, rng.NormFloat64()*0.01)
	}
	bias := 0.0

	z := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		z.MulVec(x, w)
		var biasGrad float64
		for i := 0; i < n; i++ {
			r := sigmoid(z.AtVec(i)+bias) - y.AtVec(i)
			resid.SetVec(i, r)
			biasGrad += r
		}
		grad.MulVec(x.T(), resid)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, opts.L2, w)

		w.AddScaledVec(w, -opts.LearningRate, grad)
		bias -= opts.LearningRate * biasGrad / float64(n)
	}

	version := opts.Version
	if version <= 0 {
		version = 1
	}
	m := newModel(version, pairing.FeatureNames, w.RawVector().Data, bias, scaler, n, positives)
	monitoring.Logf("[classifier] trained model v%d (%s) on %d examples, %d positive", m.Version(), m.ID(), n, positives)
	return m, nil
}
