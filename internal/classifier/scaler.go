package classifier

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler applies per-feature z-score normalisation fitted on training data.
type Scaler struct {
	Mean   []float64 `json:"mean"`
	StdDev []float64 `json:"std_dev"`
}

// FitScaler computes column means and standard deviations. Constant columns
// get a unit deviation so they pass through centred but unscaled.
func FitScaler(rows [][]float64) Scaler {
	if len(rows) == 0 {
		return Scaler{}
	}
	d := len(rows[0])
	s := Scaler{Mean: make([]float64, d), StdDev: make([]float64, d)}
	col := make([]float64, len(rows))
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if len(rows) < 2 || std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.StdDev[j] = std
	}
	return s
}

// Transform returns a scaled copy of x.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.StdDev[j]
	}
	return out
}
