package pgp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Correlations this close to ±1 are exact linear relations up to rounding
const perfectCorrelationTolerance = 1e-12

// PearsonR is the linear correlation of predicted against truth. It is NaN
// when either side has zero variance or contains non-finite values. Results
// within perfectCorrelationTolerance of ±1 are reported as exactly ±1.
func PearsonR(truth, predicted []float64) float64 {
	if len(truth) < 2 || len(truth) != len(predicted) {
		return math.NaN()
	}

	r := stat.Correlation(truth, predicted, nil)
	if isFailure(r) {
		return math.NaN()
	}
	if 1-math.Abs(r) <= perfectCorrelationTolerance {
		return math.Copysign(1, r)
	}
	return r
}

// Statistics fills NMSE, MAE and MRE from the program's result buffers.
// MRE skips rows whose true value is zero.
func (p *Program) Statistics() {
	n := len(p.True)
	if n == 0 {
		return
	}

	squared := make([]float64, n)
	absolute := make([]float64, n)
	relative := make([]float64, 0, n)
	for i := range p.True {
		diff := p.True[i] - p.Predicted[i]
		squared[i] = diff * diff
		absolute[i] = math.Abs(diff)
		if p.True[i] != 0 {
			relative = append(relative, absolute[i]/math.Abs(p.True[i]))
		}
	}

	p.MAE = stat.Mean(absolute, nil)

	p.NMSE = math.NaN()
	if variance := stat.Variance(p.True, nil); variance > 0 {
		p.NMSE = stat.Mean(squared, nil) / variance
	}

	p.MRE = math.NaN()
	if len(relative) > 0 {
		p.MRE = stat.Mean(relative, nil)
	}
}
