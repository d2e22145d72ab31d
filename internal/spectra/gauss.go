package spectra

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Gauss is a generic 1-D Gaussian curve fit with parameters
// [amplitude, mean, sigma]. Used for event-timing distributions and any
// histogram with a single peak.
type Gauss struct{}

// Name implements histogram.Model.
func (Gauss) Name() string { return "spectra.gauss" }

// Labels implements histogram.Model.
func (Gauss) Labels() []string {
	return []string{"Amplitude", "Mean", "Sigma"}
}

// Eval implements histogram.Model.
func (Gauss) Eval(p, x, out []float64) {
	amplitude, mean, sigma := p[0], p[1], p[2]
	for i, xi := range x {
		out[i] = amplitude * gaussPDF(xi, sigma, mean)
	}
}

// Guess implements histogram.Model: weighted moments of the slot.
func (Gauss) Guess(y, x []float64, prior [][2]float64) []float64 {
	total := sum(y)
	if total <= 0 {
		return nanVector(3)
	}
	mean := stat.Mean(x, y)
	v := 0.0
	for i := range x {
		v += y[i] * (x[i] - mean) * (x[i] - mean)
	}
	sigma := math.Sqrt(v / total)
	if sigma == 0 {
		sigma = 1
	}
	return []float64{total, mean, sigma}
}

// Bounds implements histogram.Model.
func (Gauss) Bounds(y, x []float64, prior [][2]float64) (lower, upper []float64) {
	return []float64{0, -inf, 0}, []float64{inf, inf, inf}
}

// Slice implements histogram.Model.
func (Gauss) Slice(y, x []float64, prior [][2]float64) (start, end, step int) {
	firstNZ, lastNZ, countNZ := nonzeroRange(y)
	if countNZ == 0 {
		return 0, 0, 1
	}
	return firstNZ, lastNZ, 1
}
