package spectra

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// HighLight approximates the charge spectrum at high illumination, where
// the photoelectron peaks merge, by a single Gaussian. It shares the
// 8-parameter vector with LowLight so fit results stay interchangeable:
// the mean is mu*(1+mu_xt)*gain + baseline and the width sigma_e*gain.
type HighLight struct{}

// Name implements histogram.Model.
func (HighLight) Name() string { return "spectra.highlight" }

// Labels implements histogram.Model.
func (HighLight) Labels() []string { return LowLight{}.Labels() }

// Eval implements histogram.Model.
func (HighLight) Eval(p, x, out []float64) {
	mu, muXT := p[ParamMu], p[ParamMuXT]
	gain, baseline := p[ParamGain], p[ParamBaseline]
	sigmaE := p[ParamSigmaE]
	amplitude := p[ParamAmplitude]

	mean := mu*(1+muXT)*gain + baseline
	sigma := sigmaE * gain
	for i, xi := range x {
		out[i] = amplitude * gaussPDF(xi, sigma, mean)
	}
}

// Guess implements histogram.Model. The prior supplies gain and baseline
// from the pedestal fit; mu and the width come from the slot's weighted
// moments, both expressed in gain units.
func (HighLight) Guess(y, x []float64, prior [][2]float64) []float64 {
	p := nanVector(NumParams)
	p[ParamOffset] = 0

	if prior != nil {
		p[ParamMuXT] = 0.08
		p[ParamGain] = prior[PriorGain][0]
		p[ParamBaseline] = prior[PriorBaseline][0]
		p[ParamOffset] = 0
	}

	if sum(y) <= 0 || math.IsNaN(p[ParamGain]) {
		return p
	}
	mean := stat.Mean(x, y)
	v := 0.0
	for i := range x {
		v += y[i] * (x[i] - mean) * (x[i] - mean)
	}
	width := math.Sqrt(v / sum(y))

	p[ParamMu] = (mean - p[ParamBaseline]) / p[ParamGain]
	p[ParamSigmaE] = width / p[ParamGain]
	p[ParamSigma1] = p[ParamSigmaE]
	p[ParamAmplitude] = sum(y)
	return p
}

// Bounds implements histogram.Model.
func (HighLight) Bounds(y, x []float64, prior [][2]float64) (lower, upper []float64) {
	lower = []float64{0, 0, 0, -inf, 0, 0, 0, -inf}
	upper = []float64{inf, 1, inf, inf, inf, inf, inf, inf}
	return lower, upper
}

// Slice implements histogram.Model.
func (HighLight) Slice(y, x []float64, prior [][2]float64) (start, end, step int) {
	firstNZ, lastNZ, countNZ := nonzeroRange(y)
	if countNZ == 0 {
		return 0, 0, 1
	}
	return firstNZ, lastNZ, 1
}
