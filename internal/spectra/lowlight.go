package spectra

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/camera-data/spectrum.report/internal/histogram"
	"github.com/camera-data/spectrum.report/internal/lsq"
)

// Parameter vector layout shared by the low- and high-light models.
const (
	ParamMu = iota
	ParamMuXT
	ParamGain
	ParamBaseline
	ParamSigmaE
	ParamSigma1
	ParamAmplitude
	ParamOffset // unused by the low-light objective, kept for vector compatibility
	NumParams
)

// Warm-start prior layout: the pedestal (dark) fit supplies these four rows.
const (
	PriorBaseline = iota
	PriorGain
	PriorSigmaE
	PriorSigma1
)

// maxPeaks caps the photoelectron comb length. Poisson weights at the cap
// are zero for any physical mu.
const maxPeaks = 500

// LowLight is the multi-photoelectron charge-spectrum model: a
// generalized-Poisson-weighted sum of Gaussians, one per photoelectron
// count, on top of a common baseline.
type LowLight struct{}

func init() {
	histogram.RegisterModel(LowLight{})
	histogram.RegisterModel(HighLight{})
	histogram.RegisterModel(Gauss{})
}

// Name implements histogram.Model.
func (LowLight) Name() string { return "spectra.lowlight" }

// Labels implements histogram.Model.
func (LowLight) Labels() []string {
	return []string{
		"mu [p.e.]", "mu_XT [p.e.]", "Gain [LSB/p.e.]", "Baseline [LSB]",
		"sigma_e [LSB]", "sigma_1 [LSB]", "Amplitude", "Offset [LSB]",
	}
}

// Eval implements histogram.Model. The photoelectron sum runs from
// floor((x[0]-baseline)/gain*0.7), clamped at zero, up to (exclusive)
// ceil((x[last]-baseline)/gain*1.5); the window endpoints bound which
// peaks can contribute.
func (LowLight) Eval(p, x, out []float64) {
	mu, muXT := p[ParamMu], p[ParamMuXT]
	gain, baseline := p[ParamGain], p[ParamBaseline]
	sigmaE, sigma1 := p[ParamSigmaE], p[ParamSigma1]
	amplitude := p[ParamAmplitude]

	if len(x) == 0 {
		return
	}
	if math.IsNaN(gain) || gain <= 0 || math.IsNaN(baseline) {
		for i := range out {
			out[i] = math.NaN()
		}
		return
	}

	nMin := int(math.Floor((x[0] - baseline) / gain * 0.7))
	if nMin < 0 {
		nMin = 0
	}
	nMax := int(math.Ceil((x[len(x)-1] - baseline) / gain * 1.5))
	if nMax > maxPeaks {
		nMax = maxPeaks
	}

	for i, xi := range x {
		xs := xi - baseline
		sum := 0.0
		for n := nMin; n < nMax; n++ {
			sigmaN := math.Sqrt(sigmaE*sigmaE + float64(n)*sigma1*sigma1 + 1.0/12.0)
			sum += generalizedPoisson(n, mu, muXT) * gaussPDF(xs, sigmaN, float64(n)*gain)
		}
		out[i] = sum * amplitude
	}
}

// Guess implements histogram.Model.
//
// Cold start (prior == nil): detect well-separated peaks, take the gain
// from their mean spacing (half the populated range when fewer than two
// peaks stand out), the baseline from the lowest populated bin, mu from
// the pedestal fraction, and the noise terms from a secondary fit of
// per-peak spread against peak index.
//
// Warm start: reuse the prior's gain and noise terms and derive baseline,
// mu and amplitude from the slot's weighted statistics. The baseline is
// clamped so it never exceeds the prior's baseline minus half its gain.
func (LowLight) Guess(y, x []float64, prior [][2]float64) []float64 {
	firstNZ, lastNZ, countNZ := nonzeroRange(y)
	amplitude := sum(y)

	if prior != nil {
		baseline := 0.0
		if countNZ > 2 {
			baseline = x[firstNZ] + 16
			if baseline > prior[PriorBaseline][0] {
				baseline = prior[PriorBaseline][0] - prior[PriorGain][0]/2
			}
		}
		gain := prior[PriorGain][0]
		mu := math.Max(0, (weightedMean(x, y)-baseline)/gain)
		return []float64{mu, 0, gain, baseline, prior[PriorSigmaE][0], prior[PriorSigma1][0], amplitude, 0}
	}

	if countNZ == 0 {
		return nanVector(NumParams)
	}

	peaks := findPeaks(y, 0.3, 3)
	var gain float64
	if len(peaks) < 2 {
		gain = (x[lastNZ] - x[firstNZ]) / 2
	} else {
		spacing := 0.0
		for i := 1; i < len(peaks); i++ {
			spacing += x[peaks[i]] - x[peaks[i-1]]
		}
		gain = spacing / float64(len(peaks)-1)
	}
	baseline := x[firstNZ] + gain/2

	// mu from the fraction of weight inside one gain-wide window around
	// the baseline.
	pedestal := 0.0
	for i := range x {
		if math.Abs(x[i]-baseline) <= gain/2 {
			pedestal += y[i]
		}
	}
	mu := -math.Log(pedestal / amplitude)

	sigmaE, sigma1 := noiseTermsFromPeaks(y, x, peaks, gain)
	return []float64{mu, 0.06, gain, baseline, sigmaE, sigma1, amplitude, 0}
}

// Bounds implements histogram.Model. Cold-start bounds are loose;
// warm-start bounds tighten around the prior estimate.
func (LowLight) Bounds(y, x []float64, prior [][2]float64) (lower, upper []float64) {
	if prior == nil {
		lower = []float64{0, 0, 0, 0, 0, 0, 0, 0}
		upper = []float64{200, 1, inf, inf, inf, inf, inf, inf}
		return lower, upper
	}
	gain, gainErr := prior[PriorGain][0], prior[PriorGain][1]
	baseline := prior[PriorBaseline][0]
	sigmaE := prior[PriorSigmaE][0]
	sigma1 := prior[PriorSigma1][0]
	lower = []float64{0, 0, gain - 5*gainErr, baseline - 2*gain, sigmaE / 2, sigma1 / 2, 0, -inf}
	upper = []float64{inf, 1, gain + 5*gainErr, baseline + 3, sigmaE * 2, sigma1 * 2, inf, inf}
	return lower, upper
}

// Slice implements histogram.Model: the window runs from the first through
// the last nonzero-weight bin.
func (LowLight) Slice(y, x []float64, prior [][2]float64) (start, end, step int) {
	firstNZ, lastNZ, countNZ := nonzeroRange(y)
	if countNZ == 0 {
		return 0, 0, 1
	}
	return firstNZ, lastNZ, 1
}

// noiseTermsFromPeaks measures the spread of each detected peak within a
// gain-wide window and fits sigma(n) = sqrt(sigma_e^2 + n*sigma_1^2) over
// the peak index.
func noiseTermsFromPeaks(y, x []float64, peaks []int, gain float64) (sigmaE, sigma1 float64) {
	if len(peaks) == 0 {
		return gain / 2, gain / 2
	}

	sigma := make([]float64, len(peaks))
	for i, pi := range peaks {
		var xs, ws []float64
		for j := range x {
			if math.Abs(x[j]-x[pi]) <= gain/2 {
				xs = append(xs, x[j])
				ws = append(ws, y[j])
			}
		}
		if sum(ws) <= 0 {
			sigma[i] = gain / 2
			continue
		}
		m := stat.Mean(xs, ws)
		v := 0.0
		for j := range xs {
			v += ws[j] * (xs[j] - m) * (xs[j] - m)
		}
		sigma[i] = math.Sqrt(v / sum(ws))
	}

	prob := lsq.Problem{
		NumResiduals: len(sigma),
		Lower:        []float64{0, 0},
		Upper:        []float64{inf, inf},
		Residuals: func(p []float64, out []float64) {
			for n := range sigma {
				out[n] = sigma[n] - math.Sqrt(p[0]*p[0]+float64(n)*p[1]*p[1])
			}
		},
	}
	res, err := lsq.Solve(prob, []float64{1, 1}, nil)
	if err != nil {
		return gain / 2, gain / 2
	}
	return res.Params[0], res.Params[1]
}

var inf = math.Inf(1)

func nonzeroRange(y []float64) (first, last, count int) {
	first, last = -1, -1
	for i, v := range y {
		if v != 0 {
			if first < 0 {
				first = i
			}
			last = i
			count++
		}
	}
	return first, last, count
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func weightedMean(x, w []float64) float64 {
	return stat.Mean(x, w)
}

func nanVector(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
