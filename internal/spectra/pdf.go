// Package spectra implements the photo-sensor charge-spectrum fit models:
// the multi-photoelectron low-light model, its high-light Gaussian
// companion, and a generic 1-D Gaussian. All models register themselves
// with the histogram fit-model registry.
package spectra

import "math"

// generalizedPoisson returns P(n; mu, muXT), the generalized Poisson law
// for photoelectron multiplicity with crosstalk probability muXT. At
// muXT=0 it reduces to the ordinary Poisson distribution. Evaluated in log
// space so large n does not overflow.
func generalizedPoisson(n int, mu, muXT float64) float64 {
	if mu <= 0 {
		if n == 0 {
			return 1
		}
		return 0
	}
	shifted := mu + float64(n)*muXT
	if shifted <= 0 {
		return 0
	}
	lg, _ := math.Lgamma(float64(n) + 1)
	logP := math.Log(mu) + float64(n-1)*math.Log(shifted) - shifted - lg
	return math.Exp(logP)
}

// gaussPDF returns the normalised Gaussian density at x for the given
// sigma and mean.
func gaussPDF(x, sigma, mean float64) float64 {
	if sigma <= 0 {
		return math.NaN()
	}
	z := (x - mean) / sigma
	return math.Exp(-0.5*z*z) / (sigma * math.Sqrt(2*math.Pi))
}
