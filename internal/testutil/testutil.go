// Package testutil provides shared test fixtures: assertion helpers and a
// synthetic charge-spectrum generator used by the fit tests.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertWithin fails the test unless got is within rel (relative) of want.
func AssertWithin(t *testing.T, got, want, rel float64, label string) {
	t.Helper()
	if math.IsNaN(got) {
		t.Fatalf("%s = NaN, want %g", label, want)
	}
	denom := math.Abs(want)
	if denom == 0 {
		denom = 1
	}
	if math.Abs(got-want)/denom > rel {
		t.Errorf("%s = %g, want %g within %.0f%%", label, got, want, rel*100)
	}
}

// SyntheticSpectrum evaluates a model curve on the given bin centers and
// rounds to integer counts, producing a deterministic histogram that a fit
// should recover the parameters from.
func SyntheticSpectrum(eval func(p, x, out []float64), params, centers []float64) []float64 {
	out := make([]float64, len(centers))
	eval(params, centers, out)
	for i := range out {
		out[i] = math.Round(out[i])
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return out
}
