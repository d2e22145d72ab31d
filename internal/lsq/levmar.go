// Package lsq implements box-bounded nonlinear least squares using the
// Levenberg–Marquardt method. Linear algebra goes through gonum/mat.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Problem describes a least-squares problem. Residuals must write
// NumResiduals values into out for a parameter vector of the length given
// to Solve. Lower and Upper, when non-nil, are elementwise parameter bounds
// (use ±Inf for unconstrained entries).
type Problem struct {
	Residuals    func(p []float64, out []float64)
	NumResiduals int
	Lower, Upper []float64
}

// Settings tunes the solver. The zero value selects defaults.
type Settings struct {
	MaxIterations int     // default 200
	CostTolerance float64 // relative cost decrease below which we stop, default 1e-10
	StepTolerance float64 // step norm below which we stop, default 1e-12
}

// Result holds the solver output.
type Result struct {
	Params     []float64
	Residuals  []float64
	Jacobian   *mat.Dense // forward-difference Jacobian at the optimum
	Cost       float64    // sum of squared residuals
	Iterations int
	Converged  bool
}

// ErrDiverged is returned when no finite-cost step could be taken from the
// starting point.
var ErrDiverged = errors.New("least squares diverged")

func (s *Settings) withDefaults() Settings {
	out := Settings{MaxIterations: 200, CostTolerance: 1e-10, StepTolerance: 1e-12}
	if s == nil {
		return out
	}
	if s.MaxIterations > 0 {
		out.MaxIterations = s.MaxIterations
	}
	if s.CostTolerance > 0 {
		out.CostTolerance = s.CostTolerance
	}
	if s.StepTolerance > 0 {
		out.StepTolerance = s.StepTolerance
	}
	return out
}

// Solve minimises the sum of squared residuals starting from p0, keeping
// the parameters inside the problem bounds by projection. The starting
// point itself is projected into the box first.
func Solve(prob Problem, p0 []float64, settings *Settings) (*Result, error) {
	if prob.Residuals == nil || prob.NumResiduals <= 0 {
		return nil, fmt.Errorf("lsq: problem has no residuals")
	}
	if len(p0) == 0 {
		return nil, fmt.Errorf("lsq: empty parameter vector")
	}
	cfg := settings.withDefaults()

	np := len(p0)
	m := prob.NumResiduals

	p := make([]float64, np)
	copy(p, p0)
	clampVec(p, prob.Lower, prob.Upper)

	r := make([]float64, m)
	prob.Residuals(p, r)
	cost := sumSquares(r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, fmt.Errorf("lsq: %w: non-finite cost at starting point", ErrDiverged)
	}

	jac := mat.NewDense(m, np, nil)
	jtj := mat.NewSymDense(np, nil)
	jtr := make([]float64, np)
	trial := make([]float64, np)
	rTrial := make([]float64, m)

	lambda := 1e-3
	iter := 0
	converged := false

	for ; iter < cfg.MaxIterations; iter++ {
		numJacobian(prob, p, r, jac)

		// Normal equations: (JᵗJ + λ diag(JᵗJ)) δ = -Jᵗr.
		for i := 0; i < np; i++ {
			jtr[i] = 0
			for k := 0; k < m; k++ {
				jtr[i] += jac.At(k, i) * r[k]
			}
			for j := i; j < np; j++ {
				v := 0.0
				for k := 0; k < m; k++ {
					v += jac.At(k, i) * jac.At(k, j)
				}
				jtj.SetSym(i, j, v)
			}
		}

		improved := false
		for attempt := 0; attempt < 12; attempt++ {
			damped := mat.NewDense(np, np, nil)
			for i := 0; i < np; i++ {
				for j := 0; j < np; j++ {
					v := jtj.At(i, j)
					if i == j {
						d := jtj.At(i, i)
						if d == 0 {
							d = 1
						}
						v += lambda * d
					}
					damped.Set(i, j, v)
				}
			}

			var delta mat.VecDense
			rhs := mat.NewVecDense(np, nil)
			for i := 0; i < np; i++ {
				rhs.SetVec(i, -jtr[i])
			}
			if err := delta.SolveVec(damped, rhs); err != nil {
				lambda *= 10
				continue
			}

			for i := 0; i < np; i++ {
				trial[i] = p[i] + delta.AtVec(i)
			}
			clampVec(trial, prob.Lower, prob.Upper)

			prob.Residuals(trial, rTrial)
			trialCost := sumSquares(rTrial)
			if math.IsNaN(trialCost) || trialCost >= cost {
				lambda *= 10
				continue
			}

			stepNorm := 0.0
			for i := 0; i < np; i++ {
				d := trial[i] - p[i]
				stepNorm += d * d
			}
			stepNorm = math.Sqrt(stepNorm)

			relDecrease := (cost - trialCost) / math.Max(cost, 1e-300)
			copy(p, trial)
			copy(r, rTrial)
			cost = trialCost
			lambda = math.Max(lambda/3, 1e-12)
			improved = true

			if relDecrease < cfg.CostTolerance || stepNorm < cfg.StepTolerance {
				converged = true
			}
			break
		}

		if !improved {
			// No acceptable step at any damping: treat as converged at p.
			converged = true
		}
		if converged {
			break
		}
	}

	numJacobian(prob, p, r, jac)
	return &Result{
		Params:     p,
		Residuals:  r,
		Jacobian:   jac,
		Cost:       cost,
		Iterations: iter,
		Converged:  converged,
	}, nil
}

// Covariance returns the Gauss–Newton covariance approximation inv(JᵗJ)
// evaluated at the result. It returns an error when JᵗJ is singular.
func (res *Result) Covariance() (*mat.Dense, error) {
	m, np := res.Jacobian.Dims()
	_ = m
	var jtj mat.Dense
	jtj.Mul(res.Jacobian.T(), res.Jacobian)
	cov := mat.NewDense(np, np, nil)
	if err := cov.Inverse(&jtj); err != nil {
		return nil, fmt.Errorf("lsq: singular JᵗJ: %w", err)
	}
	return cov, nil
}

// numJacobian fills jac with a forward-difference Jacobian at p, reusing the
// residuals r already evaluated there. Near an upper bound the difference
// switches to backward so the probe point stays feasible.
func numJacobian(prob Problem, p, r []float64, jac *mat.Dense) {
	m := prob.NumResiduals
	np := len(p)
	probe := make([]float64, np)
	rp := make([]float64, m)

	for j := 0; j < np; j++ {
		h := math.Sqrt(2.2e-16) * math.Max(math.Abs(p[j]), 1)
		sign := 1.0
		if prob.Upper != nil && p[j]+h > prob.Upper[j] {
			sign = -1
			if prob.Lower != nil && p[j]-h < prob.Lower[j] {
				// Box thinner than the step: fall back to forward.
				sign = 1
			}
		}
		copy(probe, p)
		probe[j] += sign * h

		prob.Residuals(probe, rp)
		for k := 0; k < m; k++ {
			d := (rp[k] - r[k]) / (sign * h)
			if math.IsNaN(d) || math.IsInf(d, 0) {
				d = 0
			}
			jac.Set(k, j, d)
		}
	}
}

func clampVec(p, lower, upper []float64) {
	for i := range p {
		if lower != nil && p[i] < lower[i] {
			p[i] = lower[i]
		}
		if upper != nil && p[i] > upper[i] {
			p[i] = upper[i]
		}
	}
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}
