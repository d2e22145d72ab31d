package histogram

import (
	"fmt"
	"log"
	"math"

	"github.com/camera-data/spectrum.report/internal/lsq"
)

// Model is a fit strategy plugged into the Engine: the objective function
// plus the companion initial-guess, bounds, slice and label providers.
//
// Guess, Bounds and Slice receive the slot's bin contents y, the shared bin
// centers x, and the slot's prior fit parameters (nil on a cold start).
// Guess may return vectors of different lengths for different slots; the
// engine reconciles the widths. Slice returns a (start, end, step) window
// over the bin axis; an empty window marks the slot as unfittable.
type Model interface {
	// Name identifies the model in persisted archives and the registry.
	Name() string
	// Eval evaluates the objective over the bin centers x, writing one
	// value per center into out. Models may depend on the window as a
	// whole (for example to bound a peak sum by its endpoints).
	Eval(p, x, out []float64)
	Guess(y, x []float64, prior [][2]float64) []float64
	Bounds(y, x []float64, prior [][2]float64) (lower, upper []float64)
	Slice(y, x []float64, prior [][2]float64) (start, end, step int)
	Labels() []string
}

// FixedParam pins one model parameter during fitting. The parameter is
// removed from the optimiser's vector, substituted into the objective at
// call time, and re-inserted into the result with zero uncertainty.
type FixedParam struct {
	Index     int
	Value     float64
	FromPrior int // when >= 0, take the value from prior[FromPrior][0] per slot
}

// FixValue pins parameter i to a constant.
func FixValue(i int, v float64) FixedParam {
	return FixedParam{Index: i, Value: v, FromPrior: -1}
}

// FixFromPrior pins parameter i to the slot's prior fit value at priorIndex.
func FixFromPrior(i, priorIndex int) FixedParam {
	return FixedParam{Index: i, FromPrior: priorIndex}
}

// FitOptions configures one Engine.Fit run.
type FitOptions struct {
	// Prior supplies per-slot parameters from a previous fit, indexed by
	// flat slot offset. nil means cold start everywhere.
	Prior [][][2]float64
	// Fixed pins parameters across every slot.
	Fixed []FixedParam
	// Slots restricts the fit to the given slot indices. nil fits all
	// slots in row-major order.
	Slots [][]int
	// Progress, when set, is called after every slot with the number of
	// slots processed so far and the total.
	Progress func(done, total int)
}

// Engine runs an independently configured least-squares fit on every slot
// of a Store. One pathological slot never aborts a run: failures are
// recorded as NaN and the loop continues.
type Engine struct {
	// Solver settings applied to every slot. nil selects lsq defaults.
	Settings *lsq.Settings
}

// Fit fits model to every selected slot of store and writes the results
// into store's fit fields. Construction-time errors (bad slot indices,
// mismatched prior length) surface to the caller; per-slot fit errors do
// not.
func (e *Engine) Fit(store *Store, model Model, opts *FitOptions) error {
	if opts == nil {
		opts = &FitOptions{}
	}
	if opts.Prior != nil && len(opts.Prior) != store.NumSlots() {
		return fmt.Errorf("%w: prior has %d slots, store has %d", ErrConfig, len(opts.Prior), store.NumSlots())
	}

	offsets, err := resolveSlots(store, opts.Slots)
	if err != nil {
		return err
	}

	store.FitModel = model.Name()
	store.FitLabels = model.Labels()
	store.FitAxis = append([]float64(nil), store.Axis.Centers()...)
	if store.FitChi2NDOF == nil {
		store.FitChi2NDOF = nanSlice(store.NumSlots() * 2)
	}

	x := store.Axis.Centers()
	done := 0
	for _, off := range offsets {
		var prior [][2]float64
		if opts.Prior != nil {
			prior = opts.Prior[off]
		}

		result, chi2, ndof := e.fitSlot(store, model, off, prior, opts.Fixed, x)

		if store.FitResult == nil {
			store.NumParams = len(result)
			store.FitResult = nanSlice(store.NumSlots() * store.NumParams * 2)
		}
		result = store.reconcileParams(result)
		base := off * store.NumParams * 2
		for p := range result {
			store.FitResult[base+2*p] = result[p][0]
			store.FitResult[base+2*p+1] = result[p][1]
		}
		store.FitChi2NDOF[2*off] = chi2
		store.FitChi2NDOF[2*off+1] = ndof

		done++
		if opts.Progress != nil {
			opts.Progress(done, len(offsets))
		}
	}
	return nil
}

// fitSlot runs one slot's guess/slice/bounds/solve cycle. It never returns
// an error: every failure mode yields NaN parameter rows.
func (e *Engine) fitSlot(store *Store, model Model, off int, prior [][2]float64, fixed []FixedParam, x []float64) (result [][2]float64, chi2, ndof float64) {
	y := store.SlotData(off)
	yerr := store.SlotErrors(off)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FitEngine] slot %v: model panicked: %v", store.SlotIndex(off), r)
			result = nanResult(len(model.Labels()))
			chi2, ndof = math.NaN(), math.NaN()
		}
	}()

	p0 := model.Guess(y, x, prior)
	lower, upper := model.Bounds(y, x, prior)
	start, end, step := model.Slice(y, x, prior)

	// Resolve fixed parameters for this slot.
	fixedIdx := make(map[int]float64, len(fixed))
	for _, f := range fixed {
		v := f.Value
		if f.FromPrior >= 0 {
			if f.FromPrior >= len(prior) {
				log.Printf("[FitEngine] slot %v: fixed param %d references missing prior %d", store.SlotIndex(off), f.Index, f.FromPrior)
				return nanResult(len(p0)), math.NaN(), math.NaN()
			}
			v = prior[f.FromPrior][0]
		}
		fixedIdx[f.Index] = v
	}

	redP0, redLower, redUpper := reduceParams(p0, lower, upper, fixedIdx)

	if step <= 0 {
		step = 1
	}
	winLen := 0
	if end > start {
		winLen = (end - start + step - 1) / step
	}
	ndof = float64(end-start)/float64(step) - float64(len(redP0))

	if winLen == 0 || hasNaN(p0) || hasNaN(redLower) || hasNaN(redUpper) {
		log.Printf("[FitEngine] slot %v: degenerate input, marking failed", store.SlotIndex(off))
		return insertFixed(nanResult(len(redP0)), p0, fixedIdx), math.NaN(), ndof
	}

	xs := make([]float64, 0, winLen)
	ys := make([]float64, 0, winLen)
	es := make([]float64, 0, winLen)
	for i := start; i < end; i += step {
		xs = append(xs, x[i])
		ys = append(ys, y[i])
		es = append(es, yerr[i])
	}

	modelOut := make([]float64, winLen)
	prob := lsq.Problem{
		NumResiduals: winLen,
		Lower:        redLower,
		Upper:        redUpper,
		Residuals: func(p []float64, out []float64) {
			model.Eval(expandParams(p, p0, fixedIdx), xs, modelOut)
			for i := range xs {
				out[i] = (ys[i] - modelOut[i]) / es[i]
			}
		},
	}

	out, err := lsq.Solve(prob, redP0, e.Settings)
	if err != nil {
		log.Printf("[FitEngine] slot %v: fit failed: %v", store.SlotIndex(off), err)
		return insertFixed(nanResult(len(redP0)), p0, fixedIdx), math.NaN(), ndof
	}

	chi2 = out.Cost
	reduced := make([][2]float64, len(out.Params))
	cov, covErr := out.Covariance()
	for i, v := range out.Params {
		reduced[i][0] = v
		if covErr != nil {
			reduced[i][1] = math.NaN()
		} else {
			reduced[i][1] = math.Sqrt(cov.At(i, i))
		}
	}
	if covErr != nil {
		log.Printf("[FitEngine] slot %v: could not compute parameter errors: %v", store.SlotIndex(off), covErr)
	}

	return insertFixed(reduced, p0, fixedIdx), chi2, ndof
}

// reconcileParams pads result or the store's shared result array so both
// agree on the parameter count. The shared array stays rectangular; new
// columns are zero-filled.
func (s *Store) reconcileParams(result [][2]float64) [][2]float64 {
	if len(result) > s.NumParams {
		grown := make([]float64, s.NumSlots()*len(result)*2)
		for slot := 0; slot < s.NumSlots(); slot++ {
			copy(grown[slot*len(result)*2:], s.FitResult[slot*s.NumParams*2:(slot+1)*s.NumParams*2])
		}
		s.FitResult = grown
		s.NumParams = len(result)
	}
	for len(result) < s.NumParams {
		result = append(result, [2]float64{0, 0})
	}
	return result
}

func resolveSlots(store *Store, slots [][]int) ([]int, error) {
	if slots == nil {
		offsets := make([]int, store.NumSlots())
		for i := range offsets {
			offsets[i] = i
		}
		return offsets, nil
	}
	offsets := make([]int, 0, len(slots))
	for _, s := range slots {
		off, err := store.SlotOffset(s)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, off)
	}
	return offsets, nil
}

// reduceParams strips fixed parameters from the vector handed to the
// optimiser.
func reduceParams(p0, lower, upper []float64, fixed map[int]float64) (rp, rl, ru []float64) {
	rp = make([]float64, 0, len(p0))
	rl = make([]float64, 0, len(p0))
	ru = make([]float64, 0, len(p0))
	for i := range p0 {
		if _, ok := fixed[i]; ok {
			continue
		}
		rp = append(rp, p0[i])
		if lower != nil {
			rl = append(rl, lower[i])
		}
		if upper != nil {
			ru = append(ru, upper[i])
		}
	}
	if lower == nil {
		rl = nil
	}
	if upper == nil {
		ru = nil
	}
	return rp, rl, ru
}

// expandParams rebuilds the full parameter vector from the reduced one,
// substituting fixed values at their original indices.
func expandParams(reduced, template []float64, fixed map[int]float64) []float64 {
	full := make([]float64, len(template))
	j := 0
	for i := range template {
		if v, ok := fixed[i]; ok {
			full[i] = v
			continue
		}
		full[i] = reduced[j]
		j++
	}
	return full
}

// insertFixed re-inserts fixed parameters into a reduced result with zero
// uncertainty at their original indices.
func insertFixed(reduced [][2]float64, template []float64, fixed map[int]float64) [][2]float64 {
	if len(fixed) == 0 {
		return reduced
	}
	full := make([][2]float64, 0, len(template))
	j := 0
	for i := range template {
		if v, ok := fixed[i]; ok {
			full = append(full, [2]float64{v, 0})
			continue
		}
		full = append(full, reduced[j])
		j++
	}
	return full
}

func nanResult(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{math.NaN(), math.NaN()}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
