// Package histogram implements a multi-dimensional histogram store with a
// shared bin axis and a per-slot nonlinear least-squares fit engine.
//
// A Store holds one histogram per "slot" (for example one per camera pixel
// per scan level). All slots share a single Axis; slot contents live in flat
// row-major arrays indexed by SlotOffset, following the flat-grid layout
// used elsewhere in this codebase.
package histogram

import (
	"fmt"
	"math"
)

// Store is an N-dimensional array of histograms sharing one Axis.
//
// Data, Underflow and Overflow are mutated only through the Fill methods.
// Errors is a derived quantity recomputed by ComputeErrors; callers never
// set it directly.
type Store struct {
	Axis      *Axis
	SlotShape []int

	// Data holds bin counts, flat row-major: slot-major, bin-minor.
	// len = NumSlots() * Axis.NumBins().
	Data []float64
	// Underflow and Overflow count batch samples outside the axis range,
	// one counter per slot. Only FillBatch maintains them; Fill clamps
	// out-of-range samples into the edge bins instead.
	Underflow []float64
	Overflow  []float64
	// Errors holds the per-bin Poisson errors, same layout as Data.
	Errors []float64

	// Fit results, populated by Engine.Fit. FitResult is flat row-major
	// with NumParams (value, error) pairs per slot. NaN marks a slot or
	// parameter whose fit was not attempted or failed.
	FitResult   []float64
	NumParams   int
	FitChi2NDOF []float64 // 2 per slot: chi-square, degrees of freedom
	FitLabels   []string
	FitModel    string    // registry name of the fitted model, "" if never fitted
	FitAxis     []float64 // bin centers the last fit ran against

	XLabel string
	YLabel string
	Label  string
}

// NewStore creates an all-zero store with one histogram per slot position.
func NewStore(slotShape []int, axis *Axis) (*Store, error) {
	if axis == nil {
		return nil, fmt.Errorf("%w: nil axis", ErrConfig)
	}
	n := 1
	for _, d := range slotShape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: slot shape %v has non-positive dimension", ErrConfig, slotShape)
		}
		n *= d
	}
	shape := make([]int, len(slotShape))
	copy(shape, slotShape)

	return &Store{
		Axis:      axis,
		SlotShape: shape,
		Data:      make([]float64, n*axis.NumBins()),
		Underflow: make([]float64, n),
		Overflow:  make([]float64, n),
		Errors:    make([]float64, n*axis.NumBins()),
		XLabel:    "x",
		YLabel:    "y",
		Label:     "hist",
	}, nil
}

// NumSlots returns the number of independent histograms in the store.
func (s *Store) NumSlots() int {
	n := 1
	for _, d := range s.SlotShape {
		n *= d
	}
	return n
}

// NumBins returns the number of bins on the shared axis.
func (s *Store) NumBins() int { return s.Axis.NumBins() }

// SlotOffset converts a multi-dimensional slot index to its flat row-major
// offset.
func (s *Store) SlotOffset(slot []int) (int, error) {
	if len(slot) != len(s.SlotShape) {
		return 0, fmt.Errorf("%w: slot index %v does not match shape %v", ErrConfig, slot, s.SlotShape)
	}
	off := 0
	for i, idx := range slot {
		if idx < 0 || idx >= s.SlotShape[i] {
			return 0, fmt.Errorf("%w: slot index %v out of range for shape %v", ErrConfig, slot, s.SlotShape)
		}
		off = off*s.SlotShape[i] + idx
	}
	return off, nil
}

// SlotIndex converts a flat slot offset back to its multi-dimensional index.
func (s *Store) SlotIndex(offset int) []int {
	idx := make([]int, len(s.SlotShape))
	for i := len(s.SlotShape) - 1; i >= 0; i-- {
		idx[i] = offset % s.SlotShape[i]
		offset /= s.SlotShape[i]
	}
	return idx
}

// SlotData returns the bin contents of one slot as a view into Data.
func (s *Store) SlotData(offset int) []float64 {
	n := s.NumBins()
	return s.Data[offset*n : (offset+1)*n]
}

// SlotErrors returns the bin errors of one slot as a view into Errors.
func (s *Store) SlotErrors(offset int) []float64 {
	n := s.NumBins()
	return s.Errors[offset*n : (offset+1)*n]
}

// prefixOffset resolves a (possibly partial) slot index prefix to the flat
// offset of its first slot and the number of consecutive slots it spans.
func (s *Store) prefixOffset(prefix []int) (first, span int, err error) {
	if len(prefix) > len(s.SlotShape) {
		return 0, 0, fmt.Errorf("%w: slot prefix %v longer than shape %v", ErrConfig, prefix, s.SlotShape)
	}
	span = 1
	for _, d := range s.SlotShape[len(prefix):] {
		span *= d
	}
	off := 0
	for i, idx := range prefix {
		if idx < 0 || idx >= s.SlotShape[i] {
			return 0, 0, fmt.Errorf("%w: slot prefix %v out of range for shape %v", ErrConfig, prefix, s.SlotShape)
		}
		off = off*s.SlotShape[i] + idx
	}
	return off * span, span, nil
}

// Fill buckets samples into bins, clamping out-of-range samples into the
// first or last bin. It does not recompute Errors; call ComputeErrors once
// the stream is exhausted.
//
// With a full slot index, every value is one sample for that single slot.
// With a partial (or empty) index, values map row-major onto the remaining
// slot dimensions, one sample per slot. That is the per-event streaming case.
func (s *Store) Fill(values []float64, slot ...int) error {
	nb := s.NumBins()
	if len(slot) == len(s.SlotShape) {
		off, err := s.SlotOffset(slot)
		if err != nil {
			return err
		}
		base := off * nb
		for _, v := range values {
			s.Data[base+s.Axis.IndexOf(v)]++
		}
		return nil
	}

	first, span, err := s.prefixOffset(slot)
	if err != nil {
		return err
	}
	if len(values) != span {
		return fmt.Errorf("%w: %d values for %d slots", ErrConfig, len(values), span)
	}
	for i, v := range values {
		s.Data[(first+i)*nb+s.Axis.IndexOf(v)]++
	}
	return nil
}

// FillBatch histograms one vector of raw samples per slot and adds the
// result to the running contents, then recomputes Errors for the whole
// store. Out-of-range samples are not clamped into Data; they are counted
// in the Underflow and Overflow counters instead.
//
// The underflow threshold is the first bin edge; the overflow threshold is
// the second bin edge, not the last. The asymmetry is a long-standing quirk
// of this accounting and downstream consumers depend on it. Do not "fix" it
// without checking every reader of Overflow.
//
// Slot addressing follows Fill: a full index targets one slot (batch must
// then hold exactly one vector), a partial index maps batch row-major onto
// the remaining dimensions.
func (s *Store) FillBatch(batch [][]float64, slot ...int) error {
	first, span, err := s.prefixOffset(slot)
	if err != nil {
		return err
	}
	if len(batch) != span {
		return fmt.Errorf("%w: batch of %d vectors for %d slots", ErrConfig, len(batch), span)
	}

	edges := s.Axis.Edges()
	nb := s.NumBins()
	for i, samples := range batch {
		off := first + i
		base := off * nb
		for _, v := range samples {
			idx := s.Axis.RawIndexOf(v)
			if idx == nb && v == edges[nb] {
				idx = nb - 1 // right edge of the last bin is inclusive
			}
			if idx >= 0 && idx < nb {
				s.Data[base+idx]++
			}
			if v <= edges[0] {
				s.Underflow[off]++
			}
			if v >= edges[1] {
				s.Overflow[off]++
			}
		}
	}

	s.ComputeErrors()
	return nil
}

// ComputeErrors recomputes the per-bin Poisson errors: sqrt(count), with
// empty bins floored to 1 so weighted residuals stay finite.
func (s *Store) ComputeErrors() {
	for i, d := range s.Data {
		if d == 0 {
			s.Errors[i] = 1
		} else {
			s.Errors[i] = math.Sqrt(d)
		}
	}
}

// FindBin returns the unclamped bin index for a value. The result may be
// out of range; callers wanting the clamped fill policy use Axis.IndexOf.
func (s *Store) FindBin(value float64) int {
	return s.Axis.RawIndexOf(value)
}

// SlotFitParams returns the (value, error) parameter pairs of one slot's
// fit, or nil if the store has never been fitted.
func (s *Store) SlotFitParams(offset int) [][2]float64 {
	if s.FitResult == nil || s.NumParams == 0 {
		return nil
	}
	out := make([][2]float64, s.NumParams)
	base := offset * s.NumParams * 2
	for p := 0; p < s.NumParams; p++ {
		out[p][0] = s.FitResult[base+2*p]
		out[p][1] = s.FitResult[base+2*p+1]
	}
	return out
}

// SlotChi2NDOF returns the chi-square and degrees of freedom of one slot's
// fit. Both are NaN if the store has never been fitted.
func (s *Store) SlotChi2NDOF(offset int) (chi2, ndof float64) {
	if s.FitChi2NDOF == nil {
		return math.NaN(), math.NaN()
	}
	return s.FitChi2NDOF[2*offset], s.FitChi2NDOF[2*offset+1]
}
