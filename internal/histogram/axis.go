package histogram

import (
	"fmt"
	"math"
)

// Axis is a fixed, evenly spaced bin axis shared by every slot of a Store.
// It is immutable once constructed.
type Axis struct {
	width   float64
	edges   []float64 // len = NumBins()+1
	centers []float64 // len = NumBins()
}

// NewAxisFromRange builds an axis whose bin centers run from centerMin to
// centerMax (inclusive) in steps of width. Edges extend half a width beyond
// the outermost centers.
func NewAxisFromRange(centerMin, centerMax, width float64) (*Axis, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: bin width %g must be positive", ErrConfig, width)
	}
	if centerMax < centerMin {
		return nil, fmt.Errorf("%w: bin center max %g below min %g", ErrConfig, centerMax, centerMin)
	}

	n := int(math.Floor((centerMax-centerMin)/width+1e-9)) + 1
	a := &Axis{
		width:   width,
		edges:   make([]float64, n+1),
		centers: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		a.centers[i] = centerMin + float64(i)*width
		a.edges[i] = centerMin - width/2 + float64(i)*width
	}
	a.edges[n] = centerMin - width/2 + float64(n)*width
	return a, nil
}

// NewAxisFromCenters builds an axis from explicit bin centers. The centers
// must be sorted and uniformly spaced; the width is inferred from the first
// gap. At least two centers are required.
func NewAxisFromCenters(centers []float64) (*Axis, error) {
	if len(centers) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 bin centers, got %d", ErrConfig, len(centers))
	}
	width := centers[1] - centers[0]
	if width <= 0 {
		return nil, fmt.Errorf("%w: bin centers not strictly increasing", ErrConfig)
	}
	for i := 1; i < len(centers); i++ {
		gap := centers[i] - centers[i-1]
		if math.Abs(gap-width) > 1e-9*math.Max(math.Abs(width), 1) {
			return nil, fmt.Errorf("%w: non-uniform bin spacing at index %d (%g vs %g)", ErrConfig, i, gap, width)
		}
	}

	a := &Axis{
		width:   width,
		edges:   make([]float64, len(centers)+1),
		centers: make([]float64, len(centers)),
	}
	copy(a.centers, centers)
	for i := range centers {
		a.edges[i] = centers[i] - width/2
	}
	a.edges[len(centers)] = centers[len(centers)-1] + width/2
	return a, nil
}

// Width returns the bin width.
func (a *Axis) Width() float64 { return a.width }

// NumBins returns the number of bins on the axis.
func (a *Axis) NumBins() int { return len(a.centers) }

// Centers returns the bin centers. The returned slice is owned by the axis
// and must not be modified.
func (a *Axis) Centers() []float64 { return a.centers }

// Edges returns the bin edges. The returned slice is owned by the axis and
// must not be modified.
func (a *Axis) Edges() []float64 { return a.edges }

// IndexOf returns the bin index for a value, clamped into [0, NumBins()-1].
// Values below the axis map to bin 0 and values above map to the last bin.
func (a *Axis) IndexOf(value float64) int {
	idx := int(math.Floor((value - a.edges[0]) / a.width))
	if idx < 0 {
		idx = 0
	}
	if idx > len(a.centers)-1 {
		idx = len(a.centers) - 1
	}
	return idx
}

// RawIndexOf returns the unclamped bin index for a value. The result may be
// negative or beyond the last bin for out-of-range values.
func (a *Axis) RawIndexOf(value float64) int {
	return int(math.Floor((value - a.edges[0]) / a.width))
}

// clone returns an independent copy of the axis.
func (a *Axis) clone() *Axis {
	c := &Axis{
		width:   a.width,
		edges:   make([]float64, len(a.edges)),
		centers: make([]float64, len(a.centers)),
	}
	copy(c.edges, a.edges)
	copy(c.centers, a.centers)
	return c
}
