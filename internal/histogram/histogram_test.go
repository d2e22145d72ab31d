package histogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAxis(t *testing.T, min, max, width float64) *Axis {
	t.Helper()
	a, err := NewAxisFromRange(min, max, width)
	require.NoError(t, err)
	return a
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("allocates per slot", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{3, 4}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		assert.Equal(t, 12, s.NumSlots())
		assert.Equal(t, 10, s.NumBins())
		assert.Len(t, s.Data, 120)
		assert.Len(t, s.Errors, 120)
		assert.Len(t, s.Underflow, 12)
		assert.Len(t, s.Overflow, 12)
	})

	t.Run("scalar slot shape", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore(nil, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)
		assert.Equal(t, 1, s.NumSlots())
	})

	t.Run("rejects nil axis", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore([]int{2}, nil)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("rejects non-positive dimensions", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore([]int{2, 0}, mustAxis(t, 0, 9, 1))
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestSlotOffsetRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := NewStore([]int{2, 3, 4}, mustAxis(t, 0, 9, 1))
	require.NoError(t, err)

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				off, err := s.SlotOffset([]int{i, j, k})
				require.NoError(t, err)
				assert.False(t, seen[off], "offset %d reused", off)
				seen[off] = true
				assert.Equal(t, []int{i, j, k}, s.SlotIndex(off))
			}
		}
	}

	_, err = s.SlotOffset([]int{0, 0})
	assert.ErrorIs(t, err, ErrConfig)
	_, err = s.SlotOffset([]int{0, 0, 4})
	assert.ErrorIs(t, err, ErrConfig)
	_, err = s.SlotOffset([]int{0, -1, 0})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestFill(t *testing.T) {
	t.Parallel()

	t.Run("full slot index buckets samples", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{2}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.Fill([]float64{5, 5, 5, 7}, 0))

		data := s.SlotData(0)
		assert.Equal(t, 3.0, data[5])
		assert.Equal(t, 1.0, data[7])
		assert.Equal(t, 0.0, data[0])
		// Other slot untouched.
		for _, v := range s.SlotData(1) {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("clamps out-of-range into edge bins", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.Fill([]float64{-50, 200}, 0))

		data := s.SlotData(0)
		assert.Equal(t, 1.0, data[0])
		assert.Equal(t, 1.0, data[9])
		assert.Equal(t, 0.0, s.Underflow[0])
		assert.Equal(t, 0.0, s.Overflow[0])
	})

	t.Run("partial index spreads one sample per slot", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{2, 3}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		// One value per pixel at level 1.
		require.NoError(t, s.Fill([]float64{1, 2, 3}, 1))

		for pix := 0; pix < 3; pix++ {
			off, err := s.SlotOffset([]int{1, pix})
			require.NoError(t, err)
			assert.Equal(t, 1.0, s.SlotData(off)[pix+1])
		}
		// Level 0 untouched.
		off, err := s.SlotOffset([]int{0, 0})
		require.NoError(t, err)
		for _, v := range s.SlotData(off) {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("empty index needs one value per slot", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{3}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		err = s.Fill([]float64{1, 2})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("does not touch errors", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.Fill([]float64{5}, 0))
		assert.Equal(t, 0.0, s.Errors[5])
	})
}

func TestFillBatch(t *testing.T) {
	t.Parallel()

	t.Run("accumulates and recomputes errors", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{2}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		batch := [][]float64{
			{4, 4, 4, 4},
			{7},
		}
		require.NoError(t, s.FillBatch(batch))

		assert.Equal(t, 4.0, s.SlotData(0)[4])
		assert.Equal(t, 1.0, s.SlotData(1)[7])
		assert.Equal(t, 2.0, s.SlotErrors(0)[4])
		assert.Equal(t, 1.0, s.SlotErrors(1)[7])
		assert.Equal(t, 1.0, s.SlotErrors(0)[0], "empty bins floor to 1")
	})

	t.Run("counts underflow and overflow instead of clamping", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		// Edges are -0.5 .. 9.5. Underflow triggers at v <= -0.5, overflow
		// at v >= 0.5 (the second edge, not the last).
		require.NoError(t, s.FillBatch([][]float64{{-3, 12}}))

		assert.Equal(t, 1.0, s.Underflow[0])
		assert.Equal(t, 1.0, s.Overflow[0])
		total := 0.0
		for _, v := range s.SlotData(0) {
			total += v
		}
		assert.Equal(t, 0.0, total, "out-of-range samples stay out of the bins")
	})

	t.Run("in-range samples above the second edge count both ways", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.FillBatch([][]float64{{5}}))

		assert.Equal(t, 1.0, s.SlotData(0)[5])
		assert.Equal(t, 1.0, s.Overflow[0])
		assert.Equal(t, 0.0, s.Underflow[0])
	})

	t.Run("right edge of last bin is inclusive", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.FillBatch([][]float64{{9.5}}))
		assert.Equal(t, 1.0, s.SlotData(0)[9])
	})

	t.Run("full slot index takes a single vector", func(t *testing.T) {
		t.Parallel()
		s, err := NewStore([]int{3}, mustAxis(t, 0, 9, 1))
		require.NoError(t, err)

		require.NoError(t, s.FillBatch([][]float64{{2, 2}}, 1))
		assert.Equal(t, 2.0, s.SlotData(1)[2])

		err = s.FillBatch([][]float64{{1}, {2}}, 1)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestComputeErrors(t *testing.T) {
	t.Parallel()
	s, err := NewStore([]int{1}, mustAxis(t, 0, 3, 1))
	require.NoError(t, err)
	copy(s.Data, []float64{0, 1, 4, 9})

	s.ComputeErrors()
	assert.Equal(t, []float64{1, 1, 2, 3}, s.Errors)

	// Idempotent: errors derive from data alone.
	s.ComputeErrors()
	assert.Equal(t, []float64{1, 1, 2, 3}, s.Errors)
}

func TestFindBin(t *testing.T) {
	t.Parallel()
	s, err := NewStore([]int{1}, mustAxis(t, 0, 9, 1))
	require.NoError(t, err)

	assert.Equal(t, 5, s.FindBin(5.0))
	assert.Negative(t, s.FindBin(-10))
	assert.GreaterOrEqual(t, s.FindBin(50), s.NumBins())
}

func TestSlotFitAccessors(t *testing.T) {
	t.Parallel()
	s, err := NewStore([]int{2}, mustAxis(t, 0, 9, 1))
	require.NoError(t, err)

	t.Run("unfitted store", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, s.SlotFitParams(0))
		chi2, ndof := s.SlotChi2NDOF(0)
		assert.True(t, math.IsNaN(chi2))
		assert.True(t, math.IsNaN(ndof))
	})

	t.Run("fitted store", func(t *testing.T) {
		t.Parallel()
		f := &Store{
			SlotShape:   []int{2},
			NumParams:   2,
			FitResult:   []float64{1, 0.1, 2, 0.2, 3, 0.3, 4, 0.4},
			FitChi2NDOF: []float64{10, 5, 20, 6},
		}
		p := f.SlotFitParams(1)
		require.Len(t, p, 2)
		assert.Equal(t, [2]float64{3, 0.3}, p[0])
		assert.Equal(t, [2]float64{4, 0.4}, p[1])

		chi2, ndof := f.SlotChi2NDOF(1)
		assert.Equal(t, 20.0, chi2)
		assert.Equal(t, 6.0, ndof)
	})
}
