package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAxisFromRange(t *testing.T) {
	t.Parallel()

	t.Run("basic", func(t *testing.T) {
		t.Parallel()
		a, err := NewAxisFromRange(0, 10, 1)
		require.NoError(t, err)

		assert.Equal(t, 11, a.NumBins())
		assert.Equal(t, 1.0, a.Width())
		assert.Len(t, a.Edges(), 12)
		assert.InDelta(t, 0.0, a.Centers()[0], 1e-12)
		assert.InDelta(t, 10.0, a.Centers()[10], 1e-12)
		assert.InDelta(t, -0.5, a.Edges()[0], 1e-12)
		assert.InDelta(t, 10.5, a.Edges()[11], 1e-12)
	})

	t.Run("fractional width", func(t *testing.T) {
		t.Parallel()
		a, err := NewAxisFromRange(0, 1, 0.25)
		require.NoError(t, err)
		assert.Equal(t, 5, a.NumBins())
		for i, c := range a.Centers() {
			assert.InDelta(t, float64(i)*0.25, c, 1e-12)
		}
	})

	t.Run("single bin when max equals min", func(t *testing.T) {
		t.Parallel()
		a, err := NewAxisFromRange(3, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, a.NumBins())
		assert.InDelta(t, 3.0, a.Centers()[0], 1e-12)
	})

	t.Run("rejects non-positive width", func(t *testing.T) {
		t.Parallel()
		_, err := NewAxisFromRange(0, 10, 0)
		assert.ErrorIs(t, err, ErrConfig)
		_, err = NewAxisFromRange(0, 10, -1)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		t.Parallel()
		_, err := NewAxisFromRange(10, 0, 1)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestNewAxisFromCenters(t *testing.T) {
	t.Parallel()

	t.Run("round trips range construction", func(t *testing.T) {
		t.Parallel()
		orig, err := NewAxisFromRange(-4, 4, 0.5)
		require.NoError(t, err)

		rebuilt, err := NewAxisFromCenters(orig.Centers())
		require.NoError(t, err)

		assert.Equal(t, orig.NumBins(), rebuilt.NumBins())
		assert.InDelta(t, orig.Width(), rebuilt.Width(), 1e-12)
		for i := range orig.Edges() {
			assert.InDelta(t, orig.Edges()[i], rebuilt.Edges()[i], 1e-9)
		}
	})

	t.Run("rejects too few centers", func(t *testing.T) {
		t.Parallel()
		_, err := NewAxisFromCenters([]float64{1})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("rejects non-uniform spacing", func(t *testing.T) {
		t.Parallel()
		_, err := NewAxisFromCenters([]float64{0, 1, 2.5})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("rejects unsorted centers", func(t *testing.T) {
		t.Parallel()
		_, err := NewAxisFromCenters([]float64{2, 1, 0})
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestAxisIndexOf(t *testing.T) {
	t.Parallel()
	a, err := NewAxisFromRange(0, 9, 1)
	require.NoError(t, err)

	t.Run("in range", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0, a.IndexOf(0))
		assert.Equal(t, 5, a.IndexOf(5.2))
		assert.Equal(t, 5, a.IndexOf(4.6))
		assert.Equal(t, 9, a.IndexOf(9))
	})

	t.Run("clamps below", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0, a.IndexOf(-100))
	})

	t.Run("clamps above", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 9, a.IndexOf(100))
	})

	t.Run("raw index is unclamped", func(t *testing.T) {
		t.Parallel()
		assert.Negative(t, a.RawIndexOf(-100))
		assert.GreaterOrEqual(t, a.RawIndexOf(100), a.NumBins())
	})
}
