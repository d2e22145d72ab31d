package acquisition

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

func pixelStore(t *testing.T, pixels int) *histogram.Store {
	t.Helper()
	axis, err := histogram.NewAxisFromRange(0, 99, 1)
	require.NoError(t, err)
	s, err := histogram.NewStore([]int{pixels}, axis)
	require.NoError(t, err)
	return s
}

func TestMemorySource(t *testing.T) {
	t.Parallel()
	src := &MemorySource{Events: []Event{
		{Level: 0, Samples: [][]float64{{1, 2}}},
		{Level: 1, Samples: [][]float64{{3, 4}}},
	}}

	ev, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Level)

	ev, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Level)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONLSource(t *testing.T) {
	t.Parallel()

	t.Run("decodes a stream", func(t *testing.T) {
		t.Parallel()
		src := NewJSONLSource(strings.NewReader(
			`{"level":0,"samples":[[1,2,3]]}
{"level":2,"samples":[[4,5,6],[7,8,9]]}
`))
		ev, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 2, 3}}, ev.Samples)

		ev, err = src.Next()
		require.NoError(t, err)
		assert.Equal(t, 2, ev.Level)
		require.Len(t, ev.Samples, 2)

		_, err = src.Next()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("malformed record", func(t *testing.T) {
		t.Parallel()
		src := NewJSONLSource(strings.NewReader(`{"level":`))
		_, err := src.Next()
		require.Error(t, err)
		assert.NotErrorIs(t, err, io.EOF)
	})
}

func TestWindow(t *testing.T) {
	t.Parallel()

	t.Run("unbounded", func(t *testing.T) {
		t.Parallel()
		w := Window{}
		assert.True(t, w.contains(1))
		assert.True(t, w.contains(1_000_000))
		assert.False(t, w.done(1_000_000))
	})

	t.Run("bounded", func(t *testing.T) {
		t.Parallel()
		w := Window{MinEvent: 10, MaxEvent: 20}
		assert.False(t, w.contains(9))
		assert.True(t, w.contains(10))
		assert.True(t, w.contains(20))
		assert.False(t, w.contains(21))
		assert.False(t, w.done(20))
		assert.True(t, w.done(21))
	})
}

func TestAccumulateDark(t *testing.T) {
	t.Parallel()

	t.Run("raw mode histograms every sample", func(t *testing.T) {
		t.Parallel()
		s := pixelStore(t, 2)
		src := &MemorySource{Events: []Event{
			{Samples: [][]float64{{5, 5, 7}, {10}}},
			{Samples: [][]float64{{5}, {10}}},
		}}

		events, err := AccumulateDark(s, src, DarkRaw, 0, 1, Window{})
		require.NoError(t, err)
		assert.Equal(t, 2, events)

		assert.Equal(t, 3.0, s.SlotData(0)[5])
		assert.Equal(t, 1.0, s.SlotData(0)[7])
		assert.Equal(t, 2.0, s.SlotData(1)[10])
		assert.InDelta(t, math.Sqrt(2), s.SlotErrors(1)[10], 1e-12, "errors recomputed at end of stream")
	})

	t.Run("integral mode sums pedestal-subtracted charge", func(t *testing.T) {
		t.Parallel()
		s := pixelStore(t, 2)
		src := &MemorySource{Events: []Event{
			{Samples: [][]float64{{12, 14, 14}, {11, 11, 11}}},
		}}

		// Pedestal 10: charges are (2+4+4)=10 and (1+1+1)=3.
		events, err := AccumulateDark(s, src, DarkIntegral, 10, 1, Window{})
		require.NoError(t, err)
		assert.Equal(t, 1, events)

		assert.Equal(t, 1.0, s.SlotData(0)[10])
		assert.Equal(t, 1.0, s.SlotData(1)[3])
	})

	t.Run("window skips early events and stops at the cap", func(t *testing.T) {
		t.Parallel()
		s := pixelStore(t, 1)
		var evs []Event
		for i := 0; i < 10; i++ {
			evs = append(evs, Event{Samples: [][]float64{{float64(i)}}})
		}
		src := &MemorySource{Events: evs}

		events, err := AccumulateDark(s, src, DarkRaw, 0, 100, Window{MinEvent: 3, MaxEvent: 5})
		require.NoError(t, err)
		assert.Equal(t, 6, events, "reads one event past the cap before stopping")

		total := 0.0
		for _, v := range s.SlotData(0) {
			total += v
		}
		assert.Equal(t, 3.0, total)
		assert.Equal(t, 1.0, s.SlotData(0)[2])
		assert.Equal(t, 1.0, s.SlotData(0)[3])
		assert.Equal(t, 1.0, s.SlotData(0)[4])
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		s := pixelStore(t, 1)
		src := &MemorySource{Events: []Event{{Samples: [][]float64{{1}}}}}
		_, err := AccumulateDark(s, src, DarkMode(99), 0, 1, Window{})
		assert.Error(t, err)
	})
}

func TestAccumulateSynchro(t *testing.T) {
	t.Parallel()

	t.Run("one dimensional", func(t *testing.T) {
		t.Parallel()
		axis, err := histogram.NewAxisFromRange(0, 9, 1)
		require.NoError(t, err)
		s, err := histogram.NewStore([]int{2}, axis)
		require.NoError(t, err)

		src := &MemorySource{Events: []Event{
			{Samples: [][]float64{{0, 9, 1}, {1, 0, 8}}}, // argmax 1 and 2
			{Samples: [][]float64{{0, 9, 1}, {7, 0, 1}}}, // argmax 1 and 0
		}}
		events, err := AccumulateSynchro(s, src, Window{})
		require.NoError(t, err)
		assert.Equal(t, 2, events)

		assert.Equal(t, 2.0, s.SlotData(0)[1])
		assert.Equal(t, 1.0, s.SlotData(1)[2])
		assert.Equal(t, 1.0, s.SlotData(1)[0])
	})

	t.Run("per level", func(t *testing.T) {
		t.Parallel()
		axis, err := histogram.NewAxisFromRange(0, 9, 1)
		require.NoError(t, err)
		s, err := histogram.NewStore([]int{2, 1}, axis)
		require.NoError(t, err)

		src := &MemorySource{Events: []Event{
			{Level: 0, Samples: [][]float64{{9, 0}}},
			{Level: 1, Samples: [][]float64{{0, 9}}},
		}}
		_, err = AccumulateSynchro(s, src, Window{})
		require.NoError(t, err)

		off0, err := s.SlotOffset([]int{0, 0})
		require.NoError(t, err)
		off1, err := s.SlotOffset([]int{1, 0})
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.SlotData(off0)[0])
		assert.Equal(t, 1.0, s.SlotData(off1)[1])
	})
}

func TestTrigger(t *testing.T) {
	t.Parallel()

	t.Run("store construction", func(t *testing.T) {
		t.Parallel()
		s, err := NewTriggerStore(3, []float64{10, 20, 30, 40})
		require.NoError(t, err)
		assert.Equal(t, []int{3}, s.SlotShape)
		assert.Equal(t, 4, s.NumBins())
		assert.Equal(t, "trigger", s.Label)

		_, err = NewTriggerStore(0, []float64{10, 20})
		assert.Error(t, err)
		_, err = NewTriggerStore(1, []float64{10})
		assert.Error(t, err)
	})

	t.Run("counts thresholds at or below the event peak", func(t *testing.T) {
		t.Parallel()
		s, err := NewTriggerStore(2, []float64{10, 20, 30, 40})
		require.NoError(t, err)

		src := &MemorySource{Events: []Event{
			{Level: 0, Samples: [][]float64{{5, 25}, {12, 3}}}, // camera peak 25
			{Level: 0, Samples: [][]float64{{45}}},             // peak 45
			{Level: 1, Samples: [][]float64{{15}}},             // peak 15
		}}
		events, err := AccumulateTrigger(s, src, Window{})
		require.NoError(t, err)
		assert.Equal(t, 3, events)

		assert.Equal(t, []float64{2, 2, 1, 1}, s.SlotData(0))
		assert.Equal(t, []float64{1, 0, 0, 0}, s.SlotData(1))
	})

	t.Run("rejects out-of-range level", func(t *testing.T) {
		t.Parallel()
		s, err := NewTriggerStore(1, []float64{10, 20})
		require.NoError(t, err)

		src := &MemorySource{Events: []Event{{Level: 5, Samples: [][]float64{{1}}}}}
		_, err = AccumulateTrigger(s, src, Window{})
		assert.Error(t, err)
	})
}
