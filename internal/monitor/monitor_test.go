package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

func fittedTestStore(t *testing.T) *histogram.Store {
	t.Helper()
	axis, err := histogram.NewAxisFromRange(0, 19, 1)
	require.NoError(t, err)
	s, err := histogram.NewStore([]int{2}, axis)
	require.NoError(t, err)

	s.Label = "charge"
	s.XLabel = "ADC"
	s.YLabel = "entries"
	for slot := 0; slot < 2; slot++ {
		data := s.SlotData(slot)
		for i := range data {
			data[i] = float64((i + slot) % 7)
		}
	}
	s.ComputeErrors()

	s.NumParams = 2
	s.FitLabels = []string{"slope", "intercept"}
	s.FitResult = []float64{1, 0.1, 2, 0.2, 3, 0.3, 4, 0.4}
	s.FitChi2NDOF = []float64{10, 18, 12, 18}
	return s
}

func TestPlotSlot(t *testing.T) {
	t.Parallel()
	sp := &SpectrumPlotter{OutputDir: t.TempDir()}
	s := fittedTestStore(t)

	path, err := sp.PlotSlot(s, []int{1})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, ".png", filepath.Ext(path))
}

func TestPlotSlotBadIndex(t *testing.T) {
	t.Parallel()
	sp := &SpectrumPlotter{OutputDir: t.TempDir()}
	s := fittedTestStore(t)

	_, err := sp.PlotSlot(s, []int{9})
	assert.Error(t, err)
}

func TestWriteFitReport(t *testing.T) {
	t.Parallel()

	t.Run("renders one chart per parameter", func(t *testing.T) {
		t.Parallel()
		s := fittedTestStore(t)
		path := filepath.Join(t.TempDir(), "report.html")

		require.NoError(t, WriteFitReport(s, path))

		html, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(html), "slope")
		assert.Contains(t, string(html), "intercept")
	})

	t.Run("rejects unfitted store", func(t *testing.T) {
		t.Parallel()
		axis, err := histogram.NewAxisFromRange(0, 9, 1)
		require.NoError(t, err)
		s, err := histogram.NewStore([]int{1}, axis)
		require.NoError(t, err)

		err = WriteFitReport(s, filepath.Join(t.TempDir(), "report.html"))
		assert.Error(t, err)
	})
}
