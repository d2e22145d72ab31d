package monitor

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

// WriteFitReport renders a standalone HTML page with one bar chart per fit
// parameter, slot index on the x axis. Failed slots (NaN) render as gaps.
func WriteFitReport(store *histogram.Store, path string) error {
	if store.FitResult == nil {
		return fmt.Errorf("store has no fit results to report")
	}

	page := components.NewPage()
	page.PageTitle = store.Label

	slots := make([]string, store.NumSlots())
	for i := range slots {
		slots[i] = fmt.Sprintf("%v", store.SlotIndex(i))
	}

	for param := 0; param < store.NumParams; param++ {
		label := fmt.Sprintf("p%d", param)
		if param < len(store.FitLabels) {
			label = store.FitLabels[param]
		}

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: label}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		)

		values := make([]opts.BarData, store.NumSlots())
		for slot := 0; slot < store.NumSlots(); slot++ {
			v := store.FitResult[slot*store.NumParams*2+2*param]
			if math.IsNaN(v) {
				values[slot] = opts.BarData{Value: nil}
			} else {
				values[slot] = opts.BarData{Value: v}
			}
		}
		bar.SetXAxis(slots).AddSeries(label, values)
		page.AddCharts(bar)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("rendering report %s: %w", path, err)
	}
	return nil
}
