// Package monitor renders fitted charge spectra and calibration summaries
// for visual inspection. Display code consumes only the public histogram
// surface; nothing here feeds back into the analysis.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

// SpectrumPlotter writes per-slot spectrum plots (bin contents with error
// bars, plus the fitted curve when present) as PNG files.
type SpectrumPlotter struct {
	OutputDir string
}

// PlotSlot renders one slot of the store to <outputDir>/<label>_<slot>.png.
func (sp *SpectrumPlotter) PlotSlot(store *histogram.Store, slot []int) (string, error) {
	if err := os.MkdirAll(sp.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("creating plot dir: %w", err)
	}
	off, err := store.SlotOffset(slot)
	if err != nil {
		return "", err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %v", store.Label, slot)
	p.X.Label.Text = store.XLabel
	p.Y.Label.Text = store.YLabel

	centers := store.Axis.Centers()
	data := store.SlotData(off)
	errs := store.SlotErrors(off)

	pts := make(plotter.XYs, len(centers))
	yerrs := make(plotter.YErrors, len(centers))
	for i := range centers {
		pts[i] = plotter.XY{X: centers[i], Y: data[i]}
		yerrs[i] = struct{ Low, High float64 }{Low: errs[i], High: errs[i]}
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return "", err
	}
	scatter.Radius = vg.Points(1.5)
	p.Add(scatter)
	p.Legend.Add(store.Label, scatter)

	errBars, err := plotter.NewYErrorBars(struct {
		plotter.XYer
		plotter.YErrorer
	}{pts, yerrs})
	if err != nil {
		return "", err
	}
	p.Add(errBars)

	if model, ok := store.Model(); ok {
		params := store.SlotFitParams(off)
		pv := make([]float64, len(params))
		for i := range params {
			pv[i] = params[i][0]
		}
		// Evaluate the model on a 10x denser axis for a smooth curve.
		dense := make([]float64, 0, len(centers)*10)
		step := store.Axis.Width() / 10
		for x := centers[0]; x <= centers[len(centers)-1]; x += step {
			dense = append(dense, x)
		}
		fitted := make([]float64, len(dense))
		model.Eval(pv, dense, fitted)

		line := make(plotter.XYs, len(dense))
		for i := range dense {
			line[i] = plotter.XY{X: dense[i], Y: fitted[i]}
		}
		fitLine, err := plotter.NewLine(line)
		if err != nil {
			return "", err
		}
		fitLine.Color = color.RGBA{R: 200, A: 255}
		fitLine.Width = vg.Points(1)
		p.Add(fitLine)
		p.Legend.Add("fit", fitLine)
	}

	name := filepath.Join(sp.OutputDir, fmt.Sprintf("%s_%v.png", store.Label, slot))
	if err := p.Save(8*vg.Inch, 5*vg.Inch, name); err != nil {
		return "", fmt.Errorf("saving plot %s: %w", name, err)
	}
	return name, nil
}
