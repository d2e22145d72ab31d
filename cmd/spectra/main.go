// Command spectra runs the charge-spectrum calibration pipeline: accumulate
// events into histograms, fit the photoelectron spectrum model per pixel,
// and record the extracted constants.
//
// Usage:
//
//	spectra dark    -options opts.json -events run.jsonl
//	spectra synchro -options opts.json -events run.jsonl
//	spectra trigger -options opts.json -events run.jsonl
//	spectra fit     -options opts.json -model spectra.lowlight
//	spectra report  -options opts.json -out report.html
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/camera-data/spectrum.report/internal/acquisition"
	"github.com/camera-data/spectrum.report/internal/calibdb"
	"github.com/camera-data/spectrum.report/internal/config"
	"github.com/camera-data/spectrum.report/internal/fsutil"
	"github.com/camera-data/spectrum.report/internal/histogram"
	"github.com/camera-data/spectrum.report/internal/monitor"
	_ "github.com/camera-data/spectrum.report/internal/spectra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "dark":
		err = runDark(args)
	case "synchro":
		err = runSynchro(args)
	case "trigger":
		err = runTrigger(args)
	case "fit":
		err = runFit(args)
	case "report":
		err = runReport(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[Spectra] %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `spectra <command> [flags]

Commands:
  dark     accumulate a dark/baseline run into per-pixel histograms
  synchro  accumulate pulse peak positions per light level
  trigger  accumulate a trigger threshold scan
  fit      fit the accumulated histograms with a spectrum model
  report   render an HTML report of fit results

Run "spectra <command> -h" for command flags.
`)
}

func loadOptions(path string) (*config.Options, fsutil.FileSystem, error) {
	fs := fsutil.OSFileSystem{}
	if path == "" {
		return config.DefaultOptions(), fs, nil
	}
	opts, err := config.Load(fs, path)
	if err != nil {
		return nil, fs, err
	}
	return opts, fs, nil
}

func histoPath(opts *config.Options) string {
	return filepath.Join(*opts.OutputDirectory, *opts.HistoFilename)
}

func openEvents(path string) (acquisition.EventSource, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening event stream %s: %w", path, err)
	}
	return acquisition.NewJSONLSource(f), f.Close, nil
}

func adcAxis(opts *config.Options) (*histogram.Axis, error) {
	return histogram.NewAxisFromRange(*opts.AdcsMin, *opts.AdcsMax, *opts.AdcsBinWidth)
}

func window(opts *config.Options) acquisition.Window {
	return acquisition.Window{MinEvent: *opts.EvtMin, MaxEvent: *opts.EvtMax}
}

func runDark(args []string) error {
	fs := flag.NewFlagSet("dark", flag.ExitOnError)
	optionsPath := fs.String("options", "", "JSON options file")
	eventsPath := fs.String("events", "", "JSONL event stream (required)")
	integral := fs.Bool("integral", false, "histogram integrated charge instead of raw samples")
	pixels := fs.Int("pixels", 0, "number of pixels (required)")
	fs.Parse(args)

	if *eventsPath == "" || *pixels <= 0 {
		fs.Usage()
		return fmt.Errorf("-events and -pixels are required")
	}

	opts, osFS, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}
	axis, err := adcAxis(opts)
	if err != nil {
		return err
	}

	store, err := histogram.NewStore([]int{*pixels}, axis)
	if err != nil {
		return err
	}
	store.Label = "dark"
	store.XLabel = "ADC"
	store.YLabel = "entries"

	src, closeSrc, err := openEvents(*eventsPath)
	if err != nil {
		return err
	}
	defer closeSrc()

	mode := acquisition.DarkRaw
	if *integral {
		mode = acquisition.DarkIntegral
	}
	events, err := acquisition.AccumulateDark(store, src, mode, *opts.Pedestal, *opts.BatchSize, window(opts))
	if err != nil {
		return err
	}
	log.Printf("[Spectra] dark: accumulated %d events", events)

	if err := osFS.MkdirAll(*opts.OutputDirectory, 0755); err != nil {
		return err
	}
	return store.Save(osFS, histoPath(opts))
}

func runSynchro(args []string) error {
	fs := flag.NewFlagSet("synchro", flag.ExitOnError)
	optionsPath := fs.String("options", "", "JSON options file")
	eventsPath := fs.String("events", "", "JSONL event stream (required)")
	pixels := fs.Int("pixels", 0, "number of pixels (required)")
	samples := fs.Int("samples", 0, "waveform length in samples (required)")
	fs.Parse(args)

	if *eventsPath == "" || *pixels <= 0 || *samples <= 0 {
		fs.Usage()
		return fmt.Errorf("-events, -pixels and -samples are required")
	}

	opts, osFS, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}

	axis, err := histogram.NewAxisFromRange(0, float64(*samples-1), 1)
	if err != nil {
		return err
	}
	shape := []int{*pixels}
	if *opts.ScanLevels > 1 {
		shape = []int{*opts.ScanLevels, *pixels}
	}
	store, err := histogram.NewStore(shape, axis)
	if err != nil {
		return err
	}
	store.Label = "synchro"
	store.XLabel = "peak position [sample]"
	store.YLabel = "entries"

	src, closeSrc, err := openEvents(*eventsPath)
	if err != nil {
		return err
	}
	defer closeSrc()

	events, err := acquisition.AccumulateSynchro(store, src, window(opts))
	if err != nil {
		return err
	}
	log.Printf("[Spectra] synchro: accumulated %d events", events)

	if err := osFS.MkdirAll(*opts.OutputDirectory, 0755); err != nil {
		return err
	}
	return store.Save(osFS, histoPath(opts))
}

func runTrigger(args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	optionsPath := fs.String("options", "", "JSON options file")
	eventsPath := fs.String("events", "", "JSONL event stream (required)")
	thresholdsFlag := fs.String("thresholds", "", "comma-separated thresholds, overrides the options file")
	fs.Parse(args)

	if *eventsPath == "" {
		fs.Usage()
		return fmt.Errorf("-events is required")
	}

	opts, osFS, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}
	if *thresholdsFlag != "" {
		thresholds, err := parseCSVFloatSlice(*thresholdsFlag)
		if err != nil {
			return err
		}
		opts.Thresholds = thresholds
	}
	if len(opts.Thresholds) == 0 {
		return fmt.Errorf("no trigger thresholds given")
	}

	store, err := acquisition.NewTriggerStore(*opts.ScanLevels, opts.Thresholds)
	if err != nil {
		return err
	}

	src, closeSrc, err := openEvents(*eventsPath)
	if err != nil {
		return err
	}
	defer closeSrc()

	events, err := acquisition.AccumulateTrigger(store, src, window(opts))
	if err != nil {
		return err
	}
	log.Printf("[Spectra] trigger: accumulated %d events", events)

	if err := osFS.MkdirAll(*opts.OutputDirectory, 0755); err != nil {
		return err
	}
	return store.Save(osFS, histoPath(opts))
}

func runFit(args []string) error {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	optionsPath := fs.String("options", "", "JSON options file")
	modelName := fs.String("model", "spectra.lowlight", "registered spectrum model name")
	calibPath := fs.String("calibdb", "", "sqlite calibration database to record constants into")
	label := fs.String("label", "", "run label recorded with the constants")
	plotDir := fs.String("plots", "", "write per-pixel spectrum plots to this directory")
	fs.Parse(args)

	opts, osFS, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}

	store, err := histogram.Load(osFS, histoPath(opts))
	if err != nil {
		return err
	}

	model, ok := histogram.LookupModel(*modelName)
	if !ok {
		return &histogram.UnknownModelError{Name: *modelName}
	}

	fitOpts := &histogram.FitOptions{
		Progress: func(done, total int) {
			if done%100 == 0 || done == total {
				log.Printf("[Spectra] fit: %d/%d slots", done, total)
			}
		},
	}
	if len(opts.PixelList) > 0 {
		fitOpts.Slots = make([][]int, len(opts.PixelList))
		for i, pix := range opts.PixelList {
			fitOpts.Slots[i] = []int{pix}
		}
	}

	engine := &histogram.Engine{}
	if err := engine.Fit(store, model, fitOpts); err != nil {
		return err
	}
	if err := store.Save(osFS, histoPath(opts)); err != nil {
		return err
	}

	if *calibPath != "" {
		db, err := calibdb.Open(*calibPath)
		if err != nil {
			return err
		}
		defer db.Close()

		params, err := json.Marshal(opts)
		if err != nil {
			return fmt.Errorf("encoding run options: %w", err)
		}
		run, err := db.RecordRun(store, *label, params)
		if err != nil {
			return err
		}
		log.Printf("[Spectra] fit: recorded calibration run %s", run.RunID)
	}

	if *plotDir != "" {
		plotter := &monitor.SpectrumPlotter{OutputDir: *plotDir}
		for slot := 0; slot < store.NumSlots(); slot++ {
			if _, err := plotter.PlotSlot(store, store.SlotIndex(slot)); err != nil {
				log.Printf("[Spectra] fit: plotting slot %d: %v", slot, err)
			}
		}
	}
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	optionsPath := fs.String("options", "", "JSON options file")
	outPath := fs.String("out", "report.html", "output HTML file")
	fs.Parse(args)

	opts, osFS, err := loadOptions(*optionsPath)
	if err != nil {
		return err
	}

	store, err := histogram.Load(osFS, histoPath(opts))
	if err != nil {
		return err
	}
	if err := monitor.WriteFitReport(store, *outPath); err != nil {
		return err
	}
	log.Printf("[Spectra] report: wrote %s", *outPath)
	return nil
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
