package acquisition

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

// DarkMode selects what AccumulateDark histograms from each event.
type DarkMode int

const (
	// DarkRaw histograms every waveform sample of every pixel.
	DarkRaw DarkMode = iota
	// DarkIntegral histograms the pedestal-subtracted sum of each
	// pixel's waveform, one value per pixel per event.
	DarkIntegral
)

// AccumulateDark walks a dark/baseline run and fills store with either raw
// samples or integrated charges. The store's slot shape must be (pixels,).
// In raw mode, samples are buffered for batchSize events between FillBatch
// calls (batchSize <= 1 flushes per event). Errors are consistent once the
// stream is exhausted.
func AccumulateDark(store *histogram.Store, src EventSource, mode DarkMode, pedestal float64, batchSize int, win Window) (events int, err error) {
	if batchSize < 1 {
		batchSize = 1
	}
	var pending [][]float64
	buffered := 0

	flush := func() error {
		if buffered == 0 {
			return nil
		}
		err := store.FillBatch(pending)
		for pix := range pending {
			pending[pix] = pending[pix][:0]
		}
		buffered = 0
		return err
	}

	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("reading dark run: %w", err)
		}
		events++
		if win.done(events) {
			break
		}
		if !win.contains(events) {
			continue
		}

		switch mode {
		case DarkRaw:
			if pending == nil {
				pending = make([][]float64, len(ev.Samples))
			}
			if len(ev.Samples) != len(pending) {
				return events, fmt.Errorf("event %d has %d pixels, want %d", events, len(ev.Samples), len(pending))
			}
			for pix, samples := range ev.Samples {
				pending[pix] = append(pending[pix], samples...)
			}
			buffered++
			if buffered >= batchSize {
				if err := flush(); err != nil {
					return events, err
				}
			}
		case DarkIntegral:
			charges := make([]float64, len(ev.Samples))
			for pix, samples := range ev.Samples {
				s := 0.0
				for _, v := range samples {
					s += v - pedestal
				}
				charges[pix] = s
			}
			if err := store.Fill(charges); err != nil {
				return events, err
			}
		default:
			return events, fmt.Errorf("unknown dark mode %d", mode)
		}

		if events%10000 == 0 {
			log.Printf("[Acquisition] dark run: %d events accumulated", events)
		}
	}

	if err := flush(); err != nil {
		return events, err
	}
	store.ComputeErrors()
	return events, nil
}
