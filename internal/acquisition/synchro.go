package acquisition

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

// AccumulateSynchro fills store with the position of each pixel's waveform
// maximum, one count per pixel per event. Used to check the camera's event
// synchronisation: well-synchronised pixels pile up in the same sample bin.
//
// The store's slot shape is either (pixels,) or (levels, pixels); with two
// dimensions the event's scan level selects the first index.
func AccumulateSynchro(store *histogram.Store, src EventSource, win Window) (events int, err error) {
	for {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("reading synchro run: %w", err)
		}
		events++
		if win.done(events) {
			break
		}
		if !win.contains(events) {
			continue
		}

		peakPos := make([]float64, len(ev.Samples))
		for pix, samples := range ev.Samples {
			argmax := 0
			for i, v := range samples {
				if v > samples[argmax] {
					argmax = i
				}
			}
			peakPos[pix] = float64(argmax)
		}

		var fillErr error
		if len(store.SlotShape) == 2 {
			fillErr = store.Fill(peakPos, ev.Level)
		} else {
			fillErr = store.Fill(peakPos)
		}
		if fillErr != nil {
			return events, fillErr
		}

		if events%10000 == 0 {
			log.Printf("[Acquisition] synchro run: %d events accumulated", events)
		}
	}

	store.ComputeErrors()
	return events, nil
}
