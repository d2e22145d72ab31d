package acquisition

import (
	"errors"
	"fmt"
	"io"

	"github.com/camera-data/spectrum.report/internal/histogram"
)

// NewTriggerStore builds the counts-vs-threshold store AccumulateTrigger
// fills: one slot per scan level, thresholds as bin centers.
func NewTriggerStore(levels int, thresholds []float64) (*histogram.Store, error) {
	if levels <= 0 {
		return nil, fmt.Errorf("need at least one scan level, got %d", levels)
	}
	axis, err := histogram.NewAxisFromCenters(thresholds)
	if err != nil {
		return nil, err
	}
	store, err := histogram.NewStore([]int{levels}, axis)
	if err != nil {
		return nil, err
	}
	store.Label = "trigger"
	store.XLabel = "threshold [ADC]"
	store.YLabel = "triggered events"
	return store, nil
}

// AccumulateTrigger builds a trigger-efficiency curve: for every scan
// level, the count of events whose camera-wide maximum sample reaches each
// threshold. The store's axis carries the thresholds as bin centers and
// the slot shape is (levels,); the store is used as a counts-vs-threshold
// table rather than a sample histogram, so bins are incremented directly.
func AccumulateTrigger(store *histogram.Store, src EventSource, win Window) (events int, err error) {
	if len(store.SlotShape) != 1 {
		return 0, fmt.Errorf("trigger store must have slot shape (levels,), got %v", store.SlotShape)
	}
	thresholds := store.Axis.Centers()

	for {
		ev, srcErr := src.Next()
		if errors.Is(srcErr, io.EOF) {
			break
		}
		if srcErr != nil {
			return events, fmt.Errorf("reading trigger run: %w", srcErr)
		}
		events++
		if win.done(events) {
			break
		}
		if !win.contains(events) {
			continue
		}
		if ev.Level < 0 || ev.Level >= store.SlotShape[0] {
			return events, fmt.Errorf("event level %d out of range for %d scan levels", ev.Level, store.SlotShape[0])
		}

		peak := 0.0
		for _, samples := range ev.Samples {
			for _, v := range samples {
				if v > peak {
					peak = v
				}
			}
		}

		row := store.SlotData(ev.Level)
		for t, thr := range thresholds {
			if peak >= thr {
				row[t]++
			}
		}
	}

	store.ComputeErrors()
	return events, nil
}
