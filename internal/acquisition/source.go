// Package acquisition accumulates raw detector events into histogram
// stores. The event source is an external collaborator: anything that can
// hand over per-pixel sample arrays one event at a time. Telescope file
// formats stay on the far side of the EventSource interface.
package acquisition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Event is one camera readout: a vector of waveform samples per pixel,
// already restricted to the pixels of interest, tagged with the scan level
// it was taken at.
type Event struct {
	Level   int         `json:"level"`
	Samples [][]float64 `json:"samples"`
}

// EventSource yields events until the stream ends with io.EOF.
type EventSource interface {
	Next() (*Event, error)
}

// MemorySource replays a fixed slice of events. Used in tests and for
// synthetic data.
type MemorySource struct {
	Events []Event
	pos    int
}

// Next implements EventSource.
func (m *MemorySource) Next() (*Event, error) {
	if m.pos >= len(m.Events) {
		return nil, io.EOF
	}
	ev := &m.Events[m.pos]
	m.pos++
	return ev, nil
}

// JSONLSource reads events from a stream of newline-delimited JSON
// records. It is a reference adapter, not a telescope format reader.
type JSONLSource struct {
	dec *json.Decoder
}

// NewJSONLSource wraps a reader producing one JSON event per line.
func NewJSONLSource(r io.Reader) *JSONLSource {
	return &JSONLSource{dec: json.NewDecoder(r)}
}

// Next implements EventSource.
func (s *JSONLSource) Next() (*Event, error) {
	var ev Event
	if err := s.dec.Decode(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	return &ev, nil
}

// Window bounds the event numbers an accumulation pass processes.
// MaxEvent <= 0 means unbounded.
type Window struct {
	MinEvent int
	MaxEvent int
}

// contains reports whether event number n falls inside the window.
func (w Window) contains(n int) bool {
	if n < w.MinEvent {
		return false
	}
	return w.MaxEvent <= 0 || n <= w.MaxEvent
}

// done reports whether event number n is past the window.
func (w Window) done(n int) bool {
	return w.MaxEvent > 0 && n > w.MaxEvent
}
