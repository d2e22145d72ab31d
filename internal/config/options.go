// Package config loads analysis options. Options files are JSON with
// every field optional; unset fields fall back to defaults at merge time,
// so a file only needs the keys its analysis actually uses.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/camera-data/spectrum.report/internal/fsutil"
)

// Options is the flat option set shared by the analysis runners. Pointer
// fields distinguish "absent" from zero.
type Options struct {
	// I/O
	OutputDirectory *string  `json:"output_directory,omitempty"`
	HistoFilename   *string  `json:"histo_filename,omitempty"`
	Directory       *string  `json:"directory,omitempty"`
	FileBasename    *string  `json:"file_basename,omitempty"`
	FileList        []string `json:"file_list,omitempty"`

	// Event selection
	EvtMin    *int  `json:"evt_min,omitempty"`
	EvtMax    *int  `json:"evt_max,omitempty"`
	PixelList []int `json:"pixel_list,omitempty"`

	// Bin axis
	AdcsMin      *float64 `json:"adcs_min,omitempty"`
	AdcsMax      *float64 `json:"adcs_max,omitempty"`
	AdcsBinWidth *float64 `json:"adcs_binwidth,omitempty"`

	// Accumulation
	ScanLevels *int     `json:"scan_levels,omitempty"`
	BatchSize  *int     `json:"n_evt_per_batch,omitempty"`
	Pedestal   *float64 `json:"pedestal,omitempty"`

	// Trigger scan
	Thresholds []float64 `json:"thresholds,omitempty"`
}

// DefaultOptions returns the defaults every analysis starts from.
func DefaultOptions() *Options {
	return &Options{
		OutputDirectory: ptrString("."),
		HistoFilename:   ptrString("histo.gz"),
		EvtMin:          ptrInt(0),
		EvtMax:          ptrInt(0),
		AdcsMin:         ptrFloat64(0),
		AdcsMax:         ptrFloat64(4095),
		AdcsBinWidth:    ptrFloat64(1),
		ScanLevels:      ptrInt(1),
		BatchSize:       ptrInt(100),
		Pedestal:        ptrFloat64(0),
	}
}

// Load reads an options file and merges it over the defaults.
func Load(fs fsutil.FileSystem, path string) (*Options, error) {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options %s: %w", path, err)
	}
	var loaded Options
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("parsing options %s: %w", path, err)
	}
	opts := DefaultOptions()
	opts.Merge(&loaded)
	return opts, nil
}

// Merge overlays every set field of other onto o.
func (o *Options) Merge(other *Options) {
	if other.OutputDirectory != nil {
		o.OutputDirectory = other.OutputDirectory
	}
	if other.HistoFilename != nil {
		o.HistoFilename = other.HistoFilename
	}
	if other.Directory != nil {
		o.Directory = other.Directory
	}
	if other.FileBasename != nil {
		o.FileBasename = other.FileBasename
	}
	if other.FileList != nil {
		o.FileList = other.FileList
	}
	if other.EvtMin != nil {
		o.EvtMin = other.EvtMin
	}
	if other.EvtMax != nil {
		o.EvtMax = other.EvtMax
	}
	if other.PixelList != nil {
		o.PixelList = other.PixelList
	}
	if other.AdcsMin != nil {
		o.AdcsMin = other.AdcsMin
	}
	if other.AdcsMax != nil {
		o.AdcsMax = other.AdcsMax
	}
	if other.AdcsBinWidth != nil {
		o.AdcsBinWidth = other.AdcsBinWidth
	}
	if other.ScanLevels != nil {
		o.ScanLevels = other.ScanLevels
	}
	if other.BatchSize != nil {
		o.BatchSize = other.BatchSize
	}
	if other.Pedestal != nil {
		o.Pedestal = other.Pedestal
	}
	if other.Thresholds != nil {
		o.Thresholds = other.Thresholds
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
