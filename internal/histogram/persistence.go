package histogram

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"log"
	"path/filepath"

	"github.com/camera-data/spectrum.report/internal/fsutil"
)

// archive is the on-disk layout of a persisted Store: a gzip-compressed gob
// record of named arrays. One-element slices mirror the historical format
// for scalar and string fields, so the key set stays self-describing.
type archive struct {
	SlotShape  []int
	Data       []float64
	BinCenters []float64
	BinEdges   []float64
	BinWidth   []float64 // 1 element
	Errors     []float64
	Underflow  []float64
	Overflow   []float64

	FitResult       []float64
	NumParams       int
	FitFunctionName []string // 1 element, noModelSentinel when never fitted
	FitChi2NDOF     []float64
	FitAxis         []float64
	FitResultLabel  []string

	XLabel []string // 1 element
	YLabel []string // 1 element
	Label  []string // 1 element
}

// Save writes the full store to path as a compressed archive. It fails
// with ErrNotFound when the destination directory does not exist.
func (s *Store) Save(fs fsutil.FileSystem, path string) error {
	dir := filepath.Dir(path)
	if !fs.DirExists(dir) {
		return fmt.Errorf("%w: directory %s", ErrNotFound, dir)
	}

	name := s.FitModel
	if name == "" {
		name = noModelSentinel
	}
	a := archive{
		SlotShape:       s.SlotShape,
		Data:            s.Data,
		BinCenters:      s.Axis.Centers(),
		BinEdges:        s.Axis.Edges(),
		BinWidth:        []float64{s.Axis.Width()},
		Errors:          s.Errors,
		Underflow:       s.Underflow,
		Overflow:        s.Overflow,
		FitResult:       s.FitResult,
		NumParams:       s.NumParams,
		FitFunctionName: []string{name},
		FitChi2NDOF:     s.FitChi2NDOF,
		FitAxis:         s.FitAxis,
		FitResultLabel:  s.FitLabels,
		XLabel:          []string{s.XLabel},
		YLabel:          []string{s.YLabel},
		Label:           []string{s.Label},
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&a); err != nil {
		gz.Close()
		return fmt.Errorf("encoding histogram archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compressing histogram archive: %w", err)
	}

	if err := fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Printf("[Histogram] Saved %d-slot store to %s (%d bytes)", s.NumSlots(), path, buf.Len())
	return nil
}

// Load reads a full store from path. The returned store is fully
// independent of the archive. It fails with ErrNotFound when the file does
// not exist, and with UnknownModelError when the archive names a fit model
// not registered in this build.
func Load(fs fsutil.FileSystem, path string) (*Store, error) {
	a, err := readArchive(fs, path)
	if err != nil {
		return nil, err
	}

	axis, err := NewAxisFromCenters(a.BinCenters)
	if err != nil {
		return nil, fmt.Errorf("rebuilding axis from %s: %w", path, err)
	}

	s := &Store{
		Axis:        axis,
		SlotShape:   a.SlotShape,
		Data:        a.Data,
		Underflow:   a.Underflow,
		Overflow:    a.Overflow,
		Errors:      a.Errors,
		FitResult:   a.FitResult,
		NumParams:   a.NumParams,
		FitChi2NDOF: a.FitChi2NDOF,
		FitLabels:   a.FitResultLabel,
		FitAxis:     a.FitAxis,
		XLabel:      first(a.XLabel, "x"),
		YLabel:      first(a.YLabel, "y"),
		Label:       first(a.Label, "hist"),
	}
	if err := resolveModelName(s, a); err != nil {
		return nil, err
	}
	log.Printf("[Histogram] Loaded %d-slot store from %s", s.NumSlots(), path)
	return s, nil
}

// LoadFitResults reads only the fit-related fields from an archive into a
// store with no histogram body. Used downstream when just the calibration
// results are needed.
func LoadFitResults(fs fsutil.FileSystem, path string) (*Store, error) {
	a, err := readArchive(fs, path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		SlotShape:   a.SlotShape,
		FitResult:   a.FitResult,
		NumParams:   a.NumParams,
		FitChi2NDOF: a.FitChi2NDOF,
		FitLabels:   a.FitResultLabel,
		FitAxis:     a.FitAxis,
	}
	if err := resolveModelName(s, a); err != nil {
		return nil, err
	}
	return s, nil
}

func readArchive(fs fsutil.FileSystem, path string) (*archive, error) {
	if !fs.Exists(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer gz.Close()

	var a archive
	if err := gob.NewDecoder(gz).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &a, nil
}

// resolveModelName validates the persisted model name against the registry
// and stores it. The sentinel for "never fitted" resolves to the empty
// name.
func resolveModelName(s *Store, a *archive) error {
	name := first(a.FitFunctionName, noModelSentinel)
	if name == noModelSentinel {
		s.FitModel = ""
		return nil
	}
	if _, ok := LookupModel(name); !ok {
		return &UnknownModelError{Name: name}
	}
	s.FitModel = name
	return nil
}

func first(v []string, fallback string) string {
	if len(v) == 0 {
		return fallback
	}
	return v[0]
}
