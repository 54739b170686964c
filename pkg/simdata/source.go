package simdata

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Source supplies the grid and its snapshots to the engine. Implementations
// perform all I/O up front or per snapshot, strictly outside the engine's
// parallel regions.
type Source interface {
	// Grid returns the static mesh, valid for every snapshot.
	Grid() (*Grid, error)
	// Snapshot returns time level n.
	Snapshot(n int) (*Snapshot, error)
	// ExtrapolationTolerance bounds how far (in coordinate time) a sample
	// may sit outside the loaded snapshot pair in slow-light mode before
	// it falls back.
	ExtrapolationTolerance() float64
}

// StaticSource serves a grid and snapshots already resident in memory.
type StaticSource struct {
	G         *Grid
	Snapshots []*Snapshot
	Tolerance float64
}

// NewStaticSource wraps in-memory data as a Source.
func NewStaticSource(g *Grid, snapshots []*Snapshot, tolerance float64) *StaticSource {
	return &StaticSource{G: g, Snapshots: snapshots, Tolerance: tolerance}
}

func (s *StaticSource) Grid() (*Grid, error) {
	if err := s.G.Validate(); err != nil {
		return nil, err
	}
	return s.G, nil
}

func (s *StaticSource) Snapshot(n int) (*Snapshot, error) {
	if n < 0 || n >= len(s.Snapshots) {
		return nil, fmt.Errorf("simdata: snapshot %d out of range [0, %d)", n, len(s.Snapshots))
	}
	return s.Snapshots[n], nil
}

func (s *StaticSource) ExtrapolationTolerance() float64 { return s.Tolerance }

// fileData is the on-disk layout of a pre-extracted data file.
type fileData struct {
	Grid      *Grid
	Snapshots []*Snapshot
	Tolerance float64
}

// Open reads a pre-extracted simulation data file. The format is a gob
// encoding of the grid and snapshots produced by an external extraction
// tool; native simulation outputs must be converted before rendering.
func Open(path string) (*StaticSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening simulation data %s: %w", path, err)
	}
	defer f.Close()
	var data fileData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding simulation data %s: %w", path, err)
	}
	src := NewStaticSource(data.Grid, data.Snapshots, data.Tolerance)
	if _, err := src.Grid(); err != nil {
		return nil, fmt.Errorf("simulation data %s: %w", path, err)
	}
	return src, nil
}

// Write stores a source's contents in the file format Open reads.
func Write(path string, src *StaticSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating simulation data %s: %w", path, err)
	}
	defer f.Close()
	data := fileData{Grid: src.G, Snapshots: src.Snapshots, Tolerance: src.Tolerance}
	if err := gob.NewEncoder(f).Encode(&data); err != nil {
		return fmt.Errorf("encoding simulation data %s: %w", path, err)
	}
	return f.Close()
}
