package output

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/radiation"
)

// Writer turns completed snapshots into the configured artifacts. Per-snapshot
// writers (archive, preview, TIFF, movie frames) run as each snapshot lands;
// Finish closes the movie and plots the light curve.
type Writer struct {
	params    config.OutputParams
	off       radiation.Offsets
	res       int
	blockSize int
	numbered  bool // more than one snapshot: suffix per-snapshot file names
	slowLight bool

	movie *Movie
	times []float64
	flux  []float64
}

// NewWriter prepares a writer for the run. Nothing touches the filesystem
// until the first snapshot arrives.
func NewWriter(cfg *config.Config, off radiation.Offsets) *Writer {
	blockSize := 0
	if cfg.Adaptive.MaxLevel > 0 {
		blockSize = cfg.Adaptive.BlockSize
	}
	return &Writer{
		params:    cfg.Output,
		off:       off,
		res:       cfg.Camera.Resolution,
		blockSize: blockSize,
		numbered:  cfg.Snapshots > 1,
		slowLight: cfg.SlowLight.On,
	}
}

// numberedPath inserts the snapshot index before the extension when the run
// spans several snapshots, so artifacts do not overwrite each other.
func (w *Writer) numberedPath(path string, snap int) string {
	if !w.numbered {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%05d%s", strings.TrimSuffix(path, ext), snap, ext)
}

// Snapshot writes the artifacts of one completed snapshot. planes holds the
// quantity-major image of every level the snapshot used; locs is the camera's
// block layout for the same levels.
func (w *Writer) Snapshot(snap int, t float64, planes [][]float64, locs [][]camera.BlockLoc) error {
	if w.off.NumQuantities == 0 || len(planes) == 0 {
		return nil
	}
	names := w.off.QuantityNames()

	// Flatten each quantity across refinement levels.
	flat := make([][]float64, w.off.NumQuantities)
	outRes := w.res
	levelPlanes := make([][]float64, len(planes))
	for q := 0; q < w.off.NumQuantities; q++ {
		for l, p := range planes {
			numPix := len(p) / w.off.NumQuantities
			levelPlanes[l] = p[q*numPix : (q+1)*numPix]
		}
		flat[q], outRes = Composite(levelPlanes, locs, w.blockSize, w.res)
	}

	if w.params.File != "" {
		quantities := make([]Quantity, len(flat))
		for q := range flat {
			quantities[q] = Quantity{Name: names[q], Rows: outRes, Cols: outRes, Data: flat[q]}
		}
		if err := WriteNPZ(w.numberedPath(w.params.File, snap), quantities); err != nil {
			return err
		}
	}

	if w.off.Light < 0 {
		return nil
	}
	light := flat[w.off.Light]

	if w.params.PreviewFile != "" {
		if err := WritePNG(w.numberedPath(w.params.PreviewFile, snap), light, outRes); err != nil {
			return err
		}
	}
	if w.params.TiffFile != "" {
		if err := WriteTIFF(w.numberedPath(w.params.TiffFile, snap), light, outRes); err != nil {
			return err
		}
	}
	if w.params.MovieFile != "" {
		if w.movie == nil {
			m, err := NewMovie(w.params.MovieFile, outRes, w.params.MovieFPS)
			if err != nil {
				return err
			}
			w.movie = m
		}
		if err := w.movie.AddFrame(light, outRes); err != nil {
			return err
		}
	}

	// Light-curve points come from the root plane; refined levels only
	// subdivide pixels and would weight refined regions more.
	numPix := len(planes[0]) / w.off.NumQuantities
	rootLight := planes[0][w.off.Light*numPix : (w.off.Light+1)*numPix]
	sum := 0.0
	for _, v := range rootLight {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	w.times = append(w.times, t)
	w.flux = append(w.flux, sum)
	return nil
}

// Finish closes the movie and writes the light curve.
func (w *Writer) Finish() error {
	if w.movie != nil {
		if err := w.movie.Close(); err != nil {
			return err
		}
		w.movie = nil
	}
	if w.params.LightCurveFile != "" && len(w.times) > 0 {
		return WriteLightCurve(w.params.LightCurveFile, w.times, w.flux, w.slowLight)
	}
	return nil
}
