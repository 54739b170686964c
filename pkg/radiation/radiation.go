// Package radiation turns geodesic samples into images: it samples plasma
// state along each ray, evaluates emission, absorption, and rotation
// coefficients, and integrates the radiative transfer equation from the
// source toward the observer. It also decides, per block, whether the image
// needs further adaptive refinement.
package radiation

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/simdata"
	"github.com/HerculesJack/blacklight/pkg/units"
)

// Pool distributes an index range over workers. fn is called with
// non-overlapping [lo, hi) slices of [0, n); worker identifies the slot whose
// scratch buffers fn may use.
type Pool interface {
	Map(n int, fn func(worker, lo, hi int))
}

// SerialPool runs mapped ranges on the calling goroutine. Tests and
// single-threaded runs use it; the engine supplies a concurrent pool.
type SerialPool struct{}

func (SerialPool) Map(n int, fn func(worker, lo, hi int)) {
	if n > 0 {
		fn(0, 0, n)
	}
}

// primArrays holds one level's sampled primitives, flat [numPix*slots].
type primArrays struct {
	rho, pgas, kappa       []float64
	uu1, uu2, uu3          []float64
	bb1, bb2, bb3          []float64
}

func (p *primArrays) resize(n int) {
	for _, s := range []*[]float64{
		&p.rho, &p.pgas, &p.kappa, &p.uu1, &p.uu2, &p.uu3, &p.bb1, &p.bb2, &p.bb3,
	} {
		if cap(*s) < n {
			*s = make([]float64, n)
		} else {
			*s = (*s)[:n]
		}
	}
}

// Integrator owns the per-level sampling, coefficient, and image arrays. One
// Integrate call processes one refinement level of one snapshot; the caller
// loops until it reports completion.
type Integrator struct {
	cfg  *config.Config
	log  *slog.Logger
	cam  *camera.Camera
	geo  *geodesic.Integrator
	src  simdata.Source
	pool Pool
	off  Offsets

	bhM, bhA  float64
	massMsun  float64
	rgCGS     float64 // gravitational radius GM/c^2 in cm
	dlInv     float64 // invariant path length per unit affine parameter
	polarized bool

	grid      *simdata.Grid
	snapCache map[int]*simdata.Snapshot

	firstTime         bool
	adaptiveLevel     int
	adaptiveNumLevels int

	// Per-level sampling state (simulation model only). Inds is flat
	// [pix*slots*5] holding (block, k, j, i, snapshot); Fracs is flat
	// [pix*slots*4] holding the cell fractions and the snapshot blend.
	sampleInds  [][]int32
	sampleFracs [][]float64
	sampleNaN   [][]bool
	sampleFall  [][]bool
	pixelNaN    [][]bool // per pixel: any sample carries a NaN flag
	prims       []primArrays

	// Per-level transfer coefficients, flat [pix*slots]. The Stokes Q and V
	// arrays stay nil for unpolarized runs.
	jI, jQ, jV             [][]float64
	alphaI, alphaQ, alphaV [][]float64
	rotQ, rotV             [][]float64
	cellVals               [][]float64 // flat [pix*slots*NumCellValues]

	turnStart [][]int

	// Image holds each level's quantity-major pixel data, flat
	// [NumQuantities*numPix].
	Image  [][]float64
	numPix []int

	// Adaptive refinement state.
	refineFlags  [][]bool
	blockScratch [][]float64

	// Wall time spent in the two phases, for run reporting.
	TimeSample    time.Duration
	TimeIntegrate time.Duration
}

// New prepares an integrator bound to a camera and its geodesics. src may be
// nil for the formula model. The pool must provide scratch slots for
// numWorkers workers.
func New(cfg *config.Config, cam *camera.Camera, geo *geodesic.Integrator,
	src simdata.Source, pool Pool, numWorkers int, log *slog.Logger) (*Integrator, error) {
	polarized := cfg.Model == config.ModelSimulation && cfg.Image.Light && cfg.Image.Polarization
	r := &Integrator{
		cfg:       cfg,
		log:       log,
		cam:       cam,
		geo:       geo,
		src:       src,
		pool:      pool,
		off:       ComputeOffsets(cfg.Image, polarized),
		bhM:       1.0,
		bhA:       cfg.Spin(),
		massMsun:  cfg.MassMsun(),
		polarized: polarized,
		firstTime: true,
		snapCache: make(map[int]*simdata.Snapshot),
	}
	r.rgCGS = units.GravitationalRadius(r.massMsun)
	if cfg.Image.Frequency > 0 {
		r.dlInv = r.rgCGS / cfg.Image.Frequency
	}

	if cfg.Model == config.ModelSimulation {
		if src == nil {
			return nil, fmt.Errorf("radiation: simulation model needs a data source")
		}
		grid, err := src.Grid()
		if err != nil {
			return nil, fmt.Errorf("radiation: %w", err)
		}
		r.grid = grid
	}

	if cfg.Adaptive.MaxLevel > 0 {
		bs := cfg.Adaptive.BlockSize
		r.blockScratch = make([][]float64, numWorkers)
		for w := range r.blockScratch {
			r.blockScratch[w] = make([]float64, bs*bs)
		}
	}
	return r, nil
}

// Offsets returns the image vector layout.
func (r *Integrator) Offsets() Offsets { return r.off }

// AdaptiveLevel returns the level the next Integrate call will process.
func (r *Integrator) AdaptiveLevel() int { return r.adaptiveLevel }

// NumLevels returns the highest refinement level reached for the most
// recently completed snapshot.
func (r *Integrator) NumLevels() int { return r.adaptiveNumLevels }

// RefinementFlags returns the per-block refinement decisions of a finished
// level. The caller passes them to the camera to spawn the next level.
func (r *Integrator) RefinementFlags(level int) []bool { return r.refineFlags[level] }

// ensureLevel sizes every per-level array for the given pixel count, reusing
// capacity when a level repeats across snapshots.
func (r *Integrator) ensureLevel(level, numPix, slots int) {
	for len(r.numPix) <= level {
		r.numPix = append(r.numPix, 0)
		r.sampleInds = append(r.sampleInds, nil)
		r.sampleFracs = append(r.sampleFracs, nil)
		r.sampleNaN = append(r.sampleNaN, nil)
		r.sampleFall = append(r.sampleFall, nil)
		r.pixelNaN = append(r.pixelNaN, nil)
		r.prims = append(r.prims, primArrays{})
		r.jI = append(r.jI, nil)
		r.jQ = append(r.jQ, nil)
		r.jV = append(r.jV, nil)
		r.alphaI = append(r.alphaI, nil)
		r.alphaQ = append(r.alphaQ, nil)
		r.alphaV = append(r.alphaV, nil)
		r.rotQ = append(r.rotQ, nil)
		r.rotV = append(r.rotV, nil)
		r.cellVals = append(r.cellVals, nil)
		r.turnStart = append(r.turnStart, nil)
		r.Image = append(r.Image, nil)
		r.refineFlags = append(r.refineFlags, nil)
	}
	r.numPix[level] = numPix
	ns := numPix * slots

	grow := func(s *[]float64, n int) {
		if cap(*s) < n {
			*s = make([]float64, n)
		} else {
			*s = (*s)[:n]
		}
	}
	growBool := func(s *[]bool, n int) {
		if cap(*s) < n {
			*s = make([]bool, n)
		} else {
			*s = (*s)[:n]
		}
	}

	if r.cfg.Model == config.ModelSimulation {
		if cap(r.sampleInds[level]) < ns*5 {
			r.sampleInds[level] = make([]int32, ns*5)
		} else {
			r.sampleInds[level] = r.sampleInds[level][:ns*5]
		}
		grow(&r.sampleFracs[level], ns*4)
		growBool(&r.sampleNaN[level], ns)
		growBool(&r.sampleFall[level], ns)
		growBool(&r.pixelNaN[level], numPix)
		r.prims[level].resize(ns)
	}

	grow(&r.jI[level], ns)
	grow(&r.alphaI[level], ns)
	if r.polarized {
		grow(&r.jQ[level], ns)
		grow(&r.jV[level], ns)
		grow(&r.alphaQ[level], ns)
		grow(&r.alphaV[level], ns)
		grow(&r.rotQ[level], ns)
		grow(&r.rotV[level], ns)
	}
	if r.needCellValues() {
		grow(&r.cellVals[level], ns*NumCellValues)
	}

	if cap(r.turnStart[level]) < numPix {
		r.turnStart[level] = make([]int, numPix)
	} else {
		r.turnStart[level] = r.turnStart[level][:numPix]
	}
	for i := range r.turnStart[level] {
		r.turnStart[level][i] = 0
	}

	grow(&r.Image[level], r.off.NumQuantities*numPix)
	for i := range r.Image[level] {
		r.Image[level][i] = 0
	}
}

// needCellValues reports whether any enabled quantity consumes the sampled
// cell-value vector.
func (r *Integrator) needCellValues() bool {
	im := r.cfg.Image
	return r.cfg.Model == config.ModelSimulation &&
		(im.LambdaAve || im.EmissionAve || im.TauInt || len(r.cfg.Renders) > 0)
}

// Integrate processes the current refinement level of the given snapshot and
// reports whether the snapshot is complete. When it returns false the caller
// must build the next camera level from RefinementFlags and integrate its
// geodesics before calling Integrate again.
func (r *Integrator) Integrate(snapshot int) (bool, error) {
	level := r.adaptiveLevel
	view := r.geo.View(level)
	r.ensureLevel(level, view.NumPix, view.Slots)

	if r.cfg.Model == config.ModelSimulation {
		start := time.Now()
		switch {
		case level > 0:
			r.mapSamples(snapshot, level, view)
		case r.firstTime:
			if r.cfg.Checkpoint.SampleLoad {
				if err := r.loadSampling(level, view); err != nil {
					return false, err
				}
			} else {
				r.mapSamples(snapshot, level, view)
			}
			if r.cfg.Checkpoint.SampleSave {
				if err := r.saveSampling(level, view); err != nil {
					return false, err
				}
			}
		case r.cfg.SlowLight.On:
			r.mapSamples(snapshot, level, view)
		}
		if err := r.extractSamples(snapshot, level, view); err != nil {
			return false, err
		}
		r.TimeSample += time.Since(start)
	}

	start := time.Now()
	if r.cfg.Model == config.ModelSimulation {
		r.simulationCoefficients(level, view)
	} else {
		r.formulaCoefficients(level, view)
	}

	if r.off.ZTurnings >= 0 || r.cfg.Image.CutZTurnings >= 0 {
		r.computeTurnings(level, view)
	}

	if r.polarized {
		r.integratePolarized(level, view)
	} else {
		r.integrateUnpolarized(level, view)
	}

	complete := true
	if r.cfg.Adaptive.MaxLevel > 0 {
		complete = r.checkRefinement(level, view)
	}
	r.TimeIntegrate += time.Since(start)

	if complete {
		r.adaptiveNumLevels = r.adaptiveLevel
		r.adaptiveLevel = 0
		if r.log != nil {
			r.log.Debug("snapshot integration complete",
				"snapshot", snapshot, "levels", r.adaptiveNumLevels+1)
		}
	} else {
		r.adaptiveLevel++
	}
	r.firstTime = false
	return complete, nil
}

// poisoned reports whether a pixel's quantities must all be NaN: fallback is
// configured to poison rather than substitute, and either its geodesic or at
// least one of its samples is flagged.
func (r *Integrator) poisoned(level int, view geodesic.View, m int) bool {
	if !r.cfg.Fallback.NaN {
		return false
	}
	if view.Flags[m] {
		return true
	}
	px := r.pixelNaN[level]
	return px != nil && px[m]
}

// poisonPixel writes NaN into every image slot of one pixel.
func (r *Integrator) poisonPixel(level, m int) {
	nan := math.NaN()
	numPix := r.numPix[level]
	for q := 0; q < r.off.NumQuantities; q++ {
		r.Image[level][q*numPix+m] = nan
	}
}
