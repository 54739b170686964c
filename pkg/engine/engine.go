package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/radiation"
	"github.com/HerculesJack/blacklight/pkg/simdata"
)

// SnapshotResult reports one completed snapshot to the progress callback. The
// image data itself stays with the radiation integrator; callers that write
// outputs read it through Engine accessors before the next snapshot begins.
type SnapshotResult struct {
	Snapshot int
	Time     float64 // coordinate time of the snapshot (slow light), else its index
	Levels   int     // refinement levels used, 1 meaning root only
	FluxSum  float64 // sum of finite root-level Stokes I values
	Elapsed  time.Duration
	Last     bool
}

// Engine wires the camera, geodesic, and radiation stages together and walks
// snapshots and refinement levels to completion.
type Engine struct {
	cfg  *config.Config
	log  *slog.Logger
	pool *WorkerPool
	cam  *camera.Camera
	geo  *geodesic.Integrator
	rad  *radiation.Integrator
	src  simdata.Source

	rootReady bool
	stats     RunStats
}

// New builds the full pipeline from a validated configuration. For the
// simulation model the data source is opened here; construction fails if the
// file cannot be read or its grid is inconsistent.
func New(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	pool := NewWorkerPool(cfg.NumThreads)
	numWorkers := pool.Workers()

	blockSize := 0
	if cfg.Adaptive.MaxLevel > 0 {
		blockSize = cfg.Adaptive.BlockSize
	}
	cam, err := camera.New(cfg.Camera, cfg.Image.Frequency, cfg.Image.Normalization,
		1.0, cfg.Spin(), cfg.Ray.Flat, blockSize)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	geo := geodesic.New(cfg.Ray, 1.0, cfg.Spin(), cam, numWorkers)

	var src simdata.Source
	if cfg.Model == config.ModelSimulation {
		s, err := simdata.Open(cfg.Simulation.File)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		src = s
	}

	rad, err := radiation.New(cfg, cam, geo, src, pool, numWorkers, log)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		cfg:  cfg,
		log:  log,
		pool: pool,
		cam:  cam,
		geo:  geo,
		rad:  rad,
		src:  src,
	}, nil
}

// Camera exposes the pixel grids, for output writers that need block layouts.
func (e *Engine) Camera() *camera.Camera { return e.cam }

// Radiation exposes the integrator holding the per-level images.
func (e *Engine) Radiation() *radiation.Integrator { return e.rad }

// Stats returns the accumulated run statistics.
func (e *Engine) Stats() RunStats {
	s := e.stats
	s.SampleTime = e.rad.TimeSample
	s.IntegrateTime = e.rad.TimeIntegrate
	return s
}

// Run integrates every configured snapshot, invoking progress after each one
// completes. Cancellation is honored between levels; a canceled run returns
// the context error with whatever snapshots finished already reported.
func (e *Engine) Run(ctx context.Context, progress func(SnapshotResult)) error {
	e.pool.Start()
	defer e.pool.Stop()

	runStart := time.Now()
	numSnaps := e.cfg.Snapshots
	if numSnaps < 1 {
		numSnaps = 1
	}

	for snap := 0; snap < numSnaps; snap++ {
		snapStart := time.Now()

		if !e.rootReady {
			if err := e.prepareRoot(ctx); err != nil {
				return err
			}
			e.rootReady = true
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			complete, err := e.rad.Integrate(snap)
			if err != nil {
				return fmt.Errorf("engine: snapshot %d: %w", snap, err)
			}
			if complete {
				break
			}
			level := e.rad.AdaptiveLevel()
			spawned := e.cam.Augment(level, e.rad.RefinementFlags(level-1))
			e.log.Debug("refining image", "snapshot", snap, "level", level, "pixels", spawned)
			e.integrateLevel(level)
		}

		levels := e.rad.NumLevels() + 1
		if levels > e.stats.MaxLevels {
			e.stats.MaxLevels = levels
		}
		e.stats.Snapshots++
		e.stats.TotalTime = time.Since(runStart)

		elapsed := time.Since(snapStart)
		metrics.snapshots.Inc()
		metrics.snapshotSeconds.Observe(elapsed.Seconds())
		metrics.refinementLevels.Set(float64(levels))

		res := SnapshotResult{
			Snapshot: snap,
			Time:     e.snapshotTime(snap),
			Levels:   levels,
			FluxSum:  e.rootFluxSum(),
			Elapsed:  elapsed,
			Last:     snap == numSnaps-1,
		}
		e.log.Info("snapshot complete",
			"snapshot", snap, "levels", levels, "flux_sum", res.FluxSum, "elapsed", elapsed)
		if progress != nil {
			progress(res)
		}
	}
	return nil
}

// prepareRoot integrates or restores the root-level geodesics. The camera is
// fixed for the whole run, so this happens once regardless of snapshot count.
func (e *Engine) prepareRoot(ctx context.Context) error {
	cp := e.cfg.Checkpoint
	if cp.GeodesicLoad {
		e.geo.BeginLevel(0)
		if err := e.geo.Load(cp.GeodesicFile, e.cfg.GeodesicFingerprint()); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.log.Info("geodesics restored", "file", cp.GeodesicFile)
	} else {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.integrateLevel(0)
	}
	if cp.GeodesicSave {
		if err := e.geo.Save(cp.GeodesicFile, e.cfg.GeodesicFingerprint()); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.log.Info("geodesics saved", "file", cp.GeodesicFile)
	}
	return nil
}

// integrateLevel runs one level's geodesics across the pool and folds its
// statistics into the run totals.
func (e *Engine) integrateLevel(level int) {
	start := time.Now()
	e.geo.BeginLevel(level)
	e.pool.Map(e.cam.NumPix[level], func(worker, lo, hi int) {
		e.geo.IntegrateRange(level, worker, lo, hi)
	})
	stats := e.geo.FinishLevel(level)

	e.stats.Geodesics.Steps += stats.Steps
	e.stats.Geodesics.Rejected += stats.Rejected
	e.stats.Geodesics.Evaluations += stats.Evaluations
	metrics.geodesicSteps.Add(float64(stats.Steps))
	metrics.geodesicRejected.Add(float64(stats.Rejected))

	e.log.Debug("geodesics integrated",
		"level", level, "pixels", e.cam.NumPix[level],
		"steps", stats.Steps, "rejected", stats.Rejected,
		"elapsed", time.Since(start))
}

// snapshotTime gives the coordinate time attached to a snapshot's image. With
// slow light off the snapshot index stands in.
func (e *Engine) snapshotTime(snap int) float64 {
	if e.cfg.SlowLight.On {
		return e.cfg.SlowLight.TStart + e.cfg.SlowLight.DT*float64(snap)
	}
	return float64(snap)
}

// rootFluxSum sums the finite Stokes I values of the root image. It is a
// relative light-curve measure; absolute flux needs a source distance, which
// the run does not know.
func (e *Engine) rootFluxSum() float64 {
	off := e.rad.Offsets()
	if off.Light < 0 || len(e.rad.Image) == 0 {
		return 0
	}
	numPix := e.cam.NumPix[0]
	light := e.rad.Image[0][off.Light*numPix : (off.Light+1)*numPix]
	sum := 0.0
	for _, v := range light {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}
