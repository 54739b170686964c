package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/simdata"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRayParams() config.RayParams {
	return config.RayParams{
		Terminate:  config.TerminateMultiplicative,
		Factor:     1.005,
		Step:       0.01,
		MaxSteps:   10000,
		MaxRetries: 25,
		TolAbs:     1e-8,
		TolRel:     1e-8,
		ErrFactor:  0.9,
		MinFactor:  0.2,
		MaxFactor:  5.0,
	}
}

func formulaConfig(res int) *config.Config {
	return &config.Config{
		Model:     config.ModelFormula,
		Snapshots: 1,
		Formula: config.FormulaParams{
			Mass:  6.5e14,
			Spin:  0.9,
			R0:    8,
			H:     0.5,
			L0:    1,
			Q:     0.5,
			NuP:   2.3e11,
			CN0:   3e-18,
			Alpha: -3,
			A:     0,
			Beta:  2.5,
		},
		Camera: config.CameraParams{
			Type:       config.CameraPlane,
			R:          100,
			Th:         math.Pi / 3,
			KR:         -1,
			Width:      24,
			Resolution: res,
		},
		Ray: testRayParams(),
		Image: config.ImageParams{
			Light:     true,
			Frequency: 230e9,
			Tau:       true,
		},
		Adaptive: config.AdaptiveParams{
			ValFrac: -1, AbsGradFrac: -1, RelGradFrac: -1, AbsLaplFrac: -1, RelLaplFrac: -1,
		},
	}
}

func TestWorkerPoolMapCoversRange(t *testing.T) {
	wp := NewWorkerPool(4)
	wp.Start()
	defer wp.Stop()

	n := 1000
	hits := make([]int32, n)
	maxWorker := int32(-1)
	wp.Map(n, func(worker, lo, hi int) {
		if int32(worker) > atomic.LoadInt32(&maxWorker) {
			atomic.StoreInt32(&maxWorker, int32(worker))
		}
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
	if int(maxWorker) >= wp.Workers() {
		t.Errorf("worker id %d out of range for %d workers", maxWorker, wp.Workers())
	}

	// An empty range is a no-op, and the pool is reusable.
	wp.Map(0, func(worker, lo, hi int) { t.Error("mapped an empty range") })
	total := int32(0)
	wp.Map(7, func(worker, lo, hi int) { atomic.AddInt32(&total, int32(hi-lo)) })
	if total != 7 {
		t.Errorf("second Map covered %d indices, want 7", total)
	}
}

func TestEngineFormulaRun(t *testing.T) {
	cfg := formulaConfig(4)
	cfg.NumThreads = 2
	e, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var results []SnapshotResult
	if err := e.Run(context.Background(), func(r SnapshotResult) {
		results = append(results, r)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !r.Last || r.Snapshot != 0 {
		t.Errorf("result = %+v, want last snapshot 0", r)
	}
	if r.Levels != 1 {
		t.Errorf("levels = %d, want 1 without refinement", r.Levels)
	}
	if !(r.FluxSum > 0) {
		t.Errorf("flux sum = %v, want positive", r.FluxSum)
	}

	stats := e.Stats()
	if stats.Snapshots != 1 || stats.Geodesics.Steps == 0 {
		t.Errorf("stats = %+v, want one snapshot with geodesic work", stats)
	}
	if stats.Summary() == "" {
		t.Error("empty stats summary")
	}
}

func TestEngineCancellation(t *testing.T) {
	cfg := formulaConfig(4)
	e, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = e.Run(ctx, func(SnapshotResult) { called = true })
	if err != context.Canceled {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("progress reported on a canceled run")
	}
}

func TestEngineAdaptiveRefinesToCeiling(t *testing.T) {
	cfg := formulaConfig(4)
	cfg.Adaptive.MaxLevel = 1
	cfg.Adaptive.BlockSize = 2
	// A value criterion every pixel satisfies: each block refines until the
	// level ceiling stops the cascade.
	cfg.Adaptive.ValFrac = 0
	cfg.Adaptive.ValCut = -1

	e, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var last SnapshotResult
	if err := e.Run(context.Background(), func(r SnapshotResult) { last = r }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last.Levels != 2 {
		t.Errorf("levels = %d, want 2 (root plus one refinement)", last.Levels)
	}
	if e.Stats().MaxLevels != 2 {
		t.Errorf("stats max levels = %d, want 2", e.Stats().MaxLevels)
	}
}

func TestEngineSimulationRunFromFile(t *testing.T) {
	g := simdata.UniformGrid(1.5, 60, 48, 24, 16)
	names := []string{
		simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
		simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
		simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
	}
	snap := simdata.FillSnapshot(g, 0, names, func(name string, r, th, _ float64) float64 {
		h := math.Cos(th)
		envelope := math.Exp(-0.5 * (r * r / 64.0) * (1 + 4*h*h))
		switch name {
		case simdata.VarRho:
			return envelope
		case simdata.VarPGas:
			return 0.1 * envelope
		case simdata.VarBB1:
			return 0.01 * envelope
		}
		return 0
	})
	path := t.TempDir() + "/torus.gob"
	if err := simdata.Write(path, simdata.NewStaticSource(g, []*simdata.Snapshot{snap}, 0)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cfg := &config.Config{
		Model:     config.ModelSimulation,
		Snapshots: 1,
		Simulation: config.SimulationParams{
			File:   path,
			Spin:   0,
			MMsun:  4.1e6,
			RhoCGS: 1e-16,
			Interp: true,
		},
		Plasma: config.PlasmaParams{
			Mu:       0.5,
			NeNi:     1.0,
			Model:    config.PlasmaTiTeBeta,
			RatLow:   1,
			RatHigh:  10,
			SigmaMax: -1,
		},
		Camera: config.CameraParams{
			Type:       config.CameraPlane,
			R:          50,
			Th:         math.Pi / 3,
			KR:         -1,
			Width:      20,
			Resolution: 4,
		},
		Ray: testRayParams(),
		Image: config.ImageParams{
			Light:     true,
			Frequency: 230e9,
		},
	}

	e, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var last SnapshotResult
	if err := e.Run(context.Background(), func(r SnapshotResult) { last = r }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !(last.FluxSum > 0) {
		t.Errorf("flux sum = %v, want positive", last.FluxSum)
	}

	off := e.Radiation().Offsets()
	numPix := 16
	for m := 0; m < numPix; m++ {
		if v := e.Radiation().Image[0][off.Light*numPix+m]; math.IsNaN(v) || v < 0 {
			t.Errorf("pixel %d intensity = %v", m, v)
		}
	}
}

func TestEngineGeodesicCheckpointRoundTrip(t *testing.T) {
	path := t.TempDir() + "/geodesics.ckpt"

	cfg := formulaConfig(2)
	cfg.Checkpoint.GeodesicSave = true
	cfg.Checkpoint.GeodesicFile = path
	e, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run with save: %v", err)
	}

	cfg2 := formulaConfig(2)
	cfg2.Checkpoint.GeodesicLoad = true
	cfg2.Checkpoint.GeodesicFile = path
	e2, err := New(cfg2, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e2.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run with load: %v", err)
	}
	if e2.Stats().Geodesics.Steps != 0 {
		t.Errorf("restored run integrated %d steps, want 0", e2.Stats().Geodesics.Steps)
	}

	off := e.Radiation().Offsets()
	for m := 0; m < 4; m++ {
		a := e.Radiation().Image[0][off.Light*4+m]
		b := e2.Radiation().Image[0][off.Light*4+m]
		if math.Float64bits(a) != math.Float64bits(b) {
			t.Errorf("pixel %d differs after checkpoint reuse: %v vs %v", m, a, b)
		}
	}
}
