package radiation

import (
	"math"
	"testing"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/simdata"
)

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
			Mass:  6.5e14, // GM/c^2 in cm
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
			Time:      true,
			Lambda:    true,
			Tau:       true,
		},
	}
}

// buildRun integrates every root-level geodesic and returns the pieces a
// radiation integrator needs.
func buildRun(t *testing.T, cfg *config.Config, src simdata.Source) (*camera.Camera, *geodesic.Integrator, *Integrator) {
	t.Helper()
	cam, err := camera.New(cfg.Camera, cfg.Image.Frequency, cfg.Image.Normalization,
		1, cfg.Spin(), cfg.Ray.Flat, cfg.Adaptive.BlockSize)
	if err != nil {
		t.Fatalf("camera.New: %v", err)
	}
	geo := geodesic.New(cfg.Ray, 1, cfg.Spin(), cam, 1)
	geo.BeginLevel(0)
	geo.IntegrateRange(0, 0, 0, cam.NumPix[0])
	geo.FinishLevel(0)
	rad, err := New(cfg, cam, geo, src, SerialPool{}, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cam, geo, rad
}

func TestOffsetsLayout(t *testing.T) {
	im := config.ImageParams{
		Light: true, Time: true, Length: true, Lambda: true, Emission: true,
		Tau: true, LambdaAve: true, EmissionAve: true, TauInt: true, ZTurnings: true,
	}
	off := ComputeOffsets(im, false)
	want := 1 + 5 + 3*NumCellValues + 1
	if off.NumQuantities != want {
		t.Errorf("NumQuantities = %d, want %d", off.NumQuantities, want)
	}
	if off.Light != 0 || off.Time != 1 || off.Tau != 5 {
		t.Errorf("unexpected scalar offsets %d/%d/%d", off.Light, off.Time, off.Tau)
	}
	if off.ZTurnings != want-1 {
		t.Errorf("z_turnings offset = %d, want last slot %d", off.ZTurnings, want-1)
	}

	// Polarization widens the light block by three slots and shifts the rest.
	pol := ComputeOffsets(im, true)
	if pol.NumQuantities != want+3 {
		t.Errorf("polarized NumQuantities = %d, want %d", pol.NumQuantities, want+3)
	}
	if pol.Time != 4 {
		t.Errorf("polarized time offset = %d, want 4", pol.Time)
	}

	// Disabling a quantity removes its slot and compacts later offsets.
	im.Time = false
	off = ComputeOffsets(im, false)
	if off.Time != -1 || off.Length != 1 {
		t.Errorf("disabled time: offsets %d/%d, want -1/1", off.Time, off.Length)
	}

	names := pol.QuantityNames()
	if len(names) != pol.NumQuantities {
		t.Fatalf("QuantityNames length = %d, want %d", len(names), pol.NumQuantities)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if n == "" {
			t.Error("unnamed image slot")
		}
		if seen[n] {
			t.Errorf("duplicate quantity name %q", n)
		}
		seen[n] = true
	}
}

func TestFormulaImageIsFiniteAndNonNegative(t *testing.T) {
	cfg := formulaConfig(4)
	_, _, rad := buildRun(t, cfg, nil)

	complete, err := rad.Integrate(0)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if !complete {
		t.Fatal("non-adaptive run must complete in one pass")
	}

	off := rad.Offsets()
	numPix := cfg.Camera.Resolution * cfg.Camera.Resolution
	anyLight := false
	for m := 0; m < numPix; m++ {
		i := rad.Image[0][off.Light*numPix+m]
		if math.IsNaN(i) || i < 0 {
			t.Errorf("pixel %d intensity = %v", m, i)
		}
		if i > 0 {
			anyLight = true
		}
		tau := rad.Image[0][off.Tau*numPix+m]
		if cfg.Formula.A == 0 && tau != 0 {
			t.Errorf("pixel %d optical depth = %v with zero absorption", m, tau)
		}
		if lam := rad.Image[0][off.Lambda*numPix+m]; lam <= 0 {
			t.Errorf("pixel %d affine length = %v, want positive", m, lam)
		}
		// Arrival time is the source-most sample's coordinate time, which
		// lies in the past of the camera's t = 0.
		if tt := rad.Image[0][off.Time*numPix+m]; tt >= 0 {
			t.Errorf("pixel %d source time = %v, want negative", m, tt)
		}
	}
	if !anyLight {
		t.Error("torus emission produced a completely dark image")
	}
}

func TestFallbackNaNPoisonsFlaggedPixel(t *testing.T) {
	cfg := formulaConfig(2)
	cfg.Fallback.NaN = true
	_, geo, rad := buildRun(t, cfg, nil)
	geo.Flags[0][1] = true

	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	off := rad.Offsets()
	numPix := 4
	for q := 0; q < off.NumQuantities; q++ {
		if v := rad.Image[0][q*numPix+1]; !math.IsNaN(v) {
			t.Errorf("quantity %d of flagged pixel = %v, want NaN", q, v)
		}
		if v := rad.Image[0][q*numPix+0]; math.IsNaN(v) {
			t.Errorf("quantity %d of clean pixel is NaN", q)
		}
	}
}

func TestUpdateIntensityLimits(t *testing.T) {
	// Optically thin: a pure emission increment.
	i, dTau := updateIntensity(0, 2.0, 0, 0.5)
	if dTau != 0 {
		t.Errorf("thin dTau = %v, want 0", dTau)
	}
	if i != 1.0 {
		t.Errorf("thin intensity = %v, want 1", i)
	}
	// Optically thick: the intensity saturates at the source function.
	i, dTau = updateIntensity(0, 3.0, 6.0, 1e6)
	if math.Abs(i-0.5) > 1e-12 {
		t.Errorf("thick intensity = %v, want source function 0.5", i)
	}
	if dTau != 6e6 {
		t.Errorf("thick dTau = %v, want 6e6", dTau)
	}
	// Optical depth accumulates monotonically across repeated segments.
	i = 10.0
	prev := i
	for n := 0; n < 5; n++ {
		i, _ = updateIntensity(i, 0, 1.0, 0.3)
		if i >= prev {
			t.Fatalf("absorption-only intensity rose: %v -> %v", prev, i)
		}
		prev = i
	}
}

func TestCountZTurnings(t *testing.T) {
	// A ray oscillating in z with long smooth arcs: three direction
	// reversals separated by more than the guard interval.
	var z []float64
	for n := 0; n < 40; n++ {
		z = append(z, float64(n))
	}
	for n := 0; n < 40; n++ {
		z = append(z, 39-float64(n+1))
	}
	for n := 0; n < 40; n++ {
		z = append(z, -1+float64(n+1))
	}
	at := func(n int) float64 { return z[n] }

	count, start := countZTurnings(at, len(z), -1)
	if count != 2 {
		t.Errorf("turning count = %d, want 2", count)
	}
	if start != 0 {
		t.Errorf("start without cut = %d, want 0", start)
	}

	// Cutting after the first turning starts integration partway in.
	count, start = countZTurnings(at, len(z), 0)
	if count != 2 {
		t.Errorf("turning count with cut = %d, want 2", count)
	}
	if start <= 0 || start >= len(z) {
		t.Errorf("cut start = %d, want interior index", start)
	}

	// Monotone rays have no turnings.
	count, start = countZTurnings(func(n int) float64 { return float64(n) }, 80, 0)
	if count != 0 || start != 0 {
		t.Errorf("monotone ray: count/start = %d/%d, want 0/0", count, start)
	}
}

func TestRefineBlockCriteria(t *testing.T) {
	bs := 4
	flat := make([]float64, bs*bs)
	for i := range flat {
		flat[i] = 1.0
	}
	edge := make([]float64, bs*bs)
	for v := 0; v < bs; v++ {
		for u := 0; u < bs; u++ {
			if u >= bs/2 {
				edge[v*bs+u] = 10.0
			}
		}
	}
	off := config.AdaptiveParams{
		ValFrac: -1, AbsGradFrac: -1, RelGradFrac: -1, AbsLaplFrac: -1, RelLaplFrac: -1,
	}

	t.Run("no criteria never refines", func(t *testing.T) {
		if refineBlock(off, edge, bs) {
			t.Error("refined with every criterion disabled")
		}
	})
	t.Run("value cut", func(t *testing.T) {
		ad := off
		ad.ValFrac, ad.ValCut = 0.25, 5.0
		if !refineBlock(ad, edge, bs) {
			t.Error("half the block exceeds the cut but no refinement")
		}
		if refineBlock(ad, flat, bs) {
			t.Error("uniform block refined on value")
		}
	})
	t.Run("gradient cut", func(t *testing.T) {
		ad := off
		ad.AbsGradFrac, ad.AbsGradCut = 0.2, 1.0
		if !refineBlock(ad, edge, bs) {
			t.Error("sharp edge not refined on gradient")
		}
		if refineBlock(ad, flat, bs) {
			t.Error("uniform block refined on gradient")
		}
	})
	t.Run("relative laplacian", func(t *testing.T) {
		ad := off
		ad.RelLaplFrac, ad.RelLaplCut = 0.1, 0.5
		if !refineBlock(ad, edge, bs) {
			t.Error("edge not refined on relative laplacian")
		}
	})
}

func TestBesselApproximations(t *testing.T) {
	// Reference values from Abramowitz & Stegun tables.
	tests := []struct {
		fn   func(float64) float64
		x    float64
		want float64
		name string
	}{
		{besselK0, 1.0, 0.4210244, "K0(1)"},
		{besselK0, 2.0, 0.1138939, "K0(2)"},
		{besselK1, 1.0, 0.6019072, "K1(1)"},
		{besselK1, 0.5, 1.6564411, "K1(0.5)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.x)
			if math.Abs(got-tt.want)/tt.want > 1e-5 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	// The recurrence defining K2 holds by construction; spot-check its
	// magnitude against the tabulated K2(1).
	if got := besselK2(1.0); math.Abs(got-1.6248389)/1.6248389 > 1e-5 {
		t.Errorf("K2(1) = %v, want 1.6248389", got)
	}
}

func simulationConfig(res int) *config.Config {
	cfg := &config.Config{
		Model:     config.ModelSimulation,
		Snapshots: 1,
		Simulation: config.SimulationParams{
			File:   "unused.gob",
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
			Resolution: res,
		},
		Ray: testRayParams(),
		Image: config.ImageParams{
			Light:     true,
			Frequency: 230e9,
			Tau:       true,
		},
	}
	return cfg
}

// torusSource builds a synthetic single-block data set with a gas torus and
// a weak vertical field.
func torusSource() *simdata.StaticSource {
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
	return simdata.NewStaticSource(g, []*simdata.Snapshot{snap}, 0)
}

func TestSimulationImageFromSyntheticTorus(t *testing.T) {
	cfg := simulationConfig(4)
	src := torusSource()
	_, _, rad := buildRun(t, cfg, src)

	complete, err := rad.Integrate(0)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if !complete {
		t.Fatal("non-adaptive run must complete in one pass")
	}

	off := rad.Offsets()
	numPix := 16
	anyLight := false
	for m := 0; m < numPix; m++ {
		i := rad.Image[0][off.Light*numPix+m]
		if math.IsNaN(i) || i < 0 {
			t.Errorf("pixel %d intensity = %v", m, i)
		}
		if i > 0 {
			anyLight = true
		}
		if tau := rad.Image[0][off.Tau*numPix+m]; math.IsNaN(tau) || tau < 0 {
			t.Errorf("pixel %d optical depth = %v", m, tau)
		}
	}
	if !anyLight {
		t.Error("synthetic torus produced a completely dark image")
	}
}

func TestSimulationFallbackValuesOutsideGrid(t *testing.T) {
	cfg := simulationConfig(2)
	// A grid far smaller than the ray paths: most samples fall outside and
	// must take the fallback state rather than poisoning the image.
	cfg.Fallback = config.FallbackParams{NaN: false, Rho: 0, PGas: 0}
	g := simdata.UniformGrid(3, 5, 8, 8, 8)
	names := []string{
		simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
		simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
		simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
	}
	snap := simdata.FillSnapshot(g, 0, names, func(name string, _, _, _ float64) float64 {
		if name == simdata.VarRho {
			return 1
		}
		return 0
	})
	src := simdata.NewStaticSource(g, []*simdata.Snapshot{snap}, 0)
	_, _, rad := buildRun(t, cfg, src)

	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	off := rad.Offsets()
	for m := 0; m < 4; m++ {
		if v := rad.Image[0][off.Light*4+m]; math.IsNaN(v) {
			t.Errorf("pixel %d poisoned despite value fallback", m)
		}
	}
}

// scaledTorusSource builds one torus snapshot per scale factor, with the gas
// density and pressure of snapshot n multiplied by scales[n].
func scaledTorusSource(scales ...float64) *simdata.StaticSource {
	g := simdata.UniformGrid(1.5, 60, 48, 24, 16)
	names := []string{
		simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
		simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
		simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
	}
	var snaps []*simdata.Snapshot
	for n, sc := range scales {
		snap := simdata.FillSnapshot(g, float64(n), names, func(name string, r, th, _ float64) float64 {
			h := math.Cos(th)
			envelope := math.Exp(-0.5 * (r * r / 64.0) * (1 + 4*h*h))
			switch name {
			case simdata.VarRho:
				return sc * envelope
			case simdata.VarPGas:
				return 0.1 * sc * envelope
			case simdata.VarBB1:
				return 0.01 * envelope
			}
			return 0
		})
		snaps = append(snaps, snap)
	}
	return simdata.NewStaticSource(g, snaps, 0)
}

func TestFastLightReadsEachSnapshot(t *testing.T) {
	cfg := simulationConfig(2)
	cfg.Snapshots = 2
	src := scaledTorusSource(1, 2)
	_, _, rad := buildRun(t, cfg, src)

	off := rad.Offsets()
	flux := func() float64 {
		sum := 0.0
		for m := 0; m < 4; m++ {
			sum += rad.Image[0][off.Light*4+m]
		}
		return sum
	}

	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate snapshot 0: %v", err)
	}
	f0 := flux()
	if _, err := rad.Integrate(1); err != nil {
		t.Fatalf("Integrate snapshot 1: %v", err)
	}
	f1 := flux()

	if !(f0 > 0) || math.IsNaN(f0) {
		t.Fatalf("snapshot 0 flux = %v, want positive", f0)
	}
	if math.IsNaN(f1) {
		t.Fatalf("snapshot 1 flux = %v", f1)
	}
	// Snapshot 1 has twice the gas density and must render brighter.
	if f1 <= f0 {
		t.Errorf("snapshot fluxes %v then %v; denser snapshot must be brighter", f0, f1)
	}
}

// countingSource counts how often field data is read from the backing store.
type countingSource struct {
	*simdata.StaticSource
	loads int
}

func (c *countingSource) Snapshot(n int) (*simdata.Snapshot, error) {
	c.loads++
	return c.StaticSource.Snapshot(n)
}

func TestSlowLightChunkPrefetch(t *testing.T) {
	build := func(chunk int) (*countingSource, *Integrator) {
		cfg := simulationConfig(2)
		cfg.Snapshots = 4
		cfg.SlowLight = config.SlowLightParams{
			On: true, Interp: true, ChunkSize: chunk, TStart: 0, DT: 1e6,
		}
		g := simdata.UniformGrid(1.5, 60, 16, 8, 8)
		names := []string{
			simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
			simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
			simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
		}
		var snaps []*simdata.Snapshot
		for n := 0; n < 4; n++ {
			snaps = append(snaps, simdata.FillSnapshot(g, float64(n)*1e6, names,
				func(name string, _, _, _ float64) float64 {
					switch name {
					case simdata.VarRho:
						return 1
					case simdata.VarPGas:
						return 0.1
					case simdata.VarBB1:
						return 0.01
					}
					return 0
				}))
		}
		src := &countingSource{StaticSource: simdata.NewStaticSource(g, snaps, 1e6)}
		_, _, rad := buildRun(t, cfg, src)
		return src, rad
	}

	src, rad := build(4)
	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if src.loads != 4 {
		t.Errorf("chunked run loaded %d snapshots up front, want the whole chunk of 4", src.loads)
	}
	for snap := 1; snap < 4; snap++ {
		if _, err := rad.Integrate(snap); err != nil {
			t.Fatalf("Integrate snapshot %d: %v", snap, err)
		}
	}
	if src.loads != 4 {
		t.Errorf("chunked run re-read snapshots: %d loads total, want 4", src.loads)
	}

	src, rad = build(1)
	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if src.loads != 1 {
		t.Errorf("unchunked run loaded %d snapshots, want 1", src.loads)
	}
}

func TestFallbackNaNPoisonsSampleFlaggedPixels(t *testing.T) {
	cfg := simulationConfig(2)
	cfg.Fallback = config.FallbackParams{NaN: true}
	cfg.Image.Lambda = true
	// A grid far smaller than the ray paths: every ray carries out-of-domain
	// samples, so every pixel must poison completely, path quantities
	// included.
	g := simdata.UniformGrid(3, 5, 8, 8, 8)
	names := []string{
		simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
		simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
		simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
	}
	snap := simdata.FillSnapshot(g, 0, names, func(name string, _, _, _ float64) float64 {
		if name == simdata.VarRho {
			return 1
		}
		return 0
	})
	src := simdata.NewStaticSource(g, []*simdata.Snapshot{snap}, 0)
	_, _, rad := buildRun(t, cfg, src)

	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	off := rad.Offsets()
	for m := 0; m < 4; m++ {
		for q := 0; q < off.NumQuantities; q++ {
			if v := rad.Image[0][q*4+m]; !math.IsNaN(v) {
				t.Errorf("quantity %d of pixel %d = %v, want NaN", q, m, v)
			}
		}
		if v := rad.Image[0][off.Lambda*4+m]; !math.IsNaN(v) {
			t.Errorf("affine length of pixel %d = %v, want NaN", m, v)
		}
	}
}

func TestSynchrotronCoefficientsBehave(t *testing.T) {
	plasma := config.PlasmaParams{
		Mu: 0.5, NeNi: 1, Model: config.PlasmaTiTeBeta, SigmaMax: -1,
	}
	c := synchrotronCoefficients(plasma, 1e6, 10, 10, 230e9, 0.8, 0.6, false)
	if !(c.jI > 0) || !(c.aI > 0) {
		t.Fatalf("thermal coefficients = %+v, want positive", c)
	}
	// Kirchhoff: the source function matches the Planck function.
	s := c.jI / c.aI
	b := planck(230e9, 10)
	if math.Abs(s-b)/b > 1e-10 {
		t.Errorf("thermal source function = %v, want Planck %v", s, b)
	}

	// No field, no synchrotron.
	c = synchrotronCoefficients(plasma, 1e6, 0, 10, 230e9, 0.8, 0.6, false)
	if c.jI != 0 || c.aI != 0 {
		t.Errorf("zero-field coefficients = %+v, want zero", c)
	}

	// Polarized circular emission flips sign with the field projection.
	cPlus := synchrotronCoefficients(plasma, 1e6, 10, 10, 230e9, 0.8, 0.6, true)
	cMinus := synchrotronCoefficients(plasma, 1e6, 10, 10, 230e9, 0.8, -0.6, true)
	if cPlus.jV <= 0 || cMinus.jV >= 0 {
		t.Errorf("j_V sign does not track cos(theta): %v / %v", cPlus.jV, cMinus.jV)
	}
	if cPlus.jQ <= 0 || cPlus.jQ >= cPlus.jI {
		t.Errorf("j_Q = %v, want within (0, j_I = %v)", cPlus.jQ, cPlus.jI)
	}
}

func TestSampleCheckpointRoundTrip(t *testing.T) {
	cfg := simulationConfig(2)
	cfg.Checkpoint.SampleSave = true
	cfg.Checkpoint.SampleFile = t.TempDir() + "/sample.ckpt"
	src := torusSource()
	_, _, rad := buildRun(t, cfg, src)
	if _, err := rad.Integrate(0); err != nil {
		t.Fatalf("Integrate with save: %v", err)
	}

	cfg2 := simulationConfig(2)
	cfg2.Checkpoint.SampleLoad = true
	cfg2.Checkpoint.SampleFile = cfg.Checkpoint.SampleFile
	_, _, rad2 := buildRun(t, cfg2, src)
	if _, err := rad2.Integrate(0); err != nil {
		t.Fatalf("Integrate with load: %v", err)
	}

	off := rad.Offsets()
	for m := 0; m < 4; m++ {
		a := rad.Image[0][off.Light*4+m]
		b := rad2.Image[0][off.Light*4+m]
		if math.Float64bits(a) != math.Float64bits(b) {
			t.Errorf("pixel %d differs after checkpoint reuse: %v vs %v", m, a, b)
		}
	}
}
