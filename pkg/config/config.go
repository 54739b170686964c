// Package config defines the validated run configuration.
//
// A Config is built once from a key = value input deck, validated as a unit
// with all fatal diagnostics collected before aborting, and is read-only
// afterwards. Options that do not apply to the active model are ignored with
// a logged warning rather than an error.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ModelType selects the source of plasma state along each ray.
type ModelType int

const (
	ModelUnknown ModelType = iota
	// ModelSimulation samples externally supplied grid data.
	ModelSimulation
	// ModelFormula evaluates a closed-form torus model.
	ModelFormula
)

func (m ModelType) String() string {
	switch m {
	case ModelSimulation:
		return "simulation"
	case ModelFormula:
		return "formula"
	}
	return "unknown"
}

// CameraType selects the projection used to build the pixel grid.
type CameraType int

const (
	// CameraPlane places pixels on a plane with parallel ray directions.
	CameraPlane CameraType = iota
	// CameraPinhole shares one position and fans ray directions per pixel.
	CameraPinhole
)

func (c CameraType) String() string {
	if c == CameraPinhole {
		return "pinhole"
	}
	return "plane"
}

// RayTerminate selects how the inner termination radius is derived from the
// horizon radius r_hor = M + sqrt(M^2 - a^2).
type RayTerminate int

const (
	// TerminatePhoton stops rays at the prograde equatorial photon orbit.
	TerminatePhoton RayTerminate = iota
	// TerminateMultiplicative stops rays at factor * r_hor.
	TerminateMultiplicative
	// TerminateAdditive stops rays at r_hor + factor.
	TerminateAdditive
)

func (r RayTerminate) String() string {
	switch r {
	case TerminateMultiplicative:
		return "multiplicative"
	case TerminateAdditive:
		return "additive"
	}
	return "photon"
}

// FrequencyNormalization selects where the image frequency is measured.
type FrequencyNormalization int

const (
	// NormalizeCamera fixes the photon frequency in the camera frame.
	NormalizeCamera FrequencyNormalization = iota
	// NormalizeInfinity fixes the conserved frequency at infinity.
	NormalizeInfinity
)

func (f FrequencyNormalization) String() string {
	if f == NormalizeInfinity {
		return "infinity"
	}
	return "camera"
}

// PlasmaModel selects how the electron temperature is derived from sampled
// fluid variables.
type PlasmaModel int

const (
	// PlasmaTiTeBeta prescribes the ion/electron temperature ratio as a
	// function of plasma beta between RatLow and RatHigh.
	PlasmaTiTeBeta PlasmaModel = iota
	// PlasmaCodeKappa reads an electron entropy proxy directly from the data.
	PlasmaCodeKappa
)

func (p PlasmaModel) String() string {
	if p == PlasmaCodeKappa {
		return "code_kappa"
	}
	return "ti_te_beta"
}

// RenderFeatureType selects how a rendered feature maps cell values to color.
type RenderFeatureType int

const (
	// RenderFill accumulates opacity throughout a value range.
	RenderFill RenderFeatureType = iota
	// RenderRise marks surfaces where the value crosses a threshold upward.
	RenderRise
	// RenderFall marks surfaces where the value crosses a threshold downward.
	RenderFall
)

func (r RenderFeatureType) String() string {
	switch r {
	case RenderRise:
		return "rise"
	case RenderFall:
		return "fall"
	}
	return "fill"
}

// FormulaParams parameterizes the closed-form torus plasma model.
type FormulaParams struct {
	Mass  float64 // black hole mass in gravitational units (cm)
	Spin  float64 // dimensionless spin a/M
	R0    float64 // density scale radius
	H     float64 // vertical compression
	L0    float64 // angular momentum scale
	Q     float64 // angular momentum radial power
	NuP   float64 // reference frequency in Hz
	CN0   float64 // emission normalization
	Alpha float64 // emission spectral index
	A     float64 // absorption normalization ratio
	Beta  float64 // absorption spectral index offset
}

// SimulationParams parameterizes sampling of external grid data.
type SimulationParams struct {
	File        string  // path to the pre-extracted data file
	Spin        float64 // dimensionless spin a/M of the supplying simulation
	MMsun       float64 // black hole mass in solar masses
	RhoCGS      float64 // density unit in g/cm^3
	Interp      bool    // multilinear interpolation within cells
	BlockInterp bool    // interpolation aware of block seams
}

// PlasmaParams parameterizes the electron population blend.
type PlasmaParams struct {
	Mu        float64     // mean molecular weight
	NeNi      float64     // electron-to-ion number density ratio
	Model     PlasmaModel // electron temperature prescription
	RatLow    float64     // Ti/Te at low plasma beta
	RatHigh   float64     // Ti/Te at high plasma beta
	PowerFrac float64     // fraction of power-law electrons
	P         float64     // power-law index
	GammaMin  float64     // power-law minimum Lorentz factor
	GammaMax  float64     // power-law maximum Lorentz factor
	KappaFrac float64     // fraction of kappa-distribution electrons
	Kappa     float64     // kappa index
	W         float64     // kappa width parameter
	SigmaMax  float64     // magnetization ceiling; cells above are left dark
}

// ThermalFrac returns the thermal electron fraction implied by the blend.
func (p PlasmaParams) ThermalFrac() float64 {
	return 1.0 - (p.PowerFrac + p.KappaFrac)
}

// SlowLightParams parameterizes time-consistent sampling across snapshots.
type SlowLightParams struct {
	On        bool
	Interp    bool    // interpolate between bracketing snapshots
	ChunkSize int     // snapshots held in memory at once
	TStart    float64 // coordinate time of the first snapshot
	DT        float64 // coordinate time between snapshots
}

// FallbackParams controls how invalid or out-of-domain samples contribute.
type FallbackParams struct {
	NaN   bool    // true: flagged samples poison their pixel with NaN
	Rho   float64 // fallback density
	PGas  float64 // fallback gas pressure (ti_te_beta model)
	Kappa float64 // fallback electron entropy (code_kappa model)
}

// CameraParams positions the observer and spans the image plane.
type CameraParams struct {
	Type       CameraType
	R          float64 // radial coordinate of the camera
	Th         float64 // polar angle in radians
	Ph         float64 // azimuthal angle in radians
	URn        float64 // normal-frame radial velocity
	UThn       float64 // normal-frame polar velocity
	UPhn       float64 // normal-frame azimuthal velocity
	KR         float64 // look direction, radial component
	KTh        float64 // look direction, polar component
	KPh        float64 // look direction, azimuthal component
	Rotation   float64 // image plane rotation in radians
	Width      float64 // full image width in gravitational units
	Resolution int     // pixels per side
	Pole       bool    // camera on the polar axis; use alternate up vector
}

// RayParams controls geodesic integration.
type RayParams struct {
	Flat       bool         // bypass gravity; straight rays
	Terminate  RayTerminate // inner termination rule
	Factor     float64      // termination radius parameter
	Step       float64      // initial step as a fraction of camera radius
	MaxSteps   int          // per-ray step ceiling
	MaxRetries int          // per-step error-control retries
	TolAbs     float64      // absolute local error tolerance
	TolRel     float64      // relative local error tolerance
	ErrFactor  float64      // safety factor in the step controller
	MinFactor  float64      // smallest allowed step shrink/grow ratio
	MaxFactor  float64      // largest allowed step shrink/grow ratio
}

// ImageParams toggles accumulated image quantities.
type ImageParams struct {
	Light         bool
	Frequency     float64 // observed frequency in Hz
	Normalization FrequencyNormalization
	Polarization  bool
	Time          bool
	Length        bool
	Lambda        bool
	Emission      bool
	Tau           bool
	LambdaAve     bool
	EmissionAve   bool
	TauInt        bool
	ZTurnings     bool
	CutZTurnings  int // max z-plane crossings kept; negative keeps all
}

// AdaptiveParams controls hierarchical image refinement. A fraction below
// zero disables its criterion.
type AdaptiveParams struct {
	MaxLevel    int
	BlockSize   int
	ValFrac     float64
	ValCut      float64
	AbsGradFrac float64
	AbsGradCut  float64
	RelGradFrac float64
	RelGradCut  float64
	AbsLaplFrac float64
	AbsLaplCut  float64
	RelLaplFrac float64
	RelLaplCut  float64
}

// RenderFeature describes one iso-surface or fill feature of a rendered
// image. Rendering itself is out of scope; the records exist so runs can be
// validated and the data dependency is explicit.
type RenderFeature struct {
	Quantity int // index into the cell-value vector
	Type     RenderFeatureType
	Thresh   float64 // rise/fall threshold
	Min      float64 // fill range lower bound
	Max      float64 // fill range upper bound
	Opacity  float64 // rise/fall surface opacity
	TauScale float64 // fill opacity scale
	X        float64 // color components
	Y        float64
	Z        float64
}

// RenderImage groups the ordered features of one rendered image.
type RenderImage struct {
	Features []RenderFeature
}

// CheckpointParams controls state reuse between runs.
type CheckpointParams struct {
	GeodesicSave bool
	GeodesicLoad bool
	GeodesicFile string
	SampleSave   bool
	SampleLoad   bool
	SampleFile   string
}

// OutputParams names the artifacts written after integration. Empty paths
// disable the writer.
type OutputParams struct {
	File           string // quantity archive (npz)
	PreviewFile    string // colormapped PNG of the intensity image
	TiffFile       string // 16-bit grayscale TIFF of the intensity image
	MovieFile      string // MJPEG movie across snapshots
	MovieFPS       int
	LightCurveFile string // total flux vs snapshot time plot
}

// Config is the complete validated parameter set for one run.
type Config struct {
	Model      ModelType
	NumThreads int // 0 selects the CPU count
	Snapshots  int // number of snapshots to process

	Checkpoint CheckpointParams
	Formula    FormulaParams
	Simulation SimulationParams
	Plasma     PlasmaParams
	SlowLight  SlowLightParams
	Fallback   FallbackParams
	Camera     CameraParams
	Ray        RayParams
	Image      ImageParams
	Renders    []RenderImage
	Adaptive   AdaptiveParams
	Output     OutputParams

	provided map[string]bool
}

// Provided reports whether the input deck supplied the named key. Validation
// uses it to warn about options that were set but do not apply.
func (c *Config) Provided(key string) bool {
	return c.provided[key]
}

// markProvided records keys seen in the deck.
func (c *Config) markProvided(keys []string) {
	c.provided = make(map[string]bool, len(keys))
	for _, k := range keys {
		c.provided[strings.ToLower(k)] = true
	}
}

// Spin returns the dimensionless spin of the active model.
func (c *Config) Spin() float64 {
	if c.Model == ModelFormula {
		return c.Formula.Spin
	}
	return c.Simulation.Spin
}

// MassMsun returns the black hole mass in solar masses for the active model.
func (c *Config) MassMsun() float64 {
	if c.Model == ModelFormula {
		// Formula mass is given as GM/c^2 in cm; convert through GM/c^2 per Msun.
		return c.Formula.Mass * 2.99792458e10 * 2.99792458e10 / 1.32712440018e26
	}
	return c.Simulation.MMsun
}

// Load reads a key = value input deck and produces an unvalidated Config.
// Unknown keys are tolerated; missing keys take the documented defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading input deck %s: %w", path, err)
	}
	return fromViper(v)
}

// fromViper translates deck keys into a Config.
func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{}
	c.markProvided(v.AllKeys())

	switch model := v.GetString("model_type"); model {
	case "simulation":
		c.Model = ModelSimulation
	case "formula":
		c.Model = ModelFormula
	case "":
		c.Model = ModelUnknown
	default:
		return nil, fmt.Errorf("unknown model_type %q", model)
	}
	c.NumThreads = v.GetInt("num_threads")
	c.Snapshots = intOr(v, "snapshots", 1)

	c.Checkpoint = CheckpointParams{
		GeodesicSave: v.GetBool("checkpoint_geodesic_save"),
		GeodesicLoad: v.GetBool("checkpoint_geodesic_load"),
		GeodesicFile: v.GetString("checkpoint_geodesic_file"),
		SampleSave:   v.GetBool("checkpoint_sample_save"),
		SampleLoad:   v.GetBool("checkpoint_sample_load"),
		SampleFile:   v.GetString("checkpoint_sample_file"),
	}

	c.Formula = FormulaParams{
		Mass:  v.GetFloat64("formula_mass"),
		Spin:  v.GetFloat64("formula_spin"),
		R0:    v.GetFloat64("formula_r0"),
		H:     v.GetFloat64("formula_h"),
		L0:    v.GetFloat64("formula_l0"),
		Q:     v.GetFloat64("formula_q"),
		NuP:   v.GetFloat64("formula_nup"),
		CN0:   v.GetFloat64("formula_cn0"),
		Alpha: v.GetFloat64("formula_alpha"),
		A:     v.GetFloat64("formula_a"),
		Beta:  v.GetFloat64("formula_beta"),
	}

	c.Simulation = SimulationParams{
		File:        v.GetString("simulation_file"),
		Spin:        v.GetFloat64("simulation_a"),
		MMsun:       v.GetFloat64("simulation_m_msun"),
		RhoCGS:      v.GetFloat64("simulation_rho_cgs"),
		Interp:      v.GetBool("simulation_interp"),
		BlockInterp: v.GetBool("simulation_block_interp"),
	}

	plasmaModel := PlasmaTiTeBeta
	if v.GetString("plasma_model") == "code_kappa" {
		plasmaModel = PlasmaCodeKappa
	}
	c.Plasma = PlasmaParams{
		Mu:        floatOr(v, "plasma_mu", 0.5),
		NeNi:      floatOr(v, "plasma_ne_ni", 1.0),
		Model:     plasmaModel,
		RatLow:    v.GetFloat64("plasma_rat_low"),
		RatHigh:   v.GetFloat64("plasma_rat_high"),
		PowerFrac: v.GetFloat64("plasma_power_frac"),
		P:         v.GetFloat64("plasma_p"),
		GammaMin:  v.GetFloat64("plasma_gamma_min"),
		GammaMax:  v.GetFloat64("plasma_gamma_max"),
		KappaFrac: v.GetFloat64("plasma_kappa_frac"),
		Kappa:     v.GetFloat64("plasma_kappa"),
		W:         v.GetFloat64("plasma_w"),
		SigmaMax:  floatOr(v, "plasma_sigma_max", -1),
	}

	c.SlowLight = SlowLightParams{
		On:        v.GetBool("slow_light_on"),
		Interp:    v.GetBool("slow_interp"),
		ChunkSize: intOr(v, "slow_chunk_size", 2),
		TStart:    v.GetFloat64("slow_t_start"),
		DT:        v.GetFloat64("slow_dt"),
	}

	c.Fallback = FallbackParams{
		NaN:   v.GetBool("fallback_nan"),
		Rho:   v.GetFloat64("fallback_rho"),
		PGas:  v.GetFloat64("fallback_pgas"),
		Kappa: v.GetFloat64("fallback_kappa"),
	}

	cameraType := CameraPlane
	if v.GetString("camera_type") == "pinhole" {
		cameraType = CameraPinhole
	}
	c.Camera = CameraParams{
		Type:       cameraType,
		R:          v.GetFloat64("camera_r"),
		Th:         v.GetFloat64("camera_th"),
		Ph:         v.GetFloat64("camera_ph"),
		URn:        v.GetFloat64("camera_urn"),
		UThn:       v.GetFloat64("camera_uthn"),
		UPhn:       v.GetFloat64("camera_uphn"),
		KR:         floatOr(v, "camera_k_r", -1),
		KTh:        v.GetFloat64("camera_k_th"),
		KPh:        v.GetFloat64("camera_k_ph"),
		Rotation:   v.GetFloat64("camera_rotation"),
		Width:      v.GetFloat64("camera_width"),
		Resolution: v.GetInt("camera_resolution"),
		Pole:       v.GetBool("camera_pole"),
	}

	terminate := TerminatePhoton
	switch v.GetString("ray_terminate") {
	case "multiplicative":
		terminate = TerminateMultiplicative
	case "additive":
		terminate = TerminateAdditive
	}
	c.Ray = RayParams{
		Flat:       v.GetBool("ray_flat"),
		Terminate:  terminate,
		Factor:     floatOr(v, "ray_factor", 1.005),
		Step:       floatOr(v, "ray_step", 0.01),
		MaxSteps:   intOr(v, "ray_max_steps", 10000),
		MaxRetries: intOr(v, "ray_max_retries", 25),
		TolAbs:     floatOr(v, "ray_tol_abs", 1e-8),
		TolRel:     floatOr(v, "ray_tol_rel", 1e-8),
		ErrFactor:  floatOr(v, "ray_err_factor", 0.9),
		MinFactor:  floatOr(v, "ray_min_factor", 0.2),
		MaxFactor:  floatOr(v, "ray_max_factor", 5.0),
	}

	normalization := NormalizeCamera
	if v.GetString("image_normalization") == "infinity" {
		normalization = NormalizeInfinity
	}
	c.Image = ImageParams{
		Light:         v.GetBool("image_light"),
		Frequency:     v.GetFloat64("image_frequency"),
		Normalization: normalization,
		Polarization:  v.GetBool("image_polarization"),
		Time:          v.GetBool("image_time"),
		Length:        v.GetBool("image_length"),
		Lambda:        v.GetBool("image_lambda"),
		Emission:      v.GetBool("image_emission"),
		Tau:           v.GetBool("image_tau"),
		LambdaAve:     v.GetBool("image_lambda_ave"),
		EmissionAve:   v.GetBool("image_emission_ave"),
		TauInt:        v.GetBool("image_tau_int"),
		ZTurnings:     v.GetBool("image_z_turnings"),
		CutZTurnings:  intOr(v, "cut_z_turnings", -1),
	}

	numRenders := v.GetInt("render_num_images")
	for i := 1; i <= numRenders; i++ {
		var img RenderImage
		numFeatures := v.GetInt(fmt.Sprintf("render_%d_num_features", i))
		for f := 1; f <= numFeatures; f++ {
			prefix := fmt.Sprintf("render_%d_%d_", i, f)
			featureType := RenderFill
			switch v.GetString(prefix + "type") {
			case "rise":
				featureType = RenderRise
			case "fall":
				featureType = RenderFall
			}
			img.Features = append(img.Features, RenderFeature{
				Quantity: v.GetInt(prefix + "quantity"),
				Type:     featureType,
				Thresh:   v.GetFloat64(prefix + "thresh"),
				Min:      v.GetFloat64(prefix + "min"),
				Max:      v.GetFloat64(prefix + "max"),
				Opacity:  v.GetFloat64(prefix + "opacity"),
				TauScale: v.GetFloat64(prefix + "tau_scale"),
				X:        v.GetFloat64(prefix + "x"),
				Y:        v.GetFloat64(prefix + "y"),
				Z:        v.GetFloat64(prefix + "z"),
			})
		}
		c.Renders = append(c.Renders, img)
	}

	c.Adaptive = AdaptiveParams{
		MaxLevel:    v.GetInt("adaptive_max_level"),
		BlockSize:   v.GetInt("adaptive_block_size"),
		ValFrac:     floatOr(v, "adaptive_val_frac", -1),
		ValCut:      v.GetFloat64("adaptive_val_cut"),
		AbsGradFrac: floatOr(v, "adaptive_abs_grad_frac", -1),
		AbsGradCut:  v.GetFloat64("adaptive_abs_grad_cut"),
		RelGradFrac: floatOr(v, "adaptive_rel_grad_frac", -1),
		RelGradCut:  v.GetFloat64("adaptive_rel_grad_cut"),
		AbsLaplFrac: floatOr(v, "adaptive_abs_lapl_frac", -1),
		AbsLaplCut:  v.GetFloat64("adaptive_abs_lapl_cut"),
		RelLaplFrac: floatOr(v, "adaptive_rel_lapl_frac", -1),
		RelLaplCut:  v.GetFloat64("adaptive_rel_lapl_cut"),
	}

	c.Output = OutputParams{
		File:           v.GetString("output_file"),
		PreviewFile:    v.GetString("output_preview"),
		TiffFile:       v.GetString("output_tiff"),
		MovieFile:      v.GetString("output_movie"),
		MovieFPS:       intOr(v, "output_movie_fps", 10),
		LightCurveFile: v.GetString("output_lightcurve"),
	}

	return c, nil
}

// floatOr returns the deck value or a default when the key is absent.
func floatOr(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return def
}

// intOr returns the deck value or a default when the key is absent.
func intOr(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return def
}
