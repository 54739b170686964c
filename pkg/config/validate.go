package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ValidationError aggregates every fatal configuration problem found in one
// pass, so a bad deck is reported completely instead of one item at a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("configuration: %d problems: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the configuration as a unit. Fatal problems are collected
// into a single ValidationError; inapplicable or out-of-range options that
// can be ignored are logged as warnings and normalized in place.
func (c *Config) Validate(log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Model == ModelUnknown {
		fail("model_type must be simulation or formula")
	}
	if c.Model == ModelSimulation && c.Simulation.File == "" {
		fail("simulation model requires simulation_file")
	}

	// Checkpoints apply per model; contradictory requests are fatal.
	if c.Checkpoint.GeodesicSave && c.Checkpoint.GeodesicLoad {
		fail("cannot both save and load a geodesic checkpoint")
	}
	if (c.Checkpoint.GeodesicSave || c.Checkpoint.GeodesicLoad) && c.Checkpoint.GeodesicFile == "" {
		fail("geodesic checkpointing requires checkpoint_geodesic_file")
	}
	if c.Model == ModelSimulation {
		if c.Checkpoint.SampleSave && c.Checkpoint.SampleLoad {
			fail("cannot both save and load a sample checkpoint")
		}
		if (c.Checkpoint.SampleSave || c.Checkpoint.SampleLoad) && c.Checkpoint.SampleFile == "" {
			fail("sample checkpointing requires checkpoint_sample_file")
		}
	} else {
		if c.Checkpoint.SampleSave {
			log.Warn("ignoring checkpoint_sample_save selection")
			c.Checkpoint.SampleSave = false
		}
		if c.Checkpoint.SampleLoad {
			log.Warn("ignoring checkpoint_sample_load selection")
			c.Checkpoint.SampleLoad = false
		}
	}

	// Electron population fractions warn rather than abort.
	if c.Model == ModelSimulation {
		if c.Plasma.PowerFrac < 0 || c.Plasma.PowerFrac > 1 {
			log.Warn("fraction of power-law electrons outside [0, 1]",
				"plasma_power_frac", c.Plasma.PowerFrac)
		}
		if c.Plasma.KappaFrac < 0 || c.Plasma.KappaFrac > 1 {
			log.Warn("fraction of kappa-distribution electrons outside [0, 1]",
				"plasma_kappa_frac", c.Plasma.KappaFrac)
		}
		if tf := c.Plasma.ThermalFrac(); tf < 0 || tf > 1 {
			log.Warn("fraction of thermal electrons outside [0, 1]",
				"plasma_thermal_frac", tf)
		}
	}

	// Slow light conflicts with sample checkpoints: the sampling map depends
	// on the snapshot pairing, which changes every snapshot.
	if c.Model == ModelSimulation && c.SlowLight.On {
		if c.Checkpoint.SampleSave || c.Checkpoint.SampleLoad {
			fail("cannot use sample checkpoints with slow light")
		}
		if c.SlowLight.DT <= 0 {
			fail("slow light requires positive slow_dt")
		}
	}

	if c.Camera.Resolution <= 0 {
		fail("must have positive camera_resolution")
	}
	if c.Camera.R <= 0 {
		fail("must have positive camera_r")
	}
	if c.Camera.Width <= 0 {
		fail("must have positive camera_width")
	}

	if c.Ray.MaxSteps <= 0 {
		fail("must have positive ray_max_steps")
	}
	if c.Ray.MinFactor <= 0 || c.Ray.MaxFactor < c.Ray.MinFactor {
		fail("step factors must satisfy 0 < ray_min_factor <= ray_max_factor")
	}

	// Polarization and the averaged quantities require simulation data.
	if c.Image.Light {
		if c.Image.Frequency <= 0 {
			fail("must have positive image_frequency")
		}
		if c.Model != ModelSimulation && c.Image.Polarization {
			log.Warn("ignoring image_polarization selection")
			c.Image.Polarization = false
		}
		if c.Model == ModelSimulation && c.Image.Polarization && c.Plasma.KappaFrac != 0 {
			if c.Plasma.Kappa < 3.5 || c.Plasma.Kappa > 5.0 {
				fail("polarized transport only supports kappa in [3.5, 5]")
			} else if c.Plasma.Kappa != 3.5 && c.Plasma.Kappa != 4.0 &&
				c.Plasma.Kappa != 4.5 && c.Plasma.Kappa != 5.0 {
				log.Warn("polarized transport will interpolate formulas based on kappa",
					"plasma_kappa", c.Plasma.Kappa)
			}
		}
	} else if c.Image.Polarization {
		log.Warn("ignoring image_polarization selection")
		c.Image.Polarization = false
	}
	if c.Model != ModelSimulation {
		for _, opt := range []struct {
			name string
			flag *bool
		}{
			{"image_lambda_ave", &c.Image.LambdaAve},
			{"image_emission_ave", &c.Image.EmissionAve},
			{"image_tau_int", &c.Image.TauInt},
		} {
			if *opt.flag {
				log.Warn("ignoring selection not supported by formula model", "option", opt.name)
				*opt.flag = false
			}
		}
	}

	// Renders are simulation-only and must each carry features.
	if c.Model != ModelSimulation && len(c.Renders) > 0 {
		log.Warn("ignoring request for rendering")
		c.Renders = nil
	}
	for i, render := range c.Renders {
		if len(render.Features) == 0 {
			fail("must have positive number of features for rendered image %d", i+1)
		}
	}

	if !c.anyQuantityEnabled() && len(c.Renders) == 0 {
		fail("no image or rendering selected")
	}

	if c.Adaptive.MaxLevel > 0 {
		if !c.Image.Light {
			fail("adaptive ray tracing requires image_light")
		}
		if c.Adaptive.BlockSize <= 0 {
			fail("must have positive adaptive_block_size")
		} else if c.Camera.Resolution > 0 && c.Camera.Resolution%c.Adaptive.BlockSize != 0 {
			fail("must have adaptive_block_size divide camera_resolution")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// anyQuantityEnabled reports whether at least one image quantity is selected.
func (c *Config) anyQuantityEnabled() bool {
	im := c.Image
	return im.Light || im.Time || im.Length || im.Lambda || im.Emission ||
		im.Tau || im.LambdaAve || im.EmissionAve || im.TauInt || im.ZTurnings
}
