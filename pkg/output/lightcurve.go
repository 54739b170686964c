package output

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteLightCurve plots summed intensity against snapshot time. With slow
// light off the abscissa is the snapshot index.
func WriteLightCurve(path string, times, flux []float64, slowLight bool) error {
	if len(times) != len(flux) {
		return fmt.Errorf("output: light curve has %d times for %d fluxes", len(times), len(flux))
	}
	pts := make(plotter.XYs, len(times))
	for i := range times {
		pts[i].X = times[i]
		pts[i].Y = flux[i]
	}

	p := plot.New()
	p.Title.Text = "Light curve"
	if slowLight {
		p.X.Label.Text = "t (GM/c^3)"
	} else {
		p.X.Label.Text = "snapshot"
	}
	p.Y.Label.Text = "summed intensity (arbitrary)"

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	p.Add(line, points)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("output: saving light curve: %w", err)
	}
	return nil
}
