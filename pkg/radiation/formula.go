package radiation

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// formulaCoefficients fills the invariant emission and absorption arrays from
// the closed-form torus model of the code comparison paper, 2020 ApJ 897 148.
// The plasma is described in Boyer-Lindquist coordinates; the sampled ray
// positions and momenta are transformed accordingly.
func (r *Integrator) formulaCoefficients(level int, view geodesic.View) {
	p := r.cfg.Formula
	nan := math.NaN()
	momentumFactor := r.cam.MomentumFactor

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			if num <= 0 {
				continue
			}
			base := m * view.Slots

			if r.cfg.Fallback.NaN && view.Flags[m] {
				for n := 0; n < num; n++ {
					r.jI[level][base+n] = nan
					r.alphaI[level][base+n] = nan
				}
				continue
			}

			for n := 0; n < num; n++ {
				x := view.Pos[(base+n)*4+1]
				y := view.Pos[(base+n)*4+2]
				z := view.Pos[(base+n)*4+3]
				k0 := view.Dir[(base+n)*4+0]
				k1 := view.Dir[(base+n)*4+1]
				k2 := view.Dir[(base+n)*4+2]
				k3 := view.Dir[(base+n)*4+3]

				rad := geometry.RadialCoordinate(x, y, z, r.bhA)
				rr := math.Sqrt(rad*rad - z*z)
				cth := z / rad
				sth := math.Sqrt(1.0 - cth*cth)
				ph := math.Atan2(y, x) - math.Atan(r.bhA/rad)
				sph, cph := math.Sin(ph), math.Cos(ph)

				// Boyer-Lindquist metric components.
				delta := rad*rad - 2.0*r.bhM*rad + r.bhA*r.bhA
				sigma := rad*rad + r.bhA*r.bhA*cth*cth
				gttBL := -(1.0 + 2.0*r.bhM*rad*(rad*rad+r.bhA*r.bhA)/(delta*sigma))
				gtphBL := -2.0 * r.bhM * r.bhA * rad / (delta * sigma)
				grrBL := delta / sigma
				gththBL := 1.0 / sigma
				gphphBL := (sigma - 2.0*r.bhM*rad) / (delta * sigma * sth * sth)

				// Angular momentum profile (C 6).
				ll := p.L0 / (1.0 + rr) * math.Pow(rr, 1.0+p.Q)

				// Fluid 4-velocity (C 7-8), transformed to Cartesian
				// Kerr-Schild components.
				uNorm := 1.0 / math.Sqrt(-gttBL+2.0*gtphBL*ll-gphphBL*ll*ll)
				utCovBL := -uNorm
				uphCovBL := uNorm * ll
				utBL := gttBL*utCovBL + gtphBL*uphCovBL
				urBL := grrBL * 0.0
				uthBL := gththBL * 0.0
				uphBL := gtphBL*utCovBL + gphphBL*uphCovBL
				ut := utBL + 2.0*r.bhM*rad/delta*urBL
				ur := urBL
				uth := uthBL
				uph := uphBL + r.bhA/delta*urBL
				u0 := ut
				u1 := sth*cph*ur + cth*(rad*cph-r.bhA*sph)*uth + sth*(-rad*sph-r.bhA*cph)*uph
				u2 := sth*sph*ur + cth*(rad*sph+r.bhA*cph)*uth + sth*(rad*cph-r.bhA*sph)*uph
				u3 := cth*ur - rad*sth*uth

				// Fluid-frame number density (C 5).
				nFluid := math.Exp(-0.5 * (rad*rad/(p.R0*p.R0) + p.H*p.H*cth*cth))

				// Frequency in CGS units.
				nuFluid := -(u0*k0 + u1*k1 + u2*k2 + u3*k3) * momentumFactor

				// Emission and absorption coefficients (C 9-12), stored as
				// invariants j/nu^2 and alpha*nu.
				jNu := p.CN0 * nFluid * math.Pow(nuFluid/p.NuP, -p.Alpha)
				r.jI[level][base+n] = jNu / (nuFluid * nuFluid)
				alphaNu := p.A * p.CN0 * nFluid * math.Pow(nuFluid/p.NuP, -p.Beta-p.Alpha)
				r.alphaI[level][base+n] = alphaNu * nuFluid
			}
		}
	})
}
