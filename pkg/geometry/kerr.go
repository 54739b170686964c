// Package geometry evaluates the Kerr metric in Cartesian Kerr-Schild
// coordinates. All functions are pure and allocation-free: callers own the
// output tensors and reuse them across evaluations, since the geodesic
// integrator calls into this package several times per attempted step.
package geometry

import "math"

// Tensor holds a rank-2 spacetime tensor, indexed [mu][nu] with mu = 0
// the time component.
type Tensor [4][4]float64

// Derivative holds the spatial coordinate derivative of a rank-2 tensor,
// indexed [i][mu][nu] with i = 0,1,2 for x,y,z. The time derivative vanishes
// because the metric is stationary.
type Derivative [3][4][4]float64

// rMin guards divisions near the ring singularity and the polar axis.
const rMin = 1.0e-12

// RadialCoordinate returns the Kerr-Schild radial coordinate at the given
// Cartesian point for spin a. It is the positive root of
// r^4 - r^2 (R^2 - a^2) - a^2 z^2 = 0 with R^2 = x^2 + y^2 + z^2.
func RadialCoordinate(x, y, z, a float64) float64 {
	rr2 := x*x + y*y + z*z
	d := rr2 - a*a
	r2 := 0.5 * (d + math.Sqrt(d*d+4.0*a*a*z*z))
	r := math.Sqrt(r2)
	if r < rMin {
		r = rMin
	}
	return r
}

// nullVector fills l_mu, the ingoing Kerr-Schild null covector, and returns
// r and the scalar profile f = 2 M r^3 / (r^4 + a^2 z^2).
func nullVector(x, y, z, m, a float64, l *[4]float64) (r, f float64) {
	r = RadialCoordinate(x, y, z, a)
	r2 := r * r
	f = 2.0 * m * r2 * r / (r2*r2 + a*a*z*z)
	den := r2 + a*a
	l[0] = 1.0
	l[1] = (r*x + a*y) / den
	l[2] = (r*y - a*x) / den
	l[3] = z / r
	return r, f
}

// Covariant fills gcov with the covariant metric g_{mu nu} = eta + f l l at
// the given point.
func Covariant(x, y, z, m, a float64, gcov *Tensor) {
	var l [4]float64
	_, f := nullVector(x, y, z, m, a, &l)
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			gcov[mu][nu] = f * l[mu] * l[nu]
		}
	}
	gcov[0][0] -= 1.0
	gcov[1][1] += 1.0
	gcov[2][2] += 1.0
	gcov[3][3] += 1.0
}

// Contravariant fills gcon with the inverse metric g^{mu nu} = eta - f l l,
// exact for Kerr-Schild because the null vector satisfies eta^{ab} l_a l_b = 0.
func Contravariant(x, y, z, m, a float64, gcon *Tensor) {
	var l [4]float64
	_, f := nullVector(x, y, z, m, a, &l)
	var lup [4]float64
	lup[0] = -l[0]
	lup[1] = l[1]
	lup[2] = l[2]
	lup[3] = l[3]
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			gcon[mu][nu] = -f * lup[mu] * lup[nu]
		}
	}
	gcon[0][0] -= 1.0
	gcon[1][1] += 1.0
	gcon[2][2] += 1.0
	gcon[3][3] += 1.0
}

// ContravariantDerivative fills dgcon with the spatial coordinate derivative
// of the inverse metric, d_i g^{mu nu}, needed by the geodesic equation.
func ContravariantDerivative(x, y, z, m, a float64, dgcon *Derivative) {
	var l [4]float64
	r, f := nullVector(x, y, z, m, a, &l)
	r2 := r * r
	a2 := a * a
	rr2 := x*x + y*y + z*z

	// dr/dx_i from implicit differentiation of the defining quartic.
	// The denominator 2r^2 - R^2 + a^2 is positive away from the ring.
	den := 2.0*r2 - rr2 + a2
	if math.Abs(den) < rMin {
		den = rMin
	}
	var dr [3]float64
	dr[0] = r * x / den
	dr[1] = r * y / den
	dr[2] = z * (r2 + a2) / (r * den)

	// df/dx_i through r plus the explicit z dependence.
	sig := r2*r2 + a2*z*z
	dfdr := 2.0 * m * r2 * (3.0*a2*z*z - r2*r2) / (sig * sig)
	var df [3]float64
	for i := 0; i < 3; i++ {
		df[i] = dfdr * dr[i]
	}
	df[2] += -4.0 * m * r2 * r * a2 * z / (sig * sig)

	// dl_mu/dx_i. The time component is constant.
	s := r2 + a2
	var dl [3][4]float64
	for i := 0; i < 3; i++ {
		num := r*x + a*y
		if i == 0 {
			dl[i][1] = (r + x*dr[i]) / s
		} else if i == 1 {
			dl[i][1] = (x*dr[i] + a) / s
		} else {
			dl[i][1] = x * dr[i] / s
		}
		dl[i][1] -= num * 2.0 * r * dr[i] / (s * s)

		num = r*y - a*x
		if i == 0 {
			dl[i][2] = (y*dr[i] - a) / s
		} else if i == 1 {
			dl[i][2] = (r + y*dr[i]) / s
		} else {
			dl[i][2] = y * dr[i] / s
		}
		dl[i][2] -= num * 2.0 * r * dr[i] / (s * s)

		dl[i][3] = -z * dr[i] / r2
	}
	dl[2][3] += 1.0 / r

	// Raised null vector and its derivative: l^0 = -1 is constant, the
	// spatial components coincide with the covariant ones under eta.
	var lup, dlup [4]float64
	lup[0] = -1.0
	lup[1] = l[1]
	lup[2] = l[2]
	lup[3] = l[3]
	for i := 0; i < 3; i++ {
		dlup[0] = 0.0
		dlup[1] = dl[i][1]
		dlup[2] = dl[i][2]
		dlup[3] = dl[i][3]
		for mu := 0; mu < 4; mu++ {
			for nu := 0; nu < 4; nu++ {
				dgcon[i][mu][nu] = -df[i]*lup[mu]*lup[nu] -
					f*(dlup[mu]*lup[nu]+lup[mu]*dlup[nu])
			}
		}
	}
}

// Minkowski fills gcov and gcon with the flat metric and zeroes dgcon. Any
// output may be nil to skip it. Used in flat-space mode, where the geodesic
// integrator bypasses curvature entirely.
func Minkowski(gcov, gcon *Tensor, dgcon *Derivative) {
	if gcov != nil {
		*gcov = Tensor{}
		gcov[0][0] = -1.0
		gcov[1][1] = 1.0
		gcov[2][2] = 1.0
		gcov[3][3] = 1.0
	}
	if gcon != nil {
		*gcon = Tensor{}
		gcon[0][0] = -1.0
		gcon[1][1] = 1.0
		gcon[2][2] = 1.0
		gcon[3][3] = 1.0
	}
	if dgcon != nil {
		*dgcon = Derivative{}
	}
}

// HorizonRadius returns the outer event horizon radius M + sqrt(M^2 - a^2).
func HorizonRadius(m, a float64) float64 {
	return m + math.Sqrt(m*m-a*a)
}

// PhotonOrbitRadius returns the prograde equatorial photon orbit radius.
func PhotonOrbitRadius(m, a float64) float64 {
	return 2.0 * m * (1.0 + math.Cos(2.0/3.0*math.Acos(-math.Abs(a)/m)))
}

// CovariantDerivative fills dgcov with d_i g_{mu nu}, reconstructed from the
// inverse-metric derivative via d g = -g (d g^{-1}) g. The polarized transfer
// integrator uses it to parallel-transport the polarization basis.
func CovariantDerivative(gcov *Tensor, dgcon *Derivative, dgcov *Derivative) {
	for i := 0; i < 3; i++ {
		for mu := 0; mu < 4; mu++ {
			for nu := 0; nu < 4; nu++ {
				sum := 0.0
				for al := 0; al < 4; al++ {
					for be := 0; be < 4; be++ {
						sum += gcov[mu][al] * dgcon[i][al][be] * gcov[be][nu]
					}
				}
				dgcov[i][mu][nu] = -sum
			}
		}
	}
}
