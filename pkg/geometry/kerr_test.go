package geometry

import (
	"math"
	"testing"
)

func TestRadialCoordinate(t *testing.T) {
	tests := []struct {
		name       string
		x, y, z, a float64
		want       float64
	}{
		{"spherical limit", 3, 4, 0, 0, 5},
		{"on z axis", 0, 0, 7, 0.9, 7},
		{"equatorial oblate", 5, 0, 0, 0.9, math.Sqrt(25 - 0.81)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RadialCoordinate(tt.x, tt.y, tt.z, tt.a)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RadialCoordinate(%v,%v,%v,a=%v) = %v, want %v",
					tt.x, tt.y, tt.z, tt.a, got, tt.want)
			}
		})
	}
}

func TestRadialCoordinateDegenerate(t *testing.T) {
	// The coordinate origin sits on the ring singularity for a = 0; the
	// guard must keep the result positive and finite.
	r := RadialCoordinate(0, 0, 0, 0)
	if !(r > 0) || math.IsInf(r, 0) || math.IsNaN(r) {
		t.Errorf("RadialCoordinate at origin = %v, want small positive", r)
	}
}

func TestCovariantContravariantInverse(t *testing.T) {
	points := [][4]float64{
		{3.1, -2.2, 1.7, 0.9},
		{10.0, 0.0, 0.1, 0.5},
		{0.0, 0.0, 4.0, 0.99}, // on the rotation axis
		{-6.0, 7.5, -2.0, 0.0},
	}
	var gcov, gcon Tensor
	for _, p := range points {
		x, y, z, a := p[0], p[1], p[2], p[3]
		Covariant(x, y, z, 1.0, a, &gcov)
		Contravariant(x, y, z, 1.0, a, &gcon)
		for mu := 0; mu < 4; mu++ {
			for nu := 0; nu < 4; nu++ {
				sum := 0.0
				for al := 0; al < 4; al++ {
					sum += gcov[mu][al] * gcon[al][nu]
				}
				want := 0.0
				if mu == nu {
					want = 1.0
				}
				if math.Abs(sum-want) > 1e-10 {
					t.Errorf("at %v: (g g^-1)[%d][%d] = %v, want %v", p, mu, nu, sum, want)
				}
			}
		}
	}
}

func TestFarFieldApproachesFlat(t *testing.T) {
	var gcov Tensor
	Covariant(1e6, 0, 0, 1.0, 0.9, &gcov)
	var eta Tensor
	Minkowski(&eta, nil, nil)
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			if math.Abs(gcov[mu][nu]-eta[mu][nu]) > 1e-5 {
				t.Errorf("far field gcov[%d][%d] = %v, want near %v", mu, nu, gcov[mu][nu], eta[mu][nu])
			}
		}
	}
}

func TestContravariantDerivativeMatchesFiniteDifference(t *testing.T) {
	const m, a = 1.0, 0.7
	x, y, z := 4.3, -1.9, 2.6
	var dgcon Derivative
	ContravariantDerivative(x, y, z, m, a, &dgcon)

	const h = 1e-6
	var plus, minus Tensor
	for i := 0; i < 3; i++ {
		xp, yp, zp := x, y, z
		xm, ym, zm := x, y, z
		switch i {
		case 0:
			xp += h
			xm -= h
		case 1:
			yp += h
			ym -= h
		case 2:
			zp += h
			zm -= h
		}
		Contravariant(xp, yp, zp, m, a, &plus)
		Contravariant(xm, ym, zm, m, a, &minus)
		for mu := 0; mu < 4; mu++ {
			for nu := 0; nu < 4; nu++ {
				fd := (plus[mu][nu] - minus[mu][nu]) / (2 * h)
				if math.Abs(fd-dgcon[i][mu][nu]) > 1e-5 {
					t.Errorf("dgcon[%d][%d][%d] = %v, finite difference %v",
						i, mu, nu, dgcon[i][mu][nu], fd)
				}
			}
		}
	}
}

func TestCovariantDerivativeConsistency(t *testing.T) {
	// d(g) from d(g^-1) must match finite differences of the metric itself.
	const m, a = 1.0, 0.5
	x, y, z := 5.0, 2.0, -3.0
	var gcov Tensor
	var dgcon, dgcov Derivative
	Covariant(x, y, z, m, a, &gcov)
	ContravariantDerivative(x, y, z, m, a, &dgcon)
	CovariantDerivative(&gcov, &dgcon, &dgcov)

	const h = 1e-6
	var plus, minus Tensor
	Covariant(x+h, y, z, m, a, &plus)
	Covariant(x-h, y, z, m, a, &minus)
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			fd := (plus[mu][nu] - minus[mu][nu]) / (2 * h)
			if math.Abs(fd-dgcov[0][mu][nu]) > 1e-5 {
				t.Errorf("dgcov[0][%d][%d] = %v, finite difference %v",
					mu, nu, dgcov[0][mu][nu], fd)
			}
		}
	}
}

func TestHorizonAndPhotonOrbit(t *testing.T) {
	if got := HorizonRadius(1, 0); math.Abs(got-2.0) > 1e-14 {
		t.Errorf("Schwarzschild horizon = %v, want 2", got)
	}
	if got := PhotonOrbitRadius(1, 0); math.Abs(got-3.0) > 1e-12 {
		t.Errorf("Schwarzschild photon orbit = %v, want 3", got)
	}
	// Extremal prograde photon orbit approaches the horizon at r = 1.
	if got := PhotonOrbitRadius(1, 1); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("extremal photon orbit = %v, want 1", got)
	}
}
