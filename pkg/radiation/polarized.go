package radiation

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// christoffel fills gamma with the connection coefficients Gamma^mu_{ab} at a
// point, from the analytic metric derivatives. Time derivatives vanish in
// this stationary spacetime.
func (r *Integrator) christoffel(x, y, z float64, gamma *[4][4][4]float64) {
	var gcov, gcon geometry.Tensor
	var dgcon, dgcov geometry.Derivative
	geometry.Covariant(x, y, z, r.bhM, r.bhA, &gcov)
	geometry.Contravariant(x, y, z, r.bhM, r.bhA, &gcon)
	geometry.ContravariantDerivative(x, y, z, r.bhM, r.bhA, &dgcon)
	geometry.CovariantDerivative(&gcov, &dgcon, &dgcov)

	// dgcov holds spatial derivatives only; index shift maps d_i to
	// coordinate index i+1.
	deriv := func(c, a, b int) float64 {
		if c == 0 {
			return 0
		}
		return dgcov[c-1][a][b]
	}
	for mu := 0; mu < 4; mu++ {
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				sum := 0.0
				for nu := 0; nu < 4; nu++ {
					sum += gcon[mu][nu] * (deriv(a, nu, b) + deriv(b, nu, a) - deriv(nu, a, b))
				}
				gamma[mu][a][b] = 0.5 * sum
			}
		}
	}
}

// stokesVec is an invariant Stokes vector (I, Q, U, V)/nu^3.
type stokesVec [4]float64

// rotateQU rotates the linear polarization plane by the angle chi.
func (s *stokesVec) rotateQU(chi float64) {
	c, sn := math.Cos(2.0*chi), math.Sin(2.0*chi)
	q, u := s[1], s[2]
	s[1] = c*q - sn*u
	s[2] = sn*q + c*u
}

// rotateUV applies Faraday conversion between U and V by the angle psi.
func (s *stokesVec) rotateUV(psi float64) {
	c, sn := math.Cos(2.0*psi), math.Sin(2.0*psi)
	u, v := s[2], s[3]
	s[2] = c*u - sn*v
	s[3] = sn*u + c*v
}

// absorbEmit applies one segment of polarized absorption and emission in the
// magnetic frame, where alpha_U vanishes. The absorption matrix couples I to
// (Q, V); its exponential has the closed form below with tauP the polarized
// absorption depth. Emission uses an effective path that interpolates between
// the thin and thick limits.
func (s *stokesVec) absorbEmit(tauI, tauQ, tauV float64, jI, jQ, jV, dl float64) {
	att := math.Exp(-tauI)
	tauP := math.Hypot(tauQ, tauV)
	if tauP > 1e-30 {
		aQ, aV := tauQ/tauP, tauV/tauP
		ch, sh := math.Cosh(tauP), math.Sinh(tauP)
		sPar := s[1]*aQ + s[3]*aV // component along the absorption axis
		sQPerp := s[1] - sPar*aQ
		sVPerp := s[3] - sPar*aV
		i := att * (s[0]*ch - sPar*sh)
		par := att * (sPar*ch - s[0]*sh)
		s[0] = i
		s[1] = sQPerp*att + par*aQ
		s[3] = sVPerp*att + par*aV
	} else {
		s[0] *= att
		s[1] *= att
		s[3] *= att
	}
	s[2] *= att

	emit := dl
	if tauI > 1e-30 {
		emit = dl * (1.0 - att) / tauI
	}
	s[0] += jI * emit
	s[1] += jQ * emit
	s[3] += jV * emit
}

// integratePolarized transports the Stokes vector along each ray. The
// polarization basis is parallel-transported from the camera down to the
// source first, then carried forward with the transfer so the final Stokes
// parameters are referenced to the camera's vertical direction.
func (r *Integrator) integratePolarized(level int, view geodesic.View) {
	off := r.off
	numPix := r.numPix[level]
	img := r.Image[level]
	freq := r.cfg.Image.Frequency
	nu3 := freq * freq * freq

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		var gamma [4][4][4]float64
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			if num <= 0 {
				continue
			}
			if r.poisoned(level, view, m) {
				r.poisonPixel(level, m)
				continue
			}
			base := m * view.Slots
			nStart := r.turnStart[level][m]

			// Transport the camera's vertical basis vector back along the
			// ray to the integration start.
			f := r.cam.VertCon
			for n := num - 2; n >= nStart; n-- {
				s := base + n
				dLambda := view.Len[s]
				if dLambda <= 0 {
					continue
				}
				mid := s + 1
				xx := view.Pos[mid*4+1]
				yy := view.Pos[mid*4+2]
				zz := view.Pos[mid*4+3]
				r.christoffel(xx, yy, zz, &gamma)
				kCon := r.raise(xx, yy, zz, view.Dir[mid*4:mid*4+4])
				var df [4]float64
				for mu := 0; mu < 4; mu++ {
					for a := 0; a < 4; a++ {
						for b := 0; b < 4; b++ {
							df[mu] += gamma[mu][a][b] * kCon[a] * f[b]
						}
					}
				}
				for mu := 0; mu < 4; mu++ {
					f[mu] += dLambda * df[mu]
				}
			}

			// Forward pass: undo the transport step by step while applying
			// the local transfer operator.
			var st stokesVec
			for n := nStart; n < num; n++ {
				s := base + n
				dLambda := view.Len[s]
				if dLambda <= 0 {
					continue
				}
				dl := dLambda * r.dlInv

				chi := r.basisAngle(view, s, f)
				st.rotateQU(-2.0 * chi)
				st.rotateQU(r.rotV[level][s] * dl / 2.0)
				st.rotateUV(r.rotQ[level][s] * dl / 2.0)
				st.absorbEmit(
					r.alphaI[level][s]*dl, r.alphaQ[level][s]*dl, r.alphaV[level][s]*dl,
					r.jI[level][s], r.jQ[level][s], r.jV[level][s], dl)
				st.rotateUV(r.rotQ[level][s] * dl / 2.0)
				st.rotateQU(r.rotV[level][s] * dl / 2.0)
				st.rotateQU(2.0 * chi)

				// Advance the transported basis toward the observer.
				mid := s + 1
				xx := view.Pos[mid*4+1]
				yy := view.Pos[mid*4+2]
				zz := view.Pos[mid*4+3]
				r.christoffel(xx, yy, zz, &gamma)
				kCon := r.raise(xx, yy, zz, view.Dir[mid*4:mid*4+4])
				var df [4]float64
				for mu := 0; mu < 4; mu++ {
					for a := 0; a < 4; a++ {
						for b := 0; b < 4; b++ {
							df[mu] += gamma[mu][a][b] * kCon[a] * f[b]
						}
					}
				}
				for mu := 0; mu < 4; mu++ {
					f[mu] -= dLambda * df[mu]
				}
			}

			for q := 0; q < 4; q++ {
				img[(off.Light+q)*numPix+m] = st[q] * nu3
			}
			if off.Time >= 0 {
				img[off.Time*numPix+m] = view.Pos[base*4+0]
			}
			r.accumulateScalars(level, view, m)
		}
	})
}

// raise converts a covariant momentum at a point to contravariant components.
func (r *Integrator) raise(x, y, z float64, kCov []float64) [4]float64 {
	var gcon geometry.Tensor
	geometry.Contravariant(x, y, z, r.bhM, r.bhA, &gcon)
	var kCon [4]float64
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			kCon[mu] += gcon[mu][nu] * kCov[nu]
		}
	}
	return kCon
}

// basisAngle returns the angle from the transported polarization basis vector
// to the local magnetic field direction projected perpendicular to the ray,
// measured in the plane orthogonal to the photon momentum.
func (r *Integrator) basisAngle(view geodesic.View, s int, f [4]float64) float64 {
	pr := r.levelPrims(s, view)
	if pr == nil {
		return 0
	}
	x := view.Pos[s*4+1]
	y := view.Pos[s*4+2]
	z := view.Pos[s*4+3]

	rad := geometry.RadialCoordinate(x, y, z, r.bhA)
	cth := z / rad
	sth := math.Sqrt(1.0 - cth*cth)
	ph := math.Atan2(y, x) - math.Atan(r.bhA/rad)
	sph, cph := math.Sin(ph), math.Cos(ph)
	b1 := sth*cph*pr.b1 + cth*(rad*cph-r.bhA*sph)*pr.b2 + sth*(-rad*sph-r.bhA*cph)*pr.b3
	b2 := sth*sph*pr.b1 + cth*(rad*sph+r.bhA*cph)*pr.b2 + sth*(rad*cph-r.bhA*sph)*pr.b3
	b3 := cth*pr.b1 - rad*sth*pr.b2
	bVec := [4]float64{0, b1, b2, b3}

	var gcov geometry.Tensor
	geometry.Covariant(x, y, z, r.bhM, r.bhA, &gcov)
	kCon := r.raise(x, y, z, view.Dir[s*4:s*4+4])

	// Project both vectors perpendicular to k within the spatial slice and
	// measure the angle between them.
	dot := func(u, v [4]float64) float64 {
		sum := 0.0
		for mu := 0; mu < 4; mu++ {
			for nu := 0; nu < 4; nu++ {
				sum += gcov[mu][nu] * u[mu] * v[nu]
			}
		}
		return sum
	}
	kk := dot(kCon, kCon)
	proj := func(v [4]float64) [4]float64 {
		if math.Abs(kk) < 1e-30 {
			return v
		}
		c := dot(v, kCon) / kk
		for mu := 0; mu < 4; mu++ {
			v[mu] -= c * kCon[mu]
		}
		return v
	}
	bp := proj(bVec)
	fp := proj(f)
	bb := dot(bp, bp)
	ff := dot(fp, fp)
	if bb <= 0 || ff <= 0 {
		return 0
	}
	cosChi := dot(bp, fp) / math.Sqrt(bb*ff)
	cosChi = math.Max(-1.0, math.Min(1.0, cosChi))
	return math.Acos(cosChi)
}

// samplePrimB is the magnetic field of one sample in spherical components.
type samplePrimB struct {
	b1, b2, b3 float64
}

// levelPrims fetches the field primitives backing basisAngle; nil when the
// run has no sampled field data.
func (r *Integrator) levelPrims(s int, view geodesic.View) *samplePrimB {
	level := r.adaptiveLevel
	if len(r.prims) <= level || r.prims[level].bb1 == nil {
		return nil
	}
	pr := &r.prims[level]
	return &samplePrimB{b1: pr.bb1[s], b2: pr.bb2[s], b3: pr.bb3[s]}
}

// accumulateScalars fills the non-light scalar quantities of one pixel. The
// unpolarized integrator accumulates these inline; the polarized path shares
// this helper instead.
func (r *Integrator) accumulateScalars(level int, view geodesic.View, m int) {
	off := r.off
	numPix := r.numPix[level]
	img := r.Image[level]
	num := view.Num[m]
	base := m * view.Slots
	nStart := r.turnStart[level][m]

	tauTot := 0.0
	lambdaTot := 0.0
	lengthTot := 0.0
	emissionTot := 0.0
	var lamAve, emiAve, tauInt [NumCellValues]float64
	lamDen, emiDen := 0.0, 0.0

	for n := nStart; n < num; n++ {
		s := base + n
		dLambda := view.Len[s]
		if dLambda <= 0 {
			continue
		}
		j := r.jI[level][s]
		dTau := r.alphaI[level][s] * dLambda * r.dlInv
		tauTot += dTau
		lambdaTot += dLambda
		emissionTot += j * dLambda
		if off.Length >= 0 && n+1 < num {
			lengthTot += r.properLength(view, s) * r.rgCGS
		}
		if off.LambdaAve >= 0 || off.EmissionAve >= 0 || off.TauInt >= 0 {
			cv := r.cellVals[level][s*NumCellValues : (s+1)*NumCellValues]
			for c := 0; c < NumCellValues; c++ {
				lamAve[c] += cv[c] * dLambda
				emiAve[c] += cv[c] * j * dLambda
				tauInt[c] += cv[c] * dTau
			}
			lamDen += dLambda
			emiDen += j * dLambda
		}
	}

	if off.Length >= 0 {
		img[off.Length*numPix+m] = lengthTot
	}
	if off.Lambda >= 0 {
		img[off.Lambda*numPix+m] = lambdaTot
	}
	if off.Emission >= 0 {
		img[off.Emission*numPix+m] = emissionTot
	}
	if off.Tau >= 0 {
		img[off.Tau*numPix+m] = tauTot
	}
	for c := 0; c < NumCellValues; c++ {
		if off.LambdaAve >= 0 && lamDen > 0 {
			img[(off.LambdaAve+c)*numPix+m] = lamAve[c] / lamDen
		}
		if off.EmissionAve >= 0 && emiDen > 0 {
			img[(off.EmissionAve+c)*numPix+m] = emiAve[c] / emiDen
		}
		if off.TauInt >= 0 {
			img[(off.TauInt+c)*numPix+m] = tauInt[c]
		}
	}
}
