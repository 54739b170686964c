package radiation

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/geometry"
	"github.com/HerculesJack/blacklight/pkg/units"
)

const (
	sqrt2Pi27 = math.Sqrt2 * math.Pi / 27.0
	// 2^(11/12), from the thermal synchrotron fitting formula.
	twoElevenTwelfths = 1.8868674
)

// kappaPolTable interpolates polarization ratio factors for the kappa
// distribution at kappa in {3.5, 4, 4.5, 5}, following the tabulated fits of
// Marszewski et al. 2021. Configurations outside this range are rejected at
// validation time.
var kappaPolTable = struct {
	kappa []float64
	jQ    []float64 // |j_Q|/j_I
	jV    []float64 // |j_V|/j_I before the cos(theta) factor
	aQ    []float64 // |alpha_Q|/alpha_I
	aV    []float64 // |alpha_V|/alpha_I before the cos(theta) factor
}{
	kappa: []float64{3.5, 4.0, 4.5, 5.0},
	jQ:    []float64{0.560, 0.600, 0.630, 0.655},
	jV:    []float64{0.168, 0.152, 0.140, 0.130},
	aQ:    []float64{0.530, 0.580, 0.615, 0.645},
	aV:    []float64{0.190, 0.170, 0.155, 0.143},
}

func kappaPolFactor(table []float64, kappa float64) float64 {
	ks := kappaPolTable.kappa
	if kappa <= ks[0] {
		return table[0]
	}
	for i := 1; i < len(ks); i++ {
		if kappa <= ks[i] {
			f := (kappa - ks[i-1]) / (ks[i] - ks[i-1])
			return table[i-1]*(1-f) + table[i]*f
		}
	}
	return table[len(table)-1]
}

// coefSet carries the fluid-frame coefficients of one sample in CGS units.
type coefSet struct {
	jI, jQ, jV float64
	aI, aQ, aV float64
	rQ, rV     float64
}

// simulationCoefficients evaluates synchrotron emission, absorption, and
// Faraday coefficients at every sample from the extracted primitives, storing
// them as relativistic invariants (j/nu^2, alpha*nu, rho*nu).
func (r *Integrator) simulationCoefficients(level int, view geodesic.View) {
	pr := &r.prims[level]
	nanFlags := r.sampleNaN[level]
	plasma := r.cfg.Plasma
	sim := r.cfg.Simulation
	nan := math.NaN()
	momentumFactor := r.cam.MomentumFactor
	wantCells := r.needCellValues()

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			base := m * view.Slots

			if r.cfg.Fallback.NaN && view.Flags[m] {
				for n := 0; n < num; n++ {
					r.storeInvariant(level, base+n, coefSet{
						jI: nan, jQ: nan, jV: nan, aI: nan, aQ: nan, aV: nan,
						rQ: nan, rV: nan,
					}, nan)
					if wantCells {
						for c := 0; c < NumCellValues; c++ {
							r.cellVals[level][(base+n)*NumCellValues+c] = nan
						}
					}
				}
				continue
			}

			for n := 0; n < num; n++ {
				s := base + n
				// Out-of-domain samples under NaN fallback carry explicit NaN
				// coefficients; relying on propagation from NaN primitives
				// would let guarded branches turn them into silent zeros.
				if nanFlags[s] {
					r.storeInvariant(level, s, coefSet{
						jI: nan, jQ: nan, jV: nan, aI: nan, aQ: nan, aV: nan,
						rQ: nan, rV: nan,
					}, 1.0)
					if wantCells {
						for c := 0; c < NumCellValues; c++ {
							r.cellVals[level][s*NumCellValues+c] = nan
						}
					}
					continue
				}
				x := view.Pos[s*4+1]
				y := view.Pos[s*4+2]
				z := view.Pos[s*4+3]

				rad := geometry.RadialCoordinate(x, y, z, r.bhA)
				cth := z / rad
				sth := math.Sqrt(1.0 - cth*cth)
				ph := math.Atan2(y, x) - math.Atan(r.bhA/rad)
				sph, cph := math.Sin(ph), math.Cos(ph)

				// Transform primitives from spherical to Cartesian
				// Kerr-Schild components.
				toCart := func(vr, vth, vph float64) (v1, v2, v3 float64) {
					v1 = sth*cph*vr + cth*(rad*cph-r.bhA*sph)*vth + sth*(-rad*sph-r.bhA*cph)*vph
					v2 = sth*sph*vr + cth*(rad*sph+r.bhA*cph)*vth + sth*(rad*cph-r.bhA*sph)*vph
					v3 = cth*vr - rad*sth*vth
					return
				}
				u1, u2, u3 := toCart(pr.uu1[s], pr.uu2[s], pr.uu3[s])
				bb1, bb2, bb3 := toCart(pr.bb1[s], pr.bb2[s], pr.bb3[s])

				var gcov geometry.Tensor
				geometry.Covariant(x, y, z, r.bhM, r.bhA, &gcov)

				// Normalize the fluid 4-velocity: the future root of
				// g_00 u0^2 + 2 g_0i u0 ui + g_ij ui uj = -1.
				uSp := [4]float64{0, u1, u2, u3}
				a0 := gcov[0][0]
				b0 := gcov[0][1]*u1 + gcov[0][2]*u2 + gcov[0][3]*u3
				q0 := 0.0
				for i := 1; i < 4; i++ {
					for j := 1; j < 4; j++ {
						q0 += gcov[i][j] * uSp[i] * uSp[j]
					}
				}
				u0 := (-b0 - math.Sqrt(b0*b0-a0*(1.0+q0))) / a0
				uCon := [4]float64{u0, u1, u2, u3}
				var uCov [4]float64
				for mu := 0; mu < 4; mu++ {
					for nu := 0; nu < 4; nu++ {
						uCov[mu] += gcov[mu][nu] * uCon[nu]
					}
				}

				// Magnetic 4-vector in the fluid frame.
				bCon0 := uCov[1]*bb1 + uCov[2]*bb2 + uCov[3]*bb3
				bCon := [4]float64{
					bCon0,
					(bb1 + bCon0*u1) / u0,
					(bb2 + bCon0*u2) / u0,
					(bb3 + bCon0*u3) / u0,
				}
				bsq := 0.0
				for mu := 0; mu < 4; mu++ {
					for nu := 0; nu < 4; nu++ {
						bsq += gcov[mu][nu] * bCon[mu] * bCon[nu]
					}
				}
				if bsq < 0 {
					bsq = 0
				}

				// CGS plasma state.
				rhoCode := pr.rho[s]
				rhoCGS := rhoCode * sim.RhoCGS
				nI := rhoCGS / (plasma.Mu * units.MProton)
				nE := plasma.NeNi * nI
				pCGS := pr.pgas[s] * sim.RhoCGS * units.C * units.C
				bCGS := math.Sqrt(4.0*math.Pi*bsq*sim.RhoCGS) * units.C
				sigma := 0.0
				if rhoCode > 0 {
					sigma = bsq / rhoCode
				}
				betaInv := 0.0
				if pr.pgas[s] > 0 {
					betaInv = bsq / (2.0 * pr.pgas[s])
				}

				// Electron temperature.
				var thetaE float64
				if plasma.Model == config.PlasmaCodeKappa {
					// Entropy prescription with electron adiabatic index 4/3.
					thetaE = pr.kappa[s] * math.Pow(rhoCode, 1.0/3.0) *
						units.MProton / units.MElectron
				} else {
					// Unmagnetized cells sit in the high-beta limit.
					ratio := plasma.RatHigh
					if bsq > 0 {
						beta := pr.pgas[s] / (0.5 * bsq)
						b2 := beta * beta
						ratio = (plasma.RatHigh*b2 + plasma.RatLow) / (1.0 + b2)
					}
					kTe := pCGS / (nI*ratio + nE)
					thetaE = kTe / (units.MElectron * units.C * units.C)
				}

				if wantCells {
					cv := r.cellVals[level][s*NumCellValues : (s+1)*NumCellValues]
					cv[0] = rhoCGS
					cv[1] = nE
					cv[2] = pCGS
					cv[3] = thetaE
					cv[4] = bCGS
					cv[5] = sigma
					cv[6] = betaInv
				}

				// Highly magnetized cells are left dark.
				if plasma.SigmaMax >= 0 && sigma > plasma.SigmaMax {
					r.storeInvariant(level, s, coefSet{}, 1.0)
					continue
				}

				// Frequency and pitch angle in the fluid frame.
				nuCode := -(uCon[0]*view.Dir[s*4+0] + uCon[1]*view.Dir[s*4+1] +
					uCon[2]*view.Dir[s*4+2] + uCon[3]*view.Dir[s*4+3])
				nuCGS := nuCode * momentumFactor
				cosTh := 0.0
				if bsq > 0 && nuCode != 0 {
					kb := bCon[0]*view.Dir[s*4+0] + bCon[1]*view.Dir[s*4+1] +
						bCon[2]*view.Dir[s*4+2] + bCon[3]*view.Dir[s*4+3]
					cosTh = kb / (nuCode * math.Sqrt(bsq))
					cosTh = math.Max(-1.0, math.Min(1.0, cosTh))
				}
				sinTh := math.Sqrt(1.0 - cosTh*cosTh)

				c := synchrotronCoefficients(plasma, nE, bCGS, thetaE, nuCGS,
					sinTh, cosTh, r.polarized)
				r.storeInvariant(level, s, c, nuCGS)
			}
		}
	})
}

// storeInvariant writes one sample's coefficients as invariants. nu is the
// fluid-frame frequency; a zero coefSet stores zeros regardless.
func (r *Integrator) storeInvariant(level, s int, c coefSet, nu float64) {
	nu2 := nu * nu
	r.jI[level][s] = c.jI / nu2
	r.alphaI[level][s] = c.aI * nu
	if r.polarized {
		r.jQ[level][s] = c.jQ / nu2
		r.jV[level][s] = c.jV / nu2
		r.alphaQ[level][s] = c.aQ * nu
		r.alphaV[level][s] = c.aV * nu
		r.rotQ[level][s] = c.rQ * nu
		r.rotV[level][s] = c.rV * nu
	}
}

// planck evaluates the Planck specific intensity at dimensionless electron
// temperature thetaE.
func planck(nu, thetaE float64) float64 {
	x := units.HPlanck * nu / (thetaE * units.MElectron * units.C * units.C)
	return 2.0 * units.HPlanck * nu * nu * nu / (units.C * units.C) / math.Expm1(x)
}

// synchrotronCoefficients blends thermal, power-law, and kappa electron
// populations into total fluid-frame coefficients.
//
// Thermal emission follows the fit of Leung et al. 2011 with the polarized
// extensions of Dexter 2016; thermal Faraday coefficients follow Shcherbakov
// 2008. Power-law coefficients follow Pandya et al. 2016, as do the
// low/high-frequency blended kappa coefficients.
func synchrotronCoefficients(plasma config.PlasmaParams, nE, bCGS, thetaE,
	nuCGS, sinTh, cosTh float64, polarized bool) coefSet {
	var c coefSet
	if nE <= 0 || bCGS <= 0 || nuCGS <= 0 {
		return c
	}
	nuCyc := units.ECharge * bCGS / (2.0 * math.Pi * units.MElectron * units.C)

	// Thermal population.
	thermalFrac := plasma.ThermalFrac()
	if thermalFrac > 0 && thetaE > 0 {
		nuS := 2.0 / 9.0 * nuCyc * thetaE * thetaE * sinTh
		if nuS > 0 {
			xx := nuCGS / nuS
			x12 := math.Sqrt(xx)
			x16 := math.Pow(xx, 1.0/6.0)
			damp := math.Exp(-math.Cbrt(xx))
			prefac := thermalFrac * nE * units.ECharge * units.ECharge * nuS / units.C
			jI := prefac * sqrt2Pi27 * (x12 + twoElevenTwelfths*x16) *
				(x12 + twoElevenTwelfths*x16) * damp
			bb := planck(nuCGS, thetaE)
			aI := 0.0
			if bb > 0 {
				aI = jI / bb
			}
			c.jI += jI
			c.aI += aI
			if polarized {
				t := math.Pow(thetaE, 24.0/25.0)
				fQ := (7.0*t + 35.0) / (10.0*t + 75.0)
				jQ := prefac * sqrt2Pi27 * (x12 + fQ*twoElevenTwelfths*x16) *
					(x12 + fQ*twoElevenTwelfths*x16) * damp
				// Circular emission scales with the projected field and
				// drops with temperature.
				jV := jI * (2.0 * cosTh) / (5.0 * thetaE * sinThFloor(sinTh))
				c.jQ += jQ
				c.jV += jV
				if bb > 0 {
					c.aQ += jQ / bb
					c.aV += jV / bb
				}

				// Faraday rotation and conversion.
				invTheta := 1.0 / thetaE
				ratio02, ratio12 := 1.0, 1.0
				if invTheta < 600 {
					k2 := besselK2(invTheta)
					ratio02 = besselK0(invTheta) / k2
					ratio12 = besselK1(invTheta) / k2
				}
				e3 := units.ECharge * units.ECharge * units.ECharge
				me2c2 := units.MElectron * units.MElectron * units.C * units.C
				c.rV += 2.0 * math.Pi * nE * e3 * bCGS * cosTh * ratio02 /
					(math.Pi * math.Pi * me2c2 * units.C * nuCGS * nuCGS) * thermalFrac
				e4 := e3 * units.ECharge
				me3c4 := me2c2 * units.MElectron * units.C * units.C
				c.rQ += -nE * e4 * bCGS * bCGS * sinTh * sinTh *
					(ratio12 + 6.0*thetaE) /
					(4.0 * math.Pi * math.Pi * me3c4 * nuCGS * nuCGS * nuCGS) * thermalFrac
			}
		}
	}

	// Power-law population.
	if plasma.PowerFrac > 0 {
		p := plasma.P
		gNorm := math.Pow(plasma.GammaMin, 1.0-p) - math.Pow(plasma.GammaMax, 1.0-p)
		nuCS := nuCyc * sinThFloor(sinTh)
		if gNorm > 0 && nuCS > 0 {
			nPL := plasma.PowerFrac * nE
			xp := nuCGS / nuCS
			jP := nPL * units.ECharge * units.ECharge * nuCS / units.C *
				math.Pow(3.0, p/2.0) * (p - 1.0) / (2.0 * (p + 1.0) * gNorm) *
				math.Gamma((3.0*p-1.0)/12.0) * math.Gamma((3.0*p+19.0)/12.0) *
				math.Pow(xp, -(p-1.0)/2.0)
			aP := nPL * units.ECharge * units.ECharge /
				(nuCGS * units.MElectron * units.C) *
				math.Pow(3.0, (p+1.0)/2.0) * (p - 1.0) / (4.0 * gNorm) *
				math.Gamma((3.0*p+2.0)/12.0) * math.Gamma((3.0*p+22.0)/12.0) *
				math.Pow(xp, -(p+2.0)/2.0)
			c.jI += jP
			c.aI += aP
			if polarized {
				// Classic linear polarization degree of an isotropic
				// power-law distribution.
				pol := (p + 1.0) / (p + 7.0/3.0)
				c.jQ += jP * pol
				c.aQ += aP * pol
			}
		}
	}

	// Kappa population.
	if plasma.KappaFrac > 0 {
		kap := plasma.Kappa
		w := plasma.W
		nuK := nuCyc * sinThFloor(sinTh) * (w * kap) * (w * kap)
		if nuK > 0 && kap > 3.0 {
			nK := plasma.KappaFrac * nE
			xk := nuCGS / nuK
			jLow := math.Pow(xk, 1.0/3.0) * sinTh * 4.0 * math.Pi *
				math.Gamma(kap-4.0/3.0) / (math.Pow(3.0, 7.0/3.0) * math.Gamma(kap-2.0))
			jHigh := math.Pow(xk, -(kap-2.0)/2.0) * sinTh *
				math.Pow(3.0, (kap-1.0)/2.0) * (kap - 2.0) * (kap - 1.0) / 4.0 *
				math.Gamma(kap/4.0-1.0/3.0) * math.Gamma(kap/4.0+4.0/3.0)
			blend := 3.0 * math.Pow(kap, -1.5)
			jK := nK * units.ECharge * units.ECharge * nuCyc / units.C *
				math.Pow(math.Pow(jLow, -blend)+math.Pow(jHigh, -blend), -1.0/blend)
			// Source function of a thermal-like population at the kappa
			// distribution's characteristic temperature.
			thetaEff := w * kap / (kap - 3.0)
			bb := planck(nuCGS, thetaEff)
			aK := 0.0
			if bb > 0 {
				aK = jK / bb
			}
			c.jI += jK
			c.aI += aK
			if polarized {
				fJQ := kappaPolFactor(kappaPolTable.jQ, kap)
				fJV := kappaPolFactor(kappaPolTable.jV, kap)
				fAQ := kappaPolFactor(kappaPolTable.aQ, kap)
				fAV := kappaPolFactor(kappaPolTable.aV, kap)
				c.jQ += jK * fJQ
				c.jV += jK * fJV * cosTh
				c.aQ += aK * fAQ
				c.aV += aK * fAV * cosTh
			}
		}
	}
	return c
}

// sinThFloor keeps pitch-angle factors finite for field-aligned rays.
func sinThFloor(sinTh float64) float64 {
	const floor = 1e-10
	if sinTh < floor {
		return floor
	}
	return sinTh
}
