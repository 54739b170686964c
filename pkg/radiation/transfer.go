package radiation

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// updateIntensity advances the invariant intensity across one segment with
// invariant coefficients j and alpha and invariant path length dl. The
// optically thick limit relaxes toward the source function; the thin limit
// reduces to a pure emission increment.
func updateIntensity(iInv, j, alpha, dl float64) (float64, float64) {
	dTau := alpha * dl
	if dTau < 1e-30 {
		return iInv + j*dl, dTau
	}
	att := math.Exp(-dTau)
	return iInv*att + j/alpha*(1.0-att), dTau
}

// integrateUnpolarized walks each ray from its source-most sample toward the
// observer, accumulating the intensity and every enabled scalar quantity.
func (r *Integrator) integrateUnpolarized(level int, view geodesic.View) {
	off := r.off
	numPix := r.numPix[level]
	img := r.Image[level]
	freq := r.cfg.Image.Frequency
	nu3 := freq * freq * freq

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
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

			iInv := 0.0
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
				dl := dLambda * r.dlInv
				j := r.jI[level][s]
				alpha := r.alphaI[level][s]

				var dTau float64
				iInv, dTau = updateIntensity(iInv, j, alpha, dl)
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

			if off.Light >= 0 {
				img[off.Light*numPix+m] = iInv * nu3
			}
			if off.Time >= 0 {
				img[off.Time*numPix+m] = view.Pos[base*4+0]
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
	})
}

// properLength returns the proper spatial distance between sample s and its
// successor, measured in the normal frame of the local metric, in
// gravitational units.
func (r *Integrator) properLength(view geodesic.View, s int) float64 {
	x := view.Pos[s*4+1]
	y := view.Pos[s*4+2]
	z := view.Pos[s*4+3]
	var dx [4]float64
	for mu := 0; mu < 4; mu++ {
		dx[mu] = view.Pos[(s+1)*4+mu] - view.Pos[s*4+mu]
	}
	var gcov geometry.Tensor
	if r.cfg.Ray.Flat {
		geometry.Minkowski(&gcov, nil, nil)
	} else {
		geometry.Covariant(x, y, z, r.bhM, r.bhA, &gcov)
	}
	ds2 := 0.0
	for i := 1; i < 4; i++ {
		for j := 1; j < 4; j++ {
			ds2 += gcov[i][j] * dx[i] * dx[j]
		}
	}
	if ds2 < 0 {
		return 0
	}
	return math.Sqrt(ds2)
}
