package geodesic

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// IntegrateRange traces the pixels [lo, hi) of a level using the given
// worker's scratch buffers. Ranges never overlap, so no locking is needed:
// each pixel's output slice has a single writer.
func (g *Integrator) IntegrateRange(level, worker, lo, hi int) {
	w := &g.scratch[worker]
	for pix := lo; pix < hi; pix++ {
		g.integratePixel(w, level, pix)
	}
}

// derivative fills k with dy/dlambda at state y. The affine parameter runs
// from the observer toward the source, i.e. opposite the photon's motion, so
// both Hamilton equations carry a flipped sign relative to the forward form.
func (g *Integrator) derivative(w *workerScratch, y, k *[9]float64) {
	if g.ray.Flat {
		geometry.Minkowski(nil, &w.gcon, &w.dgcon)
	} else {
		geometry.Contravariant(y[1], y[2], y[3], g.bhM, g.bhA, &w.gcon)
		geometry.ContravariantDerivative(y[1], y[2], y[3], g.bhM, g.bhA, &w.dgcon)
	}
	w.stats.Evaluations++

	// dx^mu/dlambda = -g^{mu nu} k_nu
	for mu := 0; mu < 4; mu++ {
		sum := 0.0
		for nu := 0; nu < 4; nu++ {
			sum += w.gcon[mu][nu] * y[4+nu]
		}
		k[mu] = -sum
	}
	// dk_i/dlambda = +1/2 d_i g^{ab} k_a k_b; k_0 is conserved.
	k[4] = 0
	for i := 0; i < 3; i++ {
		sum := 0.0
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				sum += w.dgcon[i][a][b] * y[4+a] * y[4+b]
			}
		}
		k[5+i] = 0.5 * sum
	}
	// d(lambda)/d(lambda)
	k[8] = 1
}

// stepFactor is the bounded step-size update of the embedded 3(2) pair.
func (g *Integrator) stepFactor(err float64) float64 {
	var factor float64
	if err <= 0 {
		factor = g.ray.MaxFactor
	} else {
		factor = g.ray.ErrFactor * math.Pow(err, -1.0/3.0)
	}
	return math.Min(math.Max(factor, g.ray.MinFactor), g.ray.MaxFactor)
}

// integratePixel traces one geodesic and writes its reversed samples into
// the level arrays.
func (g *Integrator) integratePixel(w *workerScratch, level, pix int) {
	var y, ynew, z [9]float64
	var k1, k2, k3, k4, ytmp [9]float64

	copy(y[0:4], g.cam.Pos[level][pix*4:pix*4+4])
	copy(y[4:8], g.cam.Dir[level][pix*4:pix*4+4])
	y[8] = 0

	rCam := geometry.RadialCoordinate(y[1], y[2], y[3], g.bhA)
	h := g.ray.Step * rCam

	copy(w.fwdPos[0:4], y[0:4])
	copy(w.fwdDir[0:4], y[4:8])
	w.fwdLen[0] = 0
	num := 1

	status := Active
	g.derivative(w, &y, &k1)

	for num <= g.ray.MaxSteps && status == Active {
		// Attempt a step, shrinking on error-control rejection.
		accepted := false
		var errNorm float64
		for retry := 0; retry <= g.ray.MaxRetries; retry++ {
			for i := 0; i < 9; i++ {
				ytmp[i] = y[i] + 0.5*h*k1[i]
			}
			g.derivative(w, &ytmp, &k2)
			for i := 0; i < 9; i++ {
				ytmp[i] = y[i] + 0.75*h*k2[i]
			}
			g.derivative(w, &ytmp, &k3)
			for i := 0; i < 9; i++ {
				ynew[i] = y[i] + h*(2.0/9.0*k1[i]+1.0/3.0*k2[i]+4.0/9.0*k3[i])
			}
			g.derivative(w, &ynew, &k4)
			for i := 0; i < 9; i++ {
				z[i] = y[i] + h*(7.0/24.0*k1[i]+1.0/4.0*k2[i]+1.0/3.0*k3[i]+1.0/8.0*k4[i])
			}

			errNorm = 0
			for i := 0; i < 9; i++ {
				scale := g.ray.TolAbs + g.ray.TolRel*math.Abs(ynew[i])
				if e := math.Abs(ynew[i]-z[i]) / scale; e > errNorm {
					errNorm = e
				}
			}
			if errNorm <= 1.0 || math.IsNaN(errNorm) {
				if math.IsNaN(errNorm) {
					// A NaN state cannot recover; treat as failure.
					break
				}
				accepted = true
				break
			}
			w.stats.Rejected++
			h *= g.stepFactor(errNorm)
		}
		if !accepted {
			status = Failed
			break
		}

		y = ynew
		k1 = k4 // first-same-as-last
		w.stats.Steps++

		copy(w.fwdPos[num*4:num*4+4], y[0:4])
		copy(w.fwdDir[num*4:num*4+4], y[4:8])
		w.fwdLen[num] = y[8]
		num++

		h *= g.stepFactor(errNorm)

		// Termination tests.
		if g.ray.Flat {
			dot := 0.0
			prevDot := 0.0
			for i := 1; i < 4; i++ {
				dot += y[i] * g.cam.NormCon[i]
				prevDot += w.fwdPos[(num-2)*4+i] * g.cam.NormCon[i]
			}
			if dot >= 0 {
				// Flat-space motion is linear in lambda; pull the final
				// sample back to the exact plane crossing so the large
				// zero-error steps do not overshoot the image plane.
				if dot > 0 && prevDot < 0 {
					frac := prevDot / (prevDot - dot)
					for i := 0; i < 4; i++ {
						prev := w.fwdPos[(num-2)*4+i]
						w.fwdPos[(num-1)*4+i] = prev + frac*(y[i]-prev)
					}
					w.fwdLen[num-1] = w.fwdLen[num-2] + frac*(w.fwdLen[num-1]-w.fwdLen[num-2])
				}
				status = Converged
			}
		} else {
			r := geometry.RadialCoordinate(y[1], y[2], y[3], g.bhA)
			if r < g.rTerminate || r > g.rEscape {
				status = Converged
			}
		}
	}
	if status == Active {
		status = Terminated
	}

	g.Statuses[level][pix] = status
	g.Flags[level][pix] = status != Converged
	g.Num[level][pix] = num

	// Reverse so index 0 is nearest the source. Len[i] becomes the affine
	// increment of the segment from sample i to sample i+1; with forward
	// cumulative lengths L[0..n-1] this is L[n-1-i] - L[n-2-i]. Worked
	// example: n = 3, L = {0, 2, 5} gives Len = {3, 2, 0}, so the transfer
	// walk 0->1->2 first crosses the far (source-side) segment.
	base4 := pix * g.slots * 4
	base1 := pix * g.slots
	for i := 0; i < num; i++ {
		j := num - 1 - i
		copy(g.Pos[level][base4+i*4:base4+i*4+4], w.fwdPos[j*4:j*4+4])
		copy(g.Dir[level][base4+i*4:base4+i*4+4], w.fwdDir[j*4:j*4+4])
		if j >= 1 {
			g.Len[level][base1+i] = w.fwdLen[j] - w.fwdLen[j-1]
		} else {
			g.Len[level][base1+i] = 0
		}
	}
}
