package radiation

import (
	"fmt"
	"math"

	"github.com/HerculesJack/blacklight/pkg/geodesic"
	"github.com/HerculesJack/blacklight/pkg/geometry"
	"github.com/HerculesJack/blacklight/pkg/simdata"
)

// mapSamples locates every geodesic sample in the simulation grid, storing
// cell indices, interpolation fractions, and the snapshot pairing for slow
// light. The mapping depends only on geometry and timing, not on field data,
// so it is what the sample checkpoint captures.
func (r *Integrator) mapSamples(snapshot, level int, view geodesic.View) {
	inds := r.sampleInds[level]
	fracs := r.sampleFracs[level]
	nanFlags := r.sampleNaN[level]
	fallFlags := r.sampleFall[level]
	sl := r.cfg.SlowLight
	tol := 0.0
	if sl.On {
		tol = r.src.ExtrapolationTolerance()
	}
	numSnaps := r.cfg.Snapshots

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			base := m * view.Slots
			for n := 0; n < num; n++ {
				s := base + n
				nanFlags[s] = false
				fallFlags[s] = false

				t := view.Pos[s*4+0]
				x := view.Pos[s*4+1]
				y := view.Pos[s*4+2]
				z := view.Pos[s*4+3]

				// Spherical Kerr-Schild coordinates of the sample.
				rad := geometry.RadialCoordinate(x, y, z, r.bhA)
				th := math.Acos(z / rad)
				ph := math.Atan2(y, x) - math.Atan(r.bhA/rad)
				ph = math.Mod(ph, 2.0*math.Pi)
				if ph < 0 {
					ph += 2.0 * math.Pi
				}

				block, i, j, k, fr, fth, fph, ok := r.grid.CellIndex(rad, th, ph)
				if !ok {
					r.flagSample(nanFlags, fallFlags, s)
					continue
				}

				// Pair the sample with a snapshot. In slow-light mode the
				// sample's own coordinate time selects the bracket; samples
				// slightly outside the covered range clamp within the
				// extrapolation tolerance and fall back beyond it.
				snapInd, snapFrac := snapshot, 0.0
				if sl.On {
					tAbs := sl.TStart + float64(snapshot)*sl.DT + t
					f := (tAbs - sl.TStart) / sl.DT
					snapInd = int(math.Floor(f))
					snapFrac = f - float64(snapInd)
					switch {
					case snapInd < 0:
						if sl.TStart-tAbs > tol {
							r.flagSample(nanFlags, fallFlags, s)
							continue
						}
						snapInd, snapFrac = 0, 0.0
					case snapInd >= numSnaps-1:
						last := sl.TStart + float64(numSnaps-1)*sl.DT
						if tAbs-last > tol {
							r.flagSample(nanFlags, fallFlags, s)
							continue
						}
						snapInd, snapFrac = numSnaps-1, 0.0
					}
				}

				inds[s*5+0] = int32(block)
				inds[s*5+1] = int32(k)
				inds[s*5+2] = int32(j)
				inds[s*5+3] = int32(i)
				inds[s*5+4] = int32(snapInd)
				fracs[s*4+0] = fr
				fracs[s*4+1] = fth
				fracs[s*4+2] = fph
				fracs[s*4+3] = snapFrac
			}
		}
	})
}

// flagSample marks one sample as out of domain, routing it to NaN poisoning
// or to the fallback values depending on configuration.
func (r *Integrator) flagSample(nanFlags, fallFlags []bool, s int) {
	if r.cfg.Fallback.NaN {
		nanFlags[s] = true
	} else {
		fallFlags[s] = true
	}
}

// extractSamples gathers primitives from the mapped cells into the per-level
// primitive arrays, applying interpolation and fallback values.
func (r *Integrator) extractSamples(snapshot, level int, view geodesic.View) error {
	inds := r.sampleInds[level]
	fracs := r.sampleFracs[level]
	nanFlags := r.sampleNaN[level]
	fallFlags := r.sampleFall[level]
	pixNaN := r.pixelNaN[level]
	pr := &r.prims[level]
	fb := r.cfg.Fallback
	sim := r.cfg.Simulation
	sl := r.cfg.SlowLight
	nan := math.NaN()

	// Resolve snapshot pointers before entering the parallel region. The
	// mapped bracket indices drive the set only in slow-light mode; otherwise
	// the current snapshot is the single one read.
	needed := map[int]bool{snapshot: true}
	if sl.On {
		for m := 0; m < view.NumPix; m++ {
			base := m * view.Slots
			for n := 0; n < view.Num[m]; n++ {
				s := base + n
				if nanFlags[s] || fallFlags[s] {
					continue
				}
				ind := int(inds[s*5+4])
				frac := fracs[s*4+3]
				needed[ind] = true
				if frac > 0 && (sl.Interp || frac >= 0.5) {
					needed[ind+1] = true
				}
			}
		}
		// Snapshots are fetched a chunk at a time so a slowly advancing
		// bracket reuses resident data instead of re-reading every call.
		if cs := sl.ChunkSize; cs > 1 {
			starts := make(map[int]bool)
			for ind := range needed {
				starts[(ind/cs)*cs] = true
			}
			for start := range starts {
				for t := start; t < start+cs && t < r.cfg.Snapshots; t++ {
					needed[t] = true
				}
			}
		}
	}
	for ind := range needed {
		if _, ok := r.snapCache[ind]; ok {
			continue
		}
		snap, err := r.src.Snapshot(ind)
		if err != nil {
			return fmt.Errorf("radiation: %w", err)
		}
		r.snapCache[ind] = snap
	}
	// Old snapshots are dropped once no sample references them, bounding the
	// resident set in long slow-light runs.
	for ind := range r.snapCache {
		if !needed[ind] {
			delete(r.snapCache, ind)
		}
	}

	names := [9]string{
		simdata.VarRho, simdata.VarPGas, simdata.VarKappa,
		simdata.VarUU1, simdata.VarUU2, simdata.VarUU3,
		simdata.VarBB1, simdata.VarBB2, simdata.VarBB3,
	}
	dest := [9][]float64{
		pr.rho, pr.pgas, pr.kappa, pr.uu1, pr.uu2, pr.uu3, pr.bb1, pr.bb2, pr.bb3,
	}

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			base := m * view.Slots
			pixNaN[m] = false
			for n := 0; n < num; n++ {
				s := base + n
				if nanFlags[s] {
					pixNaN[m] = true
					for v := range dest {
						dest[v][s] = nan
					}
					continue
				}
				if fallFlags[s] {
					pr.rho[s] = fb.Rho
					pr.pgas[s] = fb.PGas
					pr.kappa[s] = fb.Kappa
					pr.uu1[s], pr.uu2[s], pr.uu3[s] = 0, 0, 0
					pr.bb1[s], pr.bb2[s], pr.bb3[s] = 0, 0, 0
					continue
				}

				block := int(inds[s*5+0])
				k := int(inds[s*5+1])
				j := int(inds[s*5+2])
				i := int(inds[s*5+3])
				fr, fth, fph := fracs[s*4+0], fracs[s*4+1], fracs[s*4+2]
				// The mapped snapshot index only means something in
				// slow-light mode; otherwise the current snapshot is read.
				snapInd, snapFrac := snapshot, 0.0
				if sl.On {
					snapInd = int(inds[s*5+4])
					snapFrac = fracs[s*4+3]
				}

				snapA := r.snapCache[snapInd]
				var snapB *simdata.Snapshot
				blend := 0.0
				if sl.On {
					if sl.Interp && snapFrac > 0 {
						snapB = r.snapCache[snapInd+1]
						blend = snapFrac
					} else if !sl.Interp && snapFrac >= 0.5 {
						snapA = r.snapCache[snapInd+1]
					}
				}

				for v, name := range names {
					var val float64
					if sim.Interp {
						val = snapA.InterpValue(r.grid, name, block, k, j, i, fr, fth, fph, sim.BlockInterp)
						if snapB != nil {
							vb := snapB.InterpValue(r.grid, name, block, k, j, i, fr, fth, fph, sim.BlockInterp)
							val = val*(1-blend) + vb*blend
						}
					} else {
						val = snapA.Value(name, block, k, j, i)
						if snapB != nil {
							vb := snapB.Value(name, block, k, j, i)
							val = val*(1-blend) + vb*blend
						}
					}
					dest[v][s] = val
				}
			}
		}
	})
	return nil
}
