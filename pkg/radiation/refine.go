package radiation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
)

// checkRefinement evaluates the per-block refinement criteria on the Stokes I
// image of the just-integrated level and reports whether the snapshot is
// complete (no block wants refinement, or the level ceiling is reached).
func (r *Integrator) checkRefinement(level int, view geodesic.View) bool {
	ad := r.cfg.Adaptive
	numBlocks := len(r.cam.BlockLocs[level])
	if cap(r.refineFlags[level]) < numBlocks {
		r.refineFlags[level] = make([]bool, numBlocks)
	} else {
		r.refineFlags[level] = r.refineFlags[level][:numBlocks]
	}
	flags := r.refineFlags[level]
	for b := range flags {
		flags[b] = false
	}
	if level >= ad.MaxLevel {
		return true
	}

	bs := ad.BlockSize
	numPix := r.numPix[level]
	light := r.Image[level][r.off.Light*numPix : (r.off.Light+1)*numPix]

	r.pool.Map(numBlocks, func(worker, lo, hi int) {
		scratch := r.blockScratch[worker]
		for b := lo; b < hi; b++ {
			for v := 0; v < bs; v++ {
				for u := 0; u < bs; u++ {
					scratch[v*bs+u] = light[r.blockPixel(level, b, v, u)]
				}
			}
			flags[b] = refineBlock(ad, scratch, bs)
		}
	})

	for _, f := range flags {
		if f {
			return false
		}
	}
	return true
}

// blockPixel maps block-relative coordinates to a pixel index. The root level
// stores pixels row-major over the full image; refined levels store them
// block-contiguous in the order the camera spawned them.
func (r *Integrator) blockPixel(level, b, v, u int) int {
	bs := r.cfg.Adaptive.BlockSize
	if level == 0 {
		bl := r.cam.BlockLocs[0][b]
		res := r.cfg.Camera.Resolution
		return (bl.V*bs+v)*res + bl.U*bs + u
	}
	return b*bs*bs + v*bs + u
}

// refineBlock applies the enabled criteria to one block of intensities. A
// criterion fires when the fraction of pixels exceeding its cut is at least
// its configured fraction; relative criteria normalize by the block mean.
// NaN pixels never trigger refinement.
func refineBlock(ad config.AdaptiveParams, block []float64, bs int) bool {
	valFrac, valCut := ad.ValFrac, ad.ValCut
	agFrac, agCut := ad.AbsGradFrac, ad.AbsGradCut
	rgFrac, rgCut := ad.RelGradFrac, ad.RelGradCut
	alFrac, alCut := ad.AbsLaplFrac, ad.AbsLaplCut
	rlFrac, rlCut := ad.RelLaplFrac, ad.RelLaplCut
	total := float64(bs * bs)
	mean := stat.Mean(block, nil)

	if valFrac >= 0 {
		count := 0
		for _, v := range block {
			if v > valCut {
				count++
			}
		}
		if float64(count)/total >= valFrac {
			return true
		}
	}

	needGrad := agFrac >= 0 || rgFrac >= 0
	needLapl := alFrac >= 0 || rlFrac >= 0
	if !needGrad && !needLapl {
		return false
	}

	agCount, rgCount, alCount, rlCount := 0, 0, 0, 0
	at := func(v, u int) float64 {
		if v < 0 {
			v = 0
		}
		if v >= bs {
			v = bs - 1
		}
		if u < 0 {
			u = 0
		}
		if u >= bs {
			u = bs - 1
		}
		return block[v*bs+u]
	}
	for v := 0; v < bs; v++ {
		for u := 0; u < bs; u++ {
			if needGrad {
				gv := (at(v+1, u) - at(v-1, u)) / 2.0
				gu := (at(v, u+1) - at(v, u-1)) / 2.0
				g := math.Hypot(gv, gu)
				if agFrac >= 0 && g > agCut {
					agCount++
				}
				if rgFrac >= 0 && mean != 0 && g/math.Abs(mean) > rgCut {
					rgCount++
				}
			}
			if needLapl {
				l := at(v+1, u) + at(v-1, u) + at(v, u+1) + at(v, u-1) - 4.0*at(v, u)
				l = math.Abs(l)
				if alFrac >= 0 && l > alCut {
					alCount++
				}
				if rlFrac >= 0 && mean != 0 && l/math.Abs(mean) > rlCut {
					rlCount++
				}
			}
		}
	}
	if agFrac >= 0 && float64(agCount)/total >= agFrac {
		return true
	}
	if rgFrac >= 0 && float64(rgCount)/total >= rgFrac {
		return true
	}
	if alFrac >= 0 && float64(alCount)/total >= alFrac {
		return true
	}
	if rlFrac >= 0 && float64(rlCount)/total >= rlFrac {
		return true
	}
	return false
}
