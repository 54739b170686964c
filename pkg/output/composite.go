package output

import (
	"github.com/HerculesJack/blacklight/pkg/camera"
)

// Composite flattens an adaptive image onto a uniform grid at the finest
// level's resolution. The root plane is painted first at the magnification of
// the deepest level; each refined level then overwrites the regions its
// blocks cover. planes[0] is row-major res x res; refined planes are
// block-contiguous in the order the camera spawned their blocks.
//
// The returned plane is row-major outRes x outRes with outRes = res << maxLevel.
func Composite(planes [][]float64, locs [][]camera.BlockLoc, blockSize, res int) ([]float64, int) {
	maxLevel := len(planes) - 1
	outRes := res << maxLevel
	out := make([]float64, outRes*outRes)

	// Root level: every pixel becomes a square of side 2^maxLevel.
	mag := 1 << maxLevel
	for v := 0; v < res; v++ {
		for u := 0; u < res; u++ {
			fill(out, outRes, v*mag, u*mag, mag, planes[0][v*res+u])
		}
	}

	for level := 1; level <= maxLevel; level++ {
		bs := blockSize
		mag := 1 << (maxLevel - level)
		for b, loc := range locs[level] {
			for v := 0; v < bs; v++ {
				for u := 0; u < bs; u++ {
					val := planes[level][b*bs*bs+v*bs+u]
					fill(out, outRes, (loc.V*bs+v)*mag, (loc.U*bs+u)*mag, mag, val)
				}
			}
		}
	}
	return out, outRes
}

// fill paints a mag x mag square whose top-left pixel is (v, u).
func fill(out []float64, outRes, v, u, mag int, val float64) {
	for dv := 0; dv < mag; dv++ {
		row := (v + dv) * outRes
		for du := 0; du < mag; du++ {
			out[row+u+du] = val
		}
	}
}
