package simdata

import (
	"math"

	"github.com/ctessum/sparse"
)

// UniformGrid builds a single-block grid with uniformly spaced faces
// covering [rMin, rMax] x [0, pi] x [0, 2pi]. Synthetic sources and tests
// use it; production grids come from extracted simulation files.
func UniformGrid(rMin, rMax float64, ni, nj, nk int) *Grid {
	g := &Grid{
		NumBlocks: 1,
		NI:        ni,
		NJ:        nj,
		NK:        nk,
		RF:        sparse.ZerosDense(1, ni+1),
		ThF:       sparse.ZerosDense(1, nj+1),
		PhF:       sparse.ZerosDense(1, nk+1),
	}
	for i := 0; i <= ni; i++ {
		g.RF.Set(rMin+(rMax-rMin)*float64(i)/float64(ni), 0, i)
	}
	for j := 0; j <= nj; j++ {
		g.ThF.Set(math.Pi*float64(j)/float64(nj), 0, j)
	}
	for k := 0; k <= nk; k++ {
		g.PhF.Set(2.0*math.Pi*float64(k)/float64(nk), 0, k)
	}
	return g
}

// FillSnapshot builds a snapshot on the grid, evaluating fill at every cell
// center to produce each variable in names.
func FillSnapshot(g *Grid, t float64, names []string,
	fill func(name string, r, th, ph float64) float64) *Snapshot {
	snap := &Snapshot{Time: t, Vars: make(map[string]*sparse.DenseArray, len(names))}
	for _, name := range names {
		arr := sparse.ZerosDense(g.NumBlocks, g.NK, g.NJ, g.NI)
		for b := 0; b < g.NumBlocks; b++ {
			for k := 0; k < g.NK; k++ {
				ph := 0.5 * (g.PhF.Get(b, k) + g.PhF.Get(b, k+1))
				for j := 0; j < g.NJ; j++ {
					th := 0.5 * (g.ThF.Get(b, j) + g.ThF.Get(b, j+1))
					for i := 0; i < g.NI; i++ {
						r := 0.5 * (g.RF.Get(b, i) + g.RF.Get(b, i+1))
						arr.Set(fill(name, r, th, ph), b, k, j, i)
					}
				}
			}
		}
		snap.Vars[name] = arr
	}
	return snap
}
