// Package simdata defines the narrow surface through which externally
// supplied simulation data enters the renderer: a block-structured spherical
// grid of fluid primitives, one snapshot per time level. The numerical
// schemes that produce these grids live outside this repository.
package simdata

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
)

// Primitive variable names. A snapshot carries a subset of these; which ones
// are required depends on the configured plasma model.
const (
	VarRho   = "rho"   // comoving rest-mass density
	VarPGas  = "pgas"  // gas pressure
	VarKappa = "kappa" // electron entropy proxy
	VarUU1   = "uu1"   // contravariant radial velocity
	VarUU2   = "uu2"
	VarUU3   = "uu3"
	VarBB1   = "bb1" // magnetic field components
	VarBB2   = "bb2"
	VarBB3   = "bb3"
)

// Grid is the static mesh shared by all snapshots: a set of blocks, each a
// regular (r, theta, phi) box of cells described by its face coordinates.
// Faces are stored as dense arrays of shape [numBlocks, n+1].
type Grid struct {
	NumBlocks  int
	NI, NJ, NK int // cells per block in r, theta, phi

	RF  *sparse.DenseArray // radial cell faces, [block, NI+1]
	ThF *sparse.DenseArray // polar cell faces, [block, NJ+1]
	PhF *sparse.DenseArray // azimuthal cell faces, [block, NK+1]
}

// Snapshot is one time level of primitive variables, each of shape
// [numBlocks, NK, NJ, NI].
type Snapshot struct {
	Time float64
	Vars map[string]*sparse.DenseArray
}

// Validate checks internal consistency of the grid shapes.
func (g *Grid) Validate() error {
	if g.NumBlocks <= 0 || g.NI <= 0 || g.NJ <= 0 || g.NK <= 0 {
		return fmt.Errorf("simdata: non-positive grid dimensions %d/%d/%d/%d",
			g.NumBlocks, g.NI, g.NJ, g.NK)
	}
	for _, f := range []struct {
		name string
		arr  *sparse.DenseArray
		n    int
	}{
		{"rf", g.RF, g.NI}, {"thf", g.ThF, g.NJ}, {"phf", g.PhF, g.NK},
	} {
		if f.arr == nil {
			return fmt.Errorf("simdata: missing %s faces", f.name)
		}
		if len(f.arr.Shape) != 2 || f.arr.Shape[0] != g.NumBlocks || f.arr.Shape[1] != f.n+1 {
			return fmt.Errorf("simdata: %s faces have shape %v, want [%d %d]",
				f.name, f.arr.Shape, g.NumBlocks, f.n+1)
		}
	}
	return nil
}

// RadialExtent returns the innermost and outermost radial face over all
// blocks. Samples outside this range fall back.
func (g *Grid) RadialExtent() (rMin, rMax float64) {
	rMin = g.RF.Get(0, 0)
	rMax = g.RF.Get(0, g.NI)
	for b := 1; b < g.NumBlocks; b++ {
		if v := g.RF.Get(b, 0); v < rMin {
			rMin = v
		}
		if v := g.RF.Get(b, g.NI); v > rMax {
			rMax = v
		}
	}
	return rMin, rMax
}

// CellIndex locates the cell containing the spherical point, returning the
// block and (i, j, k) indices plus the interpolation fractions relative to
// cell centers. ok is false when no block covers the point.
func (g *Grid) CellIndex(r, th, ph float64) (block, i, j, k int, fr, fth, fph float64, ok bool) {
	for b := 0; b < g.NumBlocks; b++ {
		if r < g.RF.Get(b, 0) || r > g.RF.Get(b, g.NI) {
			continue
		}
		if th < g.ThF.Get(b, 0) || th > g.ThF.Get(b, g.NJ) {
			continue
		}
		if ph < g.PhF.Get(b, 0) || ph > g.PhF.Get(b, g.NK) {
			continue
		}
		i, fr = faceSearch(g.RF, b, g.NI, r)
		j, fth = faceSearch(g.ThF, b, g.NJ, th)
		k, fph = faceSearch(g.PhF, b, g.NK, ph)
		return b, i, j, k, fr, fth, fph, true
	}
	return 0, 0, 0, 0, 0, 0, 0, false
}

// faceSearch binary-searches the face array of one block for the cell
// containing x and returns the index and the center-relative fraction in
// [-0.5, 0.5].
func faceSearch(faces *sparse.DenseArray, block, n int, x float64) (int, float64) {
	idx := sort.Search(n, func(i int) bool { return x < faces.Get(block, i+1) })
	if idx >= n {
		idx = n - 1
	}
	lo := faces.Get(block, idx)
	hi := faces.Get(block, idx+1)
	frac := (x-lo)/(hi-lo) - 0.5
	return idx, frac
}

// Value reads one primitive at a cell.
func (s *Snapshot) Value(name string, block, k, j, i int) float64 {
	arr := s.Vars[name]
	if arr == nil {
		return 0
	}
	return arr.Get(block, k, j, i)
}

// InterpValue reads one primitive with multilinear interpolation about the
// cell center. When blockAware is true the stencil follows its neighbors
// across block seams by coordinate lookup; otherwise it clamps at the block
// edge.
func (s *Snapshot) InterpValue(g *Grid, name string, block, k, j, i int, fr, fth, fph float64, blockAware bool) float64 {
	arr := s.Vars[name]
	if arr == nil {
		return 0
	}
	// Offsets select the neighbor on the side of the fraction.
	oi, wi := offsetWeight(fr)
	oj, wj := offsetWeight(fth)
	ok, wk := offsetWeight(fph)
	if !blockAware {
		if t := i + oi; t < 0 || t >= g.NI {
			oi, wi = 0, 0
		}
		if t := j + oj; t < 0 || t >= g.NJ {
			oj, wj = 0, 0
		}
		if t := k + ok; t < 0 || t >= g.NK {
			ok, wk = 0, 0
		}
	}
	get := func(dk, dj, di int) float64 {
		return s.cornerValue(g, arr, block, i, j, k, di*oi, dj*oj, dk*ok)
	}
	v000 := get(0, 0, 0)
	v001 := get(0, 0, 1)
	v010 := get(0, 1, 0)
	v011 := get(0, 1, 1)
	v100 := get(1, 0, 0)
	v101 := get(1, 0, 1)
	v110 := get(1, 1, 0)
	v111 := get(1, 1, 1)
	c00 := v000*(1-wi) + v001*wi
	c01 := v010*(1-wi) + v011*wi
	c10 := v100*(1-wi) + v101*wi
	c11 := v110*(1-wi) + v111*wi
	c0 := c00*(1-wj) + c01*wj
	c1 := c10*(1-wj) + c11*wj
	return c0*(1-wk) + c1*wk
}

// offsetWeight converts a center-relative fraction into the stencil offset
// and interpolation weight for one axis.
func offsetWeight(frac float64) (int, float64) {
	if frac >= 0 {
		return 1, frac
	}
	return -1, -frac
}

// cornerValue reads the stencil corner displaced by (oi, oj, ok) cells from
// the base cell, following the displacement into a neighboring block when it
// leaves this one. Corners no block covers clamp inside the base block.
func (s *Snapshot) cornerValue(g *Grid, arr *sparse.DenseArray, block, i, j, k, oi, oj, ok int) float64 {
	ni, nj, nk := i+oi, j+oj, k+ok
	if ni >= 0 && ni < g.NI && nj >= 0 && nj < g.NJ && nk >= 0 && nk < g.NK {
		return arr.Get(block, nk, nj, ni)
	}
	r := axisPoint(g.RF, block, g.NI, i, oi)
	th := axisPoint(g.ThF, block, g.NJ, j, oj)
	ph := axisPoint(g.PhF, block, g.NK, k, ok)
	if b, i2, j2, k2, _, _, _, found := g.CellIndex(r, th, ph); found {
		return arr.Get(b, k2, j2, i2)
	}
	return arr.Get(block, clampIndex(nk, g.NK), clampIndex(nj, g.NJ), clampIndex(ni, g.NI))
}

// axisPoint returns the coordinate probing one stencil cell along an axis:
// the cell center while the index stays inside the block, otherwise a point
// just past the boundary face, landing in the adjacent block's edge cell.
func axisPoint(faces *sparse.DenseArray, block, n, idx, off int) float64 {
	t := idx + off
	if t >= 0 && t < n {
		return 0.5 * (faces.Get(block, t) + faces.Get(block, t+1))
	}
	span := faces.Get(block, n) - faces.Get(block, 0)
	if t < 0 {
		return faces.Get(block, 0) - 1e-10*span
	}
	return faces.Get(block, n) + 1e-10*span
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
