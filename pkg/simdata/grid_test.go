package simdata

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
)

func TestCellIndexLocatesCenters(t *testing.T) {
	g := UniformGrid(2, 10, 8, 4, 4)
	block, i, j, k, fr, fth, fph, ok := g.CellIndex(2.5, math.Pi/2, math.Pi)
	if !ok {
		t.Fatal("point inside the grid not located")
	}
	if block != 0 || i != 0 {
		t.Errorf("block/i = %d/%d, want 0/0", block, i)
	}
	// r = 2.5 is the center of the first radial cell [2, 3].
	if math.Abs(fr) > 1e-12 {
		t.Errorf("radial fraction = %v, want 0", fr)
	}
	// theta = pi/2 is a face between cells 1 and 2.
	if j != 2 || math.Abs(fth+0.5) > 1e-12 {
		t.Errorf("j/fth = %d/%v, want 2/-0.5", j, fth)
	}
	if k != 2 || math.Abs(fph+0.5) > 1e-12 {
		t.Errorf("k/fph = %d/%v, want 2/-0.5", k, fph)
	}
}

func TestCellIndexOutsideRadialExtent(t *testing.T) {
	g := UniformGrid(2, 10, 8, 4, 4)
	if _, _, _, _, _, _, _, ok := g.CellIndex(11.0, math.Pi/2, 0.1); ok {
		t.Error("point beyond the outer radius should not be located")
	}
	if _, _, _, _, _, _, _, ok := g.CellIndex(1.0, math.Pi/2, 0.1); ok {
		t.Error("point inside the inner radius should not be located")
	}
	rMin, rMax := g.RadialExtent()
	if rMin != 2 || rMax != 10 {
		t.Errorf("radial extent = [%v, %v], want [2, 10]", rMin, rMax)
	}
}

func TestInterpValueReproducesLinearField(t *testing.T) {
	g := UniformGrid(2, 10, 8, 8, 8)
	snap := FillSnapshot(g, 0, []string{VarRho}, func(_ string, r, _, _ float64) float64 {
		return 3*r + 1
	})
	// Multilinear interpolation is exact for a field linear in r, away
	// from clamped edges.
	block, i, j, k, fr, fth, fph, ok := g.CellIndex(5.2, 1.3, 2.1)
	if !ok {
		t.Fatal("sample point not located")
	}
	got := snap.InterpValue(g, VarRho, block, k, j, i, fr, fth, fph, false)
	want := 3*5.2 + 1
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("interpolated rho = %v, want %v", got, want)
	}
}

// twoBlockGrid stacks two conforming blocks radially: [2, 6] and [6, 10],
// each with unit cells.
func twoBlockGrid() *Grid {
	ni, nj, nk := 4, 4, 4
	g := &Grid{
		NumBlocks: 2,
		NI:        ni,
		NJ:        nj,
		NK:        nk,
		RF:        sparse.ZerosDense(2, ni+1),
		ThF:       sparse.ZerosDense(2, nj+1),
		PhF:       sparse.ZerosDense(2, nk+1),
	}
	for b := 0; b < 2; b++ {
		r0 := 2.0 + float64(b)*4.0
		for i := 0; i <= ni; i++ {
			g.RF.Set(r0+float64(i), b, i)
		}
		for j := 0; j <= nj; j++ {
			g.ThF.Set(math.Pi*float64(j)/float64(nj), b, j)
		}
		for k := 0; k <= nk; k++ {
			g.PhF.Set(2.0*math.Pi*float64(k)/float64(nk), b, k)
		}
	}
	return g
}

func TestInterpValueCrossesBlockSeams(t *testing.T) {
	g := twoBlockGrid()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	snap := FillSnapshot(g, 0, []string{VarRho}, func(_ string, r, _, _ float64) float64 {
		return 3*r + 1
	})

	// r = 5.8 lies in the outermost cell of block 0; its radial neighbor
	// sits across the seam in block 1.
	block, i, j, k, fr, fth, fph, ok := g.CellIndex(5.8, 1.3, 2.1)
	if !ok {
		t.Fatal("sample point not located")
	}
	if block != 0 || i != g.NI-1 {
		t.Fatalf("block/i = %d/%d, want 0/%d", block, i, g.NI-1)
	}

	got := snap.InterpValue(g, VarRho, block, k, j, i, fr, fth, fph, true)
	want := 3*5.8 + 1
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("seam-aware interpolation = %v, want %v", got, want)
	}

	// Clamping reads only the block's own edge cell, whose center is r = 5.5.
	clamped := snap.InterpValue(g, VarRho, block, k, j, i, fr, fth, fph, false)
	if math.Abs(clamped-(3*5.5+1)) > 1e-6 {
		t.Errorf("clamped interpolation = %v, want %v", clamped, 3*5.5+1)
	}
}

func TestFileRoundTrip(t *testing.T) {
	g := UniformGrid(2, 10, 4, 4, 4)
	snap := FillSnapshot(g, 1.5, []string{VarRho, VarPGas}, func(name string, r, _, _ float64) float64 {
		if name == VarPGas {
			return r * r
		}
		return 1 / r
	})
	src := NewStaticSource(g, []*Snapshot{snap}, 0.25)

	path := filepath.Join(t.TempDir(), "data.gob")
	if err := Write(path, src); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.ExtrapolationTolerance() != 0.25 {
		t.Errorf("tolerance = %v, want 0.25", got.ExtrapolationTolerance())
	}
	s2, err := got.Snapshot(0)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s2.Time != 1.5 {
		t.Errorf("time = %v, want 1.5", s2.Time)
	}
	if v, w := s2.Value(VarRho, 0, 1, 1, 1), snap.Value(VarRho, 0, 1, 1, 1); v != w {
		t.Errorf("rho after round trip = %v, want %v", v, w)
	}
	if _, err := got.Snapshot(3); err == nil {
		t.Error("expected error for out-of-range snapshot")
	}
}
