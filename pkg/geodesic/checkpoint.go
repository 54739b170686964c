package geodesic

import (
	"fmt"

	"github.com/HerculesJack/blacklight/pkg/checkpoint"
)

// checkpointArrays lists the root-level arrays persisted in a geodesic
// checkpoint, in file order.
func (g *Integrator) checkpointArrays() []checkpoint.Array {
	numPix := g.NumPix[0]
	statuses := make([]int64, numPix)
	for i, s := range g.Statuses[0] {
		statuses[i] = int64(s)
	}
	num := make([]int64, numPix)
	for i, n := range g.Num[0] {
		num[i] = int64(n)
	}
	return []checkpoint.Array{
		{Name: "status", Shape: []int{numPix}, Int64: statuses},
		{Name: "flags", Shape: []int{numPix}, Bool: g.Flags[0]},
		{Name: "num", Shape: []int{numPix}, Int64: num},
		{Name: "pos", Shape: []int{numPix, g.slots, 4}, Float64: g.Pos[0]},
		{Name: "dir", Shape: []int{numPix, g.slots, 4}, Float64: g.Dir[0]},
		{Name: "len", Shape: []int{numPix, g.slots}, Float64: g.Len[0]},
	}
}

// Save writes the root-level geodesics so a later run with an identical
// geometry and camera configuration can skip integration.
func (g *Integrator) Save(path string, fingerprint [32]byte) error {
	if err := checkpoint.Save(path, fingerprint, g.checkpointArrays()); err != nil {
		return fmt.Errorf("saving geodesics: %w", err)
	}
	return nil
}

// Load restores the root-level geodesics. The stored fingerprint and array
// shapes must match the current configuration exactly.
func (g *Integrator) Load(path string, fingerprint [32]byte) error {
	arrays, err := checkpoint.Load(path, fingerprint, g.checkpointArrays())
	if err != nil {
		return fmt.Errorf("loading geodesics: %w", err)
	}
	for i, s := range arrays[0].Int64 {
		g.Statuses[0][i] = Status(s)
	}
	copy(g.Flags[0], arrays[1].Bool)
	for i, n := range arrays[2].Int64 {
		g.Num[0][i] = int(n)
	}
	copy(g.Pos[0], arrays[3].Float64)
	copy(g.Dir[0], arrays[4].Float64)
	copy(g.Len[0], arrays[5].Float64)
	return nil
}
