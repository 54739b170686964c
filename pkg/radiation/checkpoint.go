package radiation

import (
	"fmt"

	"github.com/HerculesJack/blacklight/pkg/checkpoint"
	"github.com/HerculesJack/blacklight/pkg/geodesic"
)

// samplingArrays lists the root-level sampling map arrays persisted in a
// sample checkpoint, in file order.
func (r *Integrator) samplingArrays(level int, view geodesic.View) []checkpoint.Array {
	inds := make([]int64, len(r.sampleInds[level]))
	for i, v := range r.sampleInds[level] {
		inds[i] = int64(v)
	}
	return []checkpoint.Array{
		{Name: "sample_inds", Shape: []int{view.NumPix, view.Slots, 5}, Int64: inds},
		{Name: "sample_fracs", Shape: []int{view.NumPix, view.Slots, 4}, Float64: r.sampleFracs[level]},
		{Name: "sample_nan", Shape: []int{view.NumPix, view.Slots}, Bool: r.sampleNaN[level]},
		{Name: "sample_fallback", Shape: []int{view.NumPix, view.Slots}, Bool: r.sampleFall[level]},
	}
}

// saveSampling writes the root-level sampling map so later runs against the
// same grid and camera can skip the cell search.
func (r *Integrator) saveSampling(level int, view geodesic.View) error {
	fp := r.cfg.SampleFingerprint()
	if err := checkpoint.Save(r.cfg.Checkpoint.SampleFile, fp, r.samplingArrays(level, view)); err != nil {
		return fmt.Errorf("saving sample checkpoint: %w", err)
	}
	return nil
}

// loadSampling restores the root-level sampling map, rejecting checkpoints
// whose configuration fingerprint does not match this run.
func (r *Integrator) loadSampling(level int, view geodesic.View) error {
	fp := r.cfg.SampleFingerprint()
	arrays, err := checkpoint.Load(r.cfg.Checkpoint.SampleFile, fp, r.samplingArrays(level, view))
	if err != nil {
		return fmt.Errorf("loading sample checkpoint: %w", err)
	}
	for i, v := range arrays[0].Int64 {
		r.sampleInds[level][i] = int32(v)
	}
	copy(r.sampleFracs[level], arrays[1].Float64)
	copy(r.sampleNaN[level], arrays[2].Bool)
	copy(r.sampleFall[level], arrays[3].Bool)
	return nil
}
