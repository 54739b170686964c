package radiation

import "github.com/HerculesJack/blacklight/pkg/geodesic"

// minDiffN is the minimum sample separation between counted turning points.
// Consecutive samples can straddle a plateau in z; requiring this many steps
// between sign checks keeps grazing, nearly planar stretches from registering
// as a burst of spurious turnings.
const minDiffN = 10

// countZTurnings scans a ray's z coordinates from the observer side toward
// the source, counting sign changes in the z-direction of travel. z(n)
// returns the coordinate of sample n; samples are in source-to-observer
// order. When cut >= 0, nStart is the sample index at which the ray has
// already accumulated cut+1 turnings, so integration restricted to
// [nStart, num) keeps at most cut turning points; it is 0 when the ray never
// reaches that many.
func countZTurnings(z func(n int) float64, num, cut int) (count, nStart int) {
	start := -1
	for n := num - minDiffN - 1; n >= minDiffN; n-- {
		d := (z(n+1) - z(n)) * (z(n) - z(n-1))
		if d < 0 {
			count++
			n -= minDiffN
		} else if d == 0 {
			// Plateau: compare across the guard interval instead.
			dWide := (z(n+minDiffN) - z(n)) * (z(n) - z(n-minDiffN))
			if dWide < 0 {
				count++
				n -= minDiffN
			}
		}
		if cut >= 0 && start < 0 && count == cut+1 {
			start = n
		}
	}
	if start < 0 {
		start = 0
	}
	return count, start
}

// computeTurnings counts equatorial-crossing turnings of every ray, storing
// the count as an image quantity when enabled and recording where transfer
// integration should begin when a turning cut is configured.
func (r *Integrator) computeTurnings(level int, view geodesic.View) {
	cut := r.cfg.Image.CutZTurnings
	off := r.off
	numPix := r.numPix[level]

	r.pool.Map(view.NumPix, func(_, lo, hi int) {
		for m := lo; m < hi; m++ {
			num := view.Num[m]
			base := m * view.Slots
			count, nStart := countZTurnings(func(n int) float64 {
				return view.Pos[(base+n)*4+3]
			}, num, cut)
			if cut >= 0 {
				r.turnStart[level][m] = nStart
			}
			if off.ZTurnings >= 0 {
				r.Image[level][off.ZTurnings*numPix+m] = float64(count)
			}
		}
	})
}
