// Package camera constructs the initial conditions of every ray: one
// 4-position and covariant 4-momentum per pixel, derived from an orthonormal
// tetrad at the observer. Under adaptive refinement it also spawns the child
// pixels of flagged blocks at each new level.
package camera

import (
	"fmt"
	"math"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// BlockLoc is the position of a block within its level's block grid.
type BlockLoc struct {
	V, U int
}

// Camera owns the pixel grids of every refinement level. Level 0 is built by
// New; higher levels are appended by Augment as blocks are flagged.
type Camera struct {
	params config.CameraParams
	freq   float64
	norm   config.FrequencyNormalization
	bhM    float64
	bhA    float64
	flat   bool

	blockSize        int // pixels per block side, 0 when refinement is off
	linearRootBlocks int

	// Tetrad and observer state, fixed after construction.
	X       [4]float64 // camera 4-position
	UCon    [4]float64 // camera 4-velocity
	UCov    [4]float64
	NormCon [4]float64 // unit spatial vector toward the scene
	HorCon  [4]float64 // image-plane horizontal basis vector
	VertCon [4]float64 // image-plane vertical basis vector

	// MomentumFactor converts the dimensionless frequency -u.k along a ray
	// into Hz; pixel momenta are normalized so it equals the configured
	// image frequency in the chosen frame.
	MomentumFactor float64

	// Metric at the camera position; the tetrad is orthonormal under it
	// and every pixel momentum is built against it.
	gcov geometry.Tensor

	// Per-level pixel data. Pos and Dir are flat [numPix*4]; Loc is flat
	// [numPix*3] holding (block, v, u).
	NumPix    []int
	Pos       [][]float64
	Dir       [][]float64
	Loc       [][]int
	BlockLocs [][]BlockLoc
}

// New builds the level-0 camera. The image frequency and normalization fix
// the momentum scale of every pixel.
func New(params config.CameraParams, freq float64, norm config.FrequencyNormalization,
	bhM, bhA float64, flat bool, blockSize int) (*Camera, error) {
	if params.Resolution <= 0 {
		return nil, fmt.Errorf("camera: must have positive resolution, got %d", params.Resolution)
	}
	if blockSize > 0 && params.Resolution%blockSize != 0 {
		return nil, fmt.Errorf("camera: block size %d must divide resolution %d",
			blockSize, params.Resolution)
	}

	c := &Camera{
		params:    params,
		freq:      freq,
		norm:      norm,
		bhM:       bhM,
		bhA:       bhA,
		flat:      flat,
		blockSize: blockSize,
	}
	if blockSize > 0 {
		c.linearRootBlocks = params.Resolution / blockSize
	}
	c.buildTetrad()
	c.buildRootLevel()
	return c, nil
}

// buildTetrad derives the camera position and the orthonormal frame
// {u, norm, hor, vert} by metric Gram-Schmidt on the spherical coordinate
// triad at the observer.
func (c *Camera) buildTetrad() {
	p := c.params
	r, th, ph := p.R, p.Th, p.Ph
	sth, cth := math.Sin(th), math.Cos(th)
	sph, cph := math.Sin(ph), math.Cos(ph)
	a := c.bhA

	// Position in Cartesian Kerr-Schild coordinates, t = 0.
	c.X[0] = 0
	c.X[1] = sth * (r*cph - a*sph)
	c.X[2] = sth * (r*sph + a*cph)
	c.X[3] = r * cth

	var gcov, gcon geometry.Tensor
	if c.flat {
		geometry.Minkowski(&gcov, &gcon, nil)
	} else {
		geometry.Covariant(c.X[1], c.X[2], c.X[3], c.bhM, a, &gcov)
		geometry.Contravariant(c.X[1], c.X[2], c.X[3], c.bhM, a, &gcon)
	}
	c.gcov = gcov

	// Normal observer: n_mu = (-alpha, 0, 0, 0).
	alpha := 1.0 / math.Sqrt(-gcon[0][0])
	var n [4]float64
	for mu := 0; mu < 4; mu++ {
		n[mu] = -alpha * gcon[mu][0]
	}

	// Coordinate basis vectors along r, theta, phi.
	er := [4]float64{0, sth * cph, sth * sph, cth}
	eth := [4]float64{0, cth * (r*cph - a*sph), cth * (r*sph + a*cph), -r * sth}
	eph := [4]float64{0, -c.X[2], c.X[1], 0}

	// Orthonormalize the spatial triad against n and each other.
	ehat := [3][4]float64{er, eth, eph}
	for i := 0; i < 3; i++ {
		v := ehat[i]
		v = addScaled(v, n, inner(&gcov, v, n)) // project out timelike n
		for j := 0; j < i; j++ {
			v = addScaled(v, ehat[j], -inner(&gcov, v, ehat[j]))
		}
		ehat[i] = scale(v, 1.0/math.Sqrt(inner(&gcov, v, v)))
	}

	// Boost the normal observer by the configured local velocity.
	v2 := p.URn*p.URn + p.UThn*p.UThn + p.UPhn*p.UPhn
	gamma := 1.0 / math.Sqrt(1.0-v2)
	var u [4]float64
	for mu := 0; mu < 4; mu++ {
		u[mu] = gamma * (n[mu] + p.URn*ehat[0][mu] + p.UThn*ehat[1][mu] + p.UPhn*ehat[2][mu])
	}
	c.UCon = u
	for mu := 0; mu < 4; mu++ {
		c.UCov[mu] = 0
		for nu := 0; nu < 4; nu++ {
			c.UCov[mu] += gcov[mu][nu] * u[nu]
		}
	}

	// Look direction in the camera rest frame, then the image-plane pair.
	var look [4]float64
	for mu := 0; mu < 4; mu++ {
		look[mu] = p.KR*ehat[0][mu] + p.KTh*ehat[1][mu] + p.KPh*ehat[2][mu]
	}
	look = addScaled(look, u, inner(&gcov, look, u))
	c.NormCon = scale(look, 1.0/math.Sqrt(inner(&gcov, look, look)))

	// Up reference: -theta direction, or the x direction on the pole.
	up := scale(ehat[1], -1)
	if p.Pole {
		up = ehat[0]
	}
	vert := addScaled(up, u, inner(&gcov, up, u))
	vert = addScaled(vert, c.NormCon, -inner(&gcov, vert, c.NormCon))
	vert = scale(vert, 1.0/math.Sqrt(inner(&gcov, vert, vert)))

	hor := addScaled(ehat[2], u, inner(&gcov, ehat[2], u))
	hor = addScaled(hor, c.NormCon, -inner(&gcov, hor, c.NormCon))
	hor = addScaled(hor, vert, -inner(&gcov, hor, vert))
	hor = scale(hor, 1.0/math.Sqrt(inner(&gcov, hor, hor)))

	// Spin the image plane.
	srot, crot := math.Sin(p.Rotation), math.Cos(p.Rotation)
	for mu := 0; mu < 4; mu++ {
		c.HorCon[mu] = crot*hor[mu] + srot*vert[mu]
		c.VertCon[mu] = -srot*hor[mu] + crot*vert[mu]
	}

	c.MomentumFactor = c.freq
}

// buildRootLevel fills the level-0 pixel arrays.
func (c *Camera) buildRootLevel() {
	res := c.params.Resolution
	numPix := res * res
	c.NumPix = []int{numPix}
	c.Pos = [][]float64{make([]float64, numPix*4)}
	c.Dir = [][]float64{make([]float64, numPix*4)}
	c.Loc = [][]int{make([]int, numPix*3)}

	if c.blockSize > 0 {
		locs := make([]BlockLoc, c.linearRootBlocks*c.linearRootBlocks)
		for bv := 0; bv < c.linearRootBlocks; bv++ {
			for bu := 0; bu < c.linearRootBlocks; bu++ {
				locs[bv*c.linearRootBlocks+bu] = BlockLoc{V: bv, U: bu}
			}
		}
		c.BlockLocs = [][]BlockLoc{locs}
	} else {
		c.BlockLocs = [][]BlockLoc{nil}
	}

	for vg := 0; vg < res; vg++ {
		for ug := 0; ug < res; ug++ {
			ind := vg*res + ug
			uInd := float64(ug) + 0.5 - float64(res)/2
			vInd := float64(vg) + 0.5 - float64(res)/2
			c.setPixel(0, ind, uInd, vInd)
			if c.blockSize > 0 {
				block := (vg/c.blockSize)*c.linearRootBlocks + ug/c.blockSize
				c.Loc[0][ind*3+0] = block
				c.Loc[0][ind*3+1] = vg % c.blockSize
				c.Loc[0][ind*3+2] = ug % c.blockSize
			}
		}
	}
}

// Augment builds the pixel grid of the given level (>= 1) from the
// refinement flags of the previous level. It returns the number of blocks at
// the new level. Levels must be built in order; rebuilding a level replaces
// any stale pixels from an earlier snapshot.
func (c *Camera) Augment(level int, flags []bool) int {
	prevLocs := c.BlockLocs[level-1]
	var childLocs []BlockLoc
	for b, flagged := range flags {
		if !flagged {
			continue
		}
		pv, pu := prevLocs[b].V, prevLocs[b].U
		for dv := 0; dv < 2; dv++ {
			for du := 0; du < 2; du++ {
				childLocs = append(childLocs, BlockLoc{V: 2*pv + dv, U: 2*pu + du})
			}
		}
	}

	numPix := len(childLocs) * c.blockSize * c.blockSize
	pos := make([]float64, numPix*4)
	dir := make([]float64, numPix*4)
	loc := make([]int, numPix*3)
	if len(c.NumPix) > level {
		c.NumPix = c.NumPix[:level]
		c.Pos = c.Pos[:level]
		c.Dir = c.Dir[:level]
		c.Loc = c.Loc[:level]
		c.BlockLocs = c.BlockLocs[:level]
	}
	c.NumPix = append(c.NumPix, numPix)
	c.Pos = append(c.Pos, pos)
	c.Dir = append(c.Dir, dir)
	c.Loc = append(c.Loc, loc)
	c.BlockLocs = append(c.BlockLocs, childLocs)

	// Pixel centers in root-pixel units: the level-l grid subdivides each
	// root pixel 2^l times.
	res := c.params.Resolution
	scale := float64(int(1) << uint(level))
	ind := 0
	for b, bl := range childLocs {
		for v := 0; v < c.blockSize; v++ {
			for u := 0; u < c.blockSize; u++ {
				ug := bl.U*c.blockSize + u
				vg := bl.V*c.blockSize + v
				uInd := (float64(ug)+0.5)/scale - float64(res)/2
				vInd := (float64(vg)+0.5)/scale - float64(res)/2
				c.setPixel(level, ind, uInd, vInd)
				loc[ind*3+0] = b
				loc[ind*3+1] = v
				loc[ind*3+2] = u
				ind++
			}
		}
	}
	return len(childLocs)
}

// setPixel computes the 4-position and covariant momentum of one pixel.
// uInd and vInd are image-plane offsets in units of root-level pixels.
func (c *Camera) setPixel(level, ind int, uInd, vInd float64) {
	pixSize := c.params.Width / float64(c.params.Resolution)
	du := uInd * pixSize
	dv := vInd * pixSize

	var pos, d [4]float64
	switch c.params.Type {
	case config.CameraPinhole:
		// Shared position; directions fan through a plane of the full
		// image width placed at the origin distance.
		pos = c.X
		for mu := 0; mu < 4; mu++ {
			d[mu] = c.params.R*c.NormCon[mu] + du*c.HorCon[mu] + dv*c.VertCon[mu]
		}
	default:
		// Parallel projection: offset positions, common direction.
		for mu := 0; mu < 4; mu++ {
			pos[mu] = c.X[mu] + du*c.HorCon[mu] + dv*c.VertCon[mu]
			d[mu] = c.NormCon[mu]
		}
	}

	// The camera-center metric keeps the construction exact: the tetrad
	// is orthonormal there, so p below is exactly null with -u.p = 1.
	gcov := &c.gcov

	// Unit spatial direction toward the scene in the camera rest frame.
	d = addScaled(d, c.UCon, inner(gcov, d, c.UCon))
	d = scale(d, 1.0/math.Sqrt(inner(gcov, d, d)))

	// The photon's future-directed null momentum is p = u - d: it
	// propagates opposite the viewing direction, into the camera. The
	// geodesic integrator steps along -p to march from the observer
	// toward the source.
	var kcov [4]float64
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			kcov[mu] += c.gcov[mu][nu] * (c.UCon[nu] - d[nu])
		}
	}
	if c.norm == config.NormalizeInfinity && kcov[0] != 0 {
		// Rescale so the conserved energy -k_t is one.
		s := -1.0 / kcov[0]
		for mu := 0; mu < 4; mu++ {
			kcov[mu] *= s
		}
	}

	copy(c.Pos[level][ind*4:ind*4+4], pos[:])
	copy(c.Dir[level][ind*4:ind*4+4], kcov[:])
}

// inner returns the metric inner product g(u, v).
func inner(g *geometry.Tensor, u, v [4]float64) float64 {
	sum := 0.0
	for mu := 0; mu < 4; mu++ {
		for nu := 0; nu < 4; nu++ {
			sum += g[mu][nu] * u[mu] * v[nu]
		}
	}
	return sum
}

func addScaled(v, w [4]float64, s float64) [4]float64 {
	for mu := 0; mu < 4; mu++ {
		v[mu] += s * w[mu]
	}
	return v
}

func scale(v [4]float64, s float64) [4]float64 {
	for mu := 0; mu < 4; mu++ {
		v[mu] *= s
	}
	return v
}
