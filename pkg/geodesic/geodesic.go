// Package geodesic integrates null geodesics backward from the camera
// through the Kerr spacetime, producing the per-pixel sample sequences the
// radiation integrator consumes. Integration uses an embedded Bogacki-
// Shampine 3(2) scheme with adaptive step control and bounded retries.
package geodesic

import (
	"math"

	"github.com/HerculesJack/blacklight/pkg/camera"
	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/geometry"
)

// Status is the terminal state of one geodesic.
type Status int

const (
	// Active geodesics are still being stepped.
	Active Status = iota
	// Converged geodesics reached the termination radius (or, in flat
	// mode, crossed the image plane through the origin).
	Converged
	// Terminated geodesics hit the step ceiling without converging. The
	// truncated samples are kept but the geodesic is flagged.
	Terminated
	// Failed geodesics exhausted the step-size retries.
	Failed
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case Terminated:
		return "terminated"
	case Failed:
		return "failed"
	}
	return "active"
}

// Statistics counts the work done integrating one refinement level.
type Statistics struct {
	Steps       int // accepted steps
	Rejected    int // rejected step attempts
	Evaluations int // metric/derivative evaluations
}

func (s *Statistics) add(o Statistics) {
	s.Steps += o.Steps
	s.Rejected += o.Rejected
	s.Evaluations += o.Evaluations
}

// workerScratch holds one worker's reusable buffers so the per-pixel loop
// never allocates.
type workerScratch struct {
	gcov  geometry.Tensor
	gcon  geometry.Tensor
	dgcon geometry.Derivative

	// Forward-order sample storage for the pixel in flight.
	fwdPos []float64
	fwdDir []float64
	fwdLen []float64

	stats Statistics
}

// Integrator owns the geodesic sample arrays of every refinement level.
// Construction allocates level 0; higher levels are allocated when the
// camera spawns them. All levels are released together when the Integrator
// is dropped.
type Integrator struct {
	ray        config.RayParams
	bhM, bhA   float64
	rTerminate float64
	rEscape    float64
	cam        *camera.Camera

	// Per-level results, in source-to-observer order after reversal.
	// Pos and Dir are flat [numPix*slots*4]; Len is flat [numPix*slots]
	// holding the affine increment of each segment.
	NumPix   []int
	Statuses [][]Status
	Flags    [][]bool
	Num      [][]int
	Pos      [][]float64
	Dir      [][]float64
	Len      [][]float64
	Stats    []Statistics

	slots   int // per-pixel sample capacity, maxSteps + 1
	scratch []workerScratch
}

// New prepares an integrator for the camera's root level using a fixed
// number of workers. The termination radius follows the configured rule.
func New(ray config.RayParams, bhM, bhA float64, cam *camera.Camera, numWorkers int) *Integrator {
	g := &Integrator{
		ray:   ray,
		bhM:   bhM,
		bhA:   bhA,
		cam:   cam,
		slots: ray.MaxSteps + 1,
	}

	rHor := geometry.HorizonRadius(bhM, bhA)
	switch ray.Terminate {
	case config.TerminateMultiplicative:
		g.rTerminate = ray.Factor * rHor
	case config.TerminateAdditive:
		g.rTerminate = rHor + ray.Factor
	default:
		g.rTerminate = geometry.PhotonOrbitRadius(bhM, bhA)
	}

	// Rays that leave well past the camera cannot return; stop them there
	// rather than burning the step budget.
	camR := math.Sqrt(cam.X[1]*cam.X[1] + cam.X[2]*cam.X[2] + cam.X[3]*cam.X[3])
	g.rEscape = 10.0 * camR

	g.scratch = make([]workerScratch, numWorkers)
	for w := range g.scratch {
		g.scratch[w].fwdPos = make([]float64, g.slots*4)
		g.scratch[w].fwdDir = make([]float64, g.slots*4)
		g.scratch[w].fwdLen = make([]float64, g.slots)
	}

	g.ensureLevel(0, cam.NumPix[0])
	return g
}

// TerminationRadius reports the configured inner stopping radius.
func (g *Integrator) TerminationRadius() float64 { return g.rTerminate }

// ensureLevel sizes the arrays of the given level for numPix pixels,
// reusing existing capacity when a level is re-run across snapshots.
func (g *Integrator) ensureLevel(level, numPix int) {
	for len(g.NumPix) <= level {
		g.NumPix = append(g.NumPix, 0)
		g.Statuses = append(g.Statuses, nil)
		g.Flags = append(g.Flags, nil)
		g.Num = append(g.Num, nil)
		g.Pos = append(g.Pos, nil)
		g.Dir = append(g.Dir, nil)
		g.Len = append(g.Len, nil)
		g.Stats = append(g.Stats, Statistics{})
	}
	g.NumPix[level] = numPix
	if cap(g.Flags[level]) < numPix {
		g.Statuses[level] = make([]Status, numPix)
		g.Flags[level] = make([]bool, numPix)
		g.Num[level] = make([]int, numPix)
		g.Pos[level] = make([]float64, numPix*g.slots*4)
		g.Dir[level] = make([]float64, numPix*g.slots*4)
		g.Len[level] = make([]float64, numPix*g.slots)
	} else {
		g.Statuses[level] = g.Statuses[level][:numPix]
		g.Flags[level] = g.Flags[level][:numPix]
		g.Num[level] = g.Num[level][:numPix]
		g.Pos[level] = g.Pos[level][:numPix*g.slots*4]
		g.Dir[level] = g.Dir[level][:numPix*g.slots*4]
		g.Len[level] = g.Len[level][:numPix*g.slots]
	}
	g.Stats[level] = Statistics{}
}

// BeginLevel must be called before IntegrateRange for a level, after the
// camera has built that level's pixels.
func (g *Integrator) BeginLevel(level int) {
	g.ensureLevel(level, g.cam.NumPix[level])
	for w := range g.scratch {
		g.scratch[w].stats = Statistics{}
	}
}

// FinishLevel folds per-worker statistics into the level total.
func (g *Integrator) FinishLevel(level int) Statistics {
	total := Statistics{}
	for w := range g.scratch {
		total.add(g.scratch[w].stats)
	}
	g.Stats[level] = total
	return total
}

// View exposes one level's sample arrays read-only to the radiation stage.
// The view borrows the integrator's buffers: it must not outlive the level,
// and it becomes stale if the level is re-integrated.
type View struct {
	NumPix int
	Slots  int // per-pixel stride in samples
	Flags  []bool
	Num    []int
	Pos    []float64 // flat [pix*Slots*4], index 0 nearest the source
	Dir    []float64
	Len    []float64 // affine increment per segment, flat [pix*Slots]
}

// View returns the non-owning read view of a finished level.
func (g *Integrator) View(level int) View {
	return View{
		NumPix: g.NumPix[level],
		Slots:  g.slots,
		Flags:  g.Flags[level],
		Num:    g.Num[level],
		Pos:    g.Pos[level],
		Dir:    g.Dir[level],
		Len:    g.Len[level],
	}
}
