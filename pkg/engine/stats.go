package engine

import (
	"fmt"
	"time"

	"github.com/HerculesJack/blacklight/pkg/geodesic"
)

// RunStats aggregates the work of a whole run across snapshots and levels.
type RunStats struct {
	Snapshots int
	MaxLevels int // most refinement levels any snapshot used

	Geodesics geodesic.Statistics

	SampleTime    time.Duration // plasma sampling
	IntegrateTime time.Duration // coefficients and transfer
	TotalTime     time.Duration
}

// Summary renders the statistics for the end-of-run log line.
func (s RunStats) Summary() string {
	return fmt.Sprintf(
		"%d snapshots, %d levels, %d geodesic steps (%d rejected, %d evaluations), sample %v, integrate %v, total %v",
		s.Snapshots, s.MaxLevels,
		s.Geodesics.Steps, s.Geodesics.Rejected, s.Geodesics.Evaluations,
		s.SampleTime.Round(time.Millisecond),
		s.IntegrateTime.Round(time.Millisecond),
		s.TotalTime.Round(time.Millisecond))
}
