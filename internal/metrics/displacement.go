package metrics

import (
	"math"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// MaxDepth returns the largest out-of-plane displacement of a frame.
func MaxDepth(pos []dynamo.Vec3) float64 {
	d := 0.0
	for _, p := range pos {
		d = math.Max(d, math.Abs(p.Z))
	}
	return d
}

// Displacement tracks the deepest dent seen since the last reset.
type Displacement struct {
	name string
	max  float64
}

func NewDisplacement() *Displacement {
	return &Displacement{name: "max_displacement"}
}

func (d *Displacement) Name() string { return d.name }

func (d *Displacement) Observe(f dynamo.Frame) {
	d.max = math.Max(d.max, MaxDepth(f.Positions))
}

func (d *Displacement) Value() float64 { return d.max }

func (d *Displacement) Reset() { d.max = 0 }

// SettleTime reports the time of the first tick after which total speed
// stayed below the threshold. It is -1 while the mesh is still moving.
type SettleTime struct {
	name      string
	threshold float64
	settledAt float64
	settled   bool
}

func NewSettleTime(threshold float64) *SettleTime {
	return &SettleTime{name: "settle_time", threshold: threshold, settledAt: -1}
}

func (s *SettleTime) Name() string { return s.name }

func (s *SettleTime) Observe(f dynamo.Frame) {
	if TotalSpeed(f.Velocities) < s.threshold {
		if !s.settled {
			s.settled = true
			s.settledAt = f.Time
		}
		return
	}
	s.settled = false
	s.settledAt = -1
}

func (s *SettleTime) Value() float64 { return s.settledAt }

func (s *SettleTime) Reset() {
	s.settled = false
	s.settledAt = -1
}
