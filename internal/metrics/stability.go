package metrics

import (
	"math"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// Stability is the fraction of ticks on which every vertex stayed finite
// and within bound of the grid plane.
type Stability struct {
	name        string
	bound       float64
	breaches    int
	ticks       int
	firstBreach int
}

func NewStability(bound float64) *Stability {
	return &Stability{name: "stability", bound: bound, firstBreach: -1}
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) Observe(f dynamo.Frame) {
	s.ticks++
	if s.inBounds(f.Positions) {
		return
	}
	s.breaches++
	if s.firstBreach < 0 {
		s.firstBreach = f.Tick
	}
}

func (s *Stability) inBounds(pos []dynamo.Vec3) bool {
	for _, p := range pos {
		if !dynamo.IsFinite(p) || math.Abs(p.Z) > s.bound {
			return false
		}
	}
	return true
}

// Value is 1 when nothing has been observed.
func (s *Stability) Value() float64 {
	if s.ticks == 0 {
		return 1
	}
	return 1 - float64(s.breaches)/float64(s.ticks)
}

// FirstBreach is the tick of the first out-of-bounds frame, or -1.
func (s *Stability) FirstBreach() int { return s.firstBreach }

func (s *Stability) Reset() {
	s.breaches = 0
	s.ticks = 0
	s.firstBreach = -1
}
