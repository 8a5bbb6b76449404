package metrics

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// KineticEnergy returns the total kinetic energy of a set of velocities.
func KineticEnergy(vel []dynamo.Vec3, mass float64) float64 {
	e := 0.0
	for _, v := range vel {
		e += r3.Norm2(v)
	}
	return 0.5 * mass * e
}

// TotalSpeed returns the sum of velocity magnitudes.
func TotalSpeed(vel []dynamo.Vec3) float64 {
	s := 0.0
	for _, v := range vel {
		s += r3.Norm(v)
	}
	return s
}

// Energy reports the kinetic energy of the latest frame.
type Energy struct {
	name  string
	value float64
}

func NewEnergy() *Energy {
	return &Energy{name: "kinetic_energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(f dynamo.Frame) {
	e.value = KineticEnergy(f.Velocities, f.Params.Mass)
}

func (e *Energy) Value() float64 { return e.value }

func (e *Energy) Reset() { e.value = 0 }

// PeakEnergy tracks the largest kinetic energy seen since the last reset.
type PeakEnergy struct {
	name string
	peak float64
}

func NewPeakEnergy() *PeakEnergy {
	return &PeakEnergy{name: "peak_energy"}
}

func (p *PeakEnergy) Name() string { return p.name }

func (p *PeakEnergy) Observe(f dynamo.Frame) {
	if e := KineticEnergy(f.Velocities, f.Params.Mass); e > p.peak {
		p.peak = e
	}
}

func (p *PeakEnergy) Value() float64 { return p.peak }

func (p *PeakEnergy) Reset() { p.peak = 0 }
