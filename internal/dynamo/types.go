package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a point or direction in grid local space.
type Vec3 = r3.Vec

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v Vec3) bool {
	return !(math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) ||
		math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) || math.IsInf(v.Z, 0))
}

// Documented parameter ranges. Lower bounds marked open are exclusive.
const (
	MaxMass          = 100.0
	MinDamping       = 0.1
	MaxDamping       = 0.999
	MinStiffness     = 0.1
	MaxStiffness     = 100.0
	MinRestLength    = 0.1
	MaxRestLength    = 10.0
	MaxTouchForceCap = 1000.0
)

// Params holds the scalar physical parameters shared by every vertex.
type Params struct {
	Mass          float64
	Damping       float64
	Stiffness     float64
	RestLength    float64
	MaxTouchForce float64
}

func DefaultParams() Params {
	return Params{
		Mass:          1.0,
		Damping:       0.98,
		Stiffness:     30.0,
		RestLength:    0.5,
		MaxTouchForce: 200.0,
	}
}

// Validate checks every parameter against its documented range.
// Values are never clamped.
func (p Params) Validate() error {
	switch {
	case !(p.Mass > 0 && p.Mass <= MaxMass):
		return fmt.Errorf("mass %v not in (0, %v]: %w", p.Mass, MaxMass, ErrParameterBounds)
	case !(p.Damping > MinDamping && p.Damping < MaxDamping):
		return fmt.Errorf("damping %v not in (%v, %v): %w", p.Damping, MinDamping, MaxDamping, ErrParameterBounds)
	case !(p.Stiffness > MinStiffness && p.Stiffness <= MaxStiffness):
		return fmt.Errorf("stiffness %v not in (%v, %v]: %w", p.Stiffness, MinStiffness, MaxStiffness, ErrParameterBounds)
	case !(p.RestLength > MinRestLength && p.RestLength <= MaxRestLength):
		return fmt.Errorf("rest length %v not in (%v, %v]: %w", p.RestLength, MinRestLength, MaxRestLength, ErrParameterBounds)
	case !(p.MaxTouchForce >= 0 && p.MaxTouchForce <= MaxTouchForceCap):
		return fmt.Errorf("max touch force %v not in [0, %v]: %w", p.MaxTouchForce, MaxTouchForceCap, ErrParameterBounds)
	}
	return nil
}

// GetParams returns the parameters keyed by name for tuning UIs.
func (p Params) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":            p.Mass,
		"damping":         p.Damping,
		"stiffness":       p.Stiffness,
		"rest_length":     p.RestLength,
		"max_touch_force": p.MaxTouchForce,
	}
}

// With returns a copy of p with the named parameter replaced.
func (p Params) With(name string, value float64) (Params, error) {
	switch name {
	case "mass":
		p.Mass = value
	case "damping":
		p.Damping = value
	case "stiffness":
		p.Stiffness = value
	case "rest_length":
		p.RestLength = value
	case "max_touch_force":
		p.MaxTouchForce = value
	default:
		return p, fmt.Errorf("unknown parameter %q", name)
	}
	return p, nil
}

// TileConfig describes how a pass is split into work groups. The grid is
// exactly GroupsX*ThreadsX vertices wide and GroupsY*ThreadsY tall.
type TileConfig struct {
	GroupsX, GroupsY   int
	ThreadsX, ThreadsY int
}

// DefaultTiles is 15x7 groups of 4x4, a 60x28 grid of 1680 vertices.
func DefaultTiles() TileConfig {
	return TileConfig{GroupsX: 15, GroupsY: 7, ThreadsX: 4, ThreadsY: 4}
}

func (t TileConfig) Width() int  { return t.GroupsX * t.ThreadsX }
func (t TileConfig) Height() int { return t.GroupsY * t.ThreadsY }
func (t TileConfig) Groups() int { return t.GroupsX * t.GroupsY }

func (t TileConfig) Validate() error {
	if t.GroupsX <= 0 || t.GroupsY <= 0 || t.ThreadsX <= 0 || t.ThreadsY <= 0 {
		return fmt.Errorf("tiles %dx%d of %dx%d: %w", t.GroupsX, t.GroupsY, t.ThreadsX, t.ThreadsY, ErrInvalidGrid)
	}
	return nil
}
