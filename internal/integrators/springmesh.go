// Package integrators advances the spring mesh by one tick.
//
// A tick is two passes. The velocity pass reads positions, velocities and
// external forces and writes new velocities. The position pass reads the
// new velocities and the old positions and writes new positions. Neither
// pass reads a buffer it writes, so every vertex can be processed in any
// order or in parallel.
package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/meshsim/internal/compute"
	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/mesh"
)

// Neighbors is the read side of a mesh.NeighborTable.
type Neighbors interface {
	Row(i int) []mesh.Neighbor
}

// Buffers holds the current and next state of every vertex.
type Buffers struct {
	Positions     []dynamo.Vec3
	Velocities    []dynamo.Vec3
	Forces        []dynamo.Vec3
	NextPositions []dynamo.Vec3
	NextVel       []dynamo.Vec3
}

// Swap makes the next buffers current.
func (b *Buffers) Swap() {
	b.Positions, b.NextPositions = b.NextPositions, b.Positions
	b.Velocities, b.NextVel = b.NextVel, b.Velocities
}

// SpringMesh is a semi-implicit Euler integrator with multiplicative damping.
type SpringMesh struct {
	neighbors Neighbors
}

func NewSpringMesh(neighbors Neighbors) *SpringMesh {
	return &SpringMesh{neighbors: neighbors}
}

// restLengths returns the unstretched length for every slot.
func restLengths(rest float64) [mesh.SlotsPerVertex]float64 {
	var out [mesh.SlotsPerVertex]float64
	for s := range out {
		out[s] = mesh.Slot(s).RestLength(rest)
	}
	return out
}

// SpringForce sums the Hooke forces of every existing neighbor on vertex i.
// Missing slots are skipped before their index is touched.
func (m *SpringMesh) SpringForce(pos []dynamo.Vec3, i int, rest *[mesh.SlotsPerVertex]float64, stiffness float64) dynamo.Vec3 {
	var f dynamo.Vec3
	pi := pos[i]
	for s, nb := range m.neighbors.Row(i) {
		if !nb.Exists {
			continue
		}
		d := r3.Sub(pos[nb.Index], pi)
		dist := r3.Norm(d)
		if dist == 0 {
			continue
		}
		// stretched springs pull i toward j, compressed ones push it away
		f = r3.Add(f, r3.Scale(stiffness*(dist-rest[s])/dist, d))
	}
	return f
}

// VelocityKernel returns the velocity pass over b for one tick.
func (m *SpringMesh) VelocityKernel(b *Buffers, p dynamo.Params, dt float64) compute.Kernel {
	rest := restLengths(p.RestLength)
	invMass := 1 / p.Mass
	return func(start, end int) {
		for i := start; i < end; i++ {
			f := r3.Add(b.Forces[i], m.SpringForce(b.Positions, i, &rest, p.Stiffness))
			v := r3.Add(b.Velocities[i], r3.Scale(dt*invMass, f))
			b.NextVel[i] = r3.Scale(p.Damping, v)
		}
	}
}

// PositionKernel returns the position pass; it reads the velocities written
// by the velocity pass.
func (m *SpringMesh) PositionKernel(b *Buffers, dt float64) compute.Kernel {
	return func(start, end int) {
		for i := start; i < end; i++ {
			b.NextPositions[i] = r3.Add(b.Positions[i], r3.Scale(dt, b.NextVel[i]))
		}
	}
}

// Step runs both passes with a barrier between them and swaps the buffers.
func (m *SpringMesh) Step(backend compute.Backend, layout *compute.Layout, b *Buffers, p dynamo.Params, dt float64) {
	backend.Dispatch(layout, m.VelocityKernel(b, p, dt))
	backend.Dispatch(layout, m.PositionKernel(b, dt))
	b.Swap()
}
