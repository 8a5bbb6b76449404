// Package dynamo provides the shared primitives of the spring mesh simulation.
//
// The package defines the value types every other package agrees on:
//
//   - [Vec3]: a 3-D vector (gonum r3.Vec) used for positions, velocities and forces
//   - [Params]: the physical parameters read by the integrator every tick
//   - [TileConfig]: the dispatch layout that also fixes the grid size
//   - the sentinel errors returned across package boundaries
//
// # Coordinate Space
//
// The grid lies in the XY plane of its local space. Z is the axis orthogonal
// to the grid; touch pressure pushes vertices along -Z. Consumers that want a
// y-up convention swap axes themselves (see the scene package).
package dynamo
