// Package compute provides the data-parallel dispatch used by the integrator.
//
// A pass is a kernel applied to every vertex of the grid. The grid is split
// into tiles (work groups) described by a [dynamo.TileConfig]; a [Backend]
// decides how tiles are scheduled and returns only once every tile has
// finished, which is the barrier between passes.
//
//   - CPU: tiles fanned out across runtime.NumCPU() goroutines
//   - Serial: tiles run inline in order, the reference for determinism
//
// # Kernels
//
// Kernels receive contiguous [start, end) index spans, one per tile row:
//
//	backend.Dispatch(layout, func(start, end int) {
//	    for i := start; i < end; i++ { ... }
//	})
//
// A kernel must only write to index i of its outputs and must not read any
// buffer it writes during the same pass.
package compute
