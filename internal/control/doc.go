// Package control drives the mesh with feedback instead of a fixed script.
//
//   - [PID]: Proportional-Integral-Derivative controller
//   - [DepthHold]: presses one point with whatever pressure keeps it at a
//     target depth
//
// # Usage
//
//	hold, _ := control.NewDepthHold(s.Field(), 0, 0, 0.5, control.NewPID(4, 2, 0.1, 0.5))
//	s.AddObserver(hold)
//	s.Run(ctx, ticks, dt, hold)
//
// DepthHold is both the event source and an observer of the same
// simulation: each tick's pressure is computed from the previous frame.
package control
