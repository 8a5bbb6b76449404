// Package viz provides the terminal front end for a running mesh.
//
// The package implements an interactive TUI using the Bubble Tea framework:
//
//   - [Picker]: preset menu that opens a live view
//   - [Model]: live view of one simulation, acting as its input source
//   - [Canvas]: Braille-based pixel canvas for the cross-section and 3D views
//
// # Key Bindings
//
//	Arrows - Move the tap cursor
//	Enter  - Tap at the cursor
//	Space  - Pause/Resume simulation
//	R      - Reset to the resting lattice
//	Tab    - Cycle parameters
//	+/-    - Tune the selected parameter
//	M      - Toggle height map / 3D wireframe
//	T      - Cycle color themes
//	?      - Show help overlay
package viz
