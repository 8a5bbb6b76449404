package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrInvalidGrid indicates grid or tile dimensions that cannot form a mesh.
	ErrInvalidGrid = errors.New("dynamo: invalid grid dimensions")

	// ErrOutOfGrid indicates an input coordinate that maps outside the grid.
	ErrOutOfGrid = errors.New("dynamo: input maps outside the grid")

	// ErrNeighborBounds indicates a neighbor table entry flagged as existing
	// but pointing outside the grid. It can only come from a construction bug.
	ErrNeighborBounds = errors.New("dynamo: neighbor table entry out of bounds")

	// ErrReleased indicates use of a simulation after its buffers were released.
	ErrReleased = errors.New("dynamo: simulation buffers released")

	// ErrInvalidState indicates a position or velocity became NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrMissingCollaborator indicates a required dependency was nil.
	ErrMissingCollaborator = errors.New("dynamo: required collaborator is nil")
)

// TickError wraps an error with the tick it happened on.
type TickError struct {
	Tick    int
	Time    float64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d (t=%.4f): %v", e.Tick, e.Time, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
