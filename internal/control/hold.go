package control

import (
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/forcefield"
)

// DepthHold presses a fixed world point and adjusts the pressure after
// every tick so the vertex under it sinks to the PID's target depth.
// Pressure stays within [0, 1].
type DepthHold struct {
	mu       sync.Mutex
	pid      *PID
	x, y     float64
	vertex   int
	pressure float64
	depth    float64
}

func NewDepthHold(field *forcefield.Field, x, y float64, pid *PID) (*DepthHold, error) {
	if field == nil || pid == nil {
		return nil, fmt.Errorf("depth hold needs a field and a controller: %w", dynamo.ErrMissingCollaborator)
	}
	vertex, err := field.MapWorld(x, y)
	if err != nil {
		return nil, err
	}
	return &DepthHold{pid: pid, x: x, y: y, vertex: vertex}, nil
}

func (h *DepthHold) Events(int) []forcefield.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pressure == 0 {
		return nil
	}
	return []forcefield.Event{{X: h.x, Y: h.y, Pressure: h.pressure}}
}

func (h *DepthHold) OnTick(f dynamo.Frame) {
	if h.vertex >= len(f.Positions) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.depth = -f.Positions[h.vertex].Z
	u := h.pid.Update(h.depth, f.Time)
	if math.IsNaN(u) {
		u = 0
	}
	h.pressure = math.Max(0, math.Min(1, u))
}

// Vertex is the index of the held vertex.
func (h *DepthHold) Vertex() int { return h.vertex }

// State returns the last measured depth and the pressure for the next tick.
func (h *DepthHold) State() (depth, pressure float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.depth, h.pressure
}

// Reset releases the press and clears the controller.
func (h *DepthHold) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pid.Reset()
	h.pressure = 0
	h.depth = 0
}
