// Package forcefield assembles the per-tick external force buffer from
// touch or pointer events projected onto the grid.
package forcefield

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/mesh"
)

// NeighborPressureScale is the fraction of a tap's pressure applied to each
// direct neighbor of the tapped vertex.
const NeighborPressureScale = 0.5

// Event is one tap in world space on the grid plane. Pressure is nominally
// in [0, 1].
type Event struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Pressure float64 `yaml:"pressure"`
}

// Field owns the external force buffer while it is being assembled.
type Field struct {
	grid      *mesh.Grid
	neighbors *mesh.NeighborTable
	forces    []dynamo.Vec3

	maxTouchForce float64
	restLength    float64
	logger        *slog.Logger
}

func New(neighbors *mesh.NeighborTable, params dynamo.Params, logger *slog.Logger) (*Field, error) {
	if neighbors == nil {
		return nil, fmt.Errorf("force field: %w", dynamo.ErrMissingCollaborator)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := neighbors.Grid()
	return &Field{
		grid:          g,
		neighbors:     neighbors,
		forces:        make([]dynamo.Vec3, g.VertexCount()),
		maxTouchForce: params.MaxTouchForce,
		restLength:    params.RestLength,
		logger:        logger,
	}, nil
}

// SetParams updates the touch force scale and the world mapping spacing.
func (f *Field) SetParams(p dynamo.Params) {
	f.maxTouchForce = p.MaxTouchForce
	f.restLength = p.RestLength
}

// Clear zeroes every force.
func (f *Field) Clear() {
	clear(f.forces)
}

// ApplyPressure pushes vertex i along -Z. Rigid border vertices and
// out-of-range indices are left untouched; the return value reports
// whether a force was written.
func (f *Field) ApplyPressure(i int, pressure float64) bool {
	if !f.grid.IsInterior(i) {
		return false
	}
	f.forces[i] = dynamo.Vec3{Z: -f.maxTouchForce * pressure}
	return true
}

// ApplyPressureToNeighbors applies half pressure to each existing direct
// neighbor of i.
func (f *Field) ApplyPressureToNeighbors(i int, pressure float64) int {
	if !f.grid.Contains(i) {
		return 0
	}
	applied := 0
	row := f.neighbors.Row(i)
	for s := 0; s < mesh.DirectSlots; s++ {
		nb := row[s]
		if !nb.Exists {
			continue
		}
		if f.ApplyPressure(nb.Index, pressure*NeighborPressureScale) {
			applied++
		}
	}
	return applied
}

// MapWorld rescales a world-space point on the grid plane into a vertex
// index. The grid's footprint is centered on the origin.
func (f *Field) MapWorld(wx, wy float64) (int, error) {
	ex, ey := f.grid.WorldExtent(f.restLength)
	fx := (wx/ex + 0.5) * float64(f.grid.Width)
	fy := (wy/ey + 0.5) * float64(f.grid.Height)
	if math.IsNaN(fx) || math.IsNaN(fy) {
		return -1, fmt.Errorf("point (%g, %g): %w", wx, wy, dynamo.ErrOutOfGrid)
	}
	gx, gy := int(math.Floor(fx)), int(math.Floor(fy))
	if !f.grid.InBounds(gx, gy) {
		return -1, fmt.Errorf("point (%g, %g) -> cell (%d, %d): %w", wx, wy, gx, gy, dynamo.ErrOutOfGrid)
	}
	return f.grid.Index(gx, gy), nil
}

// WorldOf returns the world-space point that MapWorld maps back to vertex i.
func (f *Field) WorldOf(i int) (wx, wy float64) {
	p := f.grid.RestPosition(i, f.restLength)
	return p.X, p.Y
}

// Assemble rebuilds the buffer from this tick's events. An event that maps
// outside the grid is logged and dropped; the rest still apply. It returns
// the number of events that landed on the grid.
func (f *Field) Assemble(events []Event) int {
	f.Clear()
	applied := 0
	for _, ev := range events {
		i, err := f.MapWorld(ev.X, ev.Y)
		if err != nil {
			f.logger.Warn("dropping input event", "x", ev.X, "y", ev.Y, "pressure", ev.Pressure, "error", err)
			continue
		}
		f.ApplyPressure(i, ev.Pressure)
		f.ApplyPressureToNeighbors(i, ev.Pressure)
		applied++
	}
	return applied
}

// Forces exposes the assembled buffer. The integrator reads it; nothing
// else may write to it while a tick runs.
func (f *Field) Forces() []dynamo.Vec3 { return f.forces }
