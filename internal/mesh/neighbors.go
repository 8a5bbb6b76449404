package mesh

import (
	"fmt"
	"math"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// Slot is the position of a neighbor in a vertex's fixed 12-entry list.
type Slot int

const (
	North Slot = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
	NorthBend
	EastBend
	SouthBend
	WestBend

	// SlotsPerVertex is the length of every vertex's neighbor list.
	SlotsPerVertex = 12
	// DirectSlots is the number of structural (non-bend) slots.
	DirectSlots = 8
)

var slotNames = [SlotsPerVertex]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW", "Nb", "Eb", "Sb", "Wb"}

func (s Slot) String() string {
	if s < 0 || int(s) >= SlotsPerVertex {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return slotNames[s]
}

func (s Slot) IsBend() bool     { return s >= NorthBend }
func (s Slot) IsDiagonal() bool { return s == NorthEast || s == SouthEast || s == SouthWest || s == NorthWest }

// RestLength is the unstretched spring length for a slot on a lattice
// spaced by rest. Diagonals span the cell diagonal, bends two cells.
func (s Slot) RestLength(rest float64) float64 {
	switch {
	case s.IsBend():
		return 2 * rest
	case s.IsDiagonal():
		return rest * math.Sqrt2
	default:
		return rest
	}
}

// Neighbor is one entry of the table. Index is the raw geometric index and
// is only meaningful when Exists is true.
type Neighbor struct {
	Index  int
	Exists bool
}

// NeighborTable stores SlotsPerVertex entries per vertex in one flat slice.
type NeighborTable struct {
	grid    *Grid
	entries []Neighbor
}

// NewNeighborTable builds the table for g and checks its invariants.
func NewNeighborTable(g *Grid) (*NeighborTable, error) {
	if g == nil {
		return nil, fmt.Errorf("neighbor table: %w", dynamo.ErrMissingCollaborator)
	}
	t := &NeighborTable{
		grid:    g,
		entries: make([]Neighbor, g.VertexCount()*SlotsPerVertex),
	}
	t.build()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *NeighborTable) build() {
	w := t.grid.Width
	n := t.grid.VertexCount()

	inRange := func(j int) bool { return j >= 0 && j < n }
	// A step east that wraps lands in column 0 of the next row; a step
	// west that wraps lands in the last column of the previous row.
	eastOf := func(j, min int) bool { return inRange(j) && j%w > min }
	westOf := func(j, max int) bool { return inRange(j) && j%w < max }

	for i := 0; i < n; i++ {
		north := i + w
		northEast := i + w + 1
		east := i + 1
		southEast := i - w + 1
		south := i - w
		southWest := i - w - 1
		west := i - 1
		northWest := i + w - 1

		northBend := north + w
		eastBend := east + 1
		southBend := south - w
		westBend := west - 1

		row := t.entries[i*SlotsPerVertex : (i+1)*SlotsPerVertex]
		row[North] = Neighbor{north, inRange(north)}
		row[NorthEast] = Neighbor{northEast, eastOf(northEast, 0)}
		row[East] = Neighbor{east, eastOf(east, 0)}
		row[SouthEast] = Neighbor{southEast, eastOf(southEast, 0)}
		row[South] = Neighbor{south, inRange(south)}
		row[SouthWest] = Neighbor{southWest, westOf(southWest, w-1)}
		row[West] = Neighbor{west, westOf(west, w-1)}
		row[NorthWest] = Neighbor{northWest, westOf(northWest, w-1)}
		row[NorthBend] = Neighbor{northBend, inRange(northBend)}
		row[EastBend] = Neighbor{eastBend, eastOf(eastBend, 1)}
		row[SouthBend] = Neighbor{southBend, inRange(southBend)}
		row[WestBend] = Neighbor{westBend, westOf(westBend, w-2)}
	}
}

// Validate re-checks every existing entry against the grid bounds. A
// failure means the table was built wrong and the simulation must not start.
func (t *NeighborTable) Validate() error {
	for i := 0; i < t.grid.VertexCount(); i++ {
		x, y := t.grid.Coords(i)
		for s, nb := range t.Row(i) {
			if !nb.Exists {
				continue
			}
			if !t.grid.Contains(nb.Index) {
				return fmt.Errorf("vertex %d slot %s -> %d: %w", i, Slot(s), nb.Index, dynamo.ErrNeighborBounds)
			}
			nx, ny := t.grid.Coords(nb.Index)
			if abs(nx-x) > 2 || abs(ny-y) > 2 {
				return fmt.Errorf("vertex %d slot %s wraps to (%d,%d): %w", i, Slot(s), nx, ny, dynamo.ErrNeighborBounds)
			}
		}
	}
	return nil
}

func (t *NeighborTable) Grid() *Grid { return t.grid }

// NeighborsOf returns a copy of vertex i's entries.
func (t *NeighborTable) NeighborsOf(i int) [SlotsPerVertex]Neighbor {
	var out [SlotsPerVertex]Neighbor
	copy(out[:], t.Row(i))
	return out
}

// Row returns vertex i's entries without copying. Callers must not modify it.
func (t *NeighborTable) Row(i int) []Neighbor {
	return t.entries[i*SlotsPerVertex : (i+1)*SlotsPerVertex : (i+1)*SlotsPerVertex]
}

// Len is the total number of entries, VertexCount*SlotsPerVertex.
func (t *NeighborTable) Len() int { return len(t.entries) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
