// Package scene mirrors the mesh as one ECS entity per vertex, in a y-up
// world where the mesh's out-of-plane axis becomes height.
package scene

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/mesh"
	"github.com/san-kum/meshsim/internal/sim"
)

// Kind says what an entity stands for.
type Kind uint8

const (
	KindAnchor   Kind = iota // rigid border vertex
	KindMassUnit             // interior vertex that accepts pressure
)

func (k Kind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindMassUnit:
		return "mass_unit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsMassUnit reports whether the entity can be pressed.
func (k Kind) IsMassUnit() bool { return k == KindMassUnit }

// Vertex ties an ECS entity to its mesh vertex.
type Vertex struct {
	Index int
	Kind  Kind
}

// Transform is an entity's place in the y-up world.
type Transform struct {
	Position dynamo.Vec3
}

// Entity is a read-only view of one vertex's components.
type Entity struct {
	Index    int
	Kind     Kind
	Position dynamo.Vec3
}

// Spawner owns an ECS world holding one entity per vertex of a grid.
type Spawner struct {
	grid       *mesh.Grid
	world      *ecs.World
	mapper     *ecs.Map2[Vertex, Transform]
	filter     *ecs.Filter2[Vertex, Transform]
	transforms *ecs.Map1[Transform]
	handles    []ecs.Entity
	tick       int
}

// NewSpawner creates one entity per vertex, placed on the resting lattice.
func NewSpawner(g *mesh.Grid, restLength float64) (*Spawner, error) {
	if g == nil {
		return nil, fmt.Errorf("spawner needs a grid: %w", dynamo.ErrMissingCollaborator)
	}
	world := ecs.NewWorld()
	s := &Spawner{
		grid:       g,
		world:      world,
		mapper:     ecs.NewMap2[Vertex, Transform](world),
		filter:     ecs.NewFilter2[Vertex, Transform](world),
		transforms: ecs.NewMap1[Transform](world),
		handles:    make([]ecs.Entity, g.VertexCount()),
	}
	for i := range s.handles {
		v := Vertex{Index: i, Kind: KindAnchor}
		if g.IsInterior(i) {
			v.Kind = KindMassUnit
		}
		tr := Transform{Position: ToWorld(g.RestPosition(i, restLength))}
		s.handles[i] = s.mapper.NewEntity(&v, &tr)
	}
	return s, nil
}

// ToWorld maps grid-local space to the y-up world by swapping y and z.
func ToWorld(p dynamo.Vec3) dynamo.Vec3 {
	return dynamo.Vec3{X: p.X, Y: p.Z, Z: p.Y}
}

// Sync moves every entity to its vertex in snap.
func (s *Spawner) Sync(snap sim.Snapshot) error {
	if len(snap.Positions) != len(s.handles) {
		return fmt.Errorf("snapshot has %d positions for %d entities: %w",
			len(snap.Positions), len(s.handles), dynamo.ErrInvalidState)
	}
	query := s.filter.Query()
	for query.Next() {
		v, tr := query.Get()
		tr.Position = ToWorld(snap.Positions[v.Index])
	}
	s.tick = snap.Tick
	return nil
}

// Entities lists every entity in vertex order.
func (s *Spawner) Entities() []Entity {
	out := make([]Entity, len(s.handles))
	query := s.filter.Query()
	for query.Next() {
		v, tr := query.Get()
		out[v.Index] = Entity{Index: v.Index, Kind: v.Kind, Position: tr.Position}
	}
	return out
}

func (s *Spawner) Grid() *mesh.Grid { return s.grid }
func (s *Spawner) Tick() int        { return s.tick }

// At returns the entity for lattice coordinates (x, y).
func (s *Spawner) At(x, y int) (Entity, bool) {
	if !s.grid.InBounds(x, y) {
		return Entity{}, false
	}
	v, tr := s.mapper.Get(s.handles[s.grid.Index(x, y)])
	return Entity{Index: v.Index, Kind: v.Kind, Position: tr.Position}, true
}

// Position returns the world position of vertex i.
func (s *Spawner) Position(i int) (dynamo.Vec3, bool) {
	if !s.grid.Contains(i) {
		return dynamo.Vec3{}, false
	}
	return s.transforms.Get(s.handles[i]).Position, true
}

// Count returns how many entities have kind k.
func (s *Spawner) Count(k Kind) int {
	n := 0
	query := s.filter.Query()
	for query.Next() {
		v, _ := query.Get()
		if v.Kind == k {
			n++
		}
	}
	return n
}

// HeightRange is the lowest and highest world height across all entities.
func (s *Spawner) HeightRange() (lo, hi float64) {
	first := true
	query := s.filter.Query()
	for query.Next() {
		_, tr := query.Get()
		y := tr.Position.Y
		if first || y < lo {
			lo = y
		}
		if first || y > hi {
			hi = y
		}
		first = false
	}
	return lo, hi
}
