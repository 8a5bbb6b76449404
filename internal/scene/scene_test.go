package scene

import (
	"errors"
	"testing"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/mesh"
	"github.com/san-kum/meshsim/internal/sim"
)

func newSpawner(t *testing.T, w, h int) *Spawner {
	t.Helper()
	g, err := mesh.NewGrid(w, h)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSpawner(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSpawnerKinds(t *testing.T) {
	s := newSpawner(t, 8, 8)

	if len(s.Entities()) != 64 {
		t.Fatalf("expected 64 entities, got %d", len(s.Entities()))
	}
	if got := s.Count(KindMassUnit); got != 16 {
		t.Errorf("expected 16 mass units, got %d", got)
	}
	if got := s.Count(KindAnchor); got != 48 {
		t.Errorf("expected 48 anchors, got %d", got)
	}

	e, ok := s.At(3, 3)
	if !ok || !e.Kind.IsMassUnit() || e.Index != 27 {
		t.Errorf("expected mass unit at (3,3), got %+v", e)
	}
	e, ok = s.At(1, 3)
	if !ok || e.Kind.IsMassUnit() {
		t.Errorf("expected anchor at (1,3), got %+v", e)
	}
	if _, ok := s.At(8, 0); ok {
		t.Error("expected no entity off the grid")
	}
}

func TestSpawnerRestPlacement(t *testing.T) {
	s := newSpawner(t, 4, 4)
	e, _ := s.At(0, 3)
	want := dynamo.Vec3{X: -1.5, Y: 0, Z: 1.5}
	if e.Position != want {
		t.Errorf("expected %v, got %v", want, e.Position)
	}
}

func TestSync(t *testing.T) {
	s := newSpawner(t, 4, 4)
	pos := make([]dynamo.Vec3, 16)
	pos[5] = dynamo.Vec3{X: 1, Y: 2, Z: -3}

	if err := s.Sync(sim.Snapshot{Tick: 9, Positions: pos}); err != nil {
		t.Fatal(err)
	}
	got := s.Entities()[5].Position
	if got != (dynamo.Vec3{X: 1, Y: -3, Z: 2}) {
		t.Errorf("expected y and z swapped, got %v", got)
	}
	if s.Tick() != 9 {
		t.Errorf("expected tick 9, got %d", s.Tick())
	}
	lo, hi := s.HeightRange()
	if lo != -3 || hi != 0 {
		t.Errorf("expected height range [-3, 0], got [%f, %f]", lo, hi)
	}

	err := s.Sync(sim.Snapshot{Positions: pos[:3]})
	if !errors.Is(err, dynamo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindAnchor.String() != "anchor" || KindMassUnit.String() != "mass_unit" {
		t.Error("unexpected kind names")
	}
	if Kind(9).String() != "kind(9)" {
		t.Errorf("unexpected fallback: %s", Kind(9))
	}
}

func TestNewSpawnerNilGrid(t *testing.T) {
	if _, err := NewSpawner(nil, 1); !errors.Is(err, dynamo.ErrMissingCollaborator) {
		t.Errorf("expected ErrMissingCollaborator, got %v", err)
	}
}

func TestPosition(t *testing.T) {
	s := newSpawner(t, 4, 4)
	pos := make([]dynamo.Vec3, 16)
	pos[6] = dynamo.Vec3{Z: -2}
	if err := s.Sync(sim.Snapshot{Positions: pos}); err != nil {
		t.Fatal(err)
	}

	p, ok := s.Position(6)
	if !ok || p.Y != -2 {
		t.Errorf("expected height -2 at vertex 6, got %v", p)
	}
	e, _ := s.At(2, 1)
	if e.Position != p {
		t.Errorf("expected At and Position to agree, got %v and %v", e.Position, p)
	}
	if _, ok := s.Position(16); ok {
		t.Error("expected no position off the grid")
	}
}
