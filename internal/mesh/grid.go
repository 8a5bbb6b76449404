package mesh

import (
	"fmt"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// BorderDepth is how many rows and columns along each edge are rigid.
const BorderDepth = 2

// Grid is the immutable vertex layout. Index i = x + y*Width.
type Grid struct {
	Width  int
	Height int
}

func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid %dx%d: %w", width, height, dynamo.ErrInvalidGrid)
	}
	return &Grid{Width: width, Height: height}, nil
}

// NewGridFromTiles sizes the grid to cover every tile exactly.
func NewGridFromTiles(tiles dynamo.TileConfig) (*Grid, error) {
	if err := tiles.Validate(); err != nil {
		return nil, err
	}
	return NewGrid(tiles.Width(), tiles.Height())
}

func (g *Grid) VertexCount() int { return g.Width * g.Height }

func (g *Grid) Index(x, y int) int { return x + y*g.Width }

func (g *Grid) Coords(i int) (x, y int) { return i % g.Width, i / g.Width }

func (g *Grid) Contains(i int) bool { return i >= 0 && i < g.VertexCount() }

// InBounds reports whether lattice coordinates lie on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// WorldExtent is the size of the grid's footprint for a given spacing.
func (g *Grid) WorldExtent(restLength float64) (ex, ey float64) {
	return float64(g.Width) * restLength, float64(g.Height) * restLength
}

// IsInterior reports whether vertex i may receive injected force. Vertices
// within BorderDepth of any edge are rigid against direct pressure.
func (g *Grid) IsInterior(i int) bool {
	if !g.Contains(i) {
		return false
	}
	x, y := g.Coords(i)
	return x >= BorderDepth && x <= g.Width-1-BorderDepth &&
		y >= BorderDepth && y <= g.Height-1-BorderDepth
}

// RestPosition is where vertex i sits on the resting lattice, centered on
// the origin with the given spacing.
func (g *Grid) RestPosition(i int, restLength float64) dynamo.Vec3 {
	x, y := g.Coords(i)
	return dynamo.Vec3{
		X: (float64(x) - float64(g.Width-1)/2) * restLength,
		Y: (float64(y) - float64(g.Height-1)/2) * restLength,
	}
}
