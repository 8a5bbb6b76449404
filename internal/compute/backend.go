package compute

import (
	"fmt"

	"github.com/san-kum/meshsim/internal/dynamo"
)

// Kernel processes the vertices in [start, end).
type Kernel func(start, end int)

type Backend interface {
	Name() string
	Available() bool
	Dispatch(layout *Layout, kernel Kernel)
	Cleanup()
}

// Tile is a rectangle of vertices [X0,X1) x [Y0,Y1).
type Tile struct {
	X0, Y0, X1, Y1 int
}

// Layout is the precomputed tile decomposition of a grid.
type Layout struct {
	cfg   dynamo.TileConfig
	width int
	tiles []Tile
}

func NewLayout(cfg dynamo.TileConfig) (*Layout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Layout{
		cfg:   cfg,
		width: cfg.Width(),
		tiles: make([]Tile, 0, cfg.Groups()),
	}
	for gy := 0; gy < cfg.GroupsY; gy++ {
		for gx := 0; gx < cfg.GroupsX; gx++ {
			x0, y0 := gx*cfg.ThreadsX, gy*cfg.ThreadsY
			l.tiles = append(l.tiles, Tile{X0: x0, Y0: y0, X1: x0 + cfg.ThreadsX, Y1: y0 + cfg.ThreadsY})
		}
	}
	return l, nil
}

func (l *Layout) Config() dynamo.TileConfig { return l.cfg }
func (l *Layout) Tiles() []Tile             { return l.tiles }
func (l *Layout) VertexCount() int          { return l.cfg.Width() * l.cfg.Height() }

// Run applies kernel to each row span of t.
func (l *Layout) Run(t Tile, kernel Kernel) {
	for y := t.Y0; y < t.Y1; y++ {
		base := y * l.width
		kernel(base+t.X0, base+t.X1)
	}
}

// Select returns a backend by name. "auto" picks the CPU backend.
func Select(name string) (Backend, error) {
	switch name {
	case "", "auto", "cpu":
		return NewCPUBackend(), nil
	case "serial":
		return NewSerialBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (available: cpu, serial)", name)
	}
}
