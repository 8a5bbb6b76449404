package viz

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/meshsim/internal/dynamo"
	"github.com/san-kum/meshsim/internal/mesh"
	"github.com/san-kum/meshsim/internal/scene"
)

// Camera orbits the origin and projects world points onto a canvas.
type Camera struct {
	Distance   float64
	Near       float64
	RotX, RotY float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Distance: 50, Near: 0.1, RotX: -0.6, RotY: 0.4, Zoom: 1.0}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.01, c.Zoom/1.2) }

// Fit sets the zoom so a footprint of the given size fills the view.
func (c *Camera) Fit(extent float64) {
	if extent > 0 {
		c.Zoom = 3 / extent
	}
}

// RotatePoint rotates a point around the camera's axes.
func (c *Camera) RotatePoint(p dynamo.Vec3) dynamo.Vec3 {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	return p
}

// Project converts world coordinates to sub-pixel screen coordinates.
// Returns x, y, depth, and visibility.
func (c *Camera) Project(p dynamo.Vec3, sw, sh int) (int, int, float64, bool) {
	rot := r3.Scale(c.Zoom, c.RotatePoint(p))
	if rot.Z >= c.Distance-c.Near {
		return 0, 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot.Z)
	pScale := math.Min(float64(sw), float64(sh)) / 3.0
	sx := int(rot.X*scale*pScale) + sw/2
	sy := int(-rot.Y*scale*pScale) + sh/2
	return sx, sy, rot.Z, sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

type Edge struct {
	Start, End dynamo.Vec3
}

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
}

// MeshWireframe joins each entity to its east and north neighbors.
func MeshWireframe(sp *scene.Spawner) []Edge {
	g := sp.Grid()
	ents := sp.Entities()
	edges := make([]Edge, 0, 2*len(ents))
	for i, e := range ents {
		x, y := g.Coords(i)
		if g.InBounds(x+1, y) {
			edges = append(edges, Edge{e.Position, ents[g.Index(x+1, y)].Position})
		}
		if g.InBounds(x, y+1) {
			edges = append(edges, Edge{e.Position, ents[g.Index(x, y+1)].Position})
		}
	}
	return edges
}

// Render3D draws edges to the canvas back to front.
func Render3D(c *Canvas, edges []Edge, cam *Camera) {
	if c == nil || cam == nil {
		return
	}
	cw, ch := c.Dots()
	proj := make([]projectedEdge, 0, len(edges))
	for _, e := range edges {
		x1, y1, d1, v1 := cam.Project(e.Start, cw, ch)
		x2, y2, d2, v2 := cam.Project(e.End, cw, ch)
		if v1 || v2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].depth < proj[j].depth })
	for _, e := range proj {
		c.DrawLine(e.x1, e.y1, e.x2, e.y2)
	}
}

// footprint is the larger side of the resting mesh in world units.
func footprint(g *mesh.Grid, rest float64) float64 {
	ex, ey := g.WorldExtent(rest)
	return math.Max(ex, ey)
}
