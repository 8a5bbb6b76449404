// Package export renders recorded mesh runs as standalone SVG images.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/meshsim/internal/scene"
	"github.com/san-kum/meshsim/internal/viz"
)

const background = "#0a0a0a"

func header(sb *strings.Builder, width, height float64) {
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background))
}

// CanvasToSVG converts a Braille canvas to SVG, one circle per lit dot.
func CanvasToSVG(canvas *viz.Canvas, scale float64, theme viz.Theme) string {
	if canvas == nil {
		return ""
	}

	dw, dh := canvas.Dots()
	var sb strings.Builder
	header(&sb, float64(dw)*scale, float64(dh)*scale)
	sb.WriteString(fmt.Sprintf("<g fill=\"%s\">\n", theme.Primary))

	// bit layout of one braille cell
	bits := [4][2]int{
		{0x01, 0x08},
		{0x02, 0x10},
		{0x04, 0x20},
		{0x40, 0x80},
	}
	dotRadius := scale * 0.4

	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			r := canvas.Grid[row][col]
			if r < 0x2800 {
				continue
			}
			pattern := int(r - 0x2800)
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4

			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&bits[dy][dx] == 0 {
						continue
					}
					cx := baseX + float64(dx)*scale + scale/2
					cy := baseY + float64(dy)*scale + scale/2
					sb.WriteString(fmt.Sprintf("<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, dotRadius))
				}
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// SeriesToSVG draws ys against xs as a single polyline scaled to fill
// width by height with a 10% margin.
func SeriesToSVG(xs, ys []float64, width, height int, stroke string) string {
	n := min(len(xs), len(ys))
	if n < 2 {
		return ""
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 0; i < n; i++ {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	var sb strings.Builder
	header(&sb, float64(width), float64(height))
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, stroke))

	for i := 0; i < n; i++ {
		x := (xs[i] - minX) / rangeX * float64(width)
		y := float64(height) - (ys[i]-minY)/rangeY*float64(height)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}

	sb.WriteString(`"/>
</svg>`)
	return sb.String()
}

// HeightMapSVG draws one square per entity, top row first, colored by how
// far it sits from the resting plane. Anchors use the theme's muted color.
func HeightMapSVG(sp *scene.Spawner, cell float64, theme viz.Theme) string {
	if sp == nil {
		return ""
	}
	g := sp.Grid()
	lo, hi := sp.HeightRange()
	span := math.Max(math.Max(-lo, hi), 1e-9)

	var sb strings.Builder
	header(&sb, float64(g.Width)*cell, float64(g.Height)*cell)
	for y := g.Height - 1; y >= 0; y-- {
		for x := 0; x < g.Width; x++ {
			e, ok := sp.At(x, y)
			if !ok {
				continue
			}
			color := theme.DepthColor(math.Abs(e.Position.Y) / span)
			if !e.Kind.IsMassUnit() {
				color = theme.Muted
			}
			row := g.Height - 1 - y
			sb.WriteString(fmt.Sprintf("<rect x=\"%.1f\" y=\"%.1f\" width=\"%.1f\" height=\"%.1f\" fill=\"%s\"/>\n",
				float64(x)*cell, float64(row)*cell, cell, cell, color))
		}
	}
	sb.WriteString("</svg>")
	return sb.String()
}
