package anim

import (
	"image"
	"math"
)

// Vec2 is a vertex offset relative to a shape's center.
type Vec2 struct{ X, Y float64 }

// Geometry is the drawable state of a shape. Base never changes once
// built; Offsets and Scale are the live values renderers read.
type Geometry struct {
	ID      string
	Center  image.Point
	Base    []Vec2
	Offsets []image.Point
	Scale   float64
}

// Regular builds an n-sided polygon of the given radius, first vertex on
// the positive X axis.
func Regular(id string, center image.Point, radius float64, n int) Geometry {
	g := Geometry{
		ID:      id,
		Center:  center,
		Base:    make([]Vec2, n),
		Offsets: make([]image.Point, n),
		Scale:   1,
	}
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		g.Base[i] = Vec2{X: radius * math.Cos(a), Y: radius * math.Sin(a)}
	}
	g.setScaled(1)
	return g
}

// Hexagon is Regular with six vertices.
func Hexagon(id string, center image.Point, radius float64) Geometry {
	return Regular(id, center, radius, 6)
}

// Vertices returns absolute vertex positions (center + live offsets).
func (g *Geometry) Vertices() []image.Point {
	out := make([]image.Point, len(g.Offsets))
	for i, o := range g.Offsets {
		out[i] = g.Center.Add(o)
	}
	return out
}

// Radius is the distance of the first base vertex from the center.
func (g *Geometry) Radius() float64 {
	if len(g.Base) == 0 {
		return 0
	}
	return math.Hypot(g.Base[0].X, g.Base[0].Y)
}

func (g *Geometry) setScaled(scale float64) {
	if len(g.Offsets) != len(g.Base) {
		g.Offsets = make([]image.Point, len(g.Base))
	}
	for i, b := range g.Base {
		g.Offsets[i] = image.Pt(int(math.Round(b.X*scale)), int(math.Round(b.Y*scale)))
	}
	g.Scale = scale
}
