package humanize

import "math"

type Point struct {
	X, Y float64
}

// Rect is an element's bounding box in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// ClickPoint picks a point near the centre of r, jittered by up to a quarter
// of each dimension and kept inside the box.
func (h *Humanizer) ClickPoint(r Rect) Point {
	c := r.Center()
	p := Point{
		X: c.X + h.Between(-r.Width/4, r.Width/4),
		Y: c.Y + h.Between(-r.Height/4, r.Height/4),
	}
	p.X = math.Max(r.X+1, math.Min(r.X+r.Width-1, p.X))
	p.Y = math.Max(r.Y+1, math.Min(r.Y+r.Height-1, p.Y))
	if r.Width < 2 {
		p.X = c.X
	}
	if r.Height < 2 {
		p.Y = c.Y
	}
	return p
}

// Approach returns 1 to 3 intermediate points moving from "from" towards "to",
// each pushed off the straight line by a few pixels. The target itself is not included.
func (h *Humanizer) Approach(from, to Point) []Point {
	n := 1 + h.IntN(3)
	out := make([]Point, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n+1)
		out = append(out, Point{
			X: from.X + (to.X-from.X)*t + h.Between(-6, 6),
			Y: from.Y + (to.Y-from.Y)*t + h.Between(-6, 6),
		})
	}
	return out
}
