package sketch

import (
	"image"
)

// clockwise in image coordinates, starting east
var ring = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

const west = 4

// Trace returns the outer boundary of every 8-connected group of nonzero
// pixels in edges, ordered by the group's top-left pixel. Each boundary is
// compressed to the points where its direction changes.
func Trace(edges *image.Gray) [][]image.Point {
	b := edges.Bounds()
	w, h := b.Dx(), b.Dy()
	fg := func(p image.Point) bool {
		if p.X < 0 || p.Y < 0 || p.X >= w || p.Y >= h {
			return false
		}
		return edges.GrayAt(b.Min.X+p.X, b.Min.Y+p.Y).Y != 0
	}

	seen := make([]bool, w*h)
	var out [][]image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			start := image.Point{x, y}
			if seen[y*w+x] || !fg(start) {
				continue
			}
			mark(start, w, seen, fg)
			out = append(out, simplify(follow(start, fg, w*h)))
		}
	}
	return out
}

// mark flags the whole group containing p as seen.
func mark(p image.Point, w int, seen []bool, fg func(image.Point) bool) {
	stack := []image.Point{p}
	seen[p.Y*w+p.X] = true
	for len(stack) > 0 {
		q := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range ring {
			n := q.Add(d)
			if fg(n) && !seen[n.Y*w+n.X] {
				seen[n.Y*w+n.X] = true
				stack = append(stack, n)
			}
		}
	}
}

// follow walks the boundary clockwise from s with Moore-neighbour tracing.
// s must be the group's first pixel in raster order, so its west neighbour
// is background. It stops on re-entering s the way it first left it.
func follow(s image.Point, fg func(image.Point) bool, area int) []image.Point {
	pts := []image.Point{s}
	p, back := s, west

	var first image.Point
	started := false
	for steps := 0; steps < 4*area+8; steps++ {
		q, nb, ok := next(p, back, fg)
		if !ok {
			break
		}
		if !started {
			first, started = q, true
		} else if p == s && q == first {
			break
		}
		if q != s {
			pts = append(pts, q)
		}
		p, back = q, nb
	}
	return pts
}

// next sweeps clockwise around p starting after the backtrack direction and
// returns the first foreground neighbour together with the direction, seen
// from it, of the last background pixel checked.
func next(p image.Point, back int, fg func(image.Point) bool) (image.Point, int, bool) {
	for k := 1; k <= 8; k++ {
		d := (back + k) % 8
		q := p.Add(ring[d])
		if !fg(q) {
			continue
		}
		prev := p.Add(ring[(d+7)%8])
		return q, direction(prev.Sub(q)), true
	}
	return p, back, false
}

func direction(v image.Point) int {
	for i, d := range ring {
		if d == v {
			return i
		}
	}
	return west
}

// simplify keeps the first point and every point where the step direction
// changes on the closed path.
func simplify(pts []image.Point) []image.Point {
	n := len(pts)
	if n < 3 {
		return pts
	}
	out := make([]image.Point, 0, 8)
	for i, p := range pts {
		prev := pts[(i+n-1)%n]
		nxt := pts[(i+1)%n]
		if i == 0 || p.Sub(prev) != nxt.Sub(p) {
			out = append(out, p)
		}
	}
	return out
}
