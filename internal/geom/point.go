// Package geom holds the stateless geometry used by the annotation engine:
// points, rectangles, affine matrices and the distance tests that every hit
// test is built from.
package geom

import "math"

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Mul returns p scaled by k.
func (p Point) Mul(k float64) Point { return Point{p.X * k, p.Y * k} }

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Len returns the Euclidean length of p.
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// AngleDegrees returns the polar angle of the vector a→b in degrees,
// normalized to [0, 360).
func AngleDegrees(a, b Point) float64 {
	return NormalizeDegrees(math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi)
}

// NormalizeDegrees maps an angle to [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// PointToSegmentDistance returns the distance from p to the closest point of
// the segment s–e. A zero-length segment degenerates to the distance to s.
func PointToSegmentDistance(p, s, e Point) float64 {
	d := e.Sub(s)
	lenSq := d.Dot(d)
	if lenSq == 0 {
		return Distance(p, s)
	}
	t := p.Sub(s).Dot(d) / lenSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, s.Add(d.Mul(t)))
}

// Snap rounds p to the nearest multiple of grid. A non-positive grid
// returns p unchanged.
func Snap(p Point, grid float64) Point {
	if grid <= 0 {
		return p
	}
	return Point{X: math.Round(p.X/grid) * grid, Y: math.Round(p.Y/grid) * grid}
}

// Pairs converts a flat [x0, y0, x1, y1, ...] slice into points. A trailing
// odd coordinate is ignored.
func Pairs(flat []float64) []Point {
	points := make([]Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		points = append(points, Point{X: flat[i], Y: flat[i+1]})
	}
	return points
}

// Flatten converts points into a flat [x0, y0, x1, y1, ...] slice.
func Flatten(points []Point) []float64 {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
