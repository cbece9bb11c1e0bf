package document

import (
	"math"

	"github.com/annosuite/annotator/internal/geom"
)

// IsPointNearShape reports whether p lies within tolerance of the shape.
// Rectangles and circles are treated as filled areas grown by the tolerance,
// stroke shapes are tested segment by segment and text uses its estimated
// box. Transformed shapes are tested in their local space.
func IsPointNearShape(s Shape, p geom.Point, tolerance float64) bool {
	if m := s.Matrix(); !m.IsIdentity() {
		p = m.Invert().Apply(p)
		if k := m.MeanScale(); k > 0 {
			tolerance /= k
		}
	}

	switch s.Type {
	case TypeRect:
		return geom.NormalizedRect(s.X, s.Y, s.Width, s.Height).Expand(tolerance).Contains(p)
	case TypeCircle:
		return geom.Distance(geom.Pt(s.X, s.Y), p) <= math.Abs(s.Radius)+tolerance
	case TypeLine, TypeArrow, TypeFree, TypeRuler:
		return nearPolyline(s.Vertices(), p, tolerance, false)
	case TypePolygon:
		return nearPolyline(s.Vertices(), p, tolerance, true)
	case TypeText:
		return s.TextBox().Expand(tolerance).Contains(p)
	case TypeAngle:
		v, a, b := s.AnglePoints()
		return geom.PointToSegmentDistance(p, v, a) <= tolerance ||
			geom.PointToSegmentDistance(p, v, b) <= tolerance
	}
	return false
}

func nearPolyline(pts []geom.Point, p geom.Point, tolerance float64, closed bool) bool {
	switch len(pts) {
	case 0:
		return false
	case 1:
		return geom.Distance(pts[0], p) <= tolerance
	}
	for i := 1; i < len(pts); i++ {
		if geom.PointToSegmentDistance(p, pts[i-1], pts[i]) <= tolerance {
			return true
		}
	}
	if closed && len(pts) > 2 {
		return geom.PointToSegmentDistance(p, pts[len(pts)-1], pts[0]) <= tolerance
	}
	return false
}

// TopmostAt returns the index of the last shape near p that the layer
// registry allows to be hit, or -1.
func TopmostAt(shapes []Shape, p geom.Point, tolerance float64, layers *LayerRegistry) int {
	for i := len(shapes) - 1; i >= 0; i-- {
		if !layers.Interactive(shapes[i]) {
			continue
		}
		if IsPointNearShape(shapes[i], p, tolerance) {
			return i
		}
	}
	return -1
}
