package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/typeid"
)

// shapeFields breaks the UnmarshalJSON recursion.
type shapeFields Shape

// wireShape is the lenient input form of a Shape. Besides the canonical
// fields it accepts the alternative spellings older clients produced.
type wireShape struct {
	shapeFields

	Color  string      `json:"color"`
	Start  *geom.Point `json:"start"`
	End    *geom.Point `json:"end"`
	X1     *float64    `json:"x1"`
	Y1     *float64    `json:"y1"`
	X2     *float64    `json:"x2"`
	Y2     *float64    `json:"y2"`
	Vertex *geom.Point `json:"vertex"`
	PointA *geom.Point `json:"pointA"`
	PointB *geom.Point `json:"pointB"`
	Origin string      `json:"origin"`
}

// UnmarshalJSON decodes any accepted input form and normalizes it.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode shape: %w", err)
	}

	shape := Shape(w.shapeFields)
	if shape.Stroke == "" {
		shape.Stroke = w.Color
	}

	switch canonicalType(shape.Type) {
	case TypeLine, TypeArrow, TypeRuler:
		if len(shape.Points) < 4 {
			switch {
			case w.Start != nil && w.End != nil:
				shape.Points = []float64{w.Start.X, w.Start.Y, w.End.X, w.End.Y}
			case w.X1 != nil && w.Y1 != nil && w.X2 != nil && w.Y2 != nil:
				shape.Points = []float64{*w.X1, *w.Y1, *w.X2, *w.Y2}
			}
		}
	case TypeAngle:
		if len(shape.Points) < 6 && w.Vertex != nil && w.PointA != nil && w.PointB != nil {
			shape.Points = []float64{w.Vertex.X, w.Vertex.Y, w.PointA.X, w.PointA.Y, w.PointB.X, w.PointB.Y}
		}
	case TypeCircle:
		if strings.EqualFold(w.Origin, "topLeft") || strings.EqualFold(w.Origin, "top-left") {
			shape.X += shape.Radius
			shape.Y += shape.Radius
		}
	}

	*s = Normalize(shape)
	return nil
}

// canonicalType maps legacy type names onto the canonical set.
func canonicalType(t ShapeType) ShapeType {
	switch strings.ToLower(string(t)) {
	case "rectangle", "square":
		return TypeRect
	case "ellipse":
		return TypeCircle
	case "freehand", "pen", "pencil":
		return TypeFree
	case "measure":
		return TypeRuler
	}
	return ShapeType(strings.ToLower(string(t)))
}

// Normalize repairs a shape in place of rejecting it: missing style values
// get the documented defaults, a missing identifier is synthesized and the
// dash pattern is derived from the named style.
func Normalize(s Shape) Shape {
	s = s.Clone()
	s.Type = canonicalType(s.Type)
	if s.ID == "" {
		s.ID = typeid.NewShapeID()
	}
	if s.Stroke == "" {
		s.Stroke = DefaultStroke
	}
	if s.StrokeWidth <= 0 {
		s.StrokeWidth = DefaultStrokeWidth
	}
	if s.ScaleX == 0 {
		s.ScaleX = 1
	}
	if s.ScaleY == 0 {
		s.ScaleY = 1
	}
	if s.DashStyle == "" && len(s.Dash) == 0 {
		s.DashStyle = DashSolid
	}
	if s.DashStyle != "" {
		s.Dash = DashPattern(s.DashStyle)
	}
	if len(s.Points)%2 == 1 {
		s.Points = s.Points[:len(s.Points)-1]
	}

	switch s.Type {
	case TypeRect:
		r := geom.NormalizedRect(s.X, s.Y, s.Width, s.Height)
		s.X, s.Y, s.Width, s.Height = r.X, r.Y, r.Width, r.Height
	case TypeCircle:
		if s.Radius < 0 {
			s.Radius = -s.Radius
		}
	case TypeArrow:
		if s.PointerLength <= 0 {
			s.PointerLength = DefaultPointerLength
		}
		if s.PointerWidth <= 0 {
			s.PointerWidth = DefaultPointerWidth
		}
	case TypeText:
		if s.FontSize <= 0 {
			s.FontSize = DefaultFontSize
		}
	case TypeRuler:
		s.Points = padPoints(s.Points, 4)
	case TypeAngle:
		s.Points = padPoints(s.Points, 6)
	}
	return s
}

func padPoints(points []float64, n int) []float64 {
	if len(points) >= n {
		return points[:n]
	}
	out := make([]float64, n)
	copy(out, points)
	return out
}
