package document

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/annosuite/annotator/internal/geom"
)

type ShapeType string

const (
	TypeRect    ShapeType = "rect"
	TypeCircle  ShapeType = "circle"
	TypeLine    ShapeType = "line"
	TypeArrow   ShapeType = "arrow"
	TypeFree    ShapeType = "free"
	TypePolygon ShapeType = "polygon"
	TypeText    ShapeType = "text"
	TypeRuler   ShapeType = "ruler"
	TypeAngle   ShapeType = "angle"
)

type DashStyle string

const (
	DashSolid  DashStyle = "solid"
	DashDashed DashStyle = "dashed"
	DashDotted DashStyle = "dotted"
)

// Defaults applied by normalization when input omits a value.
const (
	DefaultStroke        = "#ff0000"
	DefaultStrokeWidth   = 2.0
	DefaultFontSize      = 18.0
	DefaultPointerLength = 10.0
	DefaultPointerWidth  = 10.0
)

// Text boxes are estimated from the character count since glyph metrics
// belong to the renderer.
const (
	TextWidthFactor = 0.6
	TextLineHeight  = 1.2
)

// DashPattern returns the dash array for a named style. Solid and unknown
// styles have no pattern.
func DashPattern(style DashStyle) []float64 {
	switch style {
	case DashDashed:
		return []float64{10, 6}
	case DashDotted:
		return []float64{2, 4}
	default:
		return nil
	}
}

// Shape is one annotation primitive. Type selects which of the geometry
// fields are meaningful:
//
//   - rect: X, Y (top-left), Width, Height
//   - circle: X, Y (centre), Radius
//   - line, arrow, free, polygon: Points as flat x/y pairs; arrow adds
//     PointerLength and PointerWidth
//   - text: X, Y (anchor), Text, FontSize
//   - ruler: Points = [x1, y1, x2, y2] plus the cached measurement fields
//   - angle: Points = [vx, vy, ax, ay, bx, by] plus the cached angle fields
//
// Rotation (degrees) and ScaleX/ScaleY are applied about Pivot.
type Shape struct {
	ID          string    `json:"id"`
	Type        ShapeType `json:"type"`
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"strokeWidth"`
	DashStyle   DashStyle `json:"dashStyle,omitempty"`
	Dash        []float64 `json:"dash,omitempty"`
	Rotation    float64   `json:"rotation,omitempty"`
	ScaleX      float64   `json:"scaleX"`
	ScaleY      float64   `json:"scaleY"`
	LayerID     string    `json:"layerId,omitempty"`

	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`

	Points        []float64 `json:"points,omitempty"`
	PointerLength float64   `json:"pointerLength,omitempty"`
	PointerWidth  float64   `json:"pointerWidth,omitempty"`

	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`

	// Ruler measurement, derived from Points.
	Distance float64 `json:"distance,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Unit     string  `json:"unit,omitempty"`

	// Angle measurement, derived from Points.
	Angle     float64 `json:"angle,omitempty"`
	ArcStart  float64 `json:"arcStart,omitempty"`
	Sweep     float64 `json:"sweep,omitempty"`
	ArcRadius float64 `json:"arcRadius,omitempty"`

	Label  string  `json:"label,omitempty"`
	LabelX float64 `json:"labelX,omitempty"`
	LabelY float64 `json:"labelY,omitempty"`
}

// Clone returns a deep copy of s.
func (s Shape) Clone() Shape {
	c := s
	if s.Points != nil {
		c.Points = append([]float64(nil), s.Points...)
	}
	if s.Dash != nil {
		c.Dash = append([]float64(nil), s.Dash...)
	}
	return c
}

// IsMeasurement reports whether the shape is a ruler or angle, whose size
// is defined purely by its points.
func (s Shape) IsMeasurement() bool {
	return s.Type == TypeRuler || s.Type == TypeAngle
}

// IsStroke reports whether the shape is drawn from its point sequence.
func (s Shape) IsStroke() bool {
	switch s.Type {
	case TypeLine, TypeArrow, TypeFree, TypePolygon:
		return true
	}
	return false
}

// Vertices returns Points as a point slice.
func (s Shape) Vertices() []geom.Point {
	return geom.Pairs(s.Points)
}

// RulerEnds returns the start and end point of a ruler.
func (s Shape) RulerEnds() (geom.Point, geom.Point) {
	pts := s.Vertices()
	for len(pts) < 2 {
		pts = append(pts, geom.Point{})
	}
	return pts[0], pts[1]
}

// AnglePoints returns the vertex and the two ray endpoints of an angle.
func (s Shape) AnglePoints() (vertex, a, b geom.Point) {
	pts := s.Vertices()
	for len(pts) < 3 {
		pts = append(pts, geom.Point{})
	}
	return pts[0], pts[1], pts[2]
}

// Translate moves the shape, including any cached label position.
func (s *Shape) Translate(dx, dy float64) {
	switch s.Type {
	case TypeRect, TypeCircle, TypeText:
		s.X += dx
		s.Y += dy
	default:
		for i := 0; i+1 < len(s.Points); i += 2 {
			s.Points[i] += dx
			s.Points[i+1] += dy
		}
	}
	if s.IsMeasurement() {
		s.LabelX += dx
		s.LabelY += dy
	}
}

// Scales returns the effective scale factors, treating zero as 1.
func (s Shape) Scales() (float64, float64) {
	sx, sy := s.ScaleX, s.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return sx, sy
}

// TextBox returns the approximate untransformed bounding box of a text shape.
func (s Shape) TextBox() geom.Rect {
	fs := s.FontSize
	if fs <= 0 {
		fs = DefaultFontSize
	}
	lines := strings.Split(s.Text, "\n")
	longest := 0
	for _, l := range lines {
		longest = max(longest, utf8.RuneCountInString(l))
	}
	return geom.Rect{
		X:      s.X,
		Y:      s.Y,
		Width:  float64(longest) * fs * TextWidthFactor,
		Height: float64(len(lines)) * fs * TextLineHeight,
	}
}

// LocalBounds returns the bounding box of the untransformed geometry.
func (s Shape) LocalBounds() geom.Rect {
	switch s.Type {
	case TypeRect:
		return geom.NormalizedRect(s.X, s.Y, s.Width, s.Height)
	case TypeCircle:
		r := math.Abs(s.Radius)
		return geom.Rect{X: s.X - r, Y: s.Y - r, Width: 2 * r, Height: 2 * r}
	case TypeText:
		return s.TextBox()
	default:
		return geom.BoundsOf(s.Vertices())
	}
}

// Pivot is the centre of rotation and scaling.
func (s Shape) Pivot() geom.Point {
	return s.LocalBounds().Center()
}

// Matrix returns the shape's local-to-canvas transform.
func (s Shape) Matrix() geom.Matrix2D {
	sx, sy := s.Scales()
	if s.Rotation == 0 && sx == 1 && sy == 1 {
		return geom.Identity()
	}
	p := s.Pivot()
	return geom.FromTransform(p.X, p.Y, sx, sy, s.Rotation, p.X, p.Y)
}

// Bounds returns the canvas-space axis-aligned bounding box.
func (s Shape) Bounds() geom.Rect {
	return s.Matrix().TransformRect(s.LocalBounds())
}

// WorldVertices returns Points mapped through the shape's transform.
func (s Shape) WorldVertices() []geom.Point {
	m := s.Matrix()
	pts := s.Vertices()
	for i := range pts {
		pts[i] = m.Apply(pts[i])
	}
	return pts
}

// BakeTransform applies Rotation and scale directly to Points and resets
// them. Only point-based shapes can be baked; others are left unchanged.
func (s *Shape) BakeTransform() {
	if s.Type == TypeRect || s.Type == TypeCircle || s.Type == TypeText {
		return
	}
	m := s.Matrix()
	if m.IsIdentity() {
		return
	}
	label := m.Apply(geom.Pt(s.LabelX, s.LabelY))
	s.Points = geom.Flatten(s.WorldVertices())
	s.Rotation = 0
	s.ScaleX, s.ScaleY = 1, 1
	if s.IsMeasurement() {
		s.LabelX, s.LabelY = label.X, label.Y
	}
}
