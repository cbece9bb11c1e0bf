package export

import (
	"math"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/measure"
)

const (
	OpRect    = "rect"
	OpEllipse = "ellipse"
	OpLine    = "line"
	OpPath    = "path"
	OpText    = "text"
)

const (
	AlignLeft   = "left"
	AlignCenter = "center"
)

const (
	// RulerMarkerSize is the half-length of the ticks drawn at ruler ends.
	RulerMarkerSize = 6.0
	// LabelFontSize is the canvas font size of measurement labels.
	LabelFontSize = 12.0
	// MinArcSegments is the minimum number of segments approximating an
	// angle arc; one more is added per ArcStep degrees of sweep.
	MinArcSegments = 6
	ArcStep        = 10.0
)

// DrawCommand is a single drawing primitive in target space. A list of
// commands is in painter's order (back to front).
type DrawCommand struct {
	Op      string `json:"op"`
	ShapeID string `json:"shapeId,omitempty"`

	// rect: X, Y is the corner with the smallest coordinates.
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// ellipse
	CX float64 `json:"cx,omitempty"`
	CY float64 `json:"cy,omitempty"`
	RX float64 `json:"rx,omitempty"`
	RY float64 `json:"ry,omitempty"`

	// line
	X1 float64 `json:"x1,omitempty"`
	Y1 float64 `json:"y1,omitempty"`
	X2 float64 `json:"x2,omitempty"`
	Y2 float64 `json:"y2,omitempty"`

	// path
	Points []geom.Point `json:"points,omitempty"`
	Closed bool         `json:"closed,omitempty"`

	// text: X, Y is the anchor; top-left for AlignLeft, centre for AlignCenter.
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Align    string  `json:"align,omitempty"`

	// Rotation in degrees, counter-clockwise in target space (ellipse, text).
	Rotation float64 `json:"rotation,omitempty"`

	Stroke      string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Dash        []float64 `json:"dash,omitempty"`
}

// Compile generates the command buffer for a shape list. Shapes on hidden
// layers are skipped; the rest keep list order.
func Compile(shapes []document.Shape, proj Projection, layers *document.LayerRegistry) []DrawCommand {
	var commands []DrawCommand
	for _, s := range shapes {
		if !layers.Visible(s) {
			continue
		}
		commands = append(commands, CompileShape(s, proj)...)
	}
	return commands
}

// CompileShape projects one shape into target-space commands.
func CompileShape(s document.Shape, proj Projection) []DrawCommand {
	c := compiler{shape: s, proj: proj, m: s.Matrix(), f: proj.StrokeFactor()}
	switch s.Type {
	case document.TypeRect:
		c.rect()
	case document.TypeCircle:
		c.circle()
	case document.TypeLine:
		c.polyline(s.WorldVertices())
	case document.TypeArrow:
		pts := s.WorldVertices()
		c.polyline(pts)
		c.arrowHead(pts)
	case document.TypeFree:
		c.path(s.WorldVertices(), false)
	case document.TypePolygon:
		c.path(s.WorldVertices(), true)
	case document.TypeText:
		c.text()
	case document.TypeRuler:
		c.ruler()
	case document.TypeAngle:
		c.angle()
	}
	return c.out
}

type compiler struct {
	shape document.Shape
	proj  Projection
	m     geom.Matrix2D
	f     float64
	out   []DrawCommand
}

func (c *compiler) styled(cmd DrawCommand) DrawCommand {
	cmd.ShapeID = c.shape.ID
	cmd.Stroke = c.shape.Stroke
	cmd.StrokeWidth = c.shape.StrokeWidth * c.f
	if len(c.shape.Dash) > 0 {
		cmd.Dash = make([]float64, len(c.shape.Dash))
		for i, d := range c.shape.Dash {
			cmd.Dash[i] = d * c.f
		}
	}
	return cmd
}

func (c *compiler) emit(cmd DrawCommand) {
	c.out = append(c.out, c.styled(cmd))
}

func (c *compiler) project(pts []geom.Point) []geom.Point {
	out := make([]geom.Point, len(pts))
	for i, p := range pts {
		out[i] = c.proj.ToTarget(p)
	}
	return out
}

func (c *compiler) line(a, b geom.Point) {
	pa, pb := c.proj.ToTarget(a), c.proj.ToTarget(b)
	c.emit(DrawCommand{Op: OpLine, X1: pa.X, Y1: pa.Y, X2: pb.X, Y2: pb.Y})
}

func (c *compiler) rect() {
	corners := c.shape.LocalBounds().Corners()
	world := make([]geom.Point, len(corners))
	for i, p := range corners {
		world[i] = c.m.Apply(p)
	}
	if c.shape.Rotation != 0 {
		c.emit(DrawCommand{Op: OpPath, Points: c.project(world), Closed: true})
		return
	}
	r := geom.BoundsOf(c.project(world))
	c.emit(DrawCommand{Op: OpRect, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height})
}

// circle projects two orthogonal radius vectors separately so anisotropic
// page scaling yields the right ellipse radii.
func (c *compiler) circle() {
	r := math.Abs(c.shape.Radius)
	center := c.proj.ToTarget(c.m.Apply(geom.Pt(c.shape.X, c.shape.Y)))
	v1 := c.proj.Vector(c.m.ApplyVector(geom.Pt(r, 0)))
	v2 := c.proj.Vector(c.m.ApplyVector(geom.Pt(0, r)))
	c.emit(DrawCommand{
		Op:       OpEllipse,
		CX:       center.X,
		CY:       center.Y,
		RX:       v1.Len(),
		RY:       v2.Len(),
		Rotation: degrees(math.Atan2(v1.Y, v1.X)),
	})
}

func (c *compiler) polyline(pts []geom.Point) {
	switch len(pts) {
	case 0:
		return
	case 1:
		c.line(pts[0], pts[0])
		return
	}
	for i := 1; i < len(pts); i++ {
		c.line(pts[i-1], pts[i])
	}
}

// arrowHead adds two segments meeting at the last point, oriented along
// the final segment of non-zero length.
func (c *compiler) arrowHead(pts []geom.Point) {
	if len(pts) < 2 {
		return
	}
	tip := pts[len(pts)-1]
	var dir geom.Point
	for i := len(pts) - 2; i >= 0; i-- {
		if d := tip.Sub(pts[i]); d.Len() > 0 {
			dir = d.Mul(1 / d.Len())
			break
		}
	}
	if dir.Len() == 0 {
		return
	}
	k := c.m.MeanScale()
	length := c.shape.PointerLength * k
	width := c.shape.PointerWidth * k
	perp := geom.Pt(-dir.Y, dir.X)
	base := tip.Sub(dir.Mul(length))
	c.line(base.Add(perp.Mul(width/2)), tip)
	c.line(tip, base.Sub(perp.Mul(width/2)))
}

func (c *compiler) path(pts []geom.Point, closed bool) {
	if len(pts) < 2 {
		c.polyline(pts)
		return
	}
	c.emit(DrawCommand{Op: OpPath, Points: c.project(pts), Closed: closed})
}

func (c *compiler) textAt(anchor geom.Point, text string, size float64, align string, rotation float64) {
	p := c.proj.ToTarget(anchor)
	cmd := c.styled(DrawCommand{
		Op:       OpText,
		X:        p.X,
		Y:        p.Y,
		Text:     text,
		FontSize: size * c.f,
		Align:    align,
		Rotation: rotation,
	})
	cmd.StrokeWidth = 0
	cmd.Dash = nil
	c.out = append(c.out, cmd)
}

func (c *compiler) text() {
	s := c.shape
	if s.Text == "" {
		return
	}
	dir := c.proj.Vector(c.m.ApplyVector(geom.Pt(1, 0)))
	rotation := 0.0
	if s.Rotation != 0 {
		rotation = degrees(math.Atan2(dir.Y, dir.X))
	}
	c.textAt(c.m.Apply(geom.Pt(s.X, s.Y)), s.Text, s.FontSize*c.m.MeanScale(), AlignLeft, rotation)
}

func (c *compiler) ruler() {
	pts := c.shape.WorldVertices()
	if len(pts) < 2 {
		return
	}
	start, end := pts[0], pts[1]
	c.line(start, end)

	dir := end.Sub(start)
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	} else {
		dir = geom.Pt(1, 0)
	}
	perp := geom.Pt(-dir.Y, dir.X).Mul(RulerMarkerSize)
	c.line(start.Sub(perp), start.Add(perp))
	c.line(end.Sub(perp), end.Add(perp))

	if c.shape.Label != "" {
		label := c.m.Apply(geom.Pt(c.shape.LabelX, c.shape.LabelY))
		c.textAt(label, c.shape.Label, LabelFontSize, AlignCenter, 0)
	}
}

func (c *compiler) angle() {
	pts := c.shape.WorldVertices()
	if len(pts) < 3 {
		return
	}
	v, a, b := pts[0], pts[1], pts[2]
	c.line(v, a)
	c.line(v, b)

	s := c.shape
	start, sweep, radius := s.ArcStart, s.Sweep, s.ArcRadius
	label := c.m.Apply(geom.Pt(s.LabelX, s.LabelY))
	text := s.Label
	if sweep == 0 && s.Angle == 0 {
		res, err := measure.ComputeAngle(v, a, b)
		if err != nil {
			return
		}
		start, sweep, radius, label = res.ArcStart, res.Sweep, res.ArcRadius, res.Label
		text = measure.FormatAngle(res.Degrees)
	}

	segments := max(MinArcSegments, int(math.Ceil(sweep/ArcStep)))
	arc := make([]geom.Point, 0, segments+1)
	for i := 0; i <= segments; i++ {
		t := (start + sweep*float64(i)/float64(segments)) * math.Pi / 180
		arc = append(arc, v.Add(geom.Pt(math.Cos(t), math.Sin(t)).Mul(radius)))
	}
	c.emit(DrawCommand{Op: OpPath, Points: c.project(arc)})

	if text != "" {
		c.textAt(label, text, LabelFontSize, AlignCenter, 0)
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
