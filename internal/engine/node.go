package engine

import (
	"math"

	"github.com/annosuite/annotator/internal/geom"
)

// TransformableNode is the live transform a rendering backend reports for
// a shape after running its own transformer. Position is the pivot (the
// centre of the shape's untransformed bounds) in canvas space.
type TransformableNode interface {
	Position() geom.Point
	Scale() geom.Point
	Rotation() float64
}

// NodeTransform is a plain TransformableNode.
type NodeTransform struct {
	Pos geom.Point `json:"position"`
	Scl geom.Point `json:"scale"`
	Rot float64    `json:"rotation"`
}

func (n NodeTransform) Position() geom.Point { return n.Pos }
func (n NodeTransform) Scale() geom.Point    { return n.Scl }
func (n NodeTransform) Rotation() float64    { return n.Rot }

// Node returns the current transform of a shape.
func (e *Engine) Node(id string) (NodeTransform, bool) {
	s, ok := e.Shape(id)
	if !ok {
		return NodeTransform{}, false
	}
	sx, sy := s.Scales()
	return NodeTransform{Pos: s.Pivot(), Scl: geom.Pt(sx, sy), Rot: s.Rotation}, true
}

// ApplyNodeTransform writes a node's transform back into the shape and
// records one history entry. Rulers and angles ignore the scale and have
// the rotation baked into their points.
func (e *Engine) ApplyNodeTransform(id string, node TransformableNode) bool {
	i := e.index(id)
	if i < 0 || node == nil {
		return false
	}
	sc := node.Scale()
	if !finite(sc.X) || !finite(sc.Y) || sc.X == 0 || sc.Y == 0 || !finite(node.Rotation()) {
		return false
	}

	e.cancelGesture()
	sess := e.session()
	s := sess.shapes[i].Clone()
	if s.IsMeasurement() {
		sc = geom.Pt(1, 1)
	}
	s.ScaleX, s.ScaleY = sc.X, sc.Y
	s.Rotation = geom.NormalizeDegrees(node.Rotation())
	d := node.Position().Sub(s.Pivot())
	s.Translate(d.X, d.Y)
	if s.IsMeasurement() {
		s.BakeTransform()
		e.derive(&s)
	}
	sess.shapes[i] = s
	e.pushHistory()
	e.emit(ChangeShapes)
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
