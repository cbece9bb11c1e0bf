package engine

import (
	"math"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/typeid"
)

const (
	// HandleSize is the on-screen size of the transform handles.
	HandleSize = 8.0
	// RotateHandleOffset is the on-screen distance of the rotate handle
	// above the top edge of the selection.
	RotateHandleOffset = 30.0
)

func (e *Engine) selectedIndex() int {
	if e.selected == "" {
		return -1
	}
	return e.index(e.selected)
}

// selectDown grabs a handle of the current selection, or selects the
// topmost shape under the pointer and starts moving it.
func (e *Engine) selectDown(screen, p geom.Point) {
	if h := e.handleAt(screen); h != handleNone {
		e.beginTransform(h, p)
		return
	}
	sess := e.session()
	i := document.TopmostAt(sess.shapes, p, e.opts.HitTolerance/e.view.Scale(), e.layers)
	if i < 0 {
		e.ClearSelection()
		return
	}
	if id := sess.shapes[i].ID; id != e.selected {
		e.selected = id
		e.emit(ChangeSelection)
	}
	e.beginTransform(handleMove, p)
}

func (e *Engine) beginTransform(h handleKind, p geom.Point) {
	i := e.selectedIndex()
	if i < 0 {
		return
	}
	e.g = gesture{handle: h, start: e.session().shapes[i].Clone(), startPointer: p}
	e.state = StateTransforming
}

// handles returns the canvas positions of the resize and rotate handles.
// Measurement shapes have no resize handle.
func (e *Engine) handles(s document.Shape) (resize, rotate geom.Point, canResize bool) {
	lb := s.LocalBounds()
	m := s.Matrix()
	resize = m.Apply(geom.Pt(lb.X+lb.Width, lb.Y+lb.Height))
	top := m.Apply(geom.Pt(lb.X+lb.Width/2, lb.Y))
	up := m.ApplyVector(geom.Pt(0, -1))
	if l := up.Len(); l > 0 {
		up = up.Mul(1 / l)
	} else {
		up = geom.Pt(0, -1)
	}
	rotate = top.Add(up.Mul(RotateHandleOffset / e.view.Scale()))
	return resize, rotate, !s.IsMeasurement()
}

func (e *Engine) handleAt(screen geom.Point) handleKind {
	i := e.selectedIndex()
	if i < 0 {
		return handleNone
	}
	resize, rotate, canResize := e.handles(e.session().shapes[i])
	if canResize && geom.Distance(screen, e.view.ToScreen(resize)) <= HandleSize {
		return handleResize
	}
	if geom.Distance(screen, e.view.ToScreen(rotate)) <= HandleSize {
		return handleRotate
	}
	return handleNone
}

// transformMove applies the drag so far to the shape as it was when the
// gesture started.
func (e *Engine) transformMove(p geom.Point) {
	i := e.index(e.g.start.ID)
	if i < 0 {
		e.cancelGesture()
		return
	}
	s := e.g.start.Clone()
	switch e.g.handle {
	case handleMove:
		d := p.Sub(e.g.startPointer)
		s.Translate(d.X, d.Y)
	case handleRotate:
		pivot := s.Pivot()
		delta := geom.AngleDegrees(pivot, p) - geom.AngleDegrees(pivot, e.g.startPointer)
		e.rotate(&s, delta)
	case handleResize:
		e.resize(&s, p)
	}
	e.session().shapes[i] = s
	e.emit(ChangeShapes)
}

// rotate turns s about its pivot. Measurement shapes have the rotation
// baked into their points so their derived values stay exact.
func (e *Engine) rotate(s *document.Shape, deg float64) {
	s.Rotation = geom.NormalizeDegrees(s.Rotation + deg)
	if s.IsMeasurement() {
		s.BakeTransform()
		e.derive(s)
	}
}

// resize scales s in its own frame so the bottom-right corner follows p
// while the top-left corner stays put.
func (e *Engine) resize(s *document.Shape, p geom.Point) {
	lb := s.LocalBounds()
	corner := geom.Pt(lb.X, lb.Y)
	anchor := s.Matrix().Apply(corner)
	u := geom.RotateDegrees(-s.Rotation).Apply(p.Sub(anchor))

	minExtent := math.Max(e.opts.MinShapeSize, 1)
	sx, sy := s.Scales()
	if lb.Width > 0 {
		sx = math.Max(u.X, minExtent) / lb.Width
	}
	if lb.Height > 0 {
		sy = math.Max(u.Y, minExtent) / lb.Height
	}
	s.ScaleX, s.ScaleY = sx, sy

	moved := s.Matrix().Apply(corner)
	s.Translate(anchor.X-moved.X, anchor.Y-moved.Y)
}

// --- control surface ---

// DuplicateSelection appends a copy of the selected shape offset by a
// fixed delta and selects the copy.
func (e *Engine) DuplicateSelection() bool {
	e.cancelGesture()
	i := e.selectedIndex()
	if i < 0 {
		return false
	}
	sess := e.session()
	c := sess.shapes[i].Clone()
	c.ID = typeid.NewShapeID()
	c.Translate(e.opts.DuplicateOffset, e.opts.DuplicateOffset)
	sess.shapes = append(sess.shapes, c)
	e.selected = c.ID
	e.pushHistory()
	e.emit(ChangeShapes)
	e.emit(ChangeSelection)
	return true
}

// RotateSelection rotates the selected shape by deg degrees about its
// centre.
func (e *Engine) RotateSelection(deg float64) bool {
	e.cancelGesture()
	i := e.selectedIndex()
	if i < 0 || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return false
	}
	e.rotate(&e.session().shapes[i], deg)
	e.pushHistory()
	e.emit(ChangeShapes)
	return true
}

// ScaleSelection multiplies the selected shape's scale by factor.
// Rulers and angles cannot be scaled; their size is their points.
func (e *Engine) ScaleSelection(factor float64) bool {
	e.cancelGesture()
	i := e.selectedIndex()
	if i < 0 || !(factor > 0) || math.IsInf(factor, 0) {
		return false
	}
	s := &e.session().shapes[i]
	if s.IsMeasurement() {
		return false
	}
	sx, sy := s.Scales()
	s.ScaleX, s.ScaleY = sx*factor, sy*factor
	e.pushHistory()
	e.emit(ChangeShapes)
	return true
}

// DeleteSelection removes the selected shape.
func (e *Engine) DeleteSelection() bool {
	e.cancelGesture()
	i := e.selectedIndex()
	if i < 0 {
		return false
	}
	e.removeAt(i)
	return true
}

func (e *Engine) removeAt(i int) {
	sess := e.session()
	if sess.shapes[i].ID == e.selected {
		e.selected = ""
	}
	shapes := make([]document.Shape, 0, len(sess.shapes)-1)
	shapes = append(shapes, sess.shapes[:i]...)
	sess.shapes = append(shapes, sess.shapes[i+1:]...)
	e.pushHistory()
	e.emit(ChangeShapes)
	e.emit(ChangeSelection)
}
