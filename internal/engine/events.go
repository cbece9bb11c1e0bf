package engine

import (
	"math"
	"strings"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/measure"
)

// PointerEvent carries a pointer position in screen coordinates.
type PointerEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (ev PointerEvent) point() geom.Point { return geom.Pt(ev.X, ev.Y) }

type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

type WheelEvent struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"deltaY"`
}

// PointerDown starts or advances the gesture of the active tool.
func (e *Engine) PointerDown(ev PointerEvent) {
	screen := ev.point()
	p := e.view.ToCanvas(screen)
	if e.state == StateEditingText {
		e.CommitText()
	}

	switch e.tool {
	case ToolSelect:
		e.selectDown(screen, p)
	case ToolPan:
		e.g = gesture{panOffset: screen.Sub(e.view.Pan()), startPan: e.view.Pan()}
		e.state = StatePanning
	case ToolRect, ToolCircle, ToolLine, ToolArrow, ToolFree:
		e.startDraft(p)
	case ToolPolygon:
		e.addPolygonVertex(p)
	case ToolText:
		e.openText(p, nil)
	case ToolEraser:
		e.g = gesture{lastErase: p}
		e.state = StateErasing
		e.eraseAt(p)
	case ToolRuler:
		e.rulerClick(p)
	case ToolAngle:
		e.angleClick(p)
	}
}

// PointerMove updates the gesture in progress.
func (e *Engine) PointerMove(ev PointerEvent) {
	screen := ev.point()
	p := e.view.ToCanvas(screen)

	switch e.state {
	case StatePanning:
		e.view.SetPan(screen.Sub(e.g.panOffset))
		e.emit(ChangeViewport)
	case StateDrafting:
		e.moveDraft(p)
	case StateErasing:
		e.eraseTo(p)
	case StateAwaitingRulerPoint:
		d := e.g.draft
		d.Points[2], d.Points[3] = p.X, p.Y
		measure.ApplyRuler(d, e.units)
		e.emit(ChangeDraft)
	case StateAwaitingAnglePoint:
		e.moveAngleDraft(p)
	case StateTransforming:
		e.transformMove(p)
	}
}

// PointerUp ends drag gestures. Multi-click tools ignore it.
func (e *Engine) PointerUp(ev PointerEvent) {
	switch e.state {
	case StatePanning:
		e.g = gesture{}
		e.state = StateIdle
		e.pushHistory()
	case StateDrafting:
		e.finishDraft()
	case StateErasing:
		erased := e.g.erased
		e.g = gesture{}
		e.state = StateIdle
		if erased {
			e.pushHistory()
		}
	case StateTransforming:
		e.g = gesture{}
		e.state = StateIdle
		e.pushHistory()
	}
}

// DoubleClick finalizes a polygon, or opens a text shape for editing with
// the select tool.
func (e *Engine) DoubleClick(ev PointerEvent) {
	switch e.tool {
	case ToolPolygon:
		e.finishPolygon()
	case ToolSelect:
		id := e.HitTest(ev.X, ev.Y)
		if id == "" {
			return
		}
		s, _ := e.Shape(id)
		if s.Type != document.TypeText {
			return
		}
		e.cancelGesture()
		e.selected = id
		e.openText(geom.Point{}, &s)
	}
}

// KeyDown handles keyboard shortcuts and reports whether the key was used.
func (e *Engine) KeyDown(ev KeyEvent) bool {
	if e.state == StateEditingText {
		switch {
		case ev.Key == "Escape":
			return e.CancelText()
		case ev.Key == "Enter" && !ev.Shift:
			e.CommitText()
			return true
		}
		return false
	}

	mod := ev.Ctrl || ev.Meta
	key := strings.ToLower(ev.Key)
	switch {
	case ev.Key == "Escape":
		e.cancelGesture()
		e.ClearSelection()
		return true
	case ev.Key == "Enter":
		return e.finishPolygon()
	case ev.Key == "Delete" || ev.Key == "Backspace":
		return e.DeleteSelection()
	case mod && key == "z" && ev.Shift:
		return e.Redo()
	case mod && key == "z":
		return e.Undo()
	case mod && key == "y":
		return e.Redo()
	case mod && key == "d":
		return e.DuplicateSelection()
	}
	return false
}

// Wheel zooms about the cursor.
func (e *Engine) Wheel(ev WheelEvent) {
	e.view.Wheel(geom.Pt(ev.X, ev.Y), ev.DeltaY)
	e.emit(ChangeViewport)
}

func (e *Engine) PinchStart(a, b PointerEvent) {
	e.cancelGesture()
	e.view.PinchStart(a.point(), b.point())
}

func (e *Engine) PinchMove(a, b PointerEvent) {
	if e.view.PinchMove(a.point(), b.point()) {
		e.emit(ChangeViewport)
	}
}

func (e *Engine) PinchEnd() {
	e.view.PinchEnd()
}

// --- drafts ---

// newShape returns a normalized shape of type t in the current style.
func (e *Engine) newShape(t document.ShapeType) document.Shape {
	s := document.Shape{
		Type:        t,
		Stroke:      e.style.Stroke,
		StrokeWidth: e.style.StrokeWidth,
		DashStyle:   e.style.DashStyle,
		LayerID:     e.style.LayerID,
	}
	if t == document.TypeText {
		s.FontSize = e.style.FontSize
	}
	return document.Normalize(s)
}

func (e *Engine) startDraft(p geom.Point) {
	s := e.newShape(shapeType[e.tool])
	switch s.Type {
	case document.TypeRect, document.TypeCircle:
		s.X, s.Y = p.X, p.Y
	case document.TypeLine, document.TypeArrow:
		s.Points = []float64{p.X, p.Y, p.X, p.Y}
	case document.TypeFree:
		s.Points = []float64{p.X, p.Y}
	}
	e.g = gesture{origin: p, draft: &s}
	e.state = StateDrafting
	e.emit(ChangeDraft)
}

func (e *Engine) moveDraft(p geom.Point) {
	d := e.g.draft
	switch d.Type {
	case document.TypeRect:
		d.Width = p.X - e.g.origin.X
		d.Height = p.Y - e.g.origin.Y
	case document.TypeCircle:
		d.Radius = geom.Distance(e.g.origin, p)
	case document.TypeLine, document.TypeArrow:
		d.Points[2], d.Points[3] = p.X, p.Y
	case document.TypeFree:
		d.Points = append(d.Points, p.X, p.Y)
	default:
		return
	}
	e.emit(ChangeDraft)
}

// finishDraft commits or discards a drag-drawn draft on pointer-up.
// Polygons stay open across pointer-ups.
func (e *Engine) finishDraft() {
	d := *e.g.draft
	minSize := e.opts.MinShapeSize
	switch d.Type {
	case document.TypePolygon:
		return
	case document.TypeRect:
		if math.Abs(d.Width) > minSize && math.Abs(d.Height) > minSize {
			e.commitShape(d)
			return
		}
	case document.TypeCircle:
		if d.Radius > minSize {
			e.commitShape(d)
			return
		}
	case document.TypeLine, document.TypeArrow:
		e.commitShape(d)
		return
	case document.TypeFree:
		// the seed point plus at least two appended ones
		if len(d.Points) >= 6 {
			e.commitShape(d)
			return
		}
	}
	e.discardDraft()
}

func (e *Engine) discardDraft() {
	e.g = gesture{}
	e.state = StateIdle
	e.emit(ChangeDraft)
}

// commitShape appends a finished shape to the page and records it.
func (e *Engine) commitShape(s document.Shape) {
	s = document.Normalize(s)
	e.derive(&s)
	sess := e.session()
	sess.shapes = append(sess.shapes, s)
	e.g = gesture{}
	e.state = StateIdle
	e.log.Debug("shape committed", "page", e.page, "id", s.ID, "type", s.Type)
	e.pushHistory()
	e.emit(ChangeShapes)
}

// derive refreshes the cached measurement fields of s.
func (e *Engine) derive(s *document.Shape) {
	switch s.Type {
	case document.TypeRuler:
		measure.ApplyRuler(s, e.units)
	case document.TypeAngle:
		if err := measure.ApplyAngle(s); err != nil {
			s.Angle, s.Sweep, s.Label = 0, 0, ""
		}
	}
}

func (e *Engine) addPolygonVertex(p geom.Point) {
	d := e.g.draft
	if e.state != StateDrafting || d == nil || d.Type != document.TypePolygon {
		s := e.newShape(document.TypePolygon)
		s.Points = []float64{p.X, p.Y}
		e.g = gesture{origin: p, draft: &s}
		e.state = StateDrafting
		e.emit(ChangeDraft)
		return
	}
	n := len(d.Points)
	if d.Points[n-2] == p.X && d.Points[n-1] == p.Y {
		return
	}
	d.Points = append(d.Points, p.X, p.Y)
	e.emit(ChangeDraft)
}

// finishPolygon commits the open polygon if it has at least three
// vertices and discards it otherwise.
func (e *Engine) finishPolygon() bool {
	d := e.g.draft
	if e.state != StateDrafting || d == nil || d.Type != document.TypePolygon {
		return false
	}
	if len(d.Points) < 6 {
		e.discardDraft()
		return false
	}
	e.commitShape(*d)
	return true
}

func (e *Engine) rulerClick(p geom.Point) {
	if e.state != StateAwaitingRulerPoint {
		s := e.newShape(document.TypeRuler)
		s.Points = []float64{p.X, p.Y, p.X, p.Y}
		measure.ApplyRuler(&s, e.units)
		e.g = gesture{origin: p, clicks: []geom.Point{p}, draft: &s}
		e.state = StateAwaitingRulerPoint
		e.emit(ChangeDraft)
		return
	}
	start := e.g.clicks[0]
	s := *e.g.draft
	s.Points = []float64{start.X, start.Y, p.X, p.Y}
	e.commitShape(s)
}

func (e *Engine) angleClick(p geom.Point) {
	if e.state != StateAwaitingAnglePoint {
		s := e.newShape(document.TypeAngle)
		s.Points = []float64{p.X, p.Y, p.X, p.Y, p.X, p.Y}
		e.g = gesture{origin: p, clicks: []geom.Point{p}, draft: &s}
		e.state = StateAwaitingAnglePoint
		e.emit(ChangeDraft)
		return
	}

	e.g.clicks = append(e.g.clicks, p)
	if len(e.g.clicks) < 3 {
		e.moveAngleDraft(p)
		return
	}
	v, a, b := e.g.clicks[0], e.g.clicks[1], e.g.clicks[2]
	if _, err := measure.ComputeAngle(v, a, b); err != nil {
		e.log.Debug("angle aborted", "page", e.page, "error", err)
		e.discardDraft()
		return
	}
	s := *e.g.draft
	s.Points = geom.Flatten([]geom.Point{v, a, b})
	e.commitShape(s)
}

// moveAngleDraft makes the unplaced points of the angle draft follow the
// pointer.
func (e *Engine) moveAngleDraft(p geom.Point) {
	d := e.g.draft
	pts := append([]geom.Point(nil), e.g.clicks...)
	for len(pts) < 3 {
		pts = append(pts, p)
	}
	d.Points = geom.Flatten(pts)
	e.derive(d)
	e.emit(ChangeDraft)
}

// --- eraser ---

func (e *Engine) eraserTolerance() float64 {
	return e.opts.EraserRadius / e.view.Scale()
}

// eraseAt removes every interactive shape within the eraser radius of p
// from the live list. History is pushed once, at pointer-up.
func (e *Engine) eraseAt(p geom.Point) {
	tol := e.eraserTolerance()
	sess := e.session()
	kept := make([]document.Shape, 0, len(sess.shapes))
	for _, s := range sess.shapes {
		if e.layers.Interactive(s) && document.IsPointNearShape(s, p, tol) {
			if s.ID == e.selected {
				e.selected = ""
			}
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == len(sess.shapes) {
		return
	}
	sess.shapes = kept
	e.g.erased = true
	e.emit(ChangeShapes)
}

// eraseTo sweeps from the previous sample to p in steps of half the
// eraser radius so fast moves do not skip shapes.
func (e *Engine) eraseTo(p geom.Point) {
	from := e.g.lastErase
	step := e.eraserTolerance() / 2
	n := int(math.Ceil(geom.Distance(from, p) / step))
	for i := 1; i <= n; i++ {
		e.eraseAt(from.Add(p.Sub(from).Mul(float64(i) / float64(n))))
	}
	if n == 0 {
		e.eraseAt(p)
	}
	e.g.lastErase = p
}
