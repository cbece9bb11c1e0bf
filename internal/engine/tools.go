package engine

import (
	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/measure"
)

type Tool string

const (
	ToolSelect  Tool = "select"
	ToolPan     Tool = "pan"
	ToolRect    Tool = "rect"
	ToolCircle  Tool = "circle"
	ToolLine    Tool = "line"
	ToolArrow   Tool = "arrow"
	ToolFree    Tool = "free"
	ToolPolygon Tool = "polygon"
	ToolText    Tool = "text"
	ToolEraser  Tool = "eraser"
	ToolRuler   Tool = "ruler"
	ToolAngle   Tool = "angle"
)

var tools = map[Tool]bool{
	ToolSelect: true, ToolPan: true, ToolRect: true, ToolCircle: true,
	ToolLine: true, ToolArrow: true, ToolFree: true, ToolPolygon: true,
	ToolText: true, ToolEraser: true, ToolRuler: true, ToolAngle: true,
}

// shapeType maps drawing tools to the shape they create.
var shapeType = map[Tool]document.ShapeType{
	ToolRect:    document.TypeRect,
	ToolCircle:  document.TypeCircle,
	ToolLine:    document.TypeLine,
	ToolArrow:   document.TypeArrow,
	ToolFree:    document.TypeFree,
	ToolPolygon: document.TypePolygon,
	ToolRuler:   document.TypeRuler,
	ToolAngle:   document.TypeAngle,
}

type State string

const (
	StateIdle               State = "idle"
	StateDrafting           State = "drafting"
	StatePanning            State = "panning"
	StateErasing            State = "erasing"
	StateEditingText        State = "editing-text"
	StateAwaitingAnglePoint State = "awaiting-angle-point"
	StateAwaitingRulerPoint State = "awaiting-ruler-point"
	StateTransforming       State = "transforming"
)

type ChangeKind string

const (
	ChangeShapes    ChangeKind = "shapes"
	ChangeDraft     ChangeKind = "draft"
	ChangeHistory   ChangeKind = "history"
	ChangeSelection ChangeKind = "selection"
	ChangeViewport  ChangeKind = "viewport"
	ChangeTool      ChangeKind = "tool"
	ChangeText      ChangeKind = "text"
	ChangePage      ChangeKind = "page"
)

// Change tells an observer what kind of state moved on which page.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Page int        `json:"page"`
}

type handleKind int

const (
	handleNone handleKind = iota
	handleMove
	handleResize
	handleRotate
)

// gesture is the context of the interaction in progress. It is reset to
// its zero value whenever the engine returns to idle.
type gesture struct {
	origin geom.Point
	draft  *document.Shape
	// clicks holds the points placed so far by ruler and angle.
	clicks []geom.Point

	lastErase geom.Point
	erased    bool

	panOffset geom.Point
	startPan  geom.Point

	handle       handleKind
	start        document.Shape
	startPointer geom.Point
}

// SetTool activates a tool. The gesture in progress is cancelled and an
// open text overlay is committed, as a blur would.
func (e *Engine) SetTool(t Tool) bool {
	if !tools[t] {
		return false
	}
	if e.state == StateEditingText {
		e.CommitText()
	}
	e.cancelGesture()
	if t != ToolSelect {
		e.selected = ""
	}
	e.tool = t
	e.emit(ChangeTool)
	return true
}

// cancelGesture abandons the interaction in progress without touching
// history. Live edits made by the gesture revert to the last committed
// snapshot.
func (e *Engine) cancelGesture() {
	switch e.state {
	case StateErasing, StateTransforming:
		sess := e.session()
		sess.shapes = sess.history.Current().Shapes
		measure.Recompute(sess.shapes, e.units)
	case StatePanning:
		e.view.SetPan(e.g.startPan)
	case StateEditingText:
		e.text = nil
	case StateIdle:
		return
	}
	e.log.Debug("gesture cancelled", "state", e.state, "tool", e.tool)
	e.g = gesture{}
	e.state = StateIdle
	e.emit(ChangeDraft)
}
