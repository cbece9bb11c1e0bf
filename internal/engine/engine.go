// Package engine turns pointer and keyboard events into shape edits on the
// current page and exposes the imperative control surface the hosting UI
// drives. An Engine is not safe for concurrent use; callers serialize
// access (the collab hub does this with a single goroutine per room).
package engine

import (
	"encoding/json"
	"image"
	"log/slog"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/history"
	"github.com/annosuite/annotator/internal/measure"
	"github.com/annosuite/annotator/internal/preview"
	"github.com/annosuite/annotator/internal/viewport"
)

// Style is applied to every shape the engine creates.
type Style struct {
	Stroke      string             `json:"stroke"`
	StrokeWidth float64            `json:"strokeWidth"`
	DashStyle   document.DashStyle `json:"dashStyle"`
	FontSize    float64            `json:"fontSize"`
	LayerID     string             `json:"layerId,omitempty"`
}

func DefaultStyle() Style {
	return Style{
		Stroke:      document.DefaultStroke,
		StrokeWidth: document.DefaultStrokeWidth,
		DashStyle:   document.DashSolid,
		FontSize:    document.DefaultFontSize,
	}
}

type Options struct {
	HistoryDepth int
	// EraserRadius and HitTolerance are in screen pixels; they shrink in
	// canvas space as the user zooms in.
	EraserRadius float64
	HitTolerance float64
	// MinShapeSize is the canvas size a rect or circle draft must exceed.
	MinShapeSize    float64
	DuplicateOffset float64
	Style           Style
	Units           measure.Units
	Logger          *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		HistoryDepth:    history.DefaultDepth,
		EraserRadius:    10,
		HitTolerance:    5,
		MinShapeSize:    3,
		DuplicateOffset: 20,
		Style:           DefaultStyle(),
		Units:           measure.DefaultUnits(),
	}
}

// pageSession is the lazily created per-page state.
type pageSession struct {
	shapes  []document.Shape
	history *history.Manager
	stage   geom.Point
	size    viewport.Size
	image   image.Image
}

// Engine owns the annotation state of every visited page and the
// interaction state machine.
type Engine struct {
	opts   Options
	log    *slog.Logger
	layers *document.LayerRegistry
	view   *viewport.Viewport

	pages map[int]*pageSession
	page  int

	tool  Tool
	state State
	style Style
	units measure.Units

	g        gesture
	selected string
	text     *TextEdit

	renderer *preview.Renderer
	onChange func(Change)
}

// New creates an engine showing page 1 with the select tool active.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = def.HistoryDepth
	}
	if opts.EraserRadius <= 0 {
		opts.EraserRadius = def.EraserRadius
	}
	if opts.HitTolerance <= 0 {
		opts.HitTolerance = def.HitTolerance
	}
	if opts.MinShapeSize < 0 {
		opts.MinShapeSize = def.MinShapeSize
	}
	if opts.Style.Stroke == "" {
		opts.Style = def.Style
	}
	if opts.Units.Validate() != nil {
		opts.Units = def.Units
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		opts:   opts,
		log:    log,
		layers: document.NewLayerRegistry(),
		view:   viewport.New(),
		pages:  make(map[int]*pageSession),
		page:   1,
		tool:   ToolSelect,
		state:  StateIdle,
		style:  opts.Style,
		units:  opts.Units,
	}
	e.session()
	return e
}

// OnChange registers the observer called after every state change.
func (e *Engine) OnChange(fn func(Change)) {
	e.onChange = fn
}

func (e *Engine) emit(kind ChangeKind) {
	if e.onChange != nil {
		e.onChange(Change{Kind: kind, Page: e.page})
	}
}

// session returns the current page's session, creating it on first visit.
func (e *Engine) session() *pageSession {
	return e.sessionFor(e.page)
}

func (e *Engine) sessionFor(page int) *pageSession {
	s, ok := e.pages[page]
	if !ok {
		s = &pageSession{shapes: []document.Shape{}}
		s.history = history.New(e.opts.HistoryDepth, history.Snapshot{Page: page, Shapes: s.shapes})
		e.pages[page] = s
	}
	return s
}

// snapshot captures the current page.
func (e *Engine) snapshot() history.Snapshot {
	return history.Snapshot{
		Page:          e.page,
		Shapes:        e.session().shapes,
		StagePosition: e.view.Pan(),
	}
}

// pushHistory records the current page state. Identical consecutive
// states are collapsed by the history manager.
func (e *Engine) pushHistory() {
	if e.session().history.Push(e.snapshot()) {
		e.emit(ChangeHistory)
	}
}

// restore replaces the live page with a snapshot and drops any transient
// interaction state.
func (e *Engine) restore(s history.Snapshot) {
	sess := e.session()
	sess.shapes = document.CloneShapes(s.Shapes)
	measure.Recompute(sess.shapes, e.units)
	sess.stage = s.StagePosition
	e.view.SetPan(s.StagePosition)
	e.g = gesture{}
	e.text = nil
	e.state = StateIdle
	e.selected = ""
	e.emit(ChangeShapes)
}

func (e *Engine) index(id string) int {
	for i, s := range e.session().shapes {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// --- Queries ---

func (e *Engine) Page() int                             { return e.page }
func (e *Engine) Tool() Tool                            { return e.tool }
func (e *Engine) State() State                          { return e.state }
func (e *Engine) Style() Style                          { return e.style }
func (e *Engine) Units() measure.Units                  { return e.units }
func (e *Engine) Layers() *document.LayerRegistry       { return e.layers }
func (e *Engine) Scale() float64                        { return e.view.Scale() }
func (e *Engine) Pan() geom.Point                       { return e.view.Pan() }
func (e *Engine) ToCanvas(screen geom.Point) geom.Point { return e.view.ToCanvas(screen) }

// Shapes returns a copy of the current page's shapes in z-order.
func (e *Engine) Shapes() []document.Shape {
	return document.CloneShapes(e.session().shapes)
}

// Shape returns a copy of the shape with the given id on the current page.
func (e *Engine) Shape(id string) (document.Shape, bool) {
	i := e.index(id)
	if i < 0 {
		return document.Shape{}, false
	}
	return e.session().shapes[i].Clone(), true
}

// Draft returns the in-progress shape, if any.
func (e *Engine) Draft() (document.Shape, bool) {
	if e.g.draft == nil {
		return document.Shape{}, false
	}
	return e.g.draft.Clone(), true
}

// Selection returns the selected shape id.
func (e *Engine) Selection() (string, bool) {
	return e.selected, e.selected != ""
}

func (e *Engine) CanUndo() bool   { return e.session().history.CanUndo() }
func (e *Engine) CanRedo() bool   { return e.session().history.CanRedo() }
func (e *Engine) HistoryLen() int { return e.session().history.Len() }

// HitTest returns the id of the topmost interactive shape under a screen
// point, or "".
func (e *Engine) HitTest(x, y float64) string {
	p := e.view.ToCanvas(geom.Pt(x, y))
	shapes := e.session().shapes
	i := document.TopmostAt(shapes, p, e.opts.HitTolerance/e.view.Scale(), e.layers)
	if i < 0 {
		return ""
	}
	return shapes[i].ID
}

// --- Commands ---

// SetStyle changes the style used for new shapes.
func (e *Engine) SetStyle(s Style) {
	if s.Stroke == "" {
		s.Stroke = document.DefaultStroke
	}
	if s.StrokeWidth <= 0 {
		s.StrokeWidth = document.DefaultStrokeWidth
	}
	if s.FontSize <= 0 {
		s.FontSize = document.DefaultFontSize
	}
	e.style = s
}

// SetUnits changes the measurement unit and recomputes every ruler and
// angle label on every page. Geometry and history are untouched.
func (e *Engine) SetUnits(u measure.Units) error {
	if err := u.Validate(); err != nil {
		return err
	}
	e.units = u
	n := 0
	for _, s := range e.pages {
		n += measure.Recompute(s.shapes, u)
		s.history.Map(func(snap *history.Snapshot) {
			measure.Recompute(snap.Shapes, u)
		})
	}
	e.log.Debug("units changed", "unit", u.Unit, "unitsPerPixel", u.UnitsPerPixel, "updated", n)
	e.emit(ChangeShapes)
	return nil
}

// Select selects a shape on the current page by id.
func (e *Engine) Select(id string) bool {
	i := e.index(id)
	if i < 0 || !e.layers.Interactive(e.session().shapes[i]) {
		return false
	}
	e.selected = id
	e.emit(ChangeSelection)
	return true
}

func (e *Engine) ClearSelection() {
	if e.selected == "" {
		return
	}
	e.selected = ""
	e.emit(ChangeSelection)
}

// SetPage switches to another page, creating its session on first visit.
// Any gesture in progress is cancelled.
func (e *Engine) SetPage(page int) bool {
	if page < 1 {
		return false
	}
	if page == e.page {
		return true
	}
	e.cancelGesture()
	e.session().stage = e.view.Pan()
	e.selected = ""

	e.page = page
	s := e.session()
	e.view.SetPan(s.stage)
	e.view.SetPageSize(s.size)
	e.emit(ChangePage)
	return true
}

// SetPageImage stores the raster a page is drawn over and adopts its
// pixel size as the page size.
func (e *Engine) SetPageImage(page int, img image.Image) {
	s := e.sessionFor(page)
	s.image = img
	if img != nil {
		b := img.Bounds()
		e.SetPageSize(page, float64(b.Dx()), float64(b.Dy()))
	}
}

// SetPageSize records the pixel size of a page's raster.
func (e *Engine) SetPageSize(page int, width, height float64) {
	s := e.sessionFor(page)
	s.size = viewport.Size{Width: width, Height: height}
	if page == e.page {
		e.view.SetPageSize(s.size)
	}
}

func (e *Engine) SetContainerSize(width, height float64) {
	e.view.SetContainerSize(viewport.Size{Width: width, Height: height})
}

// FitToScreen scales and centres the page in the container.
func (e *Engine) FitToScreen() bool {
	if !e.view.Fit() {
		return false
	}
	e.emit(ChangeViewport)
	return true
}

// SetZoom sets the zoom factor about the container centre.
func (e *Engine) SetZoom(scale float64) {
	c := e.view.Container()
	e.view.ZoomAt(geom.Pt(c.Width/2, c.Height/2), scale)
	e.emit(ChangeViewport)
}

// Undo restores the previous snapshot of the current page.
func (e *Engine) Undo() bool {
	e.cancelGesture()
	s, ok := e.session().history.Undo()
	if !ok {
		return false
	}
	e.restore(s)
	e.emit(ChangeHistory)
	return true
}

// Redo re-applies the last undone snapshot of the current page.
func (e *Engine) Redo() bool {
	e.cancelGesture()
	s, ok := e.session().history.Redo()
	if !ok {
		return false
	}
	e.restore(s)
	e.emit(ChangeHistory)
	return true
}

// ExportState returns the committed annotations of every visited page.
func (e *Engine) ExportState() document.Document {
	e.session().stage = e.view.Pan()
	doc := make(document.Document, len(e.pages))
	for page, s := range e.pages {
		doc[page] = &document.PageState{
			Shapes:        document.CloneShapes(s.shapes),
			StagePosition: s.stage,
		}
	}
	return doc
}

// ExportSnapshot is ExportState plus the layer table.
func (e *Engine) ExportSnapshot() document.Snapshot {
	return document.Snapshot{Pages: e.ExportState(), Layers: e.layers.List()}
}

// ExportStateJSON encodes ExportSnapshot.
func (e *Engine) ExportStateJSON() ([]byte, error) {
	return json.Marshal(e.ExportSnapshot())
}

// ImportState replaces all pages with the given document. Each page's
// history is reset to a single entry holding the imported state.
func (e *Engine) ImportState(doc document.Document) {
	e.cancelGesture()
	e.selected = ""

	old := e.pages
	e.pages = make(map[int]*pageSession, len(doc))
	for page, ps := range doc {
		if ps == nil {
			continue
		}
		shapes := make([]document.Shape, len(ps.Shapes))
		for i, sh := range ps.Shapes {
			shapes[i] = document.Normalize(sh)
		}
		shapes = document.EnsureUniqueIDs(shapes)
		measure.Recompute(shapes, e.units)
		s := &pageSession{shapes: shapes, stage: ps.StagePosition}
		if prev, ok := old[page]; ok {
			s.size, s.image = prev.size, prev.image
		}
		s.history = history.New(e.opts.HistoryDepth, history.Snapshot{Page: page, Shapes: shapes, StagePosition: ps.StagePosition})
		e.pages[page] = s
	}
	for page, prev := range old {
		if _, ok := e.pages[page]; !ok && (prev.image != nil || prev.size.Width > 0) {
			s := e.sessionFor(page)
			s.size, s.image = prev.size, prev.image
		}
	}

	s := e.session()
	e.view.SetPan(s.stage)
	e.view.SetPageSize(s.size)
	e.log.Info("state imported", "pages", len(doc))
	e.emit(ChangeShapes)
}

// ImportSnapshot imports the pages and, when the snapshot carries one,
// replaces the layer table.
func (e *Engine) ImportSnapshot(snap document.Snapshot) {
	if snap.Layers != nil {
		e.layers.Replace(snap.Layers)
	}
	e.ImportState(snap.Pages)
}

// ImportStateJSON decodes a snapshot, tolerating legacy keys, and imports it.
func (e *Engine) ImportStateJSON(data []byte) error {
	snap, err := document.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	e.ImportSnapshot(snap)
	return nil
}

// LoadSampleDocument imports the built-in sample annotations.
func (e *Engine) LoadSampleDocument() {
	e.ImportState(document.NewSampleDocument())
}
