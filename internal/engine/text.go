package engine

import (
	"strings"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
)

// TextEdit is the open text overlay. ShapeID is empty while creating a
// new text shape.
type TextEdit struct {
	ShapeID  string     `json:"shapeId,omitempty"`
	Position geom.Point `json:"position"`
	Screen   geom.Point `json:"screen"`
	Content  string     `json:"content"`
	FontSize float64    `json:"fontSize"`
	Rotation float64    `json:"rotation,omitempty"`
}

func (e *Engine) openText(p geom.Point, existing *document.Shape) {
	t := &TextEdit{Position: p, FontSize: e.style.FontSize}
	if existing != nil {
		m := existing.Matrix()
		t.ShapeID = existing.ID
		t.Position = m.Apply(geom.Pt(existing.X, existing.Y))
		t.Content = existing.Text
		t.FontSize = existing.FontSize * m.MeanScale()
		t.Rotation = existing.Rotation
	}
	t.Screen = e.view.ToScreen(t.Position)
	e.g = gesture{}
	e.text = t
	e.state = StateEditingText
	e.emit(ChangeText)
}

// TextEdit returns the open overlay, if any.
func (e *Engine) TextEdit() (TextEdit, bool) {
	if e.text == nil {
		return TextEdit{}, false
	}
	return *e.text, true
}

// SetTextContent replaces the overlay content.
func (e *Engine) SetTextContent(content string) bool {
	if e.text == nil {
		return false
	}
	e.text.Content = content
	e.emit(ChangeText)
	return true
}

// CommitText closes the overlay. Empty content aborts a new text shape
// and deletes an existing one. It reports whether the page changed.
func (e *Engine) CommitText() bool {
	t := e.text
	if t == nil {
		return false
	}
	e.text = nil
	e.state = StateIdle
	e.emit(ChangeText)

	// Whitespace-only content counts as empty; anything else is kept as typed.
	content := t.Content
	if strings.TrimSpace(content) == "" {
		content = ""
	}
	if t.ShapeID == "" {
		if content == "" {
			return false
		}
		s := e.newShape(document.TypeText)
		s.X, s.Y = t.Position.X, t.Position.Y
		s.Text = content
		e.commitShape(s)
		return true
	}

	i := e.index(t.ShapeID)
	if i < 0 {
		return false
	}
	if content == "" {
		e.removeAt(i)
		return true
	}
	e.session().shapes[i].Text = content
	e.pushHistory()
	e.emit(ChangeShapes)
	return true
}

// CancelText closes the overlay without changes.
func (e *Engine) CancelText() bool {
	if e.text == nil {
		return false
	}
	e.text = nil
	e.state = StateIdle
	e.emit(ChangeText)
	return true
}
