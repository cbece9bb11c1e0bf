package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/export"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/preview"
)

// SelectionStroke is the color of the selection outline and handles.
const SelectionStroke = "#1e90ff"

// previewMargin pads the preview of a page whose size is unknown.
const previewMargin = 20.0

var ErrNothingToPreview = errors.New("engine: page has no size and no shapes")

// Render returns the canvas-space draw commands for the current page:
// committed shapes in z-order, then the draft, then the selection outline
// and handles.
func (e *Engine) Render() []export.DrawCommand {
	sess := e.session()
	shapes := sess.shapes
	if e.text != nil && e.text.ShapeID != "" {
		shapes = make([]document.Shape, 0, len(sess.shapes))
		for _, s := range sess.shapes {
			if s.ID != e.text.ShapeID {
				shapes = append(shapes, s)
			}
		}
	}

	proj := export.CanvasProjection()
	commands := export.Compile(shapes, proj, e.layers)
	if e.g.draft != nil {
		commands = append(commands, export.CompileShape(*e.g.draft, proj)...)
	}
	if i := e.selectedIndex(); i >= 0 && e.text == nil {
		commands = append(commands, e.selectionCommands(sess.shapes[i])...)
	}
	return commands
}

// RenderJSON returns Render encoded as a JSON array.
func (e *Engine) RenderJSON() string {
	commands := e.Render()
	if len(commands) == 0 {
		return "[]"
	}
	data, err := json.Marshal(commands)
	if err != nil {
		e.log.Error("encode draw commands", "error", err)
		return "[]"
	}
	return string(data)
}

// selectionCommands outlines the selected shape and draws its handles at
// a constant on-screen size.
func (e *Engine) selectionCommands(s document.Shape) []export.DrawCommand {
	k := 1 / e.view.Scale()
	m := s.Matrix()
	corners := s.LocalBounds().Corners()
	outline := make([]geom.Point, len(corners))
	for i, c := range corners {
		outline[i] = m.Apply(c)
	}

	style := func(cmd export.DrawCommand) export.DrawCommand {
		cmd.ShapeID = s.ID
		cmd.Stroke = SelectionStroke
		cmd.StrokeWidth = k
		return cmd
	}
	commands := []export.DrawCommand{
		style(export.DrawCommand{Op: export.OpPath, Points: outline, Closed: true, Dash: []float64{4 * k, 4 * k}}),
	}

	resize, rotate, canResize := e.handles(s)
	hs := HandleSize * k
	if canResize {
		commands = append(commands, style(export.DrawCommand{
			Op: export.OpRect, X: resize.X - hs/2, Y: resize.Y - hs/2, Width: hs, Height: hs,
		}))
	}
	top := geom.Midpoint(outline[0], outline[1])
	commands = append(commands,
		style(export.DrawCommand{Op: export.OpLine, X1: top.X, Y1: top.Y, X2: rotate.X, Y2: rotate.Y}),
		style(export.DrawCommand{Op: export.OpEllipse, CX: rotate.X, CY: rotate.Y, RX: hs / 2, RY: hs / 2}),
	)
	return commands
}

// ToRasterPreview renders the current page raster with its committed
// annotations to PNG at the page's pixel size.
func (e *Engine) ToRasterPreview() ([]byte, error) {
	sess := e.session()
	w, h := sess.size.Width, sess.size.Height
	if w <= 0 || h <= 0 {
		if len(sess.shapes) == 0 {
			return nil, ErrNothingToPreview
		}
		b := sess.shapes[0].Bounds()
		for _, s := range sess.shapes[1:] {
			b = b.Union(s.Bounds())
		}
		w = math.Max(1, b.X+b.Width+previewMargin)
		h = math.Max(1, b.Y+b.Height+previewMargin)
	}

	if e.renderer == nil {
		r, err := preview.NewRenderer()
		if err != nil {
			return nil, err
		}
		e.renderer = r
	}
	img, err := e.renderer.Render(export.Compile(sess.shapes, export.CanvasProjection(), e.layers), preview.Options{
		Width:      int(math.Ceil(w)),
		Height:     int(math.Ceil(h)),
		Background: sess.image,
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := preview.EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
