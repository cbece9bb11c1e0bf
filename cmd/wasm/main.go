//go:build js && wasm

package main

import (
	"encoding/base64"
	"encoding/json"
	"syscall/js"

	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/measure"
)

var (
	eng      *engine.Engine
	listener js.Value
)

func main() {
	eng = engine.New(engine.DefaultOptions())
	eng.OnChange(notify)

	api := js.Global().Get("Object").New()

	// --- Input events (frontend → engine) ---
	api.Set("pointerDown", js.FuncOf(pointerHandler(eng.PointerDown)))
	api.Set("pointerMove", js.FuncOf(pointerHandler(eng.PointerMove)))
	api.Set("pointerUp", js.FuncOf(pointerHandler(eng.PointerUp)))
	api.Set("doubleClick", js.FuncOf(pointerHandler(eng.DoubleClick)))
	api.Set("keyDown", js.FuncOf(keyDown))
	api.Set("wheel", js.FuncOf(wheel))
	api.Set("pinchStart", js.FuncOf(pinchHandler(eng.PinchStart)))
	api.Set("pinchMove", js.FuncOf(pinchHandler(eng.PinchMove)))
	api.Set("pinchEnd", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		eng.PinchEnd()
		return nil
	}))

	// --- Commands ---
	api.Set("setTool", js.FuncOf(setTool))
	api.Set("setStyle", js.FuncOf(setStyle))
	api.Set("setUnits", js.FuncOf(setUnits))
	api.Set("calibrate", js.FuncOf(calibrate))
	api.Set("setZoom", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			eng.SetZoom(args[0].Float())
		}
		return nil
	}))
	api.Set("setPage", js.FuncOf(setPage))
	api.Set("setPageSize", js.FuncOf(setPageSize))
	api.Set("setContainerSize", js.FuncOf(setContainerSize))
	api.Set("fitToScreen", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return eng.FitToScreen()
	}))
	api.Set("select", js.FuncOf(selectShape))
	api.Set("undo", js.FuncOf(func(this js.Value, args []js.Value) interface{} { return eng.Undo() }))
	api.Set("redo", js.FuncOf(func(this js.Value, args []js.Value) interface{} { return eng.Redo() }))
	api.Set("duplicateSelection", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return eng.DuplicateSelection()
	}))
	api.Set("deleteSelection", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return eng.DeleteSelection()
	}))
	api.Set("rotateSelection", js.FuncOf(amountHandler(eng.RotateSelection)))
	api.Set("scaleSelection", js.FuncOf(amountHandler(eng.ScaleSelection)))
	api.Set("setTextContent", js.FuncOf(setTextContent))
	api.Set("commitText", js.FuncOf(func(this js.Value, args []js.Value) interface{} { return eng.CommitText() }))
	api.Set("cancelText", js.FuncOf(func(this js.Value, args []js.Value) interface{} { return eng.CancelText() }))
	api.Set("applyNodeTransform", js.FuncOf(applyNodeTransform))
	api.Set("importState", js.FuncOf(importState))
	api.Set("loadSampleDocument", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		eng.LoadSampleDocument()
		return ok()
	}))
	api.Set("onChange", js.FuncOf(onChange))

	// --- Queries (frontend ← engine) ---
	api.Set("render", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return eng.RenderJSON()
	}))
	api.Set("exportState", js.FuncOf(exportState))
	api.Set("getSession", js.FuncOf(getSession))
	api.Set("hitTest", js.FuncOf(hitTest))
	api.Set("toRasterPreview", js.FuncOf(toRasterPreview))

	js.Global().Set("annotatorEngine", api)
	js.Global().Set("annotatorWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func ok() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func fail(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

// decodeArg parses args[0], a JSON string, into v.
func decodeArg(args []js.Value, v any) string {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return "missing JSON argument"
	}
	if err := json.Unmarshal([]byte(args[0].String()), v); err != nil {
		return err.Error()
	}
	return ""
}

func notify(c engine.Change) {
	if listener.Type() != js.TypeFunction {
		return
	}
	listener.Invoke(string(c.Kind), c.Page)
}

func onChange(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		listener = js.Undefined()
		return nil
	}
	listener = args[0]
	return nil
}

// --- Events ---

func pointerHandler(fn func(engine.PointerEvent)) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 {
			return nil
		}
		fn(engine.PointerEvent{X: args[0].Float(), Y: args[1].Float()})
		return nil
	}
}

// pinchHandler takes the two touch points as x1, y1, x2, y2.
func pinchHandler(fn func(a, b engine.PointerEvent)) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 4 {
			return nil
		}
		fn(engine.PointerEvent{X: args[0].Float(), Y: args[1].Float()},
			engine.PointerEvent{X: args[2].Float(), Y: args[3].Float()})
		return nil
	}
}

func keyDown(this js.Value, args []js.Value) interface{} {
	var ev engine.KeyEvent
	if msg := decodeArg(args, &ev); msg != "" {
		return fail(msg)
	}
	return eng.KeyDown(ev)
}

func wheel(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return nil
	}
	eng.Wheel(engine.WheelEvent{X: args[0].Float(), Y: args[1].Float(), DeltaY: args[2].Float()})
	return nil
}

// --- Commands ---

func setTool(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing tool")
	}
	if !eng.SetTool(engine.Tool(args[0].String())) {
		return fail("unknown tool")
	}
	return ok()
}

func setStyle(this js.Value, args []js.Value) interface{} {
	var s engine.Style
	if msg := decodeArg(args, &s); msg != "" {
		return fail(msg)
	}
	eng.SetStyle(s)
	return ok()
}

func setUnits(this js.Value, args []js.Value) interface{} {
	var u measure.Units
	if msg := decodeArg(args, &u); msg != "" {
		return fail(msg)
	}
	if err := eng.SetUnits(u); err != nil {
		return fail(err.Error())
	}
	return ok()
}

// calibrate takes a measured pixel length, its real length and unit.
func calibrate(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return fail("expected pixels, length, unit")
	}
	upp, err := measure.Calibrate(args[0].Float(), args[1].Float())
	if err != nil {
		return fail(err.Error())
	}
	if err := eng.SetUnits(measure.Units{Unit: measure.Unit(args[2].String()), UnitsPerPixel: upp}); err != nil {
		return fail(err.Error())
	}
	return ok()
}

func setPage(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || !eng.SetPage(args[0].Int()) {
		return fail("invalid page")
	}
	return ok()
}

func setPageSize(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return fail("expected page, width, height")
	}
	eng.SetPageSize(args[0].Int(), args[1].Float(), args[2].Float())
	return ok()
}

func setContainerSize(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	eng.SetContainerSize(args[0].Float(), args[1].Float())
	return nil
}

func selectShape(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString || args[0].String() == "" {
		eng.ClearSelection()
		return true
	}
	return eng.Select(args[0].String())
}

func amountHandler(fn func(float64) bool) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return false
		}
		return fn(args[0].Float())
	}
}

func setTextContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return false
	}
	return eng.SetTextContent(args[0].String())
}

func applyNodeTransform(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("expected id and node JSON")
	}
	var node engine.NodeTransform
	if msg := decodeArg(args[1:], &node); msg != "" {
		return fail(msg)
	}
	if !eng.ApplyNodeTransform(args[0].String(), node) {
		return fail("cannot transform shape")
	}
	return ok()
}

func importState(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing state JSON")
	}
	if err := eng.ImportStateJSON([]byte(args[0].String())); err != nil {
		return fail(err.Error())
	}
	return ok()
}

// --- Queries ---

func exportState(this js.Value, args []js.Value) interface{} {
	data, err := eng.ExportStateJSON()
	if err != nil {
		return fail(err.Error())
	}
	return string(data)
}

type session struct {
	Page      int              `json:"page"`
	Tool      engine.Tool      `json:"tool"`
	State     engine.State     `json:"state"`
	Style     engine.Style     `json:"style"`
	Units     measure.Units    `json:"units"`
	Scale     float64          `json:"scale"`
	PanX      float64          `json:"panX"`
	PanY      float64          `json:"panY"`
	Selection string           `json:"selection,omitempty"`
	Text      *engine.TextEdit `json:"text,omitempty"`
	CanUndo   bool             `json:"canUndo"`
	CanRedo   bool             `json:"canRedo"`
}

func getSession(this js.Value, args []js.Value) interface{} {
	pan := eng.Pan()
	s := session{
		Page:    eng.Page(),
		Tool:    eng.Tool(),
		State:   eng.State(),
		Style:   eng.Style(),
		Units:   eng.Units(),
		Scale:   eng.Scale(),
		PanX:    pan.X,
		PanY:    pan.Y,
		CanUndo: eng.CanUndo(),
		CanRedo: eng.CanRedo(),
	}
	if id, ok := eng.Selection(); ok {
		s.Selection = id
	}
	if t, ok := eng.TextEdit(); ok {
		s.Text = &t
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.Null()
	}
	id := eng.HitTest(args[0].Float(), args[1].Float())
	if id == "" {
		return js.Null()
	}
	return id
}

// toRasterPreview returns a data URL of the current page.
func toRasterPreview(this js.Value, args []js.Value) interface{} {
	png, err := eng.ToRasterPreview()
	if err != nil {
		return fail(err.Error())
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
