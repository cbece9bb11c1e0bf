package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/measure"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func letterProjection(t *testing.T, scale float64) Projection {
	t.Helper()
	proj, _, err := NewProjection(
		PageMetrics{Width: 612 * scale, Height: 792 * scale, Scale: scale},
		PageSize{Width: 612, Height: 792},
	)
	if err != nil {
		t.Fatal(err)
	}
	return proj
}

func TestProjectionRoundTrip(t *testing.T) {
	proj := letterProjection(t, 1.5)
	for _, p := range []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 20}, {X: 918, Y: 1188}, {X: -4.5, Y: 300.25}} {
		got := proj.ToCanvas(proj.ToTarget(p))
		if diff := cmp.Diff(p, got, approx); diff != "" {
			t.Errorf("round trip of %v (-want +got):\n%s", p, diff)
		}
	}
}

func TestNewProjectionDerivesPageSize(t *testing.T) {
	proj, size, err := NewProjection(PageMetrics{Width: 1224, Height: 1584, Scale: 2}, PageSize{})
	if err != nil {
		t.Fatal(err)
	}
	if size != (PageSize{Width: 612, Height: 792}) {
		t.Errorf("size = %+v", size)
	}
	if proj.ScaleX != 2 || proj.ScaleY != 2 || proj.PageHeight != 792 {
		t.Errorf("projection = %+v", proj)
	}
	if _, _, err := NewProjection(PageMetrics{}, PageSize{}); !errors.Is(err, ErrBadMetrics) {
		t.Errorf("zero metrics: err = %v", err)
	}
}

func TestCompileRectFlipsY(t *testing.T) {
	rect := document.Normalize(document.Shape{Type: document.TypeRect, X: 10, Y: 10, Width: 100, Height: 50})
	got := CompileShape(rect, letterProjection(t, 1))
	if len(got) != 1 || got[0].Op != OpRect {
		t.Fatalf("commands = %+v", got)
	}
	want := []float64{10, 792 - 10 - 50, 100, 50}
	have := []float64{got[0].X, got[0].Y, got[0].Width, got[0].Height}
	if diff := cmp.Diff(want, have, approx); diff != "" {
		t.Errorf("rect (-want +got):\n%s", diff)
	}
}

func TestCompileScalesStrokeAndDash(t *testing.T) {
	s := document.Normalize(document.Shape{
		Type: document.TypeLine, Points: []float64{0, 0, 100, 0},
		StrokeWidth: 4, DashStyle: document.DashDashed,
	})
	got := CompileShape(s, letterProjection(t, 2))
	if len(got) != 1 {
		t.Fatalf("commands = %+v", got)
	}
	if got[0].StrokeWidth != 2 {
		t.Errorf("stroke width = %v, want 2", got[0].StrokeWidth)
	}
	if diff := cmp.Diff([]float64{5, 3}, got[0].Dash, approx); diff != "" {
		t.Errorf("dash (-want +got):\n%s", diff)
	}
}

func TestCompileCircleAnisotropic(t *testing.T) {
	proj, _, err := NewProjection(PageMetrics{Width: 200, Height: 100}, PageSize{Width: 100, Height: 100})
	if err != nil {
		t.Fatal(err)
	}
	c := document.Normalize(document.Shape{Type: document.TypeCircle, X: 50, Y: 50, Radius: 20})
	got := CompileShape(c, proj)
	if len(got) != 1 || got[0].Op != OpEllipse {
		t.Fatalf("commands = %+v", got)
	}
	want := DrawCommand{Op: OpEllipse, CX: 25, CY: 50, RX: 10, RY: 20}
	if diff := cmp.Diff(want, got[0], approx, cmpopts.IgnoreFields(DrawCommand{}, "ShapeID", "Stroke", "StrokeWidth", "Dash")); diff != "" {
		t.Errorf("ellipse (-want +got):\n%s", diff)
	}
}

func TestCompileArrowHead(t *testing.T) {
	a := document.Normalize(document.Shape{Type: document.TypeArrow, Points: []float64{0, 0, 100, 0}})
	got := CompileShape(a, CanvasProjection())
	if len(got) != 3 {
		t.Fatalf("got %d commands, want 3", len(got))
	}
	type seg struct{ X1, Y1, X2, Y2 float64 }
	var segs []seg
	for _, c := range got {
		if c.Op != OpLine {
			t.Fatalf("op = %q, want line", c.Op)
		}
		segs = append(segs, seg{c.X1, c.Y1, c.X2, c.Y2})
	}
	want := []seg{{0, 0, 100, 0}, {90, 5, 100, 0}, {100, 0, 90, -5}}
	if diff := cmp.Diff(want, segs, approx); diff != "" {
		t.Errorf("arrow (-want +got):\n%s", diff)
	}
}

func TestCompileRotatedRectIsPath(t *testing.T) {
	r := document.Normalize(document.Shape{Type: document.TypeRect, X: 0, Y: 0, Width: 10, Height: 10, Rotation: 45})
	got := CompileShape(r, CanvasProjection())
	if len(got) != 1 || got[0].Op != OpPath || !got[0].Closed || len(got[0].Points) != 4 {
		t.Fatalf("commands = %+v", got)
	}
}

func TestCompileRuler(t *testing.T) {
	r := document.Normalize(document.Shape{Type: document.TypeRuler, Points: []float64{0, 0, 100, 0}})
	measure.ApplyRuler(&r, measure.DefaultUnits())
	got := CompileShape(r, CanvasProjection())
	ops := make([]string, len(got))
	for i, c := range got {
		ops[i] = c.Op
	}
	if diff := cmp.Diff([]string{OpLine, OpLine, OpLine, OpText}, ops); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	tick := got[1]
	if tick.X1 != 0 || tick.X2 != 0 || math.Abs(tick.Y2-tick.Y1) != 2*RulerMarkerSize {
		t.Errorf("start tick = %+v", tick)
	}
	label := got[3]
	if label.Text != "100.0 px" || label.Align != AlignCenter || label.X != 50 {
		t.Errorf("label = %+v", label)
	}
}

func TestCompileAngleArc(t *testing.T) {
	a := document.Normalize(document.Shape{Type: document.TypeAngle, Points: []float64{0, 0, 100, 0, 0, 100}})
	if err := measure.ApplyAngle(&a); err != nil {
		t.Fatal(err)
	}
	got := CompileShape(a, CanvasProjection())
	if len(got) != 4 {
		t.Fatalf("got %d commands, want 4", len(got))
	}
	arc := got[2]
	if arc.Op != OpPath || len(arc.Points) != 10 {
		t.Errorf("arc has %d points, want 10", len(arc.Points))
	}
	if got[3].Text != "90.0°" {
		t.Errorf("label = %q", got[3].Text)
	}
}

func TestCompileSkipsHiddenLayers(t *testing.T) {
	layers := document.NewLayerRegistry()
	hidden := layers.Add("hidden")
	layers.SetVisible(hidden.ID, false)

	shapes := []document.Shape{
		document.Normalize(document.Shape{ID: "a", Type: document.TypeRect, Width: 10, Height: 10}),
		document.Normalize(document.Shape{ID: "b", Type: document.TypeRect, Width: 10, Height: 10, LayerID: hidden.ID}),
		document.Normalize(document.Shape{ID: "c", Type: document.TypeCircle, Radius: 5}),
	}
	got := Compile(shapes, CanvasProjection(), layers)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.ShapeID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids); diff != "" {
		t.Errorf("painter order (-want +got):\n%s", diff)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b int
	}{
		{"#00ff00", 0, 255, 0},
		{"#00F", 0, 0, 255},
		{"black", 0, 0, 0},
		{"nonsense", 255, 0, 0},
	}
	for _, tt := range tests {
		r, g, b := RGB(tt.in)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("RGB(%q) = %d,%d,%d want %d,%d,%d", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

type recordingSink struct {
	pages    []int
	commands map[int][]DrawCommand
}

func (s *recordingSink) DrawPage(_ context.Context, page int, _ PageInfo, cmds []DrawCommand) error {
	if s.commands == nil {
		s.commands = map[int][]DrawCommand{}
	}
	s.pages = append(s.pages, page)
	s.commands[page] = cmds
	return nil
}

func testDocument() document.Document {
	rect := document.Normalize(document.Shape{Type: document.TypeRect, X: 10, Y: 10, Width: 100, Height: 50})
	return document.Document{
		3: {Shapes: []document.Shape{rect}},
		1: {Shapes: []document.Shape{rect}},
		2: {Shapes: []document.Shape{}},
	}
}

func TestExporterPageOrderAndFailures(t *testing.T) {
	src := StaticSource{
		1: {Metrics: PageMetrics{Width: 612, Height: 792, Scale: 1}, Size: PageSize{Width: 612, Height: 792}},
	}
	sink := &recordingSink{}
	report, err := NewExporter(quietLogger(), nil).Export(context.Background(), testDocument(), src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1}, sink.pages); diff != "" {
		t.Errorf("pages drawn (-want +got):\n%s", diff)
	}
	if !errors.Is(report.Failed[3], ErrPageMissing) {
		t.Errorf("page 3 error = %v", report.Failed[3])
	}
	if _, ok := report.Failed[2]; ok {
		t.Error("empty page 2 should be skipped, not failed")
	}
}

func TestExporterNoPages(t *testing.T) {
	doc := document.Document{1: {Shapes: []document.Shape{}}}
	_, err := NewExporter(quietLogger(), nil).Export(context.Background(), doc, StaticSource{}, &recordingSink{})
	if !errors.Is(err, ErrNoPages) {
		t.Errorf("err = %v, want ErrNoPages", err)
	}
}

func testRaster() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 61, 79))
	for y := 0; y < 79; y++ {
		for x := 0; x < 61; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func TestPDFWriter(t *testing.T) {
	shapes := document.NewSampleDocument()[1].Shapes
	measure.Recompute(shapes, measure.DefaultUnits())
	info := PageInfo{
		Metrics:    PageMetrics{Width: 612, Height: 792, Scale: 1},
		Size:       PageSize{Width: 612, Height: 792},
		Background: testRaster(),
	}
	w := NewPDFWriter()
	if err := w.DrawPage(context.Background(), 1, info, Compile(shapes, letterProjection(t, 1), nil)); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := w.Finish(&out); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("%PDF-")) {
		t.Errorf("output does not look like a PDF: %q", out.Bytes()[:min(16, out.Len())])
	}
	if w.Pages() != 1 {
		t.Errorf("pages = %d", w.Pages())
	}
}

func TestPDFWriterIsolatesPages(t *testing.T) {
	rect := document.Normalize(document.Shape{Type: document.TypeRect, X: 10, Y: 10, Width: 100, Height: 50})
	doc := document.Document{
		1: {Shapes: []document.Shape{rect}},
		2: {Shapes: []document.Shape{rect}},
		3: {Shapes: []document.Shape{rect}},
		4: {Shapes: []document.Shape{rect}},
	}
	letter := func(bg image.Image) PageInfo {
		return PageInfo{
			Metrics:    PageMetrics{Width: 612, Height: 792, Scale: 1},
			Size:       PageSize{Width: 612, Height: 792},
			Background: bg,
		}
	}
	deep := image.NewRGBA64(image.Rect(0, 0, 40, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 40; x++ {
			deep.Set(x, y, color.RGBA64{R: 0xffff, G: 0x8000, B: 0x1234, A: 0xffff})
		}
	}
	src := StaticSource{
		1: letter(testRaster()),
		2: letter(deep),
		3: letter(image.NewRGBA(image.Rect(0, 0, 0, 0))),
		4: letter(image.NewGray16(image.Rect(0, 0, 20, 20))),
	}

	w := NewPDFWriter()
	report, err := NewExporter(quietLogger(), nil).Export(context.Background(), doc, src, w)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2, 4}, report.Written); diff != "" {
		t.Errorf("written pages (-want +got):\n%s", diff)
	}
	if _, ok := report.Failed[3]; !ok || len(report.Failed) != 1 {
		t.Errorf("failed = %v, want only page 3", report.Failed)
	}

	var out bytes.Buffer
	if err := w.Finish(&out); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !bytes.HasPrefix(out.Bytes(), []byte("%PDF-")) {
		t.Error("output does not look like a PDF")
	}
	if w.Pages() != 3 {
		t.Errorf("pages = %d, want 3", w.Pages())
	}
}

func TestPDFWriterRejectsBadSize(t *testing.T) {
	w := NewPDFWriter()
	if err := w.DrawPage(context.Background(), 1, PageInfo{}, nil); !errors.Is(err, ErrBadMetrics) {
		t.Fatalf("err = %v, want ErrBadMetrics", err)
	}
	info := PageInfo{Size: PageSize{Width: 100, Height: 100}}
	if err := w.DrawPage(context.Background(), 2, info, nil); err != nil {
		t.Fatalf("page after a rejected one: %v", err)
	}
	if err := w.Finish(io.Discard); err != nil {
		t.Fatal(err)
	}
}

func TestPDFWriterEmpty(t *testing.T) {
	if err := NewPDFWriter().Finish(io.Discard); !errors.Is(err, ErrNoPages) {
		t.Errorf("err = %v, want ErrNoPages", err)
	}
}

func TestHandlerExportPDF(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("state", `{"1":{"annotations":[{"type":"rect","x":10,"y":10,"width":100,"height":50}]}}`)
	mw.WriteField("metrics", `{"1":{"width":61,"height":79,"scale":0.1,"pageWidth":612,"pageHeight":792}}`)
	fw, err := mw.CreateFormFile("page_1", "page_1.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(fw, testRaster()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/export/pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	NewHandler(quietLogger()).ExportPDF(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Error("body is not a PDF")
	}
}

func TestHandlerCommands(t *testing.T) {
	body := `{"state":{"1":{"shapes":[{"id":"r","type":"rect","x":10,"y":10,"width":100,"height":50}]}},
		"metrics":{"1":{"width":612,"height":792,"scale":1,"pageWidth":612,"pageHeight":792}}}`
	req := httptest.NewRequest(http.MethodPost, "/export/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewHandler(quietLogger()).Commands(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"y":732`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

const layeredState = `{
	"layers":[{"id":"l-hidden","name":"draft","visible":false},{"id":"l-shown","name":"final","visible":true}],
	"1":{"shapes":[
		{"id":"h","type":"rect","x":10,"y":10,"width":100,"height":50,"layerId":"l-hidden"},
		{"id":"v","type":"rect","x":200,"y":10,"width":100,"height":50,"layerId":"l-shown"}
	]}}`

func TestHandlerCommandsHonoursHiddenLayers(t *testing.T) {
	body := `{"state":` + layeredState + `,
		"metrics":{"1":{"width":612,"height":792,"scale":1,"pageWidth":612,"pageHeight":792}}}`
	req := httptest.NewRequest(http.MethodPost, "/export/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewHandler(quietLogger()).Commands(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var got map[string][]DrawCommand
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, cmd := range got["1"] {
		ids = append(ids, cmd.ShapeID)
	}
	if diff := cmp.Diff([]string{"v"}, ids); diff != "" {
		t.Errorf("exported shapes (-want +got):\n%s", diff)
	}
}

func TestHandlerExportPDFHonoursHiddenLayers(t *testing.T) {
	run := func(state string) *httptest.ResponseRecorder {
		t.Helper()
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("state", state)
		mw.WriteField("metrics", `{"1":{"width":612,"height":792,"scale":1,"pageWidth":612,"pageHeight":792}}`)
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/export/pdf", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		NewHandler(quietLogger()).ExportPDF(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		return rec
	}

	hidden := run(layeredState)
	shown := run(strings.Replace(layeredState, `"visible":false`, `"visible":true`, 1))
	if hidden.Body.Len() >= shown.Body.Len() {
		t.Errorf("hidden layer still drawn: %d bytes with it hidden, %d shown", hidden.Body.Len(), shown.Body.Len())
	}
}
