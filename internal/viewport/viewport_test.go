package viewport

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/annosuite/annotator/internal/geom"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestScreenCanvasRoundTrip(t *testing.T) {
	v := New()
	v.SetScale(2.5)
	v.SetPan(geom.Pt(-40, 17))
	p := geom.Pt(123.4, -56.7)
	if diff := cmp.Diff(p, v.ToCanvas(v.ToScreen(p)), approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestSetScaleClamps(t *testing.T) {
	v := New()
	for in, want := range map[float64]float64{0.01: MinScale, 100: MaxScale, -1: MinScale, 1.5: 1.5, math.NaN(): MinScale} {
		if got := v.SetScale(in); got != want {
			t.Errorf("SetScale(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestWheelKeepsPointUnderCursor(t *testing.T) {
	v := New()
	v.SetPan(geom.Pt(30, 40))
	cursor := geom.Pt(200, 150)
	before := v.ToCanvas(cursor)

	v.Wheel(cursor, -1)
	if math.Abs(v.Scale()-WheelStep) > 1e-12 {
		t.Errorf("scale = %v, want %v", v.Scale(), WheelStep)
	}
	if diff := cmp.Diff(before, v.ToCanvas(cursor), approx); diff != "" {
		t.Errorf("zoom in moved the anchor (-want +got):\n%s", diff)
	}

	v.Wheel(cursor, 1)
	v.Wheel(cursor, 1)
	if math.Abs(v.Scale()-1/WheelStep) > 1e-12 {
		t.Errorf("scale = %v", v.Scale())
	}
	if diff := cmp.Diff(before, v.ToCanvas(cursor), approx); diff != "" {
		t.Errorf("zoom out moved the anchor (-want +got):\n%s", diff)
	}

	v.Wheel(cursor, 0)
	if math.Abs(v.Scale()-1/WheelStep) > 1e-12 {
		t.Error("zero delta changed the scale")
	}
}

func TestPinch(t *testing.T) {
	v := New()
	v.PinchStart(geom.Pt(100, 100), geom.Pt(200, 100))
	anchor := v.ToCanvas(geom.Pt(150, 100))

	if !v.PinchMove(geom.Pt(80, 120), geom.Pt(280, 120)) {
		t.Fatal("pinch move ignored")
	}
	if v.Scale() != 2 {
		t.Errorf("scale = %v, want 2", v.Scale())
	}
	if diff := cmp.Diff(anchor, v.ToCanvas(geom.Pt(180, 120)), approx); diff != "" {
		t.Errorf("anchor not under midpoint (-want +got):\n%s", diff)
	}

	v.PinchEnd()
	if v.PinchMove(geom.Pt(0, 0), geom.Pt(10, 0)) {
		t.Error("pinch move after end applied")
	}
	v.PinchStart(geom.Pt(5, 5), geom.Pt(5, 5))
	if v.PinchMove(geom.Pt(0, 0), geom.Pt(10, 0)) {
		t.Error("zero-distance pinch started")
	}
}

func TestFit(t *testing.T) {
	v := New()
	if v.Fit() {
		t.Error("fit without sizes succeeded")
	}
	v.SetPageSize(Size{Width: 1000, Height: 500})
	v.SetContainerSize(Size{Width: 500, Height: 500})
	if !v.Fit() {
		t.Fatal("fit failed")
	}
	if v.Scale() != 0.5 || v.Pan() != geom.Pt(0, 125) {
		t.Errorf("scale=%v pan=%v", v.Scale(), v.Pan())
	}
}
