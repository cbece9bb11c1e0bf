package measure

import (
	"errors"
	"math"
	"testing"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
)

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		units Units
		px    float64
		want  string
	}{
		{DefaultUnits(), 100, "100.0 px"},
		{Units{Unit: UnitPixel, UnitsPerPixel: 0.25}, 100, "100.0 px"},
		{Units{Unit: UnitCentimeter, UnitsPerPixel: 0.1}, 100, "10.00 cm"},
		{Units{Unit: UnitMillimeter, UnitsPerPixel: 0.5}, 3, "1.50 mm"},
		{Units{Unit: UnitInch, UnitsPerPixel: 1.0 / 96}, 48, "0.50 in"},
	}
	for _, tt := range tests {
		if got := tt.units.FormatDistance(tt.px); got != tt.want {
			t.Errorf("%+v.FormatDistance(%v) = %q, want %q", tt.units, tt.px, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := (Units{Unit: "furlong", UnitsPerPixel: 1}).Validate(); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("unknown unit: %v", err)
	}
	for _, k := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if err := (Units{Unit: UnitMeter, UnitsPerPixel: k}).Validate(); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v: %v", k, err)
		}
	}
	if err := DefaultUnits().Validate(); err != nil {
		t.Errorf("default units invalid: %v", err)
	}
}

func TestApplyRuler(t *testing.T) {
	s := document.Shape{Type: document.TypeRuler, Points: []float64{0, 0, 30, 40}}
	ApplyRuler(&s, Units{Unit: UnitMeter, UnitsPerPixel: 0.01})
	if s.Distance != 50 || math.Abs(s.Value-0.5) > 1e-12 || s.Unit != "m" || s.Label != "0.50 m" {
		t.Errorf("ruler = %+v", s)
	}
	if s.LabelX != 15 || s.LabelY != 20 {
		t.Errorf("label at (%v,%v)", s.LabelX, s.LabelY)
	}
}

func TestComputeAngle(t *testing.T) {
	tests := []struct {
		name      string
		a, b      geom.Point
		deg       float64
		start     float64
		sweep     float64
		wantLabel string
	}{
		{"right", geom.Pt(100, 0), geom.Pt(0, 100), 90, 0, 90, "90.0°"},
		{"right reversed", geom.Pt(0, 100), geom.Pt(100, 0), 90, 0, 90, "90.0°"},
		{"straight", geom.Pt(100, 0), geom.Pt(-100, 0), 180, 0, 180, "180.0°"},
		{"acute across zero", geom.Pt(100, -10), geom.Pt(100, 10), 11.421186, 354.289407, 11.421186, "11.4°"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeAngle(geom.Point{}, tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(res.Degrees-tt.deg) > 1e-5 || math.Abs(res.ArcStart-tt.start) > 1e-5 || math.Abs(res.Sweep-tt.sweep) > 1e-5 {
				t.Errorf("got deg=%v start=%v sweep=%v", res.Degrees, res.ArcStart, res.Sweep)
			}
			if got := FormatAngle(res.Degrees); got != tt.wantLabel {
				t.Errorf("label = %q", got)
			}
			if res.Sweep < 0 || res.Sweep > 180 {
				t.Errorf("sweep %v outside [0,180]", res.Sweep)
			}
		})
	}
}

func TestComputeAngleClampsRoundoff(t *testing.T) {
	// Nearly parallel rays can push the cosine a hair past 1.
	res, err := ComputeAngle(geom.Pt(0.1, 0.1), geom.Pt(0.3, 0.3), geom.Pt(0.7, 0.7))
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(res.Degrees) || res.Degrees > 1e-4 {
		t.Errorf("degrees = %v", res.Degrees)
	}
}

func TestComputeAngleDegenerate(t *testing.T) {
	if _, err := ComputeAngle(geom.Pt(5, 5), geom.Pt(5, 5), geom.Pt(10, 5)); !errors.Is(err, ErrDegenerateAngle) {
		t.Errorf("err = %v", err)
	}
}

func TestRecompute(t *testing.T) {
	shapes := []document.Shape{
		{Type: document.TypeRuler, Points: []float64{0, 0, 10, 0}},
		{Type: document.TypeAngle, Points: []float64{0, 0, 10, 0, 0, 10}},
		{Type: document.TypeAngle, Points: []float64{0, 0, 0, 0, 0, 10}},
		{Type: document.TypeRect, Width: 1, Height: 1},
	}
	if n := Recompute(shapes, DefaultUnits()); n != 2 {
		t.Errorf("updated %d shapes, want 2", n)
	}
	if shapes[0].Label != "10.0 px" || shapes[1].Label != "90.0°" {
		t.Errorf("labels = %q, %q", shapes[0].Label, shapes[1].Label)
	}
	if shapes[2].Label != "" || shapes[3].Label != "" {
		t.Error("degenerate or non-measurement shape labelled")
	}
}

func TestCalibrate(t *testing.T) {
	k, err := Calibrate(200, 5)
	if err != nil {
		t.Fatal(err)
	}
	u := Units{Unit: UnitCentimeter, UnitsPerPixel: k}
	if got := u.FormatDistance(200); got != "5.00 cm" {
		t.Errorf("calibrated label = %q", got)
	}
	if _, err := Calibrate(0, 5); !errors.Is(err, ErrInvalidScale) {
		t.Errorf("zero pixels: %v", err)
	}
}
