// Package viewport owns zoom and pan and the screen/canvas transform every
// other component converts pointer positions with.
package viewport

import (
	"math"

	"github.com/annosuite/annotator/internal/geom"
)

const (
	MinScale = 0.2
	MaxScale = 6.0

	// WheelStep is the zoom factor applied per wheel notch.
	WheelStep = 1.05
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport maps canvas coordinates to the screen: screen = canvas*scale + pan.
type Viewport struct {
	scale     float64
	pan       geom.Point
	page      Size
	container Size

	pinch *pinchState
}

type pinchState struct {
	startScale float64
	startDist  float64
	anchor     geom.Point // canvas point under the initial midpoint
}

func New() *Viewport {
	return &Viewport{scale: 1}
}

func (v *Viewport) Scale() float64      { return v.scale }
func (v *Viewport) Pan() geom.Point     { return v.pan }
func (v *Viewport) PageSize() Size      { return v.page }
func (v *Viewport) Container() Size     { return v.container }
func (v *Viewport) SetPan(p geom.Point) { v.pan = p }

func (v *Viewport) SetPageSize(s Size)      { v.page = s }
func (v *Viewport) SetContainerSize(s Size) { v.container = s }

// SetScale sets the zoom factor clamped to [MinScale, MaxScale] and returns
// the applied value.
func (v *Viewport) SetScale(s float64) float64 {
	v.scale = clamp(s)
	return v.scale
}

func clamp(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return MinScale
	}
	return math.Max(MinScale, math.Min(MaxScale, s))
}

// ToCanvas converts a screen point to canvas space.
func (v *Viewport) ToCanvas(screen geom.Point) geom.Point {
	return screen.Sub(v.pan).Mul(1 / v.scale)
}

// ToScreen converts a canvas point to screen space.
func (v *Viewport) ToScreen(canvas geom.Point) geom.Point {
	return canvas.Mul(v.scale).Add(v.pan)
}

// ZoomAt sets a new scale while keeping the canvas point under screen fixed.
func (v *Viewport) ZoomAt(screen geom.Point, newScale float64) {
	anchor := v.ToCanvas(screen)
	v.scale = clamp(newScale)
	v.pan = screen.Sub(anchor.Mul(v.scale))
}

// Wheel zooms in for negative deltaY and out for positive deltaY around the
// pointer position.
func (v *Viewport) Wheel(screen geom.Point, deltaY float64) {
	switch {
	case deltaY < 0:
		v.ZoomAt(screen, v.scale*WheelStep)
	case deltaY > 0:
		v.ZoomAt(screen, v.scale/WheelStep)
	}
}

// PinchStart begins a two-finger zoom gesture.
func (v *Viewport) PinchStart(a, b geom.Point) {
	d := geom.Distance(a, b)
	if d == 0 {
		v.pinch = nil
		return
	}
	v.pinch = &pinchState{
		startScale: v.scale,
		startDist:  d,
		anchor:     v.ToCanvas(geom.Midpoint(a, b)),
	}
}

// PinchMove scales by the change in finger distance and keeps the canvas
// point that started under the midpoint beneath the current midpoint, so a
// two-finger drag also pans.
func (v *Viewport) PinchMove(a, b geom.Point) bool {
	if v.pinch == nil {
		return false
	}
	d := geom.Distance(a, b)
	if d == 0 {
		return false
	}
	v.scale = clamp(v.pinch.startScale * d / v.pinch.startDist)
	v.pan = geom.Midpoint(a, b).Sub(v.pinch.anchor.Mul(v.scale))
	return true
}

func (v *Viewport) PinchEnd() { v.pinch = nil }

// Fit scales the page to fit the container preserving aspect ratio and
// centres it. It reports false when either size is unknown.
func (v *Viewport) Fit() bool {
	if v.page.Width <= 0 || v.page.Height <= 0 || v.container.Width <= 0 || v.container.Height <= 0 {
		return false
	}
	s := clamp(math.Min(v.container.Width/v.page.Width, v.container.Height/v.page.Height))
	v.scale = s
	v.pan = geom.Point{
		X: (v.container.Width - v.page.Width*s) / 2,
		Y: (v.container.Height - v.page.Height*s) / 2,
	}
	return true
}
