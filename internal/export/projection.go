package export

import (
	"errors"

	"github.com/annosuite/annotator/internal/geom"
)

var ErrBadMetrics = errors.New("export: page metrics must be positive")

// PageMetrics describes how the page raster shown on the canvas was
// produced: its pixel size and the render scale.
type PageMetrics struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

// PageSize is the native size of the target page, in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Projection maps canvas pixels onto a target coordinate system with an
// independent scale per axis and, for page space, a bottom-up y axis.
type Projection struct {
	ScaleX     float64
	ScaleY     float64
	PageHeight float64
	FlipY      bool
}

// CanvasProjection is the identity mapping used for on-screen rendering.
func CanvasProjection() Projection {
	return Projection{ScaleX: 1, ScaleY: 1}
}

// NewProjection derives the canvas→page mapping for one page. When the
// native size is unknown it is recovered from the raster size and scale.
func NewProjection(m PageMetrics, size PageSize) (Projection, PageSize, error) {
	if m.Width <= 0 || m.Height <= 0 {
		return Projection{}, size, ErrBadMetrics
	}
	if size.Width <= 0 || size.Height <= 0 {
		if m.Scale <= 0 {
			return Projection{}, size, ErrBadMetrics
		}
		size = PageSize{Width: m.Width / m.Scale, Height: m.Height / m.Scale}
	}
	return Projection{
		ScaleX:     m.Width / size.Width,
		ScaleY:     m.Height / size.Height,
		PageHeight: size.Height,
		FlipY:      true,
	}, size, nil
}

// ToTarget maps a canvas point into target space.
func (p Projection) ToTarget(pt geom.Point) geom.Point {
	x, y := pt.X/p.ScaleX, pt.Y/p.ScaleY
	if p.FlipY {
		y = p.PageHeight - y
	}
	return geom.Point{X: x, Y: y}
}

// ToCanvas is the inverse of ToTarget.
func (p Projection) ToCanvas(pt geom.Point) geom.Point {
	y := pt.Y
	if p.FlipY {
		y = p.PageHeight - y
	}
	return geom.Point{X: pt.X * p.ScaleX, Y: y * p.ScaleY}
}

// Vector maps a canvas direction vector into target space.
func (p Projection) Vector(v geom.Point) geom.Point {
	x, y := v.X/p.ScaleX, v.Y/p.ScaleY
	if p.FlipY {
		y = -y
	}
	return geom.Point{X: x, Y: y}
}

// StrokeFactor converts canvas lengths that have no direction (stroke
// widths, dash segments, font sizes) into target units.
func (p Projection) StrokeFactor() float64 {
	return (1/p.ScaleX + 1/p.ScaleY) / 2
}
