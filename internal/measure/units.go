// Package measure converts pixel distances into physical units and derives
// the cached fields of ruler and angle annotations.
package measure

import (
	"errors"
	"fmt"
	"math"
)

type Unit string

const (
	UnitPixel      Unit = "px"
	UnitMillimeter Unit = "mm"
	UnitCentimeter Unit = "cm"
	UnitMeter      Unit = "m"
	UnitInch       Unit = "in"
	UnitFoot       Unit = "ft"
)

var (
	ErrUnknownUnit  = errors.New("measure: unknown unit")
	ErrInvalidScale = errors.New("measure: units per pixel must be positive")
)

// KnownUnit reports whether u is supported.
func KnownUnit(u Unit) bool {
	switch u {
	case UnitPixel, UnitMillimeter, UnitCentimeter, UnitMeter, UnitInch, UnitFoot:
		return true
	}
	return false
}

// Units is the active measurement unit together with the linear scale
// factor from canvas pixels to that unit.
type Units struct {
	Unit          Unit    `json:"unit"`
	UnitsPerPixel float64 `json:"unitsPerPixel"`
}

func DefaultUnits() Units {
	return Units{Unit: UnitPixel, UnitsPerPixel: 1}
}

func (u Units) Validate() error {
	if !KnownUnit(u.Unit) {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, u.Unit)
	}
	if !(u.UnitsPerPixel > 0) || math.IsInf(u.UnitsPerPixel, 0) {
		return ErrInvalidScale
	}
	return nil
}

func (u Units) IsPixel() bool { return u.Unit == UnitPixel || u.Unit == "" }

// Convert maps a pixel distance to the display value. Pixel mode ignores
// the scale factor.
func (u Units) Convert(px float64) float64 {
	if u.IsPixel() {
		return px
	}
	return px * u.UnitsPerPixel
}

// FormatDistance renders a pixel distance as a label: two decimals and the
// unit symbol for physical units, one decimal and "px" in pixel mode.
func (u Units) FormatDistance(px float64) string {
	if u.IsPixel() {
		return fmt.Sprintf("%.1f px", px)
	}
	return fmt.Sprintf("%.2f %s", u.Convert(px), u.Unit)
}

// FormatAngle renders an angle in degrees.
func FormatAngle(deg float64) string {
	return fmt.Sprintf("%.1f°", deg)
}

// Calibrate derives the units-per-pixel factor from a measured pixel
// distance whose real length is known.
func Calibrate(pixels, realLength float64) (float64, error) {
	if pixels <= 0 || realLength <= 0 {
		return 0, ErrInvalidScale
	}
	return realLength / pixels, nil
}
