package measure

import (
	"errors"
	"math"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
)

const (
	// MaxArcRadius caps the drawn arc of an angle annotation.
	MaxArcRadius = 30.0
	// LabelGap is the distance between the arc and the angle label.
	LabelGap = 16.0
)

var ErrDegenerateAngle = errors.New("measure: angle ray has zero length")

// ApplyRuler refreshes the derived distance, label and midpoint of a ruler
// from its endpoints.
func ApplyRuler(s *document.Shape, u Units) {
	start, end := s.RulerEnds()
	d := geom.Distance(start, end)
	mid := geom.Midpoint(start, end)

	s.Distance = d
	s.Value = u.Convert(d)
	s.Unit = string(u.Unit)
	if s.Unit == "" {
		s.Unit = string(UnitPixel)
	}
	s.Label = u.FormatDistance(d)
	s.LabelX, s.LabelY = mid.X, mid.Y
}

// AngleResult holds the derived fields of an angle annotation.
type AngleResult struct {
	Degrees   float64
	ArcStart  float64
	Sweep     float64
	ArcRadius float64
	Label     geom.Point
}

// ComputeAngle measures the angle at vertex between the rays to a and b.
// The arc starts at the polar angle of one ray and always sweeps in the
// positive direction by at most 180 degrees.
func ComputeAngle(vertex, a, b geom.Point) (AngleResult, error) {
	va, vb := a.Sub(vertex), b.Sub(vertex)
	la, lb := va.Len(), vb.Len()
	if la == 0 || lb == 0 {
		return AngleResult{}, ErrDegenerateAngle
	}

	cos := math.Max(-1, math.Min(1, va.Dot(vb)/(la*lb)))
	deg := math.Acos(cos) * 180 / math.Pi

	start := geom.AngleDegrees(vertex, a)
	sweep := geom.NormalizeDegrees(geom.AngleDegrees(vertex, b) - start)
	if sweep > 180 {
		start = geom.AngleDegrees(vertex, b)
		sweep = 360 - sweep
	}

	radius := math.Min(MaxArcRadius, 0.5*math.Min(la, lb))
	mid := (start + sweep/2) * math.Pi / 180
	label := vertex.Add(geom.Pt(math.Cos(mid), math.Sin(mid)).Mul(radius + LabelGap))

	return AngleResult{
		Degrees:   deg,
		ArcStart:  start,
		Sweep:     sweep,
		ArcRadius: radius,
		Label:     label,
	}, nil
}

// ApplyAngle refreshes the derived fields of an angle shape.
func ApplyAngle(s *document.Shape) error {
	v, a, b := s.AnglePoints()
	res, err := ComputeAngle(v, a, b)
	if err != nil {
		return err
	}
	s.Angle = res.Degrees
	s.ArcStart = res.ArcStart
	s.Sweep = res.Sweep
	s.ArcRadius = res.ArcRadius
	s.Label = FormatAngle(res.Degrees)
	s.LabelX, s.LabelY = res.Label.X, res.Label.Y
	return nil
}

// Recompute refreshes the cached measurement fields of every ruler and
// angle in shapes without touching their geometry. It returns the number
// of shapes updated.
func Recompute(shapes []document.Shape, u Units) int {
	n := 0
	for i := range shapes {
		switch shapes[i].Type {
		case document.TypeRuler:
			ApplyRuler(&shapes[i], u)
			n++
		case document.TypeAngle:
			if ApplyAngle(&shapes[i]) == nil {
				n++
			}
		}
	}
	return n
}
