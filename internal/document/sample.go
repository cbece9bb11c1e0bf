package document

import (
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/typeid"
)

// NewSampleDocument returns a one-page document containing one shape of
// every type. Ruler and angle shapes carry only geometry; their cached
// measurement fields are filled in by the engine on import.
func NewSampleDocument() Document {
	shapes := []Shape{
		{
			Type:   TypeRect,
			X:      80,
			Y:      60,
			Width:  220,
			Height: 120,
		},
		{
			Type:      TypeCircle,
			X:         420,
			Y:         140,
			Radius:    70,
			Stroke:    "#1e88e5",
			DashStyle: DashDashed,
		},
		{
			Type:   TypeLine,
			Points: []float64{80, 260, 300, 260},
		},
		{
			Type:   TypeArrow,
			Points: []float64{360, 300, 520, 240},
			Stroke: "#43a047",
		},
		{
			Type:   TypeFree,
			Points: []float64{80, 340, 100, 330, 130, 350, 160, 335, 190, 355},
		},
		{
			Type:      TypePolygon,
			Points:    []float64{260, 340, 340, 320, 360, 400, 280, 420},
			DashStyle: DashDotted,
		},
		{
			Type:     TypeText,
			X:        80,
			Y:        440,
			Text:     "Check this dimension",
			FontSize: 16,
		},
		{
			Type:   TypeRuler,
			Points: []float64{420, 360, 620, 360},
		},
		{
			Type:   TypeAngle,
			Points: []float64{460, 500, 560, 500, 460, 420},
		},
	}
	for i := range shapes {
		shapes[i].ID = typeid.NewShapeID()
		shapes[i] = Normalize(shapes[i])
	}

	return Document{
		1: {
			Shapes:        shapes,
			StagePosition: geom.Point{},
		},
	}
}
