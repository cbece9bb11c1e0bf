package document

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/typeid"
)

// PageState is the committed annotation state of one document page. Shape
// order is z-order: later shapes are drawn on top and win hit-test ties.
type PageState struct {
	Shapes        []Shape    `json:"shapes"`
	StagePosition geom.Point `json:"stagePosition"`
}

type wirePage struct {
	Shapes        []Shape     `json:"shapes"`
	Annotations   []Shape     `json:"annotations"`
	StagePosition *geom.Point `json:"stagePosition"`
	StagePos      *geom.Point `json:"stagePos"`
}

// UnmarshalJSON accepts the legacy "annotations" and "stagePos" keys.
func (p *PageState) UnmarshalJSON(data []byte) error {
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	page := PageState{Shapes: w.Shapes}
	if page.Shapes == nil {
		page.Shapes = w.Annotations
	}
	if page.Shapes == nil {
		page.Shapes = []Shape{}
	}
	switch {
	case w.StagePosition != nil:
		page.StagePosition = *w.StagePosition
	case w.StagePos != nil:
		page.StagePosition = *w.StagePos
	}
	page.Shapes = EnsureUniqueIDs(page.Shapes)
	*p = page
	return nil
}

// Clone returns a deep copy of the page.
func (p PageState) Clone() PageState {
	return PageState{Shapes: CloneShapes(p.Shapes), StagePosition: p.StagePosition}
}

// Index returns the position of the shape with the given id, or -1.
func (p PageState) Index(id string) int {
	for i, s := range p.Shapes {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the page invariants.
func (p PageState) Validate() error {
	seen := make(map[string]bool, len(p.Shapes))
	for _, s := range p.Shapes {
		if seen[s.ID] {
			return fmt.Errorf("duplicate shape id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// CloneShapes deep-copies a shape list. The result is never nil.
func CloneShapes(shapes []Shape) []Shape {
	out := make([]Shape, len(shapes))
	for i, s := range shapes {
		out[i] = s.Clone()
	}
	return out
}

// EnsureUniqueIDs gives every shape after the first occurrence of an id a
// fresh identifier.
func EnsureUniqueIDs(shapes []Shape) []Shape {
	seen := make(map[string]bool, len(shapes))
	for i := range shapes {
		if shapes[i].ID == "" || seen[shapes[i].ID] {
			shapes[i].ID = typeid.NewShapeID()
		}
		seen[shapes[i].ID] = true
	}
	return shapes
}

// Document is the persisted annotation snapshot: page number to page state.
// It encodes as a JSON object keyed by the decimal page number.
type Document map[int]*PageState

// Pages returns the page numbers in ascending order.
func (d Document) Pages() []int {
	pages := make([]int, 0, len(d))
	for n := range d {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for n, p := range d {
		if p == nil {
			continue
		}
		c := p.Clone()
		out[n] = &c
	}
	return out
}

// Decode parses a snapshot, tolerating legacy keys and malformed shapes.
// A layer table in the snapshot is ignored; use DecodeSnapshot to keep it.
func Decode(data []byte) (Document, error) {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return snap.Pages, nil
}
