// Package history implements the bounded linear undo/redo stack of page
// snapshots. One Manager serves exactly one page.
package history

import (
	"reflect"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/geom"
)

// DefaultDepth is the maximum number of snapshots kept on the undo stack.
const DefaultDepth = 50

// Snapshot is an immutable copy of a page's shapes and viewport position.
type Snapshot struct {
	Page          int              `json:"page"`
	Shapes        []document.Shape `json:"shapes"`
	StagePosition geom.Point       `json:"stagePosition"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Page:          s.Page,
		Shapes:        document.CloneShapes(s.Shapes),
		StagePosition: s.StagePosition,
	}
}

// Equal reports deep structural equality.
func (s Snapshot) Equal(other Snapshot) bool {
	return reflect.DeepEqual(s.Clone(), other.Clone())
}

// PageState converts the snapshot into the persisted page form.
func (s Snapshot) PageState() document.PageState {
	return document.PageState{Shapes: document.CloneShapes(s.Shapes), StagePosition: s.StagePosition}
}

// Manager holds the undo and redo stacks. The top of the undo stack is the
// current state; the stack never becomes empty.
type Manager struct {
	depth int
	undo  []Snapshot
	redo  []Snapshot
}

// New creates a manager whose only entry is initial.
func New(depth int, initial Snapshot) *Manager {
	if depth <= 0 {
		depth = DefaultDepth
	}
	m := &Manager{depth: depth}
	m.Reset(initial)
	return m
}

// Reset reinitializes both stacks with a single entry.
func (m *Manager) Reset(initial Snapshot) {
	m.undo = []Snapshot{initial.Clone()}
	m.redo = nil
}

// Push records a committed state. A snapshot equal to the current top is
// ignored and Push reports false.
func (m *Manager) Push(s Snapshot) bool {
	if len(m.undo) > 0 && m.undo[len(m.undo)-1].Equal(s) {
		return false
	}
	m.undo = append(m.undo, s.Clone())
	if over := len(m.undo) - m.depth; over > 0 {
		m.undo = append([]Snapshot(nil), m.undo[over:]...)
	}
	m.redo = nil
	return true
}

// Undo moves the current state to the redo stack and returns the new
// current state. It reports false when only the initial entry remains.
func (m *Manager) Undo() (Snapshot, bool) {
	if len(m.undo) <= 1 {
		return Snapshot{}, false
	}
	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, top)
	return m.undo[len(m.undo)-1].Clone(), true
}

// Redo re-applies the most recently undone state.
func (m *Manager) Redo() (Snapshot, bool) {
	if len(m.redo) == 0 {
		return Snapshot{}, false
	}
	s := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, s)
	return s.Clone(), true
}

// Map rewrites every stored snapshot in place, on both stacks. It is for
// derived fields that must follow a global setting; fn must not change
// the number of shapes.
func (m *Manager) Map(fn func(*Snapshot)) {
	for i := range m.undo {
		fn(&m.undo[i])
	}
	for i := range m.redo {
		fn(&m.redo[i])
	}
}

// Current returns a copy of the top of the undo stack.
func (m *Manager) Current() Snapshot {
	return m.undo[len(m.undo)-1].Clone()
}

// Len returns the undo stack length.
func (m *Manager) Len() int { return len(m.undo) }

// Depth returns the configured cap.
func (m *Manager) Depth() int { return m.depth }

func (m *Manager) CanUndo() bool { return len(m.undo) > 1 }
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }
