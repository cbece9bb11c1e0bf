package collab

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/measure"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleViewer Role = "viewer"
)

var ErrReadOnly = errors.New("session is read-only for viewers")

// roomKey identifies one user's annotations on one file.
type roomKey struct {
	fileID  string
	ownerID string
}

// Room is a live annotation session. Its engine holds the owner's
// annotations; viewers receive the same snapshots but cannot edit.
type Room struct {
	key      roomKey
	engine   *engine.Engine
	clients  map[string]*Client // clientID -> client
	presence presenceSet

	// changed is set by the engine observer and cleared once a snapshot
	// went out; dirty is cleared once the document reached the store.
	changed bool
	dirty   bool
	seq     int64
}

func newRoom(key roomKey, opts engine.Options, snap document.Snapshot) *Room {
	r := &Room{
		key:      key,
		engine:   engine.New(opts),
		clients:  make(map[string]*Client),
		presence: make(presenceSet),
	}
	if snap.Pages != nil {
		r.engine.ImportSnapshot(snap)
	}
	r.engine.OnChange(func(c engine.Change) {
		r.changed = true
		switch c.Kind {
		case engine.ChangeShapes, engine.ChangeHistory:
			r.dirty = true
		}
	})
	return r
}

func (r *Room) snapshot() SnapshotPayload {
	e := r.engine
	s := SnapshotPayload{
		Page:     e.Page(),
		Tool:     e.Tool(),
		State:    e.State(),
		Style:    e.Style(),
		Units:    e.Units(),
		Scale:    e.Scale(),
		Pan:      e.Pan(),
		CanUndo:  e.CanUndo(),
		CanRedo:  e.CanRedo(),
		Layers:   e.Layers().List(),
		Commands: e.Render(),
	}
	if id, ok := e.Selection(); ok {
		s.Selection = id
	}
	if t, ok := e.TextEdit(); ok {
		s.Text = &t
	}
	return s
}

func (r *Room) snapshotMessage() *Message {
	r.seq++
	payload, _ := json.Marshal(r.snapshot())
	return &Message{Type: TypeSnapshot, FileID: r.key.fileID, Seq: r.seq, Payload: payload}
}

type commandFunc func(e *engine.Engine, payload json.RawMessage) error

// commands maps event and command messages onto the engine. Messages not
// listed here are handled by the hub itself.
var commands = map[string]commandFunc{
	TypePointerDown: pointer((*engine.Engine).PointerDown),
	TypePointerMove: pointer((*engine.Engine).PointerMove),
	TypePointerUp:   pointer((*engine.Engine).PointerUp),
	TypeDoubleClick: pointer((*engine.Engine).DoubleClick),
	TypeKeyDown: func(e *engine.Engine, p json.RawMessage) error {
		ev, err := decode[engine.KeyEvent](p)
		if err != nil {
			return err
		}
		e.KeyDown(ev)
		return nil
	},
	TypeWheel: func(e *engine.Engine, p json.RawMessage) error {
		ev, err := decode[engine.WheelEvent](p)
		if err != nil {
			return err
		}
		e.Wheel(ev)
		return nil
	},
	TypeSetTool: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[ToolPayload](p)
		if err != nil {
			return err
		}
		if !e.SetTool(v.Tool) {
			return fmt.Errorf("unknown tool %q", v.Tool)
		}
		return nil
	},
	TypeSetStyle: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[engine.Style](p)
		if err != nil {
			return err
		}
		e.SetStyle(v)
		return nil
	},
	TypeSetUnits: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[measure.Units](p)
		if err != nil {
			return err
		}
		return e.SetUnits(v)
	},
	TypeSetPage: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[PagePayload](p)
		if err != nil {
			return err
		}
		if !e.SetPage(v.Page) {
			return fmt.Errorf("invalid page %d", v.Page)
		}
		return nil
	},
	TypeSetPageSize: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[SizePayload](p)
		if err != nil {
			return err
		}
		if v.Page < 1 || v.Width <= 0 || v.Height <= 0 {
			return errors.New("page size needs a page and a positive size")
		}
		e.SetPageSize(v.Page, v.Width, v.Height)
		return nil
	},
	TypeSetContainer: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[SizePayload](p)
		if err != nil {
			return err
		}
		e.SetContainerSize(v.Width, v.Height)
		return nil
	},
	TypeFit: func(e *engine.Engine, _ json.RawMessage) error {
		e.FitToScreen()
		return nil
	},
	TypeSelect: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[SelectPayload](p)
		if err != nil {
			return err
		}
		if v.ID == "" {
			e.ClearSelection()
			return nil
		}
		if !e.Select(v.ID) {
			return fmt.Errorf("no selectable shape %q", v.ID)
		}
		return nil
	},
	TypeUndo:       simple((*engine.Engine).Undo),
	TypeRedo:       simple((*engine.Engine).Redo),
	TypeDuplicate:  simple((*engine.Engine).DuplicateSelection),
	TypeDelete:     simple((*engine.Engine).DeleteSelection),
	TypeCommitText: simple((*engine.Engine).CommitText),
	TypeCancelText: simple((*engine.Engine).CancelText),
	TypeRotate: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[AmountPayload](p)
		if err != nil {
			return err
		}
		e.RotateSelection(v.Value)
		return nil
	},
	TypeScale: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[AmountPayload](p)
		if err != nil {
			return err
		}
		if !e.ScaleSelection(v.Value) {
			return errors.New("selection cannot be scaled by that factor")
		}
		return nil
	},
	TypeTextContent: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[TextPayload](p)
		if err != nil {
			return err
		}
		if !e.SetTextContent(v.Content) {
			return errors.New("no text is being edited")
		}
		return nil
	},
	TypeApplyNode: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[NodePayload](p)
		if err != nil {
			return err
		}
		if !e.ApplyNodeTransform(v.ID, v.Node) {
			return fmt.Errorf("cannot apply transform to %q", v.ID)
		}
		return nil
	},
	TypeImport: func(e *engine.Engine, p json.RawMessage) error {
		return e.ImportStateJSON(p)
	},
	TypeLoadSample: func(e *engine.Engine, _ json.RawMessage) error {
		e.LoadSampleDocument()
		return nil
	},
	TypeAddLayer: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[LayerPayload](p)
		if err != nil {
			return err
		}
		e.Layers().Add(v.Name)
		return nil
	},
	TypeRemoveLayer: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[LayerPayload](p)
		if err != nil {
			return err
		}
		if !e.Layers().Remove(v.ID) {
			return fmt.Errorf("unknown layer %q", v.ID)
		}
		return nil
	},
	TypeZoom: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[AmountPayload](p)
		if err != nil {
			return err
		}
		e.SetZoom(v.Value)
		return nil
	},
	TypeCalibrate: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[CalibratePayload](p)
		if err != nil {
			return err
		}
		upp, err := measure.Calibrate(v.Pixels, v.Length)
		if err != nil {
			return err
		}
		return e.SetUnits(measure.Units{Unit: v.Unit, UnitsPerPixel: upp})
	},
	TypeLayerSettings: func(e *engine.Engine, p json.RawMessage) error {
		v, err := decode[LayerPayload](p)
		if err != nil {
			return err
		}
		if _, ok := e.Layers().Get(v.ID); !ok {
			return fmt.Errorf("unknown layer %q", v.ID)
		}
		if v.Visible != nil {
			e.Layers().SetVisible(v.ID, *v.Visible)
		}
		if v.Locked != nil {
			e.Layers().SetLocked(v.ID, *v.Locked)
		}
		return nil
	},
}

func pointer(fn func(*engine.Engine, engine.PointerEvent)) commandFunc {
	return func(e *engine.Engine, p json.RawMessage) error {
		ev, err := decode[engine.PointerEvent](p)
		if err != nil {
			return err
		}
		fn(e, ev)
		return nil
	}
}

func simple(fn func(*engine.Engine) bool) commandFunc {
	return func(e *engine.Engine, _ json.RawMessage) error {
		fn(e)
		return nil
	}
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, errors.New("missing payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("invalid payload: %w", err)
	}
	return v, nil
}
