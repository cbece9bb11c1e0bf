package collab

import (
	"encoding/json"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/export"
	"github.com/annosuite/annotator/internal/geom"
	"github.com/annosuite/annotator/internal/measure"
)

type Message struct {
	Type     string          `json:"type"`
	FileID   string          `json:"fileId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// PresencePayload is a cursor in canvas coordinates. The server fills in
// who it belongs to.
type PresencePayload struct {
	Cursor      *CursorPos `json:"cursor,omitempty"`
	Page        int        `json:"page,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	Role        Role       `json:"role,omitempty"`
}

type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences presenceSet `json:"presences"` // clientID -> presence
}

type PresenceJoinPayload struct {
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

type PresenceLeavePayload struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	// Connection
	TypeWelcome = "welcome"

	// Server to client
	TypeSnapshot = "snapshot"
	TypeState    = "state"

	// Input events, forwarded to the room engine
	TypePointerDown = "event.pointerDown"
	TypePointerMove = "event.pointerMove"
	TypePointerUp   = "event.pointerUp"
	TypeDoubleClick = "event.doubleClick"
	TypeKeyDown     = "event.keyDown"
	TypeWheel       = "event.wheel"

	// Control surface
	TypeSetTool       = "command.setTool"
	TypeSetStyle      = "command.setStyle"
	TypeSetUnits      = "command.setUnits"
	TypeSetPage       = "command.setPage"
	TypeSetPageSize   = "command.setPageSize"
	TypeSetContainer  = "command.setContainer"
	TypeFit           = "command.fit"
	TypeSelect        = "command.select"
	TypeUndo          = "command.undo"
	TypeRedo          = "command.redo"
	TypeDuplicate     = "command.duplicate"
	TypeRotate        = "command.rotate"
	TypeScale         = "command.scale"
	TypeDelete        = "command.delete"
	TypeTextContent   = "command.textContent"
	TypeCommitText    = "command.commitText"
	TypeCancelText    = "command.cancelText"
	TypeApplyNode     = "command.applyNode"
	TypeImport        = "command.import"
	TypeExportState   = "command.exportState"
	TypeSave          = "command.save"
	TypeLoadSample    = "command.loadSample"
	TypeAddLayer      = "command.addLayer"
	TypeLayerSettings = "command.layer"
	TypeRemoveLayer   = "command.removeLayer"
	TypeZoom          = "command.zoom"
	TypeCalibrate     = "command.calibrate"
)

type WelcomePayload struct {
	ClientID string `json:"clientId"`
	Role     Role   `json:"role"`
	OwnerID  string `json:"ownerId"`
}

type ErrorPayload struct {
	Request string `json:"request,omitempty"`
	Error   string `json:"error"`
}

// SnapshotPayload is everything a thin client needs to draw the session.
type SnapshotPayload struct {
	Page      int                  `json:"page"`
	Tool      engine.Tool          `json:"tool"`
	State     engine.State         `json:"state"`
	Style     engine.Style         `json:"style"`
	Units     measure.Units        `json:"units"`
	Scale     float64              `json:"scale"`
	Pan       geom.Point           `json:"pan"`
	Selection string               `json:"selection,omitempty"`
	Text      *engine.TextEdit     `json:"text,omitempty"`
	CanUndo   bool                 `json:"canUndo"`
	CanRedo   bool                 `json:"canRedo"`
	Layers    []document.Layer     `json:"layers"`
	Commands  []export.DrawCommand `json:"commands"`
}

type StatePayload struct {
	Document document.Snapshot `json:"document"`
}

type ToolPayload struct {
	Tool engine.Tool `json:"tool"`
}

type PagePayload struct {
	Page int `json:"page"`
}

type SizePayload struct {
	Page   int     `json:"page,omitempty"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SelectPayload struct {
	ID string `json:"id"`
}

type AmountPayload struct {
	Value float64 `json:"value"`
}

type TextPayload struct {
	Content string `json:"content"`
}

type NodePayload struct {
	ID   string               `json:"id"`
	Node engine.NodeTransform `json:"node"`
}

// CalibratePayload says that Pixels canvas pixels measure Length units.
type CalibratePayload struct {
	Pixels float64      `json:"pixels"`
	Length float64      `json:"length"`
	Unit   measure.Unit `json:"unit"`
}

type LayerPayload struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
	Locked  *bool  `json:"locked,omitempty"`
}
