package collab

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"

	"github.com/annosuite/annotator/internal/auth"
	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/export"
	"github.com/annosuite/annotator/internal/store"
)

const testSecret = "collab-test-secret"

type testServer struct {
	url       string
	hub       *Hub
	store     *store.Memory
	validator *auth.Validator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	hub := NewHub(log, st, engine.Options{Logger: log})
	go hub.Run()

	validator := auth.NewValidator(testSecret)
	r := mux.NewRouter()
	r.Handle("/ws/files/{fileId}", NewHandler(hub, validator, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return &testServer{
		url:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		hub:       hub,
		store:     st,
		validator: validator,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.validator.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := Message{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		msg.Payload = data
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil discards messages until one of type typ arrives and accept
// reports true for it.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, accept func(*Message) bool) *Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Type == typ && (accept == nil || accept(&msg)) {
			return &msg
		}
	}
}

func snapshotOf(t *testing.T, msg *Message) SnapshotPayload {
	t.Helper()
	var s SnapshotPayload
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return s
}

func TestOwnerDrawsAndSaves(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, s.url+"/ws/files/file-1?token="+s.token(t, "alice"))

	welcome := readUntil(t, ctx, conn, TypeWelcome, nil)
	var wp WelcomePayload
	if err := json.Unmarshal(welcome.Payload, &wp); err != nil {
		t.Fatal(err)
	}
	if wp.Role != RoleOwner || wp.OwnerID != "alice" || wp.ClientID == "" {
		t.Fatalf("welcome = %+v", wp)
	}
	first := snapshotOf(t, readUntil(t, ctx, conn, TypeSnapshot, nil))
	if first.Page != 1 || len(first.Commands) != 0 || first.CanUndo {
		t.Fatalf("initial snapshot = %+v", first)
	}

	send(t, ctx, conn, TypeSetTool, ToolPayload{Tool: engine.ToolRect})
	send(t, ctx, conn, TypePointerDown, engine.PointerEvent{X: 10, Y: 10})
	send(t, ctx, conn, TypePointerMove, engine.PointerEvent{X: 60, Y: 40})
	send(t, ctx, conn, TypePointerUp, engine.PointerEvent{X: 60, Y: 40})

	msg := readUntil(t, ctx, conn, TypeSnapshot, func(m *Message) bool {
		return snapshotOf(t, m).CanUndo
	})
	snap := snapshotOf(t, msg)
	if snap.Tool != engine.ToolRect {
		t.Errorf("tool = %q, want rect", snap.Tool)
	}
	if len(snap.Commands) != 1 || snap.Commands[0].Op != export.OpRect {
		t.Fatalf("commands = %+v, want one rect", snap.Commands)
	}
	got := snap.Commands[0]
	if got.X != 10 || got.Y != 10 || got.Width != 50 || got.Height != 30 {
		t.Errorf("rect = %v,%v %vx%v, want 10,10 50x30", got.X, got.Y, got.Width, got.Height)
	}

	send(t, ctx, conn, TypeExportState, nil)
	stateMsg := readUntil(t, ctx, conn, TypeState, nil)
	var state StatePayload
	if err := json.Unmarshal(stateMsg.Payload, &state); err != nil {
		t.Fatal(err)
	}
	if n := len(state.Document.Pages[1].Shapes); n != 1 {
		t.Fatalf("exported %d shapes, want 1", n)
	}

	s.hub.Stop()

	saved, err := s.store.Load(ctx, "file-1", "alice")
	if err != nil {
		t.Fatalf("Load after Stop: %v", err)
	}
	ids := func(d document.Document) []string {
		var out []string
		for _, sh := range d[1].Shapes {
			out = append(out, sh.ID)
		}
		return out
	}
	if diff := cmp.Diff(ids(state.Document.Pages), ids(saved.Pages)); diff != "" {
		t.Errorf("saved shapes mismatch (-exported +saved):\n%s", diff)
	}
}

func TestRoomLoadsSavedAnnotations(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	layers := []document.Layer{{ID: "l1", Name: "hidden", Visible: false}}
	saved := document.Snapshot{
		Pages: document.Document{1: {Shapes: []document.Shape{
			document.Normalize(document.Shape{ID: "r1", Type: document.TypeRect, Width: 20, Height: 20}),
			document.Normalize(document.Shape{ID: "r2", Type: document.TypeRect, Width: 20, Height: 20, LayerID: "l1"}),
		}}},
		Layers: layers,
	}
	if err := s.store.Save(ctx, "file-2", "bob", saved); err != nil {
		t.Fatal(err)
	}

	conn := dial(t, ctx, s.url+"/ws/files/file-2?token="+s.token(t, "bob"))
	snap := snapshotOf(t, readUntil(t, ctx, conn, TypeSnapshot, nil))
	if len(snap.Commands) != 1 || snap.Commands[0].ShapeID != "r1" {
		t.Fatalf("commands = %+v, want only the visible rect", snap.Commands)
	}
	if diff := cmp.Diff(layers, snap.Layers); diff != "" {
		t.Errorf("layers (-want +got):\n%s", diff)
	}
	if snap.CanUndo {
		t.Error("loaded annotations should start with an empty undo stack")
	}
}

func TestViewerIsReadOnly(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	owner := dial(t, ctx, s.url+"/ws/files/file-3?token="+s.token(t, "carol"))
	readUntil(t, ctx, owner, TypeSnapshot, nil)

	viewer := dial(t, ctx, s.url+"/ws/files/file-3?owner=carol&token="+s.token(t, "frank"))
	welcome := readUntil(t, ctx, viewer, TypeWelcome, nil)
	var wp WelcomePayload
	if err := json.Unmarshal(welcome.Payload, &wp); err != nil {
		t.Fatal(err)
	}
	if wp.Role != RoleViewer || wp.OwnerID != "carol" {
		t.Fatalf("viewer welcome = %+v", wp)
	}
	readUntil(t, ctx, viewer, TypeSnapshot, nil)

	send(t, ctx, viewer, TypeUndo, nil)
	errMsg := readUntil(t, ctx, viewer, TypeError, nil)
	var ep ErrorPayload
	if err := json.Unmarshal(errMsg.Payload, &ep); err != nil {
		t.Fatal(err)
	}
	want := ErrorPayload{Request: TypeUndo, Error: ErrReadOnly.Error()}
	if diff := cmp.Diff(want, ep); diff != "" {
		t.Errorf("error payload mismatch (-want +got):\n%s", diff)
	}

	send(t, ctx, owner, TypePresenceUpdate, PresencePayload{Cursor: &CursorPos{X: 12, Y: 34}, Page: 1, Role: RoleViewer})
	pres := readUntil(t, ctx, viewer, TypePresenceUpdate, nil)
	var pp PresencePayload
	if err := json.Unmarshal(pres.Payload, &pp); err != nil {
		t.Fatal(err)
	}
	wantPresence := PresencePayload{Cursor: &CursorPos{X: 12, Y: 34}, Page: 1, UserID: "carol", DisplayName: "carol", Role: RoleOwner}
	if diff := cmp.Diff(wantPresence, pp); diff != "" {
		t.Errorf("presence mismatch (-want +got):\n%s", diff)
	}

	// The owner's edits reach the viewer.
	send(t, ctx, owner, TypeLoadSample, nil)
	readUntil(t, ctx, viewer, TypeSnapshot, func(m *Message) bool {
		return len(snapshotOf(t, m).Commands) > 0
	})
}

func TestCommandErrorsGoToSender(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, s.url+"/ws/files/file-4?token="+s.token(t, "dave"))
	readUntil(t, ctx, conn, TypeSnapshot, nil)

	tests := []struct {
		typ     string
		payload any
	}{
		{TypeSetTool, ToolPayload{Tool: "lasso"}},
		{TypeSetPage, PagePayload{Page: 0}},
		{TypeRotate, nil},
		{"command.unknown", nil},
	}
	for _, tt := range tests {
		send(t, ctx, conn, tt.typ, tt.payload)
		msg := readUntil(t, ctx, conn, TypeError, nil)
		var ep ErrorPayload
		if err := json.Unmarshal(msg.Payload, &ep); err != nil {
			t.Fatal(err)
		}
		if ep.Request != tt.typ || ep.Error == "" {
			t.Errorf("%s: error payload = %+v", tt.typ, ep)
		}
	}
}

func TestHandshakeNeedsToken(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name  string
		query string
	}{
		{"no token", ""},
		{"bad token", "?token=garbage"},
		{"viewer without token", "?owner=carol"},
		{"viewer with bad token", "?owner=carol&token=garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.Dial(ctx, s.url+"/ws/files/f"+tt.query, nil)
			if err == nil {
				t.Fatal("Dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("response = %v, want 401", resp)
			}
		})
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"http://localhost:5173", "https://app.example.com", "*.example.org"})
	want := []string{"localhost:5173", "app.example.com", "*.example.org"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("originPatterns mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibrateAndLayers(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, s.url+"/ws/files/file-5?token="+s.token(t, "erin"))
	readUntil(t, ctx, conn, TypeSnapshot, nil)

	send(t, ctx, conn, TypeCalibrate, CalibratePayload{Pixels: 200, Length: 5, Unit: "cm"})
	snap := snapshotOf(t, readUntil(t, ctx, conn, TypeSnapshot, func(m *Message) bool {
		return snapshotOf(t, m).Units.Unit == "cm"
	}))
	if snap.Units.UnitsPerPixel != 0.025 {
		t.Errorf("units per pixel = %v, want 0.025", snap.Units.UnitsPerPixel)
	}

	send(t, ctx, conn, TypeAddLayer, LayerPayload{Name: "notes"})
	snap = snapshotOf(t, readUntil(t, ctx, conn, TypeSnapshot, func(m *Message) bool {
		for _, l := range snapshotOf(t, m).Layers {
			if l.Name == "notes" {
				return true
			}
		}
		return false
	}))
	var id string
	for _, l := range snap.Layers {
		if l.Name == "notes" {
			id = l.ID
		}
	}
	send(t, ctx, conn, TypeRemoveLayer, LayerPayload{ID: id})
	readUntil(t, ctx, conn, TypeSnapshot, func(m *Message) bool {
		for _, l := range snapshotOf(t, m).Layers {
			if l.ID == id {
				return false
			}
		}
		return true
	})
}
