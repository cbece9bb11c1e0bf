package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/annosuite/annotator/internal/document"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Load(ctx, "file", "user"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty load err = %v", err)
	}

	doc := document.NewSampleDocument()
	layers := []document.Layer{{ID: "l1", Name: "notes", Visible: false}}
	if err := m.Save(ctx, "file", "user", document.Snapshot{Pages: doc, Layers: layers}); err != nil {
		t.Fatal(err)
	}
	doc[1].Shapes[0].X = 999
	layers[0].Visible = true

	got, err := m.Load(ctx, "file", "user")
	if err != nil {
		t.Fatal(err)
	}
	if got.Pages[1].Shapes[0].X == 999 {
		t.Error("saved document aliases the caller's")
	}
	if diff := cmp.Diff([]document.Layer{{ID: "l1", Name: "notes"}}, got.Layers); diff != "" {
		t.Errorf("layers (-want +got):\n%s", diff)
	}
	if _, err := m.Load(ctx, "file", "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("documents are not per user: %v", err)
	}

	got.Pages[1].Shapes = nil
	again, _ := m.Load(ctx, "file", "user")
	if diff := cmp.Diff(9, len(again.Pages[1].Shapes)); diff != "" {
		t.Errorf("loaded document aliases the store (-want +got):\n%s", diff)
	}
}

func TestMemoryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	if err := m.Save(ctx, "f", "u", document.Snapshot{}); !errors.Is(err, context.Canceled) {
		t.Errorf("save err = %v", err)
	}
	if _, err := m.Load(ctx, "f", "u"); !errors.Is(err, context.Canceled) {
		t.Errorf("load err = %v", err)
	}
}
