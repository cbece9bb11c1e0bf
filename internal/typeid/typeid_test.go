package typeid

import (
	"strings"
	"testing"
)

func TestNewShapeID(t *testing.T) {
	id := NewShapeID()
	if !strings.HasPrefix(id, PrefixShape+"_") {
		t.Fatalf("id %q lacks prefix %q", id, PrefixShape)
	}
	if err := Validate(id, PrefixShape); err != nil {
		t.Fatal(err)
	}
	if err := Validate(id, PrefixLayer); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	if NewShapeID() == id {
		t.Fatal("ids are not unique")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if err := Validate("not an id", PrefixShape); err == nil {
		t.Fatal("expected error")
	}
}
