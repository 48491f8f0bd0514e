package typesys

import (
	"errors"
	"testing"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		raw     string
		wantTag TypeTag
		wantErr bool
	}{
		{"int", Int, false},
		{"float", Float, false},
		{"str", Str, false},
		{"bool", Bool, false},
		{"list", List, false},
		{"dict", Dict, false},
		{"tuple", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTag(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTag(%q): want error, got nil", tt.raw)
			}
			if !errors.Is(err, ErrUnknownType) {
				t.Errorf("ParseTag(%q): want ErrUnknownType, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTag(%q): unexpected error %v", tt.raw, err)
		}
		if got != tt.wantTag {
			t.Errorf("ParseTag(%q) = %v, want %v", tt.raw, got, tt.wantTag)
		}
	}
}

func TestUnsetIsUnset(t *testing.T) {
	v := Unset(Int)
	if !v.IsUnset() {
		t.Error("Unset(Int).IsUnset() = false, want true")
	}
	if v.Tag() != Int {
		t.Errorf("Unset(Int).Tag() = %v, want Int", v.Tag())
	}
}

func TestNewIntIsSet(t *testing.T) {
	v := NewInt(42)
	if v.IsUnset() {
		t.Error("NewInt(42).IsUnset() = true, want false")
	}
	if v.Payload() != int64(42) {
		t.Errorf("NewInt(42).Payload() = %v, want 42", v.Payload())
	}
}

func TestDeepCopyListIsIndependent(t *testing.T) {
	orig := NewList([]any{int64(1), int64(2)})
	copied := orig.DeepCopy()

	items := copied.Payload().([]any)
	items[0] = int64(99)

	origItems := orig.Payload().([]any)
	if origItems[0] != int64(1) {
		t.Errorf("mutating deep copy mutated original: got %v", origItems[0])
	}
}

func TestDeepCopyDictIsIndependent(t *testing.T) {
	orig := NewDict(map[string]any{"a": int64(1)})
	copied := orig.DeepCopy()

	fields := copied.Payload().(map[string]any)
	fields["a"] = int64(99)

	origFields := orig.Payload().(map[string]any)
	if origFields["a"] != int64(1) {
		t.Errorf("mutating deep copy mutated original: got %v", origFields["a"])
	}
}

func TestValidClosedSet(t *testing.T) {
	for _, tag := range []TypeTag{Int, Float, Str, Bool, List, Dict} {
		if !Valid(tag) {
			t.Errorf("Valid(%v) = false, want true", tag)
		}
	}
	if Valid(TypeTag("unknown")) {
		t.Error("Valid(\"unknown\") = true, want false")
	}
}
