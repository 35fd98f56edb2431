package idb

import (
	"errors"
	"testing"
)

func TestKeyRangeIncludes(t *testing.T) {
	bound, err := Bound(2, 5, true, false)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	tests := []struct {
		name string
		r    KeyRange
		key  any
		want bool
	}{
		{"only hit", Only("a"), "a", true},
		{"only miss", Only("a"), "b", false},
		{"lower closed", LowerBound(3, false), 3, true},
		{"lower open", LowerBound(3, true), 3, false},
		{"upper closed", UpperBound(3, false), 3, true},
		{"upper open", UpperBound(3, true), 3, false},
		{"bound open lower edge", bound, 2, false},
		{"bound closed upper edge", bound, 5, true},
		{"bound inside", bound, 3.5, true},
		{"strings above numbers", UpperBound(100, false), "1", false},
		{"unbounded", KeyRange{}, []any{"x"}, true},
	}
	for _, tt := range tests {
		got, err := tt.r.Includes(tt.key)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Includes(%v) = %v, want %v", tt.name, tt.key, got, tt.want)
		}
	}
}

func TestBoundRejectsEmptyRanges(t *testing.T) {
	tests := []struct {
		name                 string
		lower, upper         any
		lowerOpen, upperOpen bool
	}{
		{"reversed", 5, 2, false, false},
		{"open single", 3, 3, true, false},
		{"missing lower", nil, 3, false, false},
		{"invalid key", true, 3, false, false},
	}
	for _, tt := range tests {
		if _, err := Bound(tt.lower, tt.upper, tt.lowerOpen, tt.upperOpen); !errors.Is(err, ErrData) {
			t.Errorf("%s: got %v, want ErrData", tt.name, err)
		}
	}
	if _, err := Bound(3, 3, false, false); err != nil {
		t.Fatalf("Bound(3, 3): %v", err)
	}
}

func TestToSpan(t *testing.T) {
	sp, err := toSpan(nil)
	if err != nil || sp.lower != nil || sp.upper != nil {
		t.Fatalf("toSpan(nil): %+v, %v", sp, err)
	}
	var nilRange *KeyRange
	if sp, err = toSpan(nilRange); err != nil || sp.lower != nil {
		t.Fatalf("toSpan(nil *KeyRange): %+v, %v", sp, err)
	}
	r := LowerBound(1, true)
	if sp, err = toSpan(&r); err != nil || !sp.lowerOpen || sp.upper != nil {
		t.Fatalf("toSpan(&r): %+v, %v", sp, err)
	}
	if _, err := toSpan(struct{}{}); !errors.Is(err, ErrData) {
		t.Fatalf("toSpan(struct): got %v, want ErrData", err)
	}
}
