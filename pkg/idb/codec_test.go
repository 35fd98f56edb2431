package idb

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestProtoCodecRoundTrip(t *testing.T) {
	type tag string
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 3
	in := map[string]any{
		"ints":  []int{1, 2},
		"tags":  []tag{"a"},
		"raw":   []byte{0xde, 0xad},
		"when":  when,
		"ptr":   &n,
		"nil":   (*int)(nil),
		"inner": map[string]int{"k": 4},
	}
	want := map[string]any{
		"ints":  []any{1.0, 2.0},
		"tags":  []any{"a"},
		"raw":   "3q0=",
		"when":  "2024-03-01T12:00:00Z",
		"ptr":   3.0,
		"nil":   nil,
		"inner": map[string]any{"k": 4.0},
	}

	var c ProtoCodec
	norm, err := c.Normalize(in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if diff := cmp.Diff(want, norm); diff != "" {
		t.Fatalf("Normalize (-want +got):\n%s", diff)
	}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := c.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("Unmarshal (-want +got):\n%s", diff)
	}
}

func TestProtoCodecRejects(t *testing.T) {
	var c ProtoCodec
	for _, v := range []any{
		struct{ A int }{1},
		map[int]string{1: "x"},
		make(chan int),
	} {
		if _, err := c.Normalize(v); err == nil {
			t.Errorf("Normalize(%T) succeeded", v)
		}
	}
	if _, err := c.Unmarshal([]byte{0xff, 0xff}); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
}
