package console

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`"alice"`, "alice"},
		{`42`, int64(42)},
		{`-1.5`, -1.5},
		{`true`, true},
		{`[1, "two"]`, []any{int64(1), "two"}},
		{`{ id = 1, tags = ["a"] }`, map[string]any{"id": int64(1), "tags": []any{"a"}}},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if err != nil {
			t.Errorf("ParseValue(%s): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseValue(%s) (-want +got):\n%s", tt.in, diff)
		}
	}
	for _, bad := range []string{"", "alice", "{ id = }", "1 2"} {
		if _, err := ParseValue(bad); err == nil {
			t.Errorf("ParseValue(%q) succeeded", bad)
		}
	}
}

func TestParseKey(t *testing.T) {
	if got := ParseKey("u1"); got != "u1" {
		t.Errorf("bare word: got %v", got)
	}
	if got := ParseKey("7"); got != int64(7) {
		t.Errorf("number: got %#v", got)
	}
	if got := ParseKey(`"7"`); got != "7" {
		t.Errorf("quoted: got %#v", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{3.0, "3"},
		{0.25, "0.25"},
		{"a\"b", `"a\"b"`},
		{[]any{1.0, "x", true}, `[1, "x", true]`},
		{map[string]any{}, "{}"},
		{map[string]any{"name": "ada", "id": 1.0, "odd key": []any{}}, `{ id = 1, name = "ada", "odd key" = [] }`},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v): got %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	in := map[string]any{"id": int64(9), "tags": []any{"x", "y"}, "inner": map[string]any{"ok": false}}
	got, err := ParseValue(FormatValue(in))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}
