package console

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ParseValue reads a TOML value literal: a string, number, boolean,
// datetime, array or inline table.
func ParseValue(text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty value")
	}
	var doc map[string]any
	if _, err := toml.Decode("v = "+text, &doc); err != nil {
		return nil, fmt.Errorf("parsing value %q: %w", text, err)
	}
	return doc["v"], nil
}

// ParseKey is ParseValue that falls back to the raw text, so bare words
// work as string keys.
func ParseKey(text string) any {
	v, err := ParseValue(text)
	if err != nil {
		return strings.TrimSpace(text)
	}
	return v
}

// FormatValue renders a record in the notation ParseValue reads.
func FormatValue(v any) string {
	var b strings.Builder
	formatValue(&b, v)
	return b.String()
}

func formatValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case float64:
		switch {
		case math.IsInf(x, 1):
			b.WriteString("inf")
		case math.IsInf(x, -1):
			b.WriteString("-inf")
		case math.IsNaN(x):
			b.WriteString("nan")
		default:
			b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
		}
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case time.Time:
		b.WriteString(x.Format(time.RFC3339Nano))
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			formatValue(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		if len(x) == 0 {
			b.WriteString("{}")
			return
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{ ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatKey(k))
			b.WriteString(" = ")
			formatValue(b, x[k])
		}
		b.WriteString(" }")
	default:
		_, _ = fmt.Fprintf(b, "%v", x)
	}
}

func formatKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return strconv.Quote(k)
		}
	}
	return k
}
