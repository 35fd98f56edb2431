package idb

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"idbkit/internal/keyenc"
)

// KeyPath locates a key inside a record. The zero value means "no key path".
// Path("") designates the record itself; Paths builds an array key path whose
// key is the array of the values found at each path.
type KeyPath struct {
	paths []string
	array bool
	set   bool
}

// Path returns a key path of dot-separated property names.
func Path(p string) KeyPath {
	return KeyPath{paths: []string{p}, set: true}
}

// Paths returns an array key path.
func Paths(ps ...string) KeyPath {
	return KeyPath{paths: append([]string(nil), ps...), array: true, set: true}
}

// IsZero reports whether no key path is set.
func (k KeyPath) IsZero() bool { return !k.set }

// IsArray reports whether k is an array key path.
func (k KeyPath) IsArray() bool { return k.array }

// Strings returns the individual paths.
func (k KeyPath) Strings() []string { return append([]string(nil), k.paths...) }

func (k KeyPath) String() string {
	switch {
	case !k.set:
		return "<none>"
	case k.array:
		return "[" + strings.Join(k.paths, ", ") + "]"
	}
	return k.paths[0]
}

// Equal reports whether two key paths are identical.
func (k KeyPath) Equal(o KeyPath) bool {
	if k.set != o.set || k.array != o.array || len(k.paths) != len(o.paths) {
		return false
	}
	for i := range k.paths {
		if k.paths[i] != o.paths[i] {
			return false
		}
	}
	return true
}

func (k KeyPath) validate() error {
	if !k.set {
		return nil
	}
	if k.array && len(k.paths) == 0 {
		return fmt.Errorf("%w: empty array key path", ErrData)
	}
	for _, p := range k.paths {
		if p == "" {
			if k.array {
				return fmt.Errorf("%w: empty path inside array key path", ErrData)
			}
			continue
		}
		for _, seg := range strings.Split(p, ".") {
			if !isIdentifier(seg) {
				return fmt.Errorf("%w: invalid key path %q", ErrData, p)
			}
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// extract evaluates k against a normalized record and returns the key in
// canonical form. ok is false when a value is missing or not a valid key.
func (k KeyPath) extract(doc any) (any, bool) {
	if !k.set {
		return nil, false
	}
	if !k.array {
		v, ok := evaluate(doc, k.paths[0])
		if !ok {
			return nil, false
		}
		key, err := keyenc.Normalize(v)
		return key, err == nil
	}
	out := make([]any, 0, len(k.paths))
	for _, p := range k.paths {
		v, ok := evaluate(doc, p)
		if !ok {
			return nil, false
		}
		key, err := keyenc.Normalize(v)
		if err != nil {
			return nil, false
		}
		out = append(out, key)
	}
	return out, true
}

// evaluate walks a dotted path. "length" resolves on strings and arrays.
func evaluate(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case string:
			if seg != "length" {
				return nil, false
			}
			cur = float64(utf8.RuneCountInString(v))
		case []any:
			if seg != "length" {
				return nil, false
			}
			cur = float64(len(v))
		default:
			return nil, false
		}
	}
	return cur, true
}

// inject stores key at a single key path, creating intermediate objects.
func inject(doc any, path string, key any) error {
	segs := strings.Split(path, ".")
	cur, ok := doc.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: cannot inject key into %T", ErrData, doc)
	}
	for _, seg := range segs[:len(segs)-1] {
		next, exists := cur[seg]
		if !exists {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		if cur, ok = next.(map[string]any); !ok {
			return fmt.Errorf("%w: cannot inject key below %q", ErrData, seg)
		}
	}
	cur[segs[len(segs)-1]] = key
	return nil
}
