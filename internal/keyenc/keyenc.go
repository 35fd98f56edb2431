// Package keyenc encodes IndexedDB-style keys into byte strings whose
// lexicographic order matches key order.
//
// Key types sort as number < date < string < binary < array. Arrays compare
// element by element, and a shorter array sorts before any longer array it
// prefixes. Every encoding is self-delimiting, so encoded keys can be
// concatenated (index key followed by primary key) and split again.
package keyenc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Type tags. The terminator sorts below every tag.
const (
	tagEnd    byte = 0x00
	tagNumber byte = 0x10
	tagDate   byte = 0x20
	tagString byte = 0x30
	tagBinary byte = 0x40
	tagArray  byte = 0x50

	escape byte = 0xFF
)

// ErrInvalidKey is returned for values that are not valid keys.
var ErrInvalidKey = errors.New("invalid key")

// Encode returns the ordered encoding of k.
func Encode(k any) ([]byte, error) {
	return Append(nil, k)
}

// Append appends the ordered encoding of k to dst.
func Append(dst []byte, k any) ([]byte, error) {
	return appendKey(dst, k, 0)
}

const maxDepth = 32

func appendKey(dst []byte, k any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: array nested too deeply", ErrInvalidKey)
	}
	switch v := k.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	case string:
		return appendBytes(append(dst, tagString), []byte(v)), nil
	case []byte:
		return appendBytes(append(dst, tagBinary), v), nil
	case time.Time:
		return appendUint64(append(dst, tagDate), uint64(v.UnixNano())^(1<<63)), nil
	case []any:
		dst = append(dst, tagArray)
		for _, e := range v {
			var err error
			if dst, err = appendKey(dst, e, depth+1); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	}

	if f, ok := number(k); ok {
		if math.IsNaN(f) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
		}
		return appendUint64(append(dst, tagNumber), orderedFloat(f)), nil
	}

	rv := reflect.ValueOf(k)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		dst = append(dst, tagArray)
		for i := 0; i < rv.Len(); i++ {
			var err error
			if dst, err = appendKey(dst, rv.Index(i).Interface(), depth+1); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, k)
}

// Valid reports whether k can be used as a key.
func Valid(k any) bool {
	_, err := Encode(k)
	return err == nil
}

// Normalize converts k to the canonical Go representation returned by
// Decode: float64, time.Time, string, []byte or []any.
func Normalize(k any) (any, error) {
	b, err := Encode(k)
	if err != nil {
		return nil, err
	}
	v, _, err := Decode(b)
	return v, err
}

// Compare orders two keys. It returns -1, 0 or +1.
func Compare(a, b any) (int, error) {
	ea, err := Encode(a)
	if err != nil {
		return 0, err
	}
	eb, err := Encode(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

// Decode decodes the first key in b and returns it with the number of bytes
// consumed.
func Decode(b []byte) (any, int, error) {
	if len(b) == 0 {
		return nil, 0, fmt.Errorf("%w: empty encoding", ErrInvalidKey)
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("%w: short number", ErrInvalidKey)
		}
		return unorderedFloat(binary.BigEndian.Uint64(b[1:9])), 9, nil
	case tagDate:
		if len(b) < 9 {
			return nil, 0, fmt.Errorf("%w: short date", ErrInvalidKey)
		}
		ns := int64(binary.BigEndian.Uint64(b[1:9]) ^ (1 << 63))
		return time.Unix(0, ns).UTC(), 9, nil
	case tagString:
		raw, n, err := readBytes(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return string(raw), n + 1, nil
	case tagBinary:
		raw, n, err := readBytes(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return raw, n + 1, nil
	case tagArray:
		out := []any{}
		pos := 1
		for {
			if pos >= len(b) {
				return nil, 0, fmt.Errorf("%w: unterminated array", ErrInvalidKey)
			}
			if b[pos] == tagEnd {
				return out, pos + 1, nil
			}
			e, n, err := Decode(b[pos:])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, e)
			pos += n
		}
	}
	return nil, 0, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, b[0])
}

// Split splits b into the first encoded key and the remainder.
func Split(b []byte) (head, rest []byte, err error) {
	_, n, err := Decode(b)
	if err != nil {
		return nil, nil, err
	}
	return b[:n], b[n:], nil
}

// Successor returns the smallest byte string greater than every encoding
// that starts with the encoded key b. Encodings are prefix-free, so seeking
// to it lands just past b and anything concatenated after b.
func Successor(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = escape
	return out
}

func number(k any) (float64, bool) {
	switch v := k.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// orderedFloat maps f onto a uint64 whose unsigned order matches float order.
func orderedFloat(f float64) uint64 {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		return bits ^ (1 << 63)
	}
	return ^bits
}

func unorderedFloat(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u ^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

func appendUint64(dst []byte, u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(dst, buf[:]...)
}

// appendBytes writes raw with 0x00 escaped as 0x00 0xFF, terminated by
// 0x00 0x00.
func appendBytes(dst, raw []byte) []byte {
	for _, c := range raw {
		if c == 0x00 {
			dst = append(dst, 0x00, escape)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00, 0x00)
}

func readBytes(b []byte) ([]byte, int, error) {
	out := []byte{}
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case 0x00:
			return out, i + 2, nil
		case escape:
			out = append(out, 0x00)
			i++
		default:
			return nil, 0, fmt.Errorf("%w: bad escape 0x%02x", ErrInvalidKey, b[i+1])
		}
	}
	return nil, 0, fmt.Errorf("%w: unterminated bytes", ErrInvalidKey)
}
