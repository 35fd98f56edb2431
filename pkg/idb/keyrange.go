package idb

import (
	"bytes"
	"fmt"

	"idbkit/internal/keyenc"
)

// KeyRange selects a contiguous span of keys. A nil bound is unbounded.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only matches exactly one key.
func Only(k any) KeyRange {
	return KeyRange{Lower: k, Upper: k}
}

// LowerBound matches keys at or above k (above k when open).
func LowerBound(k any, open bool) KeyRange {
	return KeyRange{Lower: k, LowerOpen: open}
}

// UpperBound matches keys at or below k (below k when open).
func UpperBound(k any, open bool) KeyRange {
	return KeyRange{Upper: k, UpperOpen: open}
}

// Bound matches keys between lower and upper.
func Bound(lower, upper any, lowerOpen, upperOpen bool) (KeyRange, error) {
	r := KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
	if lower == nil || upper == nil {
		return KeyRange{}, fmt.Errorf("%w: both bounds are required", ErrData)
	}
	if _, err := r.span(); err != nil {
		return KeyRange{}, err
	}
	return r, nil
}

// Includes reports whether k lies inside the range.
func (r KeyRange) Includes(k any) (bool, error) {
	sp, err := r.span()
	if err != nil {
		return false, err
	}
	enc, err := keyenc.Encode(k)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrData, err)
	}
	return sp.contains(enc), nil
}

func (r KeyRange) span() (span, error) {
	sp := span{lowerOpen: r.LowerOpen, upperOpen: r.UpperOpen}
	var err error
	if r.Lower != nil {
		if sp.lower, err = keyenc.Encode(r.Lower); err != nil {
			return span{}, fmt.Errorf("%w: lower bound: %v", ErrData, err)
		}
	}
	if r.Upper != nil {
		if sp.upper, err = keyenc.Encode(r.Upper); err != nil {
			return span{}, fmt.Errorf("%w: upper bound: %v", ErrData, err)
		}
	}
	if sp.lower != nil && sp.upper != nil {
		c := bytes.Compare(sp.lower, sp.upper)
		if c > 0 || (c == 0 && (r.LowerOpen || r.UpperOpen)) {
			return span{}, fmt.Errorf("%w: empty key range", ErrData)
		}
	}
	return sp, nil
}

// span is a KeyRange with encoded bounds.
type span struct {
	lower, upper         []byte
	lowerOpen, upperOpen bool
}

// toSpan converts a query: nil selects everything, a KeyRange selects its
// span and anything else is treated as a single key.
func toSpan(query any) (span, error) {
	switch q := query.(type) {
	case nil:
		return span{}, nil
	case KeyRange:
		return q.span()
	case *KeyRange:
		if q == nil {
			return span{}, nil
		}
		return q.span()
	}
	enc, err := keyenc.Encode(query)
	if err != nil {
		return span{}, fmt.Errorf("%w: %v", ErrData, err)
	}
	return span{lower: enc, upper: enc}, nil
}

func (s span) contains(k []byte) bool {
	return !s.belowLower(k) && !s.aboveUpper(k)
}

func (s span) belowLower(k []byte) bool {
	if s.lower == nil {
		return false
	}
	c := bytes.Compare(k, s.lower)
	return c < 0 || (c == 0 && s.lowerOpen)
}

func (s span) aboveUpper(k []byte) bool {
	if s.upper == nil {
		return false
	}
	c := bytes.Compare(k, s.upper)
	return c > 0 || (c == 0 && s.upperOpen)
}
