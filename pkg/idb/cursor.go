package idb

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"idbkit/internal/keyenc"
)

// Direction is the order a cursor walks in.
type Direction int

const (
	// Next walks in ascending key order.
	Next Direction = iota
	// NextUnique walks ascending and yields only the first record for each
	// distinct key.
	NextUnique
	// Prev walks in descending key order.
	Prev
	// PrevUnique walks descending and yields only the first record (lowest
	// primary key) for each distinct key.
	PrevUnique
)

var directionNames = [...]string{"next", "nextunique", "prev", "prevunique"}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection accepts "next", "nextunique", "prev" and "prevunique".
// The empty string means Next.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Next, nil
	}
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return Next, fmt.Errorf("%w: unknown cursor direction %q", ErrData, s)
}

func (d Direction) valid() bool   { return d >= Next && d <= PrevUnique }
func (d Direction) reverse() bool { return d == Prev || d == PrevUnique }
func (d Direction) unique() bool  { return d == NextUnique || d == PrevUnique }

// walker steps a bolt cursor through a span in one direction. On an index
// bucket each bolt key is index key + primary key; keyPart is the index key.
type walker struct {
	bc      *bolt.Cursor
	sp      span
	dir     Direction
	index   bool
	started bool
	done    bool

	k, v    []byte
	keyPart []byte
	pkPart  []byte
}

func newWalker(bc *bolt.Cursor, sp span, dir Direction, index bool) *walker {
	return &walker{bc: bc, sp: sp, dir: dir, index: index}
}

// step moves to the next position. It returns false once the span is
// exhausted.
func (w *walker) step() (bool, error) {
	if w.done {
		return false, nil
	}
	var k, v []byte
	switch {
	case !w.started:
		w.started = true
		if w.dir.reverse() {
			k, v = w.seekLast()
		} else {
			k, v = w.seekFirst()
		}
	case w.dir.reverse():
		k, v = w.bc.Prev()
	default:
		k, v = w.bc.Next()
		if w.dir.unique() {
			for k != nil && w.sameKey(k) {
				k, v = w.bc.Next()
			}
		}
	}

	if k == nil {
		return w.finish()
	}
	keyPart, pkPart, err := w.split(k)
	if err != nil {
		return false, err
	}
	if !w.sp.contains(keyPart) {
		return w.finish()
	}

	if w.dir == PrevUnique {
		// Land on the first entry of this key's run.
		first := k
		for {
			pk, _ := w.bc.Prev()
			if pk == nil {
				break
			}
			pkKey, _, err := w.split(pk)
			if err != nil {
				return false, err
			}
			if !bytes.Equal(pkKey, keyPart) {
				break
			}
			first = pk
		}
		k, v = w.bc.Seek(first)
		if keyPart, pkPart, err = w.split(k); err != nil {
			return false, err
		}
	}

	w.k, w.v, w.keyPart, w.pkPart = k, v, keyPart, pkPart
	return true, nil
}

func (w *walker) finish() (bool, error) {
	w.done = true
	w.k, w.v, w.keyPart, w.pkPart = nil, nil, nil, nil
	return false, nil
}

func (w *walker) seekFirst() ([]byte, []byte) {
	switch {
	case w.sp.lower == nil:
		return w.bc.First()
	case w.sp.lowerOpen:
		return w.bc.Seek(keyenc.Successor(w.sp.lower))
	}
	return w.bc.Seek(w.sp.lower)
}

func (w *walker) seekLast() ([]byte, []byte) {
	if w.sp.upper == nil {
		return w.bc.Last()
	}
	target := w.sp.upper
	if !w.sp.upperOpen {
		target = keyenc.Successor(w.sp.upper)
	}
	if k, _ := w.bc.Seek(target); k == nil {
		return w.bc.Last()
	}
	return w.bc.Prev()
}

func (w *walker) sameKey(k []byte) bool {
	keyPart, _, err := w.split(k)
	return err == nil && bytes.Equal(keyPart, w.keyPart)
}

func (w *walker) split(k []byte) (keyPart, pkPart []byte, err error) {
	if !w.index {
		return k, k, nil
	}
	keyPart, pkPart, err = keyenc.Split(k)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupt index entry: %w", err)
	}
	return keyPart, pkPart, nil
}

// Cursor walks the records selected by a query. A Cursor owns a read
// transaction until it is exhausted or closed; close it before issuing
// writes from the same goroutine.
type Cursor struct {
	ctx     context.Context
	tx      *bolt.Tx
	st      *storeTx
	w       *walker
	source  string
	keyOnly bool

	key, primaryKey, value any
	err                    error
	closed                 bool
}

// Source names the collection or "collection.index" the cursor walks.
func (c *Cursor) Source() string { return c.source }

// Direction returns the walk direction.
func (c *Cursor) Direction() Direction { return c.w.dir }

// Key returns the current key: the index key on an index cursor, the
// primary key otherwise.
func (c *Cursor) Key() any { return c.key }

// PrimaryKey returns the current record's primary key.
func (c *Cursor) PrimaryKey() any { return c.primaryKey }

// Value returns the current record. It is nil on key cursors.
func (c *Cursor) Value() any { return c.value }

// Done reports whether the cursor has no current record, because it was
// exhausted, closed or failed.
func (c *Cursor) Done() bool { return c.closed }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// Continue moves to the next record. It returns false when there is none.
func (c *Cursor) Continue() bool {
	return c.Advance(1)
}

// Advance skips count records in one call and positions on the record after
// them. It returns false when the walk ends first.
func (c *Cursor) Advance(count int) bool {
	if c.closed {
		if c.err == nil {
			c.err = fmt.Errorf("%w: cursor is not positioned on a record", ErrInvalidState)
		}
		return false
	}
	if count < 1 {
		c.fail(fmt.Errorf("%w: advance count must be positive, got %d", ErrData, count))
		return false
	}
	for i := 0; i < count; i++ {
		if i%1024 == 0 {
			if err := c.ctx.Err(); err != nil {
				c.fail(err)
				return false
			}
		}
		ok, err := c.w.step()
		if err != nil {
			c.fail(err)
			return false
		}
		if !ok {
			c.release()
			return false
		}
	}
	if err := c.load(); err != nil {
		c.fail(err)
		return false
	}
	return true
}

func (c *Cursor) load() error {
	var err error
	if c.key, _, err = keyenc.Decode(c.w.keyPart); err != nil {
		return err
	}
	c.primaryKey = c.key
	if c.w.index {
		if c.primaryKey, _, err = keyenc.Decode(c.w.pkPart); err != nil {
			return err
		}
	}
	c.value = nil
	if c.keyOnly {
		return nil
	}
	if c.w.index {
		c.value, err = c.st.recordAt(c.w.pkPart)
		return err
	}
	c.value, err = c.st.codec.Unmarshal(c.w.v)
	return err
}

func (c *Cursor) fail(err error) {
	c.err = err
	c.release()
}

func (c *Cursor) release() {
	if c.closed {
		return
	}
	c.closed = true
	c.key, c.primaryKey, c.value = nil, nil, nil
	_ = c.tx.Rollback()
}

// Close releases the cursor's transaction. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.release()
	return nil
}
