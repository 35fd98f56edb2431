package idb

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"idbkit/internal/keyenc"
)

// source is the read side shared by Table (primary key order) and Index
// (index key order).
type source struct {
	db    *Database
	conn  *conn
	names []string
	index string
}

func (s source) label() string {
	if s.index == "" {
		return s.names[0]
	}
	return s.names[0] + "." + s.index
}

// exec runs fn in a fresh transaction scoped to the bound collections.
func (s source) exec(ctx context.Context, writable bool, fn func(*storeTx) error) error {
	store, err := s.conn.wait(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txFn := func(tx *bolt.Tx) error {
		st, err := openStoreTx(tx, s.db.opts.codec, s.names)
		if err != nil {
			return err
		}
		return fn(st)
	}
	if writable {
		return engineErr(store.Update(txFn))
	}
	return engineErr(store.View(txFn))
}

// run executes fn on its own goroutine and transaction and resolves the
// returned request with the outcome.
func run[T any](ctx context.Context, s source, op string, writable bool, fn func(*storeTx) (T, error)) *Request[T] {
	req := newRequest[T]()
	go func() {
		var out T
		err := s.exec(ctx, writable, func(st *storeTx) error {
			var err error
			out, err = fn(st)
			return err
		})
		if err != nil {
			var zero T
			out = zero
			err = fmt.Errorf("%s %s: %w", op, s.label(), err)
			s.db.report(op, err)
		}
		req.resolve(out, err)
	}()
	return req
}

// scan walks the records selected by query in ascending order, at most limit
// of them when limit > 0.
func (s source) scan(st *storeTx, query any, limit int, fn func(w *walker) error) error {
	sp, err := toSpan(query)
	if err != nil {
		return err
	}
	w, err := st.walk(s.index, sp, Next)
	if err != nil {
		return err
	}
	for n := 0; limit <= 0 || n < limit; n++ {
		ok, err := w.step()
		if err != nil || !ok {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
	}
	return nil
}

func (s source) valueAt(st *storeTx, w *walker) (any, error) {
	if w.index {
		return st.recordAt(w.pkPart)
	}
	return st.codec.Unmarshal(w.v)
}

// Count counts the records selected by query (nil selects all).
func (s source) Count(ctx context.Context, query any) *Request[int] {
	return run(ctx, s, "count", false, func(st *storeTx) (int, error) {
		n := 0
		err := s.scan(st, query, 0, func(*walker) error {
			n++
			return nil
		})
		return n, err
	})
}

// Get returns the first record selected by query, or nil.
func (s source) Get(ctx context.Context, query any) *Request[any] {
	return run(ctx, s, "get", false, func(st *storeTx) (any, error) {
		var out any
		err := s.scan(st, query, 1, func(w *walker) error {
			var err error
			out, err = s.valueAt(st, w)
			return err
		})
		return out, err
	})
}

// GetKey returns the primary key of the first record selected by query, or
// nil.
func (s source) GetKey(ctx context.Context, query any) *Request[any] {
	return run(ctx, s, "getKey", false, func(st *storeTx) (any, error) {
		var out any
		err := s.scan(st, query, 1, func(w *walker) error {
			var err error
			out, _, err = keyenc.Decode(w.pkPart)
			return err
		})
		return out, err
	})
}

// GetAll returns the records selected by query, at most count of them when
// count > 0.
func (s source) GetAll(ctx context.Context, query any, count int) *Request[[]any] {
	return run(ctx, s, "getAll", false, func(st *storeTx) ([]any, error) {
		out := []any{}
		err := s.scan(st, query, count, func(w *walker) error {
			v, err := s.valueAt(st, w)
			out = append(out, v)
			return err
		})
		return out, err
	})
}

// GetAllKeys returns the primary keys selected by query, at most count of
// them when count > 0.
func (s source) GetAllKeys(ctx context.Context, query any, count int) *Request[[]any] {
	return run(ctx, s, "getAllKeys", false, func(st *storeTx) ([]any, error) {
		out := []any{}
		err := s.scan(st, query, count, func(w *walker) error {
			k, _, err := keyenc.Decode(w.pkPart)
			out = append(out, k)
			return err
		})
		return out, err
	})
}

// OpenCursor opens a read-only cursor positioned on the first record
// selected by query in direction dir. An empty selection yields a cursor
// that is already Done.
func (s source) OpenCursor(ctx context.Context, query any, dir Direction) *Request[*Cursor] {
	return s.cursorRequest(ctx, "openCursor", query, dir, false)
}

// OpenKeyCursor is OpenCursor without loading record values.
func (s source) OpenKeyCursor(ctx context.Context, query any, dir Direction) *Request[*Cursor] {
	return s.cursorRequest(ctx, "openKeyCursor", query, dir, true)
}

func (s source) cursorRequest(ctx context.Context, op string, query any, dir Direction, keyOnly bool) *Request[*Cursor] {
	req := newRequest[*Cursor]()
	go func() {
		cur, err := s.openCursor(ctx, query, dir, keyOnly)
		if err != nil {
			err = fmt.Errorf("%s %s: %w", op, s.label(), err)
			s.db.report(op, err)
		}
		req.resolve(cur, err)
	}()
	return req
}

func (s source) openCursor(ctx context.Context, query any, dir Direction, keyOnly bool) (*Cursor, error) {
	if !dir.valid() {
		return nil, fmt.Errorf("%w: invalid cursor direction %d", ErrData, int(dir))
	}
	sp, err := toSpan(query)
	if err != nil {
		return nil, err
	}
	store, err := s.conn.wait(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := store.Begin(false)
	if err != nil {
		return nil, engineErr(err)
	}
	st, err := openStoreTx(tx, s.db.opts.codec, s.names)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	w, err := st.walk(s.index, sp, dir)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	cur := &Cursor{ctx: ctx, tx: tx, st: st, w: w, source: s.label(), keyOnly: keyOnly}
	if !cur.Continue() && cur.err != nil {
		return nil, cur.err
	}
	return cur, nil
}

// Table is the accessor for one collection (optionally scoped together with
// others). Every call runs in its own transaction: reads in a read-only one,
// writes in a read-write one. Nothing is shared between calls, so two calls
// are never atomic together.
type Table struct {
	source
}

// Names returns the bound collection names; the first is the one operated on.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Index returns a read handle ordered by the named index. A missing index is
// reported by the handle's operations.
func (t *Table) Index(name string) *Index {
	src := t.source
	src.index = name
	return &Index{source: src}
}

// KeyPath returns the collection's key path.
func (t *Table) KeyPath(ctx context.Context) (KeyPath, error) {
	var kp KeyPath
	err := t.exec(ctx, false, func(st *storeTx) error {
		kp = st.schema.keyPath
		return nil
	})
	return kp, err
}

// IndexNames returns the collection's index names in sorted order.
func (t *Table) IndexNames(ctx context.Context) ([]string, error) {
	var names []string
	err := t.exec(ctx, false, func(st *storeTx) error {
		names = st.schema.indexNames()
		return nil
	})
	return names, err
}

// Add inserts value. key must be nil for collections with a key path. The
// request fails with ErrConstraint when the key is taken.
func (t *Table) Add(ctx context.Context, value, key any) *Request[any] {
	return run(ctx, t.source, "add", true, func(st *storeTx) (any, error) {
		return st.write(value, key, false)
	})
}

// Put inserts or replaces value. key must be nil for collections with a key
// path.
func (t *Table) Put(ctx context.Context, value, key any) *Request[any] {
	return run(ctx, t.source, "put", true, func(st *storeTx) (any, error) {
		return st.write(value, key, true)
	})
}

// Delete removes the records whose keys match query (a key or KeyRange) and
// resolves with how many were removed.
func (t *Table) Delete(ctx context.Context, query any) *Request[int] {
	return run(ctx, t.source, "delete", true, func(st *storeTx) (int, error) {
		if query == nil {
			return 0, fmt.Errorf("%w: delete needs a key or key range", ErrData)
		}
		sp, err := toSpan(query)
		if err != nil {
			return 0, err
		}
		return st.deleteRange(sp)
	})
}

// Clear removes every record of the collection.
func (t *Table) Clear(ctx context.Context) *Request[struct{}] {
	return run(ctx, t.source, "clear", true, func(st *storeTx) (struct{}, error) {
		return struct{}{}, st.clear()
	})
}

// Index reads a collection in index key order. Key() on its cursors is the
// index key; GetKey and GetAllKeys return primary keys.
type Index struct {
	source
}

// Name returns the index name.
func (i *Index) Name() string { return i.index }

// Info returns the index definition.
func (i *Index) Info(ctx context.Context) (IndexInfo, error) {
	var info IndexInfo
	err := i.exec(ctx, false, func(st *storeTx) error {
		var err error
		_, info, err = st.indexBucket(i.index)
		return err
	})
	return info, err
}
