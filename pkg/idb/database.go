package idb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	boltstore "idbkit/internal/store/bolt"
)

// State is the lifecycle state of a Database handle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// conn is one open (or opening) session on the database file. It is cached
// by the handle as soon as Open is called; users wait on ready.
type conn struct {
	id     string
	ready  chan struct{}
	store  *boltstore.Store
	err    error
	closed atomic.Bool
	req    *Request[*Database]
}

func (c *conn) wait(ctx context.Context) (*boltstore.Store, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.store, nil
}

// Database is a handle on one named, versioned database. It starts closed;
// Open connects it in the background.
type Database struct {
	name    string
	version int
	path    string
	opts    options
	log     *slog.Logger

	mu    sync.Mutex
	state State
	conn  *conn
}

// Name returns the database name.
func (d *Database) Name() string { return d.name }

// Version returns the schema version the handle opens at.
func (d *Database) Version() int { return d.version }

// State returns the current lifecycle state.
func (d *Database) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Open connects the handle. When the stored version is lower than the
// handle's version, upgrade runs inside the upgrade transaction; any schema
// editor error rolls the whole upgrade back.
//
// Open returns at once. Calling it on an open handle is a no-op, and while
// an open is in flight the pending request is returned again. Table may be
// used as soon as Open has been called.
func (d *Database) Open(ctx context.Context, upgrade UpgradeFunc) *Request[*Database] {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateOpen:
		if d.conn != nil && d.conn.err == nil && !d.conn.closed.Load() {
			return resolvedRequest(d, nil)
		}
	case StateOpening:
		return d.conn.req
	}

	c := &conn{
		id:    uuid.NewString(),
		ready: make(chan struct{}),
		req:   newRequest[*Database](),
	}
	d.conn = c
	d.state = StateOpening
	go d.open(ctx, c, upgrade)
	return c.req
}

func (d *Database) open(ctx context.Context, c *conn, upgrade UpgradeFunc) {
	store, err := d.connect(ctx, upgrade)

	d.mu.Lock()
	c.store, c.err = store, err
	close(c.ready)
	superseded := d.conn != c
	if !superseded {
		if err != nil {
			d.state = StateClosed
			d.conn = nil
		} else {
			d.state = StateOpen
		}
	}
	d.mu.Unlock()

	switch {
	case err != nil:
		d.report("open", err)
		c.req.resolve(nil, err)
	case superseded:
		// Close ran while opening and releases the store itself.
		c.req.resolve(nil, ErrClosed)
	default:
		d.log.Info("database opened", "version", d.version, "conn", c.id)
		c.req.resolve(d, nil)
	}
}

func (d *Database) connect(ctx context.Context, upgrade UpgradeFunc) (*boltstore.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store, err := boltstore.Open(d.path, boltstore.Options{
		Timeout: d.opts.openTimeout,
		NoSync:  d.opts.noSync,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Update(func(tx *bolt.Tx) error {
		return d.upgrade(tx, upgrade)
	}); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (d *Database) upgrade(tx *bolt.Tx, fn UpgradeFunc) error {
	old := readVersion(tx)
	switch {
	case d.version < old:
		return fmt.Errorf("%w: requested %d, stored %d", ErrVersion, d.version, old)
	case d.version == old:
		return nil
	}

	d.log.Info("upgrade needed", "old_version", old, "new_version", d.version)
	u := &upgradeTx{
		tx:         tx,
		codec:      d.opts.codec,
		oldVersion: old,
		newVersion: d.version,
		log:        d.log,
	}
	if fn != nil {
		fn(u.table)
	}
	if err := u.err(); err != nil {
		return fmt.Errorf("upgrade to version %d aborted: %w", d.version, err)
	}
	return writeVersion(tx, d.version)
}

// Table returns an accessor for the named collection. Extra names widen the
// scope of every transaction the accessor opens. Table fails with ErrNotOpen
// when Open was never called; it does not wait for Open to finish.
func (d *Database) Table(name string, more ...string) (*Table, error) {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c == nil {
		return nil, ErrNotOpen
	}
	names := append([]string{name}, more...)
	return &Table{source: source{db: d, conn: c, names: names}}, nil
}

// StoreNames lists the collections, waiting for a pending Open.
func (d *Database) StoreNames(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c == nil {
		return nil, ErrNotOpen
	}
	store, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	err = store.View(func(tx *bolt.Tx) error {
		names = storeNames(tx)
		return nil
	})
	return names, engineErr(err)
}

// Delete closes this handle's connection and removes the database file.
func (d *Database) Delete(ctx context.Context) *Request[struct{}] {
	req := newRequest[struct{}]()
	go func() {
		err := ctx.Err()
		if err == nil {
			err = d.Close()
		}
		if err == nil {
			err = boltstore.Remove(d.path)
		}
		if err != nil {
			d.report("delete", err)
		} else {
			d.log.Info("database deleted")
		}
		req.resolve(struct{}{}, err)
	}()
	return req
}

// Close releases the connection. It waits for an in-flight Open and for open
// cursors. Closing a closed handle is a no-op.
func (d *Database) Close() error {
	d.mu.Lock()
	c := d.conn
	d.conn = nil
	d.state = StateClosed
	d.mu.Unlock()

	if c == nil {
		return nil
	}
	c.closed.Store(true)
	<-c.ready
	if c.store == nil {
		return nil
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", d.name, err)
	}
	d.log.Info("database closed", "conn", c.id)
	return nil
}

func (d *Database) report(op string, err error) {
	if d.opts.onError != nil {
		d.opts.onError(op, err)
		return
	}
	d.log.Error("request failed", "op", op, "err", err)
}
