package idb

import (
	"errors"
	"fmt"
	"log/slog"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/multierr"
)

// UpgradeFunc runs inside the upgrade transaction when a database is opened
// at a version higher than the stored one. table returns a schema editor for
// the named collection.
type UpgradeFunc func(table TableFactory)

// TableFactory returns a schema editor bound to the running upgrade.
type TableFactory func(name string) *Upgrade

// StoreOption configures a collection created by Upgrade.Create.
type StoreOption func(*storeSchema)

// WithKeyPath makes records carry their own key at kp.
func WithKeyPath(kp KeyPath) StoreOption {
	return func(s *storeSchema) { s.keyPath = kp }
}

// WithAutoIncrement attaches a key generator to the collection.
func WithAutoIncrement() StoreOption {
	return func(s *storeSchema) { s.autoIncrement = true }
}

// IndexOption configures an index created by Upgrade.CreateIndex.
type IndexOption func(*IndexInfo)

// Unique rejects two records with the same index key.
func Unique() IndexOption {
	return func(i *IndexInfo) { i.Unique = true }
}

// MultiEntry indexes every element of an array value separately.
func MultiEntry() IndexOption {
	return func(i *IndexInfo) { i.MultiEntry = true }
}

type upgradeTx struct {
	tx         *bolt.Tx
	codec      Codec
	oldVersion int
	newVersion int
	log        *slog.Logger
	editors    []*Upgrade
	stores     map[string]*storeTx
}

// bind returns the collection shared by every editor of name in this
// upgrade, so schema changes made through one editor are seen by the others.
func (u *upgradeTx) bind(name string) (*storeTx, error) {
	if st, ok := u.stores[name]; ok {
		return st, nil
	}
	st, err := openStoreTx(u.tx, u.codec, []string{name})
	if err != nil {
		return nil, err
	}
	if u.stores == nil {
		u.stores = map[string]*storeTx{}
	}
	u.stores[name] = st
	return st, nil
}

// unbind detaches every editor of a deleted collection. They must call Create
// again before editing indexes.
func (u *upgradeTx) unbind(name string) {
	delete(u.stores, name)
	for _, e := range u.editors {
		if e.name == name {
			e.store = nil
		}
	}
}

func (u *upgradeTx) table(name string) *Upgrade {
	u.log.Debug("upgrade table", "table", name)
	e := &Upgrade{name: name, up: u}
	u.editors = append(u.editors, e)
	return e
}

func (u *upgradeTx) err() error {
	var err error
	for _, e := range u.editors {
		err = multierr.Append(err, e.err)
	}
	return err
}

// Upgrade edits one collection during an upgrade. Methods returning *Upgrade
// chain; the first failure sticks and is reported by Err. Any failure,
// including ones returned directly, aborts the upgrade.
type Upgrade struct {
	name  string
	up    *upgradeTx
	store *storeTx
	err   error
}

// Name returns the collection name.
func (u *Upgrade) Name() string { return u.name }

// Versions returns the stored version and the version being upgraded to.
func (u *Upgrade) Versions() (oldVersion, newVersion int) {
	return u.up.oldVersion, u.up.newVersion
}

// Err returns the first failure recorded by this editor.
func (u *Upgrade) Err() error { return u.err }

func (u *Upgrade) fail(err error) error {
	if u.err == nil {
		u.err = err
	}
	return err
}

// Create creates the collection unless it exists, and binds the editor to
// it either way. Options are ignored for an existing collection.
func (u *Upgrade) Create(opts ...StoreOption) *Upgrade {
	if u.err != nil {
		return u
	}
	st, err := u.up.bind(u.name)
	if err == nil {
		u.store = st
		return u
	}
	if !errors.Is(err, ErrNotFound) {
		u.fail(err)
		return u
	}

	schema := &storeSchema{name: u.name, indexes: map[string]IndexInfo{}}
	for _, opt := range opts {
		opt(schema)
	}
	if err := schema.keyPath.validate(); err != nil {
		u.fail(err)
		return u
	}
	if schema.autoIncrement && (schema.keyPath.IsArray() || (!schema.keyPath.IsZero() && schema.keyPath.paths[0] == "")) {
		u.fail(fmt.Errorf("%w: key generator needs a non-empty, non-array key path", ErrData))
		return u
	}

	root, err := u.up.tx.CreateBucket(storeBucketName(u.name))
	if err != nil {
		u.fail(err)
		return u
	}
	if _, err := root.CreateBucket(recordsBucket); err != nil {
		u.fail(err)
		return u
	}
	if err := saveSchema(u.up.tx, schema); err != nil {
		u.fail(err)
		return u
	}
	if u.store, err = u.up.bind(u.name); err != nil {
		u.fail(err)
		return u
	}
	u.up.log.Info("collection created", "table", u.name, "key_path", schema.keyPath.String(), "auto_increment", schema.autoIncrement)
	return u
}

// Delete removes the collection and its records.
func (u *Upgrade) Delete() error {
	if err := u.up.tx.DeleteBucket(storeBucketName(u.name)); err != nil {
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return u.fail(fmt.Errorf("collection %q: %w", u.name, ErrNotFound))
		}
		return u.fail(err)
	}
	if b := u.up.tx.Bucket(schemaBucket); b != nil {
		if err := b.Delete([]byte(u.name)); err != nil {
			return u.fail(err)
		}
	}
	u.up.unbind(u.name)
	u.up.log.Info("collection deleted", "table", u.name)
	return nil
}

func (u *Upgrade) unbound() error {
	return fmt.Errorf("%w: collection %q is not bound; call Create first", ErrInvalidState, u.name)
}

// Index returns the definition of an index of the bound collection.
func (u *Upgrade) Index(name string) (IndexInfo, error) {
	if u.store == nil {
		return IndexInfo{}, u.fail(u.unbound())
	}
	idx, ok := u.store.schema.indexes[name]
	if !ok {
		return IndexInfo{}, u.fail(fmt.Errorf("index %q on %q: %w", name, u.name, ErrNotFound))
	}
	return idx, nil
}

// CreateIndex creates an index and fills it from the existing records. When
// an index with the same name exists it is returned unchanged, even if its
// key path or options differ.
func (u *Upgrade) CreateIndex(name string, keyPath KeyPath, opts ...IndexOption) (IndexInfo, error) {
	if u.store == nil {
		return IndexInfo{}, u.fail(u.unbound())
	}
	want := IndexInfo{Name: name, KeyPath: keyPath}
	for _, opt := range opts {
		opt(&want)
	}
	if existing, ok := u.store.schema.indexes[name]; ok {
		if !existing.KeyPath.Equal(want.KeyPath) || existing.Unique != want.Unique || existing.MultiEntry != want.MultiEntry {
			u.up.log.Warn("index exists with a different definition; keeping it",
				"table", u.name, "index", name,
				"key_path", existing.KeyPath.String(), "requested_key_path", want.KeyPath.String())
		}
		return existing, nil
	}

	if keyPath.IsZero() {
		return IndexInfo{}, u.fail(fmt.Errorf("%w: index %q needs a key path", ErrData, name))
	}
	if err := keyPath.validate(); err != nil {
		return IndexInfo{}, u.fail(err)
	}
	if want.MultiEntry && keyPath.IsArray() {
		return IndexInfo{}, u.fail(fmt.Errorf("%w: multi-entry index %q cannot use an array key path", ErrData, name))
	}

	if _, err := u.store.root.CreateBucket(indexBucketName(name)); err != nil {
		return IndexInfo{}, u.fail(err)
	}
	u.store.schema.indexes[name] = want
	if err := u.store.populateIndex(want); err != nil {
		return IndexInfo{}, u.fail(fmt.Errorf("populating index %q: %w", name, err))
	}
	if err := saveSchema(u.up.tx, u.store.schema); err != nil {
		return IndexInfo{}, u.fail(err)
	}
	u.up.log.Info("index created", "table", u.name, "index", name, "key_path", keyPath.String(), "unique", want.Unique)
	return want, nil
}

// DeleteIndex removes an index of the bound collection.
func (u *Upgrade) DeleteIndex(name string) *Upgrade {
	if u.err != nil {
		return u
	}
	if u.store == nil {
		u.fail(u.unbound())
		return u
	}
	if _, ok := u.store.schema.indexes[name]; !ok {
		u.fail(fmt.Errorf("index %q on %q: %w", name, u.name, ErrNotFound))
		return u
	}
	if err := u.store.root.DeleteBucket(indexBucketName(name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		u.fail(err)
		return u
	}
	delete(u.store.schema.indexes, name)
	if err := saveSchema(u.up.tx, u.store.schema); err != nil {
		u.fail(err)
		return u
	}
	u.up.log.Info("index deleted", "table", u.name, "index", name)
	return u
}
