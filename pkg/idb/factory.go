package idb

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"idbkit/internal/keyenc"
	"idbkit/internal/logging"
	boltstore "idbkit/internal/store/bolt"
)

var logger = logging.For("idb")

const fileExt = ".db"

// Factory hands out Database handles for files kept in one directory.
type Factory struct {
	dir  string
	opts options
}

// NewFactory returns a factory rooted at dir.
func NewFactory(dir string, opts ...Option) *Factory {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Factory{dir: dir, opts: o}
}

// Dir returns the directory holding the database files.
func (f *Factory) Dir() string { return f.dir }

// Database returns a closed handle for name at version. A version below 1
// means 1.
func (f *Factory) Database(name string, version int) *Database {
	if version < 1 {
		version = 1
	}
	return &Database{
		name:    name,
		version: version,
		path:    f.path(name),
		opts:    f.opts,
		log:     logger.With("db", name),
	}
}

// Databases lists the names of the databases in the directory.
func (f *Factory) Databases() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteDatabase removes a database file. Open handles on it must be closed
// first.
func (f *Factory) DeleteDatabase(name string) error {
	return boltstore.Remove(f.path(name))
}

// Cmp orders two keys the way collections and indexes do.
func (f *Factory) Cmp(a, b any) (int, error) {
	c, err := keyenc.Compare(a, b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrData, err)
	}
	return c, nil
}

func (f *Factory) path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+fileExt)
}

// StoredVersion returns the schema version recorded in the named database,
// or 0 when the database does not exist. It fails with ErrBlocked while
// another connection holds the file.
func (f *Factory) StoredVersion(name string) (int, error) {
	path := f.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	store, err := boltstore.Open(path, boltstore.Options{Timeout: f.opts.openTimeout, NoSync: f.opts.noSync})
	if err != nil {
		return 0, err
	}
	defer store.Close()
	var version int
	err = store.View(func(tx *bolt.Tx) error {
		version = readVersion(tx)
		return nil
	})
	return version, err
}
