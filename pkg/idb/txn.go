package idb

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	bolt "go.etcd.io/bbolt"

	"idbkit/internal/keyenc"
)

// maxGeneratedKey is the largest key a key generator hands out.
const maxGeneratedKey = 1 << 53

// storeTx binds one collection to a bolt transaction.
type storeTx struct {
	tx      *bolt.Tx
	codec   Codec
	schema  *storeSchema
	root    *bolt.Bucket
	records *bolt.Bucket
}

// openStoreTx checks that every name exists and binds the first one.
func openStoreTx(tx *bolt.Tx, codec Codec, names []string) (*storeTx, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no collection named", ErrNotFound)
	}
	for _, name := range names[1:] {
		if tx.Bucket(storeBucketName(name)) == nil {
			return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
		}
	}
	schema, err := loadSchema(tx, names[0])
	if err != nil {
		return nil, err
	}
	root := tx.Bucket(storeBucketName(names[0]))
	if root == nil {
		return nil, fmt.Errorf("collection %q: %w", names[0], ErrNotFound)
	}
	records := root.Bucket(recordsBucket)
	if records == nil {
		return nil, fmt.Errorf("collection %q: missing records bucket", names[0])
	}
	return &storeTx{tx: tx, codec: codec, schema: schema, root: root, records: records}, nil
}

func (s *storeTx) indexBucket(name string) (*bolt.Bucket, IndexInfo, error) {
	idx, ok := s.schema.indexes[name]
	if !ok {
		return nil, IndexInfo{}, fmt.Errorf("index %q on %q: %w", name, s.schema.name, ErrNotFound)
	}
	b := s.root.Bucket(indexBucketName(name))
	if b == nil {
		return nil, IndexInfo{}, fmt.Errorf("index %q on %q: missing bucket", name, s.schema.name)
	}
	return b, idx, nil
}

// write stores value under key (or the key derived from the key path or the
// key generator) and maintains every index. It returns the record's key.
func (s *storeTx) write(value, key any, overwrite bool) (any, error) {
	doc, err := s.codec.Normalize(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}

	kp := s.schema.keyPath
	switch {
	case key != nil && !kp.IsZero():
		return nil, fmt.Errorf("%w: explicit key given for collection %q with key path %s", ErrData, s.schema.name, kp)
	case key == nil && kp.IsZero():
		if !s.schema.autoIncrement {
			return nil, fmt.Errorf("%w: collection %q has no key path or key generator and no key was given", ErrData, s.schema.name)
		}
		if key, err = s.nextKey(); err != nil {
			return nil, err
		}
	case key == nil:
		k, ok := kp.extract(doc)
		switch {
		case ok:
			key = k
		case s.schema.autoIncrement:
			if key, err = s.nextKey(); err != nil {
				return nil, err
			}
			if err := inject(doc, kp.paths[0], key); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: record has no valid key at %s", ErrData, kp)
		}
	}

	encKey, err := keyenc.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}
	key, _, _ = keyenc.Decode(encKey)
	if s.schema.autoIncrement {
		if err := s.bumpGenerator(key); err != nil {
			return nil, err
		}
	}

	if old := s.records.Get(encKey); old != nil {
		if !overwrite {
			return nil, fmt.Errorf("%w: key %v already exists in %q", ErrConstraint, key, s.schema.name)
		}
		if err := s.removeIndexEntries(old, encKey); err != nil {
			return nil, err
		}
	}

	data, err := s.codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}
	for _, name := range s.schema.indexNames() {
		if err := s.addIndexEntries(s.schema.indexes[name], doc, encKey); err != nil {
			return nil, err
		}
	}
	if err := s.records.Put(encKey, data); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *storeTx) nextKey() (any, error) {
	if s.records.Sequence() >= maxGeneratedKey {
		return nil, fmt.Errorf("%w: key generator of %q exhausted", ErrConstraint, s.schema.name)
	}
	n, err := s.records.NextSequence()
	if err != nil {
		return nil, err
	}
	return float64(n), nil
}

// bumpGenerator moves the key generator past an explicit numeric key.
func (s *storeTx) bumpGenerator(key any) error {
	f, ok := key.(float64)
	if !ok || f < float64(s.records.Sequence())+1 {
		return nil
	}
	return s.records.SetSequence(uint64(math.Min(math.Floor(f), maxGeneratedKey)))
}

// indexKeys returns the encoded index keys a record contributes to idx.
// Records without a valid key at the index's key path are not indexed.
func indexKeys(idx IndexInfo, doc any) [][]byte {
	if idx.MultiEntry && !idx.KeyPath.IsArray() {
		v, ok := evaluate(doc, idx.KeyPath.paths[0])
		if !ok {
			return nil
		}
		if list, isList := v.([]any); isList {
			var out [][]byte
			seen := map[string]bool{}
			for _, e := range list {
				enc, err := keyenc.Encode(e)
				if err != nil || seen[string(enc)] {
					continue
				}
				seen[string(enc)] = true
				out = append(out, enc)
			}
			return out
		}
	}
	k, ok := idx.KeyPath.extract(doc)
	if !ok {
		return nil
	}
	enc, err := keyenc.Encode(k)
	if err != nil {
		return nil
	}
	return [][]byte{enc}
}

func (s *storeTx) addIndexEntries(idx IndexInfo, doc any, encPK []byte) error {
	b := s.root.Bucket(indexBucketName(idx.Name))
	if b == nil {
		return fmt.Errorf("index %q on %q: missing bucket", idx.Name, s.schema.name)
	}
	for _, ik := range indexKeys(idx, doc) {
		if idx.Unique {
			k, _ := b.Cursor().Seek(ik)
			if k != nil && bytes.HasPrefix(k, ik) && !bytes.Equal(k[len(ik):], encPK) {
				v, _, _ := keyenc.Decode(ik)
				return fmt.Errorf("%w: unique index %q already contains %v", ErrConstraint, idx.Name, v)
			}
		}
		entry := make([]byte, 0, len(ik)+len(encPK))
		entry = append(append(entry, ik...), encPK...)
		if err := b.Put(entry, encPK); err != nil {
			return err
		}
	}
	return nil
}

func (s *storeTx) removeIndexEntries(data, encPK []byte) error {
	if len(s.schema.indexes) == 0 {
		return nil
	}
	doc, err := s.codec.Unmarshal(data)
	if err != nil {
		return err
	}
	for _, idx := range s.schema.indexes {
		b := s.root.Bucket(indexBucketName(idx.Name))
		if b == nil {
			continue
		}
		for _, ik := range indexKeys(idx, doc) {
			entry := make([]byte, 0, len(ik)+len(encPK))
			entry = append(append(entry, ik...), encPK...)
			if err := b.Delete(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// populateIndex indexes every existing record.
func (s *storeTx) populateIndex(idx IndexInfo) error {
	c := s.records.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		doc, err := s.codec.Unmarshal(v)
		if err != nil {
			return err
		}
		pk := append([]byte(nil), k...)
		if err := s.addIndexEntries(idx, doc, pk); err != nil {
			return err
		}
	}
	return nil
}

func (s *storeTx) deleteKey(encKey []byte) error {
	data := s.records.Get(encKey)
	if data == nil {
		return nil
	}
	if err := s.removeIndexEntries(data, encKey); err != nil {
		return err
	}
	return s.records.Delete(encKey)
}

// deleteRange removes every record whose primary key lies in sp.
func (s *storeTx) deleteRange(sp span) (int, error) {
	w := newWalker(s.records.Cursor(), sp, Next, false)
	var keys [][]byte
	for {
		ok, err := w.step()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		keys = append(keys, append([]byte(nil), w.keyPart...))
	}
	for _, k := range keys {
		if err := s.deleteKey(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// clear empties the collection and its indexes. The key generator keeps its
// position.
func (s *storeTx) clear() error {
	seq := s.records.Sequence()
	if err := s.root.DeleteBucket(recordsBucket); err != nil {
		return err
	}
	records, err := s.root.CreateBucket(recordsBucket)
	if err != nil {
		return err
	}
	if err := records.SetSequence(seq); err != nil {
		return err
	}
	s.records = records
	for name := range s.schema.indexes {
		bn := indexBucketName(name)
		if err := s.root.DeleteBucket(bn); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		if _, err := s.root.CreateBucket(bn); err != nil {
			return err
		}
	}
	return nil
}

// walk opens a walker over the collection, or over one of its indexes.
func (s *storeTx) walk(index string, sp span, dir Direction) (*walker, error) {
	if index == "" {
		return newWalker(s.records.Cursor(), sp, dir, false), nil
	}
	b, _, err := s.indexBucket(index)
	if err != nil {
		return nil, err
	}
	return newWalker(b.Cursor(), sp, dir, true), nil
}

// recordAt returns the decoded record stored under an encoded primary key.
func (s *storeTx) recordAt(encPK []byte) (any, error) {
	data := s.records.Get(encPK)
	if data == nil {
		return nil, fmt.Errorf("index entry points at missing record in %q", s.schema.name)
	}
	return s.codec.Unmarshal(data)
}
