package idb

import (
	"encoding/binary"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Layout of a database file:
//
//	__idb_meta/version          big-endian uint64 schema version
//	__idb_schema/<collection>   protobuf Struct describing the collection
//	store/<collection>/records  encoded key -> encoded record; sequence is the key generator
//	store/<collection>/index/<name>
//	                            encoded index key + encoded primary key -> encoded primary key
var (
	metaBucket    = []byte("__idb_meta")
	schemaBucket  = []byte("__idb_schema")
	versionKey    = []byte("version")
	recordsBucket = []byte("records")
)

func storeBucketName(name string) []byte { return []byte("store/" + name) }
func indexBucketName(name string) []byte { return []byte("index/" + name) }

// IndexInfo describes a secondary index.
type IndexInfo struct {
	Name       string
	KeyPath    KeyPath
	Unique     bool
	MultiEntry bool
}

type storeSchema struct {
	name          string
	keyPath       KeyPath
	autoIncrement bool
	indexes       map[string]IndexInfo
}

func (s *storeSchema) indexNames() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func keyPathValue(kp KeyPath) map[string]any {
	paths := make([]any, len(kp.paths))
	for i, p := range kp.paths {
		paths[i] = p
	}
	return map[string]any{"set": kp.set, "array": kp.array, "paths": paths}
}

func keyPathFrom(m map[string]any) KeyPath {
	kp := KeyPath{}
	kp.set, _ = m["set"].(bool)
	kp.array, _ = m["array"].(bool)
	paths, _ := m["paths"].([]any)
	for _, p := range paths {
		s, _ := p.(string)
		kp.paths = append(kp.paths, s)
	}
	return kp
}

func (s *storeSchema) marshal() ([]byte, error) {
	indexes := make(map[string]any, len(s.indexes))
	for name, idx := range s.indexes {
		indexes[name] = map[string]any{
			"keyPath":    keyPathValue(idx.KeyPath),
			"unique":     idx.Unique,
			"multiEntry": idx.MultiEntry,
		}
	}
	st, err := structpb.NewStruct(map[string]any{
		"name":          s.name,
		"keyPath":       keyPathValue(s.keyPath),
		"autoIncrement": s.autoIncrement,
		"indexes":       indexes,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func unmarshalSchema(data []byte) (*storeSchema, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	m := st.AsMap()
	s := &storeSchema{indexes: map[string]IndexInfo{}}
	s.name, _ = m["name"].(string)
	kp, _ := m["keyPath"].(map[string]any)
	s.keyPath = keyPathFrom(kp)
	s.autoIncrement, _ = m["autoIncrement"].(bool)
	indexes, _ := m["indexes"].(map[string]any)
	for name, raw := range indexes {
		im, _ := raw.(map[string]any)
		ikp, _ := im["keyPath"].(map[string]any)
		idx := IndexInfo{Name: name, KeyPath: keyPathFrom(ikp)}
		idx.Unique, _ = im["unique"].(bool)
		idx.MultiEntry, _ = im["multiEntry"].(bool)
		s.indexes[name] = idx
	}
	return s, nil
}

func loadSchema(tx *bolt.Tx, name string) (*storeSchema, error) {
	b := tx.Bucket(schemaBucket)
	if b == nil {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	data := b.Get([]byte(name))
	if data == nil {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	s, err := unmarshalSchema(data)
	if err != nil {
		return nil, fmt.Errorf("collection %q: corrupt schema: %w", name, err)
	}
	return s, nil
}

func saveSchema(tx *bolt.Tx, s *storeSchema) error {
	b, err := tx.CreateBucketIfNotExists(schemaBucket)
	if err != nil {
		return err
	}
	data, err := s.marshal()
	if err != nil {
		return fmt.Errorf("encoding schema of %q: %w", s.name, err)
	}
	return b.Put([]byte(s.name), data)
}

func storeNames(tx *bolt.Tx) []string {
	var names []string
	if b := tx.Bucket(schemaBucket); b != nil {
		_ = b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	}
	return names
}

func readVersion(tx *bolt.Tx) int {
	b := tx.Bucket(metaBucket)
	if b == nil {
		return 0
	}
	v := b.Get(versionKey)
	if len(v) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(v))
}

func writeVersion(tx *bolt.Tx, version int) error {
	b, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(version))
	return b.Put(versionKey, buf[:])
}
