package idb

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// testCtx returns a context that is cancelled when the test ends.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testFactory(t *testing.T, opts ...Option) *Factory {
	t.Helper()
	base := []Option{WithNoSync(true), WithOpenTimeout(time.Second)}
	return NewFactory(t.TempDir(), append(base, opts...)...)
}

// openDB opens name at version on f and closes it when the test ends.
func openDB(t *testing.T, f *Factory, name string, version int, up UpgradeFunc) *Database {
	t.Helper()
	db := f.Database(name, version)
	if _, err := db.Open(testCtx(t), up).Wait(testCtx(t)); err != nil {
		t.Fatalf("Open(%s, %d): %v", name, version, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustTable(t *testing.T, db *Database, name string, more ...string) *Table {
	t.Helper()
	tbl, err := db.Table(name, more...)
	if err != nil {
		t.Fatalf("Table(%s): %v", name, err)
	}
	return tbl
}

func mustWait[T any](t *testing.T, r *Request[T]) T {
	t.Helper()
	v, err := r.Wait(testCtx(t))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return v
}

func waitErr[T any](t *testing.T, r *Request[T]) error {
	t.Helper()
	_, err := r.Wait(testCtx(t))
	if err == nil {
		t.Fatal("expected request to fail")
	}
	return err
}

// usersSchema creates a "users" collection keyed by "id" with an "age" index
// and a unique "email" index.
func usersSchema(table TableFactory) {
	users := table("users").Create(WithKeyPath(Path("id")))
	users.CreateIndex("by_age", Path("age"))
	users.CreateIndex("by_email", Path("email"), Unique())
}

// seedUsers puts users with ids 1..n; age cycles through 20..24.
func seedUsers(t *testing.T, tbl *Table, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		mustWait(t, tbl.Put(testCtx(t), map[string]any{
			"id":    i,
			"name":  fmt.Sprintf("user%02d", i),
			"age":   20 + i%5,
			"email": fmt.Sprintf("user%02d@example.com", i),
		}, nil))
	}
}

// ids extracts the "id" field of each record.
func ids(t *testing.T, data []any) []float64 {
	t.Helper()
	out := make([]float64, 0, len(data))
	for _, d := range data {
		m, ok := d.(map[string]any)
		if !ok {
			t.Fatalf("record is %T, want map[string]any", d)
		}
		id, ok := m["id"].(float64)
		if !ok {
			t.Fatalf("record id is %T, want float64", m["id"])
		}
		out = append(out, id)
	}
	return out
}

func seq(from, to float64) []float64 {
	var out []float64
	if from <= to {
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := from; i >= to; i-- {
		out = append(out, i)
	}
	return out
}
