package idb

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"idbkit/internal/logging"
)

func TestUpgradeVersions(t *testing.T) {
	f := testFactory(t)
	type versions struct{ Old, New int }
	var got []versions
	record := func(table TableFactory) {
		o, n := table("users").Create().Versions()
		got = append(got, versions{o, n})
	}

	db := openDB(t, f, "app", 1, record)
	_ = db.Close()
	db = openDB(t, f, "app", 1, record)
	_ = db.Close()
	openDB(t, f, "app", 3, record)

	want := []versions{{0, 1}, {1, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("upgrade versions (-want +got):\n%s", diff)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	db := openDB(t, testFactory(t), "app", 1, func(table TableFactory) {
		a := table("users").Create(WithKeyPath(Path("id")))
		b := table("users").Create(WithAutoIncrement())
		if a.Err() != nil || b.Err() != nil {
			t.Errorf("Create: %v, %v", a.Err(), b.Err())
		}
	})
	kp, err := mustTable(t, db, "users").KeyPath(testCtx(t))
	if err != nil {
		t.Fatalf("KeyPath: %v", err)
	}
	if !kp.Equal(Path("id")) {
		t.Fatalf("KeyPath: got %s, want id", kp)
	}
}

func TestCreateIndexOnExistingCollection(t *testing.T) {
	f := testFactory(t)
	db := openDB(t, f, "app", 1, func(table TableFactory) {
		table("users").Create(WithKeyPath(Path("id")))
	})
	seedUsers(t, mustTable(t, db, "users"), 10)
	_ = db.Close()

	db = openDB(t, f, "app", 2, func(table TableFactory) {
		if _, err := table("users").Create().CreateIndex("by_age", Path("age")); err != nil {
			t.Errorf("CreateIndex: %v", err)
		}
	})
	users := mustTable(t, db, "users")
	names, err := users.IndexNames(testCtx(t))
	if err != nil {
		t.Fatalf("IndexNames: %v", err)
	}
	if diff := cmp.Diff([]string{"by_age"}, names); diff != "" {
		t.Fatalf("IndexNames (-want +got):\n%s", diff)
	}
	// Ages cycle 20..24; ids 4 and 9 have age 24.
	got := mustWait(t, users.Index("by_age").GetAll(testCtx(t), 24, 0))
	if diff := cmp.Diff([]float64{4, 9}, ids(t, got)); diff != "" {
		t.Fatalf("populated index (-want +got):\n%s", diff)
	}
}

func TestCreateIndexNameCollision(t *testing.T) {
	capture := logging.CaptureForTest()
	defer capture.Restore()

	var first, second IndexInfo
	openDB(t, testFactory(t), "app", 1, func(table TableFactory) {
		users := table("users").Create(WithKeyPath(Path("id")))
		first, _ = users.CreateIndex("by_age", Path("age"))
		var err error
		second, err = users.CreateIndex("by_age", Path("name"), Unique())
		if err != nil {
			t.Errorf("colliding CreateIndex: %v", err)
		}
	})
	if diff := cmp.Diff(first, second, cmp.Comparer(KeyPath.Equal)); diff != "" {
		t.Fatalf("colliding index changed (-first +second):\n%s", diff)
	}
	if !capture.HasAttr(slog.LevelWarn, "index", "by_age") {
		t.Error("expected a warning about the differing definition")
	}
}

func TestIndexRequiresCreate(t *testing.T) {
	f := testFactory(t)
	db := f.Database("app", 1)
	err := waitErr(t, db.Open(testCtx(t), func(table TableFactory) {
		users := table("users")
		if _, err := users.Index("by_age"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Index without Create: got %v, want ErrInvalidState", err)
		}
		if _, err := users.CreateIndex("by_age", Path("age")); !errors.Is(err, ErrInvalidState) {
			t.Errorf("CreateIndex without Create: got %v, want ErrInvalidState", err)
		}
	}))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Open: got %v, want ErrInvalidState", err)
	}
}

func TestIndexLookup(t *testing.T) {
	openDB(t, testFactory(t), "app", 1, func(table TableFactory) {
		users := table("users").Create(WithKeyPath(Path("id")))
		users.CreateIndex("by_tag", Path("tags"), MultiEntry())
		info, err := users.Index("by_tag")
		if err != nil {
			t.Errorf("Index: %v", err)
			return
		}
		if !info.MultiEntry || info.Unique || !info.KeyPath.Equal(Path("tags")) {
			t.Errorf("Index: got %+v", info)
		}
	})
}

func TestUpgradeErrorRollsBack(t *testing.T) {
	f := testFactory(t)
	db := f.Database("app", 1)
	err := waitErr(t, db.Open(testCtx(t), func(table TableFactory) {
		table("users").Create(WithKeyPath(Path("id")))
		table("orders").Create(WithKeyPath(Paths("a", "b")), WithAutoIncrement())
		table("missing").Delete()
	}))
	if !errors.Is(err, ErrData) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open: got %v, want ErrData and ErrNotFound", err)
	}
	if n := len(multierr.Errors(errors.Unwrap(err))); n != 2 {
		t.Fatalf("combined editor errors: got %d, want 2", n)
	}

	// Nothing was committed, so the upgrade runs again from version 0.
	var old = -1
	db = openDB(t, f, "app", 1, func(table TableFactory) {
		old, _ = table("users").Versions()
	})
	if old != 0 {
		t.Fatalf("stored version after rollback: got %d, want 0", old)
	}
	names, _ := db.StoreNames(testCtx(t))
	if len(names) != 0 {
		t.Fatalf("StoreNames after rollback: got %v, want none", names)
	}
}

func TestCreateIndexValidation(t *testing.T) {
	tests := []struct {
		name string
		kp   KeyPath
		opts []IndexOption
	}{
		{"no key path", KeyPath{}, nil},
		{"bad identifier", Path("a..b"), nil},
		{"multi entry array", Paths("a", "b"), []IndexOption{MultiEntry()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testFactory(t).Database("app", 1)
			err := waitErr(t, db.Open(testCtx(t), func(table TableFactory) {
				table("users").Create().CreateIndex("idx", tt.kp, tt.opts...)
			}))
			if !errors.Is(err, ErrData) {
				t.Fatalf("Open: got %v, want ErrData", err)
			}
		})
	}
}

func TestDeleteCollectionAndIndex(t *testing.T) {
	f := testFactory(t)
	db := openDB(t, f, "app", 1, func(table TableFactory) {
		usersSchema(table)
		table("orders").Create(WithAutoIncrement())
	})
	seedUsers(t, mustTable(t, db, "users"), 3)
	_ = db.Close()

	db = openDB(t, f, "app", 2, func(table TableFactory) {
		if err := table("orders").Delete(); err != nil {
			t.Errorf("Delete: %v", err)
		}
		if err := table("users").Create().DeleteIndex("by_age").Err(); err != nil {
			t.Errorf("DeleteIndex: %v", err)
		}
	})
	names, _ := db.StoreNames(testCtx(t))
	if diff := cmp.Diff([]string{"users"}, names); diff != "" {
		t.Fatalf("StoreNames (-want +got):\n%s", diff)
	}
	users := mustTable(t, db, "users")
	idx, _ := users.IndexNames(testCtx(t))
	if diff := cmp.Diff([]string{"by_email"}, idx); diff != "" {
		t.Fatalf("IndexNames (-want +got):\n%s", diff)
	}
	if err := waitErr(t, users.Index("by_age").Count(testCtx(t), nil)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Count on deleted index: got %v, want ErrNotFound", err)
	}
	if _, err := db.Table("orders"); err != nil {
		t.Fatalf("Table: %v", err)
	}
	if err := waitErr(t, mustTable(t, db, "orders").Count(testCtx(t), nil)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Count on deleted collection: got %v, want ErrNotFound", err)
	}
}

func TestRecreateCollectionInSameUpgrade(t *testing.T) {
	f := testFactory(t)
	db := openDB(t, f, "app", 1, func(table TableFactory) {
		table("users").Create(WithKeyPath(Path("id")))
	})
	seedUsers(t, mustTable(t, db, "users"), 2)
	_ = db.Close()

	db = openDB(t, f, "app", 2, func(table TableFactory) {
		table("users").Delete()
		table("users").Create(WithAutoIncrement())
	})
	users := mustTable(t, db, "users")
	if n := mustWait(t, users.Count(testCtx(t), nil)); n != 0 {
		t.Fatalf("Count after recreate: got %d, want 0", n)
	}
	if key := mustWait(t, users.Add(testCtx(t), "x", nil)); key != float64(1) {
		t.Fatalf("generated key: got %v, want 1", key)
	}
}

func TestDeleteUnbindsOtherEditors(t *testing.T) {
	tests := []struct {
		name    string
		upgrade func(t *testing.T, table TableFactory)
	}{
		{
			name: "index after delete",
			upgrade: func(t *testing.T, table TableFactory) {
				orders := table("orders").Create(WithKeyPath(Path("id")))
				table("orders").Delete()
				orders.CreateIndex("by_total", Path("total"))
			},
		},
		{
			name: "index after recreate",
			upgrade: func(t *testing.T, table TableFactory) {
				orders := table("orders").Create(WithKeyPath(Path("id")))
				table("orders").Delete()
				table("orders").Create()
				orders.CreateIndex("by_total", Path("total"))
			},
		},
		{
			name: "lookup after delete",
			upgrade: func(t *testing.T, table TableFactory) {
				orders := table("orders").Create(WithKeyPath(Path("id")))
				orders.CreateIndex("by_total", Path("total"))
				table("orders").Delete()
				if _, err := orders.Index("by_total"); err == nil {
					t.Error("Index on a deleted collection: got nil error")
				}
				orders.DeleteIndex("by_total")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFactory(t)
			db := openDB(t, f, "app", 1, func(table TableFactory) {
				table("orders").Create(WithKeyPath(Path("id")))
			})
			_ = db.Close()

			db = f.Database("app", 2)
			err := waitErr(t, db.Open(testCtx(t), func(table TableFactory) {
				tt.upgrade(t, table)
			}))
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("Open: got %v, want ErrInvalidState", err)
			}
			if db.State() != StateClosed {
				t.Fatalf("State after failed upgrade: got %v, want closed", db.State())
			}
			v, err := f.StoredVersion("app")
			if err != nil {
				t.Fatalf("StoredVersion: %v", err)
			}
			if v != 1 {
				t.Fatalf("stored version: got %d, want 1", v)
			}
		})
	}
}
