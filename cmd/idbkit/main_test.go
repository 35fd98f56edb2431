package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"idbkit/internal/console"
	"idbkit/pkg/idb"
)

func TestOpenDatabaseStoredVersion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f := idb.NewFactory(t.TempDir(), idb.WithNoSync(true))

	db, err := openDatabase(ctx, f, "app", 0)
	if err != nil {
		t.Fatalf("openDatabase new: %v", err)
	}
	if db.Version() != 1 {
		t.Fatalf("new database version: got %d, want 1", db.Version())
	}
	_ = db.Close()

	db, err = openDatabase(ctx, f, "app", 3)
	if err != nil {
		t.Fatalf("openDatabase v3: %v", err)
	}
	_ = db.Close()

	db, err = openDatabase(ctx, f, "app", 0)
	if err != nil {
		t.Fatalf("openDatabase stored: %v", err)
	}
	defer db.Close()
	if db.Version() != 3 {
		t.Fatalf("stored version: got %d, want 3", db.Version())
	}
}

func TestSessionCollectorFollowsUpgrades(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f := idb.NewFactory(t.TempDir(), idb.WithNoSync(true))
	db, err := openDatabase(ctx, f, "app", 0)
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	session := console.NewSession(f, db)
	defer session.Close()

	c := sessionCollector{session}
	if n := testutil.CollectAndCount(c, "idb_records"); n != 0 {
		t.Fatalf("records metrics before create: got %d, want 0", n)
	}
	err = session.Upgrade(ctx, func(table idb.TableFactory) {
		table("notes").Create(idb.WithAutoIncrement())
	})
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if n := testutil.CollectAndCount(c, "idb_records"); n != 1 {
		t.Fatalf("records metrics after create: got %d, want 1", n)
	}
}
