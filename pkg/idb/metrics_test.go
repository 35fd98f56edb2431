package idb

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	db := openDB(t, testFactory(t), "shop", 1, func(table TableFactory) {
		usersSchema(table)
		table("orders").Create(WithAutoIncrement())
	})
	seedUsers(t, mustTable(t, db, "users"), 3)
	orders := mustTable(t, db, "orders")
	mustWait(t, orders.Add(testCtx(t), "a", nil))
	mustWait(t, orders.Add(testCtx(t), "b", nil))

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(db); err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := `
# HELP idb_records Number of records per collection.
# TYPE idb_records gauge
idb_records{db="shop",table="orders"} 2
idb_records{db="shop",table="users"} 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "idb_records"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(db, "idb_boltdb_reads_total", "idb_boltdb_writes_total"); n != 2 {
		t.Fatalf("engine metrics: got %d, want 2", n)
	}
}

func TestCollectorClosed(t *testing.T) {
	db := openDB(t, testFactory(t), "shop", 1, usersSchema)
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := testutil.CollectAndCount(db); n != 0 {
		t.Fatalf("metrics from a closed database: got %d, want 0", n)
	}
}
