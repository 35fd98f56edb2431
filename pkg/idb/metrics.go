package idb

import (
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"
)

var _ prometheus.Collector = (*Database)(nil)

var (
	readsDesc = prometheus.NewDesc(
		"idb_boltdb_reads_total",
		"Total number of read transactions started on the database file.",
		[]string{"db"}, nil)

	writesDesc = prometheus.NewDesc(
		"idb_boltdb_writes_total",
		"Total number of page writes performed on the database file.",
		[]string{"db"}, nil)

	recordsDesc = prometheus.NewDesc(
		"idb_records",
		"Number of records per collection.",
		[]string{"db", "table"}, nil)
)

// Describe implements prometheus.Collector.
func (d *Database) Describe(ch chan<- *prometheus.Desc) {
	ch <- readsDesc
	ch <- writesDesc
	ch <- recordsDesc
}

// Collect implements prometheus.Collector. A handle that is not open
// reports nothing.
func (d *Database) Collect(ch chan<- prometheus.Metric) {
	d.mu.Lock()
	c, state := d.conn, d.state
	d.mu.Unlock()
	if c == nil || state != StateOpen || c.closed.Load() {
		return
	}

	stats := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(readsDesc, prometheus.CounterValue, float64(stats.TxN), d.name)
	ch <- prometheus.MustNewConstMetric(writesDesc, prometheus.CounterValue, float64(stats.TxStats.GetWrite()), d.name)

	_ = c.store.View(func(tx *bolt.Tx) error {
		for _, name := range storeNames(tx) {
			root := tx.Bucket(storeBucketName(name))
			if root == nil {
				continue
			}
			records := root.Bucket(recordsBucket)
			if records == nil {
				continue
			}
			ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(records.Stats().KeyN), d.name, name)
		}
		return nil
	})
}
