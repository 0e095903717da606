// Package cursor persists the set of spool files the collector has
// already processed, so a restart does not re-deliver old events. The
// matcher core itself never touches this store.
package cursor

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketProcessed = []byte("processed_files")

// DB is a durable processed-file cursor backed by bbolt.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the cursor database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cursor: cannot open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProcessed)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cursor: cannot create bucket: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// MarkProcessed records a spool filename as processed, stamped with the
// current time.
func (d *DB) MarkProcessed(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcessed)
		return b.Put([]byte(name), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// IsProcessed reports whether a spool filename was already processed.
func (d *DB) IsProcessed(name string) (bool, error) {
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketProcessed).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

// Forget removes a filename from the processed set.
func (d *DB) Forget(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcessed).Delete([]byte(name))
	})
}

// Count returns the number of processed entries.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketProcessed).Stats().KeyN
		return nil
	})
	return n, err
}
