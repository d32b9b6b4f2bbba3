// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package boltdb provides the durable cache-grid backend. Every logical
// cache is a bolt bucket inside one database file, so a single bolt
// write transaction spans all of them and a Scope's multi-cache writes
// commit or roll back as one unit. Bolt serializes writers and gives
// readers a stable MVCC snapshot, which is exactly the isolation the
// domain layer requires: no dirty reads, all-or-nothing visibility at
// commit.
package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/errors"
)

// Ensure type implements interface.
var _ conduit.Grid = (*Grid)(nil)

// Grid is a bolt-backed conduit.Grid.
type Grid struct {
	db *bolt.DB

	// File path to database file.
	Path string
}

// OpenGrid opens the database file at path and creates a bucket per
// cache name. Caches not named here cannot be addressed later.
func OpenGrid(path string, caches []string) (*Grid, error) {
	g := &Grid{Path: path}

	// add the path to the problem database if we panic handling it.
	defer func() {
		r := recover()
		if r != nil {
			panic(fmt.Sprintf("conduit/boltdb/OpenGrid(path='%v') panic with '%v'", path, r))
		}
	}()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open file: %s", path)
	}
	g.db = db

	// Initialize buckets.
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, cache := range caches {
			if _, err := tx.CreateBucketIfNotExists([]byte(cache)); err != nil {
				return errors.Wrapf(err, "creating bucket %q", cache)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

// Begin starts a bolt transaction. Writable transactions are serialized
// by bolt itself; read transactions see the last committed snapshot.
func (g *Grid) Begin(writable bool) (conduit.Tx, error) {
	tx, err := g.db.Begin(writable)
	if err != nil {
		return nil, errors.Wrap(err, "beginning bolt tx")
	}
	return &Tx{tx: tx}, nil
}

// Close closes the underlying database.
func (g *Grid) Close() error {
	return g.db.Close()
}

// Size returns the number of bytes in the data file.
func (g *Grid) Size() int64 {
	tx, err := g.db.Begin(false)
	if err != nil {
		return 0
	}
	defer func() { _ = tx.Rollback() }()
	return tx.Size()
}

// Tx adapts one bolt transaction to the conduit.Tx contract.
type Tx struct {
	tx *bolt.Tx
}

func (t *Tx) bucket(cache string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(cache))
	if b == nil {
		return nil, errors.Newf(errors.ErrCacheNotFound, "cache %q", cache)
	}
	return b, nil
}

// Get returns the value stored under key. The slice is bolt-owned and
// only valid until the transaction ends; callers decode before the next
// call, per the Tx contract.
func (t *Tx) Get(cache string, key []byte) ([]byte, bool, error) {
	b, err := t.bucket(cache)
	if err != nil {
		return nil, false, err
	}
	// A presence-only row stores a nil value; Get returns nil either
	// way, so presence comes from the cursor.
	c := b.Cursor()
	k, v := c.Seek(key)
	if k == nil || string(k) != string(key) {
		return nil, false, nil
	}
	return v, true, nil
}

func (t *Tx) Put(cache string, key, value []byte) error {
	b, err := t.bucket(cache)
	if err != nil {
		return err
	}
	return errors.Wrap(b.Put(key, value), "bolt put")
}

func (t *Tx) PutAll(cache string, pairs []conduit.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	b, err := t.bucket(cache)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := b.Put(p.Key, p.Value); err != nil {
			return errors.Wrap(err, "bolt put")
		}
	}
	return nil
}

func (t *Tx) RemoveAll(cache string, pred conduit.Predicate) (int, error) {
	b, err := t.bucket(cache)
	if err != nil {
		return 0, err
	}
	removed := 0
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if !pred(k, v) {
			continue
		}
		if err := c.Delete(); err != nil {
			return removed, errors.Wrap(err, "bolt delete")
		}
		removed++
	}
	return removed, nil
}

func (t *Tx) ForEach(cache string, fn func(key, value []byte) error) error {
	b, err := t.bucket(cache)
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if err := fn(k, v); err != nil {
			if err == conduit.ErrStopScan {
				return nil
			}
			return err
		}
	}
	return nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == bolt.ErrTxClosed {
		// Rollback after Commit (or after a failed Commit, which bolt
		// rolls back itself) is a no-op, not a fault.
		return nil
	}
	return err
}
