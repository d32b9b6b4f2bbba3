// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"github.com/pkg/errors"
)

// writable initializes Tx that update, use !writable for read-only.
const writable = true

// ErrStopScan may be returned by a ForEach callback to terminate the
// scan early. ForEach swallows it and returns nil.
var ErrStopScan = errors.New("stop scan")

// Pair is a single key/value entry for bulk writes.
type Pair struct {
	Key   []byte
	Value []byte
}

// Predicate selects entries during a RemoveAll scan. Both slices are
// only valid for the duration of the call.
type Predicate func(key, value []byte) bool

// Tx is one transaction against the grid. Within a Tx, writes are
// visible to subsequent reads on the same Tx; other transactions
// observe them all-or-nothing at Commit. Every method is a potentially
// blocking remote call; callers must not hold in-process locks across
// them.
//
// Caches are addressed by name. Addressing a cache that was not created
// when the grid was opened is a coded CacheNotFound error, never a
// silent miss.
type Tx interface {
	// Get returns the value stored under key, and whether it was
	// present. The returned slice is only valid until the next call on
	// the Tx.
	Get(cache string, key []byte) ([]byte, bool, error)

	// Put upserts a single entry.
	Put(cache string, key, value []byte) error

	// PutAll upserts a batch of entries. Outside a committed Tx there
	// is no partial-application guarantee. An empty batch is a no-op.
	PutAll(cache string, pairs []Pair) error

	// RemoveAll deletes every entry matching pred and reports how many
	// were removed. Zero matches is a no-op, not an error.
	RemoveAll(cache string, pred Predicate) (int, error)

	// ForEach scans the cache in key order where the backend supports
	// it. The callback's slices are only valid for the duration of the
	// call; return ErrStopScan to end the scan early.
	ForEach(cache string, fn func(key, value []byte) error) error

	// Commit makes the writes in the Tx visible to subsequent
	// transactions.
	Commit() error

	// Rollback discards the writes in the Tx. It must be called at the
	// end of read-only transactions, and is safe to call after Commit.
	Rollback() error
}

// Grid is the cache grid as seen by this layer: a remote shared
// resource that opens transactions. Backends live in the boltdb and
// inmem packages.
type Grid interface {
	// Begin starts a transaction. Write transactions are serialized by
	// the backend; read transactions observe a stable snapshot.
	Begin(writable bool) (Tx, error)

	// Close releases the grid. In-flight transactions are invalidated.
	Close() error
}
