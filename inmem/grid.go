// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package inmem provides the in-process cache-grid backend. It mirrors
// the isolation the boltdb backend gets for free: one writer at a time,
// and readers pin an immutable snapshot, so a transaction's writes are
// staged privately and published all-or-nothing at commit. Useful for
// tests and non-durable runs.
package inmem

import (
	"sort"
	"sync"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/errors"
)

// Ensure type implements interface.
var _ conduit.Grid = (*Grid)(nil)

// snapshot maps cache name -> key -> value. Snapshots are immutable
// once installed; commit builds a new one and swaps the pointer.
type snapshot map[string]map[string][]byte

// Grid is an in-memory conduit.Grid.
type Grid struct {
	mu     sync.RWMutex // guards snap and closed
	snap   snapshot
	closed bool

	// writer serializes writable transactions from Begin to
	// Commit/Rollback, like bolt's single-writer rule.
	writer sync.Mutex
}

// NewGrid returns a grid with one empty cache per name.
func NewGrid(caches []string) *Grid {
	snap := make(snapshot, len(caches))
	for _, cache := range caches {
		snap[cache] = map[string][]byte{}
	}
	return &Grid{snap: snap}
}

// Begin starts a transaction pinned to the current snapshot.
func (g *Grid) Begin(writable bool) (conduit.Tx, error) {
	if writable {
		g.writer.Lock()
	}
	g.mu.RLock()
	snap, closed := g.snap, g.closed
	g.mu.RUnlock()
	if closed {
		if writable {
			g.writer.Unlock()
		}
		return nil, errors.New(errors.ErrUncoded, "grid closed")
	}
	tx := &Tx{g: g, base: snap, writable: writable}
	if writable {
		tx.puts = map[string]map[string][]byte{}
		tx.dels = map[string]map[string]struct{}{}
	}
	return tx, nil
}

// Close releases the grid. Transactions begun before Close keep their
// snapshot but can no longer commit.
func (g *Grid) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

// Tx is one in-memory transaction: reads come from the pinned base
// snapshot overlaid with the Tx's own staged writes.
type Tx struct {
	g        *Grid
	base     snapshot
	writable bool
	done     bool

	puts map[string]map[string][]byte
	dels map[string]map[string]struct{}
}

func (t *Tx) cache(name string) (map[string][]byte, error) {
	c, ok := t.base[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCacheNotFound, "cache %q", name)
	}
	return c, nil
}

func (t *Tx) deleted(cache, key string) bool {
	if t.dels == nil {
		return false
	}
	_, ok := t.dels[cache][key]
	return ok
}

func (t *Tx) Get(cache string, key []byte) ([]byte, bool, error) {
	c, err := t.cache(cache)
	if err != nil {
		return nil, false, err
	}
	k := string(key)
	if t.puts != nil {
		if v, ok := t.puts[cache][k]; ok {
			return v, true, nil
		}
	}
	if t.deleted(cache, k) {
		return nil, false, nil
	}
	v, ok := c[k]
	return v, ok, nil
}

func (t *Tx) Put(cache string, key, value []byte) error {
	if err := t.stageable(cache); err != nil {
		return err
	}
	k := string(key)
	if t.dels[cache] != nil {
		delete(t.dels[cache], k)
	}
	if t.puts[cache] == nil {
		t.puts[cache] = map[string][]byte{}
	}
	t.puts[cache][k] = append([]byte(nil), value...)
	return nil
}

func (t *Tx) PutAll(cache string, pairs []conduit.Pair) error {
	for _, p := range pairs {
		if err := t.Put(cache, p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) RemoveAll(cache string, pred conduit.Predicate) (int, error) {
	if err := t.stageable(cache); err != nil {
		return 0, err
	}
	removed := 0
	err := t.ForEach(cache, func(key, value []byte) error {
		if !pred(key, value) {
			return nil
		}
		k := string(key)
		if t.puts[cache] != nil {
			delete(t.puts[cache], k)
		}
		if t.dels[cache] == nil {
			t.dels[cache] = map[string]struct{}{}
		}
		t.dels[cache][k] = struct{}{}
		removed++
		return nil
	})
	return removed, err
}

// ForEach scans the overlaid view in key order for deterministic runs.
func (t *Tx) ForEach(cache string, fn func(key, value []byte) error) error {
	c, err := t.cache(cache)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		if !t.deleted(cache, k) {
			keys = append(keys, k)
		}
	}
	if t.puts != nil {
		for k := range t.puts[cache] {
			if _, inBase := c[k]; !inBase {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := c[k]
		if t.puts != nil {
			if pv, ok := t.puts[cache][k]; ok {
				v = pv
			}
		}
		if err := fn([]byte(k), v); err != nil {
			if err == conduit.ErrStopScan {
				return nil
			}
			return err
		}
	}
	return nil
}

// Commit publishes the staged writes by installing a new snapshot.
func (t *Tx) Commit() error {
	if !t.writable {
		return errors.New(errors.ErrUncoded, "tx not writable")
	}
	if t.done {
		return errors.New(errors.ErrUncoded, "tx already finished")
	}
	t.done = true
	defer t.g.writer.Unlock()

	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.g.closed {
		return errors.New(errors.ErrUncoded, "grid closed")
	}

	// Copy-on-write of the touched caches only; single-writer means
	// base is still current.
	next := make(snapshot, len(t.base))
	for name, c := range t.base {
		next[name] = c
	}
	touched := map[string]struct{}{}
	for name := range t.puts {
		touched[name] = struct{}{}
	}
	for name := range t.dels {
		touched[name] = struct{}{}
	}
	for name := range touched {
		c := make(map[string][]byte, len(t.base[name]))
		for k, v := range t.base[name] {
			c[k] = v
		}
		for k := range t.dels[name] {
			delete(c, k)
		}
		for k, v := range t.puts[name] {
			c[k] = v
		}
		next[name] = c
	}
	t.g.snap = next
	return nil
}

func (t *Tx) Rollback() error {
	if t.done || !t.writable {
		t.done = true
		return nil
	}
	t.done = true
	t.g.writer.Unlock()
	return nil
}

func (t *Tx) stageable(cache string) error {
	if !t.writable {
		return errors.New(errors.ErrUncoded, "tx not writable")
	}
	if t.done {
		return errors.New(errors.ErrUncoded, "tx already finished")
	}
	if _, err := t.cache(cache); err != nil {
		return err
	}
	return nil
}
