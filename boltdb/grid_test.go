// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package boltdb_test

import (
	"path/filepath"
	"testing"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/boltdb"
	"github.com/conduitgrid/conduit/errors"
)

// MustOpenNewGrid returns a new grid in a temporary directory.
func MustOpenNewGrid(tb testing.TB) *boltdb.Grid {
	tb.Helper()
	g, err := boltdb.OpenGrid(filepath.Join(tb.TempDir(), "conduit.db"), conduit.CacheNames())
	if err != nil {
		tb.Fatal(err)
	}
	return g
}

func TestGrid_PutGet(t *testing.T) {
	g := MustOpenNewGrid(t)
	defer g.Close()

	tx, err := g.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(conduit.CacheArticles, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	// Presence-only rows store a nil value and must still read as
	// present.
	if err := tx.Put(conduit.CacheTags, []byte("go"), nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = g.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if v, ok, err := tx.Get(conduit.CacheArticles, []byte("k")); err != nil {
		t.Fatal(err)
	} else if !ok || string(v) != "v" {
		t.Fatalf("Get()=%q,%v, want %q,true", v, ok, "v")
	}
	if _, ok, err := tx.Get(conduit.CacheTags, []byte("go")); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatal("presence-only row should read as present")
	}
	if _, ok, err := tx.Get(conduit.CacheTags, []byte("rust")); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("missing key should read as absent")
	}
}

func TestGrid_UnknownCache(t *testing.T) {
	g := MustOpenNewGrid(t)
	defer g.Close()

	tx, err := g.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, _, err = tx.Get("nonsense", []byte("k"))
	if !errors.Is(err, errors.ErrCacheNotFound) {
		t.Fatalf("Get(unknown cache)=%v, want CacheNotFound", err)
	}
}

func TestGrid_RollbackDiscardsAcrossCaches(t *testing.T) {
	g := MustOpenNewGrid(t)
	defer g.Close()

	tx, err := g.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(conduit.CacheArticles, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(conduit.CacheTags, []byte("go"), nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	tx, err = g.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, cache := range []string{conduit.CacheArticles, conduit.CacheTags} {
		n := 0
		if err := tx.ForEach(cache, func(key, value []byte) error { n++; return nil }); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Fatalf("cache %q has %d rows after rollback, want 0", cache, n)
		}
	}
}

func TestGrid_RemoveAll(t *testing.T) {
	g := MustOpenNewGrid(t)
	defer g.Close()

	tx, err := g.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"aa", "ab", "ba"} {
		if err := tx.Put(conduit.CacheTags, []byte(k), nil); err != nil {
			t.Fatal(err)
		}
	}
	n, err := tx.RemoveAll(conduit.CacheTags, func(key, value []byte) bool {
		return key[0] == 'a'
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := n, 2; got != want {
		t.Fatalf("RemoveAll()=%d, want %d", got, want)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = g.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()
	var left []string
	if err := tx.ForEach(conduit.CacheTags, func(key, value []byte) error {
		left = append(left, string(key))
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0] != "ba" {
		t.Fatalf("rows after RemoveAll=%v, want [ba]", left)
	}
}

func TestGrid_ForEachStop(t *testing.T) {
	g := MustOpenNewGrid(t)
	defer g.Close()

	tx, err := g.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := tx.Put(conduit.CacheTags, []byte(k), nil); err != nil {
			t.Fatal(err)
		}
	}
	n := 0
	if err := tx.ForEach(conduit.CacheTags, func(key, value []byte) error {
		n++
		return conduit.ErrStopScan
	}); err != nil {
		t.Fatalf("ErrStopScan should end the scan cleanly, got %v", err)
	}
	if n != 1 {
		t.Fatalf("scan visited %d rows after stop, want 1", n)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
}

func TestGrid_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conduit.db")
	g, err := boltdb.OpenGrid(path, conduit.CacheNames())
	if err != nil {
		t.Fatal(err)
	}
	tx, err := g.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(conduit.CacheTags, []byte("go"), nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}

	g, err = boltdb.OpenGrid(path, conduit.CacheNames())
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	tx, err = g.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, ok, err := tx.Get(conduit.CacheTags, []byte("go")); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatal("row should survive a reopen")
	}
	if g.Size() == 0 {
		t.Fatal("data file should have a nonzero size after writes")
	}
}
