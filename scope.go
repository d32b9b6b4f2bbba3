// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"github.com/conduitgrid/conduit/errors"
)

// Scope groups the cache writes of one logical operation into a single
// unit of atomic visibility. It replaces the ambient "current
// transaction" of classic data-grid clients with an explicit handle
// threaded through calls: Begin is reference-counted, so a nested
// operation that opens a scope which is already active simply joins it,
// and only the outermost Commit touches the grid. There is no true
// nesting; Rollback at any depth aborts the whole scope.
//
// A Scope belongs to exactly one logical operation and must not be
// shared across goroutines.
//
// The state machine is Idle -> Active -> {Committed, RolledBack} ->
// Idle; a finished scope can Begin again.
type Scope struct {
	grid  Grid
	tx    Tx
	depth int
}

// NewScope returns an idle scope on the grid.
func NewScope(grid Grid) *Scope {
	return &Scope{grid: grid}
}

// Begin opens the scope's write transaction, or joins the one already
// active. Every successful Begin must be balanced by Commit or
// Rollback.
func (s *Scope) Begin() error {
	if s.tx != nil {
		s.depth++
		return nil
	}
	tx, err := s.grid.Begin(writable)
	if err != nil {
		return errors.Wrap(err, "beginning grid tx")
	}
	s.tx = tx
	s.depth = 1
	return nil
}

// Active reports whether the scope currently holds a transaction.
func (s *Scope) Active() bool { return s.tx != nil }

// Tx returns the scope's transaction for cache access. It is nil while
// the scope is idle.
func (s *Scope) Tx() Tx { return s.tx }

// Commit applies the scope's writes if this is the outermost Begin.
// When the grid cannot durably apply them, Commit rolls the transaction
// back before returning a TransactionFailed error; if that rollback
// itself fails the scope's outcome is unknowable and the error is coded
// Inconsistent instead.
func (s *Scope) Commit() error {
	if s.tx == nil {
		return errors.New(errors.ErrTransactionFailed, "commit on inactive scope")
	}
	s.depth--
	if s.depth > 0 {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		if rberr := tx.Rollback(); rberr != nil {
			return errors.New(errors.ErrInconsistent,
				"commit failed ("+err.Error()+") and rollback failed ("+rberr.Error()+")")
		}
		return errors.WithMessage(errors.New(errors.ErrTransactionFailed, err.Error()), "committing scope")
	}
	return nil
}

// Rollback discards every write issued since the outermost Begin and
// returns the scope to idle. It is safe to call repeatedly; calls on an
// idle scope are no-ops.
func (s *Scope) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.depth = 0
	if err := tx.Rollback(); err != nil {
		return errors.WithMessage(errors.New(errors.ErrInconsistent, err.Error()), "rolling back scope")
	}
	return nil
}

// Finish completes one Begin based on the enclosing function's error,
// committing on success and rolling back on failure. Use it like the
// usual finisher:
//
//	func op() (err0 error) {
//		sc := NewScope(grid)
//		if err := sc.Begin(); err != nil { ... }
//		defer sc.Finish(&err0)
//		...
//	}
//
// Take care that perr captures the enclosing function's named return
// and has not been shadowed locally.
func (s *Scope) Finish(perr *error) {
	if *perr != nil {
		if rberr := s.Rollback(); rberr != nil {
			*perr = errors.WithMessagef(*perr, "also failed to roll back: %v", rberr)
		}
		return
	}
	*perr = s.Commit()
}
