// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guardmig/guardmig/sql/schema"
)

type (
	// A Change represents a single desired schema change. The set of
	// implementations is closed and defined in this package:
	//
	//	AddColumn    skipped if the column exists
	//	CreateIndex  skipped if the index exists
	//	CreateTable  skipped if the table exists
	//	ReplaceView  dropped (if exists) and created on every run
	//	ReplaceProc  dropped (if exists) and created on every run
	//
	// Changes are applied in the order they are given, and the caller is
	// responsible for placing every dependency (e.g. the columns a view
	// selects) before its dependents.
	Change interface {
		// Kind returns the kind of the change.
		Kind() ChangeKind
		// Key returns the identifier used for looking up the
		// target of the change in the catalog.
		Key() schema.Ident
		change()
	}

	// AddColumn describes a column addition to an existing table.
	AddColumn struct {
		Schema string
		Table  string
		C      *schema.Column
	}

	// CreateIndex describes an index creation on an existing table.
	CreateIndex struct {
		Schema string
		Table  string
		I      *schema.Index
	}

	// ReplaceView describes a view that is created or replaced.
	ReplaceView struct {
		Schema string
		V      *schema.View
	}

	// ReplaceProc describes a stored procedure that is created or replaced.
	ReplaceProc struct {
		Schema string
		P      *schema.Proc
	}

	// CreateTable describes a table that is created if absent.
	CreateTable struct {
		Schema string
		T      *schema.Table
	}

	// ChangeKind names the kind of a Change.
	ChangeKind string
)

// List of change kinds.
const (
	KindAddColumn   ChangeKind = "add-column"
	KindCreateIndex ChangeKind = "create-index"
	KindReplaceView ChangeKind = "create-or-replace-view"
	KindReplaceProc ChangeKind = "create-or-replace-procedure"
	KindCreateTable ChangeKind = "create-table-if-absent"
)

// Kind implements the Change interface.
func (*AddColumn) Kind() ChangeKind { return KindAddColumn }

// Key implements the Change interface.
func (c *AddColumn) Key() schema.Ident { return schema.ColumnIdent(c.Schema, c.Table, c.C.Name) }

// Kind implements the Change interface.
func (*CreateIndex) Kind() ChangeKind { return KindCreateIndex }

// Key implements the Change interface.
func (c *CreateIndex) Key() schema.Ident { return schema.IndexIdent(c.Schema, c.Table, c.I.Name) }

// Kind implements the Change interface.
func (*ReplaceView) Kind() ChangeKind { return KindReplaceView }

// Key implements the Change interface.
func (c *ReplaceView) Key() schema.Ident { return schema.ViewIdent(c.Schema, c.V.Name) }

// Kind implements the Change interface.
func (*ReplaceProc) Kind() ChangeKind { return KindReplaceProc }

// Key implements the Change interface.
func (c *ReplaceProc) Key() schema.Ident { return schema.ProcIdent(c.Schema, c.P.Name) }

// Kind implements the Change interface.
func (*CreateTable) Kind() ChangeKind { return KindCreateTable }

// Key implements the Change interface.
func (c *CreateTable) Key() schema.Ident { return schema.TableIdent(c.Schema, c.T.Name) }

// Replaceable reports whether the change is applied by replacing its
// target unconditionally, rather than being skipped when it exists.
func Replaceable(c Change) bool {
	switch c.(type) {
	case *ReplaceView, *ReplaceProc:
		return true
	default:
		return false
	}
}

// Describe returns a short human-readable description of the change.
func Describe(c Change) string {
	switch c := c.(type) {
	case *AddColumn:
		return fmt.Sprintf("add column %q to table %q", c.C.Name, c.Table)
	case *CreateIndex:
		return fmt.Sprintf("create index %q on table %q", c.I.Name, c.Table)
	case *ReplaceView:
		return fmt.Sprintf("create or replace view %q", c.V.Name)
	case *ReplaceProc:
		return fmt.Sprintf("create or replace procedure %q", c.P.Name)
	case *CreateTable:
		return fmt.Sprintf("create table %q", c.T.Name)
	default:
		return fmt.Sprintf("unknown change %T", c)
	}
}

// Validate reports an error if one of the changes misses its definition.
func Validate(changes []Change) error {
	for i, c := range changes {
		if err := validate(c); err != nil {
			return fmt.Errorf("%w (position %d)", err, i)
		}
	}
	return nil
}

func validate(c Change) error {
	var missing bool
	switch c := c.(type) {
	case *AddColumn:
		missing = c == nil || c.C == nil || c.C.Name == "" || c.Table == ""
	case *CreateIndex:
		missing = c == nil || c.I == nil || c.I.Name == "" || c.Table == "" || len(c.I.Parts) == 0
	case *ReplaceView:
		if missing = c == nil || c.V == nil || c.V.Name == ""; !missing {
			stmts, err := Split(c.V.Def)
			if err != nil {
				return fmt.Errorf("sql/migrate: scan view %q: %w", c.V.Name, err)
			}
			if len(stmts) > 1 {
				return fmt.Errorf("sql/migrate: view %q must be defined by a single statement, got %d", c.V.Name, len(stmts))
			}
		}
	case *ReplaceProc:
		missing = c == nil || c.P == nil || c.P.Name == ""
	case *CreateTable:
		missing = c == nil || c.T == nil || c.T.Name == "" || len(c.T.Columns) == 0
	case nil:
		return fmt.Errorf("sql/migrate: nil change")
	default:
		return fmt.Errorf("sql/migrate: unsupported change %T", c)
	}
	if missing {
		return fmt.Errorf("sql/migrate: incomplete %s change", c.Kind())
	}
	return nil
}

type (
	// A Plan holds the statements that apply a single Change. Plans are
	// computed by the dialect drivers and executed by the Applier.
	Plan struct {
		// Stmts to execute, in order.
		Stmts []*Stmt

		// Transactional describes if the statements can be
		// executed and rolled back as a single unit.
		Transactional bool
	}

	// A Stmt is a single statement of a Plan.
	Stmt struct {
		// Cmd or statement to execute.
		Cmd string

		// Args for placeholder parameters in the statement above.
		Args []any

		// A Comment describes the statement.
		Comment string
	}
)

type (
	// The Driver interface must be implemented by the different dialects to support
	// idempotent schema changes. ExecQuerier executes the planned statements, Lookup
	// reports the presence of catalog objects, and PlanChange translates a change to
	// the dialect statements.
	Driver interface {
		schema.ExecQuerier
		schema.Lookup

		// PlanChange returns the statements for applying the given change.
		// Implementations must not execute anything on the database.
		PlanChange(context.Context, Change) (*Plan, error)
	}

	// TxOpener is implemented by drivers whose connection supports transactions.
	TxOpener interface {
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}
)

// changes.
func (*AddColumn) change()   {}
func (*CreateIndex) change() {}
func (*ReplaceView) change() {}
func (*ReplaceProc) change() {}
func (*CreateTable) change() {}
