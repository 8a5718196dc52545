// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// A NotExistError wraps another error to retain its original text
// but makes it possible to the migrator to catch it.
type NotExistError struct {
	Err error
}

func (e NotExistError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e NotExistError) Unwrap() error { return e.Err }

// IsNotExistError reports an error is a NotExistError.
func IsNotExistError(err error) bool {
	if err == nil {
		return false
	}
	var e *NotExistError
	return errors.As(err, &e)
}

// ExecQuerier wraps the standard sql.DB methods.
type ExecQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ObjectKind describes the kind of a catalog object.
type ObjectKind uint

// List of catalog object kinds that can be looked up.
const (
	KindColumn ObjectKind = iota + 1
	KindIndex
	KindView
	KindProc
	KindTable
)

// String implements fmt.Stringer.
func (k ObjectKind) String() string {
	switch k {
	case KindColumn:
		return "column"
	case KindIndex:
		return "index"
	case KindView:
		return "view"
	case KindProc:
		return "procedure"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ObjectKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// An Ident identifies a single object in the catalog. It is the
// lookup key used to decide if an object is already present.
//
// Columns and indexes are scoped to their table. Views, procedures
// and tables are scoped to their schema, and Table is left empty.
type Ident struct {
	Kind   ObjectKind `json:"Kind"`
	Schema string     `json:"Schema,omitempty"`
	Table  string     `json:"Table,omitempty"`
	Name   string     `json:"Name"`
}

// ColumnIdent returns the identifier of a table column.
func ColumnIdent(schema, table, column string) Ident {
	return Ident{Kind: KindColumn, Schema: schema, Table: table, Name: column}
}

// IndexIdent returns the identifier of a table index.
func IndexIdent(schema, table, index string) Ident {
	return Ident{Kind: KindIndex, Schema: schema, Table: table, Name: index}
}

// ViewIdent returns the identifier of a view.
func ViewIdent(schema, name string) Ident {
	return Ident{Kind: KindView, Schema: schema, Name: name}
}

// ProcIdent returns the identifier of a stored procedure.
func ProcIdent(schema, name string) Ident {
	return Ident{Kind: KindProc, Schema: schema, Name: name}
}

// TableIdent returns the identifier of a table.
func TableIdent(schema, name string) Ident {
	return Ident{Kind: KindTable, Schema: schema, Name: name}
}

// Parent returns the identifier of the table that owns a column
// or an index. The second value is false for top-level objects.
func (i Ident) Parent() (Ident, bool) {
	switch i.Kind {
	case KindColumn, KindIndex:
		return TableIdent(i.Schema, i.Table), true
	default:
		return Ident{}, false
	}
}

// String returns the qualified name of the object, e.g. dbo.Asignaciones.UsuarioADNombre.
func (i Ident) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Schema, i.Table, i.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Lookup is implemented by drivers that can report the presence
// of objects in the connected catalog. Each call must query the
// catalog, and results must not be cached between calls.
type Lookup interface {
	Exists(ctx context.Context, id Ident) (bool, error)
}
