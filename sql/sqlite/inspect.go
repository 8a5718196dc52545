// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"fmt"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/schema"
)

// inspect provides a SQLite implementation for schema.Lookup.
type inspect struct{ *conn }

// Exists reports if the identified object exists in the connected database.
// Stored procedures are not supported by SQLite and are always absent.
func (i *inspect) Exists(ctx context.Context, id schema.Ident) (bool, error) {
	var (
		query string
		args  []any
		s     = schemaOf(id.Schema)
	)
	switch id.Kind {
	case schema.KindColumn:
		query, args = columnExistsQuery, []any{id.Table, s, id.Name}
	case schema.KindIndex:
		query, args = fmt.Sprintf(objectExistsQuery, quote(s)), []any{"index", id.Table, id.Name}
	case schema.KindView:
		query, args = fmt.Sprintf(objectExistsQuery, quote(s)), []any{"view", id.Name, id.Name}
	case schema.KindTable:
		query, args = fmt.Sprintf(objectExistsQuery, quote(s)), []any{"table", id.Name, id.Name}
	case schema.KindProc:
		return false, nil
	default:
		return false, fmt.Errorf("sqlite: unsupported object kind %q", id.Kind)
	}
	exists, err := sqlx.Count(ctx, i, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: look up %s %q: %w", id.Kind, id.String(), err)
	}
	return exists, nil
}

// quote returns the identifier quoted for SQLite.
func quote(s string) string {
	b := &sqlx.Builder{QuoteOpening: '"', QuoteClosing: '"'}
	return b.Ident(s).String()
}

const (
	// Query to check if a column exists in a table.
	columnExistsQuery = "SELECT COUNT(*) FROM pragma_table_info(?, ?) WHERE name = ?"

	// Query to check if a schema object exists. The tbl_name of tables
	// and views holds their own name, and the table name for indexes.
	objectExistsQuery = "SELECT COUNT(*) FROM %s.sqlite_master WHERE type = ? AND tbl_name = ? AND name = ?"
)
