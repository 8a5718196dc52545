// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mssql

import (
	"context"
	"fmt"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/schema"
)

// inspect provides a SQL Server implementation for schema.Lookup.
type inspect struct{ *conn }

var _ schema.Lookup = (*inspect)(nil)

// Exists reports if the identified object exists in the connected database.
// Every call queries the catalog views, and results are never cached.
func (i *inspect) Exists(ctx context.Context, id schema.Ident) (bool, error) {
	var (
		query string
		args  = []any{i.schemaOf(id.Schema)}
	)
	switch id.Kind {
	case schema.KindColumn:
		query = columnExistsQuery
		args = append(args, id.Table, id.Name)
	case schema.KindIndex:
		query = indexExistsQuery
		args = append(args, id.Table, id.Name)
	case schema.KindView:
		query = viewExistsQuery
		args = append(args, id.Name)
	case schema.KindProc:
		query = procExistsQuery
		args = append(args, id.Name)
	case schema.KindTable:
		query = tableExistsQuery
		args = append(args, id.Name)
	default:
		return false, fmt.Errorf("mssql: unsupported object kind %q", id.Kind)
	}
	exists, err := sqlx.Count(ctx, i, query, args...)
	if err != nil {
		return false, fmt.Errorf("mssql: look up %s %q: %w", id.Kind, id.String(), err)
	}
	return exists, nil
}

const (
	// Query to list server properties and the default schema of the connected user.
	propertiesQuery = "SELECT SERVERPROPERTY('ProductVersion'), SERVERPROPERTY('Collation'), SERVERPROPERTY('Edition'), SCHEMA_NAME()"

	// Query to check if a column exists in a user table.
	columnExistsQuery = `
SELECT
	COUNT(*)
FROM
	[sys].[columns] AS [c1]
	JOIN [sys].[tables] AS [t1] ON [c1].[object_id] = [t1].[object_id]
WHERE
	SCHEMA_NAME([t1].[schema_id]) = @p1
	AND [t1].[name] = @p2
	AND [c1].[name] = @p3`

	// Query to check if a named index exists on a user table.
	indexExistsQuery = `
SELECT
	COUNT(*)
FROM
	[sys].[indexes] AS [i1]
	JOIN [sys].[tables] AS [t1] ON [i1].[object_id] = [t1].[object_id]
WHERE
	SCHEMA_NAME([t1].[schema_id]) = @p1
	AND [t1].[name] = @p2
	AND [i1].[name] = @p3`

	// Query to check if a view exists.
	viewExistsQuery = `
SELECT
	COUNT(*)
FROM
	[sys].[views]
WHERE
	SCHEMA_NAME([schema_id]) = @p1
	AND [name] = @p2`

	// Query to check if a stored procedure exists.
	procExistsQuery = `
SELECT
	COUNT(*)
FROM
	[sys].[procedures]
WHERE
	SCHEMA_NAME([schema_id]) = @p1
	AND [name] = @p2`

	// Query to check if a user table exists.
	tableExistsQuery = `
SELECT
	COUNT(*)
FROM
	[sys].[tables]
WHERE
	SCHEMA_NAME([schema_id]) = @p1
	AND [name] = @p2
	AND [type] = 'U'`
)
