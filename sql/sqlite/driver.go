// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"
	"github.com/guardmig/guardmig/sql/sqlclient"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

type (
	// Driver represents a SQLite driver for looking up catalog
	// objects and planning idempotent schema changes.
	Driver struct {
		*conn
		schema.Lookup
		planner
	}

	// database connection and its information.
	conn struct {
		schema.ExecQuerier
		// System variables that are set on `Open`.
		version string
	}
)

// DriverName holds the name used for registration.
const DriverName = "sqlite"

// DefaultSchema is the name of the main database file.
const DefaultSchema = "main"

func init() {
	sqlclient.Register(
		DriverName,
		sqlclient.OpenerFunc(opener),
		sqlclient.RegisterFlavours("sqlite3"),
		sqlclient.RegisterURLParser(sqlclient.URLParserFunc(parseURL)),
	)
}

func opener(_ context.Context, u *url.URL) (*sqlclient.Client, error) {
	ur := parseURL(u)
	db, err := sql.Open(DriverName, ur.DSN)
	if err != nil {
		return nil, err
	}
	drv, err := Open(db)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = fmt.Errorf("%w: %v", err, cerr)
		}
		return nil, err
	}
	return &sqlclient.Client{
		Name:   DriverName,
		DB:     db,
		URL:    ur,
		Driver: drv,
	}, nil
}

// parseURL converts the URL into a SQLite URI filename, for example:
//
//	sqlite://inventario.db?_pragma=foreign_keys(1) => file:inventario.db?_pragma=foreign_keys(1)
func parseURL(u *url.URL) *sqlclient.URL {
	dsn := "file:" + u.Host + u.Path
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return &sqlclient.URL{URL: u, DSN: dsn, Schema: DefaultSchema}
}

// Open opens a new SQLite driver.
func Open(db schema.ExecQuerier) (*Driver, error) {
	c := &conn{ExecQuerier: db}
	rows, err := db.QueryContext(context.Background(), "SELECT sqlite_version()")
	if err != nil {
		return nil, fmt.Errorf("sqlite: query database version: %w", err)
	}
	if err := sqlx.ScanOne(rows, &c.version); err != nil {
		return nil, fmt.Errorf("sqlite: scanning database version: %w", err)
	}
	return &Driver{
		conn:    c,
		Lookup:  &inspect{c},
		planner: planner{c},
	}, nil
}

// Version returns the version of the SQLite library.
func (d *Driver) Version() string { return d.version }

// BeginTx starts a transaction on the underlying connection, if it supports it.
func (d *Driver) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	o, ok := d.ExecQuerier.(interface {
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	})
	if !ok {
		return nil, fmt.Errorf("sqlite: connection %T does not support transactions", d.ExecQuerier)
	}
	return o.BeginTx(ctx, opts)
}

var _ interface {
	migrate.Driver
	migrate.TxOpener
} = (*Driver)(nil)

// schemaOf returns the given schema, or the main database if empty.
func schemaOf(s string) string {
	if s != "" {
		return s
	}
	return DefaultSchema
}
