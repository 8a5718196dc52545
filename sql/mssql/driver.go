// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"
	"github.com/guardmig/guardmig/sql/sqlclient"

	"golang.org/x/mod/semver"
)

type (
	// Driver represents a SQL Server driver for looking up catalog
	// objects and planning idempotent schema changes.
	Driver struct {
		*conn
		schema.Lookup
		planner
	}

	// database connection and its information.
	conn struct {
		schema.ExecQuerier
		// The schema in the `schema` parameter (if given),
		// or the default schema of the connected user.
		schema  string
		version string
		collate string
		edition string
	}
)

// DriverName holds the name used for registration.
const DriverName = "sqlserver"

// DefaultSchema is used when neither the URL nor the connected user names a schema.
const DefaultSchema = "dbo"

func init() {
	sqlclient.Register(
		DriverName,
		sqlclient.OpenerFunc(opener),
		sqlclient.RegisterFlavours("mssql"),
		sqlclient.RegisterURLParser(parser{}),
	)
}

func opener(_ context.Context, u *url.URL) (*sqlclient.Client, error) {
	return openURL(DriverName, parser{}.ParseURL(u))
}

func openURL(name string, ur *sqlclient.URL) (*sqlclient.Client, error) {
	db, err := sql.Open(name, ur.DSN)
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
	if ur.Schema != "" {
		drv.schema = ur.Schema
	}
	return &sqlclient.Client{
		Name:   DriverName,
		DB:     db,
		URL:    ur,
		Driver: drv,
	}, nil
}

// Open opens a new SQL Server driver.
func Open(db schema.ExecQuerier) (*Driver, error) {
	c := &conn{ExecQuerier: db}
	rows, err := db.QueryContext(context.Background(), propertiesQuery)
	if err != nil {
		return nil, fmt.Errorf("mssql: query server property: %w", err)
	}
	var name sql.NullString
	if err := sqlx.ScanOne(rows, &c.version, &c.collate, &c.edition, &name); err != nil {
		return nil, fmt.Errorf("mssql: scan server property: %w", err)
	}
	c.schema = DefaultSchema
	if sqlx.ValidString(name) {
		c.schema = name.String
	}
	return &Driver{
		conn:    c,
		Lookup:  &inspect{c},
		planner: planner{c},
	}, nil
}

// Version returns the product version of the connected server.
func (d *Driver) Version() string { return d.version }

// Edition returns the product edition of the connected server.
func (d *Driver) Edition() string { return d.edition }

// Schema returns the schema changes are applied on, when they do not name one.
func (d *Driver) Schema() string { return d.schema }

// BeginTx starts a transaction on the underlying connection, if it supports it.
func (d *Driver) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	o, ok := d.ExecQuerier.(interface {
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	})
	if !ok {
		return nil, fmt.Errorf("mssql: connection %T does not support transactions", d.ExecQuerier)
	}
	return o.BeginTx(ctx, opts)
}

var _ interface {
	migrate.Driver
	migrate.TxOpener
} = (*Driver)(nil)

// schemaOf returns the given schema, or the connected one if empty.
func (c *conn) schemaOf(s string) string {
	if s != "" {
		return s
	}
	return c.schema
}

// supportsDropIfExists reports if the server supports the DROP ... IF EXISTS
// syntax, which was added in SQL Server 2016 (13.x).
func (c *conn) supportsDropIfExists() bool {
	return compareVersion(c.version, "13.0.0") >= 0
}

// compareVersion compares the SQL Server product version (e.g. 15.0.2000.5)
// against the given semantic version. Unknown versions are treated as old.
func compareVersion(version, than string) int {
	parts := strings.Split(version, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v := "v" + strings.Join(parts, ".")
	if !semver.IsValid(v) {
		return -1
	}
	return semver.Compare(v, "v"+than)
}

type parser struct{}

// ParseURL implements the sqlclient.URLParser interface.
func (parser) ParseURL(u *url.URL) *sqlclient.URL {
	// "schema" is used to specify the schema name.
	// It is not part of the default SQL driver.
	ur := &sqlclient.URL{
		URL:    u,
		Schema: u.Query().Get("schema"),
	}
	nu := *u
	nu.Scheme = DriverName
	q := nu.Query()
	q.Del("schema")
	nu.RawQuery = q.Encode()
	ur.DSN = nu.String()
	return ur
}

// IndexTypeNonClustered is the index type of all planned indexes.
const IndexTypeNonClustered = "NONCLUSTERED"
