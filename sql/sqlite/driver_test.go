// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"database/sql"
	"net/url"
	"testing"

	"github.com/guardmig/guardmig/sql/internal/sqltest"
	"github.com/guardmig/guardmig/sql/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	m.ExpectQuery(sqltest.Escape("SELECT sqlite_version()")).
		WillReturnRows(sqltest.Rows(`
+------------------+
| sqlite_version() |
+------------------+
| 3.41.2           |
+------------------+
`))
	drv, err := Open(db)
	require.NoError(t, err)
	require.Equal(t, "3.41.2", drv.Version())
}

func TestDriver_Exists(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	m.ExpectQuery(sqltest.Escape("SELECT sqlite_version()")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("3.41.2"))
	drv, err := Open(db)
	require.NoError(t, err)

	m.ExpectQuery(sqltest.Escape(columnExistsQuery)).
		WithArgs("Asignaciones", "main", "UsuarioADNombre").
		WillReturnRows(sqltest.Count(1))
	ok, err := drv.Exists(context.Background(), schema.ColumnIdent("", "Asignaciones", "UsuarioADNombre"))
	require.NoError(t, err)
	require.True(t, ok)

	m.ExpectQuery(sqltest.Escape(`SELECT COUNT(*) FROM "main".sqlite_master WHERE type = ? AND tbl_name = ? AND name = ?`)).
		WithArgs("index", "Asignaciones", "IX_Asignaciones_UsuarioADNombre").
		WillReturnRows(sqltest.Count(0))
	ok, err = drv.Exists(context.Background(), schema.IndexIdent("", "Asignaciones", "IX_Asignaciones_UsuarioADNombre"))
	require.NoError(t, err)
	require.False(t, ok)

	m.ExpectQuery(sqltest.Escape(`SELECT COUNT(*) FROM "aux".sqlite_master WHERE type = ? AND tbl_name = ? AND name = ?`)).
		WithArgs("view", "v", "v").
		WillReturnError(sql.ErrConnDone)
	_, err = drv.Exists(context.Background(), schema.ViewIdent("aux", "v"))
	require.ErrorIs(t, err, sql.ErrConnDone)

	ok, err = drv.Exists(context.Background(), schema.ProcIdent("", "sp"))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestParseURL(t *testing.T) {
	for u, dsn := range map[string]string{
		"sqlite://inventario.db":                            "file:inventario.db",
		"sqlite:///var/lib/inventario.db":                   "file:/var/lib/inventario.db",
		"sqlite3://dev?mode=memory&_pragma=foreign_keys(1)": "file:dev?mode=memory&_pragma=foreign_keys(1)",
	} {
		pu, err := url.Parse(u)
		require.NoError(t, err)
		ur := parseURL(pu)
		require.Equal(t, dsn, ur.DSN)
		require.Equal(t, DefaultSchema, ur.Schema)
	}
}
