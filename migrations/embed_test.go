// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrations_test

import (
	"testing"

	"github.com/guardmig/guardmig/migrations"
	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/migratespec"
	"github.com/guardmig/guardmig/sql/schema"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestNames(t *testing.T) {
	require.Equal(t, []string{"ad_identity"}, migrations.Names())
	_, err := migrations.Builtin("unknown")
	require.EqualError(t, err, `migrations: unknown built-in "unknown" (available: ad_identity)`)
}

func TestLoad_ADIdentity(t *testing.T) {
	doc, err := migrations.Load("ad_identity")
	require.NoError(t, err)
	require.Equal(t, "dbo", doc.Schema)
	keys := make([]schema.Ident, len(doc.Changes))
	for i, c := range doc.Changes {
		keys[i] = c.Key()
	}
	require.Equal(t, []schema.Ident{
		schema.ColumnIdent("dbo", "Asignaciones", "UsuarioADNombre"),
		schema.ColumnIdent("dbo", "Asignaciones", "UsuarioADEmail"),
		schema.IndexIdent("dbo", "Asignaciones", "IX_Asignaciones_UsuarioADNombre"),
		schema.IndexIdent("dbo", "Asignaciones", "IX_Asignaciones_UsuarioADEmail"),
		schema.ViewIdent("dbo", "vw_AsignacionesUsuarioAD"),
		schema.ProcIdent("dbo", "sp_ReporteAsignacionesPorUsuarioAD"),
		schema.ProcIdent("dbo", "sp_BuscarAsignacionesPorUsuarioAD"),
		schema.TableIdent("dbo", "NotificacionesLog"),
	}, keys)

	c := doc.Changes[0].(*migrate.AddColumn)
	require.True(t, c.C.Null)
	require.Equal(t, "NVARCHAR(255)", c.C.Type)

	idx := doc.Changes[2].(*migrate.CreateIndex)
	require.Equal(t, []string{"UsuarioADNombre"}, idx.I.Columns())
	require.Equal(t, []string{"Activo"}, idx.I.Include)
	require.Equal(t, "UsuarioADNombre IS NOT NULL", idx.I.Where)

	v := doc.Changes[4].(*migrate.ReplaceView)
	require.Contains(t, v.V.Def, "COALESCE(NULLIF(a.UsuarioADNombre, ''), u.NombreCompleto, 'Sin asignar')")

	p := doc.Changes[6].(*migrate.ReplaceProc)
	require.Len(t, p.P.Params, 2)
	require.Equal(t, "@SoloActivas", p.P.Params[1].Name)
	require.Equal(t, "1", p.P.Params[1].Default)
	require.Contains(t, p.P.Body, "FROM dbo.vw_AsignacionesUsuarioAD v")

	tbl := doc.Changes[7].(*migrate.CreateTable)
	require.Equal(t, []string{"NotificacionId"}, tbl.T.PrimaryKey)
	require.Len(t, tbl.T.Columns, 7)
	require.NoError(t, migrate.Validate(doc.Changes))
}

func TestLoad_Vars(t *testing.T) {
	doc, err := migrations.Load("ad_identity", migratespec.WithVars(map[string]cty.Value{
		"schema":           cty.StringVal("inventario"),
		"notification_log": cty.StringVal("false"),
	}))
	require.NoError(t, err)
	require.Equal(t, "inventario", doc.Schema)
	require.Len(t, doc.Changes, 7)
	for _, c := range doc.Changes {
		require.Equal(t, "inventario", c.Key().Schema)
		require.NotEqual(t, migrate.KindCreateTable, c.Kind())
	}
}
