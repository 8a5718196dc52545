// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"

	"github.com/stretchr/testify/require"
)

func TestPlanner_PlanChange(t *testing.T) {
	tests := []struct {
		change  migrate.Change
		wantTx  bool
		wantErr string
		stmts   []string
	}{
		{
			change: &migrate.AddColumn{Table: "Asignaciones", C: schema.NewColumn("UsuarioADNombre", "TEXT")},
			stmts:  []string{`ALTER TABLE "Asignaciones" ADD COLUMN "UsuarioADNombre" TEXT`},
		},
		{
			change: &migrate.CreateIndex{
				Schema: "main",
				Table:  "Asignaciones",
				I:      schema.NewIndex("IX_Asignaciones_UsuarioADNombre").AddColumns("UsuarioADNombre").SetWhere("UsuarioADNombre IS NOT NULL"),
			},
			stmts: []string{`CREATE INDEX "main"."IX_Asignaciones_UsuarioADNombre" ON "Asignaciones" ("UsuarioADNombre") WHERE UsuarioADNombre IS NOT NULL`},
		},
		{
			change: &migrate.CreateIndex{
				Table: "Asignaciones",
				I:     schema.NewIndex("IX").AddColumns("UsuarioADNombre").SetInclude("Activo"),
			},
			wantErr: `sqlite: INCLUDE columns are not supported (index "IX")`,
		},
		{
			change: &migrate.ReplaceView{V: schema.NewView("vw_Activas", "SELECT * FROM Asignaciones WHERE Activo = 1;")},
			wantTx: true,
			stmts: []string{
				`DROP VIEW IF EXISTS "vw_Activas"`,
				`CREATE VIEW "vw_Activas" AS SELECT * FROM Asignaciones WHERE Activo = 1`,
			},
		},
		{
			change:  &migrate.ReplaceProc{P: schema.NewProc("sp", "SELECT 1")},
			wantErr: `sqlite: stored procedures are not supported (procedure "sp")`,
		},
		{
			change: &migrate.CreateTable{
				T: schema.NewTable("NotificacionesLog").
					AddColumns(
						schema.NewNotNullColumn("Id", "INTEGER"),
						schema.NewColumn("Destinatario", "TEXT"),
						schema.NewNotNullColumn("FechaEnvio", "TEXT").SetDefault("CURRENT_TIMESTAMP"),
					).
					SetPrimaryKey("Id"),
			},
			stmts: []string{`CREATE TABLE "NotificacionesLog" ("Id" INTEGER NOT NULL, "Destinatario" TEXT, "FechaEnvio" TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP, PRIMARY KEY ("Id"))`},
		},
		{
			change: &migrate.CreateTable{
				T: schema.NewTable("NotificacionesLog").
					AddColumns(schema.NewNotNullColumn("Id", "INTEGER")).
					SetComment("Registro de notificaciones"),
			},
			wantErr: `sqlite: table comments are not supported (table "NotificacionesLog")`,
		},
	}
	for _, tt := range tests {
		t.Run(migrate.Describe(tt.change), func(t *testing.T) {
			plan, err := planner{&conn{}}.PlanChange(context.Background(), tt.change)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantTx, plan.Transactional)
			require.Len(t, plan.Stmts, len(tt.stmts))
			for i := range tt.stmts {
				require.Equal(t, tt.stmts[i], plan.Stmts[i].Cmd)
			}
		})
	}
}

func TestApplier_SQLite(t *testing.T) {
	var (
		ctx = context.Background()
		db  = openInMemoryDB(t)
	)
	_, err := db.Exec(`CREATE TABLE Asignaciones (AsignacionId INTEGER PRIMARY KEY, ProductoId INTEGER NOT NULL, Activo INTEGER NOT NULL DEFAULT 1)`)
	require.NoError(t, err)
	drv, err := Open(db)
	require.NoError(t, err)
	changes := []migrate.Change{
		&migrate.AddColumn{Table: "Asignaciones", C: schema.NewColumn("UsuarioADNombre", "TEXT")},
		&migrate.AddColumn{Table: "Asignaciones", C: schema.NewColumn("UsuarioADEmail", "TEXT")},
		&migrate.CreateIndex{Table: "Asignaciones", I: schema.NewIndex("IX_Asignaciones_UsuarioADNombre").AddColumns("UsuarioADNombre").SetWhere("UsuarioADNombre IS NOT NULL")},
		&migrate.ReplaceView{V: schema.NewView("vw_AsignacionesUsuarioAD", "SELECT AsignacionId, COALESCE(NULLIF(UsuarioADNombre, ''), 'Sin asignar') AS Usuario FROM Asignaciones")},
		&migrate.ReplaceProc{P: schema.NewProc("sp_BuscarAsignacionesPorUsuarioAD", "SELECT 1")},
		&migrate.CreateTable{T: schema.NewTable("NotificacionesLog").AddColumns(schema.NewNotNullColumn("Id", "INTEGER"), schema.NewColumn("Asunto", "TEXT")).SetPrimaryKey("Id")},
		&migrate.AddColumn{Table: "Inexistente", C: schema.NewColumn("c", "TEXT")},
	}
	a, err := migrate.NewApplier(drv)
	require.NoError(t, err)

	r, err := a.Apply(ctx, changes)
	require.NoError(t, err)
	require.Len(t, r.Results, len(changes))
	for i, s := range []migrate.Status{
		migrate.StatusApplied,
		migrate.StatusApplied,
		migrate.StatusApplied,
		migrate.StatusApplied,
		migrate.StatusFailed,
		migrate.StatusApplied,
		migrate.StatusFailed,
	} {
		require.Equal(t, s, r.Results[i].Status, r.Results[i].Target)
	}
	require.True(t, schema.IsNotExistError(r.Results[6].Error))
	require.Empty(t, r.Verification.Mismatches)
	require.Len(t, r.Verification.Absent(), 2)
	require.False(t, r.Ok())

	// The view reflects the new columns.
	_, err = db.Exec(`INSERT INTO Asignaciones (ProductoId, UsuarioADNombre) VALUES (1, ''), (2, 'jperez')`)
	require.NoError(t, err)
	var users []string
	rows, err := db.Query(`SELECT Usuario FROM vw_AsignacionesUsuarioAD ORDER BY AsignacionId`)
	require.NoError(t, err)
	for rows.Next() {
		var u string
		require.NoError(t, rows.Scan(&u))
		users = append(users, u)
	}
	require.NoError(t, rows.Close())
	require.Equal(t, []string{"Sin asignar", "jperez"}, users)

	// Second run.
	r, err = a.Apply(ctx, changes)
	require.NoError(t, err)
	require.Equal(t, 4, r.Count(migrate.StatusPresent))
	require.Equal(t, migrate.StatusApplied, r.Results[3].Status, "views are always replaced")
	require.Equal(t, 2, r.Count(migrate.StatusFailed))
	require.Empty(t, r.Verification.Mismatches)
}

func TestApplier_SQLiteEngineError(t *testing.T) {
	db := openInMemoryDB(t)
	_, err := db.Exec(`CREATE TABLE Asignaciones (AsignacionId INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Asignaciones (AsignacionId) VALUES (1)`)
	require.NoError(t, err)
	drv, err := Open(db)
	require.NoError(t, err)
	a, err := migrate.NewApplier(drv)
	require.NoError(t, err)
	r, err := a.Apply(context.Background(), []migrate.Change{
		// SQLite rejects a NOT NULL column without a default on non-empty tables.
		&migrate.AddColumn{Table: "Asignaciones", C: schema.NewNotNullColumn("UsuarioADNombre", "TEXT")},
		&migrate.AddColumn{Table: "Asignaciones", C: schema.NewColumn("UsuarioADEmail", "TEXT")},
	})
	require.NoError(t, err)
	require.Equal(t, migrate.StatusFailed, r.Results[0].Status)
	require.Equal(t, `ALTER TABLE "Asignaciones" ADD COLUMN "UsuarioADNombre" TEXT NOT NULL`, r.Results[0].Error.Stmt)
	require.NotEmpty(t, r.Results[0].Error.Code)
	require.Equal(t, migrate.StatusApplied, r.Results[1].Status)
}

func TestApplier_SQLiteRollback(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		mode     migrate.TxMode
		viewLeft bool
	}{
		{mode: migrate.TxModeChange, viewLeft: true},
		{mode: migrate.TxModeNone, viewLeft: false},
	} {
		t.Run(string(tt.mode), func(t *testing.T) {
			db := openInMemoryDB(t)
			_, err := db.Exec(`CREATE TABLE Asignaciones (AsignacionId INTEGER PRIMARY KEY)`)
			require.NoError(t, err)
			_, err = db.Exec(`CREATE VIEW vw_Activas AS SELECT AsignacionId FROM Asignaciones`)
			require.NoError(t, err)
			drv, err := Open(db)
			require.NoError(t, err)
			a, err := migrate.NewApplier(drv, migrate.WithTxMode(tt.mode))
			require.NoError(t, err)
			r, err := a.Apply(ctx, []migrate.Change{
				// DROP succeeds, CREATE is rejected.
				&migrate.ReplaceView{V: schema.NewView("vw_Activas", "SELECT FROM")},
			})
			require.NoError(t, err)
			require.Equal(t, migrate.StatusFailed, r.Results[0].Status)
			require.Equal(t, `CREATE VIEW "vw_Activas" AS SELECT FROM`, r.Results[0].Error.Stmt)
			exists, err := drv.Exists(ctx, schema.ViewIdent("", "vw_Activas"))
			require.NoError(t, err)
			require.Equal(t, tt.viewLeft, exists)
		})
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	// Each connection has its own in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}
