// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package cmdapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	seed = `CREATE TABLE Asignaciones (AsignacionId INTEGER PRIMARY KEY, ProductoId INTEGER NOT NULL, Activo INTEGER NOT NULL DEFAULT 1)`
	doc  = `
variable "notification_log" {
  type    = bool
  default = true
}

column "UsuarioADNombre" {
  table = "Asignaciones"
  type  = "TEXT"
}

column "UsuarioADEmail" {
  table = "Asignaciones"
  type  = "TEXT"
}

index "IX_Asignaciones_UsuarioADNombre" {
  table   = "Asignaciones"
  columns = ["UsuarioADNombre"]
  where   = "UsuarioADNombre IS NOT NULL"
}

view "vw_AsignacionesUsuarioAD" {
  as = "SELECT AsignacionId, COALESCE(NULLIF(UsuarioADNombre, ''), 'Sin asignar') AS UsuarioAsignado FROM Asignaciones"
}

table "NotificacionesLog" {
  enabled = var.notification_log
  column "NotificacionId" {
    type = "INTEGER"
    null = false
  }
  column "Destinatario" {
    type = "TEXT"
  }
  primary_key = ["NotificacionId"]
}
`
)

func writeDoc(t *testing.T, dir, content string) string {
	path := filepath.Join(dir, "changes.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestApply(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), doc)
	)
	out, err := runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file)
	require.NoError(t, err, out)
	require.True(t, strings.HasPrefix(out, "Applying 5 changes on sqlite (run "), out)
	require.Contains(t, out, "-- add-column Asignaciones.UsuarioADNombre: applied")
	require.Contains(t, out, `-> ALTER TABLE "Asignaciones" ADD COLUMN "UsuarioADNombre" TEXT`)
	require.Contains(t, out, "-- create-table-if-absent NotificacionesLog: applied")
	require.Contains(t, out, "-- 5 applied, 0 already present, 0 failed")
	require.Contains(t, out, "-- 5 targets verified, 0 absent")

	// Second run is a no-op, except for the view.
	out, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--format", "{{ json . }}")
	require.NoError(t, err, out)
	var r struct {
		Ok                       bool
		Applied, Present, Failed int
		Driver                   string
	}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.True(t, r.Ok)
	require.Equal(t, "sqlite", r.Driver)
	require.Equal(t, 1, r.Applied)
	require.Equal(t, 4, r.Present)
	require.Zero(t, r.Failed)
}

func TestApply_Vars(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), doc)
	)
	out, err := runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--var", "notification_log=false", "--format", `{{ len .Results }}`)
	require.NoError(t, err, out)
	require.Equal(t, "4", out)

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--var", "unknown=1")
	require.EqualError(t, err, `migratespec: undeclared variables given as input: ["unknown"]`)
}

func TestApply_Failures(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), `
column "UsuarioADNombre" {
  table = "Asignaciones"
  type  = "TEXT"
}

column "UsuarioADNombre" {
  table = "Inexistente"
  type  = "TEXT"
}

procedure "sp_BuscarAsignacionesPorUsuarioAD" {
  as = "SELECT 1"
}
`)
	)
	out, err := runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--log-format", "logfmt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 errors occurred")
	require.Contains(t, err.Error(), `table "Inexistente" does not exist`)
	require.Contains(t, err.Error(), "stored procedures are not supported")
	require.Contains(t, out, "-- add-column Asignaciones.UsuarioADNombre: applied")
	require.Contains(t, out, "-- add-column Inexistente.UsuarioADNombre: failed")
	require.Contains(t, out, `level=error`)
	require.Contains(t, out, `msg="change failed"`)
	require.Contains(t, out, `msg="run done" ok=false applied=1 present=0 planned=0 failed=2`)
}

func TestApply_Errors(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), doc)
	)
	_, err := runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--tx-mode", "all")
	require.EqualError(t, err, `sql/migrate: unknown tx-mode "all"`)

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--log-format", "xml")
	require.EqualError(t, err, `unknown log-format "xml"`)

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "--format", "{{ .Unknown")
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse format:")

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", "oracle://localhost", "-f", file)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown driver "oracle"`)

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file, "-b", "ad_identity")
	require.Error(t, err)
	require.Contains(t, err.Error(), "none of the others can be")

	_, err = runCmd(newRoot(applyCmd()), "apply", "-u", u, "-b", "unknown")
	require.EqualError(t, err, `migrations: unknown built-in "unknown" (available: ad_identity)`)
}

func TestPlan(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), doc)
	)
	out, err := runCmd(newRoot(planCmd()), "plan", "-u", u, "-f", file)
	require.NoError(t, err, out)
	require.True(t, strings.HasPrefix(out, "Planning 5 changes on sqlite (run "), out)
	require.Contains(t, out, "-- add-column Asignaciones.UsuarioADNombre: planned")
	require.Contains(t, out, "-- 5 planned, 0 already present, 0 failed")

	// Nothing was executed.
	out, err = runCmd(newRoot(verifyCmd()), "verify", "-u", u, "-f", file)
	require.Error(t, err)
	require.Contains(t, err.Error(), `column "Asignaciones.UsuarioADNombre" is absent`)
	require.Contains(t, out, "5 targets absent")
}

func TestVerify(t *testing.T) {
	var (
		u    = openSQLite(t, seed)
		file = writeDoc(t, t.TempDir(), doc)
	)
	_, err := runCmd(newRoot(applyCmd()), "apply", "-u", u, "-f", file)
	require.NoError(t, err)
	out, err := runCmd(newRoot(verifyCmd()), "verify", "-u", u, "-f", file)
	require.NoError(t, err, out)
	require.True(t, strings.HasPrefix(out, "Verifying 5 targets on sqlite:\n"), out)
	require.Contains(t, out, "-- index Asignaciones.IX_Asignaciones_UsuarioADNombre: present")
	require.Contains(t, out, "All targets are present")

	out, err = runCmd(newRoot(verifyCmd()), "verify", "-u", u, "-f", file, "--format", `{{ range .Absent }}{{ .Target }}{{ end }}`)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestApply_Env(t *testing.T) {
	var (
		dir = t.TempDir()
		u   = openSQLite(t, seed)
	)
	writeDoc(t, dir, doc)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guardmig.hcl"), []byte(`
env "local" {
  url  = var.url
  file = "changes.hcl"
  vars = {
    notification_log = false
  }
  format {
    apply  = "{{ .Count \"applied\" }}/{{ len .Results }}"
    verify = "{{ len .Targets }}"
  }
}
`), 0600))
	cfg := "file://" + filepath.Join(dir, "guardmig.hcl")
	out, err := runCmd(newRoot(applyCmd()), "apply", "--env", "local", "-c", cfg, "--var", "url="+u)
	require.NoError(t, err, out)
	require.Equal(t, "4/4", out)

	out, err = runCmd(newRoot(verifyCmd()), "verify", "--env", "local", "-c", cfg, "--var", "url="+u)
	require.NoError(t, err, out)
	require.Equal(t, "4", out)

	// Flags override the environment.
	out, err = runCmd(newRoot(applyCmd()), "apply", "--env", "local", "-c", cfg, "--var", "url="+u, "--format", "{{ .Count \"already-present\" }}")
	require.NoError(t, err, out)
	require.Equal(t, "3", out)

	_, err = runCmd(newRoot(applyCmd()), "apply", "--env", "prod", "-c", cfg, "--var", "url="+u)
	require.EqualError(t, err, `env "prod" not defined in project file`)
}
