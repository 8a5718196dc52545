// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestReport_Err(t *testing.T) {
	var (
		col = schema.ColumnIdent("dbo", "Asignaciones", "UsuarioADNombre")
		idx = schema.IndexIdent("dbo", "Asignaciones", "IX_Asignaciones_UsuarioADNombre")
		r   = &migrate.Report{
			Results: []*migrate.Result{
				{Key: col, Status: migrate.StatusApplied},
				{Key: idx, Status: migrate.StatusFailed, Error: &migrate.ApplyError{Key: idx, Stmt: "CREATE INDEX", Code: "1913", Err: errors.New("already exists")}},
			},
			Verification: &migrate.Verification{
				Targets: []*migrate.TargetState{
					{Key: col, Target: col.String(), Present: false},
					{Key: idx, Target: idx.String(), Present: false},
				},
				Mismatches: []*migrate.VerificationMismatch{{Key: col}},
			},
		}
	)
	require.False(t, r.Ok())
	require.Equal(t, 1, r.Count(migrate.StatusFailed))
	require.Len(t, r.Verification.Absent(), 2)
	err := r.Err()
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	require.True(t, migrate.IsApplyError(merr.Errors[0]))
	require.True(t, migrate.IsVerificationMismatch(merr.Errors[1]))
	require.Contains(t, merr.Errors[0].Error(), "(code 1913)")

	// Absent targets are expected in dry runs.
	r = &migrate.Report{
		DryRun:       true,
		Results:      []*migrate.Result{{Key: col, Status: migrate.StatusPlanned}},
		Verification: &migrate.Verification{Targets: []*migrate.TargetState{{Key: col, Present: false}}},
	}
	require.True(t, r.Ok())
	require.NoError(t, r.Err())
}

func TestReport_MarshalJSON(t *testing.T) {
	idx := schema.IndexIdent("dbo", "Asignaciones", "IX")
	r := &migrate.Report{
		RunID:  "run",
		Driver: "sqlserver",
		Results: []*migrate.Result{
			{Key: idx, Kind: migrate.KindCreateIndex, Target: idx.String(), Status: migrate.StatusFailed, Error: &migrate.ApplyError{Key: idx, Stmt: "CREATE INDEX", Err: errors.New("boom")}},
		},
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	var v struct {
		RunID   string
		Driver  string
		Results []struct {
			Status string
			Key    struct{ Kind, Schema, Table, Name string }
			Error  struct{ Target, Stmt, Text string }
		}
	}
	require.NoError(t, json.Unmarshal(b, &v))
	require.Equal(t, "sqlserver", v.Driver)
	require.Equal(t, "failed", v.Results[0].Status)
	require.Equal(t, "index", v.Results[0].Key.Kind)
	require.Equal(t, "boom", v.Results[0].Error.Text)
	require.Equal(t, "CREATE INDEX", v.Results[0].Error.Stmt)
}
