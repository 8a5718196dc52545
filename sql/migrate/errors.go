// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/guardmig/guardmig/sql/schema"
)

type (
	// An ApplyError is recorded when a change could not be applied, e.g.
	// when the database rejected one of its statements. ApplyErrors are
	// captured in the report and never stop the run.
	ApplyError struct {
		// Key is the identifier of the change target.
		Key schema.Ident
		// Stmt is the statement that failed, if the error
		// was returned by the database on execution.
		Stmt string
		// Code is the error code reported by the database engine, if any.
		Code string
		// Err is the underlying error.
		Err error
	}

	// A VerificationMismatch is reported when a target is absent from the catalog
	// after the run, although no failure was recorded for it. It indicates a bug in
	// the presence lookup or a concurrent actor that mutated the database, and it
	// means the migration did not converge.
	VerificationMismatch struct {
		Key schema.Ident
	}
)

func newApplyError(key schema.Ident, stmt string, err error) *ApplyError {
	return &ApplyError{
		Key:  key,
		Stmt: stmt,
		Code: engineCode(err),
		Err:  err,
	}
}

// Target returns the qualified name of the change target.
func (e *ApplyError) Target() string { return e.Key.String() }

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("sql/migrate: %s %q: %v", e.Key.Kind, e.Key.String(), e.Err)
	if e.Code != "" {
		msg += fmt.Sprintf(" (code %s)", e.Code)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ApplyError) Unwrap() error { return e.Err }

// MarshalJSON implements json.Marshaler.
func (e *ApplyError) MarshalJSON() ([]byte, error) {
	var text string
	if e.Err != nil {
		text = e.Err.Error()
	}
	return json.Marshal(struct {
		Target string `json:"Target"`
		Stmt   string `json:"Stmt,omitempty"`
		Code   string `json:"Code,omitempty"`
		Text   string `json:"Text"`
	}{
		Target: e.Target(),
		Stmt:   e.Stmt,
		Code:   e.Code,
		Text:   text,
	})
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("sql/migrate: %s %q is absent after migration but no failure was recorded for it", e.Key.Kind, e.Key.String())
}

// MarshalJSON implements json.Marshaler.
func (e *VerificationMismatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Target string `json:"Target"`
		Kind   string `json:"Kind"`
	}{
		Target: e.Key.String(),
		Kind:   e.Key.Kind.String(),
	})
}

// IsApplyError reports if the error is, or wraps, an ApplyError.
func IsApplyError(err error) bool {
	var e *ApplyError
	return errors.As(err, &e)
}

// IsVerificationMismatch reports if the error is, or wraps, a VerificationMismatch.
func IsVerificationMismatch(err error) bool {
	var e *VerificationMismatch
	return errors.As(err, &e)
}

// engineCode extracts the error number reported by the database
// driver. SQL Server drivers expose SQLErrorNumber, and SQLite
// drivers expose Code.
func engineCode(err error) string {
	var mssql interface{ SQLErrorNumber() int32 }
	if errors.As(err, &mssql) {
		return strconv.Itoa(int(mssql.SQLErrorNumber()))
	}
	var sqlite interface{ Code() int }
	if errors.As(err, &sqlite) {
		return strconv.Itoa(sqlite.Code())
	}
	return ""
}
