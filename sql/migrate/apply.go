// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guardmig/guardmig/sql/schema"

	"github.com/google/uuid"
)

type (
	// Applier applies an ordered list of changes on a database exactly once:
	// changes whose target already exists are skipped, and replaceable changes
	// are re-created on every run. The Applier is not safe for concurrent runs
	// against the same database, and it does not guard against it.
	Applier struct {
		drv    Driver
		log    Logger
		txMode TxMode
		dryRun bool
		now    func() time.Time
		runID  func() string
	}

	// ApplierOption allows configuring an Applier using functional arguments.
	ApplierOption func(*Applier) error

	// TxMode defines how the statements of a change are executed.
	TxMode string
)

// List of supported transaction modes.
const (
	// TxModeChange wraps the statements of each change in a transaction,
	// if the change is transactional and the driver supports it.
	TxModeChange TxMode = "change"
	// TxModeNone executes all statements directly on the connection.
	TxModeNone TxMode = "none"
)

// NewApplier creates a new Applier for the given driver.
func NewApplier(drv Driver, opts ...ApplierOption) (*Applier, error) {
	if drv == nil {
		return nil, errors.New("sql/migrate: no driver given")
	}
	a := &Applier{
		drv:    drv,
		log:    NopLogger{},
		txMode: TxModeChange,
		now:    time.Now,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// WithLogger sets the Logger of the Applier.
func WithLogger(l Logger) ApplierOption {
	return func(a *Applier) error {
		if l == nil {
			l = NopLogger{}
		}
		a.log = l
		return nil
	}
}

// WithTxMode configures the transaction mode of the Applier.
func WithTxMode(m TxMode) ApplierOption {
	return func(a *Applier) error {
		switch m {
		case TxModeChange, TxModeNone:
			a.txMode = m
		case "":
			a.txMode = TxModeChange
		default:
			return fmt.Errorf("sql/migrate: unknown tx-mode %q", m)
		}
		return nil
	}
}

// WithDryRun configures the Applier to only look up and plan
// changes, without executing any statement on the database.
func WithDryRun(b bool) ApplierOption {
	return func(a *Applier) error {
		a.dryRun = b
		return nil
	}
}

// Apply applies the changes in order and returns a report of the run. A failure
// of a single change is recorded in its result and does not stop the run. Hence,
// an error is returned only if the input itself is invalid.
func (a *Applier) Apply(ctx context.Context, changes []Change) (*Report, error) {
	if err := Validate(changes); err != nil {
		return nil, err
	}
	r := &Report{
		RunID:   a.runID(),
		DryRun:  a.dryRun,
		Start:   a.now(),
		Results: make([]*Result, 0, len(changes)),
	}
	a.log.Log(LogExecution{RunID: r.RunID, Changes: changes, DryRun: a.dryRun})
	for i, c := range changes {
		res := a.apply(ctx, i, c)
		r.Results = append(r.Results, res)
		a.log.Log(LogResult{Result: res})
	}
	r.Verification = a.verify(ctx, changes, r.Results)
	a.log.Log(LogVerify{Verification: r.Verification})
	r.End = a.now()
	a.log.Log(LogDone{Report: r})
	return r, nil
}

// Verify looks up every distinct target of the given changes, without
// applying anything. Absent targets are not reported as mismatches, as
// there is no run to compare with.
func (a *Applier) Verify(ctx context.Context, changes []Change) (*Verification, error) {
	if err := Validate(changes); err != nil {
		return nil, err
	}
	v := a.lookup(ctx, changes)
	a.log.Log(LogVerify{Verification: v})
	return v, nil
}

// apply processes a single change and returns its result.
func (a *Applier) apply(ctx context.Context, i int, c Change) (res *Result) {
	res = newResult(i, c)
	res.Start = a.now()
	defer func() { res.End = a.now() }()
	a.log.Log(LogChange{Index: i, Change: c})
	fail := func(stmt string, err error) *Result {
		res.Status = StatusFailed
		res.Error = newApplyError(res.Key, stmt, err)
		return res
	}
	// A canceled run records the remaining changes as failed
	// in order to keep the report aligned with the changes.
	if err := ctx.Err(); err != nil {
		return fail("", err)
	}
	if !Replaceable(c) {
		switch exists, err := a.drv.Exists(ctx, res.Key); {
		case err != nil:
			return fail("", fmt.Errorf("look up %s: %w", res.Key.Kind, err))
		case exists:
			res.Status = StatusPresent
			return res
		}
	}
	if p, ok := res.Key.Parent(); ok {
		switch exists, err := a.drv.Exists(ctx, p); {
		case err != nil:
			return fail("", fmt.Errorf("look up %s: %w", p.Kind, err))
		case !exists:
			return fail("", &schema.NotExistError{Err: fmt.Errorf("table %q does not exist", p.String())})
		}
	}
	plan, err := a.drv.PlanChange(ctx, c)
	if err != nil {
		return fail("", err)
	}
	if a.dryRun {
		res.Status = StatusPlanned
		res.Stmts = cmds(plan.Stmts)
		return res
	}
	if stmt, err := a.exec(ctx, plan); err != nil {
		return fail(stmt, err)
	}
	res.Status = StatusApplied
	res.Stmts = cmds(plan.Stmts)
	return res
}

// exec executes the statements of the plan, and returns the failed
// statement along with its error, if any.
func (a *Applier) exec(ctx context.Context, p *Plan) (string, error) {
	var (
		tx *sql.Tx
		ex schema.ExecQuerier = a.drv
	)
	if o, ok := a.drv.(TxOpener); ok && p.Transactional && a.txMode == TxModeChange {
		var err error
		if tx, err = o.BeginTx(ctx, nil); err != nil {
			return "", fmt.Errorf("sql/migrate: begin transaction: %w", err)
		}
		ex = tx
	}
	for _, s := range p.Stmts {
		a.log.Log(LogStmt{SQL: s.Cmd})
		if _, err := ex.ExecContext(ctx, s.Cmd, s.Args...); err != nil {
			if tx != nil {
				if rerr := tx.Rollback(); rerr != nil {
					err = fmt.Errorf("%w: %v", err, rerr)
				}
			}
			return s.Cmd, err
		}
	}
	if tx != nil {
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("sql/migrate: commit transaction: %w", err)
		}
	}
	return "", nil
}

// verify runs the verification pass after all changes were processed.
func (a *Applier) verify(ctx context.Context, changes []Change, results []*Result) *Verification {
	v := a.lookup(ctx, changes)
	if a.dryRun {
		return v
	}
	failed := make(map[schema.Ident]bool)
	for _, r := range results {
		if r.Status == StatusFailed {
			failed[r.Key] = true
		}
	}
	for _, t := range v.Targets {
		if !t.Present && t.Error == "" && !failed[t.Key] {
			v.Mismatches = append(v.Mismatches, &VerificationMismatch{Key: t.Key})
		}
	}
	return v
}

// lookup returns the presence state of all distinct targets.
func (a *Applier) lookup(ctx context.Context, changes []Change) *Verification {
	var (
		v    = &Verification{}
		seen = make(map[schema.Ident]bool, len(changes))
	)
	for _, c := range changes {
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		t := &TargetState{Target: key.String(), Key: key}
		exists, err := a.drv.Exists(ctx, key)
		if err != nil {
			t.Error = err.Error()
		}
		t.Present = exists
		v.Targets = append(v.Targets, t)
	}
	return v
}

func cmds(stmts []*Stmt) []string {
	s := make([]string, len(stmts))
	for i := range stmts {
		s[i] = stmts[i].Cmd
	}
	return s
}
