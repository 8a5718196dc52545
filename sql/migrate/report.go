// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"fmt"
	"time"

	"github.com/guardmig/guardmig/sql/schema"

	"github.com/hashicorp/go-multierror"
)

// Status describes the final state of a change in a run.
type Status string

// List of change statuses.
const (
	// StatusApplied marks a change that was executed successfully.
	StatusApplied Status = "applied"
	// StatusPresent marks a change whose target already existed.
	StatusPresent Status = "already-present"
	// StatusFailed marks a change that could not be applied.
	StatusFailed Status = "failed"
	// StatusPlanned marks a change that would be executed in a dry run.
	StatusPlanned Status = "planned"
)

type (
	// Report contains the outcome of a run. Results are ordered and aligned
	// with the changes given to Apply: Results[i] describes changes[i]. A
	// Report is plain data and can be serialized for audit logging.
	Report struct {
		RunID string `json:"RunID"`
		// Driver names the dialect the run was executed on. Set by the caller.
		Driver       string        `json:"Driver,omitempty"`
		DryRun       bool          `json:"DryRun,omitempty"`
		Start        time.Time     `json:"Start"`
		End          time.Time     `json:"End"`
		Results      []*Result     `json:"Results"`
		Verification *Verification `json:"Verification,omitempty"`
	}

	// Result holds the outcome of a single change.
	Result struct {
		Index  int          `json:"Index"`
		Kind   ChangeKind   `json:"Kind"`
		Target string       `json:"Target"`
		Key    schema.Ident `json:"Key"`
		Status Status       `json:"Status"`
		// Stmts holds the executed statements, or the planned ones in dry runs.
		Stmts []string    `json:"Stmts,omitempty"`
		Error *ApplyError `json:"Error,omitempty"`
		Start time.Time   `json:"Start"`
		End   time.Time   `json:"End"`
		// Change that produced this result.
		Change Change `json:"-"`
	}

	// Verification holds the presence of every distinct target after a run,
	// regardless of the recorded results. Targets are ordered by their first
	// appearance in the changes.
	Verification struct {
		Targets    []*TargetState          `json:"Targets"`
		Mismatches []*VerificationMismatch `json:"Mismatches,omitempty"`
	}

	// TargetState describes the presence of a single target.
	TargetState struct {
		Target  string       `json:"Target"`
		Key     schema.Ident `json:"Key"`
		Present bool         `json:"Present"`
		// Error is set if the lookup itself failed.
		Error string `json:"Error,omitempty"`
	}
)

func newResult(i int, c Change) *Result {
	key := c.Key()
	return &Result{
		Index:  i,
		Kind:   c.Kind(),
		Target: key.String(),
		Key:    key,
		Change: c,
	}
}

// Duration returns the time it took to process the change.
func (r *Result) Duration() time.Duration { return r.End.Sub(r.Start) }

// Count returns the number of results with the given status.
func (r *Report) Count(s Status) (n int) {
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the results of the changes that failed.
func (r *Report) Failed() []*Result {
	var failed []*Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Duration returns the duration of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

// Ok reports if the run converged: no change failed, and every target is
// present. In dry runs, absent targets are expected and are not considered.
func (r *Report) Ok() bool {
	if r.Count(StatusFailed) > 0 {
		return false
	}
	return r.DryRun || r.Verification == nil || r.Verification.Ok()
}

// Err returns all errors of the run as a single error, or nil if Ok.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Failed() {
		err = multierror.Append(err, res.Error)
	}
	if r.Verification != nil && !r.DryRun {
		for _, m := range r.Verification.Mismatches {
			err = multierror.Append(err, m)
		}
		for _, t := range r.Verification.Targets {
			if t.Error != "" {
				err = multierror.Append(err, fmt.Errorf("sql/migrate: verify %s %q: %s", t.Key.Kind, t.Target, t.Error))
			}
		}
	}
	return err
}

// Ok reports if all targets are present.
func (v *Verification) Ok() bool {
	return len(v.Absent()) == 0
}

// Absent returns the targets that are missing from the catalog.
func (v *Verification) Absent() []*TargetState {
	var absent []*TargetState
	for _, t := range v.Targets {
		if !t.Present {
			absent = append(absent, t)
		}
	}
	return absent
}

// Target returns the state of the given target.
func (v *Verification) Target(key schema.Ident) (*TargetState, bool) {
	for _, t := range v.Targets {
		if t.Key == key {
			return t, true
		}
	}
	return nil, false
}
