// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

type (
	// Logger is used by the Applier to report on the progress of a run.
	Logger interface {
		Log(LogEntry)
	}

	// LogEntry marks several types of logs to be passed to a Logger.
	LogEntry interface {
		logEntry()
	}

	// LogExecution is sent once when a run starts.
	LogExecution struct {
		// RunID identifies the run.
		RunID string
		// Changes to be processed.
		Changes []Change
		// DryRun is set when no statement is executed.
		DryRun bool
	}

	// LogChange is sent before a change is processed.
	LogChange struct {
		Index  int
		Change Change
	}

	// LogStmt is sent before a statement is executed.
	LogStmt struct {
		SQL string
	}

	// LogResult is sent after a change reached its final state.
	LogResult struct {
		*Result
	}

	// LogVerify is sent when the verification pass is done.
	LogVerify struct {
		*Verification
	}

	// LogDone is sent when the run is done.
	LogDone struct {
		*Report
	}

	// NopLogger is a Logger that does nothing.
	NopLogger struct{}

	// LoggerFunc allows using a function as a Logger.
	LoggerFunc func(LogEntry)
)

func (LogExecution) logEntry() {}
func (LogChange) logEntry()    {}
func (LogStmt) logEntry()      {}
func (LogResult) logEntry()    {}
func (LogVerify) logEntry()    {}
func (LogDone) logEntry()      {}

// Log implements the Logger interface.
func (NopLogger) Log(LogEntry) {}

// Log calls f(e).
func (f LoggerFunc) Log(e LogEntry) { f(e) }

