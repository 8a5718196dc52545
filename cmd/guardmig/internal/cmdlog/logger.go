// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package cmdlog

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guardmig/guardmig/sql/migrate"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// List of supported log formats.
const (
	LogFormatText   = "text"
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

// NewLogger returns a migrate.Logger that reports the progress of a run to w in the
// given format. The level is one of: debug, info, warn or error. Statements are
// logged in debug level.
func NewLogger(w io.Writer, format, lvl string) (migrate.Logger, error) {
	switch format {
	case "":
		return migrate.NopLogger{}, nil
	case LogFormatText:
		return &LogTTY{out: w}, nil
	case LogFormatLogfmt:
		return NewKitLogger(log.NewLogfmtLogger(log.NewSyncWriter(w)), lvl)
	case LogFormatJSON:
		return NewKitLogger(log.NewJSONLogger(log.NewSyncWriter(w)), lvl)
	default:
		return nil, fmt.Errorf("unknown log-format %q", format)
	}
}

// KitLogger is a migrate.Logger that writes structured log lines using go-kit/log.
type KitLogger struct {
	base   log.Logger
	logger log.Logger // base logger with the current run_id
}

// NewKitLogger wraps the given go-kit logger. Log lines below the given level are dropped.
func NewKitLogger(l log.Logger, lvl string) (*KitLogger, error) {
	opt, err := levelOption(lvl)
	if err != nil {
		return nil, err
	}
	l = level.NewFilter(l, opt)
	l = log.With(l, "ts", log.DefaultTimestampUTC)
	return &KitLogger{base: l, logger: l}, nil
}

func levelOption(lvl string) (level.Option, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, fmt.Errorf("unknown log-level %q", lvl)
	}
}

// Log implements the migrate.Logger interface.
func (l *KitLogger) Log(e migrate.LogEntry) {
	switch e := e.(type) {
	case migrate.LogExecution:
		l.logger = log.With(l.base, "run_id", e.RunID)
		level.Info(l.logger).Log("msg", "run started", "changes", len(e.Changes), "dry_run", e.DryRun)
	case migrate.LogChange:
		level.Debug(l.logger).Log("msg", "processing change", "index", e.Index, "kind", e.Change.Kind(), "target", e.Change.Key().String())
	case migrate.LogStmt:
		level.Debug(l.logger).Log("msg", "executing statement", "sql", e.SQL)
	case migrate.LogResult:
		if e.Error != nil {
			level.Error(l.logger).Log(
				"msg", "change failed",
				"index", e.Index,
				"kind", e.Kind,
				"target", e.Target,
				"stmt", e.Error.Stmt,
				"code", e.Error.Code,
				"err", e.Error.Err,
			)
			return
		}
		level.Info(l.logger).Log("msg", "change done", "index", e.Index, "kind", e.Kind, "target", e.Target, "status", e.Status, "took", e.Duration())
	case migrate.LogVerify:
		for _, t := range e.Targets {
			if t.Error != "" {
				level.Error(l.logger).Log("msg", "verification lookup failed", "target", t.Target, "err", t.Error)
			}
		}
		for _, m := range e.Mismatches {
			level.Warn(l.logger).Log("msg", "verification mismatch", "kind", m.Key.Kind, "target", m.Key.String())
		}
		level.Info(l.logger).Log("msg", "verification done", "targets", len(e.Targets), "absent", len(e.Absent()))
	case migrate.LogDone:
		level.Info(l.logger).Log(
			"msg", "run done",
			"ok", e.Ok(),
			"applied", e.Count(migrate.StatusApplied),
			"present", e.Count(migrate.StatusPresent),
			"planned", e.Count(migrate.StatusPlanned),
			"failed", e.Count(migrate.StatusFailed),
			"took", e.Duration(),
		)
	}
}

// LogTTY is a migrate.Logger that pretty prints the run progress.
// If the connected out is not a tty, it falls back to a non-colorful output.
type LogTTY struct {
	out   io.Writer
	start time.Time
	stmts int
}

var (
	cyan         = color.CyanString
	red          = color.HiRedString
	redBgWhiteFg = color.New(color.FgHiWhite, color.BgHiRed).SprintFunc()
	yellow       = color.YellowString
	dash         = yellow("--")
	arr          = cyan("->")
	indent2      = "  "
	indent4      = indent2 + indent2
)

// Log implements the migrate.Logger interface.
func (l *LogTTY) Log(e migrate.LogEntry) {
	switch e := e.(type) {
	case migrate.LogExecution:
		l.start, l.stmts = time.Now(), 0
		verb := "Applying"
		if e.DryRun {
			verb = "Planning"
		}
		fmt.Fprintf(l.out, "%s %d %s (run %s):\n", verb, len(e.Changes), plural("change", len(e.Changes)), e.RunID)
	case migrate.LogChange:
		fmt.Fprintf(l.out, "\n%s%v %s\n", indent2, dash, migrate.Describe(e.Change))
	case migrate.LogStmt:
		l.stmts++
		fmt.Fprintf(l.out, "%s%v %s\n", indent4, arr, e.SQL)
	case migrate.LogResult:
		if e.Error != nil {
			fmt.Fprintf(l.out, "%s%s\n", indent4, redBgWhiteFg(e.Error.Error()))
			return
		}
		fmt.Fprintf(l.out, "%s%v %s (%v)\n", indent2, dash, status(e.Status), yellow("%s", e.Duration()))
	case migrate.LogVerify:
		for _, m := range e.Mismatches {
			fmt.Fprintf(l.out, "%s%s\n", indent2, red(m.Error()))
		}
	case migrate.LogDone:
		fmt.Fprintf(l.out, "\n%s%v\n", indent2, cyan(strings.Repeat("-", 25)))
		fmt.Fprintf(l.out, "%s%v %v\n", indent2, dash, time.Since(l.start))
		fmt.Fprintf(l.out, "%s%v %d sql %s\n", indent2, dash, l.stmts, plural("statement", l.stmts))
		if n := e.Count(migrate.StatusFailed); n > 0 {
			fmt.Fprintf(l.out, "%s%v %s\n", indent2, dash, red("%d %s with errors", n, plural("change", n)))
		}
	}
}
