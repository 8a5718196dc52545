// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package cmdlog holds the report types and templates used by the guardmig commands.
package cmdlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/sqlclient"

	"github.com/fatih/color"
	"github.com/go-openapi/inflect"
	"github.com/olekukonko/tablewriter"
)

var (
	// ColorTemplateFuncs are globally available functions to color strings in a report template.
	ColorTemplateFuncs = template.FuncMap{
		"cyan":         color.CyanString,
		"green":        color.HiGreenString,
		"red":          color.HiRedString,
		"redBgWhiteFg": color.New(color.FgHiWhite, color.BgHiRed).SprintFunc(),
		"yellow":       color.YellowString,
	}
)

type (
	// Env holds the environment information.
	Env struct {
		Driver string `json:"Driver,omitempty"` // Driver name.
		URL    string `json:"URL,omitempty"`    // Redacted URL of the database.
	}

	// Apply contains the report of an 'apply' or 'plan' run.
	Apply struct {
		Env `json:"Env"`
		*migrate.Report
	}

	// Verify contains the report of a 'verify' run.
	Verify struct {
		Env `json:"Env"`
		*migrate.Verification
	}
)

// NewEnv returns an initialized Env.
func NewEnv(c *sqlclient.Client) Env {
	e := Env{Driver: c.Name}
	if c.URL != nil {
		e.URL = c.URL.Redacted()
	}
	return e
}

// NewApply returns an Apply report for the given run.
func NewApply(env Env, r *migrate.Report) *Apply {
	r.Driver = env.Driver
	return &Apply{Env: env, Report: r}
}

// NewVerify returns a Verify report for the given verification.
func NewVerify(env Env, v *migrate.Verification) *Verify {
	return &Verify{Env: env, Verification: v}
}

// MarshalJSON implements json.Marshaler.
func (a *Apply) MarshalJSON() ([]byte, error) {
	type local struct {
		Env     Env  `json:"Env"`
		Ok      bool `json:"Ok"`
		Applied int  `json:"Applied"`
		Present int  `json:"Present"`
		Planned int  `json:"Planned,omitempty"`
		Failed  int  `json:"Failed"`
		*migrate.Report
	}
	return json.Marshal(local{
		Env:     a.Env,
		Ok:      a.Ok(),
		Applied: a.Count(migrate.StatusApplied),
		Present: a.Count(migrate.StatusPresent),
		Planned: a.Count(migrate.StatusPlanned),
		Failed:  a.Count(migrate.StatusFailed),
		Report:  a.Report,
	})
}

// MarshalJSON implements json.Marshaler.
func (v *Verify) MarshalJSON() ([]byte, error) {
	type local struct {
		Env Env  `json:"Env"`
		Ok  bool `json:"Ok"`
		*migrate.Verification
	}
	return json.Marshal(local{Env: v.Env, Ok: v.Ok(), Verification: v.Verification})
}

var (
	// reportFuncs are shared by the default report templates.
	reportFuncs = merge(template.FuncMap{
		"plural": plural,
		"status": status,
	}, ColorTemplateFuncs)

	// ApplyTemplateFuncs are global functions available in apply report templates.
	ApplyTemplateFuncs = merge(template.FuncMap{
		"json":  jsonEncode,
		"table": table,
		"upper": strings.ToUpper,
		"default": func(a *Apply) (string, error) {
			var buf bytes.Buffer
			t, err := template.New("default").Funcs(reportFuncs).Parse(applyDefault)
			if err != nil {
				return "", err
			}
			err = t.Execute(&buf, a)
			return buf.String(), err
		},
	}, reportFuncs)

	// ApplyTemplate holds the default template of the 'apply' and 'plan' commands.
	ApplyTemplate = template.Must(template.New("report").Funcs(ApplyTemplateFuncs).Parse("{{ default . }}"))

	applyDefault = `
{{- if .DryRun }}Planning{{ else }}Applying{{ end }} {{ len .Results }} {{ plural "change" (len .Results) }}
{{- with .Env.Driver }} on {{ cyan . }}{{ end }} (run {{ .RunID }}):
{{ range .Results }}
  {{ yellow "--" }} {{ .Kind }} {{ cyan .Target }}: {{ status .Status }}
  {{- range .Stmts }}
    {{ cyan "->" }} {{ . }}
  {{- end }}
  {{- with .Error }}
    {{ redBgWhiteFg .Error }}
  {{- end }}
{{- end }}
  {{ cyan "-------------------------" }}
  {{ yellow "--" }} {{ .Duration }}
{{- if .DryRun }}
  {{ yellow "--" }} {{ .Count "planned" }} planned, {{ .Count "already-present" }} already present, {{ .Count "failed" }} failed
{{- else }}
  {{ yellow "--" }} {{ .Count "applied" }} applied, {{ .Count "already-present" }} already present, {{ .Count "failed" }} failed
{{- end }}
{{- with .Verification }}
  {{ yellow "--" }} {{ len .Targets }} {{ plural "target" (len .Targets) }} verified, {{ len .Absent }} absent
  {{- range .Mismatches }}
    {{ red .Error }}
  {{- end }}
{{- end }}
`

	// VerifyTemplateFuncs are global functions available in verify report templates.
	VerifyTemplateFuncs = merge(template.FuncMap{
		"json": jsonEncode,
	}, reportFuncs)

	// VerifyTemplate holds the default template of the 'verify' command.
	VerifyTemplate = template.Must(template.New("report").Funcs(VerifyTemplateFuncs).Parse(`
{{- $absent := len .Absent -}}
Verifying {{ len .Targets }} {{ plural "target" (len .Targets) }}{{ with .Env.Driver }} on {{ cyan . }}{{ end }}:
{{ range .Targets }}
  {{ yellow "--" }} {{ .Key.Kind }} {{ cyan .Target }}:
  {{- if .Error }} {{ red "error" }} ({{ .Error }})
  {{- else if .Present }} {{ green "present" }}
  {{- else }} {{ red "absent" }}
  {{- end }}
{{- end }}
{{ if eq $absent 0 }}  {{ green "All targets are present" }}{{ else }}  {{ red (printf "%d %s absent" $absent (plural "target" $absent)) }}{{ end }}
`))
)

// status returns the colored status of a change.
func status(s migrate.Status) string {
	switch s {
	case migrate.StatusApplied:
		return color.HiGreenString(string(s))
	case migrate.StatusPresent:
		return color.CyanString(string(s))
	case migrate.StatusPlanned:
		return color.YellowString(string(s))
	default:
		return color.HiRedString(string(s))
	}
}

// plural returns the plural form of the word if n is not 1.
func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return inflect.Pluralize(word)
}

func table(a *Apply) (string, error) {
	var buf strings.Builder
	tbl := tablewriter.NewWriter(&buf)
	tbl.SetRowLine(true)
	tbl.SetAutoWrapText(false)
	tbl.SetHeader([]string{
		"#",
		"Kind",
		"Target",
		"Status",
		"Execution Time",
		"Error",
		"SQL",
	})
	for _, r := range a.Results {
		var text, stmt string
		if r.Error != nil {
			text, stmt = r.Error.Err.Error(), r.Error.Stmt
			if r.Error.Code != "" {
				text = fmt.Sprintf("%s (code %s)", text, r.Error.Code)
			}
		}
		tbl.Append([]string{
			fmt.Sprint(r.Index + 1),
			string(r.Kind),
			r.Target,
			string(r.Status),
			r.Duration().Round(time.Microsecond).String(),
			text,
			stmt,
		})
	}
	tbl.Render()
	return buf.String(), nil
}

func merge(maps ...template.FuncMap) template.FuncMap {
	switch len(maps) {
	case 0:
		return nil
	case 1:
		return maps[0]
	default:
		m := make(template.FuncMap)
		for _, e := range maps {
			for k, v := range e {
				m[k] = v
			}
		}
		return m
	}
}

func jsonEncode(v any, args ...string) (string, error) {
	var (
		b   []byte
		err error
	)
	switch len(args) {
	case 0:
		b, err = json.Marshal(v)
	case 1:
		b, err = json.MarshalIndent(v, "", args[0])
	default:
		b, err = json.MarshalIndent(v, args[0], args[1])
	}
	return string(b), err
}
