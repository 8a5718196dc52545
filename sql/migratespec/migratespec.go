// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package migratespec decodes HCL change documents into an ordered list of
// migrate.Change. For example:
//
//	variable "notification_log" {
//	  type    = bool
//	  default = true
//	}
//
//	column "UsuarioADNombre" {
//	  table = "Asignaciones"
//	  type  = "NVARCHAR(255)"
//	}
//
//	index "IX_Asignaciones_UsuarioADNombre" {
//	  table   = "Asignaciones"
//	  columns = ["UsuarioADNombre"]
//	  where   = "UsuarioADNombre IS NOT NULL"
//	}
//
//	table "NotificacionesLog" {
//	  enabled = var.notification_log
//	  ...
//	}
//
// Changes are returned in the order their blocks are declared.
package migratespec

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

type (
	// Doc is a decoded change document.
	Doc struct {
		// Schema is the default schema of the document changes, if set.
		Schema string
		// Changes to apply, in declaration order.
		Changes []migrate.Change
		// Vars holds the resolved values of the document variables.
		Vars map[string]cty.Value
	}

	// Option configures the decoding of a document.
	Option func(*config)

	config struct {
		vars   map[string]cty.Value
		schema string
	}
)

// WithVars sets the input values for the document variables.
func WithVars(vars map[string]cty.Value) Option {
	return func(c *config) {
		c.vars = vars
	}
}

// WithSchema sets the schema used for changes that do not set one, and
// overrides the top-level schema attribute of the document.
func WithSchema(s string) Option {
	return func(c *config) {
		c.schema = s
	}
}

// ParseFile decodes the change document in the given path.
func ParseFile(path string, opts ...Option) (*Doc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migratespec: read file: %w", err)
	}
	return Parse(b, path, opts...)
}

// ParseFS decodes the named change document from the file system.
func ParseFS(fsys fs.FS, name string, opts ...Option) (*Doc, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("migratespec: read file: %w", err)
	}
	return Parse(b, name, opts...)
}

// Parse decodes the given change document. Decoding errors are returned as
// hcl.Diagnostics, holding the source range of the invalid definition.
func Parse(b []byte, filename string, opts ...Option) (*Doc, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	f, diags := hclparse.NewParser().ParseHCL(b, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("migratespec: unexpected body type %T", f.Body)
	}
	ctx := newContext()
	vars, err := inputVars(ctx, body, cfg.vars)
	if err != nil {
		return nil, err
	}
	ctx.Variables["var"] = cty.ObjectVal(vars)
	doc := &Doc{Vars: vars}
	for name, attr := range body.Attributes {
		if name != "schema" {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unsupported argument",
				Detail:   fmt.Sprintf("An argument named %q is not expected here.", name),
				Subject:  attr.NameRange.Ptr(),
			}}
		}
		if diags := gohcl.DecodeExpression(attr.Expr, ctx, &doc.Schema); diags.HasErrors() {
			return nil, diags
		}
	}
	if cfg.schema != "" {
		doc.Schema = cfg.schema
	}
	for _, blk := range body.Blocks {
		if blk.Type == "variable" {
			continue
		}
		c, err := decodeBlock(ctx, blk, doc.Schema)
		if err != nil {
			return nil, err
		}
		if c != nil {
			doc.Changes = append(doc.Changes, c)
		}
	}
	return doc, nil
}

type (
	// columnHCL is used by column blocks.
	columnHCL struct {
		Table   string  `hcl:"table,optional"`
		Schema  string  `hcl:"schema,optional"`
		Type    string  `hcl:"type"`
		Null    *bool   `hcl:"null,optional"`
		Default *string `hcl:"default,optional"`
		Enabled *bool   `hcl:"enabled,optional"`
	}

	indexHCL struct {
		Table   string   `hcl:"table"`
		Schema  string   `hcl:"schema,optional"`
		Columns []string `hcl:"columns"`
		Desc    []string `hcl:"desc,optional"`
		Unique  bool     `hcl:"unique,optional"`
		Include []string `hcl:"include,optional"`
		Where   string   `hcl:"where,optional"`
		Enabled *bool    `hcl:"enabled,optional"`
	}

	viewHCL struct {
		Schema  string `hcl:"schema,optional"`
		As      string `hcl:"as"`
		Enabled *bool  `hcl:"enabled,optional"`
	}

	procHCL struct {
		Schema  string      `hcl:"schema,optional"`
		Params  []*paramHCL `hcl:"param,block"`
		As      string      `hcl:"as"`
		Enabled *bool       `hcl:"enabled,optional"`
	}

	paramHCL struct {
		Name    string  `hcl:",label"`
		Type    string  `hcl:"type"`
		Default *string `hcl:"default,optional"`
		Output  bool    `hcl:"output,optional"`
	}

	tableHCL struct {
		Schema     string            `hcl:"schema,optional"`
		Columns    []*tableColumnHCL `hcl:"column,block"`
		PrimaryKey []string          `hcl:"primary_key,optional"`
		Comment    string            `hcl:"comment,optional"`
		Enabled    *bool             `hcl:"enabled,optional"`
	}

	tableColumnHCL struct {
		Name    string  `hcl:",label"`
		Type    string  `hcl:"type"`
		Null    *bool   `hcl:"null,optional"`
		Default *string `hcl:"default,optional"`
	}
)

// decodeBlock decodes a single change block. A nil change
// is returned for blocks that are explicitly disabled.
func decodeBlock(ctx *hcl.EvalContext, blk *hclsyntax.Block, defaultSchema string) (migrate.Change, error) {
	if len(blk.Labels) != 1 || blk.Labels[0] == "" {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Missing name label",
			Detail:   fmt.Sprintf("A %s block must have exactly one label: the object name.", blk.Type),
			Subject:  blk.TypeRange.Ptr(),
		}}
	}
	name := blk.Labels[0]
	schemaOf := func(s string) string {
		if s != "" {
			return s
		}
		return defaultSchema
	}
	switch blk.Type {
	case "column":
		var v columnHCL
		if diags := gohcl.DecodeBody(blk.Body, ctx, &v); diags.HasErrors() {
			return nil, diags
		}
		if !enabled(v.Enabled) {
			return nil, nil
		}
		if v.Table == "" {
			return nil, missingAttr(blk, "table")
		}
		return &migrate.AddColumn{Schema: schemaOf(v.Schema), Table: v.Table, C: newColumn(name, v.Type, v.Null, v.Default)}, nil
	case "index":
		var v indexHCL
		if diags := gohcl.DecodeBody(blk.Body, ctx, &v); diags.HasErrors() {
			return nil, diags
		}
		if !enabled(v.Enabled) {
			return nil, nil
		}
		if len(v.Columns) == 0 {
			return nil, missingAttr(blk, "columns")
		}
		idx := &schema.Index{Name: name, Unique: v.Unique, Include: v.Include, Where: v.Where}
		desc := make(map[string]bool, len(v.Desc))
		for _, c := range v.Desc {
			desc[c] = true
		}
		for _, c := range v.Columns {
			idx.AddParts(&schema.IndexPart{Column: c, Desc: desc[c]})
		}
		return &migrate.CreateIndex{Schema: schemaOf(v.Schema), Table: v.Table, I: idx}, nil
	case "view":
		var v viewHCL
		if diags := gohcl.DecodeBody(blk.Body, ctx, &v); diags.HasErrors() {
			return nil, diags
		}
		if !enabled(v.Enabled) {
			return nil, nil
		}
		return &migrate.ReplaceView{Schema: schemaOf(v.Schema), V: schema.NewView(name, v.As)}, nil
	case "procedure":
		var v procHCL
		if diags := gohcl.DecodeBody(blk.Body, ctx, &v); diags.HasErrors() {
			return nil, diags
		}
		if !enabled(v.Enabled) {
			return nil, nil
		}
		p := schema.NewProc(name, v.As)
		for _, pv := range v.Params {
			pp := &schema.ProcParam{Name: pv.Name, Type: pv.Type, Output: pv.Output}
			if pv.Default != nil {
				pp.Default = *pv.Default
			}
			p.AddParams(pp)
		}
		return &migrate.ReplaceProc{Schema: schemaOf(v.Schema), P: p}, nil
	case "table":
		var v tableHCL
		if diags := gohcl.DecodeBody(blk.Body, ctx, &v); diags.HasErrors() {
			return nil, diags
		}
		if !enabled(v.Enabled) {
			return nil, nil
		}
		if len(v.Columns) == 0 {
			return nil, missingAttr(blk, "column")
		}
		t := schema.NewTable(name).SetPrimaryKey(v.PrimaryKey...)
		for _, c := range v.Columns {
			t.AddColumns(newColumn(c.Name, c.Type, c.Null, c.Default))
		}
		for _, k := range v.PrimaryKey {
			if _, ok := t.Column(k); !ok {
				return nil, hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Unknown primary key column",
					Detail:   fmt.Sprintf("Column %q of the primary key is not defined in table %q.", k, name),
					Subject:  blk.DefRange().Ptr(),
				}}
			}
		}
		if v.Comment != "" {
			t.SetComment(v.Comment)
		}
		return &migrate.CreateTable{Schema: schemaOf(v.Schema), T: t}, nil
	default:
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported block type",
			Detail:   fmt.Sprintf("Blocks of type %q are not expected here. Supported types: column, index, view, procedure, table and variable.", blk.Type),
			Subject:  blk.TypeRange.Ptr(),
		}}
	}
}

// newColumn returns a column definition. Columns are nullable unless
// stated otherwise, as new columns are added to populated tables.
func newColumn(name, typ string, null *bool, def *string) *schema.Column {
	c := schema.NewColumn(name, typ)
	if null != nil {
		c.Null = *null
	}
	if def != nil {
		c.SetDefault(*def)
	}
	return c
}

func enabled(b *bool) bool {
	return b == nil || *b
}

func missingAttr(blk *hclsyntax.Block, name string) error {
	return hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Missing required argument",
		Detail:   fmt.Sprintf("The argument %q is required in %s %q.", name, blk.Type, blk.Labels[0]),
		Subject:  blk.DefRange().Ptr(),
	}}
}

// inputVars resolves the values of the variable blocks defined in the document:
//
//	variable "name" {
//	  type    = string // also supported: number, bool, list(string), ...
//	  default = "dbo"
//	}
//
// Input values are converted to the variable type. Variables without a
// default value must be given as input.
func inputVars(ctx *hcl.EvalContext, body *hclsyntax.Body, input map[string]cty.Value) (map[string]cty.Value, error) {
	vars := make(map[string]cty.Value)
	declared := make(map[string]bool)
	for _, blk := range body.Blocks {
		if blk.Type != "variable" {
			continue
		}
		if len(blk.Labels) != 1 {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Missing name label",
				Detail:   "A variable block must have exactly one label: the variable name.",
				Subject:  blk.TypeRange.Ptr(),
			}}
		}
		name := blk.Labels[0]
		if declared[name] {
			return nil, fmt.Errorf("migratespec: duplicate variable %q", name)
		}
		declared[name] = true
		var (
			typ    = cty.DynamicPseudoType
			def    cty.Value
			hasDef bool
		)
		for an, attr := range blk.Body.Attributes {
			switch an {
			case "type":
				t, diags := typeexpr.TypeConstraint(attr.Expr)
				if diags.HasErrors() {
					return nil, diags
				}
				typ = t
			case "default":
				v, diags := attr.Expr.Value(ctx)
				if diags.HasErrors() {
					return nil, diags
				}
				def, hasDef = v, true
			case "description":
			default:
				return nil, hcl.Diagnostics{{
					Severity: hcl.DiagError,
					Summary:  "Unsupported argument",
					Detail:   fmt.Sprintf("An argument named %q is not expected in variable %q.", an, name),
					Subject:  attr.NameRange.Ptr(),
				}}
			}
		}
		var v cty.Value
		switch iv, ok := input[name]; {
		case ok:
			v = iv
		case hasDef:
			v = def
		default:
			return nil, fmt.Errorf("migratespec: missing value for required variable %q", name)
		}
		// A primitive input given for a list variable is wrapped as a list,
		// as the variable type may not be known to the caller.
		if typ.IsListType() && v.Type().Equals(cty.String) {
			v = cty.ListVal([]cty.Value{v})
		}
		cv, err := convert.Convert(v, typ)
		if err != nil {
			return nil, fmt.Errorf("migratespec: variable %q: %w", name, err)
		}
		vars[name] = cv
	}
	var undeclared []string
	for name := range input {
		if !declared[name] {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return nil, fmt.Errorf("migratespec: undeclared variables given as input: %q", undeclared)
	}
	return vars, nil
}
