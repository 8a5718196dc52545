// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"strings"
)

type (
	// A Column represents a column definition.
	Column struct {
		Name string
		// Type holds the raw dialect type, e.g. NVARCHAR(255).
		Type    string
		Null    bool
		Default string // Raw default expression, if any.
	}

	// An Index represents an index definition. Indexes are
	// always defined on a table, and identified by their name.
	Index struct {
		Name    string
		Unique  bool
		Parts   []*IndexPart
		Include []string // Non-key columns (INCLUDE clause).
		Where   string   // Filter predicate of partial indexes.
		Attrs   []Attr
	}

	// An IndexPart represents a single key column of an index.
	IndexPart struct {
		Column string
		Desc   bool
	}

	// A View represents a view definition.
	View struct {
		Name string
		// Def holds the SELECT statement the view is defined by.
		Def string
	}

	// Proc represents a stored procedure definition.
	Proc struct {
		Name   string
		Params []*ProcParam
		Body   string // Procedure body only.
	}

	// A ProcParam represents a single procedure parameter.
	ProcParam struct {
		Name    string
		Type    string
		Default string // Raw default expression, if any.
		Output  bool
	}

	// A Table represents a table definition.
	Table struct {
		Name       string
		Columns    []*Column
		PrimaryKey []string
		Attrs      []Attr
	}

	// Attr represents the interface that all attributes implement.
	Attr interface {
		attr()
	}

	// Comment describes a schema element comment.
	Comment struct {
		Text string
	}
)

// NewTable creates a new Table.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// AddColumns adds the columns to the table.
func (t *Table) AddColumns(columns ...*Column) *Table {
	t.Columns = append(t.Columns, columns...)
	return t
}

// SetPrimaryKey sets the primary-key columns of the table.
func (t *Table) SetPrimaryKey(columns ...string) *Table {
	t.PrimaryKey = columns
	return t
}

// SetComment sets or updates the table comment.
func (t *Table) SetComment(c string) *Table {
	t.Attrs = replaceOrAppend(t.Attrs, &Comment{Text: c})
	return t
}

// Column returns the first column that matched the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// NewColumn creates a new nullable column with the given raw type.
func NewColumn(name, typ string) *Column {
	return &Column{Name: name, Type: typ, Null: true}
}

// NewNotNullColumn creates a new non-nullable column with the given raw type.
func NewNotNullColumn(name, typ string) *Column {
	return &Column{Name: name, Type: typ}
}

// SetDefault sets the raw default expression of the column.
func (c *Column) SetDefault(x string) *Column {
	c.Default = x
	return c
}

// NewIndex creates a new index with the given name.
func NewIndex(name string) *Index {
	return &Index{Name: name}
}

// NewUniqueIndex creates a new unique index with the given name.
func NewUniqueIndex(name string) *Index {
	return &Index{Name: name, Unique: true}
}

// AddColumns adds the columns as ascending key parts of the index.
func (i *Index) AddColumns(columns ...string) *Index {
	for _, c := range columns {
		i.Parts = append(i.Parts, &IndexPart{Column: c})
	}
	return i
}

// AddParts appends the given parts to the index.
func (i *Index) AddParts(parts ...*IndexPart) *Index {
	i.Parts = append(i.Parts, parts...)
	return i
}

// SetInclude sets the non-key columns of the index.
func (i *Index) SetInclude(columns ...string) *Index {
	i.Include = columns
	return i
}

// SetWhere sets the filter predicate of the index.
func (i *Index) SetWhere(x string) *Index {
	i.Where = x
	return i
}

// Columns returns the names of the index key columns.
func (i *Index) Columns() []string {
	names := make([]string, len(i.Parts))
	for j, p := range i.Parts {
		names[j] = p.Column
	}
	return names
}

// NewView creates a new view.
func NewView(name, def string) *View {
	return &View{Name: name, Def: def}
}

// NewProc creates a new procedure.
func NewProc(name, body string) *Proc {
	return &Proc{Name: name, Body: body}
}

// AddParams appends the parameters to the procedure.
func (p *Proc) AddParams(params ...*ProcParam) *Proc {
	p.Params = append(p.Params, params...)
	return p
}

// TrimDef returns the definition with surrounding whitespace
// and trailing statement terminators removed.
func TrimDef(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "; \t\n")
}

// replaceOrAppend searches an attribute of the same type as v in
// the list and replaces it. Otherwise, v is appended to the list.
func replaceOrAppend(attrs []Attr, v Attr) []Attr {
	for i, a := range attrs {
		if sameType(a, v) {
			attrs[i] = v
			return attrs
		}
	}
	return append(attrs, v)
}

func sameType(a, b Attr) bool {
	switch a.(type) {
	case *Comment:
		_, ok := b.(*Comment)
		return ok
	default:
		return false
	}
}

// attributes.
func (*Comment) attr() {}
