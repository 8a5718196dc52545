// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlx

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/guardmig/guardmig/sql/schema"
)

// ValidString reports if the given string is not null and valid.
func ValidString(s sql.NullString) bool {
	return s.Valid && s.String != "" && strings.ToLower(s.String) != "null"
}

// ScanOne scans one record and closes the rows at the end.
func ScanOne(rows *sql.Rows, dest ...any) error {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Close()
}

// Count executes the given COUNT query and reports if
// at least one record matched it.
func Count(ctx context.Context, conn schema.ExecQuerier, query string, args ...any) (bool, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlx: query catalog: %w", err)
	}
	var n int
	if err := ScanOne(rows, &n); err != nil {
		return false, fmt.Errorf("sqlx: scan catalog count: %w", err)
	}
	return n > 0, nil
}

// Has finds the first element in the elements list that
// matches target, and if so, sets target to that attribute
// value and returns true.
func Has(elements, target any) bool {
	ev := reflect.ValueOf(elements)
	t := reflect.TypeOf(target)
	if t == nil {
		panic("target cannot be nil")
	}
	typ := t.Elem()
	for i := 0; i < ev.Len(); i++ {
		idx := ev.Index(i)
		if idx.IsNil() {
			continue
		}
		if e := idx.Elem(); e.Type().AssignableTo(typ) {
			reflect.ValueOf(target).Elem().Set(e)
			return true
		}
	}
	return false
}

// Builder provides a syntactic sugar API for writing SQL statements.
type Builder struct {
	bytes.Buffer
	QuoteOpening byte   // quoting identifiers
	QuoteClosing byte   // quoting identifiers
	Schema       string // schema qualifier, if any
}

// Build instantiates a builder and writes the given phrase to it.
func (b *Builder) Build(phrases ...string) *Builder {
	c := b.clone()
	return c.P(phrases...)
}

// P writes a list of phrases to the builder separated and
// suffixed with whitespace.
func (b *Builder) P(phrases ...string) *Builder {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if b.Len() > 0 && b.lastByte() != ' ' && b.lastByte() != '(' {
			b.WriteByte(' ')
		}
		b.WriteString(p)
		if p[len(p)-1] != ' ' {
			b.WriteByte(' ')
		}
	}
	return b
}

// Ident writes the given string quoted as an SQL identifier.
func (b *Builder) Ident(s string) *Builder {
	if s != "" {
		b.WriteByte(b.QuoteOpening)
		b.WriteString(strings.ReplaceAll(s, string(b.QuoteClosing), string(b.QuoteClosing)+string(b.QuoteClosing)))
		b.WriteByte(b.QuoteClosing)
		b.WriteByte(' ')
	}
	return b
}

// Table writes the schema-qualified table name.
func (b *Builder) Table(schema, name string) *Builder {
	if schema == "" {
		schema = b.Schema
	}
	if schema != "" {
		b.Ident(schema)
		b.rewriteLastByte('.')
	}
	return b.Ident(name)
}

// Comma writes a comma. If the current buffer ends
// with whitespace, it will be replaced instead.
func (b *Builder) Comma() *Builder {
	switch {
	case b.Len() == 0:
	case b.lastByte() == ' ':
		b.rewriteLastByte(',')
		b.WriteByte(' ')
	default:
		b.WriteString(", ")
	}
	return b
}

// MapComma maps the slice x using the function f and joins the result with
// a comma separating between the written elements.
func (b *Builder) MapComma(x any, f func(i int, b *Builder)) *Builder {
	s := reflect.ValueOf(x)
	for i := 0; i < s.Len(); i++ {
		if i > 0 {
			b.Comma()
		}
		f(i, b)
	}
	return b
}

// Wrap wraps the written string with parentheses.
func (b *Builder) Wrap(f func(b *Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	if b.lastByte() != ' ' {
		b.WriteByte(')')
	} else {
		b.rewriteLastByte(')')
	}
	return b
}

// String overrides the Buffer.String method and ensure no spaces pad the returned statement.
func (b *Builder) String() string {
	return strings.TrimSpace(b.Buffer.String())
}

func (b *Builder) clone() *Builder {
	return &Builder{QuoteOpening: b.QuoteOpening, QuoteClosing: b.QuoteClosing, Schema: b.Schema}
}

func (b *Builder) lastByte() byte {
	if b.Len() == 0 {
		return 0
	}
	buf := b.Buffer.Bytes()
	return buf[len(buf)-1]
}

func (b *Builder) rewriteLastByte(c byte) {
	if b.Len() == 0 {
		return
	}
	buf := b.Buffer.Bytes()
	buf[len(buf)-1] = c
}
