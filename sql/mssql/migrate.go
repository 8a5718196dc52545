// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mssql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"
)

// A planner provides a SQL Server implementation for migrate.Driver.PlanChange.
type planner struct{ *conn }

// PlanChange returns the statements for applying the given change. Replaceable
// objects are dropped (if they exist) and re-created, and their statements are
// planned as a single transactional unit.
func (p planner) PlanChange(_ context.Context, c migrate.Change) (*migrate.Plan, error) {
	s := &state{conn: p.conn, Plan: &migrate.Plan{}}
	var err error
	switch c := c.(type) {
	case *migrate.AddColumn:
		err = s.addColumn(c)
	case *migrate.CreateIndex:
		err = s.createIndex(c)
	case *migrate.ReplaceView:
		err = s.replaceView(c)
	case *migrate.ReplaceProc:
		err = s.replaceProc(c)
	case *migrate.CreateTable:
		err = s.createTable(c)
	default:
		err = fmt.Errorf("mssql: unsupported change %T", c)
	}
	if err != nil {
		return nil, err
	}
	return s.Plan, nil
}

// state represents the state of a planning.
type state struct {
	*conn
	*migrate.Plan
}

// Build instantiates a new builder and writes the given phrase to it.
func (s *state) Build(phrases ...string) *sqlx.Builder {
	b := &sqlx.Builder{QuoteOpening: '[', QuoteClosing: ']', Schema: s.schema}
	return b.Build(phrases...)
}

func (s *state) append(cmd, comment string) {
	s.Stmts = append(s.Stmts, &migrate.Stmt{Cmd: cmd, Comment: comment})
}

func (s *state) addColumn(c *migrate.AddColumn) error {
	b := s.Build("ALTER TABLE").Table(c.Schema, c.Table).P("ADD")
	if err := s.column(b, c.C); err != nil {
		return err
	}
	s.append(b.String(), fmt.Sprintf("add column %q to table %q", c.C.Name, c.Table))
	return nil
}

func (s *state) createIndex(c *migrate.CreateIndex) error {
	b := s.Build("CREATE")
	if c.I.Unique {
		b.P("UNIQUE")
	}
	b.P(IndexTypeNonClustered, "INDEX").Ident(c.I.Name).P("ON").Table(c.Schema, c.Table)
	b.Wrap(func(b *sqlx.Builder) {
		b.MapComma(c.I.Parts, func(i int, b *sqlx.Builder) {
			b.Ident(c.I.Parts[i].Column)
			if c.I.Parts[i].Desc {
				b.P("DESC")
			}
		})
	})
	if len(c.I.Include) > 0 {
		b.P("INCLUDE").Wrap(func(b *sqlx.Builder) {
			b.MapComma(c.I.Include, func(i int, b *sqlx.Builder) {
				b.Ident(c.I.Include[i])
			})
		})
	}
	if w := strings.TrimSpace(c.I.Where); w != "" {
		b.P("WHERE", w)
	}
	s.append(b.String(), fmt.Sprintf("create index %q on table %q", c.I.Name, c.Table))
	return nil
}

func (s *state) replaceView(c *migrate.ReplaceView) error {
	def := schema.TrimDef(c.V.Def)
	if def == "" {
		return fmt.Errorf("mssql: missing definition for view %q", c.V.Name)
	}
	s.Transactional = true
	s.drop("VIEW", "V", c.Schema, c.V.Name)
	s.append(s.Build("CREATE VIEW").Table(c.Schema, c.V.Name).P("AS", def).String(), fmt.Sprintf("create view %q", c.V.Name))
	return nil
}

func (s *state) replaceProc(c *migrate.ReplaceProc) error {
	body := schema.TrimDef(c.P.Body)
	if body == "" {
		return fmt.Errorf("mssql: missing body for procedure %q", c.P.Name)
	}
	b := s.Build("CREATE PROCEDURE").Table(c.Schema, c.P.Name)
	for i, p := range c.P.Params {
		if !strings.HasPrefix(p.Name, "@") {
			return fmt.Errorf("mssql: parameter %q of procedure %q must start with @", p.Name, c.P.Name)
		}
		if p.Type == "" {
			return fmt.Errorf("mssql: missing type for parameter %q of procedure %q", p.Name, c.P.Name)
		}
		if i > 0 {
			b.Comma()
		}
		b.P(p.Name, p.Type)
		if p.Default != "" {
			b.P("=", p.Default)
		}
		if p.Output {
			b.P("OUTPUT")
		}
	}
	s.Transactional = true
	s.drop("PROCEDURE", "P", c.Schema, c.P.Name)
	s.append(b.P("AS", body).String(), fmt.Sprintf("create procedure %q", c.P.Name))
	return nil
}

func (s *state) createTable(c *migrate.CreateTable) error {
	b := s.Build("CREATE TABLE").Table(c.Schema, c.T.Name)
	var err error
	b.Wrap(func(b *sqlx.Builder) {
		b.MapComma(c.T.Columns, func(i int, b *sqlx.Builder) {
			if cerr := s.column(b, c.T.Columns[i]); cerr != nil {
				err = errors.Join(err, cerr)
			}
		})
		if len(c.T.PrimaryKey) > 0 {
			b.Comma().P("CONSTRAINT").Ident("PK_"+c.T.Name).P("PRIMARY KEY")
			b.Wrap(func(b *sqlx.Builder) {
				b.MapComma(c.T.PrimaryKey, func(i int, b *sqlx.Builder) {
					b.Ident(c.T.PrimaryKey[i])
				})
			})
		}
	})
	if err != nil {
		return err
	}
	s.append(b.String(), fmt.Sprintf("create table %q", c.T.Name))
	if cm := (&schema.Comment{}); sqlx.Has(c.T.Attrs, &cm) && cm.Text != "" {
		s.Transactional = true
		s.append(
			fmt.Sprintf(
				"EXEC sp_addextendedproperty @name = N'MS_Description', @value = %s, @level0type = N'SCHEMA', @level0name = %s, @level1type = N'TABLE', @level1name = %s",
				nstring(cm.Text), nstring(s.schemaOf(c.Schema)), nstring(c.T.Name),
			),
			fmt.Sprintf("set comment of table %q", c.T.Name),
		)
	}
	return nil
}

// nstring returns s as a Unicode string literal.
func nstring(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// drop appends the statement that drops the object if it exists. Servers
// older than SQL Server 2016 use an OBJECT_ID guard instead of IF EXISTS.
func (s *state) drop(kind, typ, schemaName, name string) {
	comment := fmt.Sprintf("drop %s %q if exists", strings.ToLower(kind), name)
	if s.supportsDropIfExists() {
		s.append(s.Build("DROP", kind, "IF EXISTS").Table(schemaName, name).String(), comment)
		return
	}
	qualified := s.Build().Table(schemaName, name).String()
	guard := fmt.Sprintf("IF OBJECT_ID(N'%s', N'%s') IS NOT NULL", strings.ReplaceAll(qualified, "'", "''"), typ)
	s.append(s.Build(guard, "DROP", kind).Table(schemaName, name).String(), comment)
}

// column writes the column definition to the builder.
func (s *state) column(b *sqlx.Builder, c *schema.Column) error {
	if c.Type == "" {
		return fmt.Errorf("mssql: missing type for column %q", c.Name)
	}
	b.Ident(c.Name).P(c.Type)
	if !c.Null {
		b.P("NOT")
	}
	b.P("NULL")
	if c.Default != "" {
		b.P("DEFAULT", c.Default)
	}
	return nil
}
