// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/guardmig/guardmig/sql/internal/sqlx"
	"github.com/guardmig/guardmig/sql/migrate"
	"github.com/guardmig/guardmig/sql/schema"
)

// A planner provides a SQLite implementation for migrate.Driver.PlanChange.
type planner struct{ *conn }

// PlanChange returns the statements for applying the given change.
func (p planner) PlanChange(_ context.Context, c migrate.Change) (*migrate.Plan, error) {
	s := &state{Plan: &migrate.Plan{}}
	var err error
	switch c := c.(type) {
	case *migrate.AddColumn:
		err = s.addColumn(c)
	case *migrate.CreateIndex:
		err = s.createIndex(c)
	case *migrate.ReplaceView:
		err = s.replaceView(c)
	case *migrate.ReplaceProc:
		err = fmt.Errorf("sqlite: stored procedures are not supported (procedure %q)", c.P.Name)
	case *migrate.CreateTable:
		err = s.createTable(c)
	default:
		err = fmt.Errorf("sqlite: unsupported change %T", c)
	}
	if err != nil {
		return nil, err
	}
	return s.Plan, nil
}

// state represents the state of a planning.
type state struct {
	*migrate.Plan
}

// Build instantiates a new builder and writes the given phrase to it.
func (s *state) Build(phrases ...string) *sqlx.Builder {
	b := &sqlx.Builder{QuoteOpening: '"', QuoteClosing: '"'}
	return b.Build(phrases...)
}

func (s *state) append(cmd, comment string) {
	s.Stmts = append(s.Stmts, &migrate.Stmt{Cmd: cmd, Comment: comment})
}

func (s *state) addColumn(c *migrate.AddColumn) error {
	b := s.Build("ALTER TABLE").Table(c.Schema, c.Table).P("ADD COLUMN")
	if err := column(b, c.C); err != nil {
		return err
	}
	s.append(b.String(), fmt.Sprintf("add column %q to table %q", c.C.Name, c.Table))
	return nil
}

// createIndex plans the index creation. The schema qualifies
// the index name, as SQLite indexes live in their table schema.
func (s *state) createIndex(c *migrate.CreateIndex) error {
	if len(c.I.Include) > 0 {
		return fmt.Errorf("sqlite: INCLUDE columns are not supported (index %q)", c.I.Name)
	}
	b := s.Build("CREATE")
	if c.I.Unique {
		b.P("UNIQUE")
	}
	b.P("INDEX").Table(c.Schema, c.I.Name).P("ON").Ident(c.Table)
	b.Wrap(func(b *sqlx.Builder) {
		b.MapComma(c.I.Parts, func(i int, b *sqlx.Builder) {
			b.Ident(c.I.Parts[i].Column)
			if c.I.Parts[i].Desc {
				b.P("DESC")
			}
		})
	})
	if w := strings.TrimSpace(c.I.Where); w != "" {
		b.P("WHERE", w)
	}
	s.append(b.String(), fmt.Sprintf("create index %q on table %q", c.I.Name, c.Table))
	return nil
}

func (s *state) replaceView(c *migrate.ReplaceView) error {
	def := schema.TrimDef(c.V.Def)
	if def == "" {
		return fmt.Errorf("sqlite: missing definition for view %q", c.V.Name)
	}
	s.Transactional = true
	s.append(s.Build("DROP VIEW IF EXISTS").Table(c.Schema, c.V.Name).String(), fmt.Sprintf("drop view %q if exists", c.V.Name))
	s.append(s.Build("CREATE VIEW").Table(c.Schema, c.V.Name).P("AS", def).String(), fmt.Sprintf("create view %q", c.V.Name))
	return nil
}

func (s *state) createTable(c *migrate.CreateTable) error {
	if cm := (&schema.Comment{}); sqlx.Has(c.T.Attrs, &cm) && cm.Text != "" {
		return fmt.Errorf("sqlite: table comments are not supported (table %q)", c.T.Name)
	}
	b := s.Build("CREATE TABLE").Table(c.Schema, c.T.Name)
	var err error
	b.Wrap(func(b *sqlx.Builder) {
		b.MapComma(c.T.Columns, func(i int, b *sqlx.Builder) {
			if cerr := column(b, c.T.Columns[i]); cerr != nil {
				err = errors.Join(err, cerr)
			}
		})
		if len(c.T.PrimaryKey) > 0 {
			b.Comma().P("PRIMARY KEY")
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
	return nil
}

// column writes the column definition to the builder.
func column(b *sqlx.Builder, c *schema.Column) error {
	if c.Type == "" {
		return fmt.Errorf("sqlite: missing type for column %q", c.Name)
	}
	b.Ident(c.Name).P(c.Type)
	if !c.Null {
		b.P("NOT NULL")
	}
	if c.Default != "" {
		b.P("DEFAULT", c.Default)
	}
	return nil
}
