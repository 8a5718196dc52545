// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqltest

import (
	"database/sql/driver"
	"regexp"
	"strings"
	"unicode"

	"github.com/DATA-DOG/go-sqlmock"
)

// Rows converts a table output, as printed by sqlcmd or the sqlite3 shell
// in box mode, to sql.Rows. All row values are parsed as text except the
// "nil" and NULL keywords. For example:
//
//	+-----------------+-------------+-----------+
//	| ProductVersion  | Collation   | Edition   |
//	+-----------------+-------------+-----------+
//	| 15.0.2000.5     | SQL_Latin1  | Express   |
//	+-----------------+-------------+-----------+
func Rows(table string) *sqlmock.Rows {
	var (
		nc    int
		rows  *sqlmock.Rows
		lines = strings.Split(table, "\n")
	)
	for i := 0; i < len(lines); i++ {
		line := strings.TrimFunc(lines[i], unicode.IsSpace)
		// Skip new lines, header and footer.
		if line == "" || strings.IndexAny(line, "+-") == 0 {
			continue
		}
		columns := strings.FieldsFunc(line, func(r rune) bool {
			return r == '|'
		})
		for i, c := range columns {
			columns[i] = strings.TrimSpace(c)
		}
		if rows == nil {
			nc = len(columns)
			rows = sqlmock.NewRows(columns)
		} else {
			values := make([]driver.Value, nc)
			for i, c := range columns {
				switch c {
				case "", "nil", "NULL":
				default:
					values[i] = c
				}
			}
			rows.AddRow(values...)
		}
	}
	return rows
}

// Count returns the single-row result of a COUNT query.
func Count(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

// Escape escapes all regular expression metacharacters in the given query.
func Escape(query string) string {
	rows := strings.Split(query, "\n")
	for i := range rows {
		rows[i] = strings.TrimPrefix(rows[i], " ")
	}
	query = strings.Join(rows, " ")
	return strings.TrimSpace(regexp.QuoteMeta(query)) + "$"
}
