// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split splits the given SQL text into statements separated by ";".
// Delimiters inside quotes, brackets, parentheses and comments are
// ignored. Returned statements are trimmed and keep their delimiter.
func Split(input string) ([]string, error) {
	var (
		stmts []string
		l     = &lex{input: input}
	)
	for {
		s, err := l.stmt()
		if err == io.EOF {
			return stmts, nil
		}
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
}

type lex struct {
	input string
	pos   int  // current position
	depth int  // depth of parentheses
	code  bool // non-comment text was scanned
}

const eos = -1

func (l *lex) stmt() (string, error) {
	var text string
	l.skipSpaces()
Scan:
	for {
		r := l.next()
		switch {
		case r == eos:
			if l.depth > 0 {
				return "", errors.New("unclosed parentheses")
			}
			if l.code {
				text = l.input
				break Scan
			}
			return "", io.EOF
		case r == '-' && l.peek() == '-':
			l.comment("\n")
			continue
		case r == '/' && l.peek() == '*':
			l.comment("*/")
			continue
		case r == '(':
			l.depth++
		case r == ')':
			if l.depth == 0 {
				return "", fmt.Errorf("unexpected ')' at position %d", l.pos)
			}
			l.depth--
		case r == '\'', r == '"':
			if err := l.skipQuote(r, r); err != nil {
				return "", err
			}
		case r == '[':
			if err := l.skipQuote('[', ']'); err != nil {
				return "", err
			}
		case r == ';' && l.depth == 0:
			text = l.input[:l.pos]
			break Scan
		}
		if !unicode.IsSpace(r) {
			l.code = true
		}
	}
	return l.emit(text), nil
}

func (l *lex) next() rune {
	if l.pos >= len(l.input) {
		return eos
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += w
	return r
}

func (l *lex) peek() rune {
	if l.pos >= len(l.input) {
		return eos
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// skipQuote skips a quoted identifier or literal. Doubled closing
// characters ('' or ]]) are scanned as two adjacent quotes.
func (l *lex) skipQuote(open, close rune) error {
	for {
		r := l.next()
		switch {
		case r == eos:
			return fmt.Errorf("unclosed quote %q", open)
		case r == close:
			return nil
		}
	}
}

// comment skips to the end of the comment, or to the end
// of the input if it was not terminated.
func (l *lex) comment(right string) {
	i := strings.Index(l.input[l.pos:], right)
	if i == -1 {
		l.pos = len(l.input)
		return
	}
	l.pos += i + len(right)
}

func (l *lex) skipSpaces() {
	l.input = strings.TrimLeftFunc(l.input, unicode.IsSpace)
}

func (l *lex) emit(text string) string {
	l.input = l.input[l.pos:]
	l.pos = 0
	l.code = false
	return strings.TrimSpace(text)
}
