// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package migrations holds the change documents that ship with guardmig.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/guardmig/guardmig/sql/migratespec"
)

const ext = ".hcl"

//go:embed *.hcl
var files embed.FS

// Names returns the names of the built-in documents, sorted.
func Names() []string {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ext {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names
}

// Builtin returns the raw content of the named document.
func Builtin(name string) ([]byte, error) {
	b, err := fs.ReadFile(files, strings.TrimSuffix(name, ext)+ext)
	if err != nil {
		return nil, fmt.Errorf("migrations: unknown built-in %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return b, nil
}

// Load decodes the named document.
func Load(name string, opts ...migratespec.Option) (*migratespec.Doc, error) {
	b, err := Builtin(name)
	if err != nil {
		return nil, err
	}
	return migratespec.Parse(b, strings.TrimSuffix(name, ext)+ext, opts...)
}
