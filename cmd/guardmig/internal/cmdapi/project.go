// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package cmdapi

import (
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/guardmig/guardmig/sql/migratespec"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"
)

const projectFileName = "file://guardmig.hcl"

type (
	// Project represents a guardmig.hcl project file.
	Project struct {
		Envs []*envBlock `hcl:"env,block"` // List of environments
	}

	// envBlock holds an env block before it is decoded. Environments are
	// decoded only when selected, as they may depend on input values.
	envBlock struct {
		Name string   `hcl:"name,label"`
		Body hcl.Body `hcl:",remain"`
	}

	// Env represents a guardmig environment. For example:
	//
	//	env "prod" {
	//	  url     = getenv("GUARDMIG_URL")
	//	  builtin = "ad_identity"
	//	  vars = {
	//	    notification_log = false
	//	  }
	//	}
	Env struct {
		// Name for this environment.
		Name string

		// URL of the database.
		URL string `hcl:"url,optional"`

		// File is the path to the change document.
		File string `hcl:"file,optional"`

		// Builtin names an embedded change document.
		Builtin string `hcl:"builtin,optional"`

		// Schema of changes that do not qualify their objects.
		Schema string `hcl:"schema,optional"`

		// TxMode configures the --tx-mode option.
		TxMode string `hcl:"tx_mode,optional"`

		// Vars holds the input values of the change document.
		Vars cty.Value `hcl:"vars,optional"`

		// Format of the environment.
		Format *Format `hcl:"format,block"`
	}

	// Format represents the output formatting configuration of an environment.
	Format struct {
		// Apply configures the formatting for 'apply'.
		Apply string `hcl:"apply,optional"`
		// Plan configures the formatting for 'plan'.
		Plan string `hcl:"plan,optional"`
		// Verify configures the formatting for 'verify'.
		Verify string `hcl:"verify,optional"`
	}
)

// asMap returns the input values of the environment.
func (e *Env) asMap() (map[string]cty.Value, error) {
	if e.Vars.IsNull() {
		return nil, nil
	}
	if t := e.Vars.Type(); !t.IsObjectType() && !t.IsMapType() {
		return nil, fmt.Errorf("env %q: vars must be an object, got %s", e.Name, t.FriendlyName())
	}
	return e.Vars.AsValueMap(), nil
}

// format returns the output format configured for the given command.
func (e *Env) format(cmd string) string {
	if e.Format == nil {
		return ""
	}
	switch cmd {
	case "apply":
		return e.Format.Apply
	case "plan":
		return e.Format.Plan
	case "verify":
		return e.Format.Verify
	default:
		return ""
	}
}

// LoadEnv reads the project file in path, and returns the environment with the given
// name. The input values are available in the project file as var.<name>.
func LoadEnv(path, name string, vars map[string]cty.Value) (*Env, error) {
	f, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}
	if vars == nil {
		vars = make(map[string]cty.Value)
	}
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(vars)},
		Functions: migratespec.Functions(),
	}
	var p Project
	if diags := gohcl.DecodeBody(f.Body, ctx, &p); diags.HasErrors() {
		return nil, diags
	}
	var blk *envBlock
	for _, b := range p.Envs {
		if b.Name != name {
			continue
		}
		if blk != nil {
			return nil, fmt.Errorf("duplicate environment name %q", name)
		}
		blk = b
	}
	if blk == nil {
		return nil, fmt.Errorf("env %q not defined in project file", name)
	}
	env := &Env{Name: name}
	if diags := gohcl.DecodeBody(blk.Body, ctx, env); diags.HasErrors() {
		return nil, diags
	}
	if env.File != "" && !filepath.IsAbs(env.File) {
		// Document paths are relative to the project file.
		env.File = filepath.Join(filepath.Dir(path), env.File)
	}
	return env, nil
}

// projectPath returns the path of the project file from its URL.
func projectPath(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse config url %q: %w", s, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported project file driver %q", u.Scheme)
	}
	return homedir.Expand(filepath.Join(u.Host, u.Path))
}

// selectEnv loads the environment selected with the --env flag, and sets the
// flags of the command that were not set on the command line. A nil Env is
// returned if no environment was selected.
func selectEnv(cmd *cobra.Command) (*Env, error) {
	if GlobalFlags.SelectedEnv == "" {
		return nil, nil
	}
	path, err := projectPath(GlobalFlags.ConfigURL)
	if err != nil {
		return nil, err
	}
	env, err := LoadEnv(path, GlobalFlags.SelectedEnv, GlobalFlags.Vars)
	if err != nil {
		return nil, err
	}
	vals := map[string]string{
		flagURL:     env.URL,
		flagFile:    env.File,
		flagBuiltin: env.Builtin,
		flagSchema:  env.Schema,
		flagTxMode:  env.TxMode,
		flagFormat:  env.format(cmd.Name()),
	}
	// A document source given on the command line replaces the one of the environment.
	if f := cmd.Flag(flagFile); f != nil && f.Changed {
		delete(vals, flagBuiltin)
	}
	if f := cmd.Flag(flagBuiltin); f != nil && f.Changed {
		delete(vals, flagFile)
	}
	for name, v := range vals {
		if err := maySetFlag(cmd, name, v); err != nil {
			return nil, err
		}
	}
	return env, nil
}
