// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/guardmig/guardmig/cmd/guardmig/internal/cmdapi"
	_ "github.com/guardmig/guardmig/sql/mssql"
	_ "github.com/guardmig/guardmig/sql/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cmdapi.Root.SetOut(os.Stdout)
	err := cmdapi.Root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
