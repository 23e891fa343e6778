// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"

	cmd "github.com/invowk/bricks/cmd/bricks"
	"github.com/invowk/bricks/internal/launch"
	"github.com/invowk/bricks/internal/runnable"
	"github.com/invowk/bricks/internal/worker"
)

func main() {
	// The role is decided once; a worker never reaches the CLI.
	lc := launch.Classify(os.Args[1:])
	if lc.IsWorker() {
		// Script runnables travel in the Invoke message, so the builtin
		// catalog resolves everything a host can send.
		os.Exit(int(worker.RunProcess(lc, runnable.DefaultCatalog())))
	}
	os.Exit(cmd.Execute(lc.Args))
}
