// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"testing"

	"github.com/invowk/bricks/internal/testutil"
)

type cliRun struct {
	stdout *testutil.Buffer
	stderr *testutil.Buffer
	err    error
}

// runCLI executes the command tree without fang, so tests see the returned
// error and the raw output.
func runCLI(t *testing.T, deps Dependencies, args ...string) cliRun {
	t.Helper()
	res := cliRun{stdout: &testutil.Buffer{}, stderr: &testutil.Buffer{}}
	deps.Stdout, deps.Stderr = res.stdout, res.stderr

	root := NewApp(deps).newRootCommand()
	root.SetArgs(args)
	root.SetOut(res.stdout)
	root.SetErr(res.stderr)
	res.err = root.ExecuteContext(context.Background())
	return res
}

// runWithConfig is runCLI with --config pointing at content.
func runWithConfig(t *testing.T, content string, args ...string) cliRun {
	t.Helper()
	path := testutil.WriteConfig(t, "", content)
	return runCLI(t, Dependencies{}, append([]string{"--config", path}, args...)...)
}
