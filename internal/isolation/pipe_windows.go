// SPDX-License-Identifier: MPL-2.0

//go:build windows

package isolation

import (
	"os"
	"os/exec"

	"github.com/invowk/bricks/internal/launch"
)

// attachChildPipes wires the child ends to the child's standard input and
// output, since ExtraFiles is not supported on Windows.
func attachChildPipes(cmd *exec.Cmd, childR, childW *os.File) launch.Params {
	cmd.Stdin = childR
	cmd.Stdout = childW
	return launch.Params{Transport: launch.TransportStdio}
}
