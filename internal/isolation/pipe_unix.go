// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package isolation

import (
	"os"
	"os/exec"

	"github.com/invowk/bricks/internal/launch"
)

// attachChildPipes passes the child ends as the first two inherited
// descriptors (3 and 4).
func attachChildPipes(cmd *exec.Cmd, childR, childW *os.File) launch.Params {
	cmd.ExtraFiles = []*os.File{childR, childW}
	return launch.PipeParams()
}
