// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package channel

import (
	"errors"
	"syscall"
)

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
