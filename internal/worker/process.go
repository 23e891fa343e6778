// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/invowk/bricks/internal/launch"
	"github.com/invowk/bricks/internal/protocol"
	"github.com/invowk/bricks/internal/runnable"
)

// DebugEnv enables debug logging on the worker's stderr when set to a
// non-empty value.
const DebugEnv = "BRICKS_WORKER_DEBUG"

// RunProcess is the whole life of a worker process: it opens the channel
// described by lc, serves one exchange and closes the channel. The returned
// code is meant for os.Exit.
func RunProcess(lc launch.Context, catalog *runnable.Catalog) protocol.ExitCode {
	level := log.WarnLevel
	if os.Getenv(DebugEnv) != "" {
		level = log.DebugLevel
	}
	// stdout may carry the channel, so diagnostics go to stderr only.
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "bricks-worker",
		Level:  level,
	})

	if lc.ParamsErr != nil {
		logger.Error("cannot start worker", "error", lc.ParamsErr)
		return protocol.ExitProtocolViolation
	}

	ch, err := launch.OpenChannel(lc.Params)
	if err != nil {
		logger.Error("cannot open channel", "error", err)
		return protocol.ExitProtocolViolation
	}
	defer func() { _ = ch.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := ServeWithOptions(ctx, ch, catalog, Options{Logger: logger})
	logger.Debug("worker exiting", "code", code)
	return code
}
