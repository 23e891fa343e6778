// SPDX-License-Identifier: MPL-2.0

package runnable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ScriptEntrypoint compiles a shell script into an Entrypoint executed by the
// embedded mvdan/sh interpreter. Parse errors are reported immediately.
func ScriptEntrypoint(name, source string) (Entrypoint, error) {
	parser := syntax.NewParser()
	prog, err := parser.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script %q: %w", name, err)
	}

	return func(ctx context.Context, inv Invocation) error {
		opts := []interp.RunnerOption{
			interp.StdIO(nil, inv.Stdout, inv.Stderr),
			interp.Env(expand.ListEnviron(os.Environ()...)),
		}

		// "--" keeps args like "-v" from being read as shell options.
		if len(inv.Args) > 0 {
			params := append([]string{"--"}, inv.Args...)
			opts = append(opts, interp.Params(params...))
		}

		runner, err := interp.New(opts...)
		if err != nil {
			return fmt.Errorf("failed to create interpreter: %w", err)
		}

		if err := runner.Run(ctx, prog); err != nil {
			var status interp.ExitStatus
			if errors.As(err, &status) {
				return ExitStatus(status)
			}
			return err
		}
		return nil
	}, nil
}
