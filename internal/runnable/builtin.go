// SPDX-License-Identifier: MPL-2.0

package runnable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Builtin runnable IDs.
const (
	IDHello     = "demo.hello"
	IDFail      = "demo.fail"
	IDSleep     = "demo.sleep"
	IDUppercase = "formatter.uppercase"
	IDLowercase = "formatter.lowercase"
)

// ErrDemoFailure is returned by the demo.fail runnable.
var ErrDemoFailure = errors.New("demo failure requested")

// DefaultCatalog returns a new catalog holding the builtin runnables.
// Host and worker processes build the same catalog, so builtins resolve on
// both sides of a channel.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	RegisterBuiltins(c)
	return c
}

// RegisterBuiltins registers the builtin runnables into c.
func RegisterBuiltins(c *Catalog) {
	c.MustRegister(Descriptor{
		ID:          IDHello,
		Name:        "Hello",
		Description: "Writes `hello` and exits successfully.",
	}, hello)
	c.MustRegister(Descriptor{
		ID:          IDFail,
		Name:        "Fail",
		Description: "Always fails with an internal error. Useful to check fault reporting.",
	}, fail)
	c.MustRegister(Descriptor{
		ID:          IDSleep,
		Name:        "Sleep",
		Description: "Sleeps for the duration given as first argument (default `1s`), honoring cancellation.",
	}, sleep)
	c.MustRegister(Descriptor{
		ID:          IDUppercase,
		Name:        "Uppercase Formatter",
		Description: "Writes its arguments converted to upper case, one per line.",
	}, formatter(strings.ToUpper))
	c.MustRegister(Descriptor{
		ID:          IDLowercase,
		Name:        "Lowercase Formatter",
		Description: "Writes its arguments converted to lower case, one per line.",
	}, formatter(strings.ToLower))
}

func hello(_ context.Context, inv Invocation) error {
	_, err := fmt.Fprint(inv.Stdout, "hello")
	return err
}

func fail(_ context.Context, _ Invocation) error {
	return ErrDemoFailure
}

func sleep(ctx context.Context, inv Invocation) error {
	d := time.Second
	if len(inv.Args) > 0 {
		parsed, err := time.ParseDuration(inv.Args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", inv.Args[0], err)
		}
		d = parsed
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		_, err := fmt.Fprintf(inv.Stdout, "slept %s\n", d)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatter(format func(string) string) Entrypoint {
	return func(_ context.Context, inv Invocation) error {
		if len(inv.Args) == 0 {
			_, err := fmt.Fprintln(inv.Stderr, "no input given")
			return err
		}
		for _, arg := range inv.Args {
			if _, err := fmt.Fprintln(inv.Stdout, format(arg)); err != nil {
				return err
			}
		}
		return nil
	}
}
