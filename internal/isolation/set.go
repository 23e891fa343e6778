// SPDX-License-Identifier: MPL-2.0

package isolation

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/bricks/internal/runnable"
)

type (
	// Set maps every available mode to its strategy.
	Set struct {
		strategies map[Mode]Strategy
	}

	// SetOptions configure NewDefaultSet.
	SetOptions struct {
		// Catalog resolves runnables for the in-process strategy.
		Catalog *runnable.Catalog
		// Logger is shared by all strategies. Defaults to a discard logger.
		Logger *log.Logger
		// Stderr receives the diagnostics of process-backed workers.
		Stderr io.Writer
		// Pipes configures the anonymous-pipes strategy.
		Pipes PipeOptions
		// Docker configures the docker strategy.
		Docker ContainerOptions
		// Windows configures the windows-container strategy.
		Windows ContainerOptions
	}
)

// NewSet builds a Set from strategies. A later strategy for the same mode
// replaces an earlier one.
func NewSet(strategies ...Strategy) *Set {
	s := &Set{strategies: make(map[Mode]Strategy, len(strategies))}
	for _, st := range strategies {
		s.strategies[st.Mode()] = st
	}
	return s
}

// NewDefaultSet builds a Set with one strategy per mode.
func NewDefaultSet(opts SetOptions) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	pipes := opts.Pipes
	pipes.Logger, pipes.Stderr = logger, stderr
	docker := opts.Docker
	docker.Logger, docker.Stderr = logger, stderr
	windows := opts.Windows
	windows.Logger, windows.Stderr = logger, stderr

	return NewSet(
		NewInProcess(opts.Catalog, logger),
		NewAnonymousPipes(pipes),
		NewDocker(docker),
		NewWindowsContainer(windows),
	)
}

// Get returns the strategy for mode.
func (s *Set) Get(mode Mode) (Strategy, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	st, ok := s.strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", mode, ErrUnsupportedMode)
	}
	return st, nil
}

// Modes returns the available modes in presentation order.
func (s *Set) Modes() []Mode {
	var modes []Mode
	for _, m := range AllModes() {
		if _, ok := s.strategies[m]; ok {
			modes = append(modes, m)
		}
	}
	return modes
}
