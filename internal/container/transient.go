// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/docker/docker/client"
)

// marker matches an engine error message. All parts must appear.
type marker []string

func (m marker) matches(msg string) bool {
	for _, part := range m {
		if !strings.Contains(msg, part) {
			return false
		}
	}
	return true
}

var (
	// Failures a repeated call may not hit: removal racing the daemon's own
	// teardown, a busy overlay mount, a network hiccup.
	transientMarkers = []marker{
		{"removal of container", "is already in progress"},
		{"device or resource busy"},
		{"connection timed out"},
		{"connection refused"},
		{"connection reset by peer"},
	}

	// Failures that mean no engine answered at all.
	unavailableMarkers = []marker{
		{"Cannot connect to the Docker daemon"},
		{"docker daemon is not reachable"},
		{"docker.sock", "no such file or directory"},
		{"connection refused"},
	}
)

func matchesAny(err error, markers []marker) bool {
	msg := err.Error()
	for _, m := range markers {
		if m.matches(msg) {
			return true
		}
	}
	return false
}

// IsTransientError reports whether an engine call that failed with err may
// succeed when repeated. Cancellation, deadlines and missing objects never
// are.
func IsTransientError(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		client.IsErrNotFound(err):
		return false
	case client.IsErrConnectionFailed(err):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return matchesAny(err, transientMarkers)
}

// IsEngineUnavailable reports whether err means the container engine could
// not be reached, as opposed to a failed operation on a reachable one.
func IsEngineUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return client.IsErrConnectionFailed(err) || matchesAny(err, unavailableMarkers)
}
