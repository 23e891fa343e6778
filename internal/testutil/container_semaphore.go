// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"
)

// ContainerParallelEnv caps how many tests may hold a container engine slot.
const ContainerParallelEnv = "BRICKS_TEST_CONTAINER_PARALLEL"

var containerSlots = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism(os.Getenv(ContainerParallelEnv)))
})

// AcquireContainerSlot blocks until the test may start containers and
// releases the slot when the test finishes. Every test that creates real
// worker containers takes one, so a busy engine is not flooded.
func AcquireContainerSlot(t testing.TB) {
	t.Helper()
	slots := containerSlots()
	slots <- struct{}{}
	t.Cleanup(func() { <-slots })
}

// containerParallelism parses the configured limit, falling back to
// min(GOMAXPROCS, 2).
func containerParallelism(configured string) int {
	if n, err := strconv.Atoi(configured); err == nil && n > 0 {
		return n
	}
	return min(runtime.GOMAXPROCS(0), 2)
}
