// SPDX-License-Identifier: MPL-2.0

// Package testutil provides shared test fixtures: a concurrency-safe output
// Buffer, config file and config home helpers, a slot limiter for tests
// that start real containers, and FakeEngine, an in-memory container engine
// that runs workers in-process for the container-backed isolation
// strategies.
package testutil
