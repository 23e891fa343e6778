// SPDX-License-Identifier: MPL-2.0

// Package isolation provides the execution contexts a runnable can be
// launched in.
//
// Every Strategy turns a runnable descriptor into a running worker (a
// WorkerHandle) plus the host end of a channel to it, and later releases
// both. The in-process strategy runs the worker loop in a goroutine; the
// anonymous-pipes strategy re-executes the current binary as a child
// process; the docker and windows-container strategies run the worker
// inside a container through the container engine.
package isolation
