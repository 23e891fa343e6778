// SPDX-License-Identifier: MPL-2.0

// Package worker implements the worker side of an isolated execution: it
// receives one Invoke message, runs the requested runnable, streams its
// output back and finishes with exactly one terminal message.
package worker
