// SPDX-License-Identifier: MPL-2.0

// Package dispatch runs a runnable under a chosen isolation mode and turns
// the message exchange with its worker into a Result or a typed failure.
//
// The caller sees the same outcome whichever mode is used: output chunks
// in the order they were written, the runnable's exit status on success,
// a RemoteFault when the runnable failed, and one of the infrastructure
// errors (LaunchError, TransportError, ProtocolViolationError,
// CancelledError) when the execution context itself failed.
package dispatch
