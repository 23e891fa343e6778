// SPDX-License-Identifier: MPL-2.0

// Package channel provides the bidirectional message channel between a host
// and a worker.
//
// Two implementations exist: Stream frames messages over a pair of byte
// streams (pipes, container attach streams), and the local pair passes
// messages in memory for in-process workers. Both deliver messages whole,
// in send order, and report peer disconnects as a TransportError wrapping
// io.EOF.
package channel
