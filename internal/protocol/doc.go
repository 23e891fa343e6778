// SPDX-License-Identifier: MPL-2.0

// Package protocol defines the messages exchanged between a bricks host and
// its workers, and the framing used to carry them over byte streams.
//
// A frame is a big-endian uint32 length (covering everything after the length
// field), a one byte kind tag, and a JSON payload specific to the kind:
//
//	+---------+------+-----------------+
//	| length  | kind | payload (JSON)  |
//	| 4 bytes | 1 B  | length-1 bytes  |
//	+---------+------+-----------------+
//
// Decoder accepts arbitrary partial chunks and only yields complete frames,
// so transports that deliver a frame in several reads decode identically.
//
// On one channel the worker emits zero or more Output messages followed by
// exactly one terminal message (Completed or Fault).
package protocol
