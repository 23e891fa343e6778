// SPDX-License-Identifier: MPL-2.0

// Package runnable is the narrow surface bricks needs from the application layer:
// a Descriptor identifying an installed runnable and an Entrypoint to execute it.
//
// Two kinds of runnables exist:
//   - builtin: Go functions registered in a Catalog under a location name
//   - script: shell scripts carried in the descriptor and run by the embedded
//     mvdan/sh interpreter, so a worker can execute them without access to the
//     host's configuration files
package runnable
