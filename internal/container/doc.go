// SPDX-License-Identifier: MPL-2.0

// Package container provides the container engine abstraction used by the
// container-backed isolation strategies.
//
// The Engine interface covers the lifecycle of one worker container: image
// check, create, attach, start, wait, kill and remove. DockerEngine implements
// it with the Docker Engine SDK and works for both Linux and Windows container
// hosts; tests substitute a fake.
//
// Attach always uses a non-TTY session, so stdout and stderr arrive
// multiplexed and are split with stdcopy. The worker's stdin and stdout carry
// the framed channel; stderr carries diagnostics only.
package container
