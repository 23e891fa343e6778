// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of an execution:
//   - frame encoding and incremental decoding
//   - CUE configuration loading and schema validation
//   - dispatch in every isolation mode, end to end
//
// Container benchmarks need a reachable Docker daemon and are skipped in
// short mode:
//
//	go test -run='^$' -bench=. -cpuprofile=default.pgo ./internal/benchmark/
//	go test -short -run='^$' -bench=. ./internal/benchmark/
package benchmark
