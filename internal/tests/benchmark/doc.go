// Package benchmark holds filebay performance benchmarks.
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Compare runs with benchstat.
package benchmark
