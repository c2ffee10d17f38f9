// Package observe provides observability primitives for guarded operations.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wrap their guarded operations with the
// middleware or record through the tracer, metrics, and logger directly.
package observe
