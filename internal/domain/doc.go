// Package domain holds the core types of the streaming backend: the stream
// aggregate, the lifecycle state machine, the queue event contracts, and the
// ports implemented by the storage and broker adapters.
//
// The package has no dependencies on adapters. Adapters translate their
// driver errors into the sentinel errors defined here so callers can
// classify failures with errors.Is.
package domain
