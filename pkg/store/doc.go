// Package store provides persistence for documents, update logs, snapshots,
// archives and the link/tag graphs.
//
// The production implementation is BoltStore, a single BoltDB file with one
// top-level bucket per concern and nested per-document buckets for the
// ordered data (updates keyed by big-endian sequence number, snapshots by
// version, archives by creation time). MemoryStore implements the same
// interface for tests.
//
// Both implementations enforce the ordering invariants: update sequences
// and snapshot versions must advance by exactly one, otherwise the write
// fails with types.ErrOutOfOrder. An empty update log accepts any positive
// starting sequence.
package store
