// Package crdt implements the convergent text replica behind every live
// document.
//
// A Doc is a replicated growable array (RGA) over runes. Every operation —
// one inserted rune or one tombstoned rune — carries a unique ID made of the
// originating site and a Lamport clock. Concurrent siblings anchored at the
// same left origin are ordered deterministically by descending ID, which
// makes merges commutative and associative: any interleaving of the same
// update set converges to the same text.
//
// Updates are opaque byte strings framed with varints. A full state encoding
// is just an update equivalent to "apply everything from the empty state
// vector", so snapshots and deltas share one codec. Applying an update is
// idempotent; operations whose dependencies have not arrived yet are parked
// in a pending buffer and retried as their origins land.
package crdt
