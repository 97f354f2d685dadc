// Package snapshot compacts live replicas into versioned full-state
// snapshots, maintains the archive ledger (labeled, hashed, kind-tagged
// snapshot copies), reconstructs prior document states and builds archive
// downloads.
//
// Persist sequencing: encode, compare against the stored state when asked
// to skip unchanged, store at the next version, then run retention (clear
// updates, prune snapshots, prune updates) — retention failures after a
// successful persist are logged, never unwound.
package snapshot
