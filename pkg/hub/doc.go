// Package hub is the per-document lifecycle manager at the center of the
// engine.
//
// A room is born lazily on first subscription: the hub creates a fresh
// replica, seeds the sequence counter from the update log, installs the
// replica observer, and hydrates persisted state in the background. From
// then on every update observed on the replica is fanned out to peers,
// queued on a bounded channel drained by the room's persistence task,
// counted toward the automatic archive cadence, and scheduled for a
// debounced rewrite of the document's Markdown file.
//
// The hub also enforces per-document editability, applies archived
// snapshots to live rooms, and snapshots every live room on demand for an
// external scheduler.
package hub
