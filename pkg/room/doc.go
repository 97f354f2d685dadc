// Package room holds the live, in-memory side of one document: its CRDT
// replica, the broadcast group fanning update frames out to subscribers,
// and the latest persisted sequence counter. The hub owns rooms; a room
// never touches a store directly.
package room
