// Package wire frames the realtime sync protocol spoken between the hub
// and document subscribers.
//
// Frames are opaque byte strings carrying one or more tagged messages:
// sync messages (step-1 state vector exchange, step-2 reply, incremental
// update) and awareness messages relayed verbatim between peers. All
// integers are unsigned varints; payloads are length-prefixed.
package wire
