// Package api is the thin HTTP and websocket surface over the engine:
// document subscriptions (a websocket adapted into the hub's sink/stream
// ports), content reads, editability, archives and restore, signed plugin
// asset delivery, health and metrics. Authorization is delegated to the
// AccessChecker port.
package api
