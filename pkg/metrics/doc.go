// Package metrics exposes Prometheus collectors for the document engine
// (live rooms, persisted updates, snapshots, archives, materializer
// writes, read-only drops) and a lightweight component health registry
// served on the health endpoint.
package metrics
