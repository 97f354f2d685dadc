// Package types defines the core data types shared across Inklet packages.
//
// It contains the persisted record shapes (documents, update log entries,
// snapshots, archives) and the error taxonomy. Keeping these in a leaf
// package avoids circular dependencies between the stores and the services
// that consume them.
package types
