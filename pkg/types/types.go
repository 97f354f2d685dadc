package types

import (
	"time"

	"github.com/google/uuid"
)

// Document types
const (
	DocTypeMarkdown = "markdown"
	DocTypeFolder   = "folder"
)

// DocumentRecord is the engine's view of a document. Documents are created
// by the surrounding application; the engine only reads title, type and
// ownership to materialize files and attribute graph entries.
type DocumentRecord struct {
	ID      uuid.UUID  `json:"id"`
	Title   string     `json:"title"`
	Type    string     `json:"type"`
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`
}

// UpdateLogEntry is one persisted CRDT update. Seq is strictly monotonic
// per document and gap-free within the log; a new log starts at 1, while a
// cleared or fully pruned log resumes at the document's current seq.
type UpdateLogEntry struct {
	DocumentID uuid.UUID `json:"document_id"`
	Seq        int64     `json:"seq"`
	Bytes      []byte    `json:"bytes"`
}

// SnapshotRecord is a full-state encoding of a document replica. Version is
// monotonic per document, starting at 1.
type SnapshotRecord struct {
	DocumentID uuid.UUID `json:"document_id"`
	Version    int64     `json:"version"`
	Bytes      []byte    `json:"bytes"`
}

// ArchiveKind tags why an archive was taken.
type ArchiveKind string

const (
	ArchiveManual    ArchiveKind = "manual"
	ArchiveAutomatic ArchiveKind = "auto"
	ArchiveRestore   ArchiveKind = "restore"
)

// ArchiveRecord is a snapshot retained with human-facing metadata. Archives
// are never deleted by the engine.
type ArchiveRecord struct {
	ID          uuid.UUID   `json:"id"`
	DocumentID  uuid.UUID   `json:"document_id"`
	Version     int64       `json:"version"`
	Label       string      `json:"label"`
	Notes       string      `json:"notes,omitempty"`
	Kind        ArchiveKind `json:"kind"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   *uuid.UUID  `json:"created_by,omitempty"`
	ByteSize    int64       `json:"byte_size"`
	ContentHash string      `json:"content_hash"`
}
