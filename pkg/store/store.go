package store

import (
	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/types"
)

// DocumentStore holds document records owned by the surrounding
// application.
type DocumentStore interface {
	PutDocument(record *types.DocumentRecord) error
	// GetDocument returns types.ErrNotFound when the id is unknown.
	GetDocument(id uuid.UUID) (*types.DocumentRecord, error)
}

// UpdateLogStore is the append-only sequence of CRDT updates per document.
// Sequences are gap-free and strictly increasing in insertion order.
type UpdateLogStore interface {
	// AppendUpdate fails with types.ErrOutOfOrder unless seq == latest+1.
	// An empty log accepts any positive starting seq: after a clear or
	// prune the latest snapshot anchors the missing history.
	AppendUpdate(doc uuid.UUID, seq int64, update []byte) error
	// LatestSeq returns 0 when the document has no updates.
	LatestSeq(doc uuid.UUID) (int64, error)
	// UpdatesAfter streams entries with seq > after in ascending order.
	UpdatesAfter(doc uuid.UUID, after int64, fn func(seq int64, update []byte) error) error
	// PruneUpdatesBefore removes entries with seq < cutoff.
	PruneUpdatesBefore(doc uuid.UUID, cutoff int64) error
	// ClearUpdates deletes all updates for a document.
	ClearUpdates(doc uuid.UUID) error
}

// SnapshotStore holds versioned full-state blobs per document.
type SnapshotStore interface {
	// LatestSnapshotVersion returns 0 when no snapshot exists.
	LatestSnapshotVersion(doc uuid.UUID) (int64, error)
	// LatestSnapshotEntry returns (0, nil, nil) when no snapshot exists.
	LatestSnapshotEntry(doc uuid.UUID) (int64, []byte, error)
	// PersistSnapshot fails with types.ErrOutOfOrder unless version ==
	// latest+1.
	PersistSnapshot(doc uuid.UUID, version int64, data []byte) error
	// PruneSnapshots retains the newest keep records by version.
	PruneSnapshots(doc uuid.UUID, keep int64) error
}

// ArchiveInsert is the payload for a new archive record. The store assigns
// the id and creation time.
type ArchiveInsert struct {
	DocumentID  uuid.UUID
	Version     int64
	Snapshot    []byte
	Label       string
	Notes       string
	Kind        types.ArchiveKind
	CreatedBy   *uuid.UUID
	ByteSize    int64
	ContentHash string
}

// ArchiveStore holds labeled snapshot copies for restore and browsing.
// Archives are never deleted.
type ArchiveStore interface {
	InsertArchive(insert *ArchiveInsert) (*types.ArchiveRecord, error)
	// GetArchive returns types.ErrNotFound when the id is unknown.
	GetArchive(id uuid.UUID) (*types.ArchiveRecord, []byte, error)
	// ListArchives returns records ordered created_at DESC.
	ListArchives(doc uuid.UUID, limit, offset int64) ([]*types.ArchiveRecord, error)
	// LatestArchiveBefore returns the newest record with a version
	// strictly smaller than version, or types.ErrNotFound.
	LatestArchiveBefore(doc uuid.UUID, version int64) (*types.ArchiveRecord, []byte, error)
}

// GraphStore persists the link and tag graphs extracted from materialized
// Markdown.
type GraphStore interface {
	PutDocumentLinks(owner, doc uuid.UUID, targets []string) error
	PutDocumentTags(owner, doc uuid.UUID, tags []string) error
	DocumentLinks(doc uuid.UUID) ([]string, error)
	DocumentTags(doc uuid.UUID) ([]string, error)
}

// Store is the full persistence surface consumed by the engine.
type Store interface {
	DocumentStore
	UpdateLogStore
	SnapshotStore
	ArchiveStore
	GraphStore
	Close() error
}
