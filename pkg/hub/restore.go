package hub

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/snapshot"
	"github.com/inklet/inklet/pkg/types"
)

// RestoreArchive rewinds a document to an archived state while live
// editors stay connected: the archived replica replaces the room content,
// a fresh snapshot is persisted with the update log cleared, the Markdown
// file is rewritten, and a restore-kind archive records the operation.
//
// Clearing the log erases updates from other writers that were still in
// flight; callers needing multi-writer restore semantics should flip the
// document read-only and let the pipeline drain first.
func (h *Hub) RestoreArchive(docID, archiveID uuid.UUID, actor *uuid.UUID) (*types.ArchiveRecord, error) {
	record, archived, err := h.snapshots.LoadArchiveDoc(archiveID)
	if err != nil {
		return nil, err
	}
	if record.DocumentID != docID {
		return nil, fmt.Errorf("archive %s belongs to document %s: %w", archiveID, record.DocumentID, types.ErrInvalidInput)
	}

	if err := h.ApplySnapshot(docID, archived); err != nil {
		return nil, err
	}

	result, err := h.snapshots.PersistSnapshot(docID, archived, snapshot.PersistOptions{ClearUpdates: true})
	if err != nil {
		return nil, err
	}
	metrics.SnapshotsPersisted.Inc()

	if _, err := h.materializer.WriteMarkdown(docID, archived); err != nil {
		return nil, err
	}

	label := fmt.Sprintf("Restore %s, %s", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), record.Label)
	restored, err := h.snapshots.ArchiveSnapshot(docID, result.SnapshotBytes, result.Version, snapshot.ArchiveOptions{
		Label:     label,
		Notes:     "Restored snapshot",
		Kind:      types.ArchiveRestore,
		CreatedBy: actor,
	})
	if err != nil {
		return nil, err
	}
	metrics.ArchivesCreated.WithLabelValues(string(types.ArchiveRestore)).Inc()
	return restored, nil
}
