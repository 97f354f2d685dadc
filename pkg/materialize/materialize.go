package materialize

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/types"
)

// DocStateReader resolves document metadata.
type DocStateReader interface {
	GetDocument(id uuid.UUID) (*types.DocumentRecord, error)
}

// Storage is the filesystem port the materializer writes through.
type Storage interface {
	DocFilePath(id uuid.UUID) string
	SyncDocPaths(id uuid.UUID) error
	ReadBytes(path string) ([]byte, error)
	WriteBytes(path string, data []byte) error
}

// GraphUpdater receives the extracted content after a write. Failures are
// swallowed; the graphs heal on the next materialization.
type GraphUpdater interface {
	UpdateDocumentLinks(owner, doc uuid.UUID, markdown string) error
	UpdateDocumentTags(owner, doc uuid.UUID, markdown string) error
}

// Materializer renders replicas to their canonical on-disk Markdown form.
type Materializer struct {
	docs    DocStateReader
	storage Storage
	graphs  GraphUpdater
	logger  zerolog.Logger
}

// New wires a Materializer. graphs may be nil when no graph maintenance is
// wanted.
func New(docs DocStateReader, storage Storage, graphs GraphUpdater, logger zerolog.Logger) *Materializer {
	return &Materializer{docs: docs, storage: storage, graphs: graphs, logger: logger}
}

// RenderFile produces the canonical file bytes: front matter with id and
// title, a blank line, the body, and a guaranteed trailing newline.
func RenderFile(id uuid.UUID, title, content string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "---\nid: %s\ntitle: %s\n---\n\n%s", id, title, content)
	if b.Len() == 0 || b.Bytes()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// WriteMarkdown materializes the replica to disk. It returns whether bytes
// were written: rendering is idempotent, so an unchanged file writes
// nothing. Folder documents and unknown documents are no-ops. Link and tag
// collaborators run best-effort after a successful write decision and can
// never fail materialization.
func (m *Materializer) WriteMarkdown(id uuid.UUID, replica *crdt.Doc) (bool, error) {
	record, err := m.docs.GetDocument(id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve document %s: %w", id, err)
	}
	if record.Type == types.DocTypeFolder {
		return false, nil
	}

	content := replica.Text()
	if err := m.storage.SyncDocPaths(id); err != nil {
		m.logger.Debug().Str("document_id", id.String()).Err(err).Msg("sync_doc_paths_failed")
	}
	path := m.storage.DocFilePath(id)
	rendered := RenderFile(id, record.Title, content)

	written := false
	existing, err := m.storage.ReadBytes(path)
	if err != nil || !bytes.Equal(existing, rendered) {
		if err := m.storage.WriteBytes(path, rendered); err != nil {
			return false, fmt.Errorf("write markdown for %s: %w", id, err)
		}
		written = true
	}

	if m.graphs != nil && record.OwnerID != nil {
		if err := m.graphs.UpdateDocumentLinks(*record.OwnerID, id, content); err != nil {
			m.logger.Debug().Str("document_id", id.String()).Err(err).Msg("update_links_failed")
		}
		if err := m.graphs.UpdateDocumentTags(*record.OwnerID, id, content); err != nil {
			m.logger.Debug().Str("document_id", id.String()).Err(err).Msg("update_tags_failed")
		}
	}
	return written, nil
}
