package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/store"
	"github.com/inklet/inklet/pkg/types"
)

// Persistence is the snapshot/update-log surface the service writes
// through.
type Persistence interface {
	store.SnapshotStore
	store.UpdateLogStore
}

// Service compacts replicas into versioned snapshots, maintains the
// archive ledger and reconstructs prior states.
type Service struct {
	persistence Persistence
	archives    store.ArchiveStore
	logger      zerolog.Logger

	// decodeSlots bounds concurrent archive decodes; decoding is
	// CPU-bound and must not starve the serving goroutines.
	decodeSlots chan struct{}
}

// NewService wires a snapshot service.
func NewService(persistence Persistence, archives store.ArchiveStore, logger zerolog.Logger) *Service {
	slots := runtime.GOMAXPROCS(0)
	if slots < 1 {
		slots = 1
	}
	return &Service{
		persistence: persistence,
		archives:    archives,
		logger:      logger,
		decodeSlots: make(chan struct{}, slots),
	}
}

// PersistOptions tunes a snapshot persist.
type PersistOptions struct {
	// ClearUpdates empties the update log after the snapshot is stored.
	ClearUpdates bool
	// SkipIfUnchanged suppresses a new version when the encoded state
	// matches the latest stored snapshot byte for byte.
	SkipIfUnchanged bool
	// PruneSnapshots retains the newest n snapshot versions; zero
	// disables pruning.
	PruneSnapshots int64
	// PruneUpdatesBefore removes log entries below the cutoff; values
	// below one disable pruning.
	PruneUpdatesBefore int64
}

// PersistResult reports what a persist did. When the snapshot was skipped
// as unchanged, Version is the current stored version and Persisted is
// false.
type PersistResult struct {
	Version       int64
	SnapshotBytes []byte
	Persisted     bool
}

// PersistSnapshot encodes the replica's full state and stores it at the
// next version. Prune and clear options run after a successful persist, in
// the order clear, prune snapshots, prune updates; their failures are
// logged but do not unwind the persist.
func (s *Service) PersistSnapshot(doc uuid.UUID, replica *crdt.Doc, opts PersistOptions) (*PersistResult, error) {
	encoded := replica.EncodeStateAsUpdate(nil)

	var (
		currentVersion int64
		previous       []byte
		err            error
	)
	if opts.SkipIfUnchanged {
		currentVersion, previous, err = s.persistence.LatestSnapshotEntry(doc)
	} else {
		currentVersion, err = s.persistence.LatestSnapshotVersion(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot version for %s: %w", doc, err)
	}

	if opts.SkipIfUnchanged && previous != nil && bytes.Equal(previous, encoded) {
		s.applyRetention(doc, opts)
		return &PersistResult{Version: currentVersion, SnapshotBytes: encoded, Persisted: false}, nil
	}

	next := currentVersion + 1
	if err := s.persistence.PersistSnapshot(doc, next, encoded); err != nil {
		return nil, fmt.Errorf("persist snapshot v%d for %s: %w", next, doc, err)
	}
	s.applyRetention(doc, opts)
	return &PersistResult{Version: next, SnapshotBytes: encoded, Persisted: true}, nil
}

func (s *Service) applyRetention(doc uuid.UUID, opts PersistOptions) {
	if opts.ClearUpdates {
		if err := s.persistence.ClearUpdates(doc); err != nil {
			s.logger.Error().Str("document_id", doc.String()).Err(err).Msg("clear_updates_failed")
		}
	}
	if opts.PruneSnapshots > 0 {
		if err := s.persistence.PruneSnapshots(doc, opts.PruneSnapshots); err != nil {
			s.logger.Error().Str("document_id", doc.String()).Err(err).Msg("prune_snapshots_failed")
		}
	}
	if opts.PruneUpdatesBefore > 0 {
		if err := s.persistence.PruneUpdatesBefore(doc, opts.PruneUpdatesBefore); err != nil {
			s.logger.Error().Str("document_id", doc.String()).Err(err).Msg("prune_updates_failed")
		}
	}
}

// ArchiveOptions carries the human-facing metadata for an archive.
type ArchiveOptions struct {
	Label     string
	Notes     string
	Kind      types.ArchiveKind
	CreatedBy *uuid.UUID
}

// ArchiveSnapshot copies snapshot bytes into the archive ledger with size
// and content hash computed here so every archive row is self-verifying.
func (s *Service) ArchiveSnapshot(doc uuid.UUID, snapshot []byte, version int64, opts ArchiveOptions) (*types.ArchiveRecord, error) {
	record, err := s.archives.InsertArchive(&store.ArchiveInsert{
		DocumentID:  doc,
		Version:     version,
		Snapshot:    snapshot,
		Label:       opts.Label,
		Notes:       opts.Notes,
		Kind:        opts.Kind,
		CreatedBy:   opts.CreatedBy,
		ByteSize:    int64(len(snapshot)),
		ContentHash: sha256Hex(snapshot),
	})
	if err != nil {
		return nil, fmt.Errorf("insert archive for %s: %w", doc, err)
	}
	return record, nil
}

// ListArchives pages a document's archives, newest first.
func (s *Service) ListArchives(doc uuid.UUID, limit, offset int64) ([]*types.ArchiveRecord, error) {
	return s.archives.ListArchives(doc, limit, offset)
}

// LoadArchiveDoc loads archived bytes and decodes them into a fresh
// replica. Decoding runs on a bounded worker slot since it is CPU-bound.
// Bytes that fail to decode surface types.ErrCorruptArchive.
func (s *Service) LoadArchiveDoc(archiveID uuid.UUID) (*types.ArchiveRecord, *crdt.Doc, error) {
	record, data, err := s.archives.GetArchive(archiveID)
	if err != nil {
		return nil, nil, err
	}
	replica, err := s.decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("archive %s: %w: %w", archiveID, types.ErrCorruptArchive, err)
	}
	return record, replica, nil
}

func (s *Service) decode(data []byte) (*crdt.Doc, error) {
	s.decodeSlots <- struct{}{}
	defer func() { <-s.decodeSlots }()
	replica := crdt.NewDoc()
	if err := replica.ApplyUpdate(data); err != nil {
		return nil, err
	}
	return replica, nil
}

// LoadArchiveMarkdown loads an archive and extracts its content text.
func (s *Service) LoadArchiveMarkdown(archiveID uuid.UUID) (*types.ArchiveRecord, string, error) {
	record, replica, err := s.LoadArchiveDoc(archiveID)
	if err != nil {
		return nil, "", err
	}
	return record, replica.Text(), nil
}

// LoadPreviousArchiveMarkdown resolves the newest archive below the given
// version and extracts its content text.
func (s *Service) LoadPreviousArchiveMarkdown(doc uuid.UUID, version int64) (*types.ArchiveRecord, string, error) {
	record, data, err := s.archives.LatestArchiveBefore(doc, version)
	if err != nil {
		return nil, "", err
	}
	replica, err := s.decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("archive %s: %w: %w", record.ID, types.ErrCorruptArchive, err)
	}
	return record, replica.Text(), nil
}

func sha256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
