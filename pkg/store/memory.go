package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inklet/inklet/pkg/types"
)

// documentData holds everything persisted for a single document.
type documentData struct {
	record    *types.DocumentRecord
	updates   []types.UpdateLogEntry
	snapshots []types.SnapshotRecord
	links     []string
	tags      []string
}

type memoryArchive struct {
	record   types.ArchiveRecord
	snapshot []byte
}

// MemoryStore is an in-memory implementation of Store. Tests and the hub
// test harness use it in place of BoltStore.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[uuid.UUID]*documentData
	archives []memoryArchive
	byID     map[uuid.UUID]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[uuid.UUID]*documentData),
		byID: make(map[uuid.UUID]int),
	}
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) data(doc uuid.UUID) *documentData {
	d, ok := m.docs[doc]
	if !ok {
		d = &documentData{}
		m.docs[doc] = d
	}
	return d
}

// Document operations

func (m *MemoryStore) PutDocument(record *types.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.data(record.ID).record = &cp
	return nil
}

func (m *MemoryStore) GetDocument(id uuid.UUID) (*types.DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok || d.record == nil {
		return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	cp := *d.record
	return &cp, nil
}

// Update log operations

func (m *MemoryStore) AppendUpdate(doc uuid.UUID, seq int64, update []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data(doc)
	if n := len(d.updates); n > 0 {
		if last := d.updates[n-1].Seq; seq != last+1 {
			return fmt.Errorf("append update for %s: seq %d after %d: %w", doc, seq, last, types.ErrOutOfOrder)
		}
	} else if seq < 1 {
		return fmt.Errorf("append update for %s: seq %d: %w", doc, seq, types.ErrOutOfOrder)
	}
	cp := make([]byte, len(update))
	copy(cp, update)
	d.updates = append(d.updates, types.UpdateLogEntry{DocumentID: doc, Seq: seq, Bytes: cp})
	return nil
}

func (m *MemoryStore) LatestSeq(doc uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[doc]
	if !ok || len(d.updates) == 0 {
		return 0, nil
	}
	return d.updates[len(d.updates)-1].Seq, nil
}

func (m *MemoryStore) UpdatesAfter(doc uuid.UUID, after int64, fn func(seq int64, update []byte) error) error {
	m.mu.RLock()
	var entries []types.UpdateLogEntry
	if d, ok := m.docs[doc]; ok {
		for _, e := range d.updates {
			if e.Seq > after {
				entries = append(entries, e)
			}
		}
	}
	m.mu.RUnlock()
	for _, e := range entries {
		if err := fn(e.Seq, e.Bytes); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) PruneUpdatesBefore(doc uuid.UUID, cutoff int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[doc]
	if !ok {
		return nil
	}
	kept := d.updates[:0]
	for _, e := range d.updates {
		if e.Seq >= cutoff {
			kept = append(kept, e)
		}
	}
	d.updates = kept
	return nil
}

func (m *MemoryStore) ClearUpdates(doc uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[doc]; ok {
		d.updates = nil
	}
	return nil
}

// Snapshot operations

func (m *MemoryStore) LatestSnapshotVersion(doc uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[doc]
	if !ok || len(d.snapshots) == 0 {
		return 0, nil
	}
	return d.snapshots[len(d.snapshots)-1].Version, nil
}

func (m *MemoryStore) LatestSnapshotEntry(doc uuid.UUID) (int64, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[doc]
	if !ok || len(d.snapshots) == 0 {
		return 0, nil, nil
	}
	s := d.snapshots[len(d.snapshots)-1]
	cp := make([]byte, len(s.Bytes))
	copy(cp, s.Bytes)
	return s.Version, cp, nil
}

func (m *MemoryStore) PersistSnapshot(doc uuid.UUID, version int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data(doc)
	last := int64(0)
	if n := len(d.snapshots); n > 0 {
		last = d.snapshots[n-1].Version
	}
	if version != last+1 {
		return fmt.Errorf("persist snapshot for %s: version %d after %d: %w", doc, version, last, types.ErrOutOfOrder)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.snapshots = append(d.snapshots, types.SnapshotRecord{DocumentID: doc, Version: version, Bytes: cp})
	return nil
}

func (m *MemoryStore) PruneSnapshots(doc uuid.UUID, keep int64) error {
	if keep < 1 {
		keep = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[doc]
	if !ok {
		return nil
	}
	if int64(len(d.snapshots)) > keep {
		d.snapshots = append([]types.SnapshotRecord(nil), d.snapshots[int64(len(d.snapshots))-keep:]...)
	}
	return nil
}

// Archive operations

func (m *MemoryStore) InsertArchive(insert *ArchiveInsert) (*types.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := types.ArchiveRecord{
		ID:          uuid.New(),
		DocumentID:  insert.DocumentID,
		Version:     insert.Version,
		Label:       insert.Label,
		Notes:       insert.Notes,
		Kind:        insert.Kind,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   insert.CreatedBy,
		ByteSize:    insert.ByteSize,
		ContentHash: insert.ContentHash,
	}
	snapshot := make([]byte, len(insert.Snapshot))
	copy(snapshot, insert.Snapshot)
	m.byID[record.ID] = len(m.archives)
	m.archives = append(m.archives, memoryArchive{record: record, snapshot: snapshot})
	return &record, nil
}

func (m *MemoryStore) GetArchive(id uuid.UUID) (*types.ArchiveRecord, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return nil, nil, fmt.Errorf("archive %s: %w", id, types.ErrNotFound)
	}
	a := m.archives[idx]
	record := a.record
	cp := make([]byte, len(a.snapshot))
	copy(cp, a.snapshot)
	return &record, cp, nil
}

func (m *MemoryStore) listForDoc(doc uuid.UUID) []memoryArchive {
	var out []memoryArchive
	for _, a := range m.archives {
		if a.record.DocumentID == doc {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].record.CreatedAt.After(out[j].record.CreatedAt)
	})
	return out
}

func (m *MemoryStore) ListArchives(doc uuid.UUID, limit, offset int64) ([]*types.ArchiveRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.listForDoc(doc)
	var records []*types.ArchiveRecord
	for i := offset; i < int64(len(all)); i++ {
		if limit > 0 && int64(len(records)) >= limit {
			break
		}
		record := all[i].record
		records = append(records, &record)
	}
	return records, nil
}

func (m *MemoryStore) LatestArchiveBefore(doc uuid.UUID, version int64) (*types.ArchiveRecord, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.listForDoc(doc) {
		if a.record.Version < version {
			record := a.record
			cp := make([]byte, len(a.snapshot))
			copy(cp, a.snapshot)
			return &record, cp, nil
		}
	}
	return nil, nil, fmt.Errorf("archive before version %d for %s: %w", version, doc, types.ErrNotFound)
}

// Graph operations

func (m *MemoryStore) PutDocumentLinks(owner, doc uuid.UUID, targets []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data(doc).links = append([]string(nil), targets...)
	return nil
}

func (m *MemoryStore) PutDocumentTags(owner, doc uuid.UUID, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data(doc).tags = append([]string(nil), tags...)
	return nil
}

func (m *MemoryStore) DocumentLinks(doc uuid.UUID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[doc]; ok {
		return append([]string(nil), d.links...), nil
	}
	return nil, nil
}

func (m *MemoryStore) DocumentTags(doc uuid.UUID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[doc]; ok {
		return append([]string(nil), d.tags...), nil
	}
	return nil, nil
}

var _ Store = (*MemoryStore)(nil)
