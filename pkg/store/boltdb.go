package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/inklet/inklet/pkg/types"
)

var (
	// Bucket names
	bucketDocuments  = []byte("documents")
	bucketUpdates    = []byte("updates")
	bucketSnapshots  = []byte("snapshots")
	bucketArchives   = []byte("archives")
	bucketArchiveIDs = []byte("archive_ids")
	bucketLinks      = []byte("links")
	bucketTags       = []byte("tags")
)

// BoltStore implements Store using BoltDB. Updates, snapshots and archives
// live in nested per-document buckets so pruning one document never scans
// another's keys.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "inklet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDocuments,
			bucketUpdates,
			bucketSnapshots,
			bucketArchives,
			bucketArchiveIDs,
			bucketLinks,
			bucketTags,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// itob converts a sequence number to a sortable big-endian key.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func docKey(id uuid.UUID) []byte {
	return []byte(id.String())
}

// Document operations

func (s *BoltStore) PutDocument(record *types.DocumentRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(docKey(record.ID), data)
	})
}

func (s *BoltStore) GetDocument(id uuid.UUID) (*types.DocumentRecord, error) {
	var record types.DocumentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get(docKey(id))
		if data == nil {
			return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update log operations

func (s *BoltStore) AppendUpdate(doc uuid.UUID, seq int64, update []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketUpdates).CreateBucketIfNotExists(docKey(doc))
		if err != nil {
			return err
		}
		// An empty log accepts any starting seq: after a clear or a
		// prune the snapshot anchors the missing history, and the
		// hub's counter keeps climbing.
		if k, _ := b.Cursor().Last(); k != nil {
			if last := btoi(k); seq != last+1 {
				return fmt.Errorf("append update for %s: seq %d after %d: %w", doc, seq, last, types.ErrOutOfOrder)
			}
		} else if seq < 1 {
			return fmt.Errorf("append update for %s: seq %d: %w", doc, seq, types.ErrOutOfOrder)
		}
		val := make([]byte, len(update))
		copy(val, update)
		return b.Put(itob(seq), val)
	})
}

func (s *BoltStore) LatestSeq(doc uuid.UUID) (int64, error) {
	var latest int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		if k, _ := b.Cursor().Last(); k != nil {
			latest = btoi(k)
		}
		return nil
	})
	return latest, err
}

func (s *BoltStore) UpdatesAfter(doc uuid.UUID, after int64, fn func(seq int64, update []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(itob(after + 1)); k != nil; k, v = c.Next() {
			if err := fn(btoi(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) PruneUpdatesBefore(doc uuid.UUID, cutoff int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUpdates).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil && btoi(k) < cutoff; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ClearUpdates(doc uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketUpdates)
		if parent.Bucket(docKey(doc)) == nil {
			return nil
		}
		return parent.DeleteBucket(docKey(doc))
	})
}

// Snapshot operations

func (s *BoltStore) LatestSnapshotVersion(doc uuid.UUID) (int64, error) {
	var version int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		if k, _ := b.Cursor().Last(); k != nil {
			version = btoi(k)
		}
		return nil
	})
	return version, err
}

func (s *BoltStore) LatestSnapshotEntry(doc uuid.UUID) (int64, []byte, error) {
	var (
		version int64
		data    []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		version = btoi(k)
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return version, data, err
}

func (s *BoltStore) PersistSnapshot(doc uuid.UUID, version int64, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists(docKey(doc))
		if err != nil {
			return err
		}
		last := int64(0)
		if k, _ := b.Cursor().Last(); k != nil {
			last = btoi(k)
		}
		if version != last+1 {
			return fmt.Errorf("persist snapshot for %s: version %d after %d: %w", doc, version, last, types.ErrOutOfOrder)
		}
		val := make([]byte, len(data))
		copy(val, data)
		return b.Put(itob(version), val)
	})
}

func (s *BoltStore) PruneSnapshots(doc uuid.UUID, keep int64) error {
	if keep < 1 {
		keep = 1
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		total := int64(b.Stats().KeyN)
		drop := total - keep
		if drop <= 0 {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil && drop > 0; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			drop--
		}
		return nil
	})
}

// Archive operations

// archiveEnvelope is the stored form: record metadata plus the snapshot
// bytes (base64 in JSON).
type archiveEnvelope struct {
	Record   types.ArchiveRecord `json:"record"`
	Snapshot []byte              `json:"snapshot"`
}

// archiveKey orders archives by creation time; the id suffix keeps keys
// unique within one nanosecond.
func archiveKey(createdAt time.Time, id uuid.UUID) []byte {
	k := make([]byte, 8+16)
	binary.BigEndian.PutUint64(k[:8], uint64(createdAt.UnixNano()))
	copy(k[8:], id[:])
	return k
}

func (s *BoltStore) InsertArchive(insert *ArchiveInsert) (*types.ArchiveRecord, error) {
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
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketArchives).CreateBucketIfNotExists(docKey(insert.DocumentID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(archiveEnvelope{Record: record, Snapshot: insert.Snapshot})
		if err != nil {
			return err
		}
		key := archiveKey(record.CreatedAt, record.ID)
		if err := b.Put(key, data); err != nil {
			return err
		}
		// Secondary index: archive id -> (document key, archive key).
		idx := tx.Bucket(bucketArchiveIDs)
		ref, err := json.Marshal([2][]byte{docKey(insert.DocumentID), key})
		if err != nil {
			return err
		}
		return idx.Put(record.ID[:], ref)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) GetArchive(id uuid.UUID) (*types.ArchiveRecord, []byte, error) {
	var env archiveEnvelope
	err := s.db.View(func(tx *bolt.Tx) error {
		ref := tx.Bucket(bucketArchiveIDs).Get(id[:])
		if ref == nil {
			return fmt.Errorf("archive %s: %w", id, types.ErrNotFound)
		}
		var keys [2][]byte
		if err := json.Unmarshal(ref, &keys); err != nil {
			return err
		}
		b := tx.Bucket(bucketArchives).Bucket(keys[0])
		if b == nil {
			return fmt.Errorf("archive %s: %w", id, types.ErrNotFound)
		}
		data := b.Get(keys[1])
		if data == nil {
			return fmt.Errorf("archive %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, nil, err
	}
	return &env.Record, env.Snapshot, nil
}

func (s *BoltStore) ListArchives(doc uuid.UUID, limit, offset int64) ([]*types.ArchiveRecord, error) {
	var records []*types.ArchiveRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchives).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		skipped := int64(0)
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && int64(len(records)) >= limit {
				break
			}
			var env archiveEnvelope
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			record := env.Record
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

func (s *BoltStore) LatestArchiveBefore(doc uuid.UUID, version int64) (*types.ArchiveRecord, []byte, error) {
	var env *archiveEnvelope
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArchives).Bucket(docKey(doc))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var candidate archiveEnvelope
			if err := json.Unmarshal(v, &candidate); err != nil {
				return err
			}
			if candidate.Record.Version < version {
				env = &candidate
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if env == nil {
		return nil, nil, fmt.Errorf("archive before version %d for %s: %w", version, doc, types.ErrNotFound)
	}
	return &env.Record, env.Snapshot, nil
}

// Graph operations

func graphKey(doc uuid.UUID) []byte {
	return docKey(doc)
}

type graphEntry struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Values  []string  `json:"values"`
}

func (s *BoltStore) putGraph(bucket []byte, owner, doc uuid.UUID, values []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(graphEntry{OwnerID: owner, Values: values})
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put(graphKey(doc), data)
	})
}

func (s *BoltStore) getGraph(bucket []byte, doc uuid.UUID) ([]string, error) {
	var values []string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(graphKey(doc))
		if data == nil {
			return nil
		}
		var entry graphEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		values = entry.Values
		return nil
	})
	return values, err
}

func (s *BoltStore) PutDocumentLinks(owner, doc uuid.UUID, targets []string) error {
	return s.putGraph(bucketLinks, owner, doc, targets)
}

func (s *BoltStore) PutDocumentTags(owner, doc uuid.UUID, tags []string) error {
	return s.putGraph(bucketTags, owner, doc, tags)
}

func (s *BoltStore) DocumentLinks(doc uuid.UUID) ([]string, error) {
	return s.getGraph(bucketLinks, doc)
}

func (s *BoltStore) DocumentTags(doc uuid.UUID) ([]string, error) {
	return s.getGraph(bucketTags, doc)
}

var _ Store = (*BoltStore)(nil)
