package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inklet/inklet/pkg/types"
)

// forEachStore runs a subtest against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("bolt", func(t *testing.T) {
		s, err := NewBoltStore(t.TempDir())
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
}

func TestUpdateLogSequencing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		doc := uuid.New()

		latest, err := s.LatestSeq(doc)
		require.NoError(t, err)
		require.Equal(t, int64(0), latest)

		for seq := int64(1); seq <= 5; seq++ {
			require.NoError(t, s.AppendUpdate(doc, seq, []byte{byte(seq)}))
		}

		// Gap and replay both violate ordering.
		err = s.AppendUpdate(doc, 7, nil)
		require.ErrorIs(t, err, types.ErrOutOfOrder)
		err = s.AppendUpdate(doc, 5, nil)
		require.ErrorIs(t, err, types.ErrOutOfOrder)

		latest, err = s.LatestSeq(doc)
		require.NoError(t, err)
		require.Equal(t, int64(5), latest)

		var seqs []int64
		require.NoError(t, s.UpdatesAfter(doc, 2, func(seq int64, update []byte) error {
			seqs = append(seqs, seq)
			require.Equal(t, []byte{byte(seq)}, update)
			return nil
		}))
		require.Equal(t, []int64{3, 4, 5}, seqs)
	})
}

func TestUpdateLogPruneAndClear(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		doc := uuid.New()
		for seq := int64(1); seq <= 10; seq++ {
			require.NoError(t, s.AppendUpdate(doc, seq, []byte{byte(seq)}))
		}

		require.NoError(t, s.PruneUpdatesBefore(doc, 8))
		var seqs []int64
		require.NoError(t, s.UpdatesAfter(doc, 0, func(seq int64, _ []byte) error {
			seqs = append(seqs, seq)
			return nil
		}))
		require.Equal(t, []int64{8, 9, 10}, seqs)

		// Appends continue from the surviving tail.
		require.NoError(t, s.AppendUpdate(doc, 11, nil))

		require.NoError(t, s.ClearUpdates(doc))
		latest, err := s.LatestSeq(doc)
		require.NoError(t, err)
		require.Equal(t, int64(0), latest)

		// An empty log accepts the hub's climbing counter.
		require.NoError(t, s.AppendUpdate(doc, 12, []byte("post-clear")))
	})
}

func TestSnapshotVersioning(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		doc := uuid.New()

		version, data, err := s.LatestSnapshotEntry(doc)
		require.NoError(t, err)
		require.Equal(t, int64(0), version)
		require.Nil(t, data)

		require.NoError(t, s.PersistSnapshot(doc, 1, []byte("v1")))
		require.NoError(t, s.PersistSnapshot(doc, 2, []byte("v2")))
		err = s.PersistSnapshot(doc, 4, []byte("v4"))
		require.ErrorIs(t, err, types.ErrOutOfOrder)

		version, data, err = s.LatestSnapshotEntry(doc)
		require.NoError(t, err)
		require.Equal(t, int64(2), version)
		require.Equal(t, []byte("v2"), data)

		require.NoError(t, s.PersistSnapshot(doc, 3, []byte("v3")))
		require.NoError(t, s.PruneSnapshots(doc, 2))
		version, err = s.LatestSnapshotVersion(doc)
		require.NoError(t, err)
		require.Equal(t, int64(3), version)
	})
}

func TestArchiveLedger(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		doc := uuid.New()
		owner := uuid.New()

		var inserted []*types.ArchiveRecord
		for v := int64(1); v <= 3; v++ {
			payload := []byte(fmt.Sprintf("snapshot-%d", v))
			digest := sha256.Sum256(payload)
			record, err := s.InsertArchive(&ArchiveInsert{
				DocumentID:  doc,
				Version:     v,
				Snapshot:    payload,
				Label:       fmt.Sprintf("label %d", v),
				Kind:        types.ArchiveManual,
				CreatedBy:   &owner,
				ByteSize:    int64(len(payload)),
				ContentHash: hex.EncodeToString(digest[:]),
			})
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, record.ID)
			require.False(t, record.CreatedAt.IsZero())
			inserted = append(inserted, record)
		}

		// Lookup by id returns record and bytes.
		record, data, err := s.GetArchive(inserted[1].ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), record.Version)
		require.Equal(t, []byte("snapshot-2"), data)

		_, _, err = s.GetArchive(uuid.New())
		require.ErrorIs(t, err, types.ErrNotFound)

		// Listing is newest-first and honors limit/offset.
		list, err := s.ListArchives(doc, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i := 1; i < len(list); i++ {
			require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
		}
		page, err := s.ListArchives(doc, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, list[1].ID, page[0].ID)

		// latest_before finds the newest strictly-smaller version.
		record, data, err = s.LatestArchiveBefore(doc, 3)
		require.NoError(t, err)
		require.Equal(t, int64(2), record.Version)
		require.Equal(t, []byte("snapshot-2"), data)

		_, _, err = s.LatestArchiveBefore(doc, 1)
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDocumentRecords(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		id := uuid.New()
		owner := uuid.New()
		require.NoError(t, s.PutDocument(&types.DocumentRecord{
			ID:      id,
			Title:   "Weekly notes",
			Type:    types.DocTypeMarkdown,
			OwnerID: &owner,
		}))
		record, err := s.GetDocument(id)
		require.NoError(t, err)
		require.Equal(t, "Weekly notes", record.Title)
		require.Equal(t, owner, *record.OwnerID)

		_, err = s.GetDocument(uuid.New())
		require.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestGraphPersistence(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		doc := uuid.New()
		owner := uuid.New()
		require.NoError(t, s.PutDocumentLinks(owner, doc, []string{"a", "b"}))
		require.NoError(t, s.PutDocumentTags(owner, doc, []string{"todo"}))

		links, err := s.DocumentLinks(doc)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, links)
		tags, err := s.DocumentTags(doc)
		require.NoError(t, err)
		require.Equal(t, []string{"todo"}, tags)

		// Re-extraction replaces, not appends.
		require.NoError(t, s.PutDocumentLinks(owner, doc, []string{"c"}))
		links, err = s.DocumentLinks(doc)
		require.NoError(t, err)
		require.Equal(t, []string{"c"}, links)
	})
}

func TestSeparateDocumentsDoNotInterfere(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		a, b := uuid.New(), uuid.New()
		require.NoError(t, s.AppendUpdate(a, 1, []byte("a1")))
		require.NoError(t, s.AppendUpdate(b, 1, []byte("b1")))
		require.NoError(t, s.AppendUpdate(b, 2, []byte("b2")))

		la, err := s.LatestSeq(a)
		require.NoError(t, err)
		lb, err := s.LatestSeq(b)
		require.NoError(t, err)
		require.Equal(t, int64(1), la)
		require.Equal(t, int64(2), lb)

		require.NoError(t, s.ClearUpdates(a))
		lb, err = s.LatestSeq(b)
		require.NoError(t, err)
		require.Equal(t, int64(2), lb)
	})
}
