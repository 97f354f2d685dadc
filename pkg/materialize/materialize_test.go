package materialize

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/types"
)

type fakeStorage struct {
	files  map[string][]byte
	writes int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) DocFilePath(id uuid.UUID) string { return "docs/" + id.String() + ".md" }
func (f *fakeStorage) SyncDocPaths(uuid.UUID) error    { return nil }

func (f *fakeStorage) ReadBytes(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (f *fakeStorage) WriteBytes(path string, data []byte) error {
	f.files[path] = append([]byte(nil), data...)
	f.writes++
	return nil
}

type fakeDocs struct {
	records map[uuid.UUID]*types.DocumentRecord
}

func (f *fakeDocs) GetDocument(id uuid.UUID) (*types.DocumentRecord, error) {
	if r, ok := f.records[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
}

type failingGraphs struct{ calls int }

func (g *failingGraphs) UpdateDocumentLinks(uuid.UUID, uuid.UUID, string) error {
	g.calls++
	return errors.New("graph store down")
}

func (g *failingGraphs) UpdateDocumentTags(uuid.UUID, uuid.UUID, string) error {
	g.calls++
	return errors.New("graph store down")
}

func replicaWith(t *testing.T, text string) *crdt.Doc {
	t.Helper()
	d := crdt.NewDocWithSite(1)
	require.NoError(t, d.InsertText(0, text))
	return d
}

func TestRenderFile(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	got := RenderFile(id, "My Doc", "hello")
	want := "---\nid: 6ba7b810-9dad-11d1-80b4-00c04fd430c8\ntitle: My Doc\n---\n\nhello\n"
	require.Equal(t, want, string(got))

	// A trailing newline is not doubled.
	got = RenderFile(id, "My Doc", "hello\n")
	require.Equal(t, want, string(got))
}

func TestWriteMarkdownIsIdempotent(t *testing.T) {
	id := uuid.New()
	owner := uuid.New()
	storage := newFakeStorage()
	docs := &fakeDocs{records: map[uuid.UUID]*types.DocumentRecord{
		id: {ID: id, Title: "Notes", Type: types.DocTypeMarkdown, OwnerID: &owner},
	}}
	m := New(docs, storage, nil, zerolog.Nop())
	replica := replicaWith(t, "hello")

	written, err := m.WriteMarkdown(id, replica)
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, 1, storage.writes)

	written, err = m.WriteMarkdown(id, replica)
	require.NoError(t, err)
	require.False(t, written)
	require.Equal(t, 1, storage.writes)

	require.NoError(t, replica.InsertText(5, "!"))
	written, err = m.WriteMarkdown(id, replica)
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, 2, storage.writes)
}

func TestWriteMarkdownSkipsFoldersAndUnknownDocs(t *testing.T) {
	id := uuid.New()
	storage := newFakeStorage()
	docs := &fakeDocs{records: map[uuid.UUID]*types.DocumentRecord{
		id: {ID: id, Title: "A folder", Type: types.DocTypeFolder},
	}}
	m := New(docs, storage, nil, zerolog.Nop())

	written, err := m.WriteMarkdown(id, replicaWith(t, "ignored"))
	require.NoError(t, err)
	require.False(t, written)
	require.Zero(t, storage.writes)

	written, err = m.WriteMarkdown(uuid.New(), replicaWith(t, "ignored"))
	require.NoError(t, err)
	require.False(t, written)
}

func TestGraphFailuresNeverFailMaterialization(t *testing.T) {
	id := uuid.New()
	owner := uuid.New()
	storage := newFakeStorage()
	docs := &fakeDocs{records: map[uuid.UUID]*types.DocumentRecord{
		id: {ID: id, Title: "Notes", Type: types.DocTypeMarkdown, OwnerID: &owner},
	}}
	graphs := &failingGraphs{}
	m := New(docs, storage, graphs, zerolog.Nop())

	written, err := m.WriteMarkdown(id, replicaWith(t, "[[link]] #tag"))
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, 2, graphs.calls)
}

func TestGraphSkippedWithoutOwner(t *testing.T) {
	id := uuid.New()
	storage := newFakeStorage()
	docs := &fakeDocs{records: map[uuid.UUID]*types.DocumentRecord{
		id: {ID: id, Title: "Notes", Type: types.DocTypeMarkdown},
	}}
	graphs := &failingGraphs{}
	m := New(docs, storage, graphs, zerolog.Nop())

	_, err := m.WriteMarkdown(id, replicaWith(t, "x"))
	require.NoError(t, err)
	require.Zero(t, graphs.calls)
}
