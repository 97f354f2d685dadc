package hub

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/room"
	"github.com/inklet/inklet/pkg/wire"
)

type testStream struct {
	ch chan []byte
}

func (s *testStream) Recv() ([]byte, error) {
	frame, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

type testSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *testSink) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *testSink) count(match func(wire.Summary) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		if sum, err := wire.Analyze(f); err == nil && match(sum) {
			n++
		}
	}
	return n
}

func clientUpdateFrame(t *testing.T, text string) []byte {
	t.Helper()
	client := crdt.NewDocWithSite(77)
	require.NoError(t, client.InsertText(0, text))
	return wire.EncodeSyncUpdate(client.EncodeStateAsUpdate(nil))
}

func TestEditableFlagDefaultsTrue(t *testing.T) {
	h := newHarness(t, Config{AutoArchiveInterval: -1})
	doc := h.newDoc(t, "Doc")
	require.True(t, h.hub.DocumentEditable(doc))
	h.hub.SetDocumentEditable(doc, false)
	require.False(t, h.hub.DocumentEditable(doc))
	h.hub.SetDocumentEditable(doc, true)
	require.True(t, h.hub.DocumentEditable(doc))
}

func TestReadOnlyDocumentDropsUpdateFrames(t *testing.T) {
	h := newHarness(t, Config{AutoArchiveInterval: -1})
	doc := h.newDoc(t, "Locked")

	// Subscribe while editable so the default protocol is attached,
	// then flip the flag: the edit guard must drop updates mid-stream.
	sink := &testSink{}
	stream := &testStream{ch: make(chan []byte)}
	done := make(chan error, 1)
	go func() { done <- h.hub.Subscribe(doc, sink, stream, true) }()

	r, ok := waitRoom(t, h, doc)
	require.True(t, ok)
	require.Eventually(t, func() bool { return r.SubscriberCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	h.hub.SetDocumentEditable(doc, false)
	stream.ch <- clientUpdateFrame(t, "x")

	time.Sleep(150 * time.Millisecond)
	content, err := h.hub.GetContent(doc)
	require.NoError(t, err)
	require.Equal(t, "", content)
	latest, err := h.store.LatestSeq(doc)
	require.NoError(t, err)
	require.Zero(t, latest)

	// Awareness still round-trips to peers.
	peerSink := &testSink{}
	peerStream := &testStream{ch: make(chan []byte)}
	peerDone := make(chan error, 1)
	go func() { peerDone <- h.hub.Subscribe(doc, peerSink, peerStream, false) }()
	require.Eventually(t, func() bool { return r.SubscriberCount() == 2 }, 5*time.Second, 5*time.Millisecond)

	stream.ch <- wire.EncodeAwareness([]byte("cursor"))
	require.Eventually(t, func() bool {
		return peerSink.count(func(s wire.Summary) bool { return s.HasAwareness }) > 0
	}, 5*time.Second, 5*time.Millisecond)

	// Re-enable editing: updates flow again.
	h.hub.SetDocumentEditable(doc, true)
	stream.ch <- clientUpdateFrame(t, "y")
	require.Eventually(t, func() bool {
		content, err := h.hub.GetContent(doc)
		return err == nil && content == "y"
	}, 5*time.Second, 5*time.Millisecond)

	close(stream.ch)
	close(peerStream.ch)
	require.NoError(t, <-done)
	require.NoError(t, <-peerDone)
}

func TestSubscribeReadOnlyWhenDocumentLocked(t *testing.T) {
	h := newHarness(t, Config{AutoArchiveInterval: -1})
	doc := h.newDoc(t, "Locked from start")
	h.hub.SetDocumentEditable(doc, false)

	sink := &testSink{}
	stream := &testStream{ch: make(chan []byte)}
	done := make(chan error, 1)
	// can_edit is true but the document flag wins: the read-only
	// protocol is attached.
	go func() { done <- h.hub.Subscribe(doc, sink, stream, true) }()

	r, ok := waitRoom(t, h, doc)
	require.True(t, ok)
	require.Eventually(t, func() bool { return r.SubscriberCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	stream.ch <- clientUpdateFrame(t, "nope")
	time.Sleep(150 * time.Millisecond)
	content, err := h.hub.GetContent(doc)
	require.NoError(t, err)
	require.Equal(t, "", content)

	close(stream.ch)
	require.NoError(t, <-done)
}

func TestViewerWithoutCapabilityCannotWrite(t *testing.T) {
	h := newHarness(t, Config{AutoArchiveInterval: -1})
	doc := h.newDoc(t, "Viewer")

	sink := &testSink{}
	stream := &testStream{ch: make(chan []byte)}
	done := make(chan error, 1)
	go func() { done <- h.hub.Subscribe(doc, sink, stream, false) }()

	r, ok := waitRoom(t, h, doc)
	require.True(t, ok)
	require.Eventually(t, func() bool { return r.SubscriberCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	stream.ch <- clientUpdateFrame(t, "blocked")
	time.Sleep(100 * time.Millisecond)
	content, err := h.hub.GetContent(doc)
	require.NoError(t, err)
	require.Equal(t, "", content)

	close(stream.ch)
	require.NoError(t, <-done)
}

func waitRoom(t *testing.T, h *harness, doc uuid.UUID) (*room.Room, bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := h.hub.Room(doc); ok {
			return r, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, false
}
