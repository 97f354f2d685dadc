package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inklet/inklet/pkg/crdt"
)

func TestReadMessagesRoundTrip(t *testing.T) {
	frame := EncodeSyncUpdate([]byte{1, 2, 3})
	msgs, err := ReadMessages(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, MessageSync, msgs[0].Type)
	require.Equal(t, SyncUpdate, msgs[0].Sync)
	require.Equal(t, []byte{1, 2, 3}, msgs[0].Payload)
}

func TestReadMessagesMultiple(t *testing.T) {
	frame := append(EncodeSyncStep1([]byte{9}), EncodeAwareness([]byte("cursor"))...)
	msgs, err := ReadMessages(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, MessageSync, msgs[0].Type)
	require.Equal(t, SyncStep1, msgs[0].Sync)
	require.Equal(t, MessageAwareness, msgs[1].Type)
	require.Equal(t, []byte("cursor"), msgs[1].Payload)
}

func TestReadMessagesTruncated(t *testing.T) {
	frame := EncodeSyncUpdate([]byte{1, 2, 3})
	_, err := ReadMessages(frame[:len(frame)-2])
	require.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	sum, err := Analyze(EncodeSyncUpdate(nil))
	require.NoError(t, err)
	require.True(t, sum.HasUpdate)
	require.False(t, sum.HasAwareness)

	sum, err = Analyze(EncodeSyncStep2(nil))
	require.NoError(t, err)
	require.True(t, sum.HasUpdate)

	sum, err = Analyze(EncodeSyncStep1(nil))
	require.NoError(t, err)
	require.False(t, sum.HasUpdate)

	sum, err = Analyze(EncodeAwareness([]byte("x")))
	require.NoError(t, err)
	require.True(t, sum.HasAwareness)
	require.False(t, sum.HasUpdate)
}

func TestDefaultProtocolStep1ProducesStep2(t *testing.T) {
	server := crdt.NewDocWithSite(1)
	require.NoError(t, server.InsertText(0, "shared"))

	client := crdt.NewDocWithSite(2)
	start := Start(client)
	msgs, err := ReadMessages(start)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	reply, err := HandleMessage(DefaultProtocol{}, server, msgs[0])
	require.NoError(t, err)
	require.NotNil(t, reply)

	replyMsgs, err := ReadMessages(reply)
	require.NoError(t, err)
	require.Equal(t, SyncStep2, replyMsgs[0].Sync)
	require.NoError(t, client.ApplyUpdate(replyMsgs[0].Payload))
	require.Equal(t, "shared", client.Text())
}

func TestReadOnlyProtocolConsumesUpdates(t *testing.T) {
	server := crdt.NewDocWithSite(1)

	editor := crdt.NewDocWithSite(2)
	require.NoError(t, editor.InsertText(0, "x"))
	update := editor.EncodeStateAsUpdate(nil)

	msgs, err := ReadMessages(EncodeSyncUpdate(update))
	require.NoError(t, err)
	reply, err := HandleMessage(ReadOnlyProtocol{}, server, msgs[0])
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Equal(t, "", server.Text())

	// Step-1 still answers with state so viewers can sync.
	require.NoError(t, server.InsertText(0, "visible"))
	startMsgs, err := ReadMessages(Start(editor))
	require.NoError(t, err)
	reply, err = HandleMessage(ReadOnlyProtocol{}, server, startMsgs[0])
	require.NoError(t, err)
	require.NotNil(t, reply)
}
