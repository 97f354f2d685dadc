package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/inklet/inklet/pkg/crdt"
)

// Top-level message tags.
const (
	MessageSync      uint64 = 0
	MessageAwareness uint64 = 1
)

// Sync sub-tags.
const (
	SyncStep1  uint64 = 0
	SyncStep2  uint64 = 1
	SyncUpdate uint64 = 2
)

// Message is one decoded envelope entry. A frame may carry several
// messages back to back.
type Message struct {
	Type    uint64
	Sync    uint64 // valid when Type == MessageSync
	Payload []byte
}

func appendPayload(buf []byte, payload []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// EncodeSyncStep1 frames a state vector exchange request.
func EncodeSyncStep1(stateVector []byte) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncStep1)
	return appendPayload(buf, stateVector)
}

// EncodeSyncStep2 frames the reply to a step-1 request.
func EncodeSyncStep2(update []byte) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncStep2)
	return appendPayload(buf, update)
}

// EncodeSyncUpdate frames an incremental document update.
func EncodeSyncUpdate(update []byte) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncUpdate)
	return appendPayload(buf, update)
}

// EncodeAwareness frames an opaque awareness payload.
func EncodeAwareness(payload []byte) []byte {
	buf := binary.AppendUvarint(nil, MessageAwareness)
	return appendPayload(buf, payload)
}

// ReadMessages decodes every message in a frame.
func ReadMessages(frame []byte) ([]Message, error) {
	var msgs []Message
	off := 0
	for off < len(frame) {
		typ, n := binary.Uvarint(frame[off:])
		if n <= 0 {
			return nil, fmt.Errorf("wire: truncated message tag at offset %d", off)
		}
		off += n
		msg := Message{Type: typ}
		if typ == MessageSync {
			sub, n := binary.Uvarint(frame[off:])
			if n <= 0 {
				return nil, fmt.Errorf("wire: truncated sync tag at offset %d", off)
			}
			off += n
			msg.Sync = sub
		}
		size, n := binary.Uvarint(frame[off:])
		if n <= 0 {
			return nil, fmt.Errorf("wire: truncated payload length at offset %d", off)
		}
		off += n
		if uint64(len(frame)-off) < size {
			return nil, fmt.Errorf("wire: payload overruns frame by %d bytes", size-uint64(len(frame)-off))
		}
		msg.Payload = frame[off : off+int(size)]
		off += int(size)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Summary reports what a frame carries, for the read-only edit guard.
type Summary struct {
	HasUpdate    bool // sync-update or sync-step-2 present
	HasAwareness bool
}

// Analyze scans a frame without touching any replica.
func Analyze(frame []byte) (Summary, error) {
	var sum Summary
	msgs, err := ReadMessages(frame)
	if err != nil {
		return sum, err
	}
	for _, m := range msgs {
		switch m.Type {
		case MessageSync:
			if m.Sync == SyncUpdate || m.Sync == SyncStep2 {
				sum.HasUpdate = true
			}
		case MessageAwareness:
			sum.HasAwareness = true
		}
	}
	return sum, nil
}

// Start produces the protocol start frame: a step-1 carrying the replica's
// state vector.
func Start(doc *crdt.Doc) []byte {
	return EncodeSyncStep1(doc.StateVector().Encode())
}
