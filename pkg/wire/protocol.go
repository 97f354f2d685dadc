package wire

import (
	"fmt"

	"github.com/inklet/inklet/pkg/crdt"
)

// Protocol decides how inbound sync messages act on a replica. Handlers
// return an optional reply frame for the sending peer.
type Protocol interface {
	HandleStep1(doc *crdt.Doc, stateVector []byte) ([]byte, error)
	HandleStep2(doc *crdt.Doc, update []byte) ([]byte, error)
	HandleUpdate(doc *crdt.Doc, update []byte) ([]byte, error)
}

// DefaultProtocol applies peer updates and answers state vector requests.
type DefaultProtocol struct{}

func (DefaultProtocol) HandleStep1(doc *crdt.Doc, stateVector []byte) ([]byte, error) {
	sv, err := crdt.DecodeStateVector(stateVector)
	if err != nil {
		return nil, fmt.Errorf("wire: step1 state vector: %w", err)
	}
	return EncodeSyncStep2(doc.EncodeStateAsUpdate(sv)), nil
}

func (DefaultProtocol) HandleStep2(doc *crdt.Doc, update []byte) ([]byte, error) {
	return nil, doc.ApplyUpdate(update)
}

func (DefaultProtocol) HandleUpdate(doc *crdt.Doc, update []byte) ([]byte, error) {
	return nil, doc.ApplyUpdate(update)
}

// ReadOnlyProtocol still answers step-1 with full state so viewers can
// sync, but consumes step-2 and update messages without mutating the
// replica.
type ReadOnlyProtocol struct{}

func (ReadOnlyProtocol) HandleStep1(doc *crdt.Doc, stateVector []byte) ([]byte, error) {
	if _, err := crdt.DecodeStateVector(stateVector); err != nil {
		return nil, fmt.Errorf("wire: step1 state vector: %w", err)
	}
	return EncodeSyncStep2(doc.EncodeStateAsUpdate(nil)), nil
}

func (ReadOnlyProtocol) HandleStep2(*crdt.Doc, []byte) ([]byte, error) {
	return nil, nil
}

func (ReadOnlyProtocol) HandleUpdate(*crdt.Doc, []byte) ([]byte, error) {
	return nil, nil
}

// HandleMessage routes one decoded message through the protocol. Awareness
// messages produce no reply here; transports relay them to the broadcast
// group instead.
func HandleMessage(p Protocol, doc *crdt.Doc, msg Message) ([]byte, error) {
	if msg.Type != MessageSync {
		return nil, nil
	}
	switch msg.Sync {
	case SyncStep1:
		return p.HandleStep1(doc, msg.Payload)
	case SyncStep2:
		return p.HandleStep2(doc, msg.Payload)
	case SyncUpdate:
		return p.HandleUpdate(doc, msg.Payload)
	default:
		return nil, fmt.Errorf("wire: unknown sync tag %d", msg.Sync)
	}
}
