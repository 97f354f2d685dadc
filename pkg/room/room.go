package room

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/wire"
)

// Sink is the outbound half of a subscriber connection.
type Sink interface {
	Send(frame []byte) error
}

// Stream is the inbound half of a subscriber connection. Recv returns
// io.EOF on orderly close.
type Stream interface {
	Recv() ([]byte, error)
}

// Room is the live in-memory state of one document: the replica, the
// broadcast fan-out and the latest persisted sequence number. Rooms are
// never shared across documents.
type Room struct {
	ID       uuid.UUID
	Doc      *crdt.Doc
	Editable *atomic.Bool

	group  *BroadcastGroup
	logger zerolog.Logger

	seqMu     sync.Mutex
	latestSeq int64

	cancelBroadcast func()
}

// New creates a room around a replica. The room immediately observes the
// replica so every applied update — local or remote — is fanned out to
// subscribers as a sync-update frame.
func New(id uuid.UUID, doc *crdt.Doc, editable *atomic.Bool, startSeq int64, logger zerolog.Logger) *Room {
	r := &Room{
		ID:        id,
		Doc:       doc,
		Editable:  editable,
		group:     NewBroadcastGroup(),
		logger:    logger,
		latestSeq: startSeq,
	}
	r.cancelBroadcast = doc.OnUpdate(func(update []byte) {
		r.group.Broadcast(wire.EncodeSyncUpdate(update))
	})
	return r
}

// Close detaches the room from its replica.
func (r *Room) Close() {
	if r.cancelBroadcast != nil {
		r.cancelBroadcast()
	}
}

// LatestSeq returns the latest persisted sequence number.
func (r *Room) LatestSeq() int64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	return r.latestSeq
}

// NextSeq increments and returns the sequence counter.
func (r *Room) NextSeq() int64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.latestSeq++
	return r.latestSeq
}

// AdvanceSeq raises the counter to at least seq. Hydration uses this to
// sync the in-memory counter with the replayed log.
func (r *Room) AdvanceSeq(seq int64) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	if seq > r.latestSeq {
		r.latestSeq = seq
	}
}

// Broadcast fans a raw frame out to all subscribers.
func (r *Room) Broadcast(frame []byte) {
	r.group.Broadcast(frame)
}

// SubscriberCount returns the number of attached subscribers.
func (r *Room) SubscriberCount() int {
	return r.group.SubscriberCount()
}

// Subscribe attaches a peer to the room and blocks until the stream ends,
// the sink fails, or the protocol errors. The protocol start frame (state
// vector exchange) is sent before any broadcast frame.
func (r *Room) Subscribe(sink Sink, stream Stream, proto wire.Protocol) error {
	ch := r.group.add()
	defer r.group.remove(ch)
	metrics.SubscribersActive.Inc()
	defer metrics.SubscribersActive.Dec()

	if err := sink.Send(wire.Start(r.Doc)); err != nil {
		return err
	}

	errc := make(chan error, 2)
	done := make(chan struct{})

	// Outbound pump: broadcast frames to the peer.
	go func() {
		for {
			select {
			case frame := <-ch:
				if err := sink.Send(frame); err != nil {
					errc <- err
					return
				}
			case <-done:
				errc <- nil
				return
			}
		}
	}()

	// Inbound loop: route peer frames through the protocol.
	go func() {
		for {
			frame, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					errc <- nil
				} else {
					errc <- err
				}
				return
			}
			msgs, err := wire.ReadMessages(frame)
			if err != nil {
				r.logger.Debug().Str("document_id", r.ID.String()).Err(err).Msg("undecodable_frame")
				continue
			}
			for _, m := range msgs {
				switch m.Type {
				case wire.MessageSync:
					reply, err := wire.HandleMessage(proto, r.Doc, m)
					if err != nil {
						r.logger.Debug().Str("document_id", r.ID.String()).Err(err).Msg("protocol_error")
						continue
					}
					if reply != nil {
						if err := sink.Send(reply); err != nil {
							errc <- err
							return
						}
					}
				case wire.MessageAwareness:
					r.group.Broadcast(wire.EncodeAwareness(m.Payload))
				}
			}
		}
	}()

	err := <-errc
	close(done)
	return err
}
