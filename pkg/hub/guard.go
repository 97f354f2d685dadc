package hub

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/room"
	"github.com/inklet/inklet/pkg/wire"
)

// editGuard filters a subscriber's inbound stream: while the document's
// editable flag is off, frames carrying sync-update or sync-step-2
// payloads are dropped; awareness-only frames pass through. Undecodable
// frames also pass — failing closed would put misbehaving clients into
// disconnect loops.
type editGuard struct {
	inner  room.Stream
	docID  uuid.UUID
	flag   *atomic.Bool
	logger zerolog.Logger
}

func newEditGuard(inner room.Stream, docID uuid.UUID, flag *atomic.Bool, logger zerolog.Logger) room.Stream {
	return &editGuard{inner: inner, docID: docID, flag: flag, logger: logger}
}

func (g *editGuard) Recv() ([]byte, error) {
	for {
		frame, err := g.inner.Recv()
		if err != nil {
			return nil, err
		}
		if g.flag.Load() {
			return frame, nil
		}
		summary, aerr := wire.Analyze(frame)
		if aerr != nil {
			g.logger.Debug().
				Str("document_id", g.docID.String()).
				Err(aerr).
				Msg("failed_to_decode_frame_for_edit_guard")
			return frame, nil
		}
		if summary.HasUpdate {
			metrics.ReadOnlyUpdatesDropped.Inc()
			g.logger.Warn().
				Str("document_id", g.docID.String()).
				Msg("ignored_update_from_readonly_document")
			continue
		}
		return frame, nil
	}
}
