package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/crdt"
	"github.com/inklet/inklet/pkg/hydrate"
	"github.com/inklet/inklet/pkg/log"
	"github.com/inklet/inklet/pkg/materialize"
	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/room"
	"github.com/inklet/inklet/pkg/snapshot"
	"github.com/inklet/inklet/pkg/store"
	"github.com/inklet/inklet/pkg/types"
	"github.com/inklet/inklet/pkg/wire"
)

// autoArchiveCheckEvery is the sequence modulus at which the auto-archive
// gate is evaluated.
const autoArchiveCheckEvery = 100

// Config tunes the hub's background behavior.
type Config struct {
	// AutoArchiveInterval gates automatic archives: at every 100th
	// persisted update, an archive is taken if at least this much time
	// passed since the document's last one. Zero removes the time gate
	// (archive at every boundary); negative disables auto-archival.
	AutoArchiveInterval time.Duration
	// DebounceInterval is the quiet period before a dirty document is
	// re-materialized to disk.
	DebounceInterval time.Duration
	// PersistQueueSize bounds the per-room update channel drained by the
	// persistence task.
	PersistQueueSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AutoArchiveInterval: 6 * time.Hour,
		DebounceInterval:    600 * time.Millisecond,
		PersistQueueSize:    512,
	}
}

func (c *Config) fillDefaults() {
	if c.DebounceInterval <= 0 {
		c.DebounceInterval = 600 * time.Millisecond
	}
	if c.PersistQueueSize <= 0 {
		c.PersistQueueSize = 512
	}
}

// Hub manages the set of live document rooms: lazy creation with
// asynchronous hydration, the per-room persistence pipeline, debounced
// Markdown materialization, automatic archival and read-only enforcement.
type Hub struct {
	cfg          Config
	updates      store.UpdateLogStore
	hydration    *hydrate.Service
	snapshots    *snapshot.Service
	materializer *materialize.Materializer
	logger       zerolog.Logger

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room.Room

	saveMu    sync.Mutex
	saveFlags map[uuid.UUID]bool

	archiveMu       sync.Mutex
	lastAutoArchive map[uuid.UUID]time.Time

	editMu    sync.RWMutex
	editFlags map[uuid.UUID]*atomic.Bool
}

// New wires a hub.
func New(updates store.UpdateLogStore, hydration *hydrate.Service, snapshots *snapshot.Service, materializer *materialize.Materializer, cfg Config) *Hub {
	cfg.fillDefaults()
	return &Hub{
		cfg:             cfg,
		updates:         updates,
		hydration:       hydration,
		snapshots:       snapshots,
		materializer:    materializer,
		logger:          log.WithComponent("hub"),
		rooms:           make(map[uuid.UUID]*room.Room),
		saveFlags:       make(map[uuid.UUID]bool),
		lastAutoArchive: make(map[uuid.UUID]time.Time),
		editFlags:       make(map[uuid.UUID]*atomic.Bool),
	}
}

// Snapshots exposes the snapshot service for callers that archive, list or
// restore outside the room lifecycle.
func (h *Hub) Snapshots() *snapshot.Service {
	return h.snapshots
}

// GetOrCreate returns the live room for a document, creating and hydrating
// it on first use. Only the latest update seq is read synchronously;
// hydration runs in the background so subscription does not wait for the
// snapshot and log replay.
func (h *Hub) GetOrCreate(docID uuid.UUID) (*room.Room, error) {
	h.mu.RLock()
	if r, ok := h.rooms[docID]; ok {
		h.mu.RUnlock()
		return r, nil
	}
	h.mu.RUnlock()

	doc := crdt.NewDoc()
	startSeq, err := h.updates.LatestSeq(docID)
	if err != nil {
		return nil, fmt.Errorf("read latest seq for %s: %w", docID, err)
	}
	flag := h.ensureEditFlag(docID)
	r := room.New(docID, doc, flag, startSeq, h.logger)

	updatesCh := make(chan []byte, h.cfg.PersistQueueSize)
	cancelObserver := doc.OnUpdate(func(update []byte) {
		// Bounded send: a full queue applies backpressure to the
		// editing path instead of dropping updates.
		updatesCh <- update
		h.scheduleMaterialize(docID, doc)
	})

	h.mu.Lock()
	if existing, ok := h.rooms[docID]; ok {
		// Lost the creation race; discard our room.
		h.mu.Unlock()
		cancelObserver()
		r.Close()
		return existing, nil
	}
	h.rooms[docID] = r
	h.mu.Unlock()
	metrics.RoomsLive.Inc()

	go h.runPersistence(r, updatesCh)
	go h.hydrateRoom(r)
	return r, nil
}

// Room returns the live room, if any.
func (h *Hub) Room(docID uuid.UUID) (*room.Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[docID]
	return r, ok
}

// runPersistence drains a room's update channel, assigning monotonic
// sequence numbers and appending to the update log. Failures are logged
// and swallowed; the room keeps running and subsequent snapshots heal the
// log.
func (h *Hub) runPersistence(r *room.Room, updates <-chan []byte) {
	for update := range updates {
		seq := r.NextSeq()
		if err := h.updates.AppendUpdate(r.ID, seq, update); err != nil {
			metrics.UpdatePersistFailures.Inc()
			h.logger.Error().
				Str("document_id", r.ID.String()).
				Int64("seq", seq).
				Err(err).
				Msg("persist_document_update_failed")
		} else {
			metrics.UpdatesPersisted.Inc()
		}
		if seq%autoArchiveCheckEvery == 0 && h.cfg.AutoArchiveInterval >= 0 {
			h.maybeAutoArchive(r)
		}
	}
}

// maybeAutoArchive takes a snapshot and an automatic archive when the
// document's last auto-archive is older than the configured interval.
func (h *Hub) maybeAutoArchive(r *room.Room) {
	h.archiveMu.Lock()
	now := time.Now()
	if last, ok := h.lastAutoArchive[r.ID]; ok && now.Sub(last) < h.cfg.AutoArchiveInterval {
		h.archiveMu.Unlock()
		return
	}
	h.lastAutoArchive[r.ID] = now
	h.archiveMu.Unlock()

	result, err := h.snapshots.PersistSnapshot(r.ID, r.Doc, snapshot.PersistOptions{})
	if err != nil {
		h.logger.Error().
			Str("document_id", r.ID.String()).
			Err(err).
			Msg("persist_document_snapshot_failed")
		return
	}
	metrics.SnapshotsPersisted.Inc()
	label := "Snapshot " + time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	if _, err := h.snapshots.ArchiveSnapshot(r.ID, result.SnapshotBytes, result.Version, snapshot.ArchiveOptions{
		Label: label,
		Kind:  types.ArchiveAutomatic,
	}); err != nil {
		h.logger.Debug().
			Str("document_id", r.ID.String()).
			Int64("version", result.Version).
			Err(err).
			Msg("persist_document_snapshot_archive_failed")
		return
	}
	metrics.ArchivesCreated.WithLabelValues(string(types.ArchiveAutomatic)).Inc()
}

// scheduleMaterialize marks the document dirty and schedules a debounced
// write: the scheduler that still finds the flag set after the quiet
// period performs the materialization, so bursts collapse to one write.
func (h *Hub) scheduleMaterialize(docID uuid.UUID, doc *crdt.Doc) {
	h.saveMu.Lock()
	h.saveFlags[docID] = true
	h.saveMu.Unlock()
	go func() {
		time.Sleep(h.cfg.DebounceInterval)
		h.saveMu.Lock()
		_, dirty := h.saveFlags[docID]
		delete(h.saveFlags, docID)
		h.saveMu.Unlock()
		if !dirty {
			return
		}
		written, err := h.materializer.WriteMarkdown(docID, doc)
		if err != nil {
			h.logger.Error().
				Str("document_id", docID.String()).
				Err(err).
				Msg("debounced_save_failed")
			return
		}
		if written {
			metrics.MarkdownWrites.Inc()
		}
	}()
}

// hydrateRoom rebuilds persisted state into the live replica and
// broadcasts the resulting state so subscribers attached before hydration
// completed receive backfill through the normal protocol path.
func (h *Hub) hydrateRoom(r *room.Room) {
	logger := h.logger.With().Str("document_id", r.ID.String()).Logger()
	logger.Debug().Msg("hydrate_start")
	state, err := h.hydration.Hydrate(r.ID)
	if err != nil {
		logger.Error().Err(err).Msg("hydrate_failed")
		return
	}
	if full := state.Replica.EncodeStateAsUpdate(nil); len(full) > 0 {
		if err := r.Doc.ApplyUpdate(full); err != nil {
			logger.Debug().Err(err).Msg("hydrate_apply_failed")
		}
	}
	r.AdvanceSeq(state.LastSeq)
	if current := r.Doc.EncodeStateAsUpdate(nil); len(current) > 0 {
		r.Broadcast(wire.EncodeSyncUpdate(current))
	}
	logger.Debug().Msg("hydrate_complete")
}

// Subscribe attaches a peer to a document and blocks until the peer
// disconnects or errors. When the peer may not edit — either by capability
// or because the document is read-only — the read-only protocol consumes
// update messages server-side, and the edit guard drops update frames that
// arrive while the editable flag is off.
func (h *Hub) Subscribe(docID uuid.UUID, sink room.Sink, stream room.Stream, canEdit bool) error {
	r, err := h.GetOrCreate(docID)
	if err != nil {
		return err
	}
	flag := h.ensureEditFlag(docID)
	effectiveCanEdit := canEdit && flag.Load()
	guarded := newEditGuard(stream, docID, flag, h.logger)
	var proto wire.Protocol
	if effectiveCanEdit {
		proto = wire.DefaultProtocol{}
	} else {
		proto = wire.ReadOnlyProtocol{}
	}
	return r.Subscribe(sink, guarded, proto)
}

// ApplySnapshot atomically replaces the live document content with the
// source replica's content. The replacement is one transaction, so its
// update frame reaches subscribers before any later local edit.
func (h *Hub) ApplySnapshot(docID uuid.UUID, source *crdt.Doc) error {
	r, err := h.GetOrCreate(docID)
	if err != nil {
		return err
	}
	text := source.Text()
	_, err = r.Doc.Update(func(tx *crdt.Tx) error {
		if l := tx.Len(); l > 0 {
			if err := tx.Delete(0, l); err != nil {
				return err
			}
		}
		if text != "" {
			return tx.Insert(0, text)
		}
		return nil
	})
	// An empty transaction broadcasts nothing; otherwise the room's
	// replica observer has already fanned the replacement update out.
	return err
}

// GetContent reads the document text from the live room, or hydrates a
// transient replica when no room exists.
func (h *Hub) GetContent(docID uuid.UUID) (string, error) {
	if r, ok := h.Room(docID); ok {
		return r.Doc.Text(), nil
	}
	state, err := h.hydration.Hydrate(docID)
	if err != nil {
		return "", err
	}
	return state.Replica.Text(), nil
}

// ForceSaveToFS materializes the document synchronously, bypassing the
// debounce.
func (h *Hub) ForceSaveToFS(docID uuid.UUID) error {
	if r, ok := h.Room(docID); ok {
		_, err := h.materializer.WriteMarkdown(docID, r.Doc)
		return err
	}
	state, err := h.hydration.Hydrate(docID)
	if err != nil {
		return err
	}
	_, err = h.materializer.WriteMarkdown(docID, state.Replica)
	return err
}

// SnapshotAll persists a snapshot for every live room, retaining
// keepVersions snapshots and pruning update-log entries older than the
// room's current seq minus updatesKeepWindow. Driven by an external
// scheduler.
func (h *Hub) SnapshotAll(keepVersions, updatesKeepWindow int64) error {
	h.mu.RLock()
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()
	for _, r := range rooms {
		cutoff := r.LatestSeq() - updatesKeepWindow
		if cutoff < 0 {
			cutoff = 0
		}
		if _, err := h.snapshots.PersistSnapshot(r.ID, r.Doc, snapshot.PersistOptions{
			PruneSnapshots:     keepVersions,
			PruneUpdatesBefore: cutoff,
		}); err != nil {
			return err
		}
		metrics.SnapshotsPersisted.Inc()
	}
	return nil
}

// ArchiveDocument takes a manual archive of the document's current state.
func (h *Hub) ArchiveDocument(docID uuid.UUID, label, notes string, actor *uuid.UUID) (*types.ArchiveRecord, error) {
	r, err := h.GetOrCreate(docID)
	if err != nil {
		return nil, err
	}
	result, err := h.snapshots.PersistSnapshot(docID, r.Doc, snapshot.PersistOptions{})
	if err != nil {
		return nil, err
	}
	metrics.SnapshotsPersisted.Inc()
	record, err := h.snapshots.ArchiveSnapshot(docID, result.SnapshotBytes, result.Version, snapshot.ArchiveOptions{
		Label:     label,
		Notes:     notes,
		Kind:      types.ArchiveManual,
		CreatedBy: actor,
	})
	if err != nil {
		return nil, err
	}
	metrics.ArchivesCreated.WithLabelValues(string(types.ArchiveManual)).Inc()
	return record, nil
}

// SetDocumentEditable flips the per-document editable flag. Existing
// subscribers are affected immediately through the edit guard.
func (h *Hub) SetDocumentEditable(docID uuid.UUID, editable bool) {
	h.ensureEditFlag(docID).Store(editable)
}

// DocumentEditable reports the current editable flag.
func (h *Hub) DocumentEditable(docID uuid.UUID) bool {
	return h.ensureEditFlag(docID).Load()
}

func (h *Hub) ensureEditFlag(docID uuid.UUID) *atomic.Bool {
	h.editMu.RLock()
	flag, ok := h.editFlags[docID]
	h.editMu.RUnlock()
	if ok {
		return flag
	}
	h.editMu.Lock()
	defer h.editMu.Unlock()
	if flag, ok := h.editFlags[docID]; ok {
		return flag
	}
	flag = &atomic.Bool{}
	flag.Store(true)
	h.editFlags[docID] = flag
	return flag
}
