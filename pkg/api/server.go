package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inklet/inklet/pkg/assets"
	"github.com/inklet/inklet/pkg/hub"
	"github.com/inklet/inklet/pkg/log"
	"github.com/inklet/inklet/pkg/metrics"
	"github.com/inklet/inklet/pkg/store"
	"github.com/inklet/inklet/pkg/types"
	"github.com/inklet/inklet/pkg/workspace"
)

// AccessChecker is the capability port consulted before a subscription is
// attached. The surrounding application supplies session- or share-based
// implementations.
type AccessChecker interface {
	CanRead(doc uuid.UUID, r *http.Request) bool
	CanEdit(doc uuid.UUID, r *http.Request) bool
}

// AllowAll grants every capability; the default for single-user setups.
type AllowAll struct{}

func (AllowAll) CanRead(uuid.UUID, *http.Request) bool { return true }
func (AllowAll) CanEdit(uuid.UUID, *http.Request) bool { return true }

// Server is the HTTP and websocket surface over the engine.
type Server struct {
	hub       *hub.Hub
	docs      store.DocumentStore
	signer    *assets.Signer
	workspace *workspace.Workspace
	access    AccessChecker
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
	assetTTL  time.Duration
}

// NewServer wires the API surface. access may be nil, which allows
// everything.
func NewServer(h *hub.Hub, docs store.DocumentStore, signer *assets.Signer, ws *workspace.Workspace, access AccessChecker) *Server {
	if access == nil {
		access = AllowAll{}
	}
	return &Server{
		hub:       h,
		docs:      docs,
		signer:    signer,
		workspace: ws,
		access:    access,
		assetTTL:  10 * time.Minute,
		logger:    log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetAssetURLTTL overrides the lifetime of minted asset URLs.
func (s *Server) SetAssetURLTTL(ttl time.Duration) {
	if ttl > 0 {
		s.assetTTL = ttl
	}
}

// Router builds the HTTP mux.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/documents/{id}", s.handleSubscribe)
	mux.HandleFunc("GET /api/documents/{id}/content", s.handleContent)
	mux.HandleFunc("POST /api/documents/{id}/save", s.handleForceSave)
	mux.HandleFunc("PUT /api/documents/{id}/editable", s.handleSetEditable)
	mux.HandleFunc("GET /api/documents/{id}/archives", s.handleListArchives)
	mux.HandleFunc("POST /api/documents/{id}/archives", s.handleCreateArchive)
	mux.HandleFunc("POST /api/documents/{id}/archives/{archiveID}/restore", s.handleRestore)
	mux.HandleFunc("GET /api/archives/{id}/download", s.handleArchiveDownload)
	mux.HandleFunc("GET /api/plugin-assets", s.handlePluginAsset)
	mux.HandleFunc("GET /api/plugins/{plugin}/{version}/asset-url", s.handleMintAssetURL)
	mux.HandleFunc("GET /healthz", metrics.HealthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) docIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	if !s.access.CanRead(docID, r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	canEdit := r.URL.Query().Get("edit") == "1" && s.access.CanEdit(docID, r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket_upgrade_failed")
		return
	}
	defer conn.Close()

	if err := s.hub.Subscribe(docID, &wsSink{conn: conn}, &wsStream{conn: conn}, canEdit); err != nil {
		s.logger.Debug().
			Str("document_id", docID.String()).
			Err(err).
			Msg("subscription_ended_with_error")
	}
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	content, err := s.hub.GetContent(docID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

func (s *Server) handleForceSave(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.hub.ForceSaveToFS(docID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEditable(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Editable bool `json:"editable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.hub.SetDocumentEditable(docID, body.Editable)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	limit := int64(50)
	offset := int64(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			offset = n
		}
	}
	records, err := s.hub.Snapshots().ListArchives(docID, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateArchive(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Label string `json:"label"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Label == "" {
		body.Label = "Snapshot " + time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	}
	record, err := s.hub.ArchiveDocument(docID, body.Label, body.Notes, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.docIDFromPath(w, r)
	if !ok {
		return
	}
	archiveID, err := uuid.Parse(r.PathValue("archiveID"))
	if err != nil {
		http.Error(w, "invalid archive id", http.StatusBadRequest)
		return
	}
	record, err := s.hub.RestoreArchive(docID, archiveID, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleArchiveDownload(w http.ResponseWriter, r *http.Request) {
	archiveID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid archive id", http.StatusBadRequest)
		return
	}
	record, _, err := s.hub.Snapshots().LoadArchiveMarkdown(archiveID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	title := record.Label
	if doc, err := s.docs.GetDocument(record.DocumentID); err == nil {
		title = doc.Title
	}
	data, name, err := s.hub.Snapshots().BuildArchiveZip(archiveID, title, s.workspace)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(data)
}

func (s *Server) handleMintAssetURL(w http.ResponseWriter, r *http.Request) {
	pluginID := r.PathValue("plugin")
	version := r.PathValue("version")
	relPath := r.URL.Query().Get("path")

	scope := assets.GlobalScope()
	if ownerParam := r.URL.Query().Get("owner"); ownerParam != "" {
		owner, err := uuid.Parse(ownerParam)
		if err != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		scope = assets.UserScope(owner, r.URL.Query().Get("share"))
	}

	signed, err := s.signer.SignURL(scope, pluginID, version, relPath, s.assetTTL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": signed})
}

func (s *Server) handlePluginAsset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scopeTag := q.Get("scope")
	pluginID := q.Get("plugin")
	version := q.Get("version")
	relPath := q.Get("path")
	sig := q.Get("sig")
	exp, err := strconv.ParseInt(q.Get("exp"), 10, 64)
	if err != nil {
		http.Error(w, "invalid exp", http.StatusBadRequest)
		return
	}

	var scope assets.Scope
	switch scopeTag {
	case "global":
		scope = assets.GlobalScope()
	case "user":
		owner, err := uuid.Parse(q.Get("owner"))
		if err != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		scope = assets.UserScope(owner, q.Get("share"))
	default:
		http.Error(w, "invalid scope", http.StatusBadRequest)
		return
	}

	if !s.signer.VerifyURL(scope, pluginID, version, relPath, exp, sig) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	normalized, err := assets.NormalizePath(relPath)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	full, err := s.workspace.PluginAssetPath(pluginID, version, normalized)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, full)
}
