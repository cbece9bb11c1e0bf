// Package annotation exposes saved annotations over HTTP: the JSON
// snapshot per file and user, and a rendered PNG preview of one page.
package annotation

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/annosuite/annotator/internal/auth"
	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/engine"
	"github.com/annosuite/annotator/internal/store"
)

const maxStateSize = 4 << 20

// ImageSource opens uploaded page images by asset ID.
type ImageSource interface {
	Open(id string) (image.Image, error)
}

type Handler struct {
	log    *slog.Logger
	store  store.Store
	images ImageSource
	opts   engine.Options
}

func NewHandler(log *slog.Logger, st store.Store, images ImageSource, opts engine.Options) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: st, images: images, opts: opts}
}

// owner is the user whose annotations a request reads. Anyone signed in
// may read another user's annotations with ?owner=; writes always target
// the caller.
func owner(r *http.Request) string {
	if o := r.URL.Query().Get("owner"); o != "" {
		return o
	}
	return auth.UserIDFromContext(r.Context())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (document.Snapshot, bool) {
	fileID := mux.Vars(r)["fileId"]
	snap, err := h.store.Load(r.Context(), fileID, owner(r))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no annotations for this file"})
		return document.Snapshot{}, false
	}
	if err != nil {
		h.log.Error("load annotations", "error", err, "file", fileID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return document.Snapshot{}, false
	}
	return snap, true
}

// Get handles GET /api/files/{fileId}/annotations.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Put handles PUT /api/files/{fileId}/annotations. The body is a
// snapshot in the export format; legacy keys are accepted.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	fileID := mux.Vars(r)["fileId"]

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStateSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request too large"})
		return
	}
	snap, err := document.DecodeSnapshot(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.Save(r.Context(), fileID, userID, snap); err != nil {
		h.log.Error("save annotations", "error", err, "file", fileID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles GET /api/files/{fileId}/pages/{page}/preview. With
// ?image=<asset id> the annotations are drawn over that page image.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil || page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page"})
		return
	}
	snap, ok := h.load(w, r)
	if !ok {
		return
	}

	e := engine.New(h.opts)
	e.ImportSnapshot(snap)
	e.SetPage(page)
	if id := r.URL.Query().Get("image"); id != "" {
		img, err := h.images.Open(id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "page image not found"})
			return
		}
		e.SetPageImage(page, img)
	}

	png, err := e.ToRasterPreview()
	if errors.Is(err, engine.ErrNothingToPreview) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("render preview", "error", err, "page", page)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
