// Package asset stores uploaded page images. Pages are rasterised PDF or
// image pages that annotations are drawn over.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/annosuite/annotator/internal/typeid"
)

const maxUploadSize = 20 << 20 // 20MB

var ErrNotFound = errors.New("asset not found")

// UploadResponse is returned from the upload endpoint. Width and Height
// become the page size the viewport fits to.
type UploadResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// Handler serves page image upload and retrieval endpoints.
type Handler struct {
	dir string
	log *slog.Logger
}

// NewHandler creates a handler that stores files in dir.
func NewHandler(log *slog.Logger, dir string) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Handler{dir: dir, log: log}, nil
}

func (h *Handler) path(id string) string {
	return filepath.Join(h.dir, id+".png")
}

// Upload handles POST /assets/upload (multipart form with a "file" field).
// JPEGs are re-encoded as PNG.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 20MB)", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		http.Error(w, "only PNG and JPEG images are supported", http.StatusBadRequest)
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := typeid.NewAssetID()
	if err := h.write(id, img); err != nil {
		h.log.Error("store page image", "error", err, "id", id)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	b := img.Bounds()
	resp := UploadResponse{
		ID:     id,
		URL:    fmt.Sprintf("/assets/%s.png", id),
		Width:  b.Dx(),
		Height: b.Dy(),
		Name:   header.Filename,
	}
	h.log.Info("page image stored", "id", id, "width", resp.Width, "height", resp.Height)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) write(id string, img image.Image) error {
	out, err := os.Create(h.path(id))
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(h.path(id))
		return err
	}
	return out.Close()
}

// Serve returns an http.Handler that serves stored files with caching
// headers. Asset IDs are never reused, so files are immutable.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Open decodes a stored page image for server-side previews.
func (h *Handler) Open(id string) (image.Image, error) {
	if err := typeid.Validate(id, typeid.PrefixAsset); err != nil {
		return nil, err
	}
	f, err := os.Open(h.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return img, nil
}

// Delete removes a stored page image.
func (h *Handler) Delete(id string) error {
	if err := typeid.Validate(id, typeid.PrefixAsset); err != nil {
		return err
	}
	if err := os.Remove(h.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	return nil
}
