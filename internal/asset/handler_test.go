package asset

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func uploadRequest(t *testing.T, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="page-1.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(body)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pagePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUploadOpenDelete(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, "image/png", pagePNG(t, 40, 30)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Width != 40 || resp.Height != 30 || resp.Name != "page-1.png" {
		t.Errorf("response = %+v", resp)
	}

	img, err := h.Open(resp.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("bounds = %v", b)
	}

	srv := httptest.NewRecorder()
	h.Serve().ServeHTTP(srv, httptest.NewRequest(http.MethodGet, resp.URL, nil))
	if srv.Code != http.StatusOK || srv.Header().Get("Cache-Control") == "" {
		t.Errorf("serve status = %d, cache = %q", srv.Code, srv.Header().Get("Cache-Control"))
	}

	if err := h.Delete(resp.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.Open(resp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after delete = %v, want ErrNotFound", err)
	}
}

func TestUploadRejects(t *testing.T) {
	h := newTestHandler(t)
	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"wrong type", "application/pdf", []byte("%PDF-1.4")},
		{"not an image", "image/png", []byte("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Upload(rec, uploadRequest(t, tt.contentType, tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestOpenValidatesID(t *testing.T) {
	h := newTestHandler(t)
	if _, err := h.Open("../etc/passwd"); err == nil {
		t.Error("Open accepted a path")
	}
}
