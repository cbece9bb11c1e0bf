package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/typeid"
)

const maxUploadSize = 200 << 20 // 200MB

// PageSpec is the per-page metrics entry submitted by the client.
type PageSpec struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Scale      float64 `json:"scale"`
	PageWidth  float64 `json:"pageWidth"`
	PageHeight float64 `json:"pageHeight"`
}

func (s PageSpec) info() PageInfo {
	return PageInfo{
		Metrics: PageMetrics{Width: s.Width, Height: s.Height, Scale: s.Scale},
		Size:    PageSize{Width: s.PageWidth, Height: s.PageHeight},
	}
}

// CommandsRequest is the JSON body of the draw-commands endpoint.
type CommandsRequest struct {
	State   json.RawMessage     `json:"state"`
	Metrics map[string]PageSpec `json:"metrics"`
}

// Handler serves the export endpoints. Layer visibility comes from the
// layer table in each submitted state.
type Handler struct {
	log *slog.Logger
}

func NewHandler(log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log}
}

// ExportPDF handles POST /export/pdf. The multipart form carries the
// annotation state in "state", page metrics in "metrics" and the page
// rasters as "page_N" files.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "request too large", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	snap, err := document.DecodeSnapshot([]byte(r.FormValue("state")))
	if err != nil {
		http.Error(w, "invalid state: "+err.Error(), http.StatusBadRequest)
		return
	}
	src, err := parseMetrics([]byte(r.FormValue("metrics")))
	if err != nil {
		http.Error(w, "invalid metrics: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Map iteration order is random; the page number comes from the key.
	for key, files := range r.MultipartForm.File {
		if !strings.HasPrefix(key, "page_") || len(files) == 0 {
			continue
		}
		page, err := strconv.Atoi(strings.TrimPrefix(key, "page_"))
		if err != nil {
			http.Error(w, "invalid page key: "+key, http.StatusBadRequest)
			return
		}
		f, err := files[0].Open()
		if err != nil {
			h.log.Error("open uploaded page", "key", key, "error", err)
			http.Error(w, "failed to read page", http.StatusBadRequest)
			return
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			http.Error(w, "invalid page image "+key+": "+err.Error(), http.StatusBadRequest)
			return
		}
		info := src[page]
		info.Background = img
		if info.Metrics.Width == 0 {
			b := img.Bounds()
			info.Metrics.Width, info.Metrics.Height = float64(b.Dx()), float64(b.Dy())
		}
		src[page] = info
	}

	exportID := typeid.NewExportID()
	h.log.Info("export started", "id", exportID, "pages", len(snap.Pages), "layers", len(snap.Layers))

	pdf := NewPDFWriter()
	report, err := NewExporter(h.log, snap.Registry()).Export(r.Context(), snap.Pages, src, pdf)
	if errors.Is(err, ErrNoPages) {
		http.Error(w, "nothing to export", http.StatusUnprocessableEntity)
		return
	}
	if err == nil && len(report.Written) == 0 {
		http.Error(w, "no page could be exported: "+failedPages(report), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("export failed", "id", exportID, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	var out bytes.Buffer
	if err := pdf.Finish(&out); err != nil {
		h.log.Error("write pdf", "id", exportID, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, exportID))
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	if len(report.Failed) > 0 {
		w.Header().Set("X-Export-Failed-Pages", failedPages(report))
	}
	w.Write(out.Bytes())

	h.log.Info("export complete", "id", exportID, "pages", len(report.Written), "size", out.Len())
}

// Commands handles POST /export/commands, returning the page-space draw
// commands for every annotated page as JSON.
func (h *Handler) Commands(w http.ResponseWriter, r *http.Request) {
	var req CommandsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	snap, err := document.DecodeSnapshot(req.State)
	if err != nil {
		http.Error(w, "invalid state: "+err.Error(), http.StatusBadRequest)
		return
	}
	doc, layers := snap.Pages, snap.Registry()

	out := map[string][]DrawCommand{}
	for _, page := range doc.Pages() {
		ps, ok := req.Metrics[strconv.Itoa(page)]
		if !ok {
			continue
		}
		info := ps.info()
		proj, _, err := NewProjection(info.Metrics, info.Size)
		if err != nil {
			http.Error(w, fmt.Sprintf("page %d: %v", page, err), http.StatusBadRequest)
			return
		}
		out[strconv.Itoa(page)] = Compile(doc[page].Shapes, proj, layers)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func parseMetrics(data []byte) (StaticSource, error) {
	src := StaticSource{}
	if len(bytes.TrimSpace(data)) == 0 {
		return src, nil
	}
	var raw map[string]PageSpec
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key, ps := range raw {
		page, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", key)
		}
		src[page] = ps.info()
	}
	return src, nil
}

func failedPages(report Report) string {
	nums := make([]int, 0, len(report.Failed))
	for p := range report.Failed {
		nums = append(nums, p)
	}
	slices.Sort(nums)
	pages := make([]string, len(nums))
	for i, p := range nums {
		pages[i] = strconv.Itoa(p)
	}
	return strings.Join(pages, ",")
}
