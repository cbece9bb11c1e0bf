package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/annosuite/annotator/internal/document"
)

var (
	ErrNoPages     = errors.New("export: no page has annotations")
	ErrPageMissing = errors.New("export: page source has no such page")
)

// PageInfo is everything the exporter needs to know about a target page.
type PageInfo struct {
	Metrics PageMetrics
	Size    PageSize
	// Background is the page raster, drawn beneath the overlays when set.
	Background image.Image
}

// PageSource provides rendering metrics for each page number.
type PageSource interface {
	PageInfo(ctx context.Context, page int) (PageInfo, error)
}

// Sink receives one compiled page at a time, in ascending page order.
type Sink interface {
	DrawPage(ctx context.Context, page int, info PageInfo, commands []DrawCommand) error
}

// Report lists the pages written and those that failed.
type Report struct {
	Written []int
	Failed  map[int]error
}

// Exporter projects each page's overlays into page space and hands the
// result to a Sink.
type Exporter struct {
	log    *slog.Logger
	layers *document.LayerRegistry
}

func NewExporter(log *slog.Logger, layers *document.LayerRegistry) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{log: log, layers: layers}
}

// Export writes every page that has at least one shape. A failure on one
// page is logged and recorded in the report without aborting the rest.
func (e *Exporter) Export(ctx context.Context, doc document.Document, src PageSource, sink Sink) (Report, error) {
	report := Report{Failed: map[int]error{}}
	for _, page := range doc.Pages() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		state := doc[page]
		if state == nil || len(state.Shapes) == 0 {
			continue
		}
		if err := e.exportPage(ctx, page, state.Shapes, src, sink); err != nil {
			e.log.Error("export page", "page", page, "error", err)
			report.Failed[page] = err
			continue
		}
		report.Written = append(report.Written, page)
	}
	if len(report.Written) == 0 && len(report.Failed) == 0 {
		return report, ErrNoPages
	}
	e.log.Info("export complete", "written", len(report.Written), "failed", len(report.Failed))
	return report, nil
}

func (e *Exporter) exportPage(ctx context.Context, page int, shapes []document.Shape, src PageSource, sink Sink) error {
	info, err := src.PageInfo(ctx, page)
	if err != nil {
		return err
	}
	proj, size, err := NewProjection(info.Metrics, info.Size)
	if err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	info.Size = size
	return sink.DrawPage(ctx, page, info, Compile(shapes, proj, e.layers))
}

// StaticSource is a PageSource backed by a map, as submitted by a client.
type StaticSource map[int]PageInfo

func (s StaticSource) PageInfo(_ context.Context, page int) (PageInfo, error) {
	info, ok := s[page]
	if !ok {
		return PageInfo{}, fmt.Errorf("page %d: %w", page, ErrPageMissing)
	}
	return info, nil
}
