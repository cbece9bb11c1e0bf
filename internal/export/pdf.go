package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/annosuite/annotator/internal/document"
)

const (
	pdfFont = "Helvetica"
	// ascent approximates the baseline offset of a line of Helvetica text.
	ascent = 0.8
)

// PDFWriter is a Sink that writes each page as a PDF page sized to its
// native dimensions, with the page raster as background.
type PDFWriter struct {
	pdf   *gofpdf.Fpdf
	tr    func(string) string
	pages int
}

func NewPDFWriter() *PDFWriter {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")
	return &PDFWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// Pages returns the number of pages written so far.
func (w *PDFWriter) Pages() int { return w.pages }

// DrawPage adds one page. gofpdf errors are sticky, so everything that
// can fail is checked before the shared document is touched; a rejected
// page leaves no trace and later pages still render.
func (w *PDFWriter) DrawPage(_ context.Context, page int, info PageInfo, commands []DrawCommand) error {
	if info.Size.Width <= 0 || info.Size.Height <= 0 {
		return fmt.Errorf("page %d: %w", page, ErrBadMetrics)
	}
	var background []byte
	if info.Background != nil {
		var err error
		if background, err = encodeBackground(info.Background); err != nil {
			return fmt.Errorf("page %d background: %w", page, err)
		}
	}
	if err := w.pdf.Error(); err != nil {
		return fmt.Errorf("render page %d: %w", page, err)
	}

	h := info.Size.Height
	w.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: info.Size.Width, Ht: h})
	if background != nil {
		name := fmt.Sprintf("page-%d", page)
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		w.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(background))
		w.pdf.ImageOptions(name, 0, 0, info.Size.Width, h, false, opt, 0, "")
	}
	for _, cmd := range commands {
		w.draw(cmd, h)
	}
	if err := w.pdf.Error(); err != nil {
		return fmt.Errorf("render page %d: %w", page, err)
	}
	w.pages++
	return nil
}

// encodeBackground re-encodes a page raster as an 8-bit PNG and makes sure
// gofpdf accepts it, using a scratch document.
func encodeBackground(img image.Image) ([]byte, error) {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.Gray:
	default:
		// png writes 16-bit and paletted images in forms gofpdf rejects.
		b := img.Bounds()
		rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		img = rgba
	}
	if b := img.Bounds(); b.Empty() {
		return nil, errors.New("empty raster")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	scratch := gofpdf.New("P", "pt", "A4", "")
	scratch.RegisterImageOptionsReader("check", gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(buf.Bytes()))
	if err := scratch.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// draw renders one command. Commands are bottom-up; gofpdf is top-down.
func (w *PDFWriter) draw(cmd DrawCommand, h float64) {
	pdf := w.pdf
	r, g, b := RGB(cmd.Stroke)
	pdf.SetDrawColor(r, g, b)
	pdf.SetLineWidth(cmd.StrokeWidth)
	pdf.SetDashPattern(cmd.Dash, 0)

	switch cmd.Op {
	case OpRect:
		pdf.Rect(cmd.X, h-(cmd.Y+cmd.Height), cmd.Width, cmd.Height, "D")
	case OpEllipse:
		pdf.Ellipse(cmd.CX, h-cmd.CY, cmd.RX, cmd.RY, cmd.Rotation, "D")
	case OpLine:
		pdf.Line(cmd.X1, h-cmd.Y1, cmd.X2, h-cmd.Y2)
	case OpPath:
		if len(cmd.Points) == 0 {
			return
		}
		pts := make([]gofpdf.PointType, len(cmd.Points))
		for i, p := range cmd.Points {
			pts[i] = gofpdf.PointType{X: p.X, Y: h - p.Y}
		}
		if cmd.Closed {
			pdf.Polygon(pts, "D")
			return
		}
		pdf.MoveTo(pts[0].X, pts[0].Y)
		for _, p := range pts[1:] {
			pdf.LineTo(p.X, p.Y)
		}
		pdf.DrawPath("D")
	case OpText:
		w.text(cmd, r, g, b, h)
	}
}

func (w *PDFWriter) text(cmd DrawCommand, r, g, b int, h float64) {
	pdf := w.pdf
	size := cmd.FontSize
	if size <= 0 {
		size = document.DefaultFontSize
	}
	pdf.SetFont(pdfFont, "", size)
	pdf.SetTextColor(r, g, b)
	pdf.SetDashPattern(nil, 0)

	x, y := cmd.X, h-cmd.Y
	if cmd.Rotation != 0 {
		pdf.TransformBegin()
		pdf.TransformRotate(cmd.Rotation, x, y)
		defer pdf.TransformEnd()
	}

	lines := strings.Split(cmd.Text, "\n")
	lineHeight := size * document.TextLineHeight
	top := y
	if cmd.Align == AlignCenter {
		top = y - lineHeight*float64(len(lines))/2
	}
	for i, line := range lines {
		line = w.tr(line)
		lx := x
		if cmd.Align == AlignCenter {
			lx -= pdf.GetStringWidth(line) / 2
		}
		pdf.Text(lx, top+float64(i)*lineHeight+size*ascent, line)
	}
}

// Finish writes the document to out.
func (w *PDFWriter) Finish(out io.Writer) error {
	if w.pages == 0 {
		return ErrNoPages
	}
	return w.pdf.Output(out)
}
