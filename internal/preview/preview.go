// Package preview rasterises canvas-space draw commands, giving a headless
// view of exactly what the overlay would paint.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/annosuite/annotator/internal/document"
	"github.com/annosuite/annotator/internal/export"
	"github.com/annosuite/annotator/internal/geom"
)

// Options controls the output raster.
type Options struct {
	Width  int
	Height int
	// Scale multiplies canvas coordinates; 0 means 1.
	Scale float64
	// Background is drawn stretched to the output size before overlays.
	Background image.Image
}

// Renderer draws command buffers with gg. It is safe for concurrent use.
type Renderer struct {
	font *truetype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func NewRenderer() (*Renderer, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Renderer{font: f, faces: make(map[float64]font.Face)}, nil
}

func (r *Renderer) face(size float64) font.Face {
	if size <= 0 {
		size = document.DefaultFontSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(r.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	r.faces[size] = f
	return f
}

// Render paints commands, which must be in canvas space, onto a new image.
func (r *Renderer) Render(commands []export.DrawCommand, opt Options) (image.Image, error) {
	if opt.Width <= 0 || opt.Height <= 0 {
		return nil, fmt.Errorf("preview: invalid size %dx%d", opt.Width, opt.Height)
	}
	scale := opt.Scale
	if scale <= 0 {
		scale = 1
	}

	dc := gg.NewContext(opt.Width, opt.Height)
	dc.SetColor(color.White)
	dc.Clear()
	if opt.Background != nil {
		b := opt.Background.Bounds()
		dc.Push()
		dc.Scale(float64(opt.Width)/float64(b.Dx()), float64(opt.Height)/float64(b.Dy()))
		dc.DrawImage(opt.Background, -b.Min.X, -b.Min.Y)
		dc.Pop()
	}

	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	for _, cmd := range commands {
		r.draw(dc, scaled(cmd, scale))
	}
	return dc.Image(), nil
}

// scaled multiplies every length in cmd by k. gg does not scale stroke
// widths or glyphs with its matrix, so the scale is applied up front.
func scaled(cmd export.DrawCommand, k float64) export.DrawCommand {
	if k == 1 {
		return cmd
	}
	cmd.X, cmd.Y, cmd.Width, cmd.Height = cmd.X*k, cmd.Y*k, cmd.Width*k, cmd.Height*k
	cmd.CX, cmd.CY, cmd.RX, cmd.RY = cmd.CX*k, cmd.CY*k, cmd.RX*k, cmd.RY*k
	cmd.X1, cmd.Y1, cmd.X2, cmd.Y2 = cmd.X1*k, cmd.Y1*k, cmd.X2*k, cmd.Y2*k
	cmd.FontSize *= k
	cmd.StrokeWidth *= k
	if cmd.Points != nil {
		pts := make([]geom.Point, len(cmd.Points))
		for i, p := range cmd.Points {
			pts[i] = p.Mul(k)
		}
		cmd.Points = pts
	}
	if cmd.Dash != nil {
		dash := make([]float64, len(cmd.Dash))
		for i, d := range cmd.Dash {
			dash[i] = d * k
		}
		cmd.Dash = dash
	}
	return cmd
}

func (r *Renderer) draw(dc *gg.Context, cmd export.DrawCommand) {
	dc.SetColor(export.ParseColor(cmd.Stroke))
	dc.SetLineWidth(cmd.StrokeWidth)
	dc.SetDash(cmd.Dash...)

	switch cmd.Op {
	case export.OpRect:
		dc.DrawRectangle(cmd.X, cmd.Y, cmd.Width, cmd.Height)
		dc.Stroke()
	case export.OpEllipse:
		dc.Push()
		dc.RotateAbout(gg.Radians(cmd.Rotation), cmd.CX, cmd.CY)
		dc.DrawEllipse(cmd.CX, cmd.CY, cmd.RX, cmd.RY)
		dc.Stroke()
		dc.Pop()
	case export.OpLine:
		dc.DrawLine(cmd.X1, cmd.Y1, cmd.X2, cmd.Y2)
		dc.Stroke()
	case export.OpPath:
		if len(cmd.Points) == 0 {
			return
		}
		dc.MoveTo(cmd.Points[0].X, cmd.Points[0].Y)
		for _, p := range cmd.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		if cmd.Closed {
			dc.ClosePath()
		}
		dc.Stroke()
	case export.OpText:
		r.text(dc, cmd)
	}
}

func (r *Renderer) text(dc *gg.Context, cmd export.DrawCommand) {
	dc.SetFontFace(r.face(cmd.FontSize))
	dc.Push()
	defer dc.Pop()
	if cmd.Rotation != 0 {
		dc.RotateAbout(gg.Radians(cmd.Rotation), cmd.X, cmd.Y)
	}

	lines := strings.Split(cmd.Text, "\n")
	lh := cmd.FontSize * document.TextLineHeight
	if cmd.Align == export.AlignCenter {
		top := cmd.Y - lh*float64(len(lines))/2
		for i, line := range lines {
			dc.DrawStringAnchored(line, cmd.X, top+lh*(float64(i)+0.5), 0.5, 0.5)
		}
		return
	}
	for i, line := range lines {
		dc.DrawStringAnchored(line, cmd.X, cmd.Y+lh*float64(i), 0, 1)
	}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
