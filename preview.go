package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"simplecrop/session"
)

var errNoPreview = errors.New("preview is not available yet")

var previewBackground = color.NRGBA{A: 255}

// PreviewRenderer implements session.Renderer. Render only records the
// frame; pixels are produced on demand by Draw, so rapid drags do not
// encode an image per move.
type PreviewRenderer struct {
	mu    sync.Mutex
	src   image.Image
	frame *session.Frame
}

func NewPreviewRenderer() *PreviewRenderer {
	return &PreviewRenderer{}
}

// SetSource sets the decoded full-size image.
func (p *PreviewRenderer) SetSource(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = img
}

func (p *PreviewRenderer) Render(_ context.Context, frame session.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		return errNoPreview
	}
	p.frame = &frame
	return nil
}

// Draw copies the source rectangle of the last frame into the preview
// rectangle of a canvas the size of the displayed image.
func (p *PreviewRenderer) Draw() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil || p.frame == nil {
		return nil, errNoPreview
	}
	f := p.frame

	canvasSize := f.Metrics.Displayed
	canvas := image.NewNRGBA(image.Rect(0, 0, int(math.Round(canvasSize.W)), int(math.Round(canvasSize.H))))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(previewBackground), image.Point{}, draw.Src)

	dst := f.Preview.Bounds(canvas.Bounds())
	src := f.Source.Bounds(p.src.Bounds())
	if dst.Empty() || src.Empty() {
		return canvas, nil
	}
	draw.ApproxBiLinear.Scale(canvas, dst, p.src, src, draw.Over, nil)
	return canvas, nil
}

func (p *PreviewRenderer) WriteJPEG(w io.Writer) error {
	img, err := p.Draw()
	if err != nil {
		return err
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(85))
}
