package main

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplecrop/geometry"
	"simplecrop/session"
)

func TestPreviewRenderer(t *testing.T) {
	ctx := context.Background()
	p := NewPreviewRenderer()

	_, err := p.Draw()
	assert.ErrorIs(t, err, errNoPreview)
	assert.ErrorIs(t, p.Render(ctx, session.Frame{}), errNoPreview)

	red := color.NRGBA{R: 255, A: 255}
	p.SetSource(imaging.New(2000, 1400, red))

	sess := session.New(session.Options{
		Displayed: geometry.Size{W: 800, H: 560},
		Target:    geometry.Size{W: 700, H: 466},
		Position:  geometry.Point{X: 50, Y: 50},
		Zoom:      1,
		ZoomStep:  0.05,
	}, p)
	load := session.NewImageLoad()
	load.Resolve(geometry.Size{W: 2000, H: 1400}, nil)
	sess.Bind(ctx, load)
	require.NoError(t, sess.Wait(ctx))

	img, err := p.Draw()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 560), img.Bounds())

	// the preview rect spans the full width and is centered vertically
	center := color.NRGBAModel.Convert(img.At(400, 280)).(color.NRGBA)
	assert.InDelta(t, red.R, center.R, 2)
	assert.InDelta(t, 0, center.G, 2)
	assert.Equal(t, previewBackground, color.NRGBAModel.Convert(img.At(400, 2)))
}
