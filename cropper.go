package main

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"simplecrop/geometry"
)

// ImagingCropper is an implementation of the Cropper interface
// using the disintegration/imaging library
type ImagingCropper struct {
	Quality int
}

// Crop reads an image from r, cuts out rect (native pixels, as produced by
// the geometry engine's SourceRect) and writes a JPEG to w.
func (c *ImagingCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, rect geometry.Rect) error {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	return c.CropImage(w, src, rect)
}

// CropImage crops an already decoded image.
func (c *ImagingCropper) CropImage(w io.Writer, src image.Image, rect geometry.Rect) error {
	if rect.W <= 0 || rect.H <= 0 {
		return fmt.Errorf("invalid crop dimensions: %s", rect)
	}

	cropRect := rect.Bounds(src.Bounds())
	if cropRect.Empty() {
		return fmt.Errorf("crop rectangle %s is outside image bounds %v", rect, src.Bounds())
	}

	croppedImg := imaging.Crop(src, cropRect)
	return imaging.Encode(w, croppedImg, imaging.JPEG, imaging.JPEGQuality(c.Quality))
}

func NewImagingCropper() *ImagingCropper {
	return &ImagingCropper{Quality: 90}
}
