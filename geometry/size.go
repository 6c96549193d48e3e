package geometry

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// Size is a width/height pair. Depending on context it is in native image
// pixels or in displayed (on-screen) pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (s Size) String() string {
	return strconv.FormatFloat(s.W, 'f', -1, 64) + "x" + strconv.FormatFloat(s.H, 'f', -1, 64)
}

// ParseSize parses the "WxH" form, e.g. "700x466".
func ParseSize(text string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(text)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q: expected WxH", text)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", text, err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", text, err)
	}
	return Size{W: width, H: height}, nil
}

func (s Size) valid() bool {
	return positive(s.W) && positive(s.H)
}

// Point is a position in displayed-space pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is the one exported crop shape. SourceRect returns it in native
// image pixels, PreviewRect in preview canvas pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) String() string {
	return fmt.Sprintf("rect(x=%.2f,y=%.2f,w=%.2f,h=%.2f)", r.X, r.Y, r.W, r.H)
}

// Bounds rounds r to integer pixels and intersects it with the image bounds.
func (r Rect) Bounds(bounds image.Rectangle) image.Rectangle {
	rect := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	).Add(bounds.Min)
	return rect.Intersect(bounds)
}

// ImageMetrics relates the intrinsic size of an image to its current
// on-screen size.
type ImageMetrics struct {
	Natural   Size `json:"natural"`
	Displayed Size `json:"displayed"`
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
