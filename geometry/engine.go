// Package geometry keeps a fixed-aspect crop box consistent with an image
// shown at an arbitrary on-screen size.
//
// Three coordinate spaces are involved: native image pixels, displayed
// pixels (where the crop box lives and where pointer input arrives) and the
// preview canvas. Engine owns the crop state and re-establishes its
// invariants after every mutation:
//
//	0 <= x <= displayed.w - boxWidth(zoom)
//	0 <= y <= displayed.h - boxHeight(zoom)
//	minZoom <= zoom <= 1
//
// Out-of-range runtime input is clamped, never reported as an error.
package geometry

import "math"

// ZoomReset is the SetZoom sentinel meaning "snap to minZoom and move the
// box to the origin". See ResetToFit.
const ZoomReset = 0

// fitTolerance absorbs floating point error when the box is sized exactly to
// the displayed image.
const fitTolerance = 1e-9

// Config is the construction configuration of an Engine. Unlike the
// runtime operations, New validates it strictly and never clamps.
type Config struct {
	Natural   Size
	Displayed Size
	Target    Size
	Position  Point
	Zoom      float64
	ZoomStep  float64
}

// CropState is a snapshot of the crop box. X and Y are displayed-space
// pixels. LastZoom is zero until a zoom change has been recorded.
type CropState struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Zoom      float64 `json:"zoom"`
	MinZoom   float64 `json:"min_zoom"`
	LastZoom  float64 `json:"last_zoom"`
	BoxWidth  float64 `json:"box_width"`
	BoxHeight float64 `json:"box_height"`
}

type cropState struct {
	x, y     float64
	zoom     float64
	minZoom  float64
	lastZoom float64
}

// Engine is the crop geometry for one image session. It is not safe for
// concurrent use; callers serialize access.
type Engine struct {
	metrics ImageMetrics
	target  Size
	step    float64
	// aspect is min(target)/max(target)
	aspect float64
	// base is the box size at zoom 1, in displayed pixels
	base  Size
	state cropState
}

// New validates cfg and builds the initial crop state. An initial zoom that
// would not fit the displayed image falls back to 1, the same recovery used
// by RefreshMetrics.
func New(cfg Config) (*Engine, error) {
	if err := validateMetrics(ImageMetrics{Natural: cfg.Natural, Displayed: cfg.Displayed}, cfg.Target); err != nil {
		return nil, err
	}
	if !finite(cfg.Position.X) || !finite(cfg.Position.Y) || cfg.Position.X < 0 || cfg.Position.Y < 0 {
		return nil, &ConfigError{Field: "position", Reason: "must be finite and >= 0"}
	}
	if !positive(cfg.Zoom) || cfg.Zoom > 1 {
		return nil, &ConfigError{Field: "zoom", Reason: "must be in (0, 1]"}
	}
	if !positive(cfg.ZoomStep) {
		return nil, &ConfigError{Field: "zoom_step", Reason: "must be finite and positive"}
	}

	e := &Engine{
		target: cfg.Target,
		step:   cfg.ZoomStep,
		aspect: math.Min(cfg.Target.W, cfg.Target.H) / math.Max(cfg.Target.W, cfg.Target.H),
	}
	e.setMetrics(ImageMetrics{Natural: cfg.Natural, Displayed: cfg.Displayed})
	e.state.x = cfg.Position.X
	e.state.y = cfg.Position.Y
	e.state.zoom = cfg.Zoom
	e.recoverZoom()
	e.clampPosition()
	return e, nil
}

func validateMetrics(m ImageMetrics, target Size) error {
	if !target.valid() {
		return &ConfigError{Field: "target", Reason: "width and height must be finite and positive"}
	}
	if !m.Natural.valid() {
		return &ConfigError{Field: "natural", Reason: "width and height must be finite and positive"}
	}
	if !m.Displayed.valid() {
		return &ConfigError{Field: "displayed", Reason: "width and height must be finite and positive"}
	}
	if m.Natural.W < target.W || m.Natural.H < target.H {
		return &ConfigError{
			Field:  "target",
			Reason: "crop area " + target.String() + " is bigger than the image " + m.Natural.String(),
		}
	}
	return nil
}

// setMetrics derives the zoom-1 box and minZoom. The binding dimension is
// tried first along the longer displayed side, then the other side is
// re-checked.
func (e *Engine) setMetrics(m ImageMetrics) {
	e.metrics = m
	n, d, t := m.Natural, m.Displayed, e.target
	e.base = Size{W: d.W * t.W / n.W, H: d.H * t.H / n.H}

	var minZoom float64
	if d.W > d.H {
		minZoom = t.W / n.W
		if e.base.H/minZoom > d.H {
			minZoom = t.H / n.H
		}
	} else {
		minZoom = t.H / n.H
		if e.base.W/minZoom > d.W {
			minZoom = t.W / n.W
		}
	}
	e.state.minZoom = minZoom
}

func (e *Engine) fits(zoom float64) bool {
	d := e.metrics.Displayed
	return e.base.W/zoom <= d.W*(1+fitTolerance) && e.base.H/zoom <= d.H*(1+fitTolerance)
}

// recoverZoom replaces a zoom whose box no longer fits with the last valid
// zoom, or 1.
func (e *Engine) recoverZoom() {
	s := &e.state
	if !e.fits(s.zoom) {
		if s.lastZoom >= s.minZoom && s.lastZoom <= 1 && e.fits(s.lastZoom) {
			s.zoom = s.lastZoom
		} else {
			s.zoom = 1
		}
	}
	s.zoom = clamp(s.zoom, s.minZoom, 1)
}

func (e *Engine) clampPosition() {
	d := e.metrics.Displayed
	e.state.x = clamp(e.state.x, 0, math.Max(0, d.W-e.BoxWidth()))
	e.state.y = clamp(e.state.y, 0, math.Max(0, d.H-e.BoxHeight()))
}

// RefreshMetrics applies a new displayed (and possibly natural) size, e.g.
// after a container resize. The position is scaled with the displayed size
// so the box keeps covering the same part of the image where invariants
// allow.
func (e *Engine) RefreshMetrics(m ImageMetrics) error {
	if err := validateMetrics(m, e.target); err != nil {
		return err
	}
	old := e.metrics.Displayed
	e.state.x *= m.Displayed.W / old.W
	e.state.y *= m.Displayed.H / old.H
	e.setMetrics(m)
	e.recoverZoom()
	e.clampPosition()
	return nil
}

// Pan moves the box by a relative displayed-space offset.
func (e *Engine) Pan(dx, dy float64) {
	if !finite(dx) || !finite(dy) {
		return
	}
	e.MoveTo(e.state.x+dx, e.state.y+dy)
}

// MoveTo places the top-left corner of the box, clamped to the image.
func (e *Engine) MoveTo(x, y float64) {
	if !finite(x) || !finite(y) {
		return
	}
	e.state.x = x
	e.state.y = y
	e.clampPosition()
}

// SetZoom clamps z to [minZoom, 1]. ZoomReset is delegated to ResetToFit.
func (e *Engine) SetZoom(z float64) {
	if z == ZoomReset {
		e.ResetToFit()
		return
	}
	e.applyZoom(z)
}

// StepZoom changes the zoom by delta. It never triggers the reset sentinel.
func (e *Engine) StepZoom(delta float64) {
	if !finite(delta) {
		return
	}
	e.applyZoom(e.state.zoom + delta)
}

// ResetToFit makes the box as large as the image allows and moves it to the
// origin.
func (e *Engine) ResetToFit() {
	s := &e.state
	if s.zoom != s.minZoom {
		s.lastZoom = s.zoom
		s.zoom = s.minZoom
	}
	s.x, s.y = 0, 0
}

func (e *Engine) applyZoom(z float64) {
	if !finite(z) {
		return
	}
	s := &e.state
	z = clamp(z, s.minZoom, 1)
	if z == s.zoom {
		return
	}
	s.lastZoom = s.zoom
	s.zoom = z
	e.clampPosition()
}

// BoxWidth is the displayed width of the crop box at the current zoom.
func (e *Engine) BoxWidth() float64 {
	return e.base.W / e.state.zoom
}

// BoxHeight is the displayed height of the crop box at the current zoom.
func (e *Engine) BoxHeight() float64 {
	return e.base.H / e.state.zoom
}

func (e *Engine) State() CropState {
	return CropState{
		X:         e.state.x,
		Y:         e.state.y,
		Zoom:      e.state.zoom,
		MinZoom:   e.state.minZoom,
		LastZoom:  e.state.lastZoom,
		BoxWidth:  e.BoxWidth(),
		BoxHeight: e.BoxHeight(),
	}
}

func (e *Engine) Metrics() ImageMetrics { return e.metrics }

func (e *Engine) Target() Size { return e.target }

func (e *Engine) ZoomStep() float64 { return e.step }

// SourceRect is the crop box in native image pixels. The size along the
// longer target side never asks for more pixels than remain after the
// offset; the other side follows the aspect ratio.
func (e *Engine) SourceRect() Rect {
	n, d, t := e.metrics.Natural, e.metrics.Displayed, e.target
	r := Rect{
		X: e.state.x / d.W * n.W,
		Y: e.state.y / d.H * n.H,
	}
	if t.W >= t.H {
		r.W = math.Min(n.W-r.X, t.W/e.state.zoom)
		r.H = r.W * e.aspect
	} else {
		r.H = math.Min(n.H-r.Y, t.H/e.state.zoom)
		r.W = r.H * e.aspect
	}
	return r
}

// PreviewRect is where SourceRect lands on a preview canvas of the
// displayed size: the target box scaled uniformly to fit, centered.
func (e *Engine) PreviewRect() Rect {
	canvas, t := e.metrics.Displayed, e.target
	scale := math.Min(canvas.W/t.W, canvas.H/t.H)
	w, h := t.W*scale, t.H*scale
	return Rect{
		X: (canvas.W - w) / 2,
		Y: (canvas.H - h) / 2,
		W: w,
		H: h,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
