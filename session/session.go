// Package session hosts one crop geometry engine per image and connects it
// to a renderer and to ready/update observers.
package session

import (
	"context"
	"errors"
	"sync"

	"simplecrop/geometry"
)

var ErrClosed = errors.New("session closed")

// Frame is everything a renderer needs to paint the overlay and the preview.
type Frame struct {
	State   geometry.CropState    `json:"state"`
	Source  geometry.Rect         `json:"source"`
	Preview geometry.Rect         `json:"preview"`
	Metrics geometry.ImageMetrics `json:"metrics"`
}

// Renderer paints a frame. It is called after every mutation and never
// feeds back into the geometry.
type Renderer interface {
	Render(ctx context.Context, frame Frame) error
}

type RendererFunc func(ctx context.Context, frame Frame) error

func (f RendererFunc) Render(ctx context.Context, frame Frame) error {
	return f(ctx, frame)
}

type nopRenderer struct{}

func (nopRenderer) Render(context.Context, Frame) error { return nil }

// Options configures a session. The natural size is not part of it; it
// arrives with the image load.
type Options struct {
	Displayed geometry.Size
	Target    geometry.Size
	Position  geometry.Point
	Zoom      float64
	ZoomStep  float64
}

type Session struct {
	opts     Options
	renderer Renderer

	mu       sync.Mutex
	engine   *geometry.Engine
	ctrl     *geometry.Controller
	ready    bool
	closed   bool
	buildErr error
	onReady  []func(Frame)
	onUpdate []func(Frame)

	bound sync.Once
	built chan struct{}
}

// New creates a session that waits for an image. A nil renderer is allowed.
func New(opts Options, renderer Renderer) *Session {
	if renderer == nil {
		renderer = nopRenderer{}
	}
	return &Session{
		opts:     opts,
		renderer: renderer,
		built:    make(chan struct{}),
	}
}

// OnReady registers fn to run once, after the first successful build.
func (s *Session) OnReady(fn func(Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = append(s.onReady, fn)
}

// OnUpdate registers fn to run after every later mutation has been rendered.
func (s *Session) OnUpdate(fn func(Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = append(s.onUpdate, fn)
}

// Bind attaches the session to an image load. Only the first call has an
// effect. The build runs on the goroutine that resolves the load, or
// synchronously if load already resolved.
func (s *Session) Bind(ctx context.Context, load *ImageLoad) {
	s.bound.Do(func() {
		load.OnLoad(func(natural geometry.Size, err error) {
			s.build(ctx, natural, err)
		})
	})
}

func (s *Session) build(ctx context.Context, natural geometry.Size, loadErr error) {
	defer close(s.built)

	s.mu.Lock()
	if loadErr != nil {
		s.buildErr = loadErr
		s.mu.Unlock()
		return
	}
	engine, err := geometry.New(geometry.Config{
		Natural:   natural,
		Displayed: s.opts.Displayed,
		Target:    s.opts.Target,
		Position:  s.opts.Position,
		Zoom:      s.opts.Zoom,
		ZoomStep:  s.opts.ZoomStep,
	})
	if err != nil {
		s.buildErr = err
		s.mu.Unlock()
		return
	}
	frame := frameOf(engine)
	if err := s.renderer.Render(ctx, frame); err != nil {
		s.buildErr = err
		s.mu.Unlock()
		return
	}
	s.engine = engine
	s.ctrl = geometry.NewController(engine)
	var hooks []func(Frame)
	if !s.ready {
		s.ready = true
		hooks = append(hooks, s.onReady...)
	}
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(frame)
	}
}

// Wait blocks until the image load has been processed and returns the
// build error, if any.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.built:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildErr
}

// Ready reports whether the first build succeeded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// Close ends the session; later operations fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.engine = nil
	s.ctrl = nil
}

func (s *Session) usable(op string) error {
	if s.closed {
		return ErrClosed
	}
	if s.engine == nil {
		if s.buildErr != nil {
			return s.buildErr
		}
		return &geometry.PreconditionError{Op: op}
	}
	return nil
}

// mutate applies fn, renders the resulting frame and notifies update
// observers once the render succeeded.
func (s *Session) mutate(ctx context.Context, op string, fn func(*geometry.Engine, *geometry.Controller) error) (Frame, error) {
	s.mu.Lock()
	if err := s.usable(op); err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}
	if err := fn(s.engine, s.ctrl); err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}
	frame := frameOf(s.engine)
	if err := s.renderer.Render(ctx, frame); err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}
	hooks := append([]func(Frame){}, s.onUpdate...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(frame)
	}
	return frame, nil
}

func (s *Session) Pan(ctx context.Context, dx, dy float64) (Frame, error) {
	return s.mutate(ctx, "pan", func(e *geometry.Engine, _ *geometry.Controller) error {
		e.Pan(dx, dy)
		return nil
	})
}

func (s *Session) MoveTo(ctx context.Context, p geometry.Point) (Frame, error) {
	return s.mutate(ctx, "move", func(e *geometry.Engine, _ *geometry.Controller) error {
		e.MoveTo(p.X, p.Y)
		return nil
	})
}

func (s *Session) SetZoom(ctx context.Context, z float64) (Frame, error) {
	return s.mutate(ctx, "zoom", func(e *geometry.Engine, _ *geometry.Controller) error {
		e.SetZoom(z)
		return nil
	})
}

func (s *Session) StepZoom(ctx context.Context, delta float64) (Frame, error) {
	return s.mutate(ctx, "zoom", func(e *geometry.Engine, _ *geometry.Controller) error {
		e.StepZoom(delta)
		return nil
	})
}

func (s *Session) ZoomIn(ctx context.Context) (Frame, error) {
	return s.mutate(ctx, "zoom in", func(_ *geometry.Engine, c *geometry.Controller) error {
		c.ZoomIn()
		return nil
	})
}

func (s *Session) ZoomOut(ctx context.Context) (Frame, error) {
	return s.mutate(ctx, "zoom out", func(_ *geometry.Engine, c *geometry.Controller) error {
		c.ZoomOut()
		return nil
	})
}

func (s *Session) ZoomToFit(ctx context.Context) (Frame, error) {
	return s.mutate(ctx, "zoom to fit", func(_ *geometry.Engine, c *geometry.Controller) error {
		c.ZoomToFit()
		return nil
	})
}

func (s *Session) ZoomReset(ctx context.Context) (Frame, error) {
	return s.mutate(ctx, "zoom reset", func(_ *geometry.Engine, c *geometry.Controller) error {
		c.ZoomReset()
		return nil
	})
}

// DragStart captures the reference frame for a drag. Nothing is rendered.
func (s *Session) DragStart(pointer geometry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable("drag start"); err != nil {
		return err
	}
	s.ctrl.DragStart(pointer)
	return nil
}

func (s *Session) DragMove(ctx context.Context, pointer geometry.Point) (Frame, error) {
	return s.mutate(ctx, "drag", func(_ *geometry.Engine, c *geometry.Controller) error {
		c.DragMove(pointer)
		return nil
	})
}

func (s *Session) DragEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable("drag end"); err != nil {
		return err
	}
	s.ctrl.DragEnd()
	return nil
}

// Resize refreshes the displayed size, keeping the natural size.
func (s *Session) Resize(ctx context.Context, displayed geometry.Size) (Frame, error) {
	return s.mutate(ctx, "resize", func(e *geometry.Engine, _ *geometry.Controller) error {
		return e.RefreshMetrics(geometry.ImageMetrics{
			Natural:   e.Metrics().Natural,
			Displayed: displayed,
		})
	})
}

func (s *Session) Frame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable("frame"); err != nil {
		return Frame{}, err
	}
	return frameOf(s.engine), nil
}

// SourceRect is the crop in native image pixels.
func (s *Session) SourceRect() (geometry.Rect, error) {
	f, err := s.Frame()
	if err != nil {
		return geometry.Rect{}, err
	}
	return f.Source, nil
}

func frameOf(e *geometry.Engine) Frame {
	return Frame{
		State:   e.State(),
		Source:  e.SourceRect(),
		Preview: e.PreviewRect(),
		Metrics: e.Metrics(),
	}
}
