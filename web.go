package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"simplecrop/geometry"
	"simplecrop/session"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

const loadTimeout = 30 * time.Second

type Config struct {
	RootDir          string
	Defaults         SessionDefaults
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnSave           func(ops Operations)
}

// SessionDefaults fill in fields a session request leaves out.
type SessionDefaults struct {
	Target   geometry.Size
	Zoom     float64
	ZoomStep float64
}

type WebApp struct {
	config       Config
	sessions     *sessionStore
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	return &WebApp{
		config:     config,
		sessions:   newSessionStore(),
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func errorStatus(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case geometry.IsConfigError(err):
		return http.StatusBadRequest
	case geometry.IsPreconditionError(err):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *WebApp) newFiber(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := errorStatus(err)
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) && fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
				return nil
			}
			log.Ctx(c.UserContext()).Error().
				Err(err).
				Int("status", code).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			if code == http.StatusInternalServerError {
				return c.Status(code).JSON(fiber.Map{"error": "Internal Server Error"})
			}
			msg := err.Error()
			if fiberErr != nil {
				msg = fiberErr.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	webapp.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(log.Ctx(ctx).WithContext(c.UserContext()))
		return c.Next()
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(a.config.RootDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		var response struct {
			Name  string     `json:"name"`
			Files []FileInfo `json:"files"`
		}
		response.Name = dir.Name
		response.Files = dir.Files

		return c.JSON(response)
	})

	webapp.Post("/api/save", func(c *fiber.Ctx) error {
		var request struct {
			Operations []Operation `json:"operations"`
		}

		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if err := a.resolveOperations(request.Operations); err != nil {
			return err
		}

		a.config.OnSave(request.Operations)

		return c.SendStatus(http.StatusNoContent)
	})
	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	api := webapp.Group("/api/sessions")
	api.Post("/", a.createSession)
	api.Get("/:id", a.withSession(func(c *fiber.Ctx, cs *cropSession) error {
		frame, err := cs.Frame()
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse(cs, frame))
	}))
	api.Delete("/:id", func(c *fiber.Ctx) error {
		if !a.sessions.Remove(c.Params("id")) {
			return fiber.ErrNotFound
		}
		return c.SendStatus(http.StatusNoContent)
	})
	api.Get("/:id/preview.jpg", a.withSession(func(c *fiber.Ctx, cs *cropSession) error {
		var b bytes.Buffer
		if err := cs.Preview.WriteJPEG(&b); err != nil {
			if errors.Is(err, errNoPreview) {
				return fiber.NewError(http.StatusConflict, err.Error())
			}
			return err
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Type("jpg")
		return c.Send(b.Bytes())
	}))
	api.Post("/:id/pan", a.withSession(func(c *fiber.Ctx, cs *cropSession) error {
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return respondFrame(c, cs)(cs.Pan(c.UserContext(), req.DX, req.DY))
	}))
	api.Post("/:id/move", a.withSession(func(c *fiber.Ctx, cs *cropSession) error {
		var req geometry.Point
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return respondFrame(c, cs)(cs.MoveTo(c.UserContext(), req))
	}))
	api.Post("/:id/drag", a.withSession(a.drag))
	api.Post("/:id/zoom", a.withSession(a.zoom))
	api.Post("/:id/resize", a.withSession(func(c *fiber.Ctx, cs *cropSession) error {
		var req geometry.Size
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return respondFrame(c, cs)(cs.Resize(c.UserContext(), req))
	}))

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newFiber(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		a.sessions.CloseAll()
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

type createSessionRequest struct {
	File     string         `json:"file"`
	Display  geometry.Size  `json:"display"`
	Target   *geometry.Size `json:"target"`
	Position geometry.Point `json:"position"`
	Zoom     float64        `json:"zoom"`
	Step     float64        `json:"step"`
}

func (a *WebApp) createSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.File == "" || !filepath.IsLocal(req.File) || !isImage(req.File) {
		return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid image file %q", req.File))
	}

	opts := session.Options{
		Displayed: req.Display,
		Target:    a.config.Defaults.Target,
		Position:  req.Position,
		Zoom:      a.config.Defaults.Zoom,
		ZoomStep:  a.config.Defaults.ZoomStep,
	}
	if req.Target != nil {
		opts.Target = *req.Target
	}
	if req.Zoom != 0 {
		opts.Zoom = req.Zoom
	}
	if req.Step != 0 {
		opts.ZoomStep = req.Step
	}

	ctx := c.UserContext()
	preview := NewPreviewRenderer()
	sess := session.New(opts, preview)
	cs := a.sessions.Add(req.File, sess, preview)
	logger := log.Ctx(ctx).With().Str("session", cs.ID).Str("filename", req.File).Logger()

	sess.OnReady(func(f session.Frame) {
		logger.Info().
			Stringer("natural", f.Metrics.Natural).
			Float64("min_zoom", f.State.MinZoom).
			Msg("crop session ready")
	})
	sess.OnUpdate(func(f session.Frame) {
		logger.Debug().
			Float64("zoom", f.State.Zoom).
			Stringer("source", f.Source).
			Msg("crop session updated")
	})

	load := loadImage(logger.WithContext(context.Background()), filepath.Join(a.config.RootDir, req.File), preview.SetSource)
	sess.Bind(logger.WithContext(context.Background()), load)

	waitCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	if err := sess.Wait(waitCtx); err != nil {
		a.sessions.Remove(cs.ID)
		return err
	}

	frame, err := sess.Frame()
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(sessionResponse(cs, frame))
}

func (a *WebApp) drag(c *fiber.Ctx, cs *cropSession) error {
	var req struct {
		Phase string  `json:"phase"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pointer := geometry.Point{X: req.X, Y: req.Y}

	switch req.Phase {
	case "start":
		if err := cs.DragStart(pointer); err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	case "move":
		return respondFrame(c, cs)(cs.DragMove(c.UserContext(), pointer))
	case "end":
		if err := cs.DragEnd(); err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	}
	return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("unknown drag phase %q", req.Phase))
}

func (a *WebApp) zoom(c *fiber.Ctx, cs *cropSession) error {
	var req struct {
		Action string  `json:"action"`
		Value  float64 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	respond := respondFrame(c, cs)
	switch req.Action {
	case "in":
		return respond(cs.ZoomIn(ctx))
	case "out":
		return respond(cs.ZoomOut(ctx))
	case "fit":
		return respond(cs.ZoomToFit(ctx))
	case "reset":
		return respond(cs.ZoomReset(ctx))
	case "set":
		return respond(cs.SetZoom(ctx, req.Value))
	case "step":
		return respond(cs.StepZoom(ctx, req.Value))
	}
	return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("unknown zoom action %q", req.Action))
}

// resolveOperations replaces session references with the session's
// current source rectangle.
func (a *WebApp) resolveOperations(ops []Operation) error {
	for _, op := range ops {
		if op.Crop == nil || op.Crop.Session == "" {
			continue
		}
		cs, ok := a.sessions.Get(op.Crop.Session)
		if !ok {
			return fiber.NewError(http.StatusNotFound, fmt.Sprintf("unknown session %q", op.Crop.Session))
		}
		rect, err := cs.SourceRect()
		if err != nil {
			return err
		}
		op.Crop.Crop = &rect
		if op.Crop.Filename == "" {
			op.Crop.Filename = cs.Filename
		}
	}
	return nil
}

func (a *WebApp) withSession(fn func(c *fiber.Ctx, cs *cropSession) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cs, ok := a.sessions.Get(c.Params("id"))
		if !ok {
			return fiber.ErrNotFound
		}
		return fn(c, cs)
	}
}

type sessionView struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Frame    session.Frame `json:"frame"`
}

func sessionResponse(cs *cropSession, frame session.Frame) sessionView {
	return sessionView{ID: cs.ID, Filename: cs.Filename, Frame: frame}
}

func respondFrame(c *fiber.Ctx, cs *cropSession) func(session.Frame, error) error {
	return func(frame session.Frame, err error) error {
		if err != nil {
			return err
		}
		return c.JSON(sessionResponse(cs, frame))
	}
}
