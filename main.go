package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"simplecrop/geometry"
	"simplecrop/session"
)

const outputDirName = "output"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("simplecrop"),
		kong.Description("Pick fixed aspect ratio crops from a directory of images."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

// sizeFlag accepts sizes written as WxH.
type sizeFlag geometry.Size

func (s *sizeFlag) UnmarshalText(text []byte) error {
	size, err := geometry.ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = sizeFlag(size)
	return nil
}

func (s sizeFlag) Size() geometry.Size { return geometry.Size(s) }

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level)
	zerolog.DefaultContextLogger = &log.Logger
}

type serveCmd struct {
	RootDir string   `arg:"" help:"Root directory to serve files from" type:"existingdir"`
	Open    bool     `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	JSON    bool     `help:"Output operations in JSON format without executing"`
	Once    bool     `help:"Run the server once and exit after save" default:"true" negatable:""`
	Target  sizeFlag `help:"Default crop size in native pixels (WxH)" default:"700x466"`
	Zoom    float64  `help:"Default initial zoom" default:"1"`
	Step    float64  `help:"Zoom step used by zoom in/out" default:"0.05"`
	Verbose bool     `help:"Enable verbose logging" default:"false"`
}

func (cmd *serveCmd) Run() error {
	setupLogging(cmd.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = log.Logger.WithContext(ctx)

	executor := &OperationExecutor{
		BaseDir:   cmd.RootDir,
		OutputDir: filepath.Join(cmd.RootDir, outputDirName),
		Cropper:   NewImagingCropper(),
	}

	app := NewWebApp(Config{
		RootDir: cmd.RootDir,
		Defaults: SessionDefaults{
			Target:   cmd.Target.Size(),
			Zoom:     cmd.Zoom,
			ZoomStep: cmd.Step,
		},
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnSave: func(ops Operations) {
			if cmd.JSON {
				printJSONL(ops)
			} else {
				if err := executor.Exec(ctx, ops); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("Failed to execute operations")
				}
			}

			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type cropCmd struct {
	File    string   `arg:"" help:"Image to crop" type:"existingfile"`
	Target  sizeFlag `help:"Crop size in native pixels (WxH)" required:""`
	Display sizeFlag `help:"Displayed size the position refers to (WxH), defaults to the natural size"`
	X       float64  `help:"Box left edge in displayed pixels" default:"0"`
	Y       float64  `help:"Box top edge in displayed pixels" default:"0"`
	Zoom    float64  `help:"Zoom, 1 is the tightest box; 0 fits the box to the image" default:"1"`
	Output  string   `help:"Write the cropped JPEG here" short:"o" type:"path"`
	Preview string   `help:"Write the preview JPEG here" type:"path"`
	JSON    bool     `help:"Print the source rectangle as JSON"`
	Verbose bool     `help:"Enable verbose logging" default:"false"`
}

func (cmd *cropCmd) Run() error {
	setupLogging(cmd.Verbose)
	ctx := log.Logger.WithContext(context.Background())

	img, err := imaging.Open(cmd.File, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", cmd.File, err)
	}
	natural := naturalSize(img)
	displayed := cmd.Display.Size()
	if displayed == (geometry.Size{}) {
		displayed = natural
	}

	preview := NewPreviewRenderer()
	preview.SetSource(img)

	initialZoom := cmd.Zoom
	if initialZoom == geometry.ZoomReset {
		initialZoom = 1
	}
	sess := session.New(session.Options{
		Displayed: displayed,
		Target:    cmd.Target.Size(),
		Position:  geometry.Point{X: cmd.X, Y: cmd.Y},
		Zoom:      initialZoom,
		ZoomStep:  0.05,
	}, preview)
	sess.OnReady(func(f session.Frame) {
		log.Ctx(ctx).Debug().
			Stringer("natural", f.Metrics.Natural).
			Stringer("displayed", f.Metrics.Displayed).
			Float64("min_zoom", f.State.MinZoom).
			Float64("zoom", f.State.Zoom).
			Msg("crop ready")
	})

	load := session.NewImageLoad()
	load.Resolve(natural, nil)
	sess.Bind(ctx, load)
	if err := sess.Wait(ctx); err != nil {
		return err
	}
	if cmd.Zoom == geometry.ZoomReset {
		if _, err := sess.SetZoom(ctx, geometry.ZoomReset); err != nil {
			return err
		}
	}

	rect, err := sess.SourceRect()
	if err != nil {
		return err
	}
	if cmd.JSON {
		if err := json.NewEncoder(os.Stdout).Encode(rect); err != nil {
			return fmt.Errorf("failed to encode rectangle: %w", err)
		}
	} else {
		log.Ctx(ctx).Info().Str("file", cmd.File).Stringer("rect", rect).Msg("source rectangle")
	}

	if cmd.Output != "" {
		if err := writeFile(cmd.Output, func(f *os.File) error {
			return NewImagingCropper().CropImage(f, img, rect)
		}); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("path", cmd.Output).Msg("crop written")
	}
	if cmd.Preview != "" {
		if err := writeFile(cmd.Preview, func(f *os.File) error {
			return preview.WriteJPEG(f)
		}); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("path", cmd.Preview).Msg("preview written")
	}
	return nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

type cliArgs struct {
	Serve serveCmd `cmd:"" default:"withargs" help:"Serve the interactive picker for a directory"`
	Crop  cropCmd  `cmd:"" help:"Crop a single image without the web UI"`
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
