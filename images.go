package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"simplecrop/geometry"
	"simplecrop/session"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FileInfo struct {
	Name       string    `json:"name"`
	IsDir      bool      `json:"is_dir"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	URL        string    `json:"url"`
	Image      ImageInfo `json:"image"`
}

type Directory struct {
	Name  string     `json:"name"`
	Files []FileInfo `json:"files"`
}

func isImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

func walkImages(rootPath string) (Directory, error) {
	var files []FileInfo

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != rootPath && d.Name() == outputDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImage(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		files = append(files, FileInfo{
			Name:       relPath,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	}); err != nil {
		return Directory{}, err
	}

	for i := range files {
		w, h, err := readDimensions(filepath.Join(rootPath, files[i].Name))
		if err != nil {
			log.Ctx(context.Background()).Error().Err(err).Str("filename", files[i].Name).Msg("cannot read image dimensions")
			continue
		}
		files[i].Image = ImageInfo{
			Width:  w,
			Height: h,
		}
	}

	return Directory{
		Name:  filepath.Base(rootPath),
		Files: files,
	}, nil
}

// readDimensions reads only the image header. These are the stored
// dimensions, before any EXIF orientation is applied.
func readDimensions(filePath string) (width, height int, err error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return readJPEGDimensions(filePath)
	}
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func readJPEGDimensions(filePath string) (width, height int, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf [2]byte

	// SOI marker
	if _, err = io.ReadFull(file, buf[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to read SOI marker: %w", err)
	}
	if buf[0] != 0xFF || buf[1] != 0xD8 {
		return 0, 0, errors.New("not a valid JPEG file")
	}

	for {
		if _, err = io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		if buf[0] != 0xFF {
			return 0, 0, errors.New("invalid JPEG format")
		}

		// Skip padding bytes (0xFF)
		for buf[1] == 0xFF {
			if _, err = io.ReadFull(file, buf[1:2]); err != nil {
				return 0, 0, err
			}
		}
		marker := buf[1]

		if _, err = io.ReadFull(file, buf[:]); err != nil {
			return 0, 0, err
		}
		length := binary.BigEndian.Uint16(buf[:])
		if length < 2 {
			return 0, 0, errors.New("invalid JPEG segment length")
		}

		// SOF0..SOF3 carry the frame dimensions
		if marker >= 0xC0 && marker <= 0xC3 {
			segment := make([]byte, length-2)
			if _, err = io.ReadFull(file, segment); err != nil {
				return 0, 0, err
			}
			if len(segment) < 5 {
				return 0, 0, errors.New("short JPEG frame header")
			}
			height = int(binary.BigEndian.Uint16(segment[1:3]))
			width = int(binary.BigEndian.Uint16(segment[3:5]))
			return width, height, nil
		}

		if _, err = file.Seek(int64(length-2), io.SeekCurrent); err != nil {
			return 0, 0, err
		}
	}
}

// loadImage decodes path in the background. The returned load resolves
// with the natural size after EXIF orientation; onDecoded receives the
// image first so a renderer has pixels before the session builds.
func loadImage(ctx context.Context, path string, onDecoded func(image.Image)) *session.ImageLoad {
	load := session.NewImageLoad()
	go func() {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("path", path).Msg("failed to load image")
			load.Resolve(geometry.Size{}, fmt.Errorf("failed to load image %s: %w", path, err))
			return
		}
		if onDecoded != nil {
			onDecoded(img)
		}
		load.Resolve(naturalSize(img), nil)
	}()
	return load
}

func naturalSize(img image.Image) geometry.Size {
	b := img.Bounds()
	return geometry.Size{W: float64(b.Dx()), H: float64(b.Dy())}
}
