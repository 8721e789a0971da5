package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// FitzRasterizer renders pages in-process through MuPDF.
type FitzRasterizer struct {
	dpi     float64
	tempDir string
	logger  *slog.Logger
}

func NewFitzRasterizer(dpi int, tempDir string, logger *slog.Logger) *FitzRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FitzRasterizer{dpi: float64(dpi), tempDir: tempDir, logger: logger}
}

func (r *FitzRasterizer) Rasterize(ctx context.Context, path string) ([]domain.PageImage, func(), error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, noop, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	dir, err := os.MkdirTemp(r.tempDir, "tombamento-pages-")
	if err != nil {
		return nil, noop, fmt.Errorf("create page dir: %w", err)
	}
	cleanup := removeDir(dir, r.logger)

	total := doc.NumPage()
	images := make([]domain.PageImage, 0, total)
	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, cleanup, err
		}
		img, err := doc.ImageDPI(n, r.dpi)
		if err != nil {
			return nil, cleanup, fmt.Errorf("render page %d: %w", n+1, err)
		}
		out := filepath.Join(dir, fmt.Sprintf("page-%04d.png", n+1))
		if err := writePNG(out, img); err != nil {
			return nil, cleanup, fmt.Errorf("write page %d: %w", n+1, err)
		}
		images = append(images, domain.PageImage{Number: n + 1, Path: out})
	}
	return images, cleanup, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
