package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/execrun"
)

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	bin     string
	dpi     int
	tempDir string
	runner  execrun.Runner
	logger  *slog.Logger
}

func NewPdftoppmRasterizer(bin string, dpi int, tempDir string, runner execrun.Runner, logger *slog.Logger) *PdftoppmRasterizer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execrun.NewExecRunner(logger)
	}
	return &PdftoppmRasterizer{bin: bin, dpi: dpi, tempDir: tempDir, runner: runner, logger: logger}
}

func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, path string) ([]domain.PageImage, func(), error) {
	dir, err := os.MkdirTemp(r.tempDir, "tombamento-pages-")
	if err != nil {
		return nil, noop, fmt.Errorf("create page dir: %w", err)
	}
	cleanup := removeDir(dir, r.logger)
	prefix := filepath.Join(dir, "page")

	// pdftoppm -r 300 -png <in.pdf> <dir>/page  ->  page-1.png, page-2.png, ...
	_, errb, err := r.runner.Run(ctx, r.bin, "-r", strconv.Itoa(r.dpi), "-png", path, prefix)
	if err != nil {
		return nil, cleanup, fmt.Errorf("pdftoppm: %w: %s", err, execrun.Truncate(strings.TrimSpace(string(errb)), 512))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, cleanup, fmt.Errorf("list pages: %w", err)
	}
	images := make([]domain.PageImage, 0, len(files))
	for _, f := range files {
		n, ok := pageNumber(prefix, f)
		if !ok {
			continue
		}
		images = append(images, domain.PageImage{Number: n, Path: f})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Number < images[j].Number })
	return images, cleanup, nil
}

// pageNumber parses the page index pdftoppm appends to the prefix. The
// index is zero-padded to the width of the page count.
func pageNumber(prefix, file string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(file, prefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
