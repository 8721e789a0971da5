package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/tombamento-bot/internal/infrastructure/execrun"
)

// Box-drawing runs tesseract emits around table borders.
var reBoxNoise = regexp.MustCompile(`[\x{2500}-\x{257F}|]{2,}`)

type Config struct {
	Bin         string
	Lang        string
	TessdataDir string
	PSM         int
}

// Engine recognizes page images with the tesseract CLI.
type Engine struct {
	cfg    Config
	runner execrun.Runner
	logger *slog.Logger
}

func New(cfg Config, runner execrun.Runner, logger *slog.Logger) *Engine {
	if cfg.Bin == "" {
		cfg.Bin = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execrun.NewExecRunner(logger)
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}
}

func (e *Engine) Recognize(ctx context.Context, imagePath string) (string, error) {
	// tesseract <image> stdout -l <lang> [--psm N] [--tessdata-dir DIR]
	args := []string{imagePath, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Bin, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, execrun.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	text := strings.ReplaceAll(string(out), "\f", "")
	return reBoxNoise.ReplaceAllString(text, ""), nil
}
