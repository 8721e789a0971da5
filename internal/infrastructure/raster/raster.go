package raster

import (
	"log/slog"
	"os"
)

// DefaultDPI is high enough for tesseract to read small print.
const DefaultDPI = 300

func noop() {}

func removeDir(dir string, logger *slog.Logger) func() {
	return func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("page dir cleanup failed", "dir", dir, "error", err)
		}
	}
}
