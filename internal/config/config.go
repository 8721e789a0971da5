package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string

	Operator string
	Secret   string

	RemoteBaseURL       string
	RemoteTargetURL     string
	RemoteSelectorsFile string

	BrowserHeadless bool
	BrowserExecPath string

	LocatorTimeout  time.Duration
	SettleShort     time.Duration
	SettleLong      time.Duration
	LoginSettle     time.Duration
	ModuleSettle    time.Duration
	OpenAttempts    int
	OpenBackoff     time.Duration
	LoginVerify     string
	PerItemEstimate time.Duration

	OCRLang       string
	TesseractBin  string
	TessdataDir   string
	OCRPSM        int
	Rasterizer    string
	PdftoppmBin   string
	RasterDPI     int
	RasterTempDir string

	LedgerDriver string
	LedgerDSN    string

	NATSURL     string
	NATSSubject string

	APIPort           string
	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIQueueWait      time.Duration
	MetricsAddr       string

	UploadDir      string
	UploadMaxBytes int64
}

func Load() Config {
	return Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		Operator: mustEnv("SISGEPAT_LOGIN", ""),
		Secret:   mustEnv("SISGEPAT_PASSWORD", ""),

		RemoteBaseURL:       mustEnv("REMOTE_BASE_URL", ""),
		RemoteTargetURL:     mustEnv("REMOTE_TARGET_URL", ""),
		RemoteSelectorsFile: mustEnv("REMOTE_SELECTORS_FILE", ""),

		BrowserHeadless: mustEnvBool("BROWSER_HEADLESS", false),
		BrowserExecPath: mustEnv("BROWSER_EXEC_PATH", ""),

		LocatorTimeout:  mustEnvDuration("LOCATOR_TIMEOUT", 10*time.Second),
		SettleShort:     mustEnvDuration("SETTLE_SHORT", time.Second),
		SettleLong:      mustEnvDuration("SETTLE_LONG", 3*time.Second),
		LoginSettle:     mustEnvDuration("LOGIN_SETTLE", 3*time.Second),
		ModuleSettle:    mustEnvDuration("MODULE_SETTLE", 5*time.Second),
		OpenAttempts:    mustEnvInt("OPEN_ATTEMPTS", 3),
		OpenBackoff:     mustEnvDuration("OPEN_BACKOFF", 2*time.Second),
		LoginVerify:     mustEnv("LOGIN_VERIFY", "elapsed"),
		PerItemEstimate: mustEnvDuration("PER_ITEM_ESTIMATE", 5*time.Second),

		OCRLang:       mustEnv("OCR_LANG", "por"),
		TesseractBin:  mustEnv("TESSERACT_BIN", "tesseract"),
		TessdataDir:   mustEnv("TESSDATA_DIR", ""),
		OCRPSM:        mustEnvInt("OCR_PSM", 0),
		Rasterizer:    mustEnv("RASTERIZER", "fitz"),
		PdftoppmBin:   mustEnv("PDFTOPPM_BIN", "pdftoppm"),
		RasterDPI:     mustEnvInt("RASTER_DPI", 300),
		RasterTempDir: mustEnv("RASTER_TEMP_DIR", ""),

		LedgerDriver: mustEnv("LEDGER_DRIVER", "sqlite"),
		LedgerDSN:    mustEnv("LEDGER_DSN", "tombamento.db"),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "tombamento.progress"),

		APIPort:           mustEnv("API_PORT", "8080"),
		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 8),
		APIQueueWait:      mustEnvDuration("API_QUEUE_WAIT", 250*time.Millisecond),
		MetricsAddr:       mustEnv("METRICS_ADDR", ""),

		UploadDir:      mustEnv("UPLOAD_DIR", "./data/uploads"),
		UploadMaxBytes: int64(mustEnvInt("UPLOAD_MAX_BYTES", 50<<20)),
	}
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("1500ms") or plain seconds ("3").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
