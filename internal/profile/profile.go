package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the directory server and the chat client.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where wiesio stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Segmentation service
	SegmentURL     string        // WIESIO_SEGMENT_URL (default: http://localhost:8000)
	SegmentTimeout time.Duration // WIESIO_SEGMENT_TIMEOUT (default: 120s)

	// ServerURL is the directory API the chat client talks to.
	ServerURL string // WIESIO_SERVER_URL (default: http://localhost:8081)

	// API rate limiting, requests per second per client IP.
	RateLimit float64 // WIESIO_RATE_LIMIT (default: 20)
	RateBurst int     // WIESIO_RATE_BURST (default: 40)
}

const (
	defaultSegmentURL     = "http://localhost:8000"
	defaultSegmentTimeout = 120 * time.Second
	defaultServerURL      = "http://localhost:8081"
	defaultRateLimit      = 20
	defaultRateBurst      = 40
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from WIESIO_* environment variables.
// Malformed numbers fall back to defaults with a warning.
func (p *Profile) FromEnv() {
	p.SegmentURL = strings.TrimRight(getEnvOrDefault("WIESIO_SEGMENT_URL", defaultSegmentURL), "/")
	p.ServerURL = strings.TrimRight(getEnvOrDefault("WIESIO_SERVER_URL", defaultServerURL), "/")

	p.SegmentTimeout = defaultSegmentTimeout
	if raw := os.Getenv("WIESIO_SEGMENT_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			p.SegmentTimeout = d
		} else {
			slog.Warn("invalid WIESIO_SEGMENT_TIMEOUT, using default", slog.String("value", raw))
		}
	}

	p.RateLimit = defaultRateLimit
	if raw := os.Getenv("WIESIO_RATE_LIMIT"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			p.RateLimit = v
		} else {
			slog.Warn("invalid WIESIO_RATE_LIMIT, using default", slog.String("value", raw))
		}
	}

	p.RateBurst = defaultRateBurst
	if raw := os.Getenv("WIESIO_RATE_BURST"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			p.RateBurst = v
		} else {
			slog.Warn("invalid WIESIO_RATE_BURST, using default", slog.String("value", raw))
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "wiesio")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/wiesio"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("wiesio_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
