// Package config loads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/bryan-buckman/photofeed/internal/remote"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

type Config struct {
	DBDriver string // sqlite or postgres
	DBDSN    string

	ListenAddr string
	RemoteURL  string
	Owner      uuid.UUID

	PageSize       int // capped at remote.MaxPageSize
	ProbeInterval  time.Duration
	CacheLifetimes map[model.FeedType]time.Duration

	LogLevel log.Level
}

func Load() Config {
	return Config{
		DBDriver:      getenv("PHOTOFEED_DB_DRIVER", "sqlite"),
		DBDSN:         getenv("PHOTOFEED_DB_DSN", "photofeed.db"),
		ListenAddr:    getenv("PHOTOFEED_LISTEN_ADDR", ":8080"),
		RemoteURL:     getenv("PHOTOFEED_REMOTE_URL", "http://127.0.0.1:8080"),
		Owner:         parseUUIDEnv("PHOTOFEED_OWNER"),
		PageSize:      min(parseIntEnv("PHOTOFEED_PAGE_SIZE", 20), remote.MaxPageSize),
		ProbeInterval: parseDurationEnv("PHOTOFEED_PROBE_INTERVAL", time.Minute),
		CacheLifetimes: map[model.FeedType]time.Duration{
			model.FeedUploaded: parseDurationEnv("PHOTOFEED_UPLOADED_CACHE_LIFETIME", 30*time.Minute),
			model.FeedReceived: parseDurationEnv("PHOTOFEED_RECEIVED_CACHE_LIFETIME", time.Hour),
			model.FeedGallery:  parseDurationEnv("PHOTOFEED_GALLERY_CACHE_LIFETIME", 3*time.Hour),
		},
		LogLevel: log.ParseLevel(getenv("PHOTOFEED_LOG_LEVEL", "info")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// parseUUIDEnv returns uuid.Nil when the variable is unset or malformed.
func parseUUIDEnv(key string) uuid.UUID {
	if v := os.Getenv(key); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}
