package config

import (
	"testing"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"PHOTOFEED_DB_DRIVER", "PHOTOFEED_DB_DSN", "PHOTOFEED_PAGE_SIZE",
		"PHOTOFEED_PROBE_INTERVAL", "PHOTOFEED_OWNER", "PHOTOFEED_LOG_LEVEL",
		"PHOTOFEED_GALLERY_CACHE_LIFETIME",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 20, cfg.PageSize)
	require.Equal(t, time.Minute, cfg.ProbeInterval)
	require.Equal(t, 3*time.Hour, cfg.CacheLifetimes[model.FeedGallery])
	require.Equal(t, uuid.Nil, cfg.Owner)
	require.Equal(t, log.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	owner := uuid.New()
	t.Setenv("PHOTOFEED_DB_DRIVER", "postgres")
	t.Setenv("PHOTOFEED_PAGE_SIZE", "50")
	t.Setenv("PHOTOFEED_PROBE_INTERVAL", "30s")
	t.Setenv("PHOTOFEED_UPLOADED_CACHE_LIFETIME", "5m")
	t.Setenv("PHOTOFEED_OWNER", owner.String())
	t.Setenv("PHOTOFEED_LOG_LEVEL", "debug")

	cfg := Load()
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, 50, cfg.PageSize)
	require.Equal(t, 30*time.Second, cfg.ProbeInterval)
	require.Equal(t, 5*time.Minute, cfg.CacheLifetimes[model.FeedUploaded])
	require.Equal(t, owner, cfg.Owner)
	require.Equal(t, log.LevelDebug, cfg.LogLevel)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PHOTOFEED_PAGE_SIZE", "-3")
	t.Setenv("PHOTOFEED_PROBE_INTERVAL", "soon")
	t.Setenv("PHOTOFEED_OWNER", "not-a-uuid")

	cfg := Load()
	require.Equal(t, 20, cfg.PageSize)
	require.Equal(t, time.Minute, cfg.ProbeInterval)
	require.Equal(t, uuid.Nil, cfg.Owner)
}

func TestLoadCapsPageSize(t *testing.T) {
	t.Setenv("PHOTOFEED_PAGE_SIZE", "150")
	require.Equal(t, 100, Load().PageSize)
}
