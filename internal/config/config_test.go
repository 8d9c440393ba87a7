package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("AUTH_TIMEOUT", "")

	cfg := FromEnv()
	require.Equal(t, ModeOffline, cfg.Mode)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 5*time.Second, cfg.AuthTimeout)
	require.True(t, cfg.AutoProvisionProfiles)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("AUTH_TIMEOUT", "3")
	t.Setenv("SCORING_TIMEOUT", "250ms")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("AUTO_PROVISION_PROFILES", "")

	cfg := FromEnv()
	require.Equal(t, ModeOnline, cfg.Mode)
	require.Equal(t, 3*time.Second, cfg.AuthTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.ScoringTimeout)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.False(t, cfg.AutoProvisionProfiles)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(f, []byte("SITE_ID=lab-3\n"), 0o600))
	t.Setenv("SITE_ID", "")
	os.Unsetenv("SITE_ID")

	cfg := Load(f, filepath.Join(dir, "missing.env"))
	require.Equal(t, "lab-3", cfg.SiteID)
}
