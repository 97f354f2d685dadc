package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8787", cfg.ListenAddr)
	require.Equal(t, 6*time.Hour, cfg.AutoArchiveInterval.Std())
	require.Equal(t, int64(10), cfg.SnapshotKeepVersions)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inklet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9999"
auto_archive_interval: 30m
snapshot_interval: 5m
log_level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 30*time.Minute, cfg.AutoArchiveInterval.Std())
	require.Equal(t, 5*time.Minute, cfg.SnapshotInterval.Std())
	require.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, int64(500), cfg.UpdatesKeepWindow)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inklet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshot_interval: soon\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
