// Package config loads the engine configuration from YAML with sane
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "15m" or "6h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full daemon configuration.
type Config struct {
	// DataDir holds the BoltDB database and the workspace tree.
	DataDir string `yaml:"data_dir"`
	// ListenAddr is the HTTP/websocket bind address.
	ListenAddr string `yaml:"listen_addr"`
	// SigningSecret keys the plugin asset signer. When empty, a random
	// secret is generated at each start and is not stored.
	SigningSecret string `yaml:"signing_secret"`

	// AutoArchiveInterval gates automatic archives (see hub.Config).
	AutoArchiveInterval Duration `yaml:"auto_archive_interval"`
	// SnapshotInterval is the cadence of the snapshot-all scheduler;
	// zero disables it.
	SnapshotInterval Duration `yaml:"snapshot_interval"`
	// SnapshotKeepVersions is how many snapshot versions survive a
	// snapshot-all pass.
	SnapshotKeepVersions int64 `yaml:"snapshot_keep_versions"`
	// UpdatesKeepWindow is how many trailing update-log entries survive
	// a snapshot-all pass.
	UpdatesKeepWindow int64 `yaml:"updates_keep_window"`

	// AssetURLTTL bounds signed plugin asset URLs.
	AssetURLTTL Duration `yaml:"asset_url_ttl"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:              "./data",
		ListenAddr:           ":8787",
		AutoArchiveInterval:  Duration(6 * time.Hour),
		SnapshotInterval:     Duration(15 * time.Minute),
		SnapshotKeepVersions: 10,
		UpdatesKeepWindow:    500,
		AssetURLTTL:          Duration(10 * time.Minute),
		LogLevel:             "info",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
