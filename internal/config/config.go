/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */

// Package config loads and persists the host-facing receiver
// configuration: which streams to receive, their stall timeouts, and
// where recordings should land by default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"
)

var appName = "videoreceiver"

// Environment is the per-process path bundle: where configuration and
// recordings live on this host.
type Environment struct {
	ConfigDir     string
	SettingsFile  string
	RecordingsDir string
}

// StreamConfig describes one receiver to bring up at startup.
type StreamConfig struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	TimeoutSeconds uint   `yaml:"timeout_seconds"`
	Disabled       bool   `yaml:"disabled,omitempty"`

	RecordOnStart  bool   `yaml:"record_on_start,omitempty"`
	RecordingDir   string `yaml:"recording_dir,omitempty"`
	RecordingFmt   string `yaml:"recording_format,omitempty"` // "mkv"|"mov"|"mp4"
}

// AppConfig is the root document persisted to settings.yml.
type AppConfig struct {
	Streams []StreamConfig `yaml:"streams"`
}

var (
	mu  sync.Mutex
	env Environment
)

// InitializeEnvironment resolves the configuration directory and default
// recordings directory under the user's home, creating the former if
// needed.
func InitializeEnvironment() (Environment, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, fmt.Errorf("config: determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Environment{}, fmt.Errorf("config: create config directory: %w", err)
	}
	e := Environment{
		ConfigDir:     dir,
		SettingsFile:  filepath.Join(dir, "settings.yml"),
		RecordingsDir: filepath.Join(home, "videoreceiver-recordings"),
	}
	mu.Lock()
	env = e
	mu.Unlock()
	return e, nil
}

// Load reads and parses the YAML document at path.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically: encode to a temporary file in the
// same directory, then rename over the target, so a crash mid-write
// never corrupts the on-disk settings file.
func Save(path string, cfg AppConfig) error {
	mu.Lock()
	defer mu.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&cfg); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
