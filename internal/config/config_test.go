/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")

	want := AppConfig{
		Streams: []StreamConfig{
			{Name: "front-door", URL: "rtsp://10.0.0.5/stream", TimeoutSeconds: 5},
			{Name: "garage", URL: "udp://0.0.0.0:5600", TimeoutSeconds: 3, RecordOnStart: true, RecordingFmt: "mp4"},
		},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(got.Streams) != len(want.Streams) {
		t.Fatalf("Load() got %d streams, want %d", len(got.Streams), len(want.Streams))
	}
	for i := range want.Streams {
		if got.Streams[i] != want.Streams[i] {
			t.Errorf("Streams[%d] = %+v, want %+v", i, got.Streams[i], want.Streams[i])
		}
	}
}

func TestSave_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")

	if err := Save(path, AppConfig{Streams: []StreamConfig{{Name: "a", URL: "tcp://x/y"}}}); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if err := Save(path, AppConfig{Streams: []StreamConfig{{Name: "b", URL: "tcp://x/z"}}}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Streams) != 1 || got.Streams[0].Name != "b" {
		t.Errorf("Load() after second Save() = %+v, want single stream %q", got.Streams, "b")
	}

	if _, err := Load(path + ".tmp"); err == nil {
		t.Error("Load() of .tmp file succeeded, want it to have been renamed away")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("Load() of missing file error = nil, want error")
	}
}

func TestInitializeEnvironment(t *testing.T) {
	env, err := InitializeEnvironment()
	if err != nil {
		t.Fatalf("InitializeEnvironment() error = %v", err)
	}
	if env.ConfigDir == "" || env.SettingsFile == "" || env.RecordingsDir == "" {
		t.Errorf("InitializeEnvironment() returned empty fields: %+v", env)
	}
}
