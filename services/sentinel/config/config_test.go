// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDefault_ParsesAndValidates(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded defaults must validate: %v", err)
	}
	if cfg.Thresholds.Buffer != 0.60 || cfg.Thresholds.Redistribute != 0.75 || cfg.Thresholds.Alert != 0.85 {
		t.Errorf("unexpected default thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Pipeline.StabilityWindowDays != 7 {
		t.Errorf("stability window = %d, want 7", cfg.Pipeline.StabilityWindowDays)
	}
	if cfg.Pipeline.StreamInterval != 5*time.Minute {
		t.Errorf("stream interval = %v, want 5m", cfg.Pipeline.StreamInterval)
	}
	if cfg.Forecast.HorizonDays != 7 || cfg.Forecast.SequenceLength != 14 {
		t.Errorf("unexpected forecast defaults: %+v", cfg.Forecast)
	}
	if cfg.Intervention.MaxDaily != 3 || cfg.Intervention.BufferDurationMinutes != 45 {
		t.Errorf("unexpected intervention defaults: %+v", cfg.Intervention)
	}
	if cfg.Influx.Enabled() || cfg.Slack.Enabled() {
		t.Error("optional integrations must be disabled by default")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Server.Addr != ":8600" {
		t.Errorf("addr = %q, want :8600", cfg.Server.Addr)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	body := `
server:
  addr: ":9999"
pipeline:
  workers: 4
thresholds:
  buffer: 0.5
  redistribute: 0.7
  alert: 0.9
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if cfg.Thresholds.Alert != 0.9 {
		t.Errorf("alert threshold = %v, want 0.9", cfg.Thresholds.Alert)
	}
	// Untouched keys keep their defaults.
	if cfg.Pipeline.StabilityWindowDays != 7 {
		t.Errorf("stability window = %d, want default 7", cfg.Pipeline.StabilityWindowDays)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PULSE_HTTP_ADDR", ":7777")
	t.Setenv("PULSE_WORKERS", "2")
	t.Setenv("PULSE_MAX_DAILY_INTERVENTIONS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("addr = %q, want env override :7777", cfg.Server.Addr)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Pipeline.Workers)
	}
	if cfg.Intervention.MaxDaily != 5 {
		t.Errorf("max daily = %d, want 5", cfg.Intervention.MaxDaily)
	}
}

func TestLoad_RejectsBadThresholdOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	body := `
thresholds:
  buffer: 0.9
  redistribute: 0.75
  alert: 0.85
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation failure for non-increasing thresholds")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	if got := ExpandPath("~/.pulse/reports"); got != filepath.Join(home, ".pulse/reports") {
		t.Errorf("ExpandPath(~/.pulse/reports) = %q", got)
	}
	if got := ExpandPath("/var/lib/pulse"); got != "/var/lib/pulse" {
		t.Errorf("absolute path must pass through, got %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("empty path must pass through, got %q", got)
	}
}

func TestReportsConfig_GCSEnabled(t *testing.T) {
	if (ReportsConfig{OutputDir: "/tmp/r"}).GCSEnabled() {
		t.Error("archival must be disabled without a bucket")
	}
	if !(ReportsConfig{GCSBucket: "pulse-reports"}).GCSEnabled() {
		t.Error("archival must be enabled with a bucket")
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85}, false},
		{"equal pair", Thresholds{Buffer: 0.75, Redistribute: 0.75, Alert: 0.85}, true},
		{"reversed", Thresholds{Buffer: 0.85, Redistribute: 0.75, Alert: 0.60}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHolder_SetAndCurrent(t *testing.T) {
	h := NewHolder(Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85})

	next := Thresholds{Buffer: 0.50, Redistribute: 0.70, Alert: 0.90}
	if err := h.Set(next); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := h.Current(); got != next {
		t.Errorf("Current() = %+v, want %+v", got, next)
	}
}

func TestHolder_RejectsInvalidSet(t *testing.T) {
	orig := Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85}
	h := NewHolder(orig)

	if err := h.Set(Thresholds{Buffer: 0.9, Redistribute: 0.5, Alert: 0.6}); err == nil {
		t.Fatal("expected invalid thresholds to be rejected")
	}
	if got := h.Current(); got != orig {
		t.Errorf("Current() = %+v, want original %+v", got, orig)
	}
}

func TestWatcher_ReloadsValidThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  buffer: 0.5\n  redistribute: 0.7\n  alert: 0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	h := NewHolder(Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85})
	w, err := NewWatcher(path, h, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	got := h.Current()
	if got.Buffer != 0.5 || got.Redistribute != 0.7 || got.Alert != 0.9 {
		t.Errorf("thresholds not reloaded: %+v", got)
	}
}

func TestWatcher_KeepsCurrentOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  buffer: 0.9\n  redistribute: 0.5\n  alert: 0.6\n"), 0644); err != nil {
		t.Fatal(err)
	}

	orig := Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85}
	h := NewHolder(orig)
	w, err := NewWatcher(path, h, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	if got := h.Current(); got != orig {
		t.Errorf("invalid reload must keep current thresholds, got %+v", got)
	}
}

func TestWatcher_IgnoresChmodEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  buffer: 0.5\n  redistribute: 0.7\n  alert: 0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	orig := Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85}
	h := NewHolder(orig)
	w, err := NewWatcher(path, h, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod})

	if got := h.Current(); got != orig {
		t.Errorf("chmod must not trigger a reload, got %+v", got)
	}
}
