// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"Warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_QuietStillUsable(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	// Writing through a quiet logger must not panic.
	logger.Info("quiet message", "key", "value")
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "sentinel",
		Quiet:   true,
	})

	logger.Info("assessment stored", "user_id", "u-1", "risk_level", "moderate")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	filename := "sentinel_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "assessment stored") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"sentinel"`) {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestNew_FileLoggingDefaultServiceName(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	logger.Info("hello")
	logger.Close()

	filename := "pulse_" + time.Now().Format("2006-01-02") + ".log"
	if _, err := os.Stat(filepath.Join(dir, filename)); err != nil {
		t.Errorf("expected default-named log file: %v", err)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()
	if logger.config.Service != "pulse" {
		t.Errorf("Default() service = %q, want pulse", logger.config.Service)
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Default() level = %v, want LevelInfo", logger.config.Level)
	}
}

// =============================================================================
// Logging Behavior Tests
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})
	defer logger.Close()

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	waitForEntries(t, exporter, 2)
	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}
	// Export runs on goroutines, so arrival order is not guaranteed.
	got := make(map[string]bool, len(entries))
	for _, e := range entries {
		got[e.Message] = true
	}
	if !got["warn msg"] || !got["error msg"] {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Quiet: true})
	base.slog = slog.New(slog.NewJSONHandler(&buf, nil))

	child := base.With("user_id", "u-42")
	child.Info("pipeline run complete")

	if !strings.Contains(buf.String(), `"user_id":"u-42"`) {
		t.Errorf("child logger missing attribute: %s", buf.String())
	}

	buf.Reset()
	base.Info("no attrs")
	if strings.Contains(buf.String(), "user_id") {
		t.Error("parent logger must not inherit child attributes")
	}
}

func TestLogger_ExporterReceivesAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter, Service: "sentinel"})
	defer logger.Close()

	logger.Info("intervention suppressed", "user_id", "u-1", "count", 3)

	waitForEntries(t, exporter, 1)
	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Service != "sentinel" {
		t.Errorf("Service = %q, want sentinel", e.Service)
	}
	if e.Attrs["user_id"] != "u-1" {
		t.Errorf("Attrs[user_id] = %v", e.Attrs["user_id"])
	}
	if e.Attrs["count"] != 3 {
		t.Errorf("Attrs[count] = %v", e.Attrs["count"])
	}
}

func TestLogger_CloseIsIdempotentWithoutResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	ctx := context.Background()
	if err := e.Export(ctx, LogEntry{Message: "x"}); err != nil {
		t.Errorf("Export error: %v", err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Errorf("Flush error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}

func TestBufferedExporter_CopySemantics(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "one"})

	entries := e.Entries()
	entries[0].Message = "mutated"

	if e.Entries()[0].Message != "one" {
		t.Error("Entries() must return a copy")
	}
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	e := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Export(context.Background(), LogEntry{Message: "m"})
		}()
	}
	wg.Wait()
	if got := len(e.Entries()); got != 50 {
		t.Errorf("expected 50 entries, got %d", got)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)
	entry := LogEntry{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "daily cap reached",
		Attrs:     map[string]any{"user_id": "u-9"},
	}
	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "daily cap reached") {
		t.Errorf("unexpected output: %s", out)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestArgsToMap(t *testing.T) {
	m := argsToMap([]any{"a", 1, "b", "two", 3, "dangling-key-ignored"})
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("argsToMap result: %v", m)
	}
	if len(m) != 2 {
		t.Errorf("expected 2 entries, got %d", len(m))
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got := expandPath("~/.pulse/logs")
	want := filepath.Join(home, ".pulse/logs")
	if got != want {
		t.Errorf("expandPath = %q, want %q", got, want)
	}
	if expandPath("/var/log") != "/var/log" {
		t.Error("absolute paths must pass through unchanged")
	}
}

func TestMultiHandler_FanOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}
	logger := slog.New(h)
	logger.Info("fan out", "k", "v")

	if !strings.Contains(a.String(), "fan out") {
		t.Error("first handler missed the record")
	}
	if !strings.Contains(b.String(), `"k":"v"`) {
		t.Error("second handler missed the record")
	}
}

// waitForEntries polls the exporter until n entries arrive or times out.
// Export happens on a goroutine, so tests must wait.
func waitForEntries(t *testing.T, e *BufferedExporter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Entries()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d exported entries, have %d", n, len(e.Entries()))
}
