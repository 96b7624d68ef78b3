// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentinel starts the burnout-risk sentinel HTTP server.
//
// This is the entry point for the containerized service. It reads
// configuration from an optional YAML file plus environment variables and
// blocks until the server exits. Operators who want a CLI should use
// `pulse serve` instead; this binary exists for deployments that only
// speak env vars.
//
// # Environment Variables
//
//   - PULSE_CONFIG: Optional YAML config path (default: embedded defaults)
//   - PULSE_HTTP_ADDR: Listen address (default: :8600)
//   - PULSE_BADGER_DIR: Badger data directory
//   - PULSE_SLACK_TOKEN / PULSE_SLACK_CHANNEL: Manager alert delivery
//   - PULSE_INFLUX_URL / _ORG / _BUCKET / _TOKEN: Assessment export
//   - PULSE_OTLP_ENDPOINT: OpenTelemetry collector (empty disables tracing)
//   - PULSE_LOG_LEVEL: debug, info, warn, error (default: info)
//
// See services/sentinel/config for the full list.
//
// # Usage
//
//	# Build
//	go build -o sentinel ./cmd/sentinel
//
//	# Run
//	PULSE_BADGER_DIR=/var/lib/pulse ./sentinel
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianPulse/services/sentinel"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
)

func main() {
	// Structured logging for the startup path; the service installs its
	// own logger once constructed.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := os.Getenv("PULSE_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting sentinel",
		"addr", cfg.Server.Addr,
		"badger_dir", cfg.Storage.BadgerDir,
		"in_memory", cfg.Storage.InMemory,
	)

	svc, err := sentinel.New(cfg, &sentinel.Options{ConfigPath: configPath})
	if err != nil {
		log.Fatalf("Failed to create sentinel: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Sentinel error: %v", err)
	}
}
