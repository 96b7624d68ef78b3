// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influx exports finished assessments to an InfluxDB bucket for
// long-term time-series analysis. The export target is optional; when it is
// not configured the pipeline simply skips the export step.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// measurement is the InfluxDB measurement assessments land in.
const measurement = "stability_assessments"

// ============================================================================
// Exporter
// ============================================================================

// Exporter writes assessment points through the blocking write API. One
// point per assessment keeps delivery synchronous with the pipeline run;
// the caller decides whether an export failure matters.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying write API is.
type Exporter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	log    *slog.Logger
}

// NewExporter connects an Exporter to the configured bucket.
//
// # Inputs
//
//   - cfg: must have URL, Org, and Bucket set
//   - log: structured logger (nil falls back to slog.Default())
//
// # Outputs
//
//   - *Exporter: ready for use; connectivity is not verified here, use Ping
//   - error: cfg incomplete
func NewExporter(cfg config.InfluxConfig, log *slog.Logger) (*Exporter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("influx exporter requires a url")
	}
	if log == nil {
		log = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	e := &Exporter{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:    log,
	}
	log.Info("Influx export configured", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return e, nil
}

// Ping checks that the server is up and healthy.
func (e *Exporter) Ping(ctx context.Context) error {
	health, err := e.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health check: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influx unhealthy: %s %s", health.Status, msg)
	}
	return nil
}

// ExportAssessment writes one assessment point, timestamped at the
// assessment date and tagged by user and risk level.
func (e *Exporter) ExportAssessment(ctx context.Context, a datatypes.StabilityAssessment) error {
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"user_id":    a.UserID,
			"risk_level": string(a.RiskLevel),
		},
		map[string]interface{}{
			"risk_probability":         a.RiskProbability,
			"stability_index":          a.StabilityIndex,
			"volatility":               a.Volatility,
			"acceleration":             a.Acceleration,
			"anomaly_score":            a.AnomalyScore,
			"is_anomaly":               a.IsAnomaly,
			"change_point_probability": a.ChangePointProbability,
			"is_change_point":          a.IsChangePoint,
			"baseline_deviation":       a.BaselineDeviation,
			"confidence_score":         a.ConfidenceScore,
		},
		a.AssessmentDate,
	)

	if err := e.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write assessment point for %s: %w", a.UserID, err)
	}
	e.log.Debug("Exported assessment", "user_id", a.UserID, "risk_level", a.RiskLevel)
	return nil
}

// Close releases the client's idle connections. Pending writes are already
// flushed; the blocking API has no buffer.
func (e *Exporter) Close() {
	e.client.Close()
}
