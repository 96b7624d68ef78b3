// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics exposes Prometheus instrumentation for the Sentinel
// pipeline. All metrics live in the `pulse` namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Assessment Pipeline
// =============================================================================

var (
	// assessmentsTotal counts persisted stability assessments.
	// Labels: risk_level (low, moderate, high, critical)
	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "assessments_total",
		Help:      "Total stability assessments persisted",
	}, []string{"risk_level"})

	// pipelineRuns counts per-user pipeline runs by outcome.
	// Labels: status (success, error)
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "pipeline_runs_total",
		Help:      "Total per-user pipeline runs by outcome",
	}, []string{"status"})

	// pipelineDuration measures end-to-end per-user pipeline latency.
	// Labels: status (success, error)
	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "pipeline_duration_seconds",
		Help:      "Per-user pipeline run duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"status"})

	// anomaliesTotal counts days flagged by the isolation forest.
	anomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "anomalies_total",
		Help:      "Total days flagged anomalous",
	})

	// changePointsTotal counts detected behavioral change points.
	changePointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "change_points_total",
		Help:      "Total detected behavioral change points",
	})

	// forecastsTotal counts persisted forecasts by producing model.
	// Labels: model_type (trend, sequence, ensemble)
	forecastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "forecasts_total",
		Help:      "Total burnout forecasts persisted by model type",
	}, []string{"model_type"})

	// interventionsTotal counts intervention attempts by type and outcome.
	// Labels: type (buffer, redistribute, alert), status (executed, failed)
	interventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "interventions_total",
		Help:      "Total intervention attempts by type and outcome",
	}, []string{"type", "status"})

	// interventionsSuppressed counts interventions dropped by the daily cap.
	interventionsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "interventions_suppressed_total",
		Help:      "Interventions suppressed by the per-user daily cap",
	})

	// streamingPassDuration measures full streaming-pass latency.
	streamingPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "streaming_pass_duration_seconds",
		Help:      "Duration of a full streaming pass over active users",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// streamingUserFailures counts per-user failures inside streaming passes.
	streamingUserFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "streaming_user_failures_total",
		Help:      "Per-user pipeline failures during streaming passes",
	})

	// websocketClients tracks currently connected live-feed subscribers.
	websocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "websocket_clients",
		Help:      "Currently connected live-feed subscribers",
	})

	// reportsGenerated counts generated reports by kind.
	// Labels: kind (employee, org)
	reportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulse",
		Subsystem: "sentinel",
		Name:      "reports_generated_total",
		Help:      "Total generated reports by kind",
	}, []string{"kind"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordAssessment records a persisted assessment.
//
// Inputs:
//
//	riskLevel - The classified risk level ("low" .. "critical").
func RecordAssessment(riskLevel string) {
	assessmentsTotal.WithLabelValues(riskLevel).Inc()
}

// RecordPipelineRun records the outcome and latency of one per-user run.
//
// Inputs:
//
//	status - "success" or "error".
//	durationSec - Duration in seconds.
func RecordPipelineRun(status string, durationSec float64) {
	pipelineRuns.WithLabelValues(status).Inc()
	pipelineDuration.WithLabelValues(status).Observe(durationSec)
}

// RecordAnomaly records a day flagged by the anomaly detector.
func RecordAnomaly() {
	anomaliesTotal.Inc()
}

// RecordChangePoint records a detected change point.
func RecordChangePoint() {
	changePointsTotal.Inc()
}

// RecordForecast records a persisted forecast.
//
// Inputs:
//
//	modelType - "trend", "sequence", or "ensemble".
func RecordForecast(modelType string) {
	forecastsTotal.WithLabelValues(modelType).Inc()
}

// RecordIntervention records an intervention attempt.
//
// Inputs:
//
//	interventionType - "buffer", "redistribute", or "alert".
//	status - "executed" or "failed".
func RecordIntervention(interventionType, status string) {
	interventionsTotal.WithLabelValues(interventionType, status).Inc()
}

// RecordInterventionSuppressed records a daily-cap suppression.
func RecordInterventionSuppressed() {
	interventionsSuppressed.Inc()
}

// RecordStreamingPass records a completed streaming pass.
//
// Inputs:
//
//	durationSec - Duration in seconds.
//	failures - Number of users whose run failed in this pass.
func RecordStreamingPass(durationSec float64, failures int) {
	streamingPassDuration.Observe(durationSec)
	streamingUserFailures.Add(float64(failures))
}

// RecordReportGenerated records a generated report.
//
// Inputs:
//
//	kind - "employee" or "org".
func RecordReportGenerated(kind string) {
	reportsGenerated.WithLabelValues(kind).Inc()
}

// WebsocketClientConnected increments the live-feed subscriber gauge.
func WebsocketClientConnected() {
	websocketClients.Inc()
}

// WebsocketClientDisconnected decrements the live-feed subscriber gauge.
func WebsocketClientDisconnected() {
	websocketClients.Dec()
}
