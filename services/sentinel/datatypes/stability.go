// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"
)

// BaselineSnapshot captures the per-user rolling statistics the detectors
// compare a day's features against.
//
// MeanStability is 1 - mean(InstabilityIndex) over the window, so a
// perfectly calm week reads 1.0. Std fields are population standard
// deviations. A snapshot requires at least 3 feature days; the builder
// persists one per successful pipeline run.
type BaselineSnapshot struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	WindowDays  int       `json:"window_days"`
	SampleCount int       `json:"sample_count"`

	MeanStability float64 `json:"mean_stability"`
	StdStability  float64 `json:"std_stability"`

	MeanVolatility float64 `json:"mean_volatility"`
	StdVolatility  float64 `json:"std_volatility"`

	MeanWorkHours     float64 `json:"mean_work_hours"`
	MeanMeetingHours  float64 `json:"mean_meeting_hours"`
	MeanTaskSwitching float64 `json:"mean_task_switching"`
	MeanSleepHours    float64 `json:"mean_sleep_hours"`
	MeanFocusBlock    float64 `json:"mean_focus_block"`
	MeanRecoveryGap   float64 `json:"mean_recovery_gap"`
	MeanErrorRate     float64 `json:"mean_error_rate"`
	MeanOutputScore   float64 `json:"mean_output_score"`

	CreatedAt time.Time `json:"created_at"`
}

// StabilityAssessment is the assessor's verdict for one worker-day.
//
// Description:
//
//	RiskProbability composes the day's InstabilityIndex with detector
//	boosts and additive recovery/error terms, clipped to [0,1].
//	RiskLevel classifies it against the ordered threshold table.
//	StabilityIndex is 1 - InstabilityIndex.
//
// Score Channels:
//
//	BehavioralScore always equals RiskProbability today. EmotionalScore,
//	SelfReportScore, and HybridScore are reserved for the signal-fusion
//	extension point (see the signals package); they persist as null until
//	an external provider is wired.
type StabilityAssessment struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AssessmentDate time.Time `json:"assessment_date"`

	StabilityIndex  float64   `json:"stability_index"`
	Volatility      float64   `json:"volatility"`
	Acceleration    float64   `json:"acceleration"`
	RiskProbability float64   `json:"risk_probability"`
	RiskLevel       RiskLevel `json:"risk_level"`

	TopContributors []string `json:"top_contributors"`

	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`

	IsChangePoint          bool    `json:"is_change_point"`
	ChangePointProbability float64 `json:"change_point_probability"`

	BaselineDeviation   float64    `json:"baseline_deviation"`
	BaselineWindowStart *time.Time `json:"baseline_window_start,omitempty"`
	BaselineWindowEnd   *time.Time `json:"baseline_window_end,omitempty"`

	BehavioralScore float64  `json:"behavioral_score"`
	EmotionalScore  *float64 `json:"emotional_score,omitempty"`
	SelfReportScore *float64 `json:"self_report_score,omitempty"`
	HybridScore     *float64 `json:"hybrid_score,omitempty"`

	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}
