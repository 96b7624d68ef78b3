// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides type definitions for the Pulse sentinel
// service: enums, domain records, and the intervention action union shared
// by the pipeline stages, the storage layer, and the HTTP surface.
package datatypes

import (
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// RiskLevel classifies a risk probability into an operational band.
//
// Description:
//
//	RiskLevel is derived from RiskProbability by scanning the configured
//	threshold table from the highest threshold down. The bands drive
//	intervention selection: critical alerts a manager, high suggests
//	workload redistribution, moderate inserts a focus buffer, low does
//	nothing.
//
// Valid Values:
//   - "low": below the buffer threshold
//   - "moderate": at or above the buffer threshold (default 0.60)
//   - "high": at or above the redistribute threshold (default 0.75)
//   - "critical": at or above the alert threshold (default 0.85)
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// validRiskLevels contains all valid RiskLevel values for validation.
var validRiskLevels = map[RiskLevel]bool{
	RiskLow:      true,
	RiskModerate: true,
	RiskHigh:     true,
	RiskCritical: true,
}

// IsValid returns true if the RiskLevel is one of the defined constants.
func (r RiskLevel) IsValid() bool {
	return validRiskLevels[r]
}

// Severity returns an ordering rank: low=0, moderate=1, high=2,
// critical=3, unknown=-1. Used for "at least high" style comparisons.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 0
	case RiskModerate:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// DataSource records which inputs fed a day's features.
//
// Valid Values:
//   - "calendar": calendar events only
//   - "hybrid": calendar events plus a daily check-in
type DataSource string

const (
	SourceCalendar DataSource = "calendar"
	SourceHybrid   DataSource = "hybrid"
)

// IsValid returns true if the DataSource is a defined constant.
func (d DataSource) IsValid() bool {
	return d == SourceCalendar || d == SourceHybrid
}

// EventType categorizes a calendar event.
//
// Valid Values:
//   - "meeting": scheduled meeting; the only type feeding meeting metrics
//   - "focus": blocked focus time
//   - "break": rest block
//   - "other": anything else
type EventType string

const (
	EventMeeting EventType = "meeting"
	EventFocus   EventType = "focus"
	EventBreak   EventType = "break"
	EventOther   EventType = "other"
)

// validEventTypes contains all valid EventType values.
var validEventTypes = map[EventType]bool{
	EventMeeting: true,
	EventFocus:   true,
	EventBreak:   true,
	EventOther:   true,
}

// IsValid returns true if the EventType is a defined constant.
func (e EventType) IsValid() bool {
	return validEventTypes[e]
}

// ModelType records which forecasting path produced a forecast.
//
// Valid Values:
//   - "trend": trend+seasonality model only
//   - "sequence": sequence model only
//   - "ensemble": weighted combination of both
type ModelType string

const (
	ModelTrend    ModelType = "trend"
	ModelSequence ModelType = "sequence"
	ModelEnsemble ModelType = "ensemble"
)

// IsValid returns true if the ModelType is a defined constant.
func (m ModelType) IsValid() bool {
	return m == ModelTrend || m == ModelSequence || m == ModelEnsemble
}

// =============================================================================
// Day Handling
// =============================================================================

// DayKey is the canonical storage/date-math format for assessment days.
const DayKey = "2006-01-02"

// Day truncates t to midnight UTC. All per-day records (features,
// assessments, intervention day counts) key on this.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two instants fall on the same UTC day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
