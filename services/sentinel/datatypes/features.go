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

// =============================================================================
// Raw Inputs
// =============================================================================

// User is a monitored worker.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email" binding:"required,email"`
	FullName   string    `json:"full_name" binding:"required"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Department string    `json:"department,omitempty"`
	ManagerID  string    `json:"manager_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// CalendarEvent is one scheduled block on a worker's calendar.
//
// DurationMinutes is authoritative for workload math; StartTime/EndTime
// are used for day bucketing, after-hours classification, and gap
// computation. IsAfterHours is derived at ingest, not trusted from input.
type CalendarEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id" binding:"required"`
	Title           string    `json:"title,omitempty"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	DurationMinutes float64   `json:"duration_minutes"`
	EventType       EventType `json:"event_type"`
	AttendeeCount   int       `json:"attendee_count,omitempty"`
	IsRecurring     bool      `json:"is_recurring,omitempty"`
	IsAfterHours    bool      `json:"is_after_hours"`
}

// DailyCheckIn is a worker's optional self-report for one day. Scores are
// 1-10 scales.
type DailyCheckIn struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id" binding:"required"`
	CheckinDate          time.Time `json:"checkin_date"`
	SleepHours           float64   `json:"sleep_hours" binding:"min=0,max=24"`
	WorkHoursPlanned     float64   `json:"work_hours_planned" binding:"min=0,max=24"`
	MeetingCountExpected int       `json:"meeting_count_expected" binding:"min=0"`
	MoodScore            int       `json:"mood_score" binding:"min=1,max=10"`
	StressLevel          int       `json:"stress_level" binding:"min=1,max=10"`
	EnergyLevel          int       `json:"energy_level" binding:"min=1,max=10"`
	Notes                string    `json:"notes,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// =============================================================================
// Derived Features
// =============================================================================

// BehavioralFeatures holds one worker-day of derived behavioral signals.
//
// Description:
//
//	The feature engineering stage computes this record from the day's
//	calendar events plus an optional check-in. It is the sole input shape
//	for baselines, detectors, and the stability assessor. Re-deriving a
//	day replaces the stored record (upsert by user+date).
//
// Field Groups:
//   - Workload: hours, meeting load, switching, compression
//   - Recovery: sleep, focus blocks, gaps, HRV proxy
//   - Performance: error proxy, output, volatility
//   - Derived: density, load accumulation, recovery deficit, instability
//
// Invariants (clipped at derivation):
//   - ErrorRate in [0, 0.5]
//   - OutputScore in [40, 100]
//   - ProductivityVolatilityIndex in [0.05, 0.5]
//   - HRVariabilityIndex in [20, 100]
//   - InstabilityIndex and RecoveryDeficitScore in [0, 1]
type BehavioralFeatures struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	FeatureDate time.Time  `json:"feature_date"`
	DataSource  DataSource `json:"data_source"`

	// Workload
	TotalWorkHours           float64 `json:"total_work_hours"`
	MeetingHours             float64 `json:"meeting_hours"`
	MeetingCount             int     `json:"meeting_count"`
	AfterHoursWork           float64 `json:"after_hours_work"`
	TaskAssignedCount        int     `json:"task_assigned_count"`
	TaskCompletedCount       int     `json:"task_completed_count"`
	DeadlineCompressionRatio float64 `json:"deadline_compression_ratio"`
	TaskSwitchingRate        float64 `json:"task_switching_rate"`
	EmailVolume              int     `json:"email_volume"`
	SlackMessageCount        int     `json:"slack_message_count"`
	ResponseLatencyAvg       float64 `json:"response_latency_avg"`

	// Recovery
	LongestFocusBlockMinutes float64 `json:"longest_focus_block_minutes"`
	RecoveryGapMinutes       float64 `json:"recovery_gap_minutes"`
	WeekendWorkRatio         float64 `json:"weekend_work_ratio"`
	SleepHours               float64 `json:"sleep_hours"`
	SleepConsistencyScore    float64 `json:"sleep_consistency_score"`
	HRVariabilityIndex       float64 `json:"hr_variability_index"`

	// Performance
	ErrorRate                   float64 `json:"error_rate"`
	RevisionCount               int     `json:"revision_count"`
	DecisionReversalCount       int     `json:"decision_reversal_count"`
	OutputScore                 float64 `json:"output_score"`
	ProductivityVolatilityIndex float64 `json:"productivity_volatility_index"`

	// Derived composites
	MeetingDensityRatio    float64 `json:"meeting_density_ratio"`
	LoadAccumulationRate   float64 `json:"load_accumulation_rate"`
	RecoveryDeficitScore   float64 `json:"recovery_deficit_score"`
	InstabilityIndex       float64 `json:"instability_index"`
	VolatilityAcceleration float64 `json:"volatility_acceleration"`

	CreatedAt time.Time `json:"created_at"`
}

// Vector returns the 10-dimensional representation consumed by the
// anomaly detector. Order is part of the contract; changing it breaks
// comparability of stored anomaly scores.
func (f *BehavioralFeatures) Vector() []float64 {
	return []float64{
		f.TotalWorkHours,
		f.MeetingHours,
		float64(f.MeetingCount),
		f.TaskSwitchingRate,
		f.SleepHours,
		f.LongestFocusBlockMinutes,
		f.ErrorRate * 100,
		f.InstabilityIndex,
		f.ProductivityVolatilityIndex,
		f.RecoveryDeficitScore,
	}
}
