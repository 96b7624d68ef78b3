// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package features turns one worker-day of raw signals (calendar events
// plus an optional check-in) into the BehavioralFeatures record every
// downstream detector consumes.
package features

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// Defaults used when a signal is absent for the day.
const (
	defaultSleepHours      = 7.5
	defaultFocusBlockMin   = 120.0
	defaultRecoveryGapMin  = 60.0
	baselineWorkdayHours   = 8.0
	calendarPaddingHours   = 2.0
	workdayStartHour       = 9
	workdayEndHour         = 18
	weekendWorkRatioActive = 0.3
)

// Engine computes behavioral features. Stateless; safe for concurrent use.
type Engine struct {
	log *slog.Logger
}

// NewEngine creates a feature engine. A nil logger uses slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// Compute derives the feature record for one user-day.
//
// # Description
//
// Only events with date ≤ StartTime < date+24h (UTC) contribute. A
// check-in upgrades the record to the hybrid source and replaces the
// calendar-derived estimates for planned hours, sleep, stress, and
// energy; without one, documented defaults keep every field populated
// so the detectors never see holes.
//
// # Inputs
//
//   - user: The worker the day belongs to.
//   - date: Any instant in the target day; truncated to midnight UTC.
//   - events: Calendar events, any order; out-of-day events are ignored.
//   - checkin: Optional self-reported check-in for the day; nil is valid.
//
// # Outputs
//
//   - datatypes.BehavioralFeatures: Fully populated record, all derived
//     indices clipped to their documented ranges.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *Engine) Compute(user datatypes.User, date time.Time, events []datatypes.CalendarEvent, checkin *datatypes.DailyCheckIn) datatypes.BehavioralFeatures {
	day := datatypes.Day(date)
	dayEnd := day.Add(24 * time.Hour)

	inDay := make([]datatypes.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if !ev.StartTime.Before(day) && ev.StartTime.Before(dayEnd) {
			inDay = append(inDay, ev)
		}
	}

	meetings := make([]datatypes.CalendarEvent, 0, len(inDay))
	var meetingMinutes, calendarMinutes, afterHoursMinutes float64
	for _, ev := range inDay {
		calendarMinutes += ev.DurationMinutes
		if ev.EventType == datatypes.EventMeeting {
			meetings = append(meetings, ev)
			meetingMinutes += ev.DurationMinutes
		}
		if ev.StartTime.Before(day.Add(workdayStartHour*time.Hour)) ||
			ev.EndTime.After(day.Add(workdayEndHour*time.Hour)) {
			afterHoursMinutes += ev.DurationMinutes
		}
	}

	meetingHours := meetingMinutes / 60
	calendarHours := calendarMinutes / 60
	meetingCount := len(meetings)

	totalWorkHours := math.Max(calendarHours+calendarPaddingHours, baselineWorkdayHours)
	if checkin != nil && checkin.WorkHoursPlanned > 0 {
		totalWorkHours = checkin.WorkHoursPlanned
	}

	afterHoursWork := afterHoursMinutes / 60
	taskSwitchingRate := float64(meetingCount) / math.Max(totalWorkHours, 1)
	deadlineCompression := math.Min(meetingHours/math.Max(totalWorkHours, 1), 1)

	sleepHours := defaultSleepHours
	sleepConsistency := 0.7
	if checkin != nil {
		sleepHours = checkin.SleepHours
		sleepConsistency = 0.8
	}

	gaps := meetingGapsMinutes(meetings)
	longestFocus := defaultFocusBlockMin
	recoveryGap := defaultRecoveryGapMin
	if len(gaps) > 0 {
		longestFocus = 0
		var sum float64
		for _, g := range gaps {
			if g > longestFocus {
				longestFocus = g
			}
			sum += g
		}
		recoveryGap = sum / float64(len(gaps))
	}

	weekendWorkRatio := 0.0
	if wd := day.Weekday(); (wd == time.Saturday || wd == time.Sunday) && totalWorkHours > 2 {
		weekendWorkRatio = weekendWorkRatioActive
	}

	hrvBase := 60.0
	if checkin != nil {
		hrvBase = 60 * (1 - float64(checkin.StressLevel)/10*0.3)
	}
	hrv := clamp(hrvBase+(sleepHours-defaultSleepHours)*5, 20, 100)

	fatigue := math.Max(0, defaultSleepHours-sleepHours) / 5
	errorRate := clamp(0.05*fatigue*(1+taskSwitchingRate/10), 0, 0.5)

	outputBase := 75.0
	if checkin != nil {
		outputBase = 80 * float64(checkin.EnergyLevel) / 10
	}
	outputScore := clamp(outputBase-fatigue*10-taskSwitchingRate*2, 40, 100)

	productivityVolatility := clamp(0.15+fatigue*0.1+taskSwitchingRate*0.02, 0.05, 0.5)
	meetingDensity := float64(meetingCount) / math.Max(totalWorkHours, 1)
	loadAccumulation := math.Max(0, (totalWorkHours-baselineWorkdayHours)/baselineWorkdayHours+afterHoursWork/baselineWorkdayHours)
	recoveryDeficit := (math.Max(0, defaultSleepHours-sleepHours)/defaultSleepHours +
		math.Max(0, 90-longestFocus)/90) / 2
	instability := clamp(
		taskSwitchingRate/10*0.3+recoveryDeficit*0.3+errorRate*10*0.2+meetingDensity*0.2,
		0, 1)

	source := datatypes.SourceCalendar
	if checkin != nil {
		source = datatypes.SourceHybrid
	}

	taskAssigned := 2 * meetingCount
	if checkin != nil {
		taskAssigned = 2 * checkin.MeetingCountExpected
	}

	return datatypes.BehavioralFeatures{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		FeatureDate: day,
		DataSource:  source,

		TotalWorkHours:           totalWorkHours,
		MeetingHours:             meetingHours,
		MeetingCount:             meetingCount,
		AfterHoursWork:           afterHoursWork,
		TaskAssignedCount:        taskAssigned,
		TaskCompletedCount:       int(math.Round(0.8 * float64(taskAssigned))),
		DeadlineCompressionRatio: deadlineCompression,
		TaskSwitchingRate:        taskSwitchingRate,
		EmailVolume:              7 * meetingCount,
		SlackMessageCount:        11 * meetingCount,
		ResponseLatencyAvg:       15 * (1 + deadlineCompression),

		LongestFocusBlockMinutes: longestFocus,
		RecoveryGapMinutes:       recoveryGap,
		WeekendWorkRatio:         weekendWorkRatio,
		SleepHours:               sleepHours,
		SleepConsistencyScore:    sleepConsistency,
		HRVariabilityIndex:       hrv,

		ErrorRate:                   errorRate,
		RevisionCount:               int(math.Round(errorRate * 20)),
		DecisionReversalCount:       int(errorRate * 10),
		OutputScore:                 outputScore,
		ProductivityVolatilityIndex: productivityVolatility,

		MeetingDensityRatio:    meetingDensity,
		LoadAccumulationRate:   loadAccumulation,
		RecoveryDeficitScore:   recoveryDeficit,
		InstabilityIndex:       instability,
		VolatilityAcceleration: productivityVolatility * loadAccumulation,

		CreatedAt: time.Now().UTC(),
	}
}

// meetingGapsMinutes returns the positive gaps between consecutive
// meetings, sorted by start time, in minutes.
func meetingGapsMinutes(meetings []datatypes.CalendarEvent) []float64 {
	if len(meetings) < 2 {
		return nil
	}
	sorted := make([]datatypes.CalendarEvent, len(meetings))
	copy(sorted, meetings)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].StartTime.Sub(sorted[i-1].EndTime).Minutes()
		if gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
