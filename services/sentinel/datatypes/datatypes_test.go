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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRiskLevel_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		level RiskLevel
		want  bool
	}{
		{"low", RiskLow, true},
		{"moderate", RiskModerate, true},
		{"high", RiskHigh, true},
		{"critical", RiskCritical, true},
		{"empty", RiskLevel(""), false},
		{"unknown", RiskLevel("severe"), false},
		{"case sensitive", RiskLevel("LOW"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskLevel_Severity(t *testing.T) {
	tests := []struct {
		name  string
		level RiskLevel
		want  int
	}{
		{"low", RiskLow, 0},
		{"moderate", RiskModerate, 1},
		{"high", RiskHigh, 2},
		{"critical", RiskCritical, 3},
		{"unknown", RiskLevel("bogus"), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.Severity(); got != tt.want {
				t.Errorf("Severity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRiskLevel_Severity_Ordering(t *testing.T) {
	// Severity must be monotone in risk so handlers can compare levels.
	if !(RiskLow.Severity() < RiskModerate.Severity() &&
		RiskModerate.Severity() < RiskHigh.Severity() &&
		RiskHigh.Severity() < RiskCritical.Severity()) {
		t.Error("severity ordering violated")
	}
}

func TestEventType_IsValid(t *testing.T) {
	valid := []EventType{EventMeeting, EventFocus, EventBreak, EventOther}
	for _, et := range valid {
		if !et.IsValid() {
			t.Errorf("expected %q to be valid", et)
		}
	}
	if EventType("standup").IsValid() {
		t.Error("expected unregistered event type to be invalid")
	}
}

func TestDataSource_IsValid(t *testing.T) {
	if !SourceCalendar.IsValid() || !SourceHybrid.IsValid() {
		t.Error("expected registered sources to be valid")
	}
	if DataSource("wearable").IsValid() {
		t.Error("expected unregistered source to be invalid")
	}
}

func TestModelType_IsValid(t *testing.T) {
	valid := []ModelType{ModelTrend, ModelSequence, ModelEnsemble}
	for _, mt := range valid {
		if !mt.IsValid() {
			t.Errorf("expected %q to be valid", mt)
		}
	}
	if ModelType("lstm").IsValid() {
		t.Error("expected unregistered model type to be invalid")
	}
}

func TestDay_TruncatesToMidnightUTC(t *testing.T) {
	in := time.Date(2025, 3, 14, 15, 9, 26, 535897, time.UTC)
	got := Day(in)
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}

func TestDay_NormalizesZone(t *testing.T) {
	// 23:30 EST on Jan 1 is 04:30 UTC on Jan 2; the day key follows UTC.
	est := time.FixedZone("EST", -5*3600)
	in := time.Date(2025, 1, 1, 23, 30, 0, 0, est)
	got := Day(in)
	want := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}

func TestSameDay(t *testing.T) {
	base := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a    time.Time
		b    time.Time
		want bool
	}{
		{"same instant", base, base, true},
		{"same day different hour", base, base.Add(10 * time.Hour), true},
		{"adjacent days", base, base.Add(24 * time.Hour), false},
		{"just before midnight vs just after", base.Add(15*time.Hour + 59*time.Minute), base.Add(16 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameDay(tt.a, tt.b); got != tt.want {
				t.Errorf("SameDay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBehavioralFeatures_Vector(t *testing.T) {
	f := BehavioralFeatures{
		TotalWorkHours:              9.5,
		MeetingHours:                4.0,
		MeetingCount:                6,
		TaskSwitchingRate:           3.2,
		SleepHours:                  6.5,
		LongestFocusBlockMinutes:    45,
		ErrorRate:                   0.08,
		InstabilityIndex:            0.42,
		ProductivityVolatilityIndex: 0.3,
		RecoveryDeficitScore:        0.55,
	}

	v := f.Vector()
	if len(v) != 10 {
		t.Fatalf("Vector() length = %d, want 10", len(v))
	}

	want := []float64{9.5, 4.0, 6, 3.2, 6.5, 45, 8.0, 0.42, 0.3, 0.55}
	for i := range want {
		if v[i] != want[i] {
			t.Errorf("Vector()[%d] = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestBurnoutForecast_JSONOmitsEmptyTipping(t *testing.T) {
	f := BurnoutForecast{
		ID:          "f1",
		UserID:      "u1",
		HorizonDays: 7,
		ModelType:   ModelTrend,
	}

	data, err := json.Marshal(&f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "tipping_point_date") {
		t.Error("expected tipping_point_date omitted when nil")
	}
	if strings.Contains(string(data), "tipping_point_probability") {
		t.Error("expected tipping_point_probability omitted when nil")
	}
}
