// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// =============================================================================
// Assessment Commands
// =============================================================================

func runAssess(cmd *cobra.Command, args []string) {
	userID := args[0]
	client := newAPIClient(apiBase())

	res, err := client.Assess(context.Background(), userID, assessDate)
	if err != nil {
		if errors.Is(err, errNotFound) {
			log.Fatalf("Unknown worker %q. Register them with POST /api/v1/users first.", userID)
		}
		log.Fatalf("Assessment failed: %v", err)
	}

	printAssessment(res.Assessment)

	if res.Forecast != nil {
		printForecastSummary(*res.Forecast)
	} else {
		fmt.Println("Forecast: not enough history yet")
	}

	switch {
	case res.Intervention != nil:
		iv := res.Intervention
		fmt.Printf("Intervention: %s (%s): %s\n", iv.Type, iv.Status, iv.ActionDescription)
	case res.Suppressed:
		fmt.Println("Intervention: withheld, daily cap reached")
	default:
		fmt.Println("Intervention: none needed")
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	userID := args[0]
	client := newAPIClient(apiBase())
	ctx := context.Background()

	assessment, err := client.CurrentStability(ctx, userID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			fmt.Printf("No assessment for %s yet. Run 'pulse assess %s' first.\n", userID, userID)
			return
		}
		log.Fatalf("Failed to load status: %v", err)
	}
	printAssessment(assessment)

	if !statusShowHist {
		return
	}
	hist, err := client.StabilityHistory(ctx, userID, historyDays)
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}
	fmt.Printf("\nHistory, last %d days (%d assessments):\n", hist.Days, hist.Count)
	for _, a := range hist.Assessments {
		fmt.Printf("  %s  risk %.2f (%s)  stability %.2f\n",
			a.AssessmentDate.Format(datatypes.DayKey), a.RiskProbability, a.RiskLevel, a.StabilityIndex)
	}
}

func runForecast(cmd *cobra.Command, args []string) {
	userID := args[0]
	client := newAPIClient(apiBase())

	forecast, err := client.CurrentForecast(context.Background(), userID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			fmt.Printf("No forecast for %s yet. Forecasts need several days of assessments.\n", userID)
			return
		}
		log.Fatalf("Failed to load forecast: %v", err)
	}

	printForecastSummary(forecast)
	if !forecastVerbose {
		return
	}
	for _, p := range forecast.Points {
		fmt.Printf("  %s  %.3f  [%.3f, %.3f]\n",
			p.Date.Format(datatypes.DayKey), p.Value, p.Lower, p.Upper)
	}
}

func runInterventions(cmd *cobra.Command, args []string) {
	userID := args[0]
	client := newAPIClient(apiBase())

	res, err := client.Interventions(context.Background(), userID, historyDays, historyLimit)
	if err != nil {
		log.Fatalf("Failed to load interventions: %v", err)
	}

	if interventionsRaw {
		payload, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode interventions: %v", err)
		}
		fmt.Println(string(payload))
		return
	}

	if res.Count == 0 {
		fmt.Printf("No interventions for %s in the last %d days.\n", userID, res.Days)
		return
	}
	fmt.Printf("Interventions for %s, last %d days (%d):\n", userID, res.Days, res.Count)
	for _, iv := range res.Interventions {
		effect := "-"
		if iv.EffectivenessScore != nil {
			effect = fmt.Sprintf("%+.2f", *iv.EffectivenessScore)
		}
		fmt.Printf("  %s  %-20s %-10s trigger %.2f (%s)  effect %s\n",
			iv.InterventionDate.Format(datatypes.DayKey), iv.Type, iv.Status,
			iv.TriggerRiskProbability, iv.TriggerRiskLevel, effect)
	}
}

// =============================================================================
// Data Entry Commands
// =============================================================================

func runCheckin(cmd *cobra.Command, args []string) {
	userID := args[0]
	client := newAPIClient(apiBase())

	stored, err := client.CreateCheckIn(context.Background(), datatypes.DailyCheckIn{
		UserID:               userID,
		SleepHours:           checkinSleep,
		WorkHoursPlanned:     checkinWork,
		MeetingCountExpected: checkinMeetings,
		MoodScore:            checkinMood,
		StressLevel:          checkinStress,
		EnergyLevel:          checkinEnergy,
		Notes:                checkinNotes,
	})
	if err != nil {
		log.Fatalf("Check-in failed: %v", err)
	}

	fmt.Printf("Check-in recorded for %s on %s (id %s)\n",
		stored.UserID, stored.CheckinDate.Format(datatypes.DayKey), stored.ID)
	fmt.Printf("  sleep %.1fh, planned work %.1fh, %d meetings, mood %d, stress %d, energy %d\n",
		stored.SleepHours, stored.WorkHoursPlanned, stored.MeetingCountExpected,
		stored.MoodScore, stored.StressLevel, stored.EnergyLevel)
}

// =============================================================================
// Deployment Commands
// =============================================================================

func runStats(cmd *cobra.Command, args []string) {
	client := newAPIClient(apiBase())

	stats, err := client.Stats(context.Background())
	if err != nil {
		log.Fatalf("Failed to load stats: %v", err)
	}

	fmt.Printf("Workers:            %d (%d active)\n", stats.TotalUsers, stats.ActiveUsers)
	fmt.Printf("Assessments (24h):  %d\n", stats.Assessments24h)
	fmt.Printf("High risk (24h):    %d\n", stats.HighRiskUsers24h)
	fmt.Printf("Org stability (7d): %.2f\n", stats.OrgStability7d)
}

// =============================================================================
// Shared Printers
// =============================================================================

func printAssessment(a datatypes.StabilityAssessment) {
	fmt.Printf("Assessment for %s on %s\n", a.UserID, a.AssessmentDate.Format(datatypes.DayKey))
	fmt.Printf("  risk:        %.2f (%s)\n", a.RiskProbability, a.RiskLevel)
	fmt.Printf("  stability:   %.2f\n", a.StabilityIndex)
	fmt.Printf("  volatility:  %.2f\n", a.Volatility)
	fmt.Printf("  anomaly:     %s\n", yesNo(a.IsAnomaly))
	fmt.Printf("  change:      %s\n", yesNo(a.IsChangePoint))
	if len(a.TopContributors) > 0 {
		fmt.Printf("  drivers:     %s\n", strings.Join(a.TopContributors, ", "))
	}
}

func printForecastSummary(f datatypes.BurnoutForecast) {
	fmt.Printf("Forecast (%s model, %d days, confidence %.2f): peak risk %.2f on %s\n",
		f.ModelType, f.HorizonDays, f.ConfidenceScore,
		f.PeakRiskProbability, f.PeakRiskDate.Format(datatypes.DayKey))
	if f.TippingPointDetected && f.TippingPointDate != nil && f.TippingPointProbability != nil {
		fmt.Printf("  tipping point: %s (probability %.2f)\n",
			f.TippingPointDate.Format(datatypes.DayKey), *f.TippingPointProbability)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
