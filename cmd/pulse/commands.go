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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	cfgPath string
	apiURL  string

	assessDate       string
	historyDays      int
	historyLimit     int
	watchInterval    int
	checkinSleep     float64
	checkinWork      float64
	checkinMeetings  int
	checkinMood      int
	checkinStress    int
	checkinEnergy    int
	checkinNotes     string
	statusShowHist   bool
	forecastVerbose  bool
	interventionsRaw bool

	rootCmd = &cobra.Command{
		Use:   "pulse",
		Short: "A cli to run and operate the workforce stability sentinel",
		Long: `Pulse manages the sentinel burnout-risk service: run it with
				'pulse serve', then assess workers, inspect stability and
				forecasts, record check-ins, and watch the live dashboard.`,
	}

	// --- Service ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the sentinel service (HTTP API, scheduler, websocket feed)",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Assessment ---
	assessCmd = &cobra.Command{
		Use:   "assess [user_id]",
		Short: "Run the full pipeline for a worker right now",
		Args:  cobra.ExactArgs(1),
		Run:   runAssess, // Defined in cmd_client.go
	}
	statusCmd = &cobra.Command{
		Use:   "status [user_id]",
		Short: "Show a worker's latest stability assessment",
		Args:  cobra.ExactArgs(1),
		Run:   runStatus, // Defined in cmd_client.go
	}
	forecastCmd = &cobra.Command{
		Use:   "forecast [user_id]",
		Short: "Show a worker's current burnout forecast",
		Args:  cobra.ExactArgs(1),
		Run:   runForecast, // Defined in cmd_client.go
	}
	interventionsCmd = &cobra.Command{
		Use:   "interventions [user_id]",
		Short: "List a worker's recent interventions",
		Args:  cobra.ExactArgs(1),
		Run:   runInterventions, // Defined in cmd_client.go
	}

	// --- Data Entry ---
	checkinCmd = &cobra.Command{
		Use:   "checkin [user_id]",
		Short: "Record a daily self-report check-in for a worker",
		Args:  cobra.ExactArgs(1),
		Run:   runCheckin, // Defined in cmd_client.go
	}

	// --- Deployment ---
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show deployment-wide totals and the 7-day organization stability",
		Run:   runStats, // Defined in cmd_client.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Live terminal dashboard of every monitored worker",
		Run:   runWatch, // Defined in cmd_watch.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the pulse version",
		Run:   runVersion, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Path to a YAML config file (default: embedded defaults + PULSE_* env)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "",
		"Base URL of a running sentinel (default: derived from config addr)")

	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(assessCmd)
	assessCmd.Flags().StringVar(&assessDate, "date", "",
		"Assessment day, YYYY-MM-DD (default: today)")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusShowHist, "history", false,
		"Also list the stability history window")
	statusCmd.Flags().IntVar(&historyDays, "days", 30,
		"History window in days (with --history)")

	rootCmd.AddCommand(forecastCmd)
	forecastCmd.Flags().BoolVar(&forecastVerbose, "points", false,
		"Print every forecast point, not just the summary")

	rootCmd.AddCommand(interventionsCmd)
	interventionsCmd.Flags().IntVar(&historyDays, "days", 30,
		"History window in days")
	interventionsCmd.Flags().IntVar(&historyLimit, "limit", 50,
		"Maximum interventions to list")
	interventionsCmd.Flags().BoolVar(&interventionsRaw, "json", false,
		"Emit raw JSON instead of the table")

	rootCmd.AddCommand(checkinCmd)
	checkinCmd.Flags().Float64Var(&checkinSleep, "sleep", 7,
		"Hours slept last night")
	checkinCmd.Flags().Float64Var(&checkinWork, "work-hours", 8,
		"Planned work hours today")
	checkinCmd.Flags().IntVar(&checkinMeetings, "meetings", 0,
		"Expected meeting count today")
	checkinCmd.Flags().IntVar(&checkinMood, "mood", 5,
		"Mood score, 1-10")
	checkinCmd.Flags().IntVar(&checkinStress, "stress", 5,
		"Stress level, 1-10")
	checkinCmd.Flags().IntVar(&checkinEnergy, "energy", 5,
		"Energy level, 1-10")
	checkinCmd.Flags().StringVar(&checkinNotes, "notes", "",
		"Free-form notes")

	rootCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchInterval, "interval", 5,
		"Dashboard refresh interval in seconds")

	rootCmd.AddCommand(versionCmd)
}
