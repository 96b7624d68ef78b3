// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the Sentinel HTTP API.
//
// Every handler is a factory taking its collaborators and returning a
// gin.HandlerFunc, so the service assembly decides the wiring and the
// tests can hand in fakes. Handlers translate between HTTP and the
// pipeline; they hold no business logic of their own.
//
// Error envelope: failures respond {"error": "..."} with a conventional
// status code. Insufficient data is not a failure: endpoints reading
// latest state return 404 when nothing has been computed yet, and the
// assess-now endpoint reports a cap-suppressed decision as a 200 with
// intervention null and suppressed true.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/pipeline"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/storage/badger"
)

// ============================================================================
// Constants
// ============================================================================

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365

	defaultInterventionLimit = 50
	maxInterventionLimit     = 500

	statsWindow    = 24 * time.Hour
	orgStatsWindow = 7 * 24 * time.Hour
)

// ============================================================================
// Interfaces
// ============================================================================

// Store is the persistence surface the read and ingest endpoints use.
// The Badger store satisfies it.
type Store interface {
	PutUser(ctx context.Context, u datatypes.User) error
	ListUsers(ctx context.Context, activeOnly bool) ([]datatypes.User, error)
	PutCalendarEvents(ctx context.Context, events []datatypes.CalendarEvent) error
	PutCheckIn(ctx context.Context, c datatypes.DailyCheckIn) error
	LatestAssessment(ctx context.Context, userID string) (datatypes.StabilityAssessment, bool, error)
	AssessmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]datatypes.StabilityAssessment, error)
	AssessmentsSince(ctx context.Context, since time.Time) ([]datatypes.StabilityAssessment, error)
	LatestForecast(ctx context.Context, userID string) (datatypes.BurnoutForecast, bool, error)
	GetIntervention(ctx context.Context, id string) (datatypes.Intervention, bool, error)
	InterventionHistory(ctx context.Context, userID string, since time.Time, limit int) ([]datatypes.Intervention, error)
}

// AssessRunner executes the full pipeline for one user-day on demand.
// *pipeline.Runner satisfies it.
type AssessRunner interface {
	RunUser(ctx context.Context, userID string, date time.Time) (pipeline.RunResult, error)
}

// OutcomeRecorder fills an intervention's post metrics from a follow-up
// assessment. *decision.Engine satisfies it.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, interventionID string, post datatypes.StabilityAssessment) (datatypes.Intervention, bool, error)
}

// ============================================================================
// Health
// ============================================================================

// Health reports liveness plus the running version.
func Health(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "sentinel",
			"version": version,
		})
	}
}

// ============================================================================
// Assessment
// ============================================================================

// AssessUser runs the pipeline for one user immediately.
//
// # Description
//
// POST /assess/:user_id with an optional ?date=YYYY-MM-DD (defaults to
// today). The response carries every stage product; forecast and
// intervention are null when their stage had too little data or nothing
// to do. A decision suppressed by the daily cap is still a 200, with
// suppressed true, so callers can tell "no action needed" from "action
// withheld".
func AssessUser(runner AssessRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		date := time.Now().UTC()
		if raw := c.Query("date"); raw != "" {
			parsed, err := time.Parse(datatypes.DayKey, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = parsed
		}

		res, err := runner.RunUser(c.Request.Context(), userID, date)
		if err != nil {
			if errors.Is(err, badger.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"assessment":   res.Assessment,
			"forecast":     res.Forecast,
			"intervention": res.Intervention,
			"suppressed":   res.Suppressed,
		})
	}
}

// CurrentStability returns the user's most recent assessment, 404 until
// the first pipeline run lands.
func CurrentStability(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		a, found, err := store.LatestAssessment(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no assessment for user"})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// StabilityHistory returns the user's assessments over the last ?days=
// (default 30, capped at 365), ascending by day.
func StabilityHistory(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		days, ok := queryDays(c, defaultHistoryDays)
		if !ok {
			return
		}

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -days)
		assessments, err := store.AssessmentsInRange(c.Request.Context(), userID, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id":     userID,
			"days":        days,
			"count":       len(assessments),
			"assessments": assessments,
		})
	}
}

// ============================================================================
// Forecast
// ============================================================================

// CurrentForecast returns the user's most recent forecast, 404 until
// enough history has accumulated for one to be generated.
func CurrentForecast(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		f, found, err := store.LatestForecast(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no forecast for user"})
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

// ============================================================================
// Interventions
// ============================================================================

// InterventionHistory returns the user's interventions over the last
// ?days= (default 30), newest first, at most ?limit= (default 50).
func InterventionHistory(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		days, ok := queryDays(c, defaultHistoryDays)
		if !ok {
			return
		}

		limit := defaultInterventionLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxInterventionLimit {
			limit = maxInterventionLimit
		}

		since := time.Now().UTC().AddDate(0, 0, -days)
		interventions, err := store.InterventionHistory(c.Request.Context(), userID, since, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user_id":       userID,
			"days":          days,
			"count":         len(interventions),
			"interventions": interventions,
		})
	}
}

// RecordInterventionOutcome measures an intervention against the user's
// latest assessment.
//
// # Description
//
// POST /interventions/:id/outcome looks up the intervention, takes the
// user's most recent assessment as the post-intervention state, and asks
// the decision engine to fill the post metrics and effectiveness score.
// 404 when the intervention does not exist; 409 when the user has no
// assessment to measure against.
func RecordInterventionOutcome(store Store, recorder OutcomeRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		iv, found, err := store.GetIntervention(ctx, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "intervention not found"})
			return
		}

		post, haveAssessment, err := store.LatestAssessment(ctx, iv.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !haveAssessment {
			c.JSON(http.StatusConflict, gin.H{"error": "no follow-up assessment to measure against"})
			return
		}

		updated, found, err := recorder.RecordOutcome(ctx, id, post)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "intervention not found"})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// ============================================================================
// Ingest
// ============================================================================

// CreateCheckIn stores a worker's daily self-report.
//
// Validation runs through the binding tags on DailyCheckIn; the server
// assigns the ID, defaults the check-in date to today, and stamps
// CreatedAt.
func CreateCheckIn(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var checkin datatypes.DailyCheckIn
		if err := c.ShouldBindJSON(&checkin); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		checkin.ID = uuid.NewString()
		if checkin.CheckinDate.IsZero() {
			checkin.CheckinDate = datatypes.Day(time.Now().UTC())
		}
		checkin.CreatedAt = time.Now().UTC()

		if err := store.PutCheckIn(c.Request.Context(), checkin); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, checkin)
	}
}

type ingestEventsRequest struct {
	Events []datatypes.CalendarEvent `json:"events" binding:"required,min=1,dive"`
}

// IngestEvents stores a batch of calendar events.
//
// Each event gets a server-assigned ID when missing, a duration derived
// from its start/end when zero, and a freshly derived after-hours flag;
// the client's flag is never trusted. Events ending before they start
// fail the batch.
func IngestEvents(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		for i := range req.Events {
			ev := &req.Events[i]
			if !ev.EndTime.After(ev.StartTime) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "event end_time must be after start_time"})
				return
			}
			if ev.ID == "" {
				ev.ID = uuid.NewString()
			}
			if ev.DurationMinutes <= 0 {
				ev.DurationMinutes = ev.EndTime.Sub(ev.StartTime).Minutes()
			}
			if ev.EventType == "" {
				ev.EventType = datatypes.EventMeeting
			} else if !ev.EventType.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event_type " + strconv.Quote(string(ev.EventType))})
				return
			}
			ev.IsAfterHours = isAfterHours(ev.StartTime)
		}

		if err := store.PutCalendarEvents(c.Request.Context(), req.Events); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ingested": len(req.Events)})
	}
}

// isAfterHours classifies a start before 08:00 or at/after 18:00 local to
// the event's own timezone as outside working hours.
func isAfterHours(start time.Time) bool {
	h := start.Hour()
	return h < 8 || h >= 18
}

// ============================================================================
// Users
// ============================================================================

type createUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	FullName   string `json:"full_name" binding:"required"`
	EmployeeID string `json:"employee_id"`
	Role       string `json:"role"`
	Department string `json:"department"`
	ManagerID  string `json:"manager_id"`
	// Active defaults to true when omitted; monitoring opt-out is explicit.
	Active *bool `json:"active"`
}

// CreateUser registers a worker for monitoring.
func CreateUser(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}
		user := datatypes.User{
			ID:         uuid.NewString(),
			Email:      req.Email,
			FullName:   req.FullName,
			EmployeeID: req.EmployeeID,
			Role:       req.Role,
			Department: req.Department,
			ManagerID:  req.ManagerID,
			Active:     active,
			CreatedAt:  time.Now().UTC(),
		}

		if err := store.PutUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// ListUsers returns registered workers; ?active=true narrows to those
// currently monitored.
func ListUsers(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"

		users, err := store.ListUsers(c.Request.Context(), activeOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count": len(users),
			"users": users,
		})
	}
}

// ============================================================================
// Stats
// ============================================================================

// Stats summarizes the deployment: user totals, assessment volume and
// high-risk workers over the last 24 hours, and the 7-day organization
// stability average.
//
// A worker counts as high-risk when their newest assessment inside the
// 24-hour window classifies high or critical; older assessments for the
// same worker are superseded, not double-counted.
func Stats(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now().UTC()

		users, err := store.ListUsers(ctx, false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		active := 0
		for _, u := range users {
			if u.Active {
				active++
			}
		}

		day, err := store.AssessmentsSince(ctx, now.Add(-statsWindow))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		newest := make(map[string]datatypes.StabilityAssessment, len(day))
		for _, a := range day {
			if prev, seen := newest[a.UserID]; !seen || a.AssessmentDate.After(prev.AssessmentDate) {
				newest[a.UserID] = a
			}
		}
		highRisk := 0
		for _, a := range newest {
			if a.RiskLevel == datatypes.RiskHigh || a.RiskLevel == datatypes.RiskCritical {
				highRisk++
			}
		}

		week, err := store.AssessmentsSince(ctx, now.Add(-orgStatsWindow))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		orgStability := 0.0
		if len(week) > 0 {
			sum := 0.0
			for _, a := range week {
				sum += a.StabilityIndex
			}
			orgStability = sum / float64(len(week))
		}

		c.JSON(http.StatusOK, gin.H{
			"total_users":         len(users),
			"active_users":        active,
			"assessments_24h":     len(day),
			"high_risk_users_24h": highRisk,
			"org_stability_7d":    orgStability,
		})
	}
}

// ============================================================================
// Helpers
// ============================================================================

// queryDays parses ?days=, defaulting when absent and capping at one
// year. On a malformed value it writes the 400 itself and reports false.
func queryDays(c *gin.Context, fallback int) (int, bool) {
	days := fallback
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return 0, false
		}
		days = parsed
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	return days, true
}
