// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the per-user assessment run and its
// schedules.
//
// A run is strictly sequential: features, baseline, assessment, forecast,
// decision. Early stages can report "not enough data yet" without stopping
// the run; computation and storage failures stop it. The scheduler drives
// runs for every active worker on a fixed interval and owns the daily
// digest and baseline-rebuild cron jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/baseline"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/decision"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
)

var runTracer = otel.Tracer("aleutian.pulse.pipeline")

// ============================================================================
// Interfaces
// ============================================================================

// Store is the persistence surface the pipeline reads from and writes to.
// The Badger store satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (datatypes.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]datatypes.User, error)
	EventsForDay(ctx context.Context, userID string, day time.Time) ([]datatypes.CalendarEvent, error)
	CheckInForDay(ctx context.Context, userID string, day time.Time) (datatypes.DailyCheckIn, bool, error)
	PutFeatures(ctx context.Context, f datatypes.BehavioralFeatures) error
	AssessmentsSince(ctx context.Context, since time.Time) ([]datatypes.StabilityAssessment, error)
}

// FeatureEngine derives one day of behavioral features.
type FeatureEngine interface {
	Compute(user datatypes.User, date time.Time, events []datatypes.CalendarEvent, checkin *datatypes.DailyCheckIn) datatypes.BehavioralFeatures
}

// BaselineBuilder assembles and persists the rolling baseline window.
type BaselineBuilder interface {
	Build(ctx context.Context, userID string, date time.Time, windowDays int) (baseline.Window, bool, error)
}

// Assessor produces and persists the day's risk assessment.
type Assessor interface {
	Assess(ctx context.Context, current datatypes.BehavioralFeatures, snap *datatypes.BaselineSnapshot, records []datatypes.BehavioralFeatures) (datatypes.StabilityAssessment, error)
}

// Forecaster projects the user's risk trajectory.
type Forecaster interface {
	Generate(ctx context.Context, userID string, date time.Time) (datatypes.BurnoutForecast, bool, error)
}

// Decider selects and executes interventions.
type Decider interface {
	Decide(ctx context.Context, assessment datatypes.StabilityAssessment, forecast *datatypes.BurnoutForecast) (datatypes.Intervention, bool, error)
}

// AssessmentExporter ships finished assessments to an external time-series
// target. Export failures are logged, never fatal.
type AssessmentExporter interface {
	ExportAssessment(ctx context.Context, a datatypes.StabilityAssessment) error
}

// Broadcaster pushes finished assessments and decided interventions to
// live subscribers.
type Broadcaster interface {
	BroadcastAssessment(a datatypes.StabilityAssessment)
	BroadcastIntervention(iv datatypes.Intervention)
}

// ============================================================================
// Runner
// ============================================================================

// RunResult is everything one pipeline run produced. Forecast and
// Intervention are nil when their stage had too little data or nothing to
// do; Suppressed marks a decision blocked by the daily cap.
type RunResult struct {
	Features     datatypes.BehavioralFeatures
	Assessment   datatypes.StabilityAssessment
	Forecast     *datatypes.BurnoutForecast
	Intervention *datatypes.Intervention
	Suppressed   bool
}

// RunnerOptions wires a Runner. Exporter and Broadcaster are optional; a
// nil Log falls back to slog.Default().
type RunnerOptions struct {
	Store       Store
	Features    FeatureEngine
	Baseline    BaselineBuilder
	Assessor    Assessor
	Forecaster  Forecaster
	Decider     Decider
	Exporter    AssessmentExporter
	Broadcaster Broadcaster
	WindowDays  int
	Log         *slog.Logger
}

// Runner executes the assessment pipeline for one user-day at a time.
//
// # Thread Safety
//
// Safe for concurrent use across distinct users. Two concurrent runs for
// the same user-day race benignly: features upsert by day key and the
// later assessment simply supersedes the earlier one.
type Runner struct {
	store       Store
	features    FeatureEngine
	baseline    BaselineBuilder
	assessor    Assessor
	forecaster  Forecaster
	decider     Decider
	exporter    AssessmentExporter
	broadcaster Broadcaster
	windowDays  int
	log         *slog.Logger
}

// NewRunner assembles a Runner from its stages.
func NewRunner(opts RunnerOptions) *Runner {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:       opts.Store,
		features:    opts.Features,
		baseline:    opts.Baseline,
		assessor:    opts.Assessor,
		forecaster:  opts.Forecaster,
		decider:     opts.Decider,
		exporter:    opts.Exporter,
		broadcaster: opts.Broadcaster,
		windowDays:  opts.WindowDays,
		log:         log,
	}
}

// RunUser executes the full pipeline for one user-day.
//
// # Description
//
// Stages run in order: features, baseline, assessment, forecast, decision.
// The context flows into storage and delivery calls but the run never
// aborts between stages once started. Insufficient data downgrades a stage
// to "absent" and the run continues; a storage or computation failure
// stops it. A cap-suppressed decision is a success with Suppressed set.
//
// # Inputs
//
//   - ctx: propagated to storage, notifier, and export calls
//   - userID: the worker to assess
//   - date: any time within the day to assess; normalized internally
//
// # Outputs
//
//   - RunResult: per-stage products, nil where a stage was absent
//   - error: first stage failure, wrapped with the stage name
func (r *Runner) RunUser(ctx context.Context, userID string, date time.Time) (RunResult, error) {
	start := time.Now()
	res, err := r.run(ctx, userID, date)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordPipelineRun(status, time.Since(start).Seconds())
	return res, err
}

func (r *Runner) run(ctx context.Context, userID string, date time.Time) (RunResult, error) {
	ctx, span := runTracer.Start(ctx, "Runner.RunUser")
	defer span.End()

	day := datatypes.Day(date)
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("run.day", day.Format("2006-01-02")),
	)

	// Step 1: Load the user and the day's raw signals.
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return r.fail(span, fmt.Errorf("load user %s: %w", userID, err))
	}
	events, err := r.store.EventsForDay(ctx, userID, day)
	if err != nil {
		return r.fail(span, fmt.Errorf("load events for %s: %w", userID, err))
	}
	checkin, haveCheckin, err := r.store.CheckInForDay(ctx, userID, day)
	if err != nil {
		return r.fail(span, fmt.Errorf("load checkin for %s: %w", userID, err))
	}
	var checkinPtr *datatypes.DailyCheckIn
	if haveCheckin {
		checkinPtr = &checkin
	}

	// Step 2: Derive and persist features.
	feats := r.features.Compute(user, day, events, checkinPtr)
	if err := r.store.PutFeatures(ctx, feats); err != nil {
		return r.fail(span, fmt.Errorf("persist features for %s: %w", userID, err))
	}
	res := RunResult{Features: feats}

	// Step 3: Build the baseline window.
	window, haveBaseline, err := r.baseline.Build(ctx, userID, day, r.windowDays)
	if err != nil {
		return r.fail(span, fmt.Errorf("build baseline for %s: %w", userID, err))
	}
	span.SetAttributes(attribute.Bool("baseline.present", haveBaseline))

	var snap *datatypes.BaselineSnapshot
	var records []datatypes.BehavioralFeatures
	if haveBaseline {
		snap = &window.Snapshot
		records = window.Records
	}

	// Step 4: Assess.
	assessment, err := r.assessor.Assess(ctx, feats, snap, records)
	if err != nil {
		return r.fail(span, fmt.Errorf("assess %s: %w", userID, err))
	}
	res.Assessment = assessment
	span.SetAttributes(
		attribute.String("risk.level", string(assessment.RiskLevel)),
		attribute.Float64("risk.probability", assessment.RiskProbability),
	)

	if r.broadcaster != nil {
		r.broadcaster.BroadcastAssessment(assessment)
	}
	if r.exporter != nil {
		if err := r.exporter.ExportAssessment(ctx, assessment); err != nil {
			r.log.Warn("Assessment export failed", "user_id", userID, "error", err)
		}
	}

	// Step 5: Forecast.
	forecast, haveForecast, err := r.forecaster.Generate(ctx, userID, day)
	if err != nil {
		return r.fail(span, fmt.Errorf("forecast %s: %w", userID, err))
	}
	if haveForecast {
		res.Forecast = &forecast
	}

	// Step 6: Decide.
	iv, haveIv, err := r.decider.Decide(ctx, assessment, res.Forecast)
	switch {
	case errors.Is(err, decision.ErrDailyCapReached):
		res.Suppressed = true
	case err != nil:
		return r.fail(span, fmt.Errorf("decide for %s: %w", userID, err))
	case haveIv:
		res.Intervention = &iv
		if r.broadcaster != nil {
			r.broadcaster.BroadcastIntervention(iv)
		}
	}

	r.log.Info("Pipeline run complete",
		"user_id", userID,
		"day", day.Format("2006-01-02"),
		"risk_level", assessment.RiskLevel,
		"baseline", haveBaseline,
		"forecast", haveForecast,
		"intervention", haveIv,
		"suppressed", res.Suppressed,
	)
	return res, nil
}

// fail records the failure on the span and returns it as the run error.
func (r *Runner) fail(span trace.Span, err error) (RunResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return RunResult{}, err
}
