// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decision selects and executes interventions from finished risk
// assessments.
//
// The engine scans an ordered rule table: critical risk escalates to a
// manager alert, high risk proposes workload redistribution, moderate risk
// inserts a calendar buffer. A forecast tipping point can raise the
// effective risk above what today's assessment alone shows. A per-user
// daily cap bounds how many times the system may act on one person, and
// every attempt lands in the audit trail.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPulse/pkg/audit"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/alerts"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
)

// ============================================================================
// Constants
// ============================================================================

// Intervention reasons, verbatim in the persisted action and the alert body.
const (
	reasonCritical = "Critical burnout risk detected"
	reasonHigh     = "High burnout risk - workload redistribution recommended"
	reasonModerate = "Moderate burnout risk - focus buffer needed"
)

const (
	alertTypeManager = "manager"
	urgencyCritical  = "critical"

	// workloadReduction is the fraction of assigned work a redistribute
	// intervention proposes to move.
	workloadReduction = 0.3

	// tasksRedistributed is recorded until project-management integration
	// reports a real count.
	tasksRedistributed = 5

	// bufferLeadTime is how far after the assessment timestamp a focus
	// buffer starts.
	bufferLeadTime = 2 * time.Hour

	actorSystem = "system"
)

// ============================================================================
// Errors
// ============================================================================

// ErrDailyCapReached reports that the user already received the maximum
// number of interventions for the assessment day. It is a benign outcome:
// no record is created and the pipeline carries on.
var ErrDailyCapReached = errors.New("daily intervention cap reached")

// ============================================================================
// Interfaces
// ============================================================================

// Store persists intervention records and answers the daily-cap count.
type Store interface {
	NonCancelledCountForDay(ctx context.Context, userID string, day time.Time) (int, error)
	PutIntervention(ctx context.Context, iv datatypes.Intervention) error
	GetIntervention(ctx context.Context, id string) (datatypes.Intervention, bool, error)
}

// ============================================================================
// Engine
// ============================================================================

// Engine turns assessments into executed interventions.
//
// # Thread Safety
//
// Safe for concurrent use. The cap check and the record write are separate
// storage operations, so two concurrent runs for the same user can both
// pass a cap of n-1 and produce n+1 records for the day; the cap is a
// rate-style bound, not a hard invariant.
type Engine struct {
	store      Store
	notifier   alerts.Notifier
	thresholds *config.Holder
	cfg        config.InterventionConfig
	audit      audit.Logger
	log        *slog.Logger
}

// NewEngine wires an Engine from its collaborators. A nil notifier falls
// back to the log transport, a nil audit logger discards events, and a nil
// logger falls back to slog.Default().
func NewEngine(store Store, notifier alerts.Notifier, thresholds *config.Holder, cfg config.InterventionConfig, auditLog audit.Logger, log *slog.Logger) *Engine {
	if notifier == nil {
		notifier = alerts.NewLogNotifier(log)
	}
	if auditLog == nil {
		auditLog = &audit.NopLogger{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:      store,
		notifier:   notifier,
		thresholds: thresholds,
		cfg:        cfg,
		audit:      auditLog,
		log:        log,
	}
}

// ============================================================================
// Public Methods
// ============================================================================

// Decide evaluates one assessment (and optional forecast) and, when the
// effective risk clears a threshold, creates and executes an intervention.
//
// # Description
//
// The effective risk is the assessment's probability, raised to the
// forecast's tipping-point probability when one was detected. The ordered
// rule table picks the action; the daily cap can suppress it. A created
// record always comes back with its final status: execution failure is
// recorded on the intervention (status failed, audit failure), not
// returned as an error, so one bad notifier call never aborts a pipeline
// run.
//
// # Inputs
//
//   - ctx: cancels storage and notifier calls
//   - assessment: the finished risk assessment driving the decision
//   - forecast: optional; only its tipping point is consulted
//
// # Outputs
//
//   - datatypes.Intervention: the persisted record, pending/executed/failed
//   - bool: false when risk is below every threshold or the cap suppressed
//   - error: ErrDailyCapReached on suppression, otherwise storage failures
func (e *Engine) Decide(ctx context.Context, assessment datatypes.StabilityAssessment, forecast *datatypes.BurnoutForecast) (datatypes.Intervention, bool, error) {
	risk := effectiveRisk(assessment, forecast)

	action, ok := e.selectAction(risk)
	if !ok {
		e.log.Debug("No intervention needed",
			"user_id", assessment.UserID,
			"effective_risk", risk,
		)
		return datatypes.Intervention{}, false, nil
	}

	day := datatypes.Day(assessment.AssessmentDate)
	count, err := e.store.NonCancelledCountForDay(ctx, assessment.UserID, day)
	if err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("count interventions for %s: %w", assessment.UserID, err)
	}
	if count >= e.cfg.MaxDaily {
		e.suppress(ctx, assessment, action, count)
		return datatypes.Intervention{}, false, ErrDailyCapReached
	}

	iv := e.newRecord(assessment, action)
	if err := e.store.PutIntervention(ctx, iv); err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("persist intervention %s: %w", iv.ID, err)
	}

	execErr := e.execute(ctx, &iv)
	if execErr == nil {
		now := time.Now().UTC()
		iv.Status = datatypes.InterventionExecuted
		iv.ExecutionTimestamp = &now
	} else {
		iv.Status = datatypes.InterventionFailed
		e.log.Error("Intervention execution failed",
			"intervention_id", iv.ID,
			"type", iv.Type,
			"error", execErr,
		)
	}
	if err := e.store.PutIntervention(ctx, iv); err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("persist intervention %s: %w", iv.ID, err)
	}

	e.auditExecution(ctx, iv, execErr)
	metrics.RecordIntervention(string(iv.Type), string(iv.Status))

	e.log.Info("Intervention decided",
		"intervention_id", iv.ID,
		"user_id", iv.UserID,
		"type", iv.Type,
		"status", iv.Status,
		"effective_risk", risk,
	)
	return iv, true, nil
}

// RecordOutcome fills the post-intervention metrics from a follow-up
// assessment. The effectiveness score centers at 0.5 (no change) and grows
// with the risk drop since the intervention fired.
//
// # Outputs
//
//   - datatypes.Intervention: the updated record
//   - bool: false when no intervention has the given ID
//   - error: storage failures
func (e *Engine) RecordOutcome(ctx context.Context, interventionID string, post datatypes.StabilityAssessment) (datatypes.Intervention, bool, error) {
	iv, found, err := e.store.GetIntervention(ctx, interventionID)
	if err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("load intervention %s: %w", interventionID, err)
	}
	if !found {
		return datatypes.Intervention{}, false, nil
	}

	stab := post.StabilityIndex
	vol := post.Volatility
	riskNow := post.RiskProbability
	eff := clip01(0.5 + (iv.PreRiskProbability - riskNow))

	iv.PostStabilityIndex = &stab
	iv.PostVolatility = &vol
	iv.PostRiskProbability = &riskNow
	iv.EffectivenessScore = &eff

	if err := e.store.PutIntervention(ctx, iv); err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("persist intervention %s: %w", iv.ID, err)
	}

	e.log.Info("Intervention outcome recorded",
		"intervention_id", iv.ID,
		"user_id", iv.UserID,
		"effectiveness", eff,
	)
	return iv, true, nil
}

// ============================================================================
// Private Methods
// ============================================================================

// selectAction scans the rule table top-down and returns the action of the
// first threshold the risk meets. The thresholds come from the live config
// holder, so a hot reload shifts intervention selection immediately and in
// lockstep with risk classification.
func (e *Engine) selectAction(risk float64) (datatypes.Action, bool) {
	t := e.thresholds.Current()
	switch {
	case risk >= t.Alert:
		return datatypes.Action{Alert: &datatypes.AlertAction{
			AlertType: alertTypeManager,
			Urgency:   urgencyCritical,
			Reason:    reasonCritical,
		}}, true
	case risk >= t.Redistribute:
		return datatypes.Action{Redistribute: &datatypes.RedistributeAction{
			WorkloadReduction: workloadReduction,
			Reason:            reasonHigh,
		}}, true
	case risk >= t.Buffer:
		return datatypes.Action{Buffer: &datatypes.BufferAction{
			DurationMinutes: e.cfg.BufferDurationMinutes,
			Reason:          reasonModerate,
		}}, true
	default:
		return datatypes.Action{}, false
	}
}

// newRecord builds the pending intervention. Trigger and pre metrics come
// from the assessment as-is, even when a forecast raised the effective risk
// used for selection.
func (e *Engine) newRecord(assessment datatypes.StabilityAssessment, action datatypes.Action) datatypes.Intervention {
	return datatypes.Intervention{
		ID:               uuid.New().String(),
		UserID:           assessment.UserID,
		InterventionDate: assessment.AssessmentDate,
		Type:             action.Kind(),
		Status:           datatypes.InterventionPending,

		TriggerRiskLevel:       assessment.RiskLevel,
		TriggerRiskProbability: assessment.RiskProbability,
		TriggerStabilityIndex:  assessment.StabilityIndex,

		ActionDescription: describeAction(action),
		Action:            action,

		PreStabilityIndex:  assessment.StabilityIndex,
		PreVolatility:      assessment.Volatility,
		PreRiskProbability: assessment.RiskProbability,

		IsAutonomous: true,
		CreatedBy:    actorSystem,
		CreatedAt:    time.Now().UTC(),
	}
}

// execute runs the type-specific effect and fills the result fields.
func (e *Engine) execute(ctx context.Context, iv *datatypes.Intervention) error {
	switch iv.Type {
	case datatypes.InterventionBuffer:
		return e.executeBuffer(iv)
	case datatypes.InterventionRedistribute:
		return e.executeRedistribute(iv)
	case datatypes.InterventionAlert:
		return e.executeAlert(ctx, iv)
	default:
		return fmt.Errorf("unknown intervention type %q", iv.Type)
	}
}

// executeBuffer sets the buffer window: two hours out, action duration
// long. Calendar-write integration will replace the fixed lead time.
func (e *Engine) executeBuffer(iv *datatypes.Intervention) error {
	start := iv.InterventionDate.Add(bufferLeadTime)
	end := start.Add(time.Duration(iv.Action.Buffer.DurationMinutes) * time.Minute)

	iv.BufferStartTime = &start
	iv.BufferEndTime = &end
	iv.BufferDurationMinutes = iv.Action.Buffer.DurationMinutes
	return nil
}

// executeRedistribute records the redistribution proposal. The reduction
// is stored as the action's ratio.
func (e *Engine) executeRedistribute(iv *datatypes.Intervention) error {
	iv.TasksRedistributed = tasksRedistributed
	iv.WorkloadReductionPercentage = iv.Action.Redistribute.WorkloadReduction
	return nil
}

// executeAlert renders the alert body and delivers it through the
// notifier. Routing fields are only filled on successful delivery.
func (e *Engine) executeAlert(ctx context.Context, iv *datatypes.Intervention) error {
	message := alertMessage(*iv)
	if err := e.notifier.Notify(ctx, message); err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}
	iv.AlertSentTo = iv.Action.Alert.AlertType
	iv.AlertMessage = message
	return nil
}

// suppress logs, counts, and audits a cap-suppressed decision. No
// intervention record is created.
func (e *Engine) suppress(ctx context.Context, assessment datatypes.StabilityAssessment, action datatypes.Action, count int) {
	e.log.Warn("Intervention suppressed by daily cap",
		"user_id", assessment.UserID,
		"count", count,
		"max_daily", e.cfg.MaxDaily,
		"would_be_type", action.Kind(),
	)
	metrics.RecordInterventionSuppressed()

	err := e.audit.Log(ctx, audit.Event{
		EventType:         "intervention." + string(action.Kind()),
		UserID:            assessment.UserID,
		ActorType:         actorSystem,
		Action:            "suppress",
		ActionDescription: describeAction(action),
		TargetType:        "intervention",
		Outcome:           "blocked",
		Metadata: map[string]any{
			"count":     count,
			"max_daily": e.cfg.MaxDaily,
		},
	})
	if err != nil {
		e.log.Warn("Audit write failed", "error", err)
	}
}

// auditExecution appends the execution attempt to the audit trail. Audit
// failures are logged and swallowed; they never fail the decision.
func (e *Engine) auditExecution(ctx context.Context, iv datatypes.Intervention, execErr error) {
	outcome := "success"
	metadata := map[string]any{
		"trigger_risk_level":       string(iv.TriggerRiskLevel),
		"trigger_risk_probability": iv.TriggerRiskProbability,
	}
	if execErr != nil {
		outcome = "failure"
		metadata["error"] = execErr.Error()
	}

	err := e.audit.Log(ctx, audit.Event{
		EventType:         "intervention." + string(iv.Type),
		UserID:            iv.UserID,
		ActorType:         actorSystem,
		Action:            "execute",
		ActionDescription: iv.ActionDescription,
		TargetType:        "intervention",
		TargetID:          iv.ID,
		Outcome:           outcome,
		Metadata:          metadata,
	})
	if err != nil {
		e.log.Warn("Audit write failed", "intervention_id", iv.ID, "error", err)
	}
}

// ============================================================================
// Private Functions
// ============================================================================

// effectiveRisk raises the assessment's probability to the forecast's
// tipping-point probability when a tipping point was detected.
func effectiveRisk(assessment datatypes.StabilityAssessment, forecast *datatypes.BurnoutForecast) float64 {
	risk := assessment.RiskProbability
	if forecast != nil && forecast.TippingPointDetected && forecast.TippingPointProbability != nil {
		risk = math.Max(risk, *forecast.TippingPointProbability)
	}
	return risk
}

// describeAction renders the one-line summary stored on the record and in
// the audit trail.
func describeAction(action datatypes.Action) string {
	switch {
	case action.Buffer != nil:
		return fmt.Sprintf("Insert %d-minute focus buffer in calendar", action.Buffer.DurationMinutes)
	case action.Redistribute != nil:
		return fmt.Sprintf("Suggest %.0f%% workload redistribution", action.Redistribute.WorkloadReduction*100)
	case action.Alert != nil:
		return fmt.Sprintf("Send %s alert for critical risk", action.Alert.AlertType)
	default:
		return "Unknown intervention"
	}
}

// alertMessage renders the multi-line alert body from the record's trigger
// fields.
func alertMessage(iv datatypes.Intervention) string {
	return fmt.Sprintf(
		"BURNOUT RISK ALERT\n\n"+
			"Employee: %s\n"+
			"Risk Level: %s\n"+
			"Risk Probability: %.1f%%\n\n"+
			"Reason: %s\n\n"+
			"Immediate action recommended.",
		iv.UserID,
		strings.ToUpper(string(iv.TriggerRiskLevel)),
		iv.TriggerRiskProbability*100,
		iv.Action.Alert.Reason,
	)
}

func clip01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}
