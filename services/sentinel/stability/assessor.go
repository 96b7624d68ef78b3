// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stability turns one day of behavioral features into a risk
// assessment.
//
// The assessor composes the day's instability index with the anomaly and
// change-point verdicts, volatility acceleration, recovery deficit, and
// error rate into a single risk probability, classifies it against the
// configured thresholds, and persists the resulting assessment.
package stability

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/signals"
)

// Risk composition multipliers and weights. Order of application matters:
// multiplicative boosts first, additive terms after, then the clip.
const (
	anomalyBoost      = 1.3
	changePointBoost  = 1.2
	accelerationBoost = 1.15
	accelerationMin   = 0.1
	deficitWeight     = 0.2
	errorWeight       = 2.0

	maxContributors = 5

	// confidenceScore is fixed until model calibration produces a real
	// per-assessment confidence.
	confidenceScore = 0.85
)

// ============================================================================
// Risk classification
// ============================================================================

// RiskRow pairs a probability threshold with the level it grants.
type RiskRow struct {
	Threshold float64
	Level     datatypes.RiskLevel
}

// RiskTable is an ordered set of rows scanned top-down; the first row whose
// threshold the probability meets wins. Rows must be sorted by descending
// threshold.
type RiskTable []RiskRow

// TableFromThresholds builds the risk table from the configured thresholds.
// The same threshold values drive intervention selection, so the two
// surfaces can never disagree about what "high" means.
func TableFromThresholds(t config.Thresholds) RiskTable {
	return RiskTable{
		{Threshold: t.Alert, Level: datatypes.RiskCritical},
		{Threshold: t.Redistribute, Level: datatypes.RiskHigh},
		{Threshold: t.Buffer, Level: datatypes.RiskModerate},
	}
}

// Classify maps a risk probability to its level. Pure: equal inputs always
// yield equal outputs.
func (rt RiskTable) Classify(p float64) datatypes.RiskLevel {
	for _, row := range rt {
		if p >= row.Threshold {
			return row.Level
		}
	}
	return datatypes.RiskLow
}

// ============================================================================
// Assessor
// ============================================================================

// Detector is the verdict surface shared by the anomaly and change-point
// detectors: a flag plus a score whose meaning is detector-specific.
type Detector interface {
	Detect(current datatypes.BehavioralFeatures, baseline []datatypes.BehavioralFeatures) (bool, float64)
}

// Store persists finished assessments.
type Store interface {
	PutAssessment(ctx context.Context, a datatypes.StabilityAssessment) error
}

// Assessor runs the full stability evaluation for one user-day.
type Assessor struct {
	anomaly    Detector
	change     Detector
	thresholds *config.Holder
	emotion    signals.Provider
	store      Store
	log        *slog.Logger
}

// NewAssessor wires an Assessor from its collaborators. emotion may be nil;
// assessments then carry no emotional score.
func NewAssessor(anomaly, change Detector, thresholds *config.Holder, emotion signals.Provider, store Store, log *slog.Logger) *Assessor {
	if log == nil {
		log = slog.Default()
	}
	return &Assessor{
		anomaly:    anomaly,
		change:     change,
		thresholds: thresholds,
		emotion:    emotion,
		store:      store,
		log:        log,
	}
}

// Assess evaluates the current features against the user's baseline and
// persists the assessment.
//
// # Description
//
// Runs anomaly and change-point detection over the baseline records,
// computes volatility acceleration, composes the risk probability, and
// classifies it with the thresholds active at call time. A missing
// baseline (snap == nil) is handled by falling back to absolute
// contributor thresholds and zero baseline deviation; it never fails the
// assessment.
//
// When the emotion provider reports a signal for the day, its stability
// value is recorded in the EmotionalScore column. The risk probability
// stays purely behavioral either way.
//
// # Inputs
//
//   - ctx: Context for the persistence call.
//   - current: Today's feature record.
//   - snap: Baseline snapshot, nil when the user has no baseline yet.
//   - records: The feature records backing the snapshot, ascending by day.
//
// # Outputs
//
//   - datatypes.StabilityAssessment: The persisted assessment.
//   - error: Persistence failures only, wrapped.
func (a *Assessor) Assess(ctx context.Context, current datatypes.BehavioralFeatures, snap *datatypes.BaselineSnapshot, records []datatypes.BehavioralFeatures) (datatypes.StabilityAssessment, error) {
	isAnomaly, anomalyScore := a.anomaly.Detect(current, records)
	if isAnomaly {
		metrics.RecordAnomaly()
	}
	isChange, changeProb := a.change.Detect(current, records)
	if isChange {
		metrics.RecordChangePoint()
	}
	accel := volatilityAcceleration(current, records)

	risk := composeRisk(current, isAnomaly, isChange, accel)
	level := TableFromThresholds(a.thresholds.Current()).Classify(risk)

	stabilityIndex := 1 - current.InstabilityIndex
	deviation := 0.0
	var winStart, winEnd *time.Time
	if snap != nil {
		deviation = math.Abs(stabilityIndex - snap.MeanStability)
		winStart, winEnd = &snap.WindowStart, &snap.WindowEnd
	}

	assessment := datatypes.StabilityAssessment{
		ID:                     uuid.NewString(),
		UserID:                 current.UserID,
		AssessmentDate:         current.FeatureDate,
		StabilityIndex:         stabilityIndex,
		Volatility:             current.ProductivityVolatilityIndex,
		Acceleration:           accel,
		RiskProbability:        risk,
		RiskLevel:              level,
		TopContributors:        topContributors(current, snap),
		IsAnomaly:              isAnomaly,
		AnomalyScore:           anomalyScore,
		IsChangePoint:          isChange,
		ChangePointProbability: changeProb,
		BaselineDeviation:      deviation,
		BaselineWindowStart:    winStart,
		BaselineWindowEnd:      winEnd,
		BehavioralScore:        risk,
		ConfidenceScore:        confidenceScore,
		CreatedAt:              time.Now().UTC(),
	}

	if a.emotion != nil {
		sig, ok, err := a.emotion.EmotionSnapshot(ctx, current.UserID, current.FeatureDate)
		switch {
		case err != nil:
			a.log.Warn("emotion snapshot unavailable",
				"user_id", current.UserID, "error", err)
		case ok:
			score := sig.EmotionalStability
			assessment.EmotionalScore = &score
		}
	}

	if err := a.store.PutAssessment(ctx, assessment); err != nil {
		return datatypes.StabilityAssessment{}, fmt.Errorf("persist assessment for user %s: %w", current.UserID, err)
	}
	metrics.RecordAssessment(string(level))

	a.log.Info("stability assessed",
		"user_id", current.UserID,
		"date", current.FeatureDate.Format(datatypes.DayKey),
		"risk_level", level,
		"risk_probability", risk,
		"anomaly", isAnomaly,
		"change_point", isChange)
	return assessment, nil
}

// composeRisk applies the risk formula: multiplicative boosts for anomaly,
// change point, and accelerating volatility, then additive recovery-deficit
// and error-rate terms, clipped to [0, 1].
func composeRisk(f datatypes.BehavioralFeatures, isAnomaly, isChange bool, accel float64) float64 {
	risk := f.InstabilityIndex
	if isAnomaly {
		risk *= anomalyBoost
	}
	if isChange {
		risk *= changePointBoost
	}
	if accel > accelerationMin {
		risk *= accelerationBoost
	}
	risk += f.RecoveryDeficitScore * deficitWeight
	risk += f.ErrorRate * errorWeight

	return math.Min(math.Max(risk, 0), 1)
}

// volatilityAcceleration approximates the second derivative of
// productivity volatility over the last three baseline days plus today.
// Fewer than two baseline records yield zero.
func volatilityAcceleration(current datatypes.BehavioralFeatures, records []datatypes.BehavioralFeatures) float64 {
	if len(records) < 2 {
		return 0.0
	}

	start := len(records) - 3
	if start < 0 {
		start = 0
	}
	series := make([]float64, 0, 4)
	for _, f := range records[start:] {
		series = append(series, f.ProductivityVolatilityIndex)
	}
	series = append(series, current.ProductivityVolatilityIndex)

	n := len(series)
	if n >= 3 {
		return series[n-1] - 2*series[n-2] + series[n-3]
	}
	return series[n-1] - series[n-2]
}

// topContributors names the factors driving instability, in fixed priority
// order, capped at five. With a baseline, rates are judged relative to the
// user's own norms; without one, absolute cutoffs apply.
func topContributors(f datatypes.BehavioralFeatures, snap *datatypes.BaselineSnapshot) []string {
	var out []string
	add := func(name string, hit bool) {
		if hit && len(out) < maxContributors {
			out = append(out, name)
		}
	}

	if snap != nil {
		add("meeting_density", f.MeetingDensityRatio > 0.5)
		add("recovery_deficit", f.RecoveryDeficitScore > 0.5)
		add("task_switching_rate", f.TaskSwitchingRate > snap.MeanTaskSwitching*1.5)
		add("sleep_deficit", f.SleepHours < snap.MeanSleepHours-1)
		add("after_hours_work", f.AfterHoursWork > 2)
		add("error_rate", f.ErrorRate > snap.MeanErrorRate*1.5)
	} else {
		add("meeting_density", f.MeetingDensityRatio > 0.5)
		add("recovery_deficit", f.RecoveryDeficitScore > 0.5)
		add("task_switching_rate", f.TaskSwitchingRate > 5)
	}
	return out
}
