// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline builds per-user behavioral baselines.
//
// A baseline summarizes the feature records in a trailing window (default
// seven days) into per-metric means and population standard deviations.
// Downstream detectors compare today's features against these statistics,
// so a user is always measured against their own recent norm rather than
// a global one.
package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// minRecords is the smallest window that yields a usable baseline.
// Below this the standard deviations are meaningless.
const minRecords = 3

// ============================================================================
// Builder
// ============================================================================

// Store is the slice of the storage layer the builder depends on.
type Store interface {
	FeaturesInWindow(ctx context.Context, userID string, from, to time.Time) ([]datatypes.BehavioralFeatures, error)
	PutBaseline(ctx context.Context, snap datatypes.BaselineSnapshot) error
}

// Window bundles the raw feature records of a baseline window with the
// statistical snapshot computed from them. Detectors need both: the
// snapshot for deviation checks and the records for training series.
type Window struct {
	Snapshot datatypes.BaselineSnapshot
	Records  []datatypes.BehavioralFeatures
}

// Builder computes and persists baseline snapshots.
type Builder struct {
	store Store
	log   *slog.Logger
}

// NewBuilder creates a Builder backed by the given store.
func NewBuilder(store Store, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{store: store, log: log}
}

// Build computes the baseline for userID over the windowDays ending at date.
//
// # Description
//
// Loads the feature records with FeatureDate in [date−windowDays, date),
// ordered ascending, and reduces them to a BaselineSnapshot of per-metric
// means and population standard deviations. Every successful build persists
// the snapshot before returning.
//
// # Inputs
//
//   - ctx: Context for storage calls.
//   - userID: Subject user.
//   - date: Assessment day; the window ends the midnight before it.
//   - windowDays: Trailing window length in days.
//
// # Outputs
//
//   - Window: Snapshot plus the records that produced it.
//   - bool: False when fewer than 3 records exist; this is normal for new
//     users and is not an error.
//   - error: Storage failures only, wrapped.
//
// # Thread Safety
//
// Safe for concurrent use; the builder holds no mutable state.
func (b *Builder) Build(ctx context.Context, userID string, date time.Time, windowDays int) (Window, bool, error) {
	day := datatypes.Day(date)
	from := day.AddDate(0, 0, -windowDays)

	feats, err := b.store.FeaturesInWindow(ctx, userID, from, day)
	if err != nil {
		return Window{}, false, fmt.Errorf("load baseline window for user %s: %w", userID, err)
	}
	if len(feats) < minRecords {
		b.log.Debug("baseline window too small",
			"user_id", userID, "records", len(feats), "min", minRecords)
		return Window{}, false, nil
	}

	snap := snapshot(userID, from, day, windowDays, feats)
	if err := b.store.PutBaseline(ctx, snap); err != nil {
		return Window{}, false, fmt.Errorf("persist baseline for user %s: %w", userID, err)
	}

	b.log.Debug("baseline built",
		"user_id", userID,
		"records", len(feats),
		"mean_stability", snap.MeanStability,
		"std_stability", snap.StdStability)
	return Window{Snapshot: snap, Records: feats}, true, nil
}

// snapshot reduces a feature window to its baseline statistics.
func snapshot(userID string, from, to time.Time, windowDays int, feats []datatypes.BehavioralFeatures) datatypes.BaselineSnapshot {
	instability := column(feats, func(f datatypes.BehavioralFeatures) float64 { return f.InstabilityIndex })
	volatility := column(feats, func(f datatypes.BehavioralFeatures) float64 { return f.ProductivityVolatilityIndex })

	return datatypes.BaselineSnapshot{
		ID:          uuid.NewString(),
		UserID:      userID,
		WindowStart: from,
		WindowEnd:   to,
		WindowDays:  windowDays,
		SampleCount: len(feats),

		MeanStability:  1 - stat.Mean(instability, nil),
		StdStability:   stat.PopStdDev(instability, nil),
		MeanVolatility: stat.Mean(volatility, nil),
		StdVolatility:  stat.PopStdDev(volatility, nil),

		MeanWorkHours:     meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.TotalWorkHours }),
		MeanMeetingHours:  meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.MeetingHours }),
		MeanTaskSwitching: meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.TaskSwitchingRate }),
		MeanSleepHours:    meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.SleepHours }),
		MeanFocusBlock:    meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.LongestFocusBlockMinutes }),
		MeanRecoveryGap:   meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.RecoveryGapMinutes }),
		MeanErrorRate:     meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.ErrorRate }),
		MeanOutputScore:   meanOf(feats, func(f datatypes.BehavioralFeatures) float64 { return f.OutputScore }),

		CreatedAt: time.Now().UTC(),
	}
}

func column(feats []datatypes.BehavioralFeatures, pick func(datatypes.BehavioralFeatures) float64) []float64 {
	out := make([]float64, len(feats))
	for i, f := range feats {
		out[i] = pick(f)
	}
	return out
}

func meanOf(feats []datatypes.BehavioralFeatures, pick func(datatypes.BehavioralFeatures) float64) float64 {
	return stat.Mean(column(feats, pick), nil)
}
