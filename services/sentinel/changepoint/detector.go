// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changepoint detects structural breaks in a user's instability
// signal: not merely a bad day, but a day whose instability sits so far
// outside the baseline distribution that the underlying regime has likely
// shifted.
package changepoint

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

const (
	// minSamples below this the baseline spread is too noisy to test against.
	minSamples = 5

	// zThreshold is the break cutoff in baseline standard deviations.
	zThreshold = 3.0

	// stdFloor guards the z-score against near-constant baselines.
	stdFloor = 0.01
)

// Detector tests the current instability against the baseline distribution.
type Detector struct {
	log *slog.Logger
}

// NewDetector creates a change-point Detector.
func NewDetector(log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{log: log}
}

// Detect reports whether current marks a change point in the user's
// instability signal, along with the tail probability of the observation.
//
// # Description
//
// Computes z = |current − mean(baseline)| / max(popStd(baseline), 0.01)
// over the baseline records' InstabilityIndex and flags a change point
// when z exceeds 3. The returned probability is 1 − Φ(z): the chance of
// seeing a value at least this extreme under the baseline distribution,
// so smaller means more surprising.
//
// # Outputs
//
//   - bool: True when z > 3.
//   - float64: Tail probability. Zero when the baseline has fewer than 5
//     records (no verdict, not an error).
func (d *Detector) Detect(current datatypes.BehavioralFeatures, baseline []datatypes.BehavioralFeatures) (bool, float64) {
	if len(baseline) < minSamples {
		return false, 0.0
	}

	signal := make([]float64, len(baseline))
	for i, f := range baseline {
		signal[i] = f.InstabilityIndex
	}

	mean := stat.Mean(signal, nil)
	std := math.Max(stat.PopStdDev(signal, nil), stdFloor)
	z := math.Abs(current.InstabilityIndex-mean) / std

	prob := 1 - distuv.UnitNormal.CDF(z)
	flagged := z > zThreshold
	if flagged {
		d.log.Debug("instability change point",
			"user_id", current.UserID,
			"date", current.FeatureDate.Format(datatypes.DayKey),
			"z", z,
			"baseline_mean", mean)
	}
	return flagged, prob
}
