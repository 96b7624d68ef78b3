// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package anomaly flags days whose behavioral profile does not fit the
// user's recent baseline.
//
// Detection uses an isolation forest trained on the baseline window's
// feature vectors. The forest is rebuilt per call from a fixed seed, so
// identical inputs always produce identical scores; there is no cached
// model state to invalidate when the baseline moves.
package anomaly

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

const (
	// defaultTrees is the forest size. 100 trees keeps the score variance
	// low enough that the contamination cutoff is stable between days.
	defaultTrees = 100

	// defaultSeed fixes the forest construction so repeated assessments
	// of the same day agree.
	defaultSeed = 42

	// defaultContamination is the assumed fraction of anomalous days.
	defaultContamination = 0.10

	// minSamples is the smallest training set worth scoring against.
	minSamples = 3
)

// ============================================================================
// Detector
// ============================================================================

// Detector scores behavioral feature vectors against a baseline window.
type Detector struct {
	trees         int
	seed          int64
	contamination float64
	log           *slog.Logger
}

// NewDetector creates a Detector with the given contamination rate.
// Rates outside (0, 1) fall back to the default of 0.10.
func NewDetector(contamination float64, log *slog.Logger) *Detector {
	if contamination <= 0 || contamination >= 1 {
		contamination = defaultContamination
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		trees:         defaultTrees,
		seed:          defaultSeed,
		contamination: contamination,
		log:           log,
	}
}

// Detect reports whether current is anomalous relative to the baseline
// records, along with its anomaly score.
//
// # Description
//
// Trains an isolation forest on the baseline feature vectors, scores every
// training vector to establish the score distribution, and flags current
// when its score exceeds the (1−contamination) quantile of that
// distribution. Scores are in (0, 1); higher means easier to isolate and
// therefore more anomalous.
//
// # Outputs
//
//   - bool: True when current clears the contamination cutoff.
//   - float64: The anomaly score s(x) = 2^(−E[h(x)]/c(ψ)). Zero when the
//     baseline has fewer than 3 records (no verdict, not an error).
//
// # Thread Safety
//
// Safe for concurrent use; each call builds its own forest.
func (d *Detector) Detect(current datatypes.BehavioralFeatures, baseline []datatypes.BehavioralFeatures) (bool, float64) {
	if len(baseline) < minSamples {
		return false, 0.0
	}

	train := make([][]float64, len(baseline))
	for i, f := range baseline {
		train[i] = f.Vector()
	}

	f := growForest(train, d.trees, d.seed)

	trainScores := make([]float64, len(train))
	for i, v := range train {
		trainScores[i] = f.score(v)
	}
	sort.Float64s(trainScores)
	cutoff := stat.Quantile(1-d.contamination, stat.Empirical, trainScores, nil)

	s := f.score(current.Vector())
	flagged := s > cutoff
	if flagged {
		d.log.Debug("anomalous day detected",
			"user_id", current.UserID,
			"date", current.FeatureDate.Format(datatypes.DayKey),
			"score", s,
			"cutoff", cutoff)
	}
	return flagged, s
}
