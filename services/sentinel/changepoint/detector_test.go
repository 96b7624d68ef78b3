// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

func instabilitySeries(values ...float64) []datatypes.BehavioralFeatures {
	out := make([]datatypes.BehavioralFeatures, len(values))
	for i, v := range values {
		out[i] = datatypes.BehavioralFeatures{UserID: "u1", InstabilityIndex: v}
	}
	return out
}

func TestDetector_Detect_TooFewSamples(t *testing.T) {
	d := NewDetector(nil)

	flagged, prob := d.Detect(
		datatypes.BehavioralFeatures{InstabilityIndex: 0.9},
		instabilitySeries(0.1, 0.1, 0.1, 0.1),
	)
	assert.False(t, flagged)
	assert.Equal(t, 0.0, prob)
}

func TestDetector_Detect_StableSignal(t *testing.T) {
	d := NewDetector(nil)

	// Identical current and baseline: z = 0, tail probability exactly 0.5.
	flagged, prob := d.Detect(
		datatypes.BehavioralFeatures{InstabilityIndex: 0.3},
		instabilitySeries(0.3, 0.3, 0.3, 0.3, 0.3),
	)
	assert.False(t, flagged)
	assert.InDelta(t, 0.5, prob, 1e-12)
}

func TestDetector_Detect_FlagsRegimeShift(t *testing.T) {
	d := NewDetector(nil)

	// popStd of the baseline is ~0.0063, floored to 0.01; the jump to 0.9
	// is sixty floored deviations out.
	flagged, prob := d.Detect(
		datatypes.BehavioralFeatures{InstabilityIndex: 0.9},
		instabilitySeries(0.30, 0.31, 0.29, 0.30, 0.30),
	)
	assert.True(t, flagged)
	assert.Less(t, prob, 0.001, "an extreme jump has a vanishing tail probability")
}

func TestDetector_Detect_BelowThresholdNotFlagged(t *testing.T) {
	d := NewDetector(nil)

	// Constant baseline floors the deviation at 0.01; current 0.305 gives
	// z = 0.5, comfortably under the cutoff.
	flagged, prob := d.Detect(
		datatypes.BehavioralFeatures{InstabilityIndex: 0.305},
		instabilitySeries(0.3, 0.3, 0.3, 0.3, 0.3),
	)
	assert.False(t, flagged)
	assert.InDelta(t, 0.3085, prob, 1e-3)
}

func TestDetector_Detect_FlooredStdFlagsModestJump(t *testing.T) {
	d := NewDetector(nil)

	// z = 0.05/0.01 = 5 even though the absolute move is small.
	flagged, _ := d.Detect(
		datatypes.BehavioralFeatures{InstabilityIndex: 0.35},
		instabilitySeries(0.3, 0.3, 0.3, 0.3, 0.3),
	)
	assert.True(t, flagged)
}
