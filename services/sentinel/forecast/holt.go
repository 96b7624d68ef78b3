// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package forecast

import (
	"fmt"
	"math"
)

// DefaultModelName is the sequence model the engine uses unless configured
// otherwise.
const DefaultModelName = "damped_holt"

// Damped Holt smoothing parameters. Phi < 1 flattens the trend as the
// horizon grows, which keeps week-out forecasts from running away.
const (
	holtAlpha = 0.5
	holtBeta  = 0.3
	holtPhi   = 0.9
)

// DampedHolt is a damped-trend Holt linear exponential smoother. It is the
// default sequence model: fully deterministic, needs no training artifacts,
// and degrades gracefully on short histories.
type DampedHolt struct{}

var _ SequenceModel = DampedHolt{}

// Name implements SequenceModel.
func (DampedHolt) Name() string { return DefaultModelName }

// Predict implements SequenceModel.
//
// Level and trend are seeded from the first two observations, smoothed
// across the rest of the sequence, then extrapolated with a damped trend:
// ŷ(h) = level + trend·Σ_{j=1..h} φ^j.
func (DampedHolt) Predict(sequence []float64, horizon int) ([]float64, error) {
	if len(sequence) < 2 {
		return nil, fmt.Errorf("damped holt needs at least 2 points, got %d", len(sequence))
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	level := sequence[0]
	trend := sequence[1] - sequence[0]
	for _, x := range sequence[1:] {
		prevLevel := level
		level = holtAlpha*x + (1-holtAlpha)*(prevLevel+holtPhi*trend)
		trend = holtBeta*(level-prevLevel) + (1-holtBeta)*holtPhi*trend
	}

	out := make([]float64, horizon)
	dampSum := 0.0
	for h := 0; h < horizon; h++ {
		dampSum += math.Pow(holtPhi, float64(h+1))
		out[h] = level + trend*dampSum
	}
	return out, nil
}
