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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDampedHolt_Predict_TooShort(t *testing.T) {
	_, err := DampedHolt{}.Predict([]float64{0.5}, 3)
	require.Error(t, err)

	_, err = DampedHolt{}.Predict([]float64{0.1, 0.2}, 0)
	require.Error(t, err)
}

func TestDampedHolt_Predict_HandComputed(t *testing.T) {
	// Seed: level 0, trend 1. One smoothing step over x=1:
	//   level = 0.5·1 + 0.5·(0 + 0.9·1) = 0.95
	//   trend = 0.3·0.95 + 0.7·0.9·1   = 0.915
	// Forecasts: 0.95 + 0.915·0.9 and 0.95 + 0.915·(0.9 + 0.81).
	out, err := DampedHolt{}.Predict([]float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.7735, out[0], 1e-9)
	assert.InDelta(t, 2.51465, out[1], 1e-9)
}

func TestDampedHolt_Predict_ConstantSequence(t *testing.T) {
	out, err := DampedHolt{}.Predict([]float64{0.5, 0.5, 0.5, 0.5}, 5)
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, 0.5, v, "step %d: a flat sequence forecasts flat", i)
	}
}

func TestDampedHolt_Predict_Deterministic(t *testing.T) {
	seq := []float64{0.1, 0.3, 0.2, 0.5, 0.4, 0.6}
	a, err := DampedHolt{}.Predict(seq, 7)
	require.NoError(t, err)
	b, err := DampedHolt{}.Predict(seq, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDampedHolt_Predict_TrendDamping(t *testing.T) {
	// Rising sequence: increments between successive forecast steps must
	// shrink as the damping compounds.
	out, err := DampedHolt{}.Predict([]float64{0.1, 0.2, 0.3, 0.4, 0.5}, 5)
	require.NoError(t, err)
	for i := 2; i < len(out); i++ {
		prev := out[i-1] - out[i-2]
		cur := out[i] - out[i-1]
		assert.Less(t, cur, prev, "damped trend increments must decay")
	}
}
