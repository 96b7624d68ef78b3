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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// Trend Model - linear trend + weekly Fourier seasonality
// ============================================================================

const (
	// trendMinPoints is the shortest history the trend model accepts.
	trendMinPoints = 7

	// seasonPeriod is the seasonality period in days.
	seasonPeriod = 7.0

	// intervalZ is the 95% normal interval multiplier.
	intervalZ = 1.96
)

// trendResult carries the fitted forecast with its confidence band.
type trendResult struct {
	values []float64
	lower  []float64
	upper  []float64
}

// fourierOrder adapts the number of seasonal harmonics to the history
// length, so short histories cannot overfit the weekly shape.
func fourierOrder(n int) int {
	switch {
	case n < 14:
		return 1
	case n < 21:
		return 2
	default:
		return 3
	}
}

// designRow builds the regression row for time index t: intercept, linear
// trend, and sin/cos pairs for each harmonic of the weekly period.
func designRow(t float64, order int) []float64 {
	row := make([]float64, 2+2*order)
	row[0] = 1
	row[1] = t
	for k := 1; k <= order; k++ {
		angle := 2 * math.Pi * float64(k) * t / seasonPeriod
		row[2*k] = math.Sin(angle)
		row[2*k+1] = math.Cos(angle)
	}
	return row
}

// fitTrend fits the history by QR least squares and extrapolates horizon
// days ahead. The 95% band is ±1.96 residual standard deviations around
// the point forecast; values and bounds are clipped to [0, 1].
func fitTrend(history []float64, horizon int) (*trendResult, error) {
	n := len(history)
	order := fourierOrder(n)
	p := 2 + 2*order

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.SetRow(i, designRow(float64(i), order))
		y.SetVec(i, history[i])
	}

	var qr mat.QR
	qr.Factorize(x)
	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, y); err != nil {
		return nil, fmt.Errorf("trend least squares: %w", err)
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = history[i] - dot(designRow(float64(i), order), beta)
	}
	residStd := stat.PopStdDev(residuals, nil)

	res := &trendResult{
		values: make([]float64, horizon),
		lower:  make([]float64, horizon),
		upper:  make([]float64, horizon),
	}
	for i := 0; i < horizon; i++ {
		yhat := dot(designRow(float64(n+i), order), beta)
		res.values[i] = clip01(yhat)
		res.lower[i] = clip01(yhat - intervalZ*residStd)
		res.upper[i] = clip01(yhat + intervalZ*residStd)
	}
	return res, nil
}

func dot(row []float64, beta *mat.VecDense) float64 {
	var sum float64
	for j, v := range row {
		sum += v * beta.AtVec(j)
	}
	return sum
}

func clip01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
