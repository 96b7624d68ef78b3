// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forecast projects a user's burnout risk over the coming days.
//
// Two models run over the trailing window of assessed risk probabilities:
// a least-squares trend model with weekly seasonality, and a pluggable
// sequence model resolved from the Registry (damped Holt smoothing by
// default). When both produce output the engine blends them 60/40 in favor
// of the trend model and carries the trend model's confidence band.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
)

const (
	// tippingThreshold marks the forecast probability past which burnout
	// is considered imminent.
	tippingThreshold = 0.85

	ensembleTrendWeight    = 0.6
	ensembleSequenceWeight = 0.4

	// confidenceScore is fixed until backtesting produces a measured one.
	confidenceScore = 0.85
)

// Store is the slice of the storage layer the engine depends on.
type Store interface {
	AssessmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]datatypes.StabilityAssessment, error)
	PutForecast(ctx context.Context, f datatypes.BurnoutForecast) error
}

// Engine generates and persists burnout forecasts.
type Engine struct {
	store    Store
	model    SequenceModel
	horizon  int
	seqLen   int
	lookback int
	log      *slog.Logger
}

// NewEngine wires an Engine with an already-resolved sequence model; use
// Registry.Resolve at assembly time so a bad model name fails at startup.
func NewEngine(store Store, model SequenceModel, horizonDays, sequenceLength, lookbackDays int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    store,
		model:    model,
		horizon:  horizonDays,
		seqLen:   sequenceLength,
		lookback: lookbackDays,
		log:      log,
	}
}

// Generate builds the forecast for userID as of date.
//
// # Description
//
// Loads the risk probabilities of the user's assessments over the lookback
// window (inclusive of date's own assessment), runs whichever models have
// enough history (trend ≥ 7 points, sequence ≥ sequenceLength), combines
// them, and persists the result.
//
// # Outputs
//
//   - datatypes.BurnoutForecast: The persisted forecast.
//   - bool: False when neither model had enough history; this is normal
//     for new users and is not an error.
//   - error: Storage or model failures, wrapped.
func (e *Engine) Generate(ctx context.Context, userID string, date time.Time) (datatypes.BurnoutForecast, bool, error) {
	day := datatypes.Day(date)
	from := day.AddDate(0, 0, -e.lookback)
	to := day.AddDate(0, 0, 1)

	assessments, err := e.store.AssessmentsInRange(ctx, userID, from, to)
	if err != nil {
		return datatypes.BurnoutForecast{}, false, fmt.Errorf("load forecast history for user %s: %w", userID, err)
	}
	history := make([]float64, len(assessments))
	for i, a := range assessments {
		history[i] = a.RiskProbability
	}

	var trend *trendResult
	if len(history) >= trendMinPoints {
		trend, err = fitTrend(history, e.horizon)
		if err != nil {
			return datatypes.BurnoutForecast{}, false, fmt.Errorf("trend forecast for user %s: %w", userID, err)
		}
	}

	var seq []float64
	if len(history) >= e.seqLen {
		seq, err = e.sequenceForecast(history)
		if err != nil {
			return datatypes.BurnoutForecast{}, false, fmt.Errorf("sequence forecast for user %s: %w", userID, err)
		}
	}

	values, lower, upper, modelType, ok := combine(trend, seq)
	if !ok {
		e.log.Debug("forecast history too short",
			"user_id", userID, "points", len(history))
		return datatypes.BurnoutForecast{}, false, nil
	}

	points := make([]datatypes.ForecastPoint, e.horizon)
	for i := range points {
		points[i] = datatypes.ForecastPoint{
			Date:  day.Add(time.Duration(i+1) * 24 * time.Hour),
			Value: values[i],
			Lower: lower[i],
			Upper: upper[i],
		}
	}

	peak := argmaxFirst(values)
	forecast := datatypes.BurnoutForecast{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ForecastDate:        day,
		HorizonDays:         e.horizon,
		Points:              points,
		PeakRiskDate:        points[peak].Date,
		PeakRiskProbability: points[peak].Value,
		ModelType:           modelType,
		ConfidenceScore:     confidenceScore,
		CreatedAt:           time.Now().UTC(),
	}
	if idx, found := findTipping(values); found {
		forecast.TippingPointDetected = true
		forecast.TippingPointDate = &points[idx].Date
		prob := values[idx]
		forecast.TippingPointProbability = &prob
	}

	if err := e.store.PutForecast(ctx, forecast); err != nil {
		return datatypes.BurnoutForecast{}, false, fmt.Errorf("persist forecast for user %s: %w", userID, err)
	}
	metrics.RecordForecast(string(modelType))

	e.log.Info("forecast generated",
		"user_id", userID,
		"model_type", modelType,
		"peak_risk", forecast.PeakRiskProbability,
		"tipping_point", forecast.TippingPointDetected)
	return forecast, true, nil
}

// sequenceForecast normalizes the history, runs the sequence model on the
// trailing window, and maps the output back to probability space.
func (e *Engine) sequenceForecast(history []float64) ([]float64, error) {
	mean := stat.Mean(history, nil)
	std := stat.PopStdDev(history, nil)
	if std == 0 {
		std = 1
	}

	window := make([]float64, e.seqLen)
	tail := history[len(history)-e.seqLen:]
	for i, v := range tail {
		window[i] = (v - mean) / std
	}

	pred, err := e.model.Predict(window, e.horizon)
	if err != nil {
		return nil, fmt.Errorf("sequence model %s: %w", e.model.Name(), err)
	}

	out := make([]float64, len(pred))
	for i, v := range pred {
		out[i] = clip01(v*std + mean)
	}
	return out, nil
}

// combine merges whichever model outputs exist. Both present → weighted
// pointwise ensemble with the trend model's band; one present → unchanged
// passthrough (the sequence model carries a degenerate band since it has
// no residual estimate); neither → not ok.
func combine(trend *trendResult, seq []float64) (values, lower, upper []float64, modelType datatypes.ModelType, ok bool) {
	switch {
	case trend != nil && seq != nil:
		values = make([]float64, len(trend.values))
		for i := range values {
			values[i] = ensembleTrendWeight*trend.values[i] + ensembleSequenceWeight*seq[i]
		}
		return values, trend.lower, trend.upper, datatypes.ModelEnsemble, true
	case trend != nil:
		return trend.values, trend.lower, trend.upper, datatypes.ModelTrend, true
	case seq != nil:
		return seq, seq, seq, datatypes.ModelSequence, true
	default:
		return nil, nil, nil, "", false
	}
}

func argmaxFirst(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// findTipping returns the first index whose value crosses the tipping
// threshold. The first crossing wins even when a later value is higher.
func findTipping(values []float64) (int, bool) {
	for i, v := range values {
		if v >= tippingThreshold {
			return i, true
		}
	}
	return 0, false
}
