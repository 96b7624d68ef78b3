// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"
)

// ForecastPoint is one predicted day on a risk trajectory. Value is clipped
// to [0,1]; Lower/Upper carry the 95% interval when the trend model ran and
// repeat Value otherwise.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// BurnoutForecast is a horizon of predicted risk probabilities for one user.
//
// Description:
//
//	Points holds HorizonDays consecutive days starting the day after
//	ForecastDate. TippingPointDate is the first forecast day whose Value
//	reaches the tipping threshold, even when a later day peaks higher;
//	it stays nil when the horizon never crosses. PeakRiskDate marks the
//	maximum Value in the horizon regardless of tipping.
//
// Model Provenance:
//
//	ModelType records which estimator produced the points: a single model
//	when only one had enough history, or ensemble when trend and sequence
//	predictions were blended.
type BurnoutForecast struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ForecastDate time.Time `json:"forecast_date"`
	HorizonDays  int       `json:"horizon_days"`

	Points []ForecastPoint `json:"points"`

	PeakRiskDate        time.Time `json:"peak_risk_date"`
	PeakRiskProbability float64   `json:"peak_risk_probability"`

	TippingPointDetected    bool       `json:"tipping_point_detected"`
	TippingPointDate        *time.Time `json:"tipping_point_date,omitempty"`
	TippingPointProbability *float64   `json:"tipping_point_probability,omitempty"`

	ModelType       ModelType `json:"model_type"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}
