// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signals defines the extension surface for emotion signals from
// outside the behavioral pipeline.
//
// Deployments with a self-report or affect-sensing integration implement
// Provider and inject it at service assembly; the open source build ships
// the StaticProvider, which reports no signal for every user.
//
// # Score Fusion
//
// StabilityAssessment reserves nullable EmotionalScore, SelfReportScore,
// and HybridScore columns. When a Provider reports a signal, the assessor
// records its EmotionalStability in EmotionalScore; the value never feeds
// the risk probability. The intended fusion is a 0.7 behavioral / 0.3
// self-report weighted blend, but nothing computes it today: fusing
// scores without a calibrated provider would launder made-up numbers into
// risk decisions. An integration that wants HybridScore computes it
// upstream and writes the column itself.
//
// # Thread Safety
//
// Provider implementations must be safe for concurrent use; the streaming
// pass calls them from multiple worker goroutines.
package signals

import (
	"context"
	"time"
)

// EmotionSignal is one day's externally-sensed emotional state.
type EmotionSignal struct {
	// StressProxy is the combined angry, fearful, and sad fraction of
	// observations, in [0, 1].
	StressProxy float64 `json:"stress_proxy"`

	// EmotionalStability blends positive affect against stress:
	// 0.5·happy + 0.3·neutral + 0.2·(1 − StressProxy), in [0, 1].
	EmotionalStability float64 `json:"emotional_stability"`
}

// Provider supplies emotion signals for users.
type Provider interface {
	// EmotionSnapshot returns the signal for userID on date. The boolean
	// reports presence: providers return (zero, false, nil) for users or
	// days they have no data for, reserving errors for transport failures.
	EmotionSnapshot(ctx context.Context, userID string, date time.Time) (EmotionSignal, bool, error)
}

// StaticProvider is the default Provider: it has no signal for anyone.
type StaticProvider struct{}

var _ Provider = StaticProvider{}

// EmotionSnapshot implements Provider.
func (StaticProvider) EmotionSnapshot(context.Context, string, time.Time) (EmotionSignal, bool, error) {
	return EmotionSignal{}, false, nil
}
