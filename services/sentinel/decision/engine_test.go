// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPulse/pkg/audit"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

type fakeStore struct {
	count    int
	countErr error
	putErr   error
	puts     []datatypes.Intervention
	byID     map[string]datatypes.Intervention
	getErr   error
}

func (s *fakeStore) NonCancelledCountForDay(context.Context, string, time.Time) (int, error) {
	return s.count, s.countErr
}

func (s *fakeStore) PutIntervention(_ context.Context, iv datatypes.Intervention) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, iv)
	return nil
}

func (s *fakeStore) GetIntervention(_ context.Context, id string) (datatypes.Intervention, bool, error) {
	if s.getErr != nil {
		return datatypes.Intervention{}, false, s.getErr
	}
	iv, ok := s.byID[id]
	return iv, ok, nil
}

type captureNotifier struct {
	messages []string
	err      error
}

func (n *captureNotifier) Notify(_ context.Context, message string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

type captureAudit struct {
	events []audit.Event
	err    error
}

func (a *captureAudit) Log(_ context.Context, e audit.Event) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

func (a *captureAudit) Query(context.Context, audit.Filter) ([]audit.Event, error) {
	return nil, nil
}

func (a *captureAudit) Flush(context.Context) error { return nil }

func defaultHolder() *config.Holder {
	return config.NewHolder(config.Thresholds{Buffer: 0.60, Redistribute: 0.75, Alert: 0.85})
}

func defaultSettings() config.InterventionConfig {
	return config.InterventionConfig{BufferDurationMinutes: 45, MaxDaily: 3}
}

var decisionDay = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func assessmentWithRisk(risk float64, level datatypes.RiskLevel) datatypes.StabilityAssessment {
	return datatypes.StabilityAssessment{
		ID:              "asmt-1",
		UserID:          "u-42",
		AssessmentDate:  decisionDay,
		StabilityIndex:  0.6,
		Volatility:      0.25,
		RiskProbability: risk,
		RiskLevel:       level,
	}
}

func newTestEngine(store *fakeStore, notifier *captureNotifier, auditLog *captureAudit) *Engine {
	return NewEngine(store, notifier, defaultHolder(), defaultSettings(), auditLog, nil)
}

func TestEffectiveRisk(t *testing.T) {
	high := 0.9
	low := 0.3

	tests := []struct {
		name     string
		forecast *datatypes.BurnoutForecast
		want     float64
	}{
		{"no forecast", nil, 0.5},
		{"tipping raises risk", &datatypes.BurnoutForecast{TippingPointDetected: true, TippingPointProbability: &high}, 0.9},
		{"tipping below assessment", &datatypes.BurnoutForecast{TippingPointDetected: true, TippingPointProbability: &low}, 0.5},
		{"no tipping detected", &datatypes.BurnoutForecast{TippingPointDetected: false, TippingPointProbability: &high}, 0.5},
		{"detected without probability", &datatypes.BurnoutForecast{TippingPointDetected: true}, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := effectiveRisk(assessmentWithRisk(0.5, datatypes.RiskLow), tc.forecast)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestEngine_Decide_SelectsByThreshold(t *testing.T) {
	tests := []struct {
		name     string
		risk     float64
		wantType datatypes.InterventionType
		wantAny  bool
	}{
		{"below buffer", 0.59, "", false},
		{"at buffer", 0.60, datatypes.InterventionBuffer, true},
		{"below redistribute", 0.74, datatypes.InterventionBuffer, true},
		{"at redistribute", 0.75, datatypes.InterventionRedistribute, true},
		{"at alert", 0.85, datatypes.InterventionAlert, true},
		{"above alert", 0.95, datatypes.InterventionAlert, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

			iv, found, err := e.Decide(context.Background(), assessmentWithRisk(tc.risk, datatypes.RiskModerate), nil)

			require.NoError(t, err)
			require.Equal(t, tc.wantAny, found)
			if !tc.wantAny {
				assert.Empty(t, store.puts, "no record below every threshold")
				return
			}
			assert.Equal(t, tc.wantType, iv.Type)
		})
	}
}

func TestEngine_Decide_BufferExecution(t *testing.T) {
	store := &fakeStore{}
	auditLog := &captureAudit{}
	e := newTestEngine(store, &captureNotifier{}, auditLog)

	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.65, datatypes.RiskModerate), nil)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionBuffer, iv.Type)
	assert.Equal(t, datatypes.InterventionExecuted, iv.Status)
	require.NotNil(t, iv.ExecutionTimestamp)

	wantStart := decisionDay.Add(2 * time.Hour)
	require.NotNil(t, iv.BufferStartTime)
	require.NotNil(t, iv.BufferEndTime)
	assert.True(t, iv.BufferStartTime.Equal(wantStart))
	assert.True(t, iv.BufferEndTime.Equal(wantStart.Add(45*time.Minute)))
	assert.Equal(t, 45, iv.BufferDurationMinutes)
	assert.Equal(t, "Insert 45-minute focus buffer in calendar", iv.ActionDescription)

	// Pending first, final status second.
	require.Len(t, store.puts, 2)
	assert.Equal(t, datatypes.InterventionPending, store.puts[0].Status)
	assert.Equal(t, datatypes.InterventionExecuted, store.puts[1].Status)

	require.Len(t, auditLog.events, 1)
	ev := auditLog.events[0]
	assert.Equal(t, "intervention.buffer", ev.EventType)
	assert.Equal(t, "system", ev.ActorType)
	assert.Equal(t, "execute", ev.Action)
	assert.Equal(t, "intervention", ev.TargetType)
	assert.Equal(t, iv.ID, ev.TargetID)
	assert.Equal(t, "success", ev.Outcome)
}

func TestEngine_Decide_RedistributeExecution(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.78, datatypes.RiskHigh), nil)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionRedistribute, iv.Type)
	assert.Equal(t, datatypes.InterventionExecuted, iv.Status)
	assert.Equal(t, 5, iv.TasksRedistributed)
	assert.InDelta(t, 0.3, iv.WorkloadReductionPercentage, 1e-12)
	assert.Equal(t, "Suggest 30% workload redistribution", iv.ActionDescription)
}

func TestEngine_Decide_AlertDeliversMessage(t *testing.T) {
	store := &fakeStore{}
	notifier := &captureNotifier{}
	e := newTestEngine(store, notifier, &captureAudit{})

	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionAlert, iv.Type)
	assert.Equal(t, datatypes.InterventionExecuted, iv.Status)
	assert.Equal(t, "manager", iv.AlertSentTo)
	assert.Equal(t, "Send manager alert for critical risk", iv.ActionDescription)

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Equal(t, iv.AlertMessage, msg)
	assert.Contains(t, msg, "BURNOUT RISK ALERT")
	assert.Contains(t, msg, "Employee: u-42")
	assert.Contains(t, msg, "Risk Level: CRITICAL")
	assert.Contains(t, msg, "Risk Probability: 90.0%")
	assert.Contains(t, msg, "Reason: Critical burnout risk detected")
	assert.Contains(t, msg, "Immediate action recommended.")
}

func TestEngine_Decide_TippingPointRaisesRisk(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	tip := 0.9
	forecast := &datatypes.BurnoutForecast{
		TippingPointDetected:    true,
		TippingPointProbability: &tip,
	}

	// Today's assessment alone would not trigger anything.
	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.5, datatypes.RiskLow), forecast)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionAlert, iv.Type)

	// Trigger metrics record what today looked like, not the raised risk.
	assert.InDelta(t, 0.5, iv.TriggerRiskProbability, 1e-12)
	assert.Equal(t, datatypes.RiskLow, iv.TriggerRiskLevel)
	assert.InDelta(t, 0.5, iv.PreRiskProbability, 1e-12)
}

func TestEngine_Decide_DailyCapSuppresses(t *testing.T) {
	store := &fakeStore{count: 3}
	auditLog := &captureAudit{}
	e := newTestEngine(store, &captureNotifier{}, auditLog)

	_, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)

	require.ErrorIs(t, err, ErrDailyCapReached)
	assert.False(t, found)
	assert.Empty(t, store.puts, "suppression must not create a record")

	require.Len(t, auditLog.events, 1)
	ev := auditLog.events[0]
	assert.Equal(t, "suppress", ev.Action)
	assert.Equal(t, "blocked", ev.Outcome)
	assert.Equal(t, "intervention.alert", ev.EventType)
}

func TestEngine_Decide_UnderCapProceeds(t *testing.T) {
	store := &fakeStore{count: 2}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionExecuted, iv.Status)
}

func TestEngine_Decide_FailedExecutionIsRecorded(t *testing.T) {
	store := &fakeStore{}
	notifier := &captureNotifier{err: errors.New("alert exploded")}
	auditLog := &captureAudit{}
	e := newTestEngine(store, notifier, auditLog)

	iv, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)

	// The failure lives on the record, not in the returned error.
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, datatypes.InterventionFailed, iv.Status)
	assert.Nil(t, iv.ExecutionTimestamp)
	assert.Empty(t, iv.AlertSentTo)
	assert.Empty(t, iv.AlertMessage)

	require.Len(t, store.puts, 2)
	assert.Equal(t, datatypes.InterventionFailed, store.puts[1].Status)

	require.Len(t, auditLog.events, 1)
	ev := auditLog.events[0]
	assert.Equal(t, "failure", ev.Outcome)
	assert.Contains(t, ev.Metadata["error"], "alert exploded")
}

func TestEngine_Decide_StorageErrors(t *testing.T) {
	boom := errors.New("badger exploded")

	t.Run("cap count", func(t *testing.T) {
		e := newTestEngine(&fakeStore{countErr: boom}, &captureNotifier{}, &captureAudit{})
		_, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)
		require.ErrorIs(t, err, boom)
		assert.False(t, found)
	})

	t.Run("persist", func(t *testing.T) {
		e := newTestEngine(&fakeStore{putErr: boom}, &captureNotifier{}, &captureAudit{})
		_, found, err := e.Decide(context.Background(), assessmentWithRisk(0.9, datatypes.RiskCritical), nil)
		require.ErrorIs(t, err, boom)
		assert.False(t, found)
	})
}

func TestEngine_RecordOutcome(t *testing.T) {
	seed := datatypes.Intervention{
		ID:                 "iv-1",
		UserID:             "u-42",
		Status:             datatypes.InterventionExecuted,
		PreRiskProbability: 0.9,
	}
	store := &fakeStore{byID: map[string]datatypes.Intervention{"iv-1": seed}}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	post := assessmentWithRisk(0.2, datatypes.RiskLow)
	post.StabilityIndex = 0.8
	post.Volatility = 0.1

	iv, found, err := e.RecordOutcome(context.Background(), "iv-1", post)

	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, iv.PostStabilityIndex)
	require.NotNil(t, iv.PostVolatility)
	require.NotNil(t, iv.PostRiskProbability)
	require.NotNil(t, iv.EffectivenessScore)
	assert.InDelta(t, 0.8, *iv.PostStabilityIndex, 1e-12)
	assert.InDelta(t, 0.1, *iv.PostVolatility, 1e-12)
	assert.InDelta(t, 0.2, *iv.PostRiskProbability, 1e-12)

	// 0.5 + (0.9 - 0.2) clips to 1.0.
	assert.InDelta(t, 1.0, *iv.EffectivenessScore, 1e-12)

	require.Len(t, store.puts, 1)
}

func TestEngine_RecordOutcome_ModestImprovement(t *testing.T) {
	seed := datatypes.Intervention{ID: "iv-2", PreRiskProbability: 0.6}
	store := &fakeStore{byID: map[string]datatypes.Intervention{"iv-2": seed}}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	iv, found, err := e.RecordOutcome(context.Background(), "iv-2", assessmentWithRisk(0.45, datatypes.RiskLow))

	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 0.65, *iv.EffectivenessScore, 1e-12)
}

func TestEngine_RecordOutcome_UnknownID(t *testing.T) {
	store := &fakeStore{byID: map[string]datatypes.Intervention{}}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	_, found, err := e.RecordOutcome(context.Background(), "missing", assessmentWithRisk(0.2, datatypes.RiskLow))

	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_RecordOutcome_StorageError(t *testing.T) {
	boom := errors.New("badger exploded")
	store := &fakeStore{getErr: boom}
	e := newTestEngine(store, &captureNotifier{}, &captureAudit{})

	_, found, err := e.RecordOutcome(context.Background(), "iv-1", assessmentWithRisk(0.2, datatypes.RiskLow))

	require.ErrorIs(t, err, boom)
	assert.False(t, found)
}

func TestDescribeAction(t *testing.T) {
	tests := []struct {
		name   string
		action datatypes.Action
		want   string
	}{
		{
			"buffer",
			datatypes.Action{Buffer: &datatypes.BufferAction{DurationMinutes: 45, Reason: reasonModerate}},
			"Insert 45-minute focus buffer in calendar",
		},
		{
			"redistribute",
			datatypes.Action{Redistribute: &datatypes.RedistributeAction{WorkloadReduction: 0.3, Reason: reasonHigh}},
			"Suggest 30% workload redistribution",
		},
		{
			"alert",
			datatypes.Action{Alert: &datatypes.AlertAction{AlertType: "manager", Urgency: "critical", Reason: reasonCritical}},
			"Send manager alert for critical risk",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, describeAction(tc.action))
		})
	}
}
