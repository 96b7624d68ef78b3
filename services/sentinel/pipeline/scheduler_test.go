// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/reports"
)

type countingRunner struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (r *countingRunner) RunUser(_ context.Context, userID string, _ time.Time) (RunResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, userID)
	r.mu.Unlock()
	if err := r.failFor[userID]; err != nil {
		return RunResult{}, err
	}
	return RunResult{}, nil
}

func (r *countingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *countingRunner) calledUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *captureNotifier) Notify(_ context.Context, message string) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
	return nil
}

func activeUsers(ids ...string) []datatypes.User {
	users := make([]datatypes.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, datatypes.User{ID: id, Active: true})
	}
	return users
}

func newTestScheduler(runner UserRunner, store Store, b BaselineBuilder, n *captureNotifier) *Scheduler {
	return NewScheduler(SchedulerOptions{
		Runner:      runner,
		Store:       store,
		Baseline:    b,
		Notifier:    n,
		Interval:    5 * time.Millisecond,
		Workers:     4,
		DigestSpec:  "0 8 * * *",
		RebuildSpec: "30 0 * * *",
		WindowDays:  7,
	})
}

func TestScheduler_RunNow_CoversActiveUsers(t *testing.T) {
	runner := &countingRunner{}
	store := &fakeStore{active: activeUsers("u-1", "u-2", "u-3")}
	s := newTestScheduler(runner, store, &stubBaseline{}, &captureNotifier{})

	s.RunNow(context.Background())

	assert.ElementsMatch(t, []string{"u-1", "u-2", "u-3"}, runner.calledUsers())
}

func TestScheduler_RunNow_FailuresDoNotAbortPass(t *testing.T) {
	runner := &countingRunner{failFor: map[string]error{"u-2": errors.New("run exploded")}}
	store := &fakeStore{active: activeUsers("u-1", "u-2", "u-3")}
	s := newTestScheduler(runner, store, &stubBaseline{}, &captureNotifier{})

	s.RunNow(context.Background())

	assert.ElementsMatch(t, []string{"u-1", "u-2", "u-3"}, runner.calledUsers())
}

func TestScheduler_RunNow_ListErrorSkipsPass(t *testing.T) {
	runner := &countingRunner{}
	store := &fakeStore{listErr: errors.New("badger exploded")}
	s := newTestScheduler(runner, store, &stubBaseline{}, &captureNotifier{})

	s.RunNow(context.Background())

	assert.Zero(t, runner.callCount())
}

func TestScheduler_StartStop(t *testing.T) {
	runner := &countingRunner{}
	store := &fakeStore{active: activeUsers("u-1")}
	s := newTestScheduler(runner, store, &stubBaseline{}, &captureNotifier{})

	require.NoError(t, s.Start())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	ran := runner.callCount()
	assert.Greater(t, ran, 0, "ticker should have fired at least once")

	// No passes after Stop.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ran, runner.callCount())

	// Stop is idempotent.
	s.Stop()
}

func TestScheduler_Start_InvalidCron(t *testing.T) {
	s := NewScheduler(SchedulerOptions{
		Runner:      &countingRunner{},
		Store:       &fakeStore{},
		Baseline:    &stubBaseline{},
		DigestSpec:  "not a cron line",
		RebuildSpec: "30 0 * * *",
	})

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest schedule")
}

func TestScheduler_Digest(t *testing.T) {
	store := &fakeStore{recent: []datatypes.StabilityAssessment{
		{RiskLevel: datatypes.RiskCritical},
		{RiskLevel: datatypes.RiskHigh},
		{RiskLevel: datatypes.RiskHigh},
		{RiskLevel: datatypes.RiskLow},
	}}
	notifier := &captureNotifier{}
	s := newTestScheduler(&countingRunner{}, store, &stubBaseline{}, notifier)

	s.digest(context.Background())

	require.Len(t, notifier.messages, 1)
	msg := notifier.messages[0]
	assert.Contains(t, msg, "Daily burnout digest")
	assert.Contains(t, msg, "Assessments: 4")
	assert.Contains(t, msg, "Critical: 1")
	assert.Contains(t, msg, "High: 2")
	assert.Contains(t, msg, "Low: 1")
}

func TestScheduler_Digest_DeliveryFailureTolerated(t *testing.T) {
	store := &fakeStore{recent: []datatypes.StabilityAssessment{{RiskLevel: datatypes.RiskLow}}}
	notifier := &captureNotifier{err: errors.New("slack down")}
	s := newTestScheduler(&countingRunner{}, store, &stubBaseline{}, notifier)

	// Must not panic or abort; the failure is only logged.
	s.digest(context.Background())
}

type stubReportExporter struct {
	calls int
	err   error
}

func (r *stubReportExporter) ExportOrgReport(context.Context, time.Time) (reports.OrgReport, []string, error) {
	r.calls++
	if r.err != nil {
		return reports.OrgReport{}, nil, r.err
	}
	return reports.OrgReport{}, []string{"/tmp/org.json"}, nil
}

func TestScheduler_Digest_WritesOrgReport(t *testing.T) {
	store := &fakeStore{recent: []datatypes.StabilityAssessment{{RiskLevel: datatypes.RiskLow}}}
	exporter := &stubReportExporter{}
	s := newTestScheduler(&countingRunner{}, store, &stubBaseline{}, &captureNotifier{})
	s.reports = exporter

	s.digest(context.Background())

	assert.Equal(t, 1, exporter.calls)
}

func TestScheduler_Digest_ReportFailureTolerated(t *testing.T) {
	store := &fakeStore{recent: []datatypes.StabilityAssessment{{RiskLevel: datatypes.RiskLow}}}
	exporter := &stubReportExporter{err: errors.New("disk full")}
	s := newTestScheduler(&countingRunner{}, store, &stubBaseline{}, &captureNotifier{})
	s.reports = exporter

	// Export failure is logged, never fatal to the digest.
	s.digest(context.Background())
	assert.Equal(t, 1, exporter.calls)
}

func TestScheduler_RebuildBaselines(t *testing.T) {
	store := &fakeStore{active: activeUsers("u-1", "u-2")}
	b := &stubBaseline{ok: true}
	s := newTestScheduler(&countingRunner{}, store, b, &captureNotifier{})

	s.rebuildBaselines(context.Background())

	assert.Equal(t, 2, b.rebuilds)
}
