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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/alerts"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/reports"
)

// ============================================================================
// Constants
// ============================================================================

const (
	defaultStreamInterval = 5 * time.Minute
	defaultWorkers        = 8
)

// ============================================================================
// Interfaces
// ============================================================================

// UserRunner runs the pipeline for one user-day. *Runner satisfies it.
type UserRunner interface {
	RunUser(ctx context.Context, userID string, date time.Time) (RunResult, error)
}

// ReportExporter writes the daily organization report to its configured
// destinations. *reports.Generator satisfies it.
type ReportExporter interface {
	ExportOrgReport(ctx context.Context, now time.Time) (reports.OrgReport, []string, error)
}

// ============================================================================
// Scheduler
// ============================================================================

// SchedulerOptions wires a Scheduler. DigestSpec and RebuildSpec are
// standard five-field cron expressions evaluated in UTC. Reports is
// optional; when set, the daily digest also writes the organization
// report.
type SchedulerOptions struct {
	Runner      UserRunner
	Store       Store
	Baseline    BaselineBuilder
	Notifier    alerts.Notifier
	Reports     ReportExporter
	Interval    time.Duration
	Workers     int
	DigestSpec  string
	RebuildSpec string
	WindowDays  int
	Log         *slog.Logger
}

// Scheduler drives the streaming pass and the daily cron jobs.
//
// # Description
//
// Every interval the scheduler lists active workers and fans their runs
// out over a bounded worker pool. Per-user failures are logged and
// counted, never aborting the pass. Two cron jobs run daily: the digest
// summarizes the last 24 hours through the notifier and writes the
// organization report, and the baseline rebuild refreshes every worker's
// rolling window.
//
// # Thread Safety
//
// Start and Stop are safe to call once each from any goroutine; Stop is
// idempotent. RunNow may be called concurrently with the ticker.
type Scheduler struct {
	runner      UserRunner
	store       Store
	baseline    BaselineBuilder
	notifier    alerts.Notifier
	reports     ReportExporter
	interval    time.Duration
	workers     int
	digestSpec  string
	rebuildSpec string
	windowDays  int
	log         *slog.Logger

	cron     *cron.Cron
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler assembles a Scheduler. Zero Interval and Workers fall back
// to 5 minutes and 8; a nil Notifier falls back to the log transport.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alerts.NewLogNotifier(log)
	}
	return &Scheduler{
		runner:      opts.Runner,
		store:       opts.Store,
		baseline:    opts.Baseline,
		notifier:    notifier,
		reports:     opts.Reports,
		interval:    interval,
		workers:     workers,
		digestSpec:  opts.DigestSpec,
		rebuildSpec: opts.RebuildSpec,
		windowDays:  opts.WindowDays,
		log:         log,
		done:        make(chan struct{}),
	}
}

// Start launches the streaming ticker and registers the cron jobs. It
// fails fast on an invalid cron expression so a bad config surfaces at
// startup, not at 08:00.
func (s *Scheduler) Start() error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.digestSpec, func() { s.digest(context.Background()) }); err != nil {
		return fmt.Errorf("digest schedule %q: %w", s.digestSpec, err)
	}
	if _, err := c.AddFunc(s.rebuildSpec, func() { s.rebuildBaselines(context.Background()) }); err != nil {
		return fmt.Errorf("rebuild schedule %q: %w", s.rebuildSpec, err)
	}
	s.cron = c
	c.Start()

	s.wg.Add(1)
	go s.loop()

	s.log.Info("Scheduler started",
		"stream_interval", s.interval,
		"workers", s.workers,
		"digest_cron", s.digestSpec,
		"rebuild_cron", s.rebuildSpec,
	)
	return nil
}

// Stop halts the ticker, waits for in-flight cron jobs, and returns once
// everything has drained. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		s.log.Info("Scheduler stopped")
	})
}

// RunNow executes one streaming pass synchronously: every active worker
// gets a pipeline run, at most `workers` in flight at once.
func (s *Scheduler) RunNow(ctx context.Context) {
	start := time.Now()

	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		s.log.Error("Streaming pass aborted: listing users failed", "error", err)
		return
	}

	var failures atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, u := range users {
		u := u
		g.Go(func() error {
			if _, err := s.runner.RunUser(ctx, u.ID, time.Now().UTC()); err != nil {
				failures.Add(1)
				s.log.Warn("Streaming run failed", "user_id", u.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.RecordStreamingPass(elapsed.Seconds(), int(failures.Load()))
	s.log.Info("Streaming pass complete",
		"users", len(users),
		"failures", failures.Load(),
		"elapsed", elapsed,
	)
}

// ============================================================================
// Private Methods
// ============================================================================

// loop fires streaming passes until Stop.
func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.RunNow(context.Background())
		}
	}
}

// digest summarizes the last 24 hours of assessments through the notifier.
func (s *Scheduler) digest(ctx context.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	assessments, err := s.store.AssessmentsSince(ctx, since)
	if err != nil {
		s.log.Error("Digest aborted: loading assessments failed", "error", err)
		return
	}

	counts := make(map[datatypes.RiskLevel]int, 4)
	for _, a := range assessments {
		counts[a.RiskLevel]++
	}

	msg := fmt.Sprintf(
		"Daily burnout digest\nAssessments: %d\nCritical: %d | High: %d | Moderate: %d | Low: %d",
		len(assessments),
		counts[datatypes.RiskCritical],
		counts[datatypes.RiskHigh],
		counts[datatypes.RiskModerate],
		counts[datatypes.RiskLow],
	)
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("Digest delivery failed", "error", err)
	}

	if s.reports != nil {
		if _, files, err := s.reports.ExportOrgReport(ctx, time.Now().UTC()); err != nil {
			s.log.Warn("Org report export failed", "error", err)
		} else {
			s.log.Info("Org report written", "files", files)
		}
	}

	s.log.Info("Daily digest sent",
		"assessments", len(assessments),
		"critical", counts[datatypes.RiskCritical],
		"high", counts[datatypes.RiskHigh],
	)
}

// rebuildBaselines refreshes every active worker's rolling window so the
// day's first assessments start from a current baseline.
func (s *Scheduler) rebuildBaselines(ctx context.Context) {
	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		s.log.Error("Baseline rebuild aborted: listing users failed", "error", err)
		return
	}

	rebuilt, failed := 0, 0
	for _, u := range users {
		_, ok, err := s.baseline.Build(ctx, u.ID, time.Now().UTC(), s.windowDays)
		switch {
		case err != nil:
			failed++
			s.log.Warn("Baseline rebuild failed", "user_id", u.ID, "error", err)
		case ok:
			rebuilt++
		}
	}

	s.log.Info("Baseline rebuild complete",
		"users", len(users),
		"rebuilt", rebuilt,
		"failures", failed,
	)
}
