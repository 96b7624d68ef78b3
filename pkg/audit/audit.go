// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit defines the audit trail contract for autonomous actions.
//
// Every intervention attempt the decision engine makes is recorded as an
// Event, whether it succeeded or failed. The trail exists so that a human
// reviewing an autonomous action can answer: what was done, to whom, when,
// triggered by what, and did it work.
//
// The package holds only types and the Logger interface plus a no-op
// default; persistent implementations live next to their storage backend.
package audit

import (
	"context"
	"time"
)

// Event records one autonomous or administrative action.
//
// # Event Types
//
// Events are categorized as "category.action" strings for filtering:
//   - Interventions: "intervention.buffer", "intervention.redistribute",
//     "intervention.alert"
//   - Data: "data.checkin", "data.calendar", "data.user"
//   - System: "system.start", "system.stop", "system.digest"
//
// # Required Fields
//
// For a reviewable trail always populate UserID (the affected worker, or
// "system"), Timestamp (UTC; implementations set it when zero), ActorType,
// and Outcome.
type Event struct {
	// EventType categorizes the event ("intervention.buffer").
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred, UTC. Implementations set
	// time.Now().UTC() when zero.
	Timestamp time.Time `json:"timestamp"`

	// UserID is the worker the action affected.
	UserID string `json:"user_id"`

	// ActorType is who acted: "system" for autonomous decisions,
	// "operator" for CLI/API-initiated ones.
	ActorType string `json:"actor_type"`

	// Action describes the operation: "create", "execute", "suppress",
	// "update".
	Action string `json:"action"`

	// ActionDescription is the human-readable summary recorded on the
	// intervention ("Insert 45-minute focus buffer in calendar").
	ActionDescription string `json:"action_description,omitempty"`

	// TargetType is the kind of resource acted on ("intervention",
	// "assessment", "user").
	TargetType string `json:"target_type"`

	// TargetID is the specific resource instance.
	TargetID string `json:"target_id,omitempty"`

	// Outcome is "success", "failure", "blocked", or "error".
	Outcome string `json:"outcome"`

	// Metadata holds event-specific details (trigger risk level, action
	// parameters, error strings). Keep values JSON-serializable.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter selects events for queries. Zero-value fields are ignored;
// populated fields combine with AND.
type Filter struct {
	// EventTypes limits results to the listed types.
	EventTypes []string

	// UserID limits results to one worker's trail.
	UserID string

	// StartTime is the earliest timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest timestamp to include (exclusive).
	EndTime time.Time

	// TargetType limits results by resource kind.
	TargetType string

	// TargetID limits results to one resource.
	TargetID string

	// Outcome limits results by outcome string.
	Outcome string

	// Limit caps the number of returned events; 0 means the
	// implementation default.
	Limit int
}

// Logger records audit events. Implementations must be safe for
// concurrent use and should return quickly; the decision engine logs on
// the pipeline path.
//
// The default NopLogger discards everything, which is acceptable only for
// throwaway local runs. The sentinel service wires the Badger-backed
// implementation from its storage package.
type Logger interface {
	// Log records one event. Implementations set Timestamp when zero and
	// must not reject events for missing optional fields.
	Log(ctx context.Context, event Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Event, error)

	// Flush persists any buffered events. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopLogger discards all events and returns empty query results.
// Thread-safe: it has no state.
type NopLogger struct{}

// Log discards the event.
func (l *NopLogger) Log(ctx context.Context, event Event) error { return nil }

// Query returns an empty slice.
func (l *NopLogger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return []Event{}, nil
}

// Flush is a no-op.
func (l *NopLogger) Flush(ctx context.Context) error { return nil }

// Compile-time interface compliance check.
var _ Logger = (*NopLogger)(nil)

// Matches reports whether the event satisfies every populated filter
// field. Storage implementations share this instead of re-implementing
// the AND logic.
func (f Filter) Matches(e Event) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	if f.TargetType != "" && e.TargetType != f.TargetType {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}
