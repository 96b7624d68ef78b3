// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package alerts delivers human-facing notifications: manager alerts raised
// by the decision engine and the daily digest summary. Delivery goes to
// Slack when a token and channel are configured, and to the structured log
// otherwise, so the rest of the service never branches on transport.
package alerts

import (
	"context"
	"log/slog"
)

// ============================================================================
// Interfaces
// ============================================================================

// Notifier delivers a notification message to wherever the deployment has
// pointed alerts.
//
// # Description
//
// Implementations must be safe for concurrent use: the decision engine and
// the digest scheduler both hold the same Notifier. A returned error means
// the message was not delivered; callers decide whether that outcome is
// fatal (intervention execution marks the record failed, the digest only
// logs).
type Notifier interface {
	// Notify delivers message. The message may span multiple lines;
	// transports that support formatting render it verbatim.
	Notify(ctx context.Context, message string) error
}

// ============================================================================
// Structs
// ============================================================================

// LogNotifier writes notifications to the structured log. It is the default
// Notifier when Slack delivery is not configured, and it never fails.
type LogNotifier struct {
	log *slog.Logger
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// ============================================================================
// Public Functions
// ============================================================================

// NewLogNotifier creates a Notifier backed by the given logger. A nil logger
// falls back to slog.Default().
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

// Notify logs the message at warn level so it stands out in default log
// configurations. It always returns nil.
func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.log.Warn("Notification", "message", message)
	return nil
}
