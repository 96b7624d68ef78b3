// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/awnumar/memguard"
	"github.com/slack-go/slack"
)

// ============================================================================
// Variables
// ============================================================================

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once
)

// ============================================================================
// Structs
// ============================================================================

// SlackNotifier posts notifications to a single Slack channel.
//
// # Description
//
// The bot token is sealed in a memguard enclave at construction and is only
// decrypted for the duration of each send. The plaintext never sits in a
// long-lived field, so a heap dump between sends does not expose it.
//
// # Thread Safety
//
// Safe for concurrent use. Enclave opens are independent and the client is
// rebuilt per send.
type SlackNotifier struct {
	token   *memguard.Enclave
	channel string
	opts    []slack.Option
	log     *slog.Logger
}

// Compile-time interface check.
var _ Notifier = (*SlackNotifier)(nil)

// ============================================================================
// Public Functions
// ============================================================================

// NewSlackNotifier creates a Notifier that posts to the configured channel.
//
// # Description
//
// Initializes secure memory handling on first use and seals the token. The
// variadic options are passed through to the Slack client on every send;
// tests use slack.OptionAPIURL to point at a local server.
//
// # Inputs
//
//   - cfg: Slack settings; both Token and Channel must be set
//   - log: structured logger (nil falls back to slog.Default())
//   - opts: extra client options applied per send
//
// # Outputs
//
//   - *SlackNotifier: ready for use
//   - error: cfg incomplete
func NewSlackNotifier(cfg config.SlackConfig, log *slog.Logger, opts ...slack.Option) (*SlackNotifier, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("slack notifier requires both token and channel")
	}
	if log == nil {
		log = slog.Default()
	}
	initSecureMemory()

	// NewEnclave wipes the byte copy; the config string itself is gone once
	// the config value falls out of scope.
	n := &SlackNotifier{
		token:   memguard.NewEnclave([]byte(cfg.Token)),
		channel: cfg.Channel,
		opts:    opts,
		log:     log,
	}
	log.Info("Slack alert delivery configured", "channel", cfg.Channel)
	return n, nil
}

// ForConfig selects the delivery transport for the given settings: Slack
// when fully configured, the structured log otherwise.
func ForConfig(cfg config.SlackConfig, log *slog.Logger) (Notifier, error) {
	if cfg.Enabled() {
		return NewSlackNotifier(cfg, log)
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("Slack not configured, notifications go to the log")
	return NewLogNotifier(log), nil
}

// PurgeSecrets wipes all memguard-allocated memory.
//
// Call during graceful shutdown. Sends after this point fail because the
// sealed token is gone.
func PurgeSecrets() {
	memguard.Purge()
}

// Notify posts the message to the configured channel.
//
// # Description
//
// Opens the token enclave, builds a client against the decrypted view, and
// posts. The locked buffer is destroyed as soon as the call returns, which
// also invalidates the client.
//
// # Inputs
//
//   - ctx: cancels the HTTP request
//   - message: rendered with Slack escaping disabled
//
// # Outputs
//
//   - error: enclave open failure or Slack API failure
func (n *SlackNotifier) Notify(ctx context.Context, message string) error {
	buf, err := n.token.Open()
	if err != nil {
		return fmt.Errorf("open slack token enclave: %w", err)
	}
	defer buf.Destroy()

	// buf.String() views the locked pages directly; the client must not
	// outlive this scope.
	api := slack.New(buf.String(), n.opts...)
	_, ts, err := api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	n.log.Debug("Posted Slack notification", "channel", n.channel, "ts", ts)
	return nil
}

// ============================================================================
// Private Functions
// ============================================================================

// initSecureMemory performs one-time memguard initialization so interrupted
// runs still wipe enclave memory.
func initSecureMemory() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
}
