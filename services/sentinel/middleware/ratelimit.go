// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the Sentinel service.
//
// The assess-now endpoint runs the full pipeline for one worker on demand;
// the per-user rate limiter below keeps a misbehaving client from turning
// that into a compute loop. Requests are keyed by the user_id path
// parameter, falling back to the client IP for routes without one.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// sweepInterval bounds how often idle entries are scanned for removal.
const sweepInterval = time.Minute

// limiterEntry tracks one key's token bucket and its last use.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerUserLimiter applies a token bucket per user key.
//
// # Description
//
// Each key gets an independent bucket refilled at the configured
// per-minute rate with the configured burst. Idle entries are swept
// opportunistically on the request path, so the limiter needs no
// background goroutine and no shutdown hook.
//
// A non-positive rate disables limiting; the middleware becomes a
// pass-through.
//
// # Thread Safety
//
// Safe for concurrent use.
type PerUserLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

// NewPerUserLimiter creates a limiter.
//
// # Inputs
//
//   - perMinute: Sustained request rate per key. <= 0 disables limiting.
//   - burst: Bucket size per key. Values < 1 are raised to 1.
//   - idleTimeout: How long an unused key's entry is kept.
func NewPerUserLimiter(perMinute float64, burst int, idleTimeout time.Duration) *PerUserLimiter {
	if burst < 1 {
		burst = 1
	}
	return &PerUserLimiter{
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		idle:    idleTimeout,
		entries: make(map[string]*limiterEntry),
	}
}

// Middleware returns the gin handler enforcing the limit.
//
// Requests over the limit are rejected with 429 and a JSON error body.
func (l *PerUserLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit <= 0 {
			c.Next()
			return
		}

		key := c.Param("user_id")
		if key == "" {
			key = c.ClientIP()
		}
		if !l.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// allow takes one token from the key's bucket, creating it on first use.
func (l *PerUserLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > sweepInterval {
		l.sweepLocked(now)
		l.lastSweep = now
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// sweepLocked drops entries unused for longer than the idle timeout.
// Callers hold l.mu.
func (l *PerUserLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.entries, key)
		}
	}
}
