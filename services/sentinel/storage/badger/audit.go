// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianPulse/pkg/audit"
)

// defaultAuditQueryLimit caps Query results when the filter sets none.
const defaultAuditQueryLimit = 100

// AuditLogger is the Badger-backed audit.Logger. Events append under a
// day-scoped, nanosecond-ordered key, so queries by recency are reverse
// scans.
type AuditLogger struct {
	store *Store
}

// Compile-time interface compliance check.
var _ audit.Logger = (*AuditLogger)(nil)

// NewAuditLogger creates an audit trail backed by the given store.
func NewAuditLogger(store *Store) *AuditLogger {
	return &AuditLogger{store: store}
}

// Log appends one event. A zero Timestamp is set to now (UTC).
func (l *AuditLogger) Log(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := l.store.put(ctx, auditKey(event.Timestamp, uuid.NewString()), &event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first. A zero Limit
// defaults to 100.
func (l *AuditLogger) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditQueryLimit
	}

	events := []audit.Event{}
	err := l.store.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixAudit)
		for it.Seek(seekEnd(prefix)); it.ValidForPrefix(prefix); it.Next() {
			var e audit.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			// Keys are chronological; once we pass the window start
			// nothing older can match.
			if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
				break
			}
			if !filter.Matches(e) {
				continue
			}
			events = append(events, e)
			if len(events) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return events, nil
}

// Flush syncs the value log to disk. In-memory databases no-op.
func (l *AuditLogger) Flush(ctx context.Context) error {
	if l.store.db.InMemory() {
		return nil
	}
	return l.store.db.Sync()
}
