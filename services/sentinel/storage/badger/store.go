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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides typed access to every Sentinel record family.
//
// # Description
//
// All methods are context-aware and safe for concurrent use; Badger
// transactions provide snapshot isolation per call. "Latest"/"ForDay"
// readers distinguish absence from failure with a found flag instead of
// an error, matching the pipeline's insufficient-data semantics.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	db  *DB
	log *slog.Logger
}

// NewStore wraps an open database. A nil logger uses slog.Default.
func NewStore(db *DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// DB exposes the underlying handle for lifecycle management.
func (s *Store) DB() *DB {
	return s.db
}

// put JSON-encodes v and writes it at key in its own transaction.
func (s *Store) put(ctx context.Context, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// get reads and decodes the value at key. Missing keys map to ErrNotFound.
func (s *Store) get(ctx context.Context, key []byte, out any) error {
	return s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// ============================================================================
// Users
// ============================================================================

// PutUser creates or replaces a user record.
func (s *Store) PutUser(ctx context.Context, u datatypes.User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return s.put(ctx, userKey(u.ID), &u)
}

// GetUser returns the user with the given ID, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (datatypes.User, error) {
	var u datatypes.User
	if err := s.get(ctx, userKey(id), &u); err != nil {
		return datatypes.User{}, err
	}
	return u, nil
}

// ListUsers returns all users, optionally only active ones, ordered by ID.
func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]datatypes.User, error) {
	users := []datatypes.User{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u datatypes.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &u)
			}); err != nil {
				return err
			}
			if activeOnly && !u.Active {
				continue
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ============================================================================
// Calendar events
// ============================================================================

// PutCalendarEvents writes a batch of events in one transaction.
// Events are keyed by user, start day, and event ID, so re-sending a
// batch replaces rather than duplicates.
func (s *Store) PutCalendarEvents(ctx context.Context, events []datatypes.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for i := range events {
			e := events[i]
			if e.ID == "" || e.UserID == "" {
				return fmt.Errorf("event %d: id and user_id are required", i)
			}
			data, err := json.Marshal(&e)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", e.ID, err)
			}
			if err := txn.Set(eventKey(e.UserID, e.StartTime, e.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// EventsForDay returns the user's events starting on the given UTC day,
// ordered by event ID.
func (s *Store) EventsForDay(ctx context.Context, userID string, day time.Time) ([]datatypes.CalendarEvent, error) {
	events := []datatypes.CalendarEvent{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := eventDayPrefix(userID, day)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e datatypes.CalendarEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("events for day: %w", err)
	}
	return events, nil
}

// ============================================================================
// Check-ins
// ============================================================================

// PutCheckIn upserts the user's check-in for its day. Last write wins.
func (s *Store) PutCheckIn(ctx context.Context, c datatypes.DailyCheckIn) error {
	if c.UserID == "" {
		return errors.New("check-in user_id is required")
	}
	return s.put(ctx, checkinKey(c.UserID, c.CheckinDate), &c)
}

// CheckInForDay returns the user's check-in for the UTC day, if present.
func (s *Store) CheckInForDay(ctx context.Context, userID string, day time.Time) (datatypes.DailyCheckIn, bool, error) {
	var c datatypes.DailyCheckIn
	err := s.get(ctx, checkinKey(userID, day), &c)
	if errors.Is(err, ErrNotFound) {
		return datatypes.DailyCheckIn{}, false, nil
	}
	if err != nil {
		return datatypes.DailyCheckIn{}, false, err
	}
	return c, true, nil
}

// ============================================================================
// Behavioral features
// ============================================================================

// PutFeatures upserts the features for user+day. Recomputing a day
// replaces the record; the per-day count never exceeds one.
func (s *Store) PutFeatures(ctx context.Context, f datatypes.BehavioralFeatures) error {
	if f.UserID == "" {
		return errors.New("features user_id is required")
	}
	return s.put(ctx, featureKey(f.UserID, f.FeatureDate), &f)
}

// FeaturesForDay returns the user's features for the UTC day, if present.
func (s *Store) FeaturesForDay(ctx context.Context, userID string, day time.Time) (datatypes.BehavioralFeatures, bool, error) {
	var f datatypes.BehavioralFeatures
	err := s.get(ctx, featureKey(userID, day), &f)
	if errors.Is(err, ErrNotFound) {
		return datatypes.BehavioralFeatures{}, false, nil
	}
	if err != nil {
		return datatypes.BehavioralFeatures{}, false, err
	}
	return f, true, nil
}

// FeaturesInWindow returns features with from ≤ FeatureDate < to,
// ascending by date. Day keys sort chronologically, so this is a single
// prefix scan seeked to the window start.
func (s *Store) FeaturesInWindow(ctx context.Context, userID string, from, to time.Time) ([]datatypes.BehavioralFeatures, error) {
	from = datatypes.Day(from)
	to = datatypes.Day(to)

	features := []datatypes.BehavioralFeatures{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := featureUserPrefix(userID)
		seek := featureKey(userID, from)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var f datatypes.BehavioralFeatures
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				return err
			}
			if !f.FeatureDate.Before(to) {
				break
			}
			features = append(features, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("features in window: %w", err)
	}
	return features, nil
}

// ============================================================================
// Baselines
// ============================================================================

// PutBaseline upserts the snapshot keyed by its window end day.
func (s *Store) PutBaseline(ctx context.Context, b datatypes.BaselineSnapshot) error {
	if b.UserID == "" {
		return errors.New("baseline user_id is required")
	}
	return s.put(ctx, baselineKey(b.UserID, b.WindowEnd), &b)
}

// LatestBaseline returns the user's most recent snapshot, if any.
func (s *Store) LatestBaseline(ctx context.Context, userID string) (datatypes.BaselineSnapshot, bool, error) {
	var b datatypes.BaselineSnapshot
	found, err := s.latest(ctx, baselineUserPrefix(userID), &b)
	if err != nil {
		return datatypes.BaselineSnapshot{}, false, fmt.Errorf("latest baseline: %w", err)
	}
	return b, found, nil
}

// latest reverse-seeks to the last key under prefix and decodes it.
func (s *Store) latest(ctx context.Context, prefix []byte, out any) (bool, error) {
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekEnd(prefix))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return found, err
}

// ============================================================================
// Assessments
// ============================================================================

// PutAssessment appends an assessment. CreatedAt must be set; it forms
// the chronological key component.
func (s *Store) PutAssessment(ctx context.Context, a datatypes.StabilityAssessment) error {
	if a.UserID == "" {
		return errors.New("assessment user_id is required")
	}
	if a.CreatedAt.IsZero() {
		return errors.New("assessment created_at is required")
	}
	return s.put(ctx, assessmentKey(a.UserID, a.AssessmentDate, a.CreatedAt), &a)
}

// LatestAssessment returns the user's most recent assessment, if any.
func (s *Store) LatestAssessment(ctx context.Context, userID string) (datatypes.StabilityAssessment, bool, error) {
	var a datatypes.StabilityAssessment
	found, err := s.latest(ctx, assessmentUserPrefix(userID), &a)
	if err != nil {
		return datatypes.StabilityAssessment{}, false, fmt.Errorf("latest assessment: %w", err)
	}
	return a, found, nil
}

// AssessmentsInRange returns assessments with from ≤ AssessmentDate < to,
// ascending by date then creation time.
func (s *Store) AssessmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]datatypes.StabilityAssessment, error) {
	from = datatypes.Day(from)
	to = datatypes.Day(to)

	assessments := []datatypes.StabilityAssessment{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := assessmentUserPrefix(userID)
		seek := []byte(fmt.Sprintf("%s%s:%s:", prefixAssessment, userID, dayKey(from)))
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var a datatypes.StabilityAssessment
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return err
			}
			if !datatypes.Day(a.AssessmentDate).Before(to) {
				break
			}
			assessments = append(assessments, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assessments in range: %w", err)
	}
	return assessments, nil
}

// AssessmentsSince returns all assessments (across users) created at or
// after the given instant. Used by the org-level stats surface; the scan
// is bounded by the retention window in practice.
func (s *Store) AssessmentsSince(ctx context.Context, since time.Time) ([]datatypes.StabilityAssessment, error) {
	assessments := []datatypes.StabilityAssessment{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixAssessment)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var a datatypes.StabilityAssessment
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return err
			}
			if a.CreatedAt.Before(since) {
				continue
			}
			assessments = append(assessments, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assessments since: %w", err)
	}
	return assessments, nil
}

// ============================================================================
// Forecasts
// ============================================================================

// PutForecast appends a forecast. CreatedAt must be set.
func (s *Store) PutForecast(ctx context.Context, f datatypes.BurnoutForecast) error {
	if f.UserID == "" {
		return errors.New("forecast user_id is required")
	}
	if f.CreatedAt.IsZero() {
		return errors.New("forecast created_at is required")
	}
	return s.put(ctx, forecastKey(f.UserID, f.ForecastDate, f.CreatedAt), &f)
}

// LatestForecast returns the user's most recent forecast, if any.
func (s *Store) LatestForecast(ctx context.Context, userID string) (datatypes.BurnoutForecast, bool, error) {
	var f datatypes.BurnoutForecast
	found, err := s.latest(ctx, forecastUserPrefix(userID), &f)
	if err != nil {
		return datatypes.BurnoutForecast{}, false, fmt.Errorf("latest forecast: %w", err)
	}
	return f, found, nil
}

// ============================================================================
// Interventions
// ============================================================================

// PutIntervention creates or replaces an intervention and maintains the
// id → primary-key index in the same transaction. Status and outcome
// updates rewrite the full record: CreatedAt is part of the key and must
// not change across updates.
func (s *Store) PutIntervention(ctx context.Context, iv datatypes.Intervention) error {
	if iv.ID == "" || iv.UserID == "" {
		return errors.New("intervention id and user_id are required")
	}
	if iv.CreatedAt.IsZero() {
		return errors.New("intervention created_at is required")
	}

	key := interventionKey(iv.UserID, iv.InterventionDate, iv.CreatedAt)
	data, err := json.Marshal(&iv)
	if err != nil {
		return fmt.Errorf("encode intervention %s: %w", iv.ID, err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(interventionIdxKey(iv.ID), key)
	})
}

// GetIntervention returns the intervention with the given ID, if present.
func (s *Store) GetIntervention(ctx context.Context, id string) (datatypes.Intervention, bool, error) {
	var iv datatypes.Intervention
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		idxItem, err := txn.Get(interventionIdxKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var primary []byte
		if err := idxItem.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(primary)
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Index without a record would mean a torn write; both keys
			// are set in one transaction, so treat it as absent.
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &iv)
		})
	})
	if err != nil {
		return datatypes.Intervention{}, false, fmt.Errorf("get intervention: %w", err)
	}
	return iv, found, nil
}

// NonCancelledCountForDay counts the user's interventions on the UTC day
// that still consume the daily budget.
func (s *Store) NonCancelledCountForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	count := 0
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := interventionDayPrefix(userID, day)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var iv datatypes.Intervention
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &iv)
			}); err != nil {
				return err
			}
			if iv.Status.CountsTowardCap() {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count interventions for day: %w", err)
	}
	return count, nil
}

// InterventionHistory returns the user's interventions with
// InterventionDate ≥ since, newest first, capped at limit (0 = no cap).
func (s *Store) InterventionHistory(ctx context.Context, userID string, since time.Time, limit int) ([]datatypes.Intervention, error) {
	since = datatypes.Day(since)

	interventions := []datatypes.Intervention{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := interventionUserPrefix(userID)
		for it.Seek(seekEnd(prefix)); it.ValidForPrefix(prefix); it.Next() {
			var iv datatypes.Intervention
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &iv)
			}); err != nil {
				return err
			}
			if datatypes.Day(iv.InterventionDate).Before(since) {
				break
			}
			interventions = append(interventions, iv)
			if limit > 0 && len(interventions) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("intervention history: %w", err)
	}
	return interventions, nil
}
