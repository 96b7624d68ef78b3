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
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// Key layout. Day components use datatypes.DayKey (2006-01-02) and
// nanosecond components are zero-padded to 19 digits so lexicographic
// order equals chronological order within a prefix.
//
//	user:<id>
//	event:<userID>:<day>:<eventID>
//	checkin:<userID>:<day>                      (upsert)
//	feature:<userID>:<day>                      (upsert)
//	baseline:<userID>:<day>                     (upsert, day = window end)
//	assessment:<userID>:<day>:<nanos>           (append)
//	forecast:<userID>:<day>:<nanos>             (append)
//	intervention:<userID>:<day>:<nanos>         (append)
//	intervention_idx:<interventionID>           (id → primary key)
//	audit:<day>:<nanos>:<uuid>                  (append, global)
const (
	prefixUser            = "user:"
	prefixEvent           = "event:"
	prefixCheckin         = "checkin:"
	prefixFeature         = "feature:"
	prefixBaseline        = "baseline:"
	prefixAssessment      = "assessment:"
	prefixForecast        = "forecast:"
	prefixIntervention    = "intervention:"
	prefixInterventionIdx = "intervention_idx:"
	prefixAudit           = "audit:"
)

func dayKey(t time.Time) string {
	return datatypes.Day(t).Format(datatypes.DayKey)
}

func nanoKey(t time.Time) string {
	return fmt.Sprintf("%019d", t.UTC().UnixNano())
}

func userKey(id string) []byte {
	return []byte(prefixUser + id)
}

func eventKey(userID string, start time.Time, eventID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixEvent, userID, dayKey(start), eventID))
}

func eventDayPrefix(userID string, day time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixEvent, userID, dayKey(day)))
}

func checkinKey(userID string, day time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixCheckin, userID, dayKey(day)))
}

func featureKey(userID string, day time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFeature, userID, dayKey(day)))
}

func featureUserPrefix(userID string) []byte {
	return []byte(prefixFeature + userID + ":")
}

func baselineKey(userID string, day time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBaseline, userID, dayKey(day)))
}

func baselineUserPrefix(userID string) []byte {
	return []byte(prefixBaseline + userID + ":")
}

func assessmentKey(userID string, day time.Time, createdAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAssessment, userID, dayKey(day), nanoKey(createdAt)))
}

func assessmentUserPrefix(userID string) []byte {
	return []byte(prefixAssessment + userID + ":")
}

func forecastKey(userID string, day time.Time, createdAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixForecast, userID, dayKey(day), nanoKey(createdAt)))
}

func forecastUserPrefix(userID string) []byte {
	return []byte(prefixForecast + userID + ":")
}

func interventionKey(userID string, day time.Time, createdAt time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixIntervention, userID, dayKey(day), nanoKey(createdAt)))
}

func interventionDayPrefix(userID string, day time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixIntervention, userID, dayKey(day)))
}

func interventionUserPrefix(userID string) []byte {
	return []byte(prefixIntervention + userID + ":")
}

func interventionIdxKey(id string) []byte {
	return []byte(prefixInterventionIdx + id)
}

// auditKey orders events chronologically; the uuid breaks ties between
// events logged in the same nanosecond.
func auditKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAudit, dayKey(ts), nanoKey(ts), id))
}

// seekEnd appends 0xFF bytes to a prefix so a reverse iterator lands on
// the last key under it.
func seekEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix), len(prefix)+8)
	copy(end, prefix)
	return append(end, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
}
